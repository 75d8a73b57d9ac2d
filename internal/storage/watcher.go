package storage

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce is how long the watcher waits after the last blob event
// before reloading; bursts of writes collapse into one reload per collection.
const watchDebounce = 200 * time.Millisecond

// ChangeCallback is called after an externally modified collection has been
// reloaded into the adapter.
type ChangeCallback func(collection string)

// WatchKV watches the kv adapter's blob directory and processes file change
// events until ctx is cancelled, reloading each touched collection from disk
// and then invoking cb (if non-nil). This is how a second process sharing
// the same data directory becomes visible to a running instance. Writes made
// through the adapter itself also surface here; reloading them is redundant
// but harmless.
func WatchKV(ctx context.Context, adapter *KVAdapter, logger *slog.Logger, cb ChangeCallback) error {
	if logger == nil {
		logger = slog.Default()
	}
	if adapter.dir == "" {
		return fmt.Errorf("watch kv: adapter has no blob directory")
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch kv: %w", err)
	}
	defer w.Close()

	if err := w.Add(adapter.dir); err != nil {
		return fmt.Errorf("watch kv: watching %s: %w", adapter.dir, err)
	}

	logger.Info("watcher: started", slog.String("dir", adapter.dir))

	pending := make(map[string]struct{})

	// flushTimer debounces reloads across event bursts.
	var flushTimer *time.Timer
	var flushCh <-chan time.Time

	scheduleFlush := func() {
		if flushTimer == nil {
			flushTimer = time.NewTimer(watchDebounce)
			flushCh = flushTimer.C
		} else {
			flushTimer.Reset(watchDebounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if flushTimer != nil {
				flushTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-flushCh:
			for _, collection := range slices.Sorted(maps.Keys(pending)) {
				if err := adapter.Reload(ctx, collection); err != nil {
					logger.Warn("watcher: reload failed",
						slog.String("collection", collection),
						slog.String("error", err.Error()))
					continue
				}
				logger.Debug("watcher: collection reloaded", slog.String("collection", collection))
				if cb != nil {
					cb(collection)
				}
			}
			clear(pending)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			collection, ok := adapter.collectionForPath(ev.Name)
			if !ok {
				continue
			}
			pending[collection] = struct{}{}
			scheduleFlush()

		case werr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher: error", slog.String("error", werr.Error()))
		}
	}
}

// collectionForPath maps a blob file path back to its collection name,
// rejecting files that do not follow <prefix>__<collection>.json.
func (k *KVAdapter) collectionForPath(path string) (string, bool) {
	base := filepath.Base(path)
	if !strings.HasPrefix(base, k.prefix+"__") || !strings.HasSuffix(base, ".json") {
		return "", false
	}
	collection := strings.TrimSuffix(strings.TrimPrefix(base, k.prefix+"__"), ".json")
	if _, ok := specFor(collection); !ok {
		return "", false
	}
	return collection, true
}

// Reload re-reads one collection blob from disk, replacing the in-memory
// copy. Used by the watcher when another process rewrote the blob.
func (k *KVAdapter) Reload(ctx context.Context, collection string) error {
	spec, ok := specFor(collection)
	if !ok {
		return fmt.Errorf("reload %s: %w", collection, ErrUnknownCollection)
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if err := k.requireLoaded(); err != nil {
		return k.fail("reload", collection, err)
	}
	if err := k.loadLocked(spec); err != nil {
		return k.fail("reload", collection, err)
	}
	return nil
}
