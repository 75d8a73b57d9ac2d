// Package app is the composition root. It builds the storage service, the
// four entity stores, and the drag coordinator once, passes them around by
// reference, and owns the session: which board is open, the background drop
// subscriber, the kv blob watcher, and the shutdown flush.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nhle/taskboard/internal/drag"
	"github.com/nhle/taskboard/internal/model"
	"github.com/nhle/taskboard/internal/storage"
	"github.com/nhle/taskboard/internal/store"
)

// App aggregates the persistence core behind one object.
type App struct {
	cfg *model.AppConfig
	log *slog.Logger
	svc *storage.Service

	Boards  *store.BoardStore
	Columns *store.ColumnStore
	Cards   *store.CardStore
	Labels  *store.LabelStore
	Drag    *drag.Coordinator

	mu          sync.Mutex
	activeBoard string
	started     bool
	cancel      context.CancelFunc

	wg sync.WaitGroup
}

// New builds the application core from configuration, probing the configured
// storage backend.
func New(ctx context.Context, cfg *model.AppConfig, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	return NewWithService(storage.OpenService(ctx, cfg.Storage, logger), cfg, logger)
}

// NewWithService builds the core on an existing storage service. Tests use
// it to pin a specific backend.
func NewWithService(svc *storage.Service, cfg *model.AppConfig, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}

	window := cfg.Persist.Window()
	cards := store.NewCardStore(svc, window, logger)
	columns := store.NewColumnStore(svc, cards, window, logger)
	labels := store.NewLabelStore(svc, cards, window, logger)
	boards := store.NewBoardStore(svc, columns, labels, window, logger)

	return &App{
		cfg:     cfg,
		log:     logger,
		svc:     svc,
		Boards:  boards,
		Columns: columns,
		Cards:   cards,
		Labels:  labels,
		Drag:    drag.NewCoordinator(),
	}
}

// Service exposes the storage facade, for export/import and settings access.
func (a *App) Service() *storage.Service { return a.svc }

// Init loads the board list and restores the last session's active board
// when it still exists. A stale or absent setting leaves no board open.
func (a *App) Init(ctx context.Context) error {
	if err := a.Boards.Init(ctx); err != nil {
		return fmt.Errorf("initializing app: %w", err)
	}

	boardID := a.loadSetting(ctx, model.SettingActiveBoard)
	if boardID == "" {
		return nil
	}
	if _, ok := a.Boards.Get(boardID); !ok {
		return nil
	}
	return a.OpenBoard(ctx, boardID)
}

// OpenBoard loads a board's columns, its cards, and its labels into the
// stores and records it as the active board for the next session.
func (a *App) OpenBoard(ctx context.Context, boardID string) error {
	if _, ok := a.Boards.Get(boardID); !ok {
		return fmt.Errorf("opening board %s: %w", boardID, storage.ErrNotFound)
	}

	if err := a.Columns.Load(ctx, boardID); err != nil {
		return fmt.Errorf("opening board %s: %w", boardID, err)
	}
	columns := a.Columns.ForBoard(boardID)
	columnIDs := make([]string, len(columns))
	for i, col := range columns {
		columnIDs[i] = col.ID
	}
	if err := a.Cards.LoadForColumns(ctx, columnIDs); err != nil {
		return fmt.Errorf("opening board %s: %w", boardID, err)
	}
	if err := a.Labels.Load(ctx, boardID); err != nil {
		return fmt.Errorf("opening board %s: %w", boardID, err)
	}

	a.mu.Lock()
	a.activeBoard = boardID
	a.mu.Unlock()

	if err := a.saveSetting(ctx, model.SettingActiveBoard, boardID); err != nil {
		a.log.Warn("saving active board", slog.String("error", err.Error()))
	}
	return nil
}

// ActiveBoardID returns the open board's id, or "" when none is open.
func (a *App) ActiveBoardID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.activeBoard
}

// Theme returns the persisted theme name, or "" when unset.
func (a *App) Theme(ctx context.Context) string {
	return a.loadSetting(ctx, model.SettingTheme)
}

// SetTheme persists the theme name.
func (a *App) SetTheme(ctx context.Context, name string) error {
	if err := a.saveSetting(ctx, model.SettingTheme, name); err != nil {
		return fmt.Errorf("saving theme: %w", err)
	}
	return nil
}

func (a *App) loadSetting(ctx context.Context, key string) string {
	setting, err := storage.GetAs[model.Setting](ctx, a.svc, storage.CollectionSettings, key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			a.log.Warn("loading setting", slog.String("key", key), slog.String("error", err.Error()))
		}
		return ""
	}
	return setting.StringValue()
}

func (a *App) saveSetting(ctx context.Context, key, value string) error {
	return a.svc.Save(ctx, storage.CollectionSettings, model.NewStringSetting(key, value))
}

// Start launches the background loops: the drop subscriber that turns
// completed gestures into store mutations, and, when the kv backend is
// file-backed, the blob watcher that refreshes the stores after another
// process rewrote the data directory. Both run until Close.
func (a *App) Start(ctx context.Context) {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return
	}
	a.started = true
	ctx, a.cancel = context.WithCancel(ctx)
	a.mu.Unlock()

	drops := a.Drag.Subscribe()
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for {
			select {
			case <-ctx.Done():
				a.Drag.Unsubscribe(drops)
				return
			case drop, ok := <-drops:
				if !ok {
					return
				}
				if err := a.CompleteDrop(ctx, drop); err != nil {
					a.log.Error("applying drop",
						slog.String("item", drop.ItemID),
						slog.String("error", err.Error()))
				}
			}
		}
	}()

	kv, ok := a.svc.Backend().(*storage.KVAdapter)
	if !ok || kv.BlobPath(storage.CollectionBoards) == "" {
		return
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		err := storage.WatchKV(ctx, kv, a.log, func(collection string) {
			a.onExternalChange(ctx, collection)
		})
		if err != nil {
			a.log.Warn("kv watcher exited", slog.String("error", err.Error()))
		}
	}()
}

// onExternalChange refreshes the store owning a collection another process
// rewrote, keeping the current scope.
func (a *App) onExternalChange(ctx context.Context, collection string) {
	var err error
	switch collection {
	case storage.CollectionBoards:
		err = a.Boards.Reload(ctx)
	case storage.CollectionColumns:
		err = a.Columns.Reload(ctx)
	case storage.CollectionCards:
		err = a.Cards.Reload(ctx)
	case storage.CollectionLabels:
		err = a.Labels.Reload(ctx)
	default:
		return // settings are read on demand, nothing cached to refresh
	}
	if err != nil {
		a.log.Warn("reloading after external change",
			slog.String("collection", collection),
			slog.String("error", err.Error()))
	}
}

// Close stops the background loops, flushes every pending debounced write,
// and releases the storage backend. The app is not reusable afterwards.
func (a *App) Close() error {
	a.mu.Lock()
	cancel := a.cancel
	a.cancel = nil
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	a.wg.Wait()
	a.Drag.Close()
	a.flushStores()

	if err := a.svc.Close(); err != nil {
		return fmt.Errorf("closing storage: %w", err)
	}
	return nil
}

// flushStores forces every pending debounced write out now. Export paths
// call it so storage reads see the latest state.
func (a *App) flushStores() {
	a.Boards.Flush()
	a.Columns.Flush()
	a.Cards.Flush()
	a.Labels.Flush()
}

// Err returns the first store failure, if any. This is the single surface a
// UI polls to show a persistence problem.
func (a *App) Err() error {
	for _, err := range []error{a.Boards.Err(), a.Columns.Err(), a.Cards.Err(), a.Labels.Err()} {
		if err != nil {
			return err
		}
	}
	return nil
}
