package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"sync"
)

// KVAdapter is the fallback backend: every collection lives in one JSON blob
// (an array of records) under <prefix>__<collection>.json, fronted by an
// in-memory map. With an empty dir the adapter is purely in-memory, which is
// what the tests use.
type KVAdapter struct {
	dir    string
	prefix string
	log    *slog.Logger

	mu     sync.RWMutex
	data   map[string]map[string]json.RawMessage
	loaded bool
}

var _ Adapter = (*KVAdapter)(nil)

// NewKVAdapter creates a key/value adapter persisting blobs under dir with
// the given file prefix. An empty dir disables persistence.
func NewKVAdapter(dir, prefix string, logger *slog.Logger) *KVAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	if prefix == "" {
		prefix = "taskboard"
	}
	return &KVAdapter{
		dir:    dir,
		prefix: prefix,
		log:    logger,
		data:   make(map[string]map[string]json.RawMessage),
	}
}

// Init loads any existing collection blobs from disk. Calling Init again
// after a success is a no-op.
func (k *KVAdapter) Init(ctx context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.loaded {
		return nil
	}

	if k.dir != "" {
		if err := os.MkdirAll(k.dir, 0o755); err != nil {
			return k.fail("init", "", fmt.Errorf("creating blob directory: %w", err))
		}
		for _, spec := range Collections {
			if err := k.loadLocked(spec); err != nil {
				return k.fail("init", spec.Name, err)
			}
		}
	}

	k.loaded = true
	return nil
}

// Close is a no-op for the kv backend; blobs are written on every mutation.
func (k *KVAdapter) Close() error { return nil }

// BlobPath returns the on-disk blob file for a collection, or "" when the
// adapter is in-memory only. The watcher uses it to map file events back to
// collection names.
func (k *KVAdapter) BlobPath(collection string) string {
	if k.dir == "" {
		return ""
	}
	return filepath.Join(k.dir, k.prefix+"__"+collection+".json")
}

// Save upserts a single record and rewrites the collection blob.
func (k *KVAdapter) Save(ctx context.Context, collection string, rec Record) error {
	if _, ok := specFor(collection); !ok {
		return fmt.Errorf("save %s: %w", collection, ErrUnknownCollection)
	}
	if rec == nil || rec.RecordID() == "" {
		return fmt.Errorf("save %s: %w", collection, ErrMissingID)
	}

	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("save %s/%s: marshaling record: %w", collection, rec.RecordID(), err)
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if err := k.requireLoaded(); err != nil {
		return k.fail("save", collection, err)
	}

	m := k.collectionLocked(collection)
	backup := maps.Clone(m)
	m[rec.RecordID()] = raw

	if err := k.persistLocked(collection); err != nil {
		k.data[collection] = backup
		return k.fail("save", collection, err)
	}
	return nil
}

// Get retrieves the raw record with the given id.
func (k *KVAdapter) Get(ctx context.Context, collection, id string) (json.RawMessage, error) {
	if _, ok := specFor(collection); !ok {
		return nil, fmt.Errorf("get %s: %w", collection, ErrUnknownCollection)
	}

	k.mu.RLock()
	defer k.mu.RUnlock()

	if err := k.requireLoaded(); err != nil {
		return nil, k.fail("get", collection, err)
	}

	raw, ok := k.data[collection][id]
	if !ok {
		return nil, fmt.Errorf("get %s/%s: %w", collection, id, ErrNotFound)
	}
	return raw, nil
}

// GetAll returns records matching filter. Unlike the sqlite backend, the
// in-memory match accepts any record field: every filter entry must compare
// equal (AND semantics).
func (k *KVAdapter) GetAll(ctx context.Context, collection string, filter Filter) ([]json.RawMessage, error) {
	if _, ok := specFor(collection); !ok {
		return nil, fmt.Errorf("get all %s: %w", collection, ErrUnknownCollection)
	}

	k.mu.RLock()
	defer k.mu.RUnlock()

	if err := k.requireLoaded(); err != nil {
		return nil, k.fail("get all", collection, err)
	}

	m := k.data[collection]
	ids := slices.Sorted(maps.Keys(m))

	out := make([]json.RawMessage, 0, len(m))
	for _, id := range ids {
		raw := m[id]
		if len(filter) == 0 || matchFilter(raw, filter) {
			out = append(out, raw)
		}
	}
	return out, nil
}

// Delete removes a record by id. Deleting an absent id succeeds without
// touching the blob.
func (k *KVAdapter) Delete(ctx context.Context, collection, id string) error {
	if _, ok := specFor(collection); !ok {
		return fmt.Errorf("delete %s: %w", collection, ErrUnknownCollection)
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if err := k.requireLoaded(); err != nil {
		return k.fail("delete", collection, err)
	}

	m := k.data[collection]
	if _, ok := m[id]; !ok {
		return nil
	}

	backup := maps.Clone(m)
	delete(m, id)

	if err := k.persistLocked(collection); err != nil {
		k.data[collection] = backup
		return k.fail("delete", collection, err)
	}
	return nil
}

// BulkSave upserts a batch of records with a single blob rewrite, so readers
// never observe a partially applied batch.
func (k *KVAdapter) BulkSave(ctx context.Context, collection string, recs []Record) error {
	if _, ok := specFor(collection); !ok {
		return fmt.Errorf("bulk save %s: %w", collection, ErrUnknownCollection)
	}
	if len(recs) == 0 {
		return nil
	}

	raws := make(map[string]json.RawMessage, len(recs))
	for _, rec := range recs {
		if rec == nil || rec.RecordID() == "" {
			return fmt.Errorf("bulk save %s: %w", collection, ErrMissingID)
		}
		raw, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("bulk save %s/%s: marshaling record: %w", collection, rec.RecordID(), err)
		}
		raws[rec.RecordID()] = raw
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if err := k.requireLoaded(); err != nil {
		return k.fail("bulk save", collection, err)
	}

	m := k.collectionLocked(collection)
	backup := maps.Clone(m)
	maps.Copy(m, raws)

	if err := k.persistLocked(collection); err != nil {
		k.data[collection] = backup
		return k.fail("bulk save", collection, err)
	}
	return nil
}

// Clear removes every record in collection and rewrites its blob empty.
func (k *KVAdapter) Clear(ctx context.Context, collection string) error {
	if _, ok := specFor(collection); !ok {
		return fmt.Errorf("clear %s: %w", collection, ErrUnknownCollection)
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if err := k.requireLoaded(); err != nil {
		return k.fail("clear", collection, err)
	}

	backup := k.data[collection]
	k.data[collection] = make(map[string]json.RawMessage)

	if err := k.persistLocked(collection); err != nil {
		k.data[collection] = backup
		return k.fail("clear", collection, err)
	}
	return nil
}

// requireLoaded guards operations against use before Init.
func (k *KVAdapter) requireLoaded() error {
	if !k.loaded {
		return fmt.Errorf("kv adapter: %w", ErrNotInitialized)
	}
	return nil
}

// collectionLocked returns the live map for collection, creating it if needed.
func (k *KVAdapter) collectionLocked(collection string) map[string]json.RawMessage {
	m, ok := k.data[collection]
	if !ok {
		m = make(map[string]json.RawMessage)
		k.data[collection] = m
	}
	return m
}

// loadLocked reads one collection blob from disk into memory.
func (k *KVAdapter) loadLocked(spec CollectionSpec) error {
	path := k.BlobPath(spec.Name)
	blob, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading blob: %w", err)
	}

	var records []json.RawMessage
	if err := json.Unmarshal(blob, &records); err != nil {
		return fmt.Errorf("decoding blob: %w", err)
	}

	m := make(map[string]json.RawMessage, len(records))
	for _, raw := range records {
		id, ok := recordKey(raw, spec.Key)
		if !ok {
			k.log.Warn("kv blob entry has no key, skipping",
				slog.String("collection", spec.Name),
				slog.String("key_field", spec.Key))
			continue
		}
		m[id] = raw
	}
	k.data[spec.Name] = m
	return nil
}

// persistLocked rewrites the blob for collection as a JSON array of records
// sorted by key. No-op without a blob directory.
func (k *KVAdapter) persistLocked(collection string) error {
	if k.dir == "" {
		return nil
	}

	m := k.data[collection]
	ids := slices.Sorted(maps.Keys(m))
	records := make([]json.RawMessage, 0, len(m))
	for _, id := range ids {
		records = append(records, m[id])
	}

	blob, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encoding blob: %w", err)
	}
	if err := writeFileAtomic(k.BlobPath(collection), blob); err != nil {
		return fmt.Errorf("writing blob: %w", err)
	}
	return nil
}

// fail logs a storage failure and returns it wrapped with operation context.
func (k *KVAdapter) fail(op, collection string, err error) error {
	k.log.Error("kv operation failed",
		slog.String("op", op),
		slog.String("collection", collection),
		slog.String("error", err.Error()))
	if collection == "" {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s %s: %w", op, collection, err)
}

// recordKey extracts the key field from a raw record.
func recordKey(raw json.RawMessage, keyField string) (string, bool) {
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return "", false
	}
	id, ok := fields[keyField].(string)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// matchFilter reports whether a raw record satisfies every filter entry.
func matchFilter(raw json.RawMessage, filter Filter) bool {
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return false
	}
	for field, want := range filter {
		if !jsonEqual(fields[field], want) {
			return false
		}
	}
	return true
}

// jsonEqual compares a decoded JSON value with a Go value by normalizing the
// Go side through a JSON round trip (so int filters match float64 decodes).
func jsonEqual(got, want any) bool {
	wb, err := json.Marshal(want)
	if err != nil {
		return false
	}
	var norm any
	if err := json.Unmarshal(wb, &norm); err != nil {
		return false
	}
	return reflect.DeepEqual(got, norm)
}

// writeFileAtomic writes content via a temp file, fsync, and rename so a
// crash never leaves a half-written blob.
func writeFileAtomic(path string, content []byte) error {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, ".taskboard-tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	// Clean up on any failure path.
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}
	success = true
	return nil
}
