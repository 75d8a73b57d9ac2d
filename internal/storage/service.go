package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/nhle/taskboard/internal/model"
)

// Service is the backend-agnostic facade the rest of the application talks
// to. It wraps exactly one Adapter, chosen at construction, and initializes
// it lazily on first use: concurrent first calls collapse into a single
// Init, a failed Init is retried by the next call, and a successful one
// short-circuits forever.
type Service struct {
	adapter Adapter
	log     *slog.Logger

	initialized atomic.Bool
	initGroup   singleflight.Group
}

// NewService wraps the given adapter.
func NewService(adapter Adapter, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{adapter: adapter, log: logger}
}

// OpenService builds a Service from configuration. The sqlite backend is
// probed by opening it eagerly; when the probe fails the service falls back
// to the kv backend, mirroring how the backend would be feature-detected in
// a constrained environment.
func OpenService(ctx context.Context, cfg model.StorageSettings, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Backend != model.BackendKV {
		sqliteAdapter := NewSQLiteAdapter(cfg.SQLitePath, logger)
		if err := sqliteAdapter.Init(ctx); err == nil {
			svc := NewService(sqliteAdapter, logger)
			svc.initialized.Store(true)
			return svc
		}
		logger.Warn("sqlite backend unavailable, falling back to kv",
			slog.String("path", cfg.SQLitePath))
	}

	return NewService(NewKVAdapter(cfg.KVDir, cfg.AppPrefix, logger), logger)
}

// Backend exposes the wrapped adapter, primarily so the composition root can
// reach backend-specific hooks (such as the kv blob paths for the watcher).
func (s *Service) Backend() Adapter { return s.adapter }

// ensureInit runs the adapter's Init at most once per success.
func (s *Service) ensureInit(ctx context.Context) error {
	if s.initialized.Load() {
		return nil
	}
	_, err, _ := s.initGroup.Do("init", func() (any, error) {
		if s.initialized.Load() {
			return nil, nil
		}
		if err := s.adapter.Init(ctx); err != nil {
			return nil, err
		}
		s.initialized.Store(true)
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}
	return nil
}

// Save upserts a single record.
func (s *Service) Save(ctx context.Context, collection string, rec Record) error {
	if err := s.ensureInit(ctx); err != nil {
		return err
	}
	return s.adapter.Save(ctx, collection, rec)
}

// Get retrieves the raw record with the given id.
func (s *Service) Get(ctx context.Context, collection, id string) (json.RawMessage, error) {
	if err := s.ensureInit(ctx); err != nil {
		return nil, err
	}
	return s.adapter.Get(ctx, collection, id)
}

// GetAll retrieves records matching filter (nil means all).
func (s *Service) GetAll(ctx context.Context, collection string, filter Filter) ([]json.RawMessage, error) {
	if err := s.ensureInit(ctx); err != nil {
		return nil, err
	}
	return s.adapter.GetAll(ctx, collection, filter)
}

// Delete removes a record by id; deleting an absent id succeeds.
func (s *Service) Delete(ctx context.Context, collection, id string) error {
	if err := s.ensureInit(ctx); err != nil {
		return err
	}
	return s.adapter.Delete(ctx, collection, id)
}

// BulkSave upserts several records atomically.
func (s *Service) BulkSave(ctx context.Context, collection string, recs []Record) error {
	if err := s.ensureInit(ctx); err != nil {
		return err
	}
	return s.adapter.BulkSave(ctx, collection, recs)
}

// Clear removes every record in collection.
func (s *Service) Clear(ctx context.Context, collection string) error {
	if err := s.ensureInit(ctx); err != nil {
		return err
	}
	return s.adapter.Clear(ctx, collection)
}

// Query fetches the whole collection and applies an arbitrary in-memory
// predicate. Ad hoc filters only; anything worth an index belongs in GetAll.
func (s *Service) Query(ctx context.Context, collection string, pred func(json.RawMessage) bool) ([]json.RawMessage, error) {
	all, err := s.GetAll(ctx, collection, nil)
	if err != nil {
		return nil, err
	}
	out := make([]json.RawMessage, 0, len(all))
	for _, raw := range all {
		if pred(raw) {
			out = append(out, raw)
		}
	}
	return out, nil
}

// Close releases the adapter's resources.
func (s *Service) Close() error {
	return s.adapter.Close()
}

// GetAs retrieves one record decoded into T.
func GetAs[T any](ctx context.Context, s *Service, collection, id string) (T, error) {
	var v T
	raw, err := s.Get(ctx, collection, id)
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("decoding %s/%s: %w", collection, id, err)
	}
	return v, nil
}

// GetAllAs retrieves records matching filter, decoded into a slice of T.
func GetAllAs[T any](ctx context.Context, s *Service, collection string, filter Filter) ([]T, error) {
	raws, err := s.GetAll(ctx, collection, filter)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(raws))
	for _, raw := range raws {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("decoding %s record: %w", collection, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// QueryAs fetches the whole collection decoded into T and filters it with a
// typed predicate.
func QueryAs[T any](ctx context.Context, s *Service, collection string, pred func(T) bool) ([]T, error) {
	all, err := GetAllAs[T](ctx, s, collection, nil)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(all))
	for _, v := range all {
		if pred(v) {
			out = append(out, v)
		}
	}
	return out, nil
}
