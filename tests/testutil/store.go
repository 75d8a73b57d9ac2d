package testutil

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/nhle/taskboard/internal/storage"
)

// Logger returns a quiet logger for tests; only errors come through.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// NewSQLiteService creates a storage service over an in-memory SQLite adapter
// with all migrations applied. It automatically closes the service when the
// test completes.
func NewSQLiteService(t *testing.T) *storage.Service {
	t.Helper()

	adapter := storage.NewSQLiteAdapter(":memory:", Logger())
	if err := adapter.Init(context.Background()); err != nil {
		t.Fatalf("initializing sqlite adapter: %v", err)
	}

	svc := storage.NewService(adapter, Logger())
	t.Cleanup(func() {
		if err := svc.Close(); err != nil {
			t.Errorf("closing storage service: %v", err)
		}
	})

	return svc
}

// NewKVService creates a storage service over a purely in-memory kv adapter.
// It automatically closes the service when the test completes.
func NewKVService(t *testing.T) *storage.Service {
	t.Helper()

	svc := storage.NewService(storage.NewKVAdapter("", "testboard", Logger()), Logger())
	t.Cleanup(func() {
		if err := svc.Close(); err != nil {
			t.Errorf("closing storage service: %v", err)
		}
	})

	return svc
}
