// Package storage provides the persistence abstraction for the task board:
// a single Adapter contract with two interchangeable backends (structured,
// indexed SQLite and a JSON-blob-per-collection key/value fallback) behind a
// lazily initialized Service facade.
package storage

import (
	"context"
	"encoding/json"
	"errors"
)

// Sentinel errors shared by all adapters.
var (
	// ErrNotFound is returned by Get when no record has the requested id.
	ErrNotFound = errors.New("record not found")

	// ErrMissingID is returned by Save and BulkSave for records without an id.
	ErrMissingID = errors.New("record has no id")

	// ErrUnknownCollection is returned for collection names outside the
	// declared schema.
	ErrUnknownCollection = errors.New("unknown collection")

	// ErrNotInitialized is returned when an operation runs before Init has
	// succeeded. Calling into an uninitialized backend or store is a
	// programmer error, not a recoverable storage failure.
	ErrNotInitialized = errors.New("not initialized")

	// ErrFieldNotIndexed is returned by the sqlite backend when a filter
	// names a field without a dedicated index. The kv backend matches any
	// field in memory and never returns it.
	ErrFieldNotIndexed = errors.New("filter field not indexed")
)

// Record is anything the adapters can persist. RecordID returns the value of
// the record's key field ("id" for entities, "key" for settings).
type Record interface {
	RecordID() string
}

// Filter selects records by equality on JSON fields. A nil or empty filter
// matches the whole collection. Multiple fields combine with AND semantics.
type Filter map[string]any

// Adapter is the capability set every persistence backend implements.
//
// All operations are safe for concurrent use. Adapters never panic: failures
// are logged as a side effect and returned as wrapped errors, which callers
// treat as signals rather than exceptions. Delete is idempotent; removing an
// absent id succeeds. BulkSave is atomic from the perspective of concurrent
// readers.
type Adapter interface {
	// Init prepares the backend (opens files, applies schema migrations).
	// It is idempotent; repeated calls after a success are no-ops.
	Init(ctx context.Context) error

	// Save upserts a single record into collection.
	Save(ctx context.Context, collection string, rec Record) error

	// Get returns the raw record with the given id, or ErrNotFound.
	Get(ctx context.Context, collection, id string) (json.RawMessage, error)

	// GetAll returns every record matching filter (nil means all).
	GetAll(ctx context.Context, collection string, filter Filter) ([]json.RawMessage, error)

	// Delete removes a record by id; deleting an absent id is not an error.
	Delete(ctx context.Context, collection, id string) error

	// BulkSave upserts several records in one atomic step.
	BulkSave(ctx context.Context, collection string, recs []Record) error

	// Clear removes every record in collection.
	Clear(ctx context.Context, collection string) error

	// Close releases backend resources.
	Close() error
}
