// Package contracts/storage defines the persistence boundary: the capability
// set every storage backend implements and the collections records flow
// through. Two backends satisfy it: SQLite (structured, index-backed lookups)
// and a JSON blob-per-collection key/value store used as the fallback when
// SQLite cannot be opened.
package contracts

import (
	"context"
	"encoding/json"
)

// Collection names. Every record carries a string primary key: "id" for the
// entity collections, "key" for settings.
const (
	CollectionBoards   = "boards"
	CollectionColumns  = "columns"
	CollectionCards    = "cards"
	CollectionLabels   = "labels"
	CollectionSettings = "settings"
)

// StorageRecord is anything a backend can persist. RecordID returns the
// value of the record's key field.
type StorageRecord interface {
	RecordID() string
}

// StorageFilter selects records by equality on JSON fields; a nil or empty
// filter matches the whole collection and multiple fields combine with AND.
// The structured backend rejects fields that do not carry a dedicated index;
// the key/value backend matches any field in memory.
type StorageFilter map[string]any

// StorageAdapter is the capability contract both backends implement. All
// operations are safe for concurrent use. Failures are returned as wrapped
// errors and treated by callers as signals, never as process-fatal
// conditions.
type StorageAdapter interface {
	// Init prepares the backend (opens files, applies schema migrations).
	// Idempotent; repeated calls after a success are no-ops.
	Init(ctx context.Context) error

	// Save upserts a single record: overwrites when the id exists, creates
	// otherwise. Records without an id are rejected.
	Save(ctx context.Context, collection string, rec StorageRecord) error

	// Get returns the raw record with the given id, or a not-found error.
	Get(ctx context.Context, collection, id string) (json.RawMessage, error)

	// GetAll returns every record matching filter (nil means all).
	GetAll(ctx context.Context, collection string, filter StorageFilter) ([]json.RawMessage, error)

	// Delete removes a record by id. Idempotent: deleting an absent id
	// succeeds.
	Delete(ctx context.Context, collection, id string) error

	// BulkSave upserts several records in one atomic step; concurrent
	// readers never observe a partially applied batch.
	BulkSave(ctx context.Context, collection string, recs []StorageRecord) error

	// Clear removes every record in collection.
	Clear(ctx context.Context, collection string) error

	// Close releases backend resources.
	Close() error
}
