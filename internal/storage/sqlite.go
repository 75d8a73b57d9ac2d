package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// SQLiteAdapter is the structured-index backend. Each collection is a table
// holding the full record as a JSON document plus one real, indexed column
// per field declared in Collections, extracted from the document on save.
type SQLiteAdapter struct {
	path string
	log  *slog.Logger

	mu sync.Mutex
	db *sqlx.DB
}

var _ Adapter = (*SQLiteAdapter)(nil)

// NewSQLiteAdapter creates an adapter for the database file at path. The
// database is not opened until Init.
func NewSQLiteAdapter(path string, logger *slog.Logger) *SQLiteAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLiteAdapter{path: path, log: logger}
}

// Init opens (or creates) the database, enables WAL mode, and applies any
// pending schema migrations. Calling Init again after a success is a no-op.
func (s *SQLiteAdapter) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return nil
	}

	if s.path != ":memory:" {
		if dir := filepath.Dir(s.path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return s.fail("init", "", fmt.Errorf("creating data directory: %w", err))
			}
		}
	}

	db, err := sqlx.Open("sqlite", s.path)
	if err != nil {
		return s.fail("init", "", fmt.Errorf("opening sqlite db: %w", err))
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return s.fail("init", "", fmt.Errorf("enabling WAL mode: %w", err))
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return s.fail("init", "", fmt.Errorf("setting busy timeout: %w", err))
	}

	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return s.fail("init", "", err)
	}

	s.db = db
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteAdapter) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// handle returns the open database or an error when Init has not run.
func (s *SQLiteAdapter) handle() (*sqlx.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil, fmt.Errorf("sqlite adapter: %w", ErrNotInitialized)
	}
	return s.db, nil
}

// Save upserts a single record, refreshing its indexed columns.
func (s *SQLiteAdapter) Save(ctx context.Context, collection string, rec Record) error {
	spec, ok := specFor(collection)
	if !ok {
		return fmt.Errorf("save %s: %w", collection, ErrUnknownCollection)
	}
	if rec == nil || rec.RecordID() == "" {
		return fmt.Errorf("save %s: %w", collection, ErrMissingID)
	}

	db, err := s.handle()
	if err != nil {
		return s.fail("save", collection, err)
	}

	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("save %s/%s: marshaling record: %w", collection, rec.RecordID(), err)
	}
	vals, err := indexedValues(spec, raw)
	if err != nil {
		return fmt.Errorf("save %s/%s: %w", collection, rec.RecordID(), err)
	}

	args := make([]any, 0, 2+len(vals))
	args = append(args, rec.RecordID(), string(raw))
	args = append(args, vals...)

	if _, err := db.ExecContext(ctx, upsertQuery(spec), args...); err != nil {
		return s.fail("save", collection, err)
	}
	return nil
}

// Get retrieves the raw record with the given id.
func (s *SQLiteAdapter) Get(ctx context.Context, collection, id string) (json.RawMessage, error) {
	spec, ok := specFor(collection)
	if !ok {
		return nil, fmt.Errorf("get %s: %w", collection, ErrUnknownCollection)
	}

	db, err := s.handle()
	if err != nil {
		return nil, s.fail("get", collection, err)
	}

	var data []byte
	query := fmt.Sprintf("SELECT data FROM %s WHERE %s = ?", spec.Name, columnName(spec.Key))
	err = db.QueryRowxContext(ctx, query, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get %s/%s: %w", collection, id, ErrNotFound)
	}
	if err != nil {
		return nil, s.fail("get", collection, err)
	}
	return json.RawMessage(data), nil
}

// GetAll retrieves records matching filter. Filter fields must be the key
// field or a declared indexed field; anything else is rejected so that
// lookups stay index-backed.
func (s *SQLiteAdapter) GetAll(ctx context.Context, collection string, filter Filter) ([]json.RawMessage, error) {
	spec, ok := specFor(collection)
	if !ok {
		return nil, fmt.Errorf("get all %s: %w", collection, ErrUnknownCollection)
	}

	db, err := s.handle()
	if err != nil {
		return nil, s.fail("get all", collection, err)
	}

	query := fmt.Sprintf("SELECT data FROM %s", spec.Name)
	var args []any
	if len(filter) > 0 {
		conds := make([]string, 0, len(filter))
		for field, value := range filter {
			if !spec.indexes(field) {
				return nil, fmt.Errorf("get all %s: field %q: %w", collection, field, ErrFieldNotIndexed)
			}
			conds = append(conds, columnName(field)+" = ?")
			args = append(args, value)
		}
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	rows, err := db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, s.fail("get all", collection, err)
	}
	defer rows.Close()

	var out []json.RawMessage
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, s.fail("get all", collection, err)
		}
		out = append(out, json.RawMessage(data))
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail("get all", collection, err)
	}
	return out, nil
}

// Delete removes a record by id. Deleting an absent id succeeds.
func (s *SQLiteAdapter) Delete(ctx context.Context, collection, id string) error {
	spec, ok := specFor(collection)
	if !ok {
		return fmt.Errorf("delete %s: %w", collection, ErrUnknownCollection)
	}

	db, err := s.handle()
	if err != nil {
		return s.fail("delete", collection, err)
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", spec.Name, columnName(spec.Key))
	if _, err := db.ExecContext(ctx, query, id); err != nil {
		return s.fail("delete", collection, err)
	}
	return nil
}

// BulkSave upserts a batch of records in one transaction.
func (s *SQLiteAdapter) BulkSave(ctx context.Context, collection string, recs []Record) error {
	spec, ok := specFor(collection)
	if !ok {
		return fmt.Errorf("bulk save %s: %w", collection, ErrUnknownCollection)
	}
	if len(recs) == 0 {
		return nil
	}
	for _, rec := range recs {
		if rec == nil || rec.RecordID() == "" {
			return fmt.Errorf("bulk save %s: %w", collection, ErrMissingID)
		}
	}

	db, err := s.handle()
	if err != nil {
		return s.fail("bulk save", collection, err)
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return s.fail("bulk save", collection, fmt.Errorf("beginning transaction: %w", err))
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, upsertQuery(spec))
	if err != nil {
		return s.fail("bulk save", collection, fmt.Errorf("preparing upsert statement: %w", err))
	}
	defer stmt.Close()

	for _, rec := range recs {
		raw, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("bulk save %s/%s: marshaling record: %w", collection, rec.RecordID(), err)
		}
		vals, err := indexedValues(spec, raw)
		if err != nil {
			return fmt.Errorf("bulk save %s/%s: %w", collection, rec.RecordID(), err)
		}

		args := make([]any, 0, 2+len(vals))
		args = append(args, rec.RecordID(), string(raw))
		args = append(args, vals...)

		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return s.fail("bulk save", collection, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return s.fail("bulk save", collection, err)
	}
	return nil
}

// Clear removes every record in collection.
func (s *SQLiteAdapter) Clear(ctx context.Context, collection string) error {
	spec, ok := specFor(collection)
	if !ok {
		return fmt.Errorf("clear %s: %w", collection, ErrUnknownCollection)
	}

	db, err := s.handle()
	if err != nil {
		return s.fail("clear", collection, err)
	}

	if _, err := db.ExecContext(ctx, "DELETE FROM "+spec.Name); err != nil {
		return s.fail("clear", collection, err)
	}
	return nil
}

// fail logs a storage failure and returns it wrapped with operation context.
func (s *SQLiteAdapter) fail(op, collection string, err error) error {
	s.log.Error("sqlite operation failed",
		slog.String("op", op),
		slog.String("collection", collection),
		slog.String("error", err.Error()))
	if collection == "" {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s %s: %w", op, collection, err)
}

// indexes reports whether field is the key field or carries a dedicated index.
func (spec CollectionSpec) indexes(field string) bool {
	if field == spec.Key {
		return true
	}
	for _, f := range spec.Indexed {
		if f == field {
			return true
		}
	}
	return false
}

// upsertQuery builds the INSERT OR REPLACE statement for a collection:
// key column, data blob, then one column per indexed field.
func upsertQuery(spec CollectionSpec) string {
	cols := make([]string, 0, 2+len(spec.Indexed))
	cols = append(cols, columnName(spec.Key), "data")
	for _, f := range spec.Indexed {
		cols = append(cols, columnName(f))
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	return fmt.Sprintf("INSERT OR REPLACE INTO %s (%s) VALUES (%s)",
		spec.Name, strings.Join(cols, ", "), placeholders)
}

// indexedValues extracts the indexed scalar fields from a marshaled record,
// in the order the collection spec declares them. Absent fields and composite
// values become NULL.
func indexedValues(spec CollectionSpec, raw []byte) ([]any, error) {
	if len(spec.Indexed) == 0 {
		return nil, nil
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decoding record fields: %w", err)
	}
	vals := make([]any, 0, len(spec.Indexed))
	for _, f := range spec.Indexed {
		switch v := fields[f].(type) {
		case nil, bool, string, float64:
			vals = append(vals, v)
		default:
			vals = append(vals, nil)
		}
	}
	return vals, nil
}
