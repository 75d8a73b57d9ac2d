package storage

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations. Versions are
// sequential from 1 and migrations are additive only: upgrading never drops
// or rewrites existing data.
//
// Every collection table stores the full record as a JSON document in the
// data column; the remaining columns are extracted copies of the indexed
// fields declared in Collections and must stay in sync with that list.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS boards (
	id         TEXT PRIMARY KEY,
	data       TEXT NOT NULL,
	created_at TEXT,
	starred    INTEGER,
	archived   INTEGER
);

CREATE TABLE IF NOT EXISTS columns (
	id       TEXT PRIMARY KEY,
	data     TEXT NOT NULL,
	board_id TEXT,
	position INTEGER
);

CREATE TABLE IF NOT EXISTS cards (
	id        TEXT PRIMARY KEY,
	data      TEXT NOT NULL,
	column_id TEXT,
	position  INTEGER,
	due_date  TEXT,
	priority  TEXT
);

CREATE TABLE IF NOT EXISTS labels (
	id       TEXT PRIMARY KEY,
	data     TEXT NOT NULL,
	board_id TEXT
);

CREATE TABLE IF NOT EXISTS settings (
	key  TEXT PRIMARY KEY,
	data TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_boards_created_at ON boards(created_at);
CREATE INDEX IF NOT EXISTS idx_boards_starred ON boards(starred);
CREATE INDEX IF NOT EXISTS idx_boards_archived ON boards(archived);
CREATE INDEX IF NOT EXISTS idx_columns_board_id ON columns(board_id);
CREATE INDEX IF NOT EXISTS idx_columns_position ON columns(position);
CREATE INDEX IF NOT EXISTS idx_cards_column_id ON cards(column_id);
CREATE INDEX IF NOT EXISTS idx_cards_position ON cards(position);
CREATE INDEX IF NOT EXISTS idx_cards_due_date ON cards(due_date);
CREATE INDEX IF NOT EXISTS idx_cards_priority ON cards(priority);
CREATE INDEX IF NOT EXISTS idx_labels_board_id ON labels(board_id);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE INDEX IF NOT EXISTS idx_columns_board_position
	ON columns(board_id, position);

CREATE INDEX IF NOT EXISTS idx_cards_column_position
	ON cards(column_id, position);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func runMigrations(ctx context.Context, db *sqlx.DB) error {
	currentVersion := 0

	// Check if schema_version table exists.
	var tableCount int
	err := db.GetContext(
		ctx,
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = db.GetContext(ctx, &currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := db.ExecContext(ctx, m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}
