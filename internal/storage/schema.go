package storage

import "strings"

// Collection names used throughout the application.
const (
	CollectionBoards   = "boards"
	CollectionColumns  = "columns"
	CollectionCards    = "cards"
	CollectionLabels   = "labels"
	CollectionSettings = "settings"
)

// CollectionSpec declares one collection: its name, the JSON field holding
// the record key, and the fields that get dedicated indexed columns in the
// sqlite backend.
type CollectionSpec struct {
	Name    string
	Key     string
	Indexed []string
}

// Collections is the declared schema. The sqlite backend materializes one
// table per entry (key column + data blob + one column per indexed field);
// the kv backend serializes each collection as a single JSON blob. Changing
// this list requires a new additive migration.
var Collections = []CollectionSpec{
	{Name: CollectionBoards, Key: "id", Indexed: []string{"createdAt", "starred", "archived"}},
	{Name: CollectionColumns, Key: "id", Indexed: []string{"boardId", "position"}},
	{Name: CollectionCards, Key: "id", Indexed: []string{"columnId", "position", "dueDate", "priority"}},
	{Name: CollectionLabels, Key: "id", Indexed: []string{"boardId"}},
	{Name: CollectionSettings, Key: "key", Indexed: nil},
}

// specFor looks up the declared spec for a collection name.
func specFor(collection string) (CollectionSpec, bool) {
	for _, spec := range Collections {
		if spec.Name == collection {
			return spec, true
		}
	}
	return CollectionSpec{}, false
}

// columnName converts a camelCase JSON field name to its snake_case sqlite
// column name (boardId -> board_id).
func columnName(field string) string {
	var b strings.Builder
	for i, r := range field {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r - 'A' + 'a')
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
