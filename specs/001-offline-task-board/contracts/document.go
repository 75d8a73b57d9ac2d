// Package contracts/document defines the board transfer document: the JSON
// shape produced by export and accepted by import. The document is
// self-contained (one board with everything it owns) and versioned so
// importers can reject formats newer than they understand.
//
// All fields use camelCase on the wire. Timestamps are RFC 3339 instants.
package contracts

// DocumentVersion is the current transfer format version.
const DocumentVersion = 1

// BoardDocument is a self-contained snapshot of one board.
type BoardDocument struct {
	Version    int            `json:"version"`
	ExportedAt string         `json:"exportedAt"`
	Board      BoardRecord    `json:"board"`
	Columns    []ColumnRecord `json:"columns"`
	Cards      []CardRecord   `json:"cards"`
	Labels     []LabelRecord  `json:"labels,omitempty"`
}

// BoardRecord is the persisted board shape. ColumnOrder is a denormalized
// ordering hint; the position field on each column is authoritative.
type BoardRecord struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	ColumnOrder     []string `json:"columnOrder,omitempty"`
	Starred         bool     `json:"starred"`
	BackgroundColor string   `json:"backgroundColor,omitempty"`
	Archived        bool     `json:"archived"`
	CreatedAt       string   `json:"createdAt"`
	UpdatedAt       string   `json:"updatedAt"`
}

// ColumnRecord is the persisted column shape. Position is the zero-based,
// contiguous sort index within the board; CardOrder is a hint like
// ColumnOrder above. CardLimit is an optional WIP cap, null when unlimited.
type ColumnRecord struct {
	ID        string   `json:"id"`
	BoardID   string   `json:"boardId"`
	Title     string   `json:"title"`
	CardOrder []string `json:"cardOrder,omitempty"`
	Position  int      `json:"position"`
	Color     string   `json:"color,omitempty"`
	CardLimit *int     `json:"cardLimit,omitempty"`
	CreatedAt string   `json:"createdAt"`
	UpdatedAt string   `json:"updatedAt"`
}

// CardRecord is the persisted card shape. Position is the zero-based,
// contiguous sort index within the column. Priority is one of "low",
// "medium", "high", "critical", or absent.
type CardRecord struct {
	ID          string            `json:"id"`
	ColumnID    string            `json:"columnId"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Position    int               `json:"position"`
	Priority    string            `json:"priority,omitempty"`
	DueDate     *string           `json:"dueDate,omitempty"`
	Labels      []CardLabelRecord `json:"labels,omitempty"`
	Tags        []string          `json:"tags,omitempty"`
	CreatedAt   string            `json:"createdAt"`
	UpdatedAt   string            `json:"updatedAt"`
}

// CardLabelRecord is the denormalized label reference carried on a card.
// Documents may carry bare {name} entries, so id and color are optional.
type CardLabelRecord struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// LabelRecord is the persisted label definition, scoped to one board.
type LabelRecord struct {
	ID        string `json:"id"`
	BoardID   string `json:"boardId"`
	Name      string `json:"name"`
	Color     string `json:"color,omitempty"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}
