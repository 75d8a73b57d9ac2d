package model

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Board is the top-level container holding an ordered list of columns.
type Board struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`

	// ColumnOrder is a denormalized ordering hint (column IDs). The
	// authoritative order is each column's Position; this list may drift
	// and is refreshed opportunistically.
	ColumnOrder []string `json:"columnOrder,omitempty"`

	Starred         bool      `json:"starred"`
	BackgroundColor string    `json:"backgroundColor,omitempty"`
	Archived        bool      `json:"archived"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// RecordID returns the board's storage key.
func (b Board) RecordID() string { return b.ID }

// Validate checks that the board is well-formed enough to persist.
func (b Board) Validate() error {
	return validation.ValidateStruct(&b,
		validation.Field(&b.Title, validation.Required, validation.Length(1, 200)),
		validation.Field(&b.Description, validation.Length(0, 2000)),
	)
}
