package model

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Column is a named stage within a board holding an ordered list of cards.
type Column struct {
	ID      string `json:"id"`
	BoardID string `json:"boardId"`
	Title   string `json:"title"`

	// CardOrder is a denormalized ordering hint (card IDs); Position on the
	// cards themselves is authoritative.
	CardOrder []string `json:"cardOrder,omitempty"`

	// Position is the zero-based, contiguous sort index of this column
	// within its board.
	Position int `json:"position"`

	Color string `json:"color,omitempty"`

	// CardLimit is an optional WIP cap; nil means unlimited.
	CardLimit *int `json:"cardLimit,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// RecordID returns the column's storage key.
func (c Column) RecordID() string { return c.ID }

// WithPosition returns a copy of the column with Position set to pos.
func (c Column) WithPosition(pos int) Column {
	c.Position = pos
	return c
}

// AtLimit reports whether adding to a column holding count cards would
// exceed its WIP cap. A nil CardLimit never limits.
func (c Column) AtLimit(count int) bool {
	return c.CardLimit != nil && count >= *c.CardLimit
}

// Validate checks that the column is well-formed enough to persist.
func (c Column) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.BoardID, validation.Required),
		validation.Field(&c.Title, validation.Required, validation.Length(1, 200)),
		validation.Field(&c.Position, validation.Min(0)),
		validation.Field(&c.CardLimit, validation.Min(1)),
	)
}
