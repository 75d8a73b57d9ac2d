package model

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Priority levels a card can carry. An empty Priority means none was set.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// CardLabel is a label reference attached to a card. Imported documents may
// carry bare {name} entries, so ID and Color are optional.
type CardLabel struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// Card is an individual work item, the leaf entity of a board.
type Card struct {
	ID          string `json:"id"`
	ColumnID    string `json:"columnId"`
	Title       string `json:"title"`
	Description string `json:"description"`

	// Position is the zero-based, contiguous sort index of this card within
	// its column.
	Position int `json:"position"`

	Priority Priority    `json:"priority,omitempty"`
	DueDate  *time.Time  `json:"dueDate,omitempty"`
	Labels   []CardLabel `json:"labels,omitempty"`
	Tags     []string    `json:"tags,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// RecordID returns the card's storage key.
func (c Card) RecordID() string { return c.ID }

// WithPosition returns a copy of the card with Position set to pos.
func (c Card) WithPosition(pos int) Card {
	c.Position = pos
	return c
}

// Overdue reports whether the card has a due date in the past relative to now.
func (c Card) Overdue(now time.Time) bool {
	return c.DueDate != nil && c.DueDate.Before(now)
}

// Validate checks that the card is well-formed enough to persist.
func (c Card) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.ColumnID, validation.Required),
		validation.Field(&c.Title, validation.Required, validation.Length(1, 500)),
		validation.Field(&c.Position, validation.Min(0)),
		validation.Field(&c.Priority, validation.In(
			PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical,
		)),
	)
}
