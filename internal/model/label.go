package model

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Label is a board-scoped label definition. Cards reference labels through
// CardLabel entries; deleting a board removes its labels with it.
type Label struct {
	ID        string    `json:"id"`
	BoardID   string    `json:"boardId"`
	Name      string    `json:"name"`
	Color     string    `json:"color,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// RecordID returns the label's storage key.
func (l Label) RecordID() string { return l.ID }

// Validate checks that the label is well-formed enough to persist.
func (l Label) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.BoardID, validation.Required),
		validation.Field(&l.Name, validation.Required, validation.Length(1, 100)),
	)
}

// AsCardLabel converts the label into the denormalized form carried on cards.
func (l Label) AsCardLabel() CardLabel {
	return CardLabel{ID: l.ID, Name: l.Name, Color: l.Color}
}
