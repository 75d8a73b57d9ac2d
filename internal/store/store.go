// Package store holds the in-memory entity stores for boards, columns,
// cards, and labels. Each store owns the authoritative in-memory collection
// for its entity type, mutates it optimistically under a mutex, and persists
// changes through the storage service with a debounced write-behind: rapid
// updates coalesce into one bulk write carrying the records' state at flush
// time. Deletions persist immediately and cancel any pending write for the
// same id so a queued save can never resurrect a deleted record, and they
// cascade downward through the ownership chain (board -> columns -> cards,
// board -> labels).
package store

import (
	"time"

	"github.com/nhle/taskboard/internal/model"
)

// BoardUpdate selects the board fields to merge in an update. Nil fields are
// left untouched.
type BoardUpdate struct {
	Title           *string
	Description     *string
	ColumnOrder     *[]string
	Starred         *bool
	BackgroundColor *string
	Archived        *bool
}

// ColumnUpdate selects the column fields to merge in an update.
type ColumnUpdate struct {
	Title     *string
	CardOrder *[]string
	Position  *int
	Color     *string

	// CardLimit sets the WIP cap; ClearCardLimit removes it.
	CardLimit      *int
	ClearCardLimit bool
}

// CardUpdate selects the card fields to merge in an update.
type CardUpdate struct {
	ColumnID    *string
	Title       *string
	Description *string
	Position    *int
	Priority    *model.Priority
	Labels      *[]model.CardLabel
	Tags        *[]string

	// DueDate sets the due date; ClearDueDate removes it.
	DueDate      *time.Time
	ClearDueDate bool
}

// LabelUpdate selects the label fields to merge in an update.
type LabelUpdate struct {
	Name  *string
	Color *string
}

// BoardChange pairs a board id with the fields to merge, one entry of a
// batch update.
type BoardChange struct {
	ID     string
	Fields BoardUpdate
}

// ColumnChange pairs a column id with the fields to merge.
type ColumnChange struct {
	ID     string
	Fields ColumnUpdate
}

// CardChange pairs a card id with the fields to merge.
type CardChange struct {
	ID     string
	Fields CardUpdate
}

// touch returns the later of now and prev, keeping UpdatedAt monotonically
// non-decreasing across mutations even under clock adjustments.
func touch(prev time.Time) time.Time {
	now := time.Now().UTC()
	if now.Before(prev) {
		return prev
	}
	return now
}
