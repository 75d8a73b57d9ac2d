// Package contracts/dragdrop defines the boundary with the visual drag
// library. The core receives one event per completed gesture and must be
// agnostic to which library produced it.
package contracts

// DragItemType identifies what kind of entity a gesture moves.
type DragItemType string

const (
	DragItemCard   DragItemType = "card"
	DragItemColumn DragItemType = "column"
	DragItemBoard  DragItemType = "board"
)

// DropEvent is what the visual layer reports when a drag gesture ends over a
// valid target. Container ids are column ids for card gestures and board ids
// for column gestures. Indexes are zero-based positions within the
// destination container; out-of-range indexes are clamped by the consumer.
type DropEvent struct {
	DraggedID              string       `json:"draggedId"`
	Type                   DragItemType `json:"type"`
	SourceContainerID      string       `json:"sourceContainerId"`
	DestinationContainerID string       `json:"destinationContainerId"`
	SourceIndex            int          `json:"sourceIndex"`
	DestinationIndex       int          `json:"destinationIndex"`
}

// DropHandler consumes drop events. Implementations reorder the full,
// position-sorted partition (never a filtered view), renumber positions to a
// contiguous run from zero, and persist the result as one batch. A drop
// without a preceding pickup is ignored, not an error.
type DropHandler interface {
	HandleDropEvent(ev DropEvent) error
}
