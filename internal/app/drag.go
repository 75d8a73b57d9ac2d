package app

import (
	"context"
	"fmt"

	"github.com/nhle/taskboard/internal/drag"
	"github.com/nhle/taskboard/internal/model"
	"github.com/nhle/taskboard/internal/order"
	"github.com/nhle/taskboard/internal/storage"
	"github.com/nhle/taskboard/internal/store"
)

// CompleteDrop routes a finished gesture to the matching reorder. The drop
// subscriber loop calls it for every descriptor the coordinator emits; a
// page-level handler may also call it directly.
func (a *App) CompleteDrop(ctx context.Context, drop drag.Drop) error {
	switch drop.Type {
	case drag.TypeCard:
		return a.CompleteCardDrag(ctx, drop)
	case drag.TypeColumn:
		return a.CompleteColumnDrag(ctx, drop)
	default:
		// Boards are ordered by star and recency, not by position; a board
		// gesture has nothing to reorder.
		return fmt.Errorf("completing drop: no reorder for type %q", drop.Type)
	}
}

// CompleteCardDrag applies a dropped card. Same column: reorder the full
// partition and renumber. Different columns: move across the two full
// partitions, re-parent the card, and renumber both independently. Either
// way the result lands as one batch update covering the moved card and every
// sibling whose position shifted, so the debouncer coalesces the gesture
// into a single write.
//
// The source column comes from the store's copy of the card, not from the
// descriptor: the authoritative state may have moved on since the pickup.
func (a *App) CompleteCardDrag(ctx context.Context, drop drag.Drop) error {
	card, ok := a.Cards.Get(drop.ItemID)
	if !ok {
		return fmt.Errorf("completing card drop %s: %w", drop.ItemID, storage.ErrNotFound)
	}

	if drop.DestinationID == "" || drop.DestinationID == card.ColumnID {
		return a.reorderCard(card.ColumnID, drop.ItemID, drop.DestinationIndex)
	}
	return a.moveCard(drop.ItemID, card.ColumnID, drop.DestinationID, drop.DestinationIndex)
}

// CompleteColumnDrag applies a dropped column within its board. Cross-board
// column moves are rejected; a column's cards reference it by id and
// re-parenting them wholesale is not a gesture-sized operation.
func (a *App) CompleteColumnDrag(ctx context.Context, drop drag.Drop) error {
	column, ok := a.Columns.Get(drop.ItemID)
	if !ok {
		return fmt.Errorf("completing column drop %s: %w", drop.ItemID, storage.ErrNotFound)
	}
	if drop.DestinationID != "" && drop.DestinationID != column.BoardID {
		return fmt.Errorf("completing column drop %s: cross-board moves are not supported", drop.ItemID)
	}

	columns := a.Columns.ForBoard(column.BoardID)
	from := indexOfColumn(columns, drop.ItemID)
	if from < 0 {
		return fmt.Errorf("completing column drop %s: %w", drop.ItemID, storage.ErrNotFound)
	}
	to := clamp(drop.DestinationIndex, 0, len(columns)-1)

	reordered := order.Renumber(order.Reorder(columns, from, to))
	changes := columnPositionChanges(columns, reordered)
	if len(changes) == 0 {
		return nil
	}
	if err := a.Columns.BatchUpdate(changes); err != nil {
		return fmt.Errorf("completing column drop %s: %w", drop.ItemID, err)
	}
	a.refreshColumnOrder(column.BoardID)
	return nil
}

// reorderCard moves a card to a new index within its own column. The whole
// sorted partition is the working set, so positions of cards outside any
// current view filter stay correct.
func (a *App) reorderCard(columnID, cardID string, toIndex int) error {
	cards := a.Cards.InColumn(columnID)
	from := indexOfCard(cards, cardID)
	if from < 0 {
		return fmt.Errorf("reordering card %s: %w", cardID, storage.ErrNotFound)
	}
	to := clamp(toIndex, 0, len(cards)-1)

	reordered := order.Renumber(order.Reorder(cards, from, to))
	changes := cardPositionChanges(positionsByID(cards), reordered, "")
	if len(changes) == 0 {
		return nil
	}
	if err := a.Cards.BatchUpdate(changes); err != nil {
		return fmt.Errorf("reordering card %s: %w", cardID, err)
	}
	a.refreshCardOrder(columnID)
	return nil
}

// moveCard transfers a card between two columns: remove from the source
// partition, insert into the destination at the drop index, re-parent, and
// renumber both partitions from zero.
func (a *App) moveCard(cardID, srcColumnID, dstColumnID string, toIndex int) error {
	if _, ok := a.Columns.Get(dstColumnID); !ok {
		return fmt.Errorf("moving card %s: column %s: %w", cardID, dstColumnID, storage.ErrNotFound)
	}

	src := a.Cards.InColumn(srcColumnID)
	dst := a.Cards.InColumn(dstColumnID)
	from := indexOfCard(src, cardID)
	if from < 0 {
		return fmt.Errorf("moving card %s: %w", cardID, storage.ErrNotFound)
	}
	to := clamp(toIndex, 0, len(dst)) // == len appends at the end

	oldPos := positionsByID(src)
	for id, pos := range positionsByID(dst) {
		oldPos[id] = pos
	}

	newSrc, newDst := order.Move(src, dst, from, to)
	for i := range newDst {
		if newDst[i].ID == cardID {
			newDst[i].ColumnID = dstColumnID
		}
	}
	newSrc = order.Renumber(newSrc)
	newDst = order.Renumber(newDst)

	changes := cardPositionChanges(oldPos, newSrc, "")
	changes = append(changes, cardPositionChanges(oldPos, newDst, cardID)...)
	if len(changes) == 0 {
		return nil
	}
	if err := a.Cards.BatchUpdate(changes); err != nil {
		return fmt.Errorf("moving card %s: %w", cardID, err)
	}
	a.refreshCardOrder(srcColumnID)
	a.refreshCardOrder(dstColumnID)
	return nil
}

// columnPositionChanges diffs a renumbered partition against the previous
// one by id and emits a change per shifted column.
func columnPositionChanges(before, after []model.Column) []store.ColumnChange {
	oldPos := make(map[string]int, len(before))
	for _, col := range before {
		oldPos[col.ID] = col.Position
	}

	var changes []store.ColumnChange
	for _, col := range after {
		if old, ok := oldPos[col.ID]; ok && old == col.Position {
			continue
		}
		pos := col.Position
		changes = append(changes, store.ColumnChange{ID: col.ID, Fields: store.ColumnUpdate{Position: &pos}})
	}
	return changes
}

// cardPositionChanges diffs a renumbered partition against the old positions
// and emits a change per shifted card. movedID, when present in the
// partition, is always included and additionally carries its new column.
func cardPositionChanges(oldPos map[string]int, after []model.Card, movedID string) []store.CardChange {
	var changes []store.CardChange
	for _, card := range after {
		moved := card.ID == movedID
		if old, ok := oldPos[card.ID]; ok && old == card.Position && !moved {
			continue
		}
		pos := card.Position
		fields := store.CardUpdate{Position: &pos}
		if moved {
			columnID := card.ColumnID
			fields.ColumnID = &columnID
		}
		changes = append(changes, store.CardChange{ID: card.ID, Fields: fields})
	}
	return changes
}

func positionsByID(cards []model.Card) map[string]int {
	out := make(map[string]int, len(cards))
	for _, card := range cards {
		out[card.ID] = card.Position
	}
	return out
}

func indexOfCard(cards []model.Card, id string) int {
	for i, card := range cards {
		if card.ID == id {
			return i
		}
	}
	return -1
}

func indexOfColumn(columns []model.Column, id string) int {
	for i, col := range columns {
		if col.ID == id {
			return i
		}
	}
	return -1
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
