package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/taskboard/internal/model"
	"github.com/nhle/taskboard/internal/storage"
)

func newColumnFixture(t *testing.T) (*ColumnStore, *CardStore, *storage.Service) {
	t.Helper()

	svc, _ := newTestService(t)
	cards := NewCardStore(svc, longWindow, testLogger())
	columns := NewColumnStore(svc, cards, longWindow, testLogger())
	ctx := context.Background()
	require.NoError(t, cards.Init(ctx))
	require.NoError(t, columns.Init(ctx))
	return columns, cards, svc
}

func storedColumn(id, boardID string, position int) model.Column {
	now := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	return model.Column{ID: id, BoardID: boardID, Title: "col " + id, Position: position, CreatedAt: now, UpdatedAt: now}
}

func TestColumnStoreAddAppendsPerBoard(t *testing.T) {
	columns, _, _ := newColumnFixture(t)

	first, err := columns.Add(model.Column{BoardID: "b1", Title: "Todo"})
	require.NoError(t, err)
	second, err := columns.Add(model.Column{BoardID: "b1", Title: "Doing"})
	require.NoError(t, err)
	other, err := columns.Add(model.Column{BoardID: "b2", Title: "Inbox"})
	require.NoError(t, err)

	assert.Equal(t, 0, first.Position)
	assert.Equal(t, 1, second.Position)
	assert.Equal(t, 0, other.Position)
	assert.NotEmpty(t, first.ID)
}

func TestColumnDeleteCascadesCards(t *testing.T) {
	columns, cards, svc := newColumnFixture(t)
	ctx := context.Background()

	doomed, err := columns.Add(model.Column{BoardID: "b1", Title: "Doomed"})
	require.NoError(t, err)
	sibling, err := columns.Add(model.Column{BoardID: "b1", Title: "Sibling"})
	require.NoError(t, err)

	inDoomed, err := cards.Add(model.Card{ColumnID: doomed.ID, Title: "goes away"})
	require.NoError(t, err)
	kept, err := cards.Add(model.Card{ColumnID: sibling.ID, Title: "stays"})
	require.NoError(t, err)
	columns.Flush()
	cards.Flush()

	require.NoError(t, columns.Delete(ctx, doomed.ID))

	// The column is gone from memory and storage.
	_, ok := columns.Get(doomed.ID)
	assert.False(t, ok)
	_, err = svc.Get(ctx, storage.CollectionColumns, doomed.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// Its cards went with it; the sibling's cards are untouched.
	assert.Empty(t, cards.InColumn(doomed.ID))
	_, err = svc.Get(ctx, storage.CollectionCards, inDoomed.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, ok = cards.Get(kept.ID)
	assert.True(t, ok)
	_, err = svc.Get(ctx, storage.CollectionCards, kept.ID)
	assert.NoError(t, err)
}

func TestColumnDeleteCancelsPendingCardWrites(t *testing.T) {
	columns, cards, svc := newColumnFixture(t)
	ctx := context.Background()

	column, err := columns.Add(model.Column{BoardID: "b1", Title: "Busy"})
	require.NoError(t, err)
	card, err := cards.Add(model.Card{ColumnID: column.ID, Title: "in flight"})
	require.NoError(t, err)
	// Neither store flushed: the card exists only in memory.

	require.NoError(t, columns.Delete(ctx, column.ID))

	// A later card flush must not resurrect the cascaded card.
	cards.Flush()
	_, err = svc.Get(ctx, storage.CollectionCards, card.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestColumnDeleteByBoardWorksUninitialized(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Save(ctx, storage.CollectionColumns, storedColumn("col-1", "b1", 0)))
	require.NoError(t, svc.Save(ctx, storage.CollectionColumns, storedColumn("col-2", "b2", 0)))
	require.NoError(t, svc.Save(ctx, storage.CollectionCards, storedCard("c1", "col-1", 0)))

	cards := NewCardStore(svc, longWindow, testLogger())
	columns := NewColumnStore(svc, cards, longWindow, testLogger())

	require.NoError(t, columns.DeleteByBoard(ctx, "b1"))

	_, err := svc.Get(ctx, storage.CollectionColumns, "col-1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = svc.Get(ctx, storage.CollectionCards, "c1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = svc.Get(ctx, storage.CollectionColumns, "col-2")
	assert.NoError(t, err)
}

func TestColumnStoreCardLimitUpdates(t *testing.T) {
	columns, _, _ := newColumnFixture(t)

	column, err := columns.Add(model.Column{BoardID: "b1", Title: "WIP"})
	require.NoError(t, err)
	require.Nil(t, column.CardLimit)

	limit := 3
	column, err = columns.Update(column.ID, ColumnUpdate{CardLimit: &limit})
	require.NoError(t, err)
	require.NotNil(t, column.CardLimit)
	assert.Equal(t, 3, *column.CardLimit)
	assert.True(t, column.AtLimit(3))
	assert.False(t, column.AtLimit(2))

	column, err = columns.Update(column.ID, ColumnUpdate{ClearCardLimit: true})
	require.NoError(t, err)
	assert.Nil(t, column.CardLimit)
	assert.False(t, column.AtLimit(1000))
}

func TestColumnStoreBatchUpdatePositions(t *testing.T) {
	columns, _, svc := newColumnFixture(t)
	ctx := context.Background()

	a, err := columns.Add(model.Column{BoardID: "b1", Title: "A"})
	require.NoError(t, err)
	b, err := columns.Add(model.Column{BoardID: "b1", Title: "B"})
	require.NoError(t, err)

	p0, p1 := 0, 1
	require.NoError(t, columns.BatchUpdate([]ColumnChange{
		{ID: a.ID, Fields: ColumnUpdate{Position: &p1}},
		{ID: b.ID, Fields: ColumnUpdate{Position: &p0}},
	}))

	got := columns.ForBoard("b1")
	require.Len(t, got, 2)
	assert.Equal(t, b.ID, got[0].ID)
	assert.Equal(t, a.ID, got[1].ID)

	// One flush persists the whole swap.
	columns.Flush()
	stored, err := storage.GetAllAs[model.Column](ctx, svc, storage.CollectionColumns, storage.Filter{"boardId": "b1"})
	require.NoError(t, err)
	byID := make(map[string]int, len(stored))
	for _, col := range stored {
		byID[col.ID] = col.Position
	}
	assert.Equal(t, 1, byID[a.ID])
	assert.Equal(t, 0, byID[b.ID])
}
