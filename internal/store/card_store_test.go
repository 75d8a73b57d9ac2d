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

func newCardStore(t *testing.T, window time.Duration) (*CardStore, *storage.Service, *countingAdapter) {
	t.Helper()

	svc, counting := newTestService(t)
	s := NewCardStore(svc, window, testLogger())
	require.NoError(t, s.Init(context.Background()))
	return s, svc, counting
}

func storedCard(id, columnID string, position int) model.Card {
	now := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	return model.Card{ID: id, ColumnID: columnID, Title: "card " + id, Position: position, CreatedAt: now, UpdatedAt: now}
}

func TestCardStoreAddAppendsToColumn(t *testing.T) {
	s, _, _ := newCardStore(t, longWindow)

	first, err := s.Add(model.Card{ColumnID: "col-1", Title: "first"})
	require.NoError(t, err)
	second, err := s.Add(model.Card{ColumnID: "col-1", Title: "second"})
	require.NoError(t, err)
	elsewhere, err := s.Add(model.Card{ColumnID: "col-2", Title: "elsewhere"})
	require.NoError(t, err)

	assert.NotEmpty(t, first.ID)
	assert.False(t, first.CreatedAt.IsZero())
	assert.False(t, first.UpdatedAt.IsZero())

	// Positions are per column: always the next free slot.
	assert.Equal(t, 0, first.Position)
	assert.Equal(t, 1, second.Position)
	assert.Equal(t, 0, elsewhere.Position)
}

func TestCardStoreAddValidates(t *testing.T) {
	s, _, _ := newCardStore(t, longWindow)

	_, err := s.Add(model.Card{ColumnID: "col-1"}) // no title
	require.Error(t, err)
	assert.Empty(t, s.Cards())
}

func TestCardStoreSaveThenGet(t *testing.T) {
	s, svc, _ := newCardStore(t, longWindow)
	ctx := context.Background()

	due := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	card, err := s.Add(model.Card{
		ColumnID:    "col-1",
		Title:       "ship it",
		Description: "the big one",
		Priority:    model.PriorityHigh,
		DueDate:     &due,
		Labels:      []model.CardLabel{{ID: "l1", Name: "Bug", Color: "#FF6B6B"}},
		Tags:        []string{"release"},
	})
	require.NoError(t, err)
	s.Flush()

	got, err := storage.GetAs[model.Card](ctx, svc, storage.CollectionCards, card.ID)
	require.NoError(t, err)
	assert.Equal(t, card.Title, got.Title)
	assert.Equal(t, card.Description, got.Description)
	assert.Equal(t, card.Priority, got.Priority)
	assert.Equal(t, card.Labels, got.Labels)
	assert.Equal(t, card.Tags, got.Tags)
	require.NotNil(t, got.DueDate)
	assert.True(t, due.Equal(*got.DueDate))
}

func TestCardStoreDebounceCoalesces(t *testing.T) {
	s, svc, counting := newCardStore(t, longWindow)
	ctx := context.Background()

	card, err := s.Add(model.Card{ColumnID: "col-1", Title: "draft"})
	require.NoError(t, err)
	s.Flush()
	require.Equal(t, 1, counting.BulkSaveCount())

	// Two rapid updates inside the window reach storage as one write
	// carrying both fields.
	title := "final title"
	_, err = s.Update(card.ID, CardUpdate{Title: &title})
	require.NoError(t, err)
	description := "final description"
	_, err = s.Update(card.ID, CardUpdate{Description: &description})
	require.NoError(t, err)

	s.Flush()
	assert.Equal(t, 2, counting.BulkSaveCount())

	got, err := storage.GetAs[model.Card](ctx, svc, storage.CollectionCards, card.ID)
	require.NoError(t, err)
	assert.Equal(t, "final title", got.Title)
	assert.Equal(t, "final description", got.Description)
}

func TestCardStorePersistsAfterWindow(t *testing.T) {
	s, svc, _ := newCardStore(t, shortWindow)
	ctx := context.Background()

	card, err := s.Add(model.Card{ColumnID: "col-1", Title: "auto"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, err := svc.Get(ctx, storage.CollectionCards, card.ID)
		return err == nil
	}, 2*time.Second, 5*time.Millisecond)
}

func TestCardStoreDeleteBypassesDebounce(t *testing.T) {
	s, svc, counting := newCardStore(t, longWindow)
	ctx := context.Background()

	card, err := s.Add(model.Card{ColumnID: "col-1", Title: "doomed"})
	require.NoError(t, err)
	s.Flush()

	// Leave an edit pending, then delete before the window fires.
	title := "never persisted"
	_, err = s.Update(card.ID, CardUpdate{Title: &title})
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, card.ID))
	assert.Equal(t, 1, counting.DeleteCount())

	// The cancelled edit must not resurrect the record.
	s.Flush()
	_, err = svc.Get(ctx, storage.CollectionCards, card.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, ok := s.Get(card.ID)
	assert.False(t, ok)
}

func TestCardStoreDeleteIdempotent(t *testing.T) {
	s, _, _ := newCardStore(t, longWindow)
	ctx := context.Background()

	card, err := s.Add(model.Card{ColumnID: "col-1", Title: "once"})
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, card.ID))
	assert.NoError(t, s.Delete(ctx, card.ID))
	assert.NoError(t, s.Delete(ctx, "never-existed"))
}

func TestCardStoreUpdateUnknown(t *testing.T) {
	s, _, _ := newCardStore(t, longWindow)

	title := "x"
	_, err := s.Update("ghost", CardUpdate{Title: &title})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCardStoreUpdateValidationLeavesState(t *testing.T) {
	s, _, _ := newCardStore(t, longWindow)

	card, err := s.Add(model.Card{ColumnID: "col-1", Title: "keep me"})
	require.NoError(t, err)

	empty := ""
	_, err = s.Update(card.ID, CardUpdate{Title: &empty})
	require.Error(t, err)

	got, ok := s.Get(card.ID)
	require.True(t, ok)
	assert.Equal(t, "keep me", got.Title)
}

func TestCardStoreBatchUpdateAllOrNothing(t *testing.T) {
	s, _, _ := newCardStore(t, longWindow)

	card, err := s.Add(model.Card{ColumnID: "col-1", Title: "original"})
	require.NoError(t, err)

	title := "changed"
	err = s.BatchUpdate([]CardChange{
		{ID: card.ID, Fields: CardUpdate{Title: &title}},
		{ID: "ghost", Fields: CardUpdate{Title: &title}},
	})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	got, ok := s.Get(card.ID)
	require.True(t, ok)
	assert.Equal(t, "original", got.Title)
}

func TestCardStoreOpsRequireInit(t *testing.T) {
	svc, _ := newTestService(t)
	s := NewCardStore(svc, longWindow, testLogger())

	_, err := s.Add(model.Card{ColumnID: "col-1", Title: "x"})
	assert.ErrorIs(t, err, storage.ErrNotInitialized)

	title := "x"
	_, err = s.Update("id", CardUpdate{Title: &title})
	assert.ErrorIs(t, err, storage.ErrNotInitialized)

	assert.ErrorIs(t, s.BatchUpdate(nil), storage.ErrNotInitialized)
	assert.ErrorIs(t, s.Delete(context.Background(), "id"), storage.ErrNotInitialized)
}

func TestCardStoreLoadForColumns(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.BulkSave(ctx, storage.CollectionCards, []storage.Record{
		storedCard("c1", "col-1", 1),
		storedCard("c2", "col-1", 0),
		storedCard("c3", "col-2", 0),
		storedCard("c4", "col-9", 0),
	}))

	s := NewCardStore(svc, longWindow, testLogger())
	require.NoError(t, s.LoadForColumns(ctx, []string{"col-1", "col-2"}))

	assert.True(t, s.Initialized())
	assert.Len(t, s.Cards(), 3) // col-9 stays outside the scope

	inColumn := s.InColumn("col-1")
	require.Len(t, inColumn, 2)
	assert.Equal(t, "c2", inColumn[0].ID) // sorted by position
	assert.Equal(t, "c1", inColumn[1].ID)
}

func TestCardStoreReloadKeepsScope(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Save(ctx, storage.CollectionCards, storedCard("c1", "col-1", 0)))

	s := NewCardStore(svc, longWindow, testLogger())
	require.NoError(t, s.Load(ctx, "col-1"))
	require.Len(t, s.Cards(), 1)

	// Another writer adds to the scoped column and elsewhere.
	require.NoError(t, svc.Save(ctx, storage.CollectionCards, storedCard("c2", "col-1", 1)))
	require.NoError(t, svc.Save(ctx, storage.CollectionCards, storedCard("c3", "col-2", 0)))

	require.NoError(t, s.Reload(ctx))
	assert.Len(t, s.Cards(), 2)
	assert.Empty(t, s.InColumn("col-2"))
}

func TestCardStoreDeleteByColumnWorksUninitialized(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Save(ctx, storage.CollectionCards, storedCard("c1", "col-1", 0)))
	require.NoError(t, svc.Save(ctx, storage.CollectionCards, storedCard("c2", "col-2", 0)))

	s := NewCardStore(svc, longWindow, testLogger())
	require.NoError(t, s.DeleteByColumn(ctx, "col-1"))

	_, err := svc.Get(ctx, storage.CollectionCards, "c1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = svc.Get(ctx, storage.CollectionCards, "c2")
	assert.NoError(t, err)
}

func TestCardStoreRetagLabel(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	bug := model.CardLabel{ID: "l1", Name: "Bug", Color: "#FF6B6B"}
	inScope := storedCard("c1", "col-1", 0)
	inScope.Labels = []model.CardLabel{bug}
	outside := storedCard("c2", "col-2", 0)
	outside.Labels = []model.CardLabel{bug}
	untouched := storedCard("c3", "col-2", 1)
	require.NoError(t, svc.BulkSave(ctx, storage.CollectionCards, []storage.Record{inScope, outside, untouched}))

	s := NewCardStore(svc, longWindow, testLogger())
	require.NoError(t, s.Load(ctx, "col-1"))

	renamed := model.CardLabel{ID: "l1", Name: "Defect", Color: "#FF6B6B"}
	require.NoError(t, s.RetagLabel(ctx, renamed))

	// The loaded card is patched in memory and flows out on flush.
	got, ok := s.Get("c1")
	require.True(t, ok)
	require.Len(t, got.Labels, 1)
	assert.Equal(t, "Defect", got.Labels[0].Name)

	s.Flush()
	persisted, err := storage.GetAs[model.Card](ctx, svc, storage.CollectionCards, "c1")
	require.NoError(t, err)
	assert.Equal(t, "Defect", persisted.Labels[0].Name)

	// The card outside the loaded scope is rewritten directly.
	stored, err := storage.GetAs[model.Card](ctx, svc, storage.CollectionCards, "c2")
	require.NoError(t, err)
	require.Len(t, stored.Labels, 1)
	assert.Equal(t, "Defect", stored.Labels[0].Name)

	// Cards without the label keep their timestamps.
	plain, err := storage.GetAs[model.Card](ctx, svc, storage.CollectionCards, "c3")
	require.NoError(t, err)
	assert.True(t, plain.UpdatedAt.Equal(untouched.UpdatedAt))
}

func TestCardStoreStripLabel(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	bug := model.CardLabel{ID: "l1", Name: "Bug", Color: "#FF6B6B"}
	urgent := model.CardLabel{ID: "l2", Name: "Urgent", Color: "#FFA94D"}
	inScope := storedCard("c1", "col-1", 0)
	inScope.Labels = []model.CardLabel{bug, urgent}
	outside := storedCard("c2", "col-2", 0)
	outside.Labels = []model.CardLabel{bug}
	require.NoError(t, svc.BulkSave(ctx, storage.CollectionCards, []storage.Record{inScope, outside}))

	s := NewCardStore(svc, longWindow, testLogger())
	require.NoError(t, s.Load(ctx, "col-1"))

	require.NoError(t, s.StripLabel(ctx, "l1"))

	got, ok := s.Get("c1")
	require.True(t, ok)
	require.Len(t, got.Labels, 1)
	assert.Equal(t, "l2", got.Labels[0].ID)

	stored, err := storage.GetAs[model.Card](ctx, svc, storage.CollectionCards, "c2")
	require.NoError(t, err)
	assert.Empty(t, stored.Labels)
}
