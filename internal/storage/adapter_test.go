package storage

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/taskboard/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// openAdapters initializes one adapter per backend so the contract tests
// below run against both.
func openAdapters(t *testing.T) map[string]Adapter {
	t.Helper()

	adapters := map[string]Adapter{
		"sqlite": NewSQLiteAdapter(":memory:", testLogger()),
		"kv":     NewKVAdapter(t.TempDir(), "testboard", testLogger()),
	}
	for name, a := range adapters {
		require.NoError(t, a.Init(context.Background()), "init %s", name)
		t.Cleanup(func() { _ = a.Close() })
	}
	return adapters
}

func testBoard(id, title string) model.Board {
	now := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	return model.Board{ID: id, Title: title, CreatedAt: now, UpdatedAt: now}
}

func testColumn(id, boardID string, position int) model.Column {
	now := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	return model.Column{ID: id, BoardID: boardID, Title: "col " + id, Position: position, CreatedAt: now, UpdatedAt: now}
}

func testCard(id, columnID string, position int) model.Card {
	now := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	return model.Card{ID: id, ColumnID: columnID, Title: "card " + id, Position: position, Priority: model.PriorityMedium, CreatedAt: now, UpdatedAt: now}
}

func TestAdapterSaveAndGet(t *testing.T) {
	ctx := context.Background()
	for name, a := range openAdapters(t) {
		t.Run(name, func(t *testing.T) {
			board := testBoard("b1", "Launch Plan")
			require.NoError(t, a.Save(ctx, CollectionBoards, board))

			raw, err := a.Get(ctx, CollectionBoards, "b1")
			require.NoError(t, err)

			var got model.Board
			require.NoError(t, json.Unmarshal(raw, &got))
			assert.Equal(t, board.ID, got.ID)
			assert.Equal(t, board.Title, got.Title)
			assert.True(t, board.CreatedAt.Equal(got.CreatedAt))
		})
	}
}

func TestAdapterSaveOverwrites(t *testing.T) {
	ctx := context.Background()
	for name, a := range openAdapters(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, a.Save(ctx, CollectionBoards, testBoard("b1", "first")))
			require.NoError(t, a.Save(ctx, CollectionBoards, testBoard("b1", "second")))

			raw, err := a.Get(ctx, CollectionBoards, "b1")
			require.NoError(t, err)

			var got model.Board
			require.NoError(t, json.Unmarshal(raw, &got))
			assert.Equal(t, "second", got.Title)

			all, err := a.GetAll(ctx, CollectionBoards, nil)
			require.NoError(t, err)
			assert.Len(t, all, 1)
		})
	}
}

func TestAdapterGetMissing(t *testing.T) {
	ctx := context.Background()
	for name, a := range openAdapters(t) {
		t.Run(name, func(t *testing.T) {
			_, err := a.Get(ctx, CollectionBoards, "nope")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestAdapterSaveWithoutID(t *testing.T) {
	ctx := context.Background()
	for name, a := range openAdapters(t) {
		t.Run(name, func(t *testing.T) {
			err := a.Save(ctx, CollectionBoards, model.Board{Title: "no id"})
			assert.ErrorIs(t, err, ErrMissingID)
		})
	}
}

func TestAdapterUnknownCollection(t *testing.T) {
	ctx := context.Background()
	for name, a := range openAdapters(t) {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, a.Save(ctx, "widgets", testBoard("b1", "x")), ErrUnknownCollection)

			_, err := a.Get(ctx, "widgets", "b1")
			assert.ErrorIs(t, err, ErrUnknownCollection)

			_, err = a.GetAll(ctx, "widgets", nil)
			assert.ErrorIs(t, err, ErrUnknownCollection)

			assert.ErrorIs(t, a.Delete(ctx, "widgets", "b1"), ErrUnknownCollection)
			assert.ErrorIs(t, a.Clear(ctx, "widgets"), ErrUnknownCollection)
		})
	}
}

func TestAdapterDelete(t *testing.T) {
	ctx := context.Background()
	for name, a := range openAdapters(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, a.Save(ctx, CollectionCards, testCard("c1", "col1", 0)))
			require.NoError(t, a.Delete(ctx, CollectionCards, "c1"))

			_, err := a.Get(ctx, CollectionCards, "c1")
			assert.ErrorIs(t, err, ErrNotFound)

			// Deleting an id that was never there is not an error.
			assert.NoError(t, a.Delete(ctx, CollectionCards, "ghost"))
		})
	}
}

func TestAdapterGetAllFilter(t *testing.T) {
	ctx := context.Background()
	for name, a := range openAdapters(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, a.Save(ctx, CollectionColumns, testColumn("col1", "b1", 0)))
			require.NoError(t, a.Save(ctx, CollectionColumns, testColumn("col2", "b1", 1)))
			require.NoError(t, a.Save(ctx, CollectionColumns, testColumn("col3", "b2", 0)))

			all, err := a.GetAll(ctx, CollectionColumns, nil)
			require.NoError(t, err)
			assert.Len(t, all, 3)

			filtered, err := a.GetAll(ctx, CollectionColumns, Filter{"boardId": "b1"})
			require.NoError(t, err)
			require.Len(t, filtered, 2)
			for _, raw := range filtered {
				var col model.Column
				require.NoError(t, json.Unmarshal(raw, &col))
				assert.Equal(t, "b1", col.BoardID)
			}

			none, err := a.GetAll(ctx, CollectionColumns, Filter{"boardId": "b9"})
			require.NoError(t, err)
			assert.Empty(t, none)
		})
	}
}

func TestAdapterBulkSave(t *testing.T) {
	ctx := context.Background()
	for name, a := range openAdapters(t) {
		t.Run(name, func(t *testing.T) {
			recs := []Record{
				testCard("c1", "col1", 0),
				testCard("c2", "col1", 1),
				testCard("c3", "col2", 0),
			}
			require.NoError(t, a.BulkSave(ctx, CollectionCards, recs))

			all, err := a.GetAll(ctx, CollectionCards, nil)
			require.NoError(t, err)
			assert.Len(t, all, 3)

			// An empty batch is a no-op.
			assert.NoError(t, a.BulkSave(ctx, CollectionCards, nil))
		})
	}
}

func TestAdapterBulkSaveAtomic(t *testing.T) {
	ctx := context.Background()
	for name, a := range openAdapters(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, a.Save(ctx, CollectionCards, testCard("c1", "col1", 0)))

			batch := []Record{
				testCard("c2", "col1", 1),
				model.Card{Title: "no id"},
			}
			require.ErrorIs(t, a.BulkSave(ctx, CollectionCards, batch), ErrMissingID)

			// The failed batch must not be partially visible.
			all, err := a.GetAll(ctx, CollectionCards, nil)
			require.NoError(t, err)
			require.Len(t, all, 1)

			var got model.Card
			require.NoError(t, json.Unmarshal(all[0], &got))
			assert.Equal(t, "c1", got.ID)
		})
	}
}

func TestAdapterClear(t *testing.T) {
	ctx := context.Background()
	for name, a := range openAdapters(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, a.Save(ctx, CollectionCards, testCard("c1", "col1", 0)))
			require.NoError(t, a.Save(ctx, CollectionBoards, testBoard("b1", "stays")))

			require.NoError(t, a.Clear(ctx, CollectionCards))

			cards, err := a.GetAll(ctx, CollectionCards, nil)
			require.NoError(t, err)
			assert.Empty(t, cards)

			// Other collections are untouched.
			boards, err := a.GetAll(ctx, CollectionBoards, nil)
			require.NoError(t, err)
			assert.Len(t, boards, 1)
		})
	}
}

func TestAdapterSettingsKeyedByName(t *testing.T) {
	ctx := context.Background()
	for name, a := range openAdapters(t) {
		t.Run(name, func(t *testing.T) {
			setting := model.NewStringSetting(model.SettingTheme, "dark")
			require.NoError(t, a.Save(ctx, CollectionSettings, setting))

			raw, err := a.Get(ctx, CollectionSettings, model.SettingTheme)
			require.NoError(t, err)

			var got model.Setting
			require.NoError(t, json.Unmarshal(raw, &got))
			assert.Equal(t, model.SettingTheme, got.Key)
			assert.Equal(t, "dark", got.StringValue())
		})
	}
}
