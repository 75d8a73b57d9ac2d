package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nhle/taskboard/internal/crossref"
	"github.com/nhle/taskboard/internal/export"
	"github.com/nhle/taskboard/internal/model"
	"github.com/nhle/taskboard/internal/order"
	"github.com/nhle/taskboard/internal/storage"
	"github.com/nhle/taskboard/internal/store"
	"github.com/nhle/taskboard/internal/theme"
)

// ErrColumnAtLimit rejects a card creation in a column that reached its
// configured card limit. Moving existing cards in is still allowed; the
// limit guards new work entering the column, not rebalancing.
var ErrColumnAtLimit = errors.New("column at card limit")

// CreateBoard makes an empty board with the default background.
func (a *App) CreateBoard(ctx context.Context, title, description string) (model.Board, error) {
	board, err := a.Boards.Add(model.Board{
		Title:           title,
		Description:     description,
		BackgroundColor: theme.DefaultBoardBackground,
	})
	if err != nil {
		return model.Board{}, fmt.Errorf("creating board: %w", err)
	}
	return board, nil
}

// CreateColumn appends a column to the board, colored by creation order, and
// refreshes the board's columnOrder hint.
func (a *App) CreateColumn(ctx context.Context, boardID, title string) (model.Column, error) {
	column, err := a.Columns.Add(model.Column{
		BoardID: boardID,
		Title:   title,
		Color:   theme.ColumnColor(len(a.Columns.ForBoard(boardID))),
	})
	if err != nil {
		return model.Column{}, fmt.Errorf("creating column: %w", err)
	}
	a.Cards.ExtendScope(column.ID)
	a.refreshColumnOrder(boardID)
	return column, nil
}

// CreateCard appends a card to a column, honoring the column's card limit.
// Inline #tags in the title and description become the card's tags, and tags
// naming one of the board's labels attach that label.
func (a *App) CreateCard(ctx context.Context, columnID, title, description string) (model.Card, error) {
	column, ok := a.Columns.Get(columnID)
	if !ok {
		return model.Card{}, fmt.Errorf("creating card: column %s: %w", columnID, storage.ErrNotFound)
	}
	if column.AtLimit(len(a.Cards.InColumn(columnID))) {
		return model.Card{}, fmt.Errorf("creating card in column %s: %w", columnID, ErrColumnAtLimit)
	}

	card := model.Card{
		ColumnID:    columnID,
		Title:       title,
		Description: description,
		Tags:        crossref.ExtractTags(title + " " + description),
	}

	byName := make(map[string]model.Label)
	known := make(map[string]bool)
	for _, label := range a.Labels.ForBoard(column.BoardID) {
		name := strings.ToLower(label.Name)
		byName[name] = label
		known[name] = true
	}
	for _, tag := range crossref.MatchLabels(title, description, known) {
		card.Labels = append(card.Labels, byName[tag].AsCardLabel())
	}

	card, err := a.Cards.Add(card)
	if err != nil {
		return model.Card{}, fmt.Errorf("creating card: %w", err)
	}
	a.refreshCardOrder(columnID)
	return card, nil
}

// CreateLabel defines a board label, colored by creation order.
func (a *App) CreateLabel(ctx context.Context, boardID, name string) (model.Label, error) {
	label, err := a.Labels.Add(model.Label{
		BoardID: boardID,
		Name:    name,
		Color:   theme.LabelColor(len(a.Labels.ForBoard(boardID))),
	})
	if err != nil {
		return model.Label{}, fmt.Errorf("creating label: %w", err)
	}
	return label, nil
}

// DeleteBoard removes the board and everything it owns. When the deleted
// board was open, the session falls back to no board.
func (a *App) DeleteBoard(ctx context.Context, boardID string) error {
	if err := a.Boards.Delete(ctx, boardID); err != nil {
		return err
	}

	a.mu.Lock()
	wasActive := a.activeBoard == boardID
	if wasActive {
		a.activeBoard = ""
	}
	a.mu.Unlock()

	if wasActive {
		if err := a.saveSetting(ctx, model.SettingActiveBoard, ""); err != nil {
			a.log.Warn("clearing active board", slog.String("error", err.Error()))
		}
	}
	return nil
}

// DeleteColumn removes a loaded column and its cards, closes the position
// gap among its siblings, and refreshes the board's columnOrder hint.
// Deleting a column that is not loaded is a no-op; it belongs to another
// board's session.
func (a *App) DeleteColumn(ctx context.Context, columnID string) error {
	column, ok := a.Columns.Get(columnID)
	if !ok {
		return nil
	}
	if err := a.Columns.Delete(ctx, columnID); err != nil {
		return err
	}
	if err := a.renumberColumns(column.BoardID); err != nil {
		return err
	}
	a.refreshColumnOrder(column.BoardID)
	return nil
}

// DeleteCard removes a loaded card, closes the position gap in its column,
// and refreshes the column's cardOrder hint. Deleting a card that is not
// loaded is a no-op.
func (a *App) DeleteCard(ctx context.Context, cardID string) error {
	card, ok := a.Cards.Get(cardID)
	if !ok {
		return nil
	}
	if err := a.Cards.Delete(ctx, cardID); err != nil {
		return err
	}
	if err := a.renumberCards(card.ColumnID); err != nil {
		return err
	}
	a.refreshCardOrder(card.ColumnID)
	return nil
}

// DeleteLabel removes a label definition and strips it from every card.
func (a *App) DeleteLabel(ctx context.Context, labelID string) error {
	return a.Labels.Delete(ctx, labelID)
}

// DuplicateBoard deep-copies a board through the export document with fresh
// ids and a new title, then refreshes the board list. The copy starts
// unstarred with fresh timestamps.
func (a *App) DuplicateBoard(ctx context.Context, boardID string) (model.Board, error) {
	a.flushStores() // the snapshot must see pending edits
	doc, err := export.Export(ctx, a.svc, boardID)
	if err != nil {
		return model.Board{}, fmt.Errorf("duplicating board %s: %w", boardID, err)
	}

	now := time.Now().UTC()
	doc.Board.Title += " (copy)"
	doc.Board.Starred = false
	doc.Board.CreatedAt = now
	doc.Board.UpdatedAt = now

	copied, err := export.Import(ctx, a.svc, doc, export.ImportOptions{FreshIDs: true})
	if err != nil {
		return model.Board{}, fmt.Errorf("duplicating board %s: %w", boardID, err)
	}
	if err := a.Boards.Reload(ctx); err != nil {
		return model.Board{}, fmt.Errorf("duplicating board %s: %w", boardID, err)
	}
	return copied, nil
}

// ExportBoard snapshots a board and everything it owns into a transferable
// document.
func (a *App) ExportBoard(ctx context.Context, boardID string) (export.BoardExport, error) {
	a.flushStores()
	return export.Export(ctx, a.svc, boardID)
}

// ImportBoard loads an exported document into storage and refreshes the
// board list. Pass FreshIDs to import next to the document's source board;
// without it the import restores the original ids.
func (a *App) ImportBoard(ctx context.Context, doc export.BoardExport, opts export.ImportOptions) (model.Board, error) {
	board, err := export.Import(ctx, a.svc, doc, opts)
	if err != nil {
		return model.Board{}, err
	}
	if err := a.Boards.Reload(ctx); err != nil {
		return model.Board{}, fmt.Errorf("importing board %s: %w", board.ID, err)
	}
	return board, nil
}

// renumberColumns closes position gaps in a board's column partition,
// batching only the columns whose position actually changed.
func (a *App) renumberColumns(boardID string) error {
	current := a.Columns.ForBoard(boardID)
	changes := columnPositionChanges(current, order.Renumber(current))
	if len(changes) == 0 {
		return nil
	}
	if err := a.Columns.BatchUpdate(changes); err != nil {
		return fmt.Errorf("renumbering columns of board %s: %w", boardID, err)
	}
	return nil
}

// renumberCards closes position gaps in a column's card partition.
func (a *App) renumberCards(columnID string) error {
	current := a.Cards.InColumn(columnID)
	changes := cardPositionChanges(positionsByID(current), order.Renumber(current), "")
	if len(changes) == 0 {
		return nil
	}
	if err := a.Cards.BatchUpdate(changes); err != nil {
		return fmt.Errorf("renumbering cards of column %s: %w", columnID, err)
	}
	return nil
}

// refreshColumnOrder rewrites the board's columnOrder hint from the
// authoritative positions. Best effort: the hint is denormalized and never
// consulted for ordering, so a failure only logs.
func (a *App) refreshColumnOrder(boardID string) {
	columns := a.Columns.ForBoard(boardID)
	ids := make([]string, len(columns))
	for i, col := range columns {
		ids[i] = col.ID
	}
	if _, err := a.Boards.Update(boardID, store.BoardUpdate{ColumnOrder: &ids}); err != nil {
		a.log.Warn("refreshing column order",
			slog.String("board", boardID),
			slog.String("error", err.Error()))
	}
}

// refreshCardOrder rewrites a column's cardOrder hint; best effort like
// refreshColumnOrder.
func (a *App) refreshCardOrder(columnID string) {
	cards := a.Cards.InColumn(columnID)
	ids := make([]string, len(cards))
	for i, card := range cards {
		ids[i] = card.ID
	}
	if _, err := a.Columns.Update(columnID, store.ColumnUpdate{CardOrder: &ids}); err != nil {
		a.log.Warn("refreshing card order",
			slog.String("column", columnID),
			slog.String("error", err.Error()))
	}
}
