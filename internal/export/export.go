// Package export serializes a board with everything it owns into one
// versioned document and loads such documents back. The document is the
// backup and transfer format: it round-trips every persisted field and can
// be imported into a different install, or alongside its source board with
// fresh ids.
package export

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nhle/taskboard/internal/model"
	"github.com/nhle/taskboard/internal/order"
	"github.com/nhle/taskboard/internal/storage"
)

// Version is the current document format version. Importers reject documents
// written by a newer format.
const Version = 1

// BoardExport is a self-contained snapshot of one board: the board record,
// its columns and cards, and its label definitions.
type BoardExport struct {
	Version    int            `json:"version"`
	ExportedAt time.Time      `json:"exportedAt"`
	Board      model.Board    `json:"board"`
	Columns    []model.Column `json:"columns"`
	Cards      []model.Card   `json:"cards"`
	Labels     []model.Label  `json:"labels,omitempty"`
}

// ImportOptions controls how a document is brought into storage.
type ImportOptions struct {
	// FreshIDs remaps every id in the document, so it can be imported next
	// to the board it was exported from.
	FreshIDs bool
}

// Export reads a board and everything it owns from storage. Columns come out
// sorted by position, cards grouped per column in position order, fetched in
// parallel through the columnId index.
func Export(ctx context.Context, svc *storage.Service, boardID string) (BoardExport, error) {
	board, err := storage.GetAs[model.Board](ctx, svc, storage.CollectionBoards, boardID)
	if err != nil {
		return BoardExport{}, fmt.Errorf("exporting board %s: %w", boardID, err)
	}

	columns, err := storage.GetAllAs[model.Column](ctx, svc, storage.CollectionColumns, storage.Filter{"boardId": boardID})
	if err != nil {
		return BoardExport{}, fmt.Errorf("exporting board %s: %w", boardID, err)
	}
	slices.SortFunc(columns, func(a, b model.Column) int { return a.Position - b.Position })

	labels, err := storage.GetAllAs[model.Label](ctx, svc, storage.CollectionLabels, storage.Filter{"boardId": boardID})
	if err != nil {
		return BoardExport{}, fmt.Errorf("exporting board %s: %w", boardID, err)
	}
	slices.SortFunc(labels, func(a, b model.Label) int { return cmp.Compare(a.Name, b.Name) })

	parts := make([][]model.Card, len(columns))
	g, gctx := errgroup.WithContext(ctx)
	for i, col := range columns {
		g.Go(func() error {
			part, err := storage.GetAllAs[model.Card](gctx, svc, storage.CollectionCards, storage.Filter{"columnId": col.ID})
			if err != nil {
				return fmt.Errorf("exporting cards of column %s: %w", col.ID, err)
			}
			slices.SortFunc(part, func(a, b model.Card) int { return a.Position - b.Position })
			parts[i] = part
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return BoardExport{}, fmt.Errorf("exporting board %s: %w", boardID, err)
	}

	var cards []model.Card
	for _, part := range parts {
		cards = append(cards, part...)
	}

	return BoardExport{
		Version:    Version,
		ExportedAt: time.Now().UTC(),
		Board:      board,
		Columns:    columns,
		Cards:      cards,
		Labels:     labels,
	}, nil
}

// Validate checks the document's version, each record's own constraints, and
// referential integrity: columns and labels must belong to the document's
// board, cards to one of the document's columns. Card label entries are
// denormalized and intentionally not cross-checked against Labels.
func (e BoardExport) Validate() error {
	if err := validation.ValidateStruct(&e,
		validation.Field(&e.Version, validation.Required, validation.In(Version)),
	); err != nil {
		return fmt.Errorf("validating export: %w", err)
	}

	if e.Board.ID == "" {
		return fmt.Errorf("validating export: board has no id")
	}
	if err := e.Board.Validate(); err != nil {
		return fmt.Errorf("validating export: board: %w", err)
	}

	columns := make(map[string]struct{}, len(e.Columns))
	for _, col := range e.Columns {
		if col.ID == "" {
			return fmt.Errorf("validating export: column %q has no id", col.Title)
		}
		if col.BoardID != e.Board.ID {
			return fmt.Errorf("validating export: column %s belongs to board %s, not %s", col.ID, col.BoardID, e.Board.ID)
		}
		if err := col.Validate(); err != nil {
			return fmt.Errorf("validating export: column %s: %w", col.ID, err)
		}
		columns[col.ID] = struct{}{}
	}

	for _, card := range e.Cards {
		if card.ID == "" {
			return fmt.Errorf("validating export: card %q has no id", card.Title)
		}
		if _, ok := columns[card.ColumnID]; !ok {
			return fmt.Errorf("validating export: card %s references unknown column %s", card.ID, card.ColumnID)
		}
		if err := card.Validate(); err != nil {
			return fmt.Errorf("validating export: card %s: %w", card.ID, err)
		}
	}

	for _, label := range e.Labels {
		if label.ID == "" {
			return fmt.Errorf("validating export: label %q has no id", label.Name)
		}
		if label.BoardID != e.Board.ID {
			return fmt.Errorf("validating export: label %s belongs to board %s, not %s", label.ID, label.BoardID, e.Board.ID)
		}
		if err := label.Validate(); err != nil {
			return fmt.Errorf("validating export: label %s: %w", label.ID, err)
		}
	}

	return nil
}

// Import validates the document, normalizes positions to contiguous runs,
// and writes everything through the storage service: board first, then
// columns, cards, and labels, so a failure partway leaves at worst a
// board with missing children, never children without a parent. The
// returned board carries the ids actually written.
func Import(ctx context.Context, svc *storage.Service, doc BoardExport, opts ImportOptions) (model.Board, error) {
	if err := doc.Validate(); err != nil {
		return model.Board{}, fmt.Errorf("importing board: %w", err)
	}

	if opts.FreshIDs {
		doc = remapIDs(doc)
	}
	doc = normalize(doc)

	if err := svc.Save(ctx, storage.CollectionBoards, doc.Board); err != nil {
		return model.Board{}, fmt.Errorf("importing board %s: %w", doc.Board.ID, err)
	}
	if err := svc.BulkSave(ctx, storage.CollectionColumns, toRecords(doc.Columns)); err != nil {
		return model.Board{}, fmt.Errorf("importing board %s: %w", doc.Board.ID, err)
	}
	if err := svc.BulkSave(ctx, storage.CollectionCards, toRecords(doc.Cards)); err != nil {
		return model.Board{}, fmt.Errorf("importing board %s: %w", doc.Board.ID, err)
	}
	if err := svc.BulkSave(ctx, storage.CollectionLabels, toRecords(doc.Labels)); err != nil {
		return model.Board{}, fmt.Errorf("importing board %s: %w", doc.Board.ID, err)
	}

	return doc.Board, nil
}

// remapIDs replaces every id in the document and rewrites the references
// between records: card columnIds, denormalized card label entries, and the
// columnOrder/cardOrder hints. Hint entries pointing outside the document
// are dropped rather than carried over dangling.
func remapIDs(doc BoardExport) BoardExport {
	boardID := uuid.New().String()
	columnIDs := make(map[string]string, len(doc.Columns))
	labelIDs := make(map[string]string, len(doc.Labels))

	doc.Board.ID = boardID

	columns := slices.Clone(doc.Columns)
	for i := range columns {
		fresh := uuid.New().String()
		columnIDs[columns[i].ID] = fresh
		columns[i].ID = fresh
		columns[i].BoardID = boardID
	}

	labels := slices.Clone(doc.Labels)
	for i := range labels {
		fresh := uuid.New().String()
		labelIDs[labels[i].ID] = fresh
		labels[i].ID = fresh
		labels[i].BoardID = boardID
	}

	cardIDs := make(map[string]string, len(doc.Cards))
	cards := slices.Clone(doc.Cards)
	for i := range cards {
		fresh := uuid.New().String()
		cardIDs[cards[i].ID] = fresh
		cards[i].ID = fresh
		cards[i].ColumnID = columnIDs[cards[i].ColumnID]
		if len(cards[i].Labels) > 0 {
			entries := slices.Clone(cards[i].Labels)
			for j := range entries {
				if fresh, ok := labelIDs[entries[j].ID]; ok {
					entries[j].ID = fresh
				}
			}
			cards[i].Labels = entries
		}
	}

	doc.Board.ColumnOrder = remapHint(doc.Board.ColumnOrder, columnIDs)
	for i := range columns {
		columns[i].CardOrder = remapHint(columns[i].CardOrder, cardIDs)
	}

	doc.Columns = columns
	doc.Cards = cards
	doc.Labels = labels
	return doc
}

func remapHint(hint []string, ids map[string]string) []string {
	if len(hint) == 0 {
		return nil
	}
	out := make([]string, 0, len(hint))
	for _, old := range hint {
		if fresh, ok := ids[old]; ok {
			out = append(out, fresh)
		}
	}
	return out
}

// normalize sorts columns and per-column cards by their document positions
// and renumbers each partition to a contiguous run, so imported data honors
// the position invariant even if the document was edited by hand.
func normalize(doc BoardExport) BoardExport {
	columns := slices.Clone(doc.Columns)
	slices.SortFunc(columns, func(a, b model.Column) int { return a.Position - b.Position })
	doc.Columns = order.Renumber(columns)

	byColumn := make(map[string][]model.Card, len(doc.Columns))
	for _, card := range doc.Cards {
		byColumn[card.ColumnID] = append(byColumn[card.ColumnID], card)
	}
	cards := make([]model.Card, 0, len(doc.Cards))
	for _, col := range doc.Columns {
		part := byColumn[col.ID]
		slices.SortFunc(part, func(a, b model.Card) int { return a.Position - b.Position })
		cards = append(cards, order.Renumber(part)...)
	}
	doc.Cards = cards
	return doc
}

func toRecords[T storage.Record](items []T) []storage.Record {
	recs := make([]storage.Record, len(items))
	for i, item := range items {
		recs[i] = item
	}
	return recs
}
