package store

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/taskboard/internal/model"
	"github.com/nhle/taskboard/internal/storage"
)

// ColumnStore holds the in-memory column collection for the loaded scope and
// persists mutations through the storage service. Deleting a column cascades
// into the card store first, so storage never holds cards of a column that
// is already gone.
type ColumnStore struct {
	svc   *storage.Service
	cards *CardStore
	log   *slog.Logger
	deb   *debouncer

	mu          sync.Mutex
	columns     []model.Column
	boardID     string // scope; empty means the full collection
	loading     bool
	initialized bool
	err         error
}

// NewColumnStore creates a column store that cascades deletions into cards.
func NewColumnStore(svc *storage.Service, cards *CardStore, debounce time.Duration, logger *slog.Logger) *ColumnStore {
	if logger == nil {
		logger = slog.Default()
	}
	s := &ColumnStore{svc: svc, cards: cards, log: logger}
	s.deb = newDebouncer(debounce, s.persistDirty)
	return s
}

// Init loads the full column collection once per store lifetime.
func (s *ColumnStore) Init(ctx context.Context) error {
	s.mu.Lock()
	if s.initialized {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()
	return s.load(ctx, "")
}

// Load replaces the in-memory state with the columns of one board, sorted by
// position.
func (s *ColumnStore) Load(ctx context.Context, boardID string) error {
	return s.load(ctx, boardID)
}

// Reload refreshes the in-memory state from storage, keeping the current
// scope.
func (s *ColumnStore) Reload(ctx context.Context) error {
	s.mu.Lock()
	boardID := s.boardID
	s.mu.Unlock()
	return s.load(ctx, boardID)
}

func (s *ColumnStore) load(ctx context.Context, boardID string) error {
	s.mu.Lock()
	s.loading = true
	s.mu.Unlock()

	var filter storage.Filter
	if boardID != "" {
		filter = storage.Filter{"boardId": boardID}
	}
	columns, err := storage.GetAllAs[model.Column](ctx, s.svc, storage.CollectionColumns, filter)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	if err != nil {
		s.err = fmt.Errorf("loading columns: %w", err)
		return s.err
	}
	sortColumns(columns)
	s.columns = columns
	s.boardID = boardID
	s.initialized = true
	s.err = nil
	return nil
}

// Columns returns a copy of the loaded columns, sorted by position.
func (s *ColumnStore) Columns() []model.Column {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.columns)
}

// ForBoard returns a copy of the loaded columns of one board, sorted by
// position.
func (s *ColumnStore) ForBoard(boardID string) []model.Column {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Column, 0, len(s.columns))
	for _, col := range s.columns {
		if col.BoardID == boardID {
			out = append(out, col)
		}
	}
	return out
}

// Get returns the loaded column with the given id.
func (s *ColumnStore) Get(id string) (model.Column, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := slices.IndexFunc(s.columns, func(c model.Column) bool { return c.ID == id })
	if i < 0 {
		return model.Column{}, false
	}
	return s.columns[i], true
}

// Err returns the most recent persistence failure, or nil when healthy.
func (s *ColumnStore) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Loading reports whether a load is in flight.
func (s *ColumnStore) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Initialized reports whether the store has loaded state.
func (s *ColumnStore) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

// Add appends a column at the end of its board's partition and schedules its
// debounced persist. A fresh id and timestamps are assigned when absent.
func (s *ColumnStore) Add(column model.Column) (model.Column, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return model.Column{}, fmt.Errorf("adding column: %w", storage.ErrNotInitialized)
	}

	if column.ID == "" {
		column.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if column.CreatedAt.IsZero() {
		column.CreatedAt = now
	}
	column.UpdatedAt = touch(column.UpdatedAt)
	column.Position = s.countForBoardLocked(column.BoardID)

	if err := column.Validate(); err != nil {
		return model.Column{}, fmt.Errorf("validating column: %w", err)
	}

	s.columns = append(s.columns, column)
	sortColumns(s.columns)
	s.deb.Schedule(column.ID)
	return column, nil
}

// Update merges fields into the column, bumps UpdatedAt, and schedules its
// debounced persist.
func (s *ColumnStore) Update(id string, fields ColumnUpdate) (model.Column, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return model.Column{}, fmt.Errorf("updating column %s: %w", id, storage.ErrNotInitialized)
	}

	i := slices.IndexFunc(s.columns, func(c model.Column) bool { return c.ID == id })
	if i < 0 {
		return model.Column{}, fmt.Errorf("updating column %s: %w", id, storage.ErrNotFound)
	}

	column := applyColumnUpdate(s.columns[i], fields)
	if err := column.Validate(); err != nil {
		return model.Column{}, fmt.Errorf("validating column %s: %w", id, err)
	}

	s.columns[i] = column
	sortColumns(s.columns)
	s.deb.Schedule(id)
	return column, nil
}

// BatchUpdate applies every merge in one pass under the lock, then schedules
// one debounced persist per changed record. An unknown id or a validation
// failure rejects the whole batch.
func (s *ColumnStore) BatchUpdate(changes []ColumnChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return fmt.Errorf("batch updating columns: %w", storage.ErrNotInitialized)
	}

	merged := make(map[int]model.Column, len(changes))
	for _, ch := range changes {
		i := slices.IndexFunc(s.columns, func(c model.Column) bool { return c.ID == ch.ID })
		if i < 0 {
			return fmt.Errorf("batch updating column %s: %w", ch.ID, storage.ErrNotFound)
		}
		base := s.columns[i]
		if prev, ok := merged[i]; ok {
			base = prev
		}
		column := applyColumnUpdate(base, ch.Fields)
		if err := column.Validate(); err != nil {
			return fmt.Errorf("validating column %s: %w", ch.ID, err)
		}
		merged[i] = column
	}

	ids := make([]string, 0, len(merged))
	for i, column := range merged {
		s.columns[i] = column
		ids = append(ids, column.ID)
	}
	sortColumns(s.columns)
	s.deb.Schedule(ids...)
	return nil
}

// Delete removes a column and every card it contains. Cards go first, so a
// failure partway leaves at worst an empty column, never orphaned cards. The
// removal is persisted immediately, bypassing the debounce window.
func (s *ColumnStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	initialized := s.initialized
	s.mu.Unlock()
	if !initialized {
		return fmt.Errorf("deleting column %s: %w", id, storage.ErrNotInitialized)
	}

	if err := s.cards.DeleteByColumn(ctx, id); err != nil {
		return fmt.Errorf("deleting column %s: %w", id, err)
	}

	s.deb.Cancel(id)
	if err := s.svc.Delete(ctx, storage.CollectionColumns, id); err != nil {
		err = fmt.Errorf("deleting column %s: %w", id, err)
		s.setErr(err)
		return err
	}

	s.mu.Lock()
	s.columns = slices.DeleteFunc(s.columns, func(c model.Column) bool { return c.ID == id })
	s.mu.Unlock()
	return nil
}

// DeleteByBoard removes every column of boardID along with their cards, the
// cascading half of a board deletion. It works on an uninitialized store: a
// cascade may target a board that was never opened.
func (s *ColumnStore) DeleteByBoard(ctx context.Context, boardID string) error {
	stored, err := storage.GetAllAs[model.Column](ctx, s.svc, storage.CollectionColumns, storage.Filter{"boardId": boardID})
	if err != nil {
		err = fmt.Errorf("listing columns of board %s: %w", boardID, err)
		s.setErr(err)
		return err
	}

	ids := make(map[string]struct{}, len(stored))
	for _, c := range stored {
		ids[c.ID] = struct{}{}
	}
	s.mu.Lock()
	for _, c := range s.columns {
		if c.BoardID == boardID {
			ids[c.ID] = struct{}{}
		}
	}
	s.mu.Unlock()

	for _, id := range sortedKeys(ids) {
		if err := s.cards.DeleteByColumn(ctx, id); err != nil {
			return fmt.Errorf("deleting columns of board %s: %w", boardID, err)
		}
		s.deb.Cancel(id)
		if err := s.svc.Delete(ctx, storage.CollectionColumns, id); err != nil {
			err = fmt.Errorf("deleting column %s: %w", id, err)
			s.setErr(err)
			return err
		}
	}

	s.mu.Lock()
	s.columns = slices.DeleteFunc(s.columns, func(c model.Column) bool {
		_, ok := ids[c.ID]
		return ok
	})
	s.mu.Unlock()
	return nil
}

// Flush persists any pending debounced writes immediately.
func (s *ColumnStore) Flush() {
	s.deb.Flush()
}

// persistDirty is the debouncer flush; see CardStore.persistDirty.
func (s *ColumnStore) persistDirty(ids []string) {
	s.mu.Lock()
	recs := make([]storage.Record, 0, len(ids))
	for _, id := range ids {
		if i := slices.IndexFunc(s.columns, func(c model.Column) bool { return c.ID == id }); i >= 0 {
			recs = append(recs, s.columns[i])
		}
	}
	s.mu.Unlock()

	if len(recs) == 0 {
		return
	}
	if err := s.svc.BulkSave(context.Background(), storage.CollectionColumns, recs); err != nil {
		s.setErr(fmt.Errorf("persisting columns: %w", err))
		return
	}
	s.clearErr()
}

func (s *ColumnStore) countForBoardLocked(boardID string) int {
	n := 0
	for _, c := range s.columns {
		if c.BoardID == boardID {
			n++
		}
	}
	return n
}

func (s *ColumnStore) setErr(err error) {
	s.log.Error("column store failure", slog.String("error", err.Error()))
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *ColumnStore) clearErr() {
	s.mu.Lock()
	s.err = nil
	s.mu.Unlock()
}

// applyColumnUpdate merges fields into a copy of the column and bumps
// UpdatedAt.
func applyColumnUpdate(column model.Column, fields ColumnUpdate) model.Column {
	if fields.Title != nil {
		column.Title = *fields.Title
	}
	if fields.CardOrder != nil {
		column.CardOrder = slices.Clone(*fields.CardOrder)
	}
	if fields.Position != nil {
		column.Position = *fields.Position
	}
	if fields.Color != nil {
		column.Color = *fields.Color
	}
	if fields.ClearCardLimit {
		column.CardLimit = nil
	} else if fields.CardLimit != nil {
		limit := *fields.CardLimit
		column.CardLimit = &limit
	}
	column.UpdatedAt = touch(column.UpdatedAt)
	return column
}

// sortColumns orders by board, then position, then id as a stable tiebreak.
func sortColumns(columns []model.Column) {
	slices.SortFunc(columns, func(a, b model.Column) int {
		if c := cmp.Compare(a.BoardID, b.BoardID); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Position, b.Position); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
