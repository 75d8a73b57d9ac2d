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

// BoardStore holds the full in-memory board collection. Deleting a board
// cascades through the column store (which takes the cards with it) and the
// label store before the board record itself goes, so a failure partway
// never leaves children without a parent.
type BoardStore struct {
	svc     *storage.Service
	columns *ColumnStore
	labels  *LabelStore
	log     *slog.Logger
	deb     *debouncer

	mu          sync.Mutex
	boards      []model.Board
	loading     bool
	initialized bool
	err         error
}

// NewBoardStore creates a board store that cascades deletions into columns
// and labels.
func NewBoardStore(svc *storage.Service, columns *ColumnStore, labels *LabelStore, debounce time.Duration, logger *slog.Logger) *BoardStore {
	if logger == nil {
		logger = slog.Default()
	}
	s := &BoardStore{svc: svc, columns: columns, labels: labels, log: logger}
	s.deb = newDebouncer(debounce, s.persistDirty)
	return s
}

// Init loads the board collection once per store lifetime. Boards are the
// entry point of every session, so the whole collection is always loaded.
func (s *BoardStore) Init(ctx context.Context) error {
	s.mu.Lock()
	if s.initialized {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()
	return s.Reload(ctx)
}

// Reload refreshes the in-memory state from storage.
func (s *BoardStore) Reload(ctx context.Context) error {
	s.mu.Lock()
	s.loading = true
	s.mu.Unlock()

	boards, err := storage.GetAllAs[model.Board](ctx, s.svc, storage.CollectionBoards, nil)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	if err != nil {
		s.err = fmt.Errorf("loading boards: %w", err)
		return s.err
	}
	sortBoards(boards)
	s.boards = boards
	s.initialized = true
	s.err = nil
	return nil
}

// Boards returns a copy of the loaded boards, starred first, newest first
// within each group. Archived boards are skipped unless includeArchived is
// set.
func (s *BoardStore) Boards(includeArchived bool) []model.Board {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Board, 0, len(s.boards))
	for _, b := range s.boards {
		if b.Archived && !includeArchived {
			continue
		}
		out = append(out, b)
	}
	return out
}

// Get returns the loaded board with the given id.
func (s *BoardStore) Get(id string) (model.Board, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := slices.IndexFunc(s.boards, func(b model.Board) bool { return b.ID == id })
	if i < 0 {
		return model.Board{}, false
	}
	return s.boards[i], true
}

// Err returns the most recent persistence failure, or nil when healthy.
func (s *BoardStore) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Loading reports whether a load is in flight.
func (s *BoardStore) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Initialized reports whether the store has loaded state.
func (s *BoardStore) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

// Add stores a new board and schedules its debounced persist. A fresh id and
// timestamps are assigned when absent.
func (s *BoardStore) Add(board model.Board) (model.Board, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return model.Board{}, fmt.Errorf("adding board: %w", storage.ErrNotInitialized)
	}

	if board.ID == "" {
		board.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if board.CreatedAt.IsZero() {
		board.CreatedAt = now
	}
	board.UpdatedAt = touch(board.UpdatedAt)

	if err := board.Validate(); err != nil {
		return model.Board{}, fmt.Errorf("validating board: %w", err)
	}

	s.boards = append(s.boards, board)
	sortBoards(s.boards)
	s.deb.Schedule(board.ID)
	return board, nil
}

// Update merges fields into the board, bumps UpdatedAt, and schedules its
// debounced persist.
func (s *BoardStore) Update(id string, fields BoardUpdate) (model.Board, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return model.Board{}, fmt.Errorf("updating board %s: %w", id, storage.ErrNotInitialized)
	}

	i := slices.IndexFunc(s.boards, func(b model.Board) bool { return b.ID == id })
	if i < 0 {
		return model.Board{}, fmt.Errorf("updating board %s: %w", id, storage.ErrNotFound)
	}

	board := applyBoardUpdate(s.boards[i], fields)
	if err := board.Validate(); err != nil {
		return model.Board{}, fmt.Errorf("validating board %s: %w", id, err)
	}

	s.boards[i] = board
	sortBoards(s.boards)
	s.deb.Schedule(id)
	return board, nil
}

// ToggleStar flips the board's starred flag.
func (s *BoardStore) ToggleStar(id string) (model.Board, error) {
	s.mu.Lock()
	starred := false
	if i := slices.IndexFunc(s.boards, func(b model.Board) bool { return b.ID == id }); i >= 0 {
		starred = !s.boards[i].Starred
	}
	s.mu.Unlock()
	return s.Update(id, BoardUpdate{Starred: &starred})
}

// Archive hides the board from the default listing without deleting its
// data.
func (s *BoardStore) Archive(id string) (model.Board, error) {
	archived := true
	return s.Update(id, BoardUpdate{Archived: &archived})
}

// Restore brings an archived board back into the default listing.
func (s *BoardStore) Restore(id string) (model.Board, error) {
	archived := false
	return s.Update(id, BoardUpdate{Archived: &archived})
}

// Delete removes a board and everything it owns: columns (with their cards)
// first, then labels, then the board record. Children go before the parent,
// so a failure partway leaves a board with fewer children, never orphans.
// The removal is persisted immediately, bypassing the debounce window.
func (s *BoardStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	initialized := s.initialized
	s.mu.Unlock()
	if !initialized {
		return fmt.Errorf("deleting board %s: %w", id, storage.ErrNotInitialized)
	}

	if err := s.columns.DeleteByBoard(ctx, id); err != nil {
		return fmt.Errorf("deleting board %s: %w", id, err)
	}
	if err := s.labels.DeleteByBoard(ctx, id); err != nil {
		return fmt.Errorf("deleting board %s: %w", id, err)
	}

	s.deb.Cancel(id)
	if err := s.svc.Delete(ctx, storage.CollectionBoards, id); err != nil {
		err = fmt.Errorf("deleting board %s: %w", id, err)
		s.setErr(err)
		return err
	}

	s.mu.Lock()
	s.boards = slices.DeleteFunc(s.boards, func(b model.Board) bool { return b.ID == id })
	s.mu.Unlock()
	return nil
}

// Flush persists any pending debounced writes immediately.
func (s *BoardStore) Flush() {
	s.deb.Flush()
}

// persistDirty is the debouncer flush; see CardStore.persistDirty.
func (s *BoardStore) persistDirty(ids []string) {
	s.mu.Lock()
	recs := make([]storage.Record, 0, len(ids))
	for _, id := range ids {
		if i := slices.IndexFunc(s.boards, func(b model.Board) bool { return b.ID == id }); i >= 0 {
			recs = append(recs, s.boards[i])
		}
	}
	s.mu.Unlock()

	if len(recs) == 0 {
		return
	}
	if err := s.svc.BulkSave(context.Background(), storage.CollectionBoards, recs); err != nil {
		s.setErr(fmt.Errorf("persisting boards: %w", err))
		return
	}
	s.clearErr()
}

func (s *BoardStore) setErr(err error) {
	s.log.Error("board store failure", slog.String("error", err.Error()))
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *BoardStore) clearErr() {
	s.mu.Lock()
	s.err = nil
	s.mu.Unlock()
}

// applyBoardUpdate merges fields into a copy of the board and bumps
// UpdatedAt.
func applyBoardUpdate(board model.Board, fields BoardUpdate) model.Board {
	if fields.Title != nil {
		board.Title = *fields.Title
	}
	if fields.Description != nil {
		board.Description = *fields.Description
	}
	if fields.ColumnOrder != nil {
		board.ColumnOrder = slices.Clone(*fields.ColumnOrder)
	}
	if fields.Starred != nil {
		board.Starred = *fields.Starred
	}
	if fields.BackgroundColor != nil {
		board.BackgroundColor = *fields.BackgroundColor
	}
	if fields.Archived != nil {
		board.Archived = *fields.Archived
	}
	board.UpdatedAt = touch(board.UpdatedAt)
	return board
}

// sortBoards orders starred boards first, then newest first, then by id as a
// stable tiebreak.
func sortBoards(boards []model.Board) {
	slices.SortFunc(boards, func(a, b model.Board) int {
		if a.Starred != b.Starred {
			if a.Starred {
				return -1
			}
			return 1
		}
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
