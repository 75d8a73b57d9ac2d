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

// LabelStore holds the in-memory label collection for the loaded scope.
// Labels are denormalized onto cards, so a rename, recolor, or removal here
// propagates into the card store.
type LabelStore struct {
	svc   *storage.Service
	cards *CardStore
	log   *slog.Logger
	deb   *debouncer

	mu          sync.Mutex
	labels      []model.Label
	boardID     string // scope; empty means the full collection
	loading     bool
	initialized bool
	err         error
}

// NewLabelStore creates a label store that propagates label changes into
// cards.
func NewLabelStore(svc *storage.Service, cards *CardStore, debounce time.Duration, logger *slog.Logger) *LabelStore {
	if logger == nil {
		logger = slog.Default()
	}
	s := &LabelStore{svc: svc, cards: cards, log: logger}
	s.deb = newDebouncer(debounce, s.persistDirty)
	return s
}

// Init loads the full label collection once per store lifetime.
func (s *LabelStore) Init(ctx context.Context) error {
	s.mu.Lock()
	if s.initialized {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()
	return s.load(ctx, "")
}

// Load replaces the in-memory state with the labels of one board.
func (s *LabelStore) Load(ctx context.Context, boardID string) error {
	return s.load(ctx, boardID)
}

// Reload refreshes the in-memory state from storage, keeping the current
// scope.
func (s *LabelStore) Reload(ctx context.Context) error {
	s.mu.Lock()
	boardID := s.boardID
	s.mu.Unlock()
	return s.load(ctx, boardID)
}

func (s *LabelStore) load(ctx context.Context, boardID string) error {
	s.mu.Lock()
	s.loading = true
	s.mu.Unlock()

	var filter storage.Filter
	if boardID != "" {
		filter = storage.Filter{"boardId": boardID}
	}
	labels, err := storage.GetAllAs[model.Label](ctx, s.svc, storage.CollectionLabels, filter)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	if err != nil {
		s.err = fmt.Errorf("loading labels: %w", err)
		return s.err
	}
	sortLabels(labels)
	s.labels = labels
	s.boardID = boardID
	s.initialized = true
	s.err = nil
	return nil
}

// Labels returns a copy of the loaded labels, sorted by name.
func (s *LabelStore) Labels() []model.Label {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.labels)
}

// ForBoard returns a copy of the loaded labels of one board, sorted by name.
func (s *LabelStore) ForBoard(boardID string) []model.Label {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Label, 0, len(s.labels))
	for _, l := range s.labels {
		if l.BoardID == boardID {
			out = append(out, l)
		}
	}
	return out
}

// Get returns the loaded label with the given id.
func (s *LabelStore) Get(id string) (model.Label, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := slices.IndexFunc(s.labels, func(l model.Label) bool { return l.ID == id })
	if i < 0 {
		return model.Label{}, false
	}
	return s.labels[i], true
}

// Err returns the most recent persistence failure, or nil when healthy.
func (s *LabelStore) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Loading reports whether a load is in flight.
func (s *LabelStore) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Initialized reports whether the store has loaded state.
func (s *LabelStore) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

// Add stores a new label and schedules its debounced persist. A fresh id and
// timestamps are assigned when absent.
func (s *LabelStore) Add(label model.Label) (model.Label, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return model.Label{}, fmt.Errorf("adding label: %w", storage.ErrNotInitialized)
	}

	if label.ID == "" {
		label.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if label.CreatedAt.IsZero() {
		label.CreatedAt = now
	}
	label.UpdatedAt = touch(label.UpdatedAt)

	if err := label.Validate(); err != nil {
		return model.Label{}, fmt.Errorf("validating label: %w", err)
	}

	s.labels = append(s.labels, label)
	sortLabels(s.labels)
	s.deb.Schedule(label.ID)
	return label, nil
}

// Update merges fields into the label and rewrites the denormalized copies
// carried by cards. The label itself flows out through the debouncer; card
// propagation for records outside the loaded scope hits storage directly,
// which is why Update takes a context.
func (s *LabelStore) Update(ctx context.Context, id string, fields LabelUpdate) (model.Label, error) {
	s.mu.Lock()
	if !s.initialized {
		s.mu.Unlock()
		return model.Label{}, fmt.Errorf("updating label %s: %w", id, storage.ErrNotInitialized)
	}

	i := slices.IndexFunc(s.labels, func(l model.Label) bool { return l.ID == id })
	if i < 0 {
		s.mu.Unlock()
		return model.Label{}, fmt.Errorf("updating label %s: %w", id, storage.ErrNotFound)
	}

	label := applyLabelUpdate(s.labels[i], fields)
	if err := label.Validate(); err != nil {
		s.mu.Unlock()
		return model.Label{}, fmt.Errorf("validating label %s: %w", id, err)
	}

	s.labels[i] = label
	sortLabels(s.labels)
	s.mu.Unlock()

	s.deb.Schedule(id)
	if err := s.cards.RetagLabel(ctx, label.AsCardLabel()); err != nil {
		return label, fmt.Errorf("updating label %s: %w", id, err)
	}
	return label, nil
}

// Delete strips the label from every card carrying it, then removes the
// label itself. The removal is persisted immediately, bypassing the debounce
// window. Deleting an absent id succeeds.
func (s *LabelStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	initialized := s.initialized
	s.mu.Unlock()
	if !initialized {
		return fmt.Errorf("deleting label %s: %w", id, storage.ErrNotInitialized)
	}

	if err := s.cards.StripLabel(ctx, id); err != nil {
		return fmt.Errorf("deleting label %s: %w", id, err)
	}

	s.deb.Cancel(id)
	if err := s.svc.Delete(ctx, storage.CollectionLabels, id); err != nil {
		err = fmt.Errorf("deleting label %s: %w", id, err)
		s.setErr(err)
		return err
	}

	s.mu.Lock()
	s.labels = slices.DeleteFunc(s.labels, func(l model.Label) bool { return l.ID == id })
	s.mu.Unlock()
	return nil
}

// DeleteByBoard removes every label of boardID, the cascading half of a
// board deletion. Cards are not touched: the board cascade deletes them
// wholesale before labels are cleaned up. It works on an uninitialized
// store.
func (s *LabelStore) DeleteByBoard(ctx context.Context, boardID string) error {
	stored, err := storage.GetAllAs[model.Label](ctx, s.svc, storage.CollectionLabels, storage.Filter{"boardId": boardID})
	if err != nil {
		err = fmt.Errorf("listing labels of board %s: %w", boardID, err)
		s.setErr(err)
		return err
	}

	ids := make(map[string]struct{}, len(stored))
	for _, l := range stored {
		ids[l.ID] = struct{}{}
	}
	s.mu.Lock()
	for _, l := range s.labels {
		if l.BoardID == boardID {
			ids[l.ID] = struct{}{}
		}
	}
	s.mu.Unlock()

	for _, id := range sortedKeys(ids) {
		s.deb.Cancel(id)
		if err := s.svc.Delete(ctx, storage.CollectionLabels, id); err != nil {
			err = fmt.Errorf("deleting label %s: %w", id, err)
			s.setErr(err)
			return err
		}
	}

	s.mu.Lock()
	s.labels = slices.DeleteFunc(s.labels, func(l model.Label) bool {
		_, ok := ids[l.ID]
		return ok
	})
	s.mu.Unlock()
	return nil
}

// Flush persists any pending debounced writes immediately.
func (s *LabelStore) Flush() {
	s.deb.Flush()
}

// persistDirty is the debouncer flush; see CardStore.persistDirty.
func (s *LabelStore) persistDirty(ids []string) {
	s.mu.Lock()
	recs := make([]storage.Record, 0, len(ids))
	for _, id := range ids {
		if i := slices.IndexFunc(s.labels, func(l model.Label) bool { return l.ID == id }); i >= 0 {
			recs = append(recs, s.labels[i])
		}
	}
	s.mu.Unlock()

	if len(recs) == 0 {
		return
	}
	if err := s.svc.BulkSave(context.Background(), storage.CollectionLabels, recs); err != nil {
		s.setErr(fmt.Errorf("persisting labels: %w", err))
		return
	}
	s.clearErr()
}

func (s *LabelStore) setErr(err error) {
	s.log.Error("label store failure", slog.String("error", err.Error()))
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *LabelStore) clearErr() {
	s.mu.Lock()
	s.err = nil
	s.mu.Unlock()
}

// applyLabelUpdate merges fields into a copy of the label and bumps
// UpdatedAt.
func applyLabelUpdate(label model.Label, fields LabelUpdate) model.Label {
	if fields.Name != nil {
		label.Name = *fields.Name
	}
	if fields.Color != nil {
		label.Color = *fields.Color
	}
	label.UpdatedAt = touch(label.UpdatedAt)
	return label
}

// sortLabels orders by board, then name, then id as a stable tiebreak.
func sortLabels(labels []model.Label) {
	slices.SortFunc(labels, func(a, b model.Label) int {
		if c := cmp.Compare(a.BoardID, b.BoardID); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
