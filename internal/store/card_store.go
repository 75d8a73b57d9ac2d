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
	"golang.org/x/sync/errgroup"

	"github.com/nhle/taskboard/internal/model"
	"github.com/nhle/taskboard/internal/storage"
)

// CardStore holds the in-memory card collection for the loaded scope (the
// whole dataset after Init, or the cards of specific columns after Load)
// and persists mutations through the storage service.
type CardStore struct {
	svc *storage.Service
	log *slog.Logger
	deb *debouncer

	mu          sync.Mutex
	cards       []model.Card
	scope       []string // column ids; nil means the full collection
	loading     bool
	initialized bool
	err         error
}

// NewCardStore creates a card store with the given debounce window.
func NewCardStore(svc *storage.Service, debounce time.Duration, logger *slog.Logger) *CardStore {
	if logger == nil {
		logger = slog.Default()
	}
	s := &CardStore{svc: svc, log: logger}
	s.deb = newDebouncer(debounce, s.persistDirty)
	return s
}

// Init loads the full card collection once per store lifetime.
func (s *CardStore) Init(ctx context.Context) error {
	s.mu.Lock()
	if s.initialized {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()
	return s.loadAll(ctx)
}

// Load replaces the in-memory state with the cards of a single column,
// sorted by position.
func (s *CardStore) Load(ctx context.Context, columnID string) error {
	return s.LoadForColumns(ctx, []string{columnID})
}

// LoadForColumns replaces the in-memory state with the cards of the given
// columns, fetched in parallel through the columnId index and sorted by
// position within each column. This is how opening a board brings its cards
// into memory.
func (s *CardStore) LoadForColumns(ctx context.Context, columnIDs []string) error {
	ids := slices.Clone(columnIDs)
	if ids == nil {
		ids = []string{}
	}

	s.mu.Lock()
	s.loading = true
	s.mu.Unlock()

	parts := make([][]model.Card, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	for i, columnID := range ids {
		g.Go(func() error {
			part, err := storage.GetAllAs[model.Card](gctx, s.svc, storage.CollectionCards, storage.Filter{"columnId": columnID})
			if err != nil {
				return fmt.Errorf("loading cards of column %s: %w", columnID, err)
			}
			parts[i] = part
			return nil
		})
	}
	err := g.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	if err != nil {
		s.err = err
		return err
	}
	var cards []model.Card
	for _, part := range parts {
		cards = append(cards, part...)
	}
	sortCards(cards)
	s.cards = cards
	s.scope = ids
	s.initialized = true
	s.err = nil
	return nil
}

// ExtendScope adds a column to the loaded scope, so reloads keep covering
// columns created after the board was opened. No-op on a full-collection
// scope.
func (s *CardStore) ExtendScope(columnID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scope == nil || slices.Contains(s.scope, columnID) {
		return
	}
	s.scope = append(s.scope, columnID)
}

// Reload refreshes the in-memory state from storage, keeping the current
// scope. The kv watcher calls it when another process rewrote the blob.
func (s *CardStore) Reload(ctx context.Context) error {
	s.mu.Lock()
	scope := slices.Clone(s.scope)
	s.mu.Unlock()

	if scope == nil {
		return s.loadAll(ctx)
	}
	return s.LoadForColumns(ctx, scope)
}

// loadAll fetches the whole collection and resets the scope.
func (s *CardStore) loadAll(ctx context.Context) error {
	s.mu.Lock()
	s.loading = true
	s.mu.Unlock()

	cards, err := storage.GetAllAs[model.Card](ctx, s.svc, storage.CollectionCards, nil)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	if err != nil {
		s.err = fmt.Errorf("loading cards: %w", err)
		return s.err
	}
	sortCards(cards)
	s.cards = cards
	s.scope = nil
	s.initialized = true
	s.err = nil
	return nil
}

// Cards returns a copy of the loaded cards, sorted by column and position.
func (s *CardStore) Cards() []model.Card {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.cards)
}

// InColumn returns a copy of the loaded cards of one column, sorted by
// position. This is the full partition the reordering operations work on.
func (s *CardStore) InColumn(columnID string) []model.Card {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Card, 0, 8)
	for _, c := range s.cards {
		if c.ColumnID == columnID {
			out = append(out, c)
		}
	}
	return out
}

// Get returns the loaded card with the given id.
func (s *CardStore) Get(id string) (model.Card, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := slices.IndexFunc(s.cards, func(c model.Card) bool { return c.ID == id })
	if i < 0 {
		return model.Card{}, false
	}
	return s.cards[i], true
}

// Err returns the most recent persistence failure, or nil when healthy.
func (s *CardStore) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Loading reports whether a load is in flight.
func (s *CardStore) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Initialized reports whether the store has loaded state.
func (s *CardStore) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

// Add appends a card at the end of its column's partition and schedules its
// debounced persist. A fresh id and timestamps are assigned when absent. The
// position is always the next free slot, so contiguity holds without a
// renumber; placing a card anywhere else is a reorder, not an add.
func (s *CardStore) Add(card model.Card) (model.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return model.Card{}, fmt.Errorf("adding card: %w", storage.ErrNotInitialized)
	}

	if card.ID == "" {
		card.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if card.CreatedAt.IsZero() {
		card.CreatedAt = now
	}
	card.UpdatedAt = touch(card.UpdatedAt)
	card.Position = s.countInColumnLocked(card.ColumnID)

	if err := card.Validate(); err != nil {
		return model.Card{}, fmt.Errorf("validating card: %w", err)
	}

	s.cards = append(s.cards, card)
	sortCards(s.cards)
	s.deb.Schedule(card.ID)
	return card, nil
}

// Update merges fields into the card, bumps UpdatedAt, and schedules its
// debounced persist. On a validation failure nothing is applied.
func (s *CardStore) Update(id string, fields CardUpdate) (model.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return model.Card{}, fmt.Errorf("updating card %s: %w", id, storage.ErrNotInitialized)
	}

	i := slices.IndexFunc(s.cards, func(c model.Card) bool { return c.ID == id })
	if i < 0 {
		return model.Card{}, fmt.Errorf("updating card %s: %w", id, storage.ErrNotFound)
	}

	card := applyCardUpdate(s.cards[i], fields)
	if err := card.Validate(); err != nil {
		return model.Card{}, fmt.Errorf("validating card %s: %w", id, err)
	}

	s.cards[i] = card
	sortCards(s.cards)
	s.deb.Schedule(id)
	return card, nil
}

// BatchUpdate applies every merge in one pass under the lock, then schedules
// one debounced persist per changed record. Overlapping rapid batches
// collapse into a single write because the dirty ids share one timer. An
// unknown id or a validation failure rejects the whole batch.
func (s *CardStore) BatchUpdate(changes []CardChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return fmt.Errorf("batch updating cards: %w", storage.ErrNotInitialized)
	}

	merged := make(map[int]model.Card, len(changes))
	for _, ch := range changes {
		i := slices.IndexFunc(s.cards, func(c model.Card) bool { return c.ID == ch.ID })
		if i < 0 {
			return fmt.Errorf("batch updating card %s: %w", ch.ID, storage.ErrNotFound)
		}
		base := s.cards[i]
		if prev, ok := merged[i]; ok {
			base = prev
		}
		card := applyCardUpdate(base, ch.Fields)
		if err := card.Validate(); err != nil {
			return fmt.Errorf("validating card %s: %w", ch.ID, err)
		}
		merged[i] = card
	}

	ids := make([]string, 0, len(merged))
	for i, card := range merged {
		s.cards[i] = card
		ids = append(ids, card.ID)
	}
	sortCards(s.cards)
	s.deb.Schedule(ids...)
	return nil
}

// Delete persists the removal immediately and then prunes the in-memory
// copy. Deletions are never batched, so a pending debounced save cannot
// resurrect the record. On failure the in-memory state is left untouched.
// Deleting an absent id succeeds.
func (s *CardStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	initialized := s.initialized
	s.mu.Unlock()
	if !initialized {
		return fmt.Errorf("deleting card %s: %w", id, storage.ErrNotInitialized)
	}

	s.deb.Cancel(id)
	if err := s.svc.Delete(ctx, storage.CollectionCards, id); err != nil {
		err = fmt.Errorf("deleting card %s: %w", id, err)
		s.setErr(err)
		return err
	}

	s.mu.Lock()
	s.cards = slices.DeleteFunc(s.cards, func(c model.Card) bool { return c.ID == id })
	s.mu.Unlock()
	return nil
}

// DeleteByColumn removes every card belonging to columnID, the cascading
// half of a column deletion. Ids are resolved from storage as well as from
// memory, so cards outside the loaded scope and cards not yet flushed are
// both covered. It works on an uninitialized store: a cascade may target a
// board that was never opened.
func (s *CardStore) DeleteByColumn(ctx context.Context, columnID string) error {
	stored, err := storage.GetAllAs[model.Card](ctx, s.svc, storage.CollectionCards, storage.Filter{"columnId": columnID})
	if err != nil {
		err = fmt.Errorf("listing cards of column %s: %w", columnID, err)
		s.setErr(err)
		return err
	}

	ids := make(map[string]struct{}, len(stored))
	for _, c := range stored {
		ids[c.ID] = struct{}{}
	}
	s.mu.Lock()
	for _, c := range s.cards {
		if c.ColumnID == columnID {
			ids[c.ID] = struct{}{}
		}
	}
	s.mu.Unlock()

	for _, id := range sortedKeys(ids) {
		s.deb.Cancel(id)
		if err := s.svc.Delete(ctx, storage.CollectionCards, id); err != nil {
			err = fmt.Errorf("deleting card %s: %w", id, err)
			s.setErr(err)
			return err
		}
	}

	s.mu.Lock()
	s.cards = slices.DeleteFunc(s.cards, func(c model.Card) bool {
		_, ok := ids[c.ID]
		return ok
	})
	s.mu.Unlock()
	return nil
}

// RetagLabel rewrites the denormalized label entry carried by every card
// referencing ref.ID, after a label rename or recolor. Loaded cards are
// patched in memory and flow out through the debouncer; stored cards outside
// the loaded scope are rewritten directly.
func (s *CardStore) RetagLabel(ctx context.Context, ref model.CardLabel) error {
	if ref.ID == "" {
		return fmt.Errorf("retagging cards: label reference has no id")
	}

	loaded := make(map[string]struct{})
	var dirty []string

	s.mu.Lock()
	for i := range s.cards {
		card := s.cards[i]
		loaded[card.ID] = struct{}{}
		if !replaceLabel(&card, ref) {
			continue
		}
		card.UpdatedAt = touch(card.UpdatedAt)
		s.cards[i] = card
		dirty = append(dirty, card.ID)
	}
	s.mu.Unlock()

	if len(dirty) > 0 {
		s.deb.Schedule(dirty...)
	}

	stored, err := storage.QueryAs[model.Card](ctx, s.svc, storage.CollectionCards, func(c model.Card) bool {
		if _, ok := loaded[c.ID]; ok {
			return false
		}
		return hasLabel(c, ref.ID)
	})
	if err != nil {
		err = fmt.Errorf("retagging cards for label %s: %w", ref.ID, err)
		s.setErr(err)
		return err
	}
	if len(stored) == 0 {
		return nil
	}

	recs := make([]storage.Record, 0, len(stored))
	for _, c := range stored {
		replaceLabel(&c, ref)
		c.UpdatedAt = touch(c.UpdatedAt)
		recs = append(recs, c)
	}
	if err := s.svc.BulkSave(ctx, storage.CollectionCards, recs); err != nil {
		err = fmt.Errorf("retagging cards for label %s: %w", ref.ID, err)
		s.setErr(err)
		return err
	}
	return nil
}

// StripLabel removes the label entry with labelID from every card carrying
// it, loaded or stored, the card-side half of a label deletion.
func (s *CardStore) StripLabel(ctx context.Context, labelID string) error {
	if labelID == "" {
		return fmt.Errorf("stripping label: empty label id")
	}

	loaded := make(map[string]struct{})
	var dirty []string

	s.mu.Lock()
	for i := range s.cards {
		card := s.cards[i]
		loaded[card.ID] = struct{}{}
		if !removeLabel(&card, labelID) {
			continue
		}
		card.UpdatedAt = touch(card.UpdatedAt)
		s.cards[i] = card
		dirty = append(dirty, card.ID)
	}
	s.mu.Unlock()

	if len(dirty) > 0 {
		s.deb.Schedule(dirty...)
	}

	stored, err := storage.QueryAs[model.Card](ctx, s.svc, storage.CollectionCards, func(c model.Card) bool {
		if _, ok := loaded[c.ID]; ok {
			return false
		}
		return hasLabel(c, labelID)
	})
	if err != nil {
		err = fmt.Errorf("stripping label %s from cards: %w", labelID, err)
		s.setErr(err)
		return err
	}
	if len(stored) == 0 {
		return nil
	}

	recs := make([]storage.Record, 0, len(stored))
	for _, c := range stored {
		removeLabel(&c, labelID)
		c.UpdatedAt = touch(c.UpdatedAt)
		recs = append(recs, c)
	}
	if err := s.svc.BulkSave(ctx, storage.CollectionCards, recs); err != nil {
		err = fmt.Errorf("stripping label %s from cards: %w", labelID, err)
		s.setErr(err)
		return err
	}
	return nil
}

// Flush persists any pending debounced writes immediately.
func (s *CardStore) Flush() {
	s.deb.Flush()
}

// persistDirty is the debouncer flush: it snapshots the current state of the
// dirty cards and writes them in one bulk save. Ids deleted since being
// scheduled are skipped.
func (s *CardStore) persistDirty(ids []string) {
	s.mu.Lock()
	recs := make([]storage.Record, 0, len(ids))
	for _, id := range ids {
		if i := slices.IndexFunc(s.cards, func(c model.Card) bool { return c.ID == id }); i >= 0 {
			recs = append(recs, s.cards[i])
		}
	}
	s.mu.Unlock()

	if len(recs) == 0 {
		return
	}
	if err := s.svc.BulkSave(context.Background(), storage.CollectionCards, recs); err != nil {
		s.setErr(fmt.Errorf("persisting cards: %w", err))
		return
	}
	s.clearErr()
}

func (s *CardStore) countInColumnLocked(columnID string) int {
	n := 0
	for _, c := range s.cards {
		if c.ColumnID == columnID {
			n++
		}
	}
	return n
}

func (s *CardStore) setErr(err error) {
	s.log.Error("card store failure", slog.String("error", err.Error()))
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *CardStore) clearErr() {
	s.mu.Lock()
	s.err = nil
	s.mu.Unlock()
}

// applyCardUpdate merges fields into a copy of the card and bumps UpdatedAt.
// Slice fields are cloned so handed-out snapshots never share backing arrays
// with store state.
func applyCardUpdate(card model.Card, fields CardUpdate) model.Card {
	if fields.ColumnID != nil {
		card.ColumnID = *fields.ColumnID
	}
	if fields.Title != nil {
		card.Title = *fields.Title
	}
	if fields.Description != nil {
		card.Description = *fields.Description
	}
	if fields.Position != nil {
		card.Position = *fields.Position
	}
	if fields.Priority != nil {
		card.Priority = *fields.Priority
	}
	if fields.Labels != nil {
		card.Labels = slices.Clone(*fields.Labels)
	}
	if fields.Tags != nil {
		card.Tags = slices.Clone(*fields.Tags)
	}
	if fields.ClearDueDate {
		card.DueDate = nil
	} else if fields.DueDate != nil {
		due := *fields.DueDate
		card.DueDate = &due
	}
	card.UpdatedAt = touch(card.UpdatedAt)
	return card
}

// sortCards orders by column, then position, then id as a stable tiebreak.
func sortCards(cards []model.Card) {
	slices.SortFunc(cards, func(a, b model.Card) int {
		if c := cmp.Compare(a.ColumnID, b.ColumnID); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Position, b.Position); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

func hasLabel(card model.Card, labelID string) bool {
	for _, l := range card.Labels {
		if l.ID == labelID {
			return true
		}
	}
	return false
}

// replaceLabel rewrites entries matching ref.ID, cloning the slice before
// writing. Reports whether anything changed.
func replaceLabel(card *model.Card, ref model.CardLabel) bool {
	changed := false
	for _, l := range card.Labels {
		if l.ID == ref.ID && (l.Name != ref.Name || l.Color != ref.Color) {
			changed = true
			break
		}
	}
	if !changed {
		return false
	}
	labels := slices.Clone(card.Labels)
	for i, l := range labels {
		if l.ID == ref.ID {
			labels[i] = ref
		}
	}
	card.Labels = labels
	return true
}

// removeLabel drops entries matching labelID, cloning the slice before
// writing. Reports whether anything changed.
func removeLabel(card *model.Card, labelID string) bool {
	if !hasLabel(*card, labelID) {
		return false
	}
	labels := slices.DeleteFunc(slices.Clone(card.Labels), func(l model.CardLabel) bool {
		return l.ID == labelID
	})
	if len(labels) == 0 {
		labels = nil
	}
	card.Labels = labels
	return true
}

// sortedKeys returns the keys of a set in sorted order for deterministic
// iteration.
func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
