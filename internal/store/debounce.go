package store

import (
	"maps"
	"slices"
	"sync"
	"time"
)

// debouncer coalesces persistence of dirty record ids. Every Schedule resets
// a single timer; when the quiet period elapses the accumulated set is handed
// to flush in one call. The callback receives ids only; the owning store
// snapshots the current records itself, so the write always reflects the
// state at flush time, not at schedule time.
type debouncer struct {
	delay time.Duration
	flush func(ids []string)

	mu    sync.Mutex
	timer *time.Timer
	dirty map[string]struct{}
}

func newDebouncer(delay time.Duration, flush func(ids []string)) *debouncer {
	return &debouncer{
		delay: delay,
		flush: flush,
		dirty: make(map[string]struct{}),
	}
}

// Schedule marks ids dirty and restarts the quiet-period timer.
func (d *debouncer) Schedule(ids ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, id := range ids {
		d.dirty[id] = struct{}{}
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.fire)
}

// Cancel drops a pending id so the next flush cannot write it. The delete
// path uses it to keep a queued save from resurrecting a removed record.
func (d *debouncer) Cancel(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.dirty, id)
}

// Flush writes any pending ids now instead of waiting out the delay.
func (d *debouncer) Flush() {
	d.fire()
}

// Stop discards the timer and the pending set without flushing.
func (d *debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	clear(d.dirty)
}

func (d *debouncer) fire() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	ids := slices.Sorted(maps.Keys(d.dirty))
	clear(d.dirty)
	d.mu.Unlock()

	if len(ids) > 0 {
		d.flush(ids)
	}
}
