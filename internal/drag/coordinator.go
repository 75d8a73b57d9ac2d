// Package drag tracks an in-progress drag gesture and turns drop events
// into move descriptors. The coordinator never mutates entity state itself:
// it captures what was picked up, validates the drop against the gesture
// state, and hands the descriptor to subscribers, who perform the actual
// reorder through the stores. It is agnostic to whichever visual library
// produced the pointer events.
package drag

import "sync"

// State is the coordinator's gesture phase.
type State int

const (
	// Idle means no gesture is in progress.
	Idle State = iota
	// Dragging means an item was picked up and not yet dropped.
	Dragging
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Dragging:
		return "dragging"
	default:
		return "unknown"
	}
}

// Type tags the kind of entity a gesture is moving.
type Type string

const (
	TypeCard   Type = "card"
	TypeColumn Type = "column"
	TypeBoard  Type = "board"
)

// Drop describes a completed gesture: what was dragged, the container it
// came from, and where it landed. It carries ids rather than records; the
// stores stay the source of truth for the entities themselves.
type Drop struct {
	ItemID           string
	Type             Type
	SourceID         string
	DestinationID    string
	DestinationIndex int
}

const subscriberBuffer = 8

// Coordinator is the drag state machine. All methods are safe for
// concurrent use.
type Coordinator struct {
	mu      sync.Mutex
	state   State
	current Drop // item fields only while dragging
	subs    map[<-chan Drop]chan Drop
	closed  bool
}

// NewCoordinator returns an idle coordinator.
func NewCoordinator() *Coordinator {
	return &Coordinator{subs: make(map[<-chan Drop]chan Drop)}
}

// State returns the current gesture phase.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Current returns the in-flight gesture's item fields while dragging.
func (c *Coordinator) Current() (Drop, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Dragging {
		return Drop{}, false
	}
	return c.current, true
}

// StartDrag begins a gesture: the item id, its kind, and the container it
// was picked up from. Starting while another gesture is in flight supersedes
// it; the previous pickup never produced a drop and is forgotten.
func (c *Coordinator) StartDrag(itemID string, typ Type, sourceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.state = Dragging
	c.current = Drop{ItemID: itemID, Type: typ, SourceID: sourceID}
}

// HandleDrop completes the gesture: it fills in the destination, returns the
// move descriptor, fans it out to subscribers, and resets to idle so a
// duplicated drop event cannot dispatch twice. A drop without a preceding
// StartDrag reports ok false and has no effect.
func (c *Coordinator) HandleDrop(destinationID string, destinationIndex int) (Drop, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Dragging {
		return Drop{}, false
	}

	drop := c.current
	drop.DestinationID = destinationID
	drop.DestinationIndex = destinationIndex
	c.state = Idle
	c.current = Drop{}

	// Sends stay under the lock so Unsubscribe cannot close a channel
	// mid-fan-out; they never block, so holding it is cheap.
	for _, ch := range c.subs {
		select {
		case ch <- drop:
		default: // a listener that fell behind misses this drop
		}
	}
	return drop, true
}

// EndDrag returns to idle unconditionally. Cancelled gestures (a drop
// outside any valid target, an escape key) land here.
func (c *Coordinator) EndDrag() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = Idle
	c.current = Drop{}
}

// Subscribe registers a listener for completed drops. The channel is
// buffered; listeners that fall behind miss events instead of blocking the
// gesture. Release it with Unsubscribe.
func (c *Coordinator) Subscribe() <-chan Drop {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan Drop, subscriberBuffer)
	if c.closed {
		close(ch)
		return ch
	}
	c.subs[ch] = ch
	return ch
}

// Unsubscribe removes a listener and closes its channel.
func (c *Coordinator) Unsubscribe(ch <-chan Drop) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sub, ok := c.subs[ch]
	if !ok {
		return
	}
	delete(c.subs, ch)
	close(sub)
}

// Close resets the coordinator and closes every subscriber channel. Further
// gestures are ignored.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	c.state = Idle
	c.current = Drop{}
	for _, ch := range c.subs {
		close(ch)
	}
	clear(c.subs)
}
