package drag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleDropWhileIdle(t *testing.T) {
	c := NewCoordinator()

	drop, ok := c.HandleDrop("col-1", 0)

	assert.False(t, ok)
	assert.Equal(t, Drop{}, drop)
	assert.Equal(t, Idle, c.State())
}

func TestStartDragThenDrop(t *testing.T) {
	c := NewCoordinator()

	c.StartDrag("card-1", TypeCard, "col-1")
	require.Equal(t, Dragging, c.State())

	current, ok := c.Current()
	require.True(t, ok)
	assert.Equal(t, "card-1", current.ItemID)
	assert.Equal(t, TypeCard, current.Type)
	assert.Equal(t, "col-1", current.SourceID)

	drop, ok := c.HandleDrop("col-2", 3)
	require.True(t, ok)
	assert.Equal(t, Drop{
		ItemID:           "card-1",
		Type:             TypeCard,
		SourceID:         "col-1",
		DestinationID:    "col-2",
		DestinationIndex: 3,
	}, drop)

	// The gesture is consumed: a duplicated drop event dispatches nothing.
	assert.Equal(t, Idle, c.State())
	_, ok = c.HandleDrop("col-2", 3)
	assert.False(t, ok)
}

func TestEndDragCancelsGesture(t *testing.T) {
	c := NewCoordinator()

	c.StartDrag("card-1", TypeCard, "col-1")
	c.EndDrag()

	assert.Equal(t, Idle, c.State())
	_, ok := c.Current()
	assert.False(t, ok)
	_, ok = c.HandleDrop("col-2", 0)
	assert.False(t, ok)
}

func TestStartDragSupersedesPrevious(t *testing.T) {
	c := NewCoordinator()

	c.StartDrag("card-1", TypeCard, "col-1")
	c.StartDrag("column-9", TypeColumn, "board-1")

	drop, ok := c.HandleDrop("board-1", 2)
	require.True(t, ok)
	assert.Equal(t, "column-9", drop.ItemID)
	assert.Equal(t, TypeColumn, drop.Type)
}

func TestSubscribeReceivesDrops(t *testing.T) {
	c := NewCoordinator()
	ch := c.Subscribe()

	c.StartDrag("card-1", TypeCard, "col-1")
	sent, ok := c.HandleDrop("col-2", 1)
	require.True(t, ok)

	got := <-ch
	assert.Equal(t, sent, got)
}

func TestDropWhileIdleNotifiesNobody(t *testing.T) {
	c := NewCoordinator()
	ch := c.Subscribe()

	_, ok := c.HandleDrop("col-1", 0)
	require.False(t, ok)

	select {
	case drop := <-ch:
		t.Fatalf("unexpected drop %+v", drop)
	default:
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	c := NewCoordinator()
	ch := c.Subscribe()

	c.Unsubscribe(ch)

	_, open := <-ch
	assert.False(t, open)

	// A drop after unsubscribe reaches nobody and does not panic.
	c.StartDrag("card-1", TypeCard, "col-1")
	_, ok := c.HandleDrop("col-2", 0)
	assert.True(t, ok)
}

func TestClose(t *testing.T) {
	c := NewCoordinator()
	ch := c.Subscribe()

	c.Close()

	_, open := <-ch
	assert.False(t, open)

	c.StartDrag("card-1", TypeCard, "col-1")
	assert.Equal(t, Idle, c.State())

	late := c.Subscribe()
	_, open = <-late
	assert.False(t, open)

	c.Close() // idempotent
}
