package hub

import (
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zach-short/ceros/internal/config"
	"github.com/zach-short/ceros/internal/domain"
)

func TestClientStateTransitions(t *testing.T) {
	h := NewHub(zerolog.Nop())
	c := NewClient("c1", "u1", "alice", nil, h, nil, config.WebSocketConfig{SendQueueSize: 4})

	assert.Equal(t, StateAuthenticated, c.State())

	h.Register(c)
	assert.Equal(t, StateActive, c.State())

	c.Close()
	assert.Equal(t, StateClosed, c.State())

	// Closed is absorbing; a second close is a no-op.
	c.Close()
	assert.Equal(t, StateClosed, c.State())
}

func TestEnqueueAfterCloseRejected(t *testing.T) {
	h := NewHub(zerolog.Nop())
	c := NewClient("c1", "u1", "alice", nil, h, nil, config.WebSocketConfig{SendQueueSize: 4})
	h.Register(c)
	c.Close()

	err := c.Enqueue(domain.Frame{Action: domain.ActionNewMessage})
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestEnqueueDropsOldestOnOverflow(t *testing.T) {
	h := NewHub(zerolog.Nop())
	c := NewClient("c1", "u1", "alice", nil, h, nil, config.WebSocketConfig{SendQueueSize: 2})
	h.Register(c)

	for i := 0; i < 3; i++ {
		err := c.Enqueue(domain.Frame{Action: fmt.Sprintf("frame-%d", i)})
		require.NoError(t, err)
	}

	assert.Equal(t, int64(1), c.DroppedFrames())

	// Oldest frame was shed; the two most recent remain in order.
	frames := drain(t, c)
	require.Len(t, frames, 2)
	assert.Equal(t, "frame-1", frames[0].Action)
	assert.Equal(t, "frame-2", frames[1].Action)
}

func TestCloseUnregistersOnce(t *testing.T) {
	h := NewHub(zerolog.Nop())
	c := NewClient("c1", "u1", "alice", nil, h, nil, config.WebSocketConfig{SendQueueSize: 4})
	h.Register(c)
	h.Join(c, "r1")

	var calls int
	var emptiedRooms []string
	c.OnClose(func(emptied []string) {
		calls++
		emptiedRooms = emptied
	})

	c.Close()
	c.Close()

	assert.Equal(t, 1, calls)
	assert.Equal(t, []string{"r1"}, emptiedRooms)
	assert.Equal(t, 0, h.RoomSize("r1"))
}

func TestHasRole(t *testing.T) {
	h := NewHub(zerolog.Nop())
	c := NewClient("c1", "u1", "alice", []string{"member", "admin"}, h, nil, config.WebSocketConfig{})

	assert.True(t, c.HasRole("admin"))
	assert.False(t, c.HasRole("owner"))
}
