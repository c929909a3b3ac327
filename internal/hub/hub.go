package hub

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"
	"github.com/zach-short/ceros/internal/domain"
	"github.com/zach-short/ceros/pkg/log"
)

// Hub is the room registry: it maps room ids to the sessions subscribed
// to them and is the fan-out point for events. One lock covers all
// membership state, so join/leave/fanout/drop are linearizable with
// respect to each other; a fan-out sees a consistent snapshot and a
// session that left never receives the event.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[*Client]bool
	logger zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		rooms:  make(map[string]map[*Client]bool),
		logger: logger,
	}
}

// Register marks the session active. Idempotent.
func (h *Hub) Register(c *Client) {
	c.activate()
	h.logger.Debug().
		Str(log.FieldClientID, c.ID).
		Str(log.FieldUserID, c.UserID).
		Msg("client registered")
}

// Join adds the session to the room's subscriber set. Idempotent; joining
// a closed session is a no-op.
func (h *Hub) Join(c *Client, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// Must be checked under the lock: Close stores StateClosed before
	// DropSession sweeps, so a join that observes an open session here
	// is ordered before the sweep and gets cleaned up by it.
	if c.State() == StateClosed {
		return
	}

	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[*Client]bool)
	}
	h.rooms[roomID][c] = true
	c.rooms[roomID] = true

	h.logger.Debug().
		Str(log.FieldClientID, c.ID).
		Str(log.FieldRoomID, roomID).
		Msg("client joined room")
}

// Leave removes the session from the room. Idempotent.
func (h *Hub) Leave(c *Client, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeFromRoom(c, roomID)
}

// removeFromRoom must be called with h.mu held. Reports whether the room
// became empty.
func (h *Hub) removeFromRoom(c *Client, roomID string) bool {
	room, exists := h.rooms[roomID]
	if !exists {
		delete(c.rooms, roomID)
		return false
	}
	delete(room, c)
	delete(c.rooms, roomID)
	if len(room) == 0 {
		delete(h.rooms, roomID)
		return true
	}
	return false
}

// IsJoined reports whether the session is currently subscribed to the room.
func (h *Hub) IsJoined(c *Client, roomID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return c.rooms[roomID]
}

// Rooms returns the room ids the session has joined.
func (h *Hub) Rooms(c *Client) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(c.rooms))
	for roomID := range c.rooms {
		out = append(out, roomID)
	}
	return out
}

// RoomSize returns the number of sessions subscribed to the room.
func (h *Hub) RoomSize(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// Fanout delivers the frame to every session joined to the room for which
// the predicate holds (nil means everyone). Delivery is a non-blocking
// enqueue, so a slow subscriber cannot stall the caller. The membership
// lock is held for the duration, which keeps fan-outs on the same room
// ordered with joins and leaves.
func (h *Hub) Fanout(roomID string, frame domain.Frame, predicate func(*Client) bool) int {
	data, err := json.Marshal(frame)
	if err != nil {
		h.logger.Error().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to marshal fanout frame")
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	room, exists := h.rooms[roomID]
	if !exists {
		return 0
	}

	delivered := 0
	for c := range room {
		if predicate != nil && !predicate(c) {
			continue
		}
		if err := c.EnqueueRaw(data); err == nil {
			delivered++
		}
	}
	return delivered
}

// DropSession removes the session from every room it had joined; called
// exactly once from session teardown. Returns the rooms whose membership
// dropped to zero.
func (h *Hub) DropSession(c *Client) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	var emptied []string
	for roomID := range c.rooms {
		if h.removeFromRoom(c, roomID) {
			emptied = append(emptied, roomID)
		}
	}

	h.logger.Debug().
		Str(log.FieldClientID, c.ID).
		Str(log.FieldUserID, c.UserID).
		Msg("client dropped from all rooms")
	return emptied
}
