package hub

import (
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/zach-short/ceros/internal/config"
	"github.com/zach-short/ceros/internal/domain"
	"github.com/zach-short/ceros/pkg/log"
)

// Session states. Authentication happens during the HTTP handshake, so a
// constructed client is already past Connecting; it becomes Active when
// registered with the hub. Closed is absorbing.
type State int32

const (
	StateConnecting State = iota
	StateAuthenticated
	StateActive
	StateClosed
)

var ErrSessionClosed = errors.New("session closed")

// Client wraps one authenticated connection: identity, the bounded
// outbound queue and the rooms it has joined. The rooms set is guarded by
// the hub's lock; only the hub touches it.
type Client struct {
	ID       string
	UserID   string
	Username string
	Roles    []string

	hub   *Hub
	conn  *websocket.Conn
	send  chan []byte
	done  chan struct{}
	state atomic.Int32

	closeOnce sync.Once
	// onClose receives the rooms whose local membership dropped to zero
	// during teardown, so the wiring can release external presence.
	onClose func(emptied []string)

	rooms map[string]bool
	cfg   config.WebSocketConfig

	dropped atomic.Int64
}

func NewClient(id, userID, username string, roles []string, h *Hub, conn *websocket.Conn, cfg config.WebSocketConfig) *Client {
	if cfg.SendQueueSize <= 0 {
		cfg.SendQueueSize = 256
	}
	c := &Client{
		ID:       id,
		UserID:   userID,
		Username: username,
		Roles:    roles,
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, cfg.SendQueueSize),
		done:     make(chan struct{}),
		rooms:    make(map[string]bool),
		cfg:      cfg,
	}
	c.state.Store(int32(StateAuthenticated))
	return c
}

func (c *Client) State() State {
	return State(c.state.Load())
}

func (c *Client) activate() {
	c.state.CompareAndSwap(int32(StateAuthenticated), int32(StateActive))
}

// OnClose registers a teardown callback. Set before the pumps start.
func (c *Client) OnClose(fn func(emptied []string)) {
	c.onClose = fn
}

// HasRole reports whether the session's identity carries the given role.
func (c *Client) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Enqueue marshals the frame onto the outbound queue. It never blocks:
// when the queue is full the oldest pending frame is dropped with a
// warning so one slow client cannot stall a fan-out.
func (c *Client) Enqueue(frame domain.Frame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return c.EnqueueRaw(data)
}

func (c *Client) EnqueueRaw(data []byte) error {
	if c.State() == StateClosed {
		return ErrSessionClosed
	}

	select {
	case c.send <- data:
		return nil
	default:
	}

	// Queue full: drop the oldest frame to make room.
	select {
	case <-c.send:
		c.dropped.Add(1)
	default:
	}

	select {
	case c.send <- data:
	default:
		c.dropped.Add(1)
	}

	if n := c.dropped.Load(); n > 0 && n%64 == 1 {
		l := log.L()
		l.Warn().
			Str(log.FieldClientID, c.ID).
			Str(log.FieldUserID, c.UserID).
			Int64("dropped_total", n).
			Msg("outbound queue backed up, dropping oldest frames")
	}
	return nil
}

// DroppedFrames reports how many outbound frames were shed under backpressure.
func (c *Client) DroppedFrames() int64 {
	return c.dropped.Load()
}

// Outbound exposes the queue for transports that drain it themselves.
func (c *Client) Outbound() <-chan []byte {
	return c.send
}

// Close runs the teardown path exactly once, whatever triggered it:
// explicit close, read error or expired deadline. It removes the session
// from every room before releasing the transport.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.state.Store(int32(StateClosed))
		emptied := c.hub.DropSession(c)
		close(c.done)
		if c.conn != nil {
			c.conn.Close()
		}
		if c.onClose != nil {
			c.onClose(emptied)
		}
		l := log.L()
		l.Debug().
			Str(log.FieldClientID, c.ID).
			Str(log.FieldUserID, c.UserID).
			Msg("session closed")
	})
}

// ReadPump pulls frames off the connection and hands them to the handler.
// It owns the read side: deadlines, size limit and pong bookkeeping.
// Runs as the session's goroutine; returning triggers teardown.
func (c *Client) ReadPump(handler func(*Client, []byte)) {
	defer c.Close()

	c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				l := log.L()
				l.Warn().Str(log.FieldClientID, c.ID).Err(err).Msg("websocket read error")
			}
			return
		}

		handler(c, message)
	}
}

// WritePump drains the outbound queue onto the connection and keeps the
// connection alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Flush whatever else is already queued.
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
