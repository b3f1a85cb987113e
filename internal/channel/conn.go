package channel

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Maximum message size allowed from a peer.
	maxMessageSize = 4096

	// Outbound queue depth per connection.
	sendBuffer = 256
)

// transport is the subset of *websocket.Conn the record writes through.
// Narrowed to an interface so tests can substitute a fake peer.
type transport interface {
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Conn is the server-side record for one physical connection. The transport
// handle is exclusively owned by the record; all interaction goes through
// the registry and router.
type Conn struct {
	id        uint64
	owner     int64
	createdAt time.Time

	ws   transport
	send chan []byte
	done chan struct{}

	// alive is cleared by the liveness supervisor on each tick and set
	// again when the peer answers with a pong.
	alive atomic.Bool

	closed    atomic.Bool
	closeOnce sync.Once

	logger zerolog.Logger
}

func newConn(id uint64, owner int64, ws transport, logger zerolog.Logger) *Conn {
	c := &Conn{
		id:        id,
		owner:     owner,
		createdAt: time.Now(),
		ws:        ws,
		send:      make(chan []byte, sendBuffer),
		done:      make(chan struct{}),
		logger:    logger.With().Uint64("conn_id", id).Int64("owner", owner).Logger(),
	}
	c.alive.Store(true)
	return c
}

func (c *Conn) ID() uint64           { return c.id }
func (c *Conn) Owner() int64         { return c.owner }
func (c *Conn) CreatedAt() time.Time { return c.createdAt }

// enqueue queues a frame for delivery without blocking. A full queue is a
// send failure; the caller logs and moves on.
func (c *Conn) enqueue(data []byte) bool {
	if c.closed.Load() {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// writePump drains the outbound queue onto the wire. One pump per
// connection; exits when the record is closed or a write fails.
func (c *Conn) writePump() {
	defer c.ws.Close()

	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debug().Err(err).Msg("write failed")
				c.terminate()
				return
			}
		}
	}
}

// close sends a close frame with the given status and reason, then tears
// down the transport. Safe to call more than once; repeats are no-ops.
func (c *Conn) close(code int, reason string) {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		deadline := time.Now().Add(writeWait)
		// Best effort; the peer may already be gone.
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, reason), deadline)
		_ = c.ws.Close()
		close(c.done)
	})
}

// terminate hard-closes the transport without a closing handshake.
// Failures are swallowed: the transport may already be gone.
func (c *Conn) terminate() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		_ = c.ws.Close()
		close(c.done)
	})
}

func (c *Conn) isClosed() bool {
	return c.closed.Load()
}
