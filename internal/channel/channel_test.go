package channel

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/badarshafiq1122/mental-health-tracker/internal/protocol"
)

// fakeTransport stands in for a websocket peer in unit tests.
type fakeTransport struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
}

func (f *fakeTransport) WriteMessage(_ int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, data)
	return nil
}

func (f *fakeTransport) WriteControl(_ int, data []byte, _ time.Time) error {
	return nil
}

func (f *fakeTransport) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func newTestMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}

func newTestConn(id uint64, owner int64) (*Conn, *fakeTransport) {
	ft := &fakeTransport{}
	return newConn(id, owner, ft, zerolog.Nop()), ft
}

// drainQueued decodes everything sitting in a record's outbound queue.
func drainQueued(c *Conn) []protocol.Message {
	var msgs []protocol.Message
	for {
		select {
		case data := <-c.send:
			if msg, err := protocol.Decode(data); err == nil {
				msgs = append(msgs, msg)
			}
		default:
			return msgs
		}
	}
}
