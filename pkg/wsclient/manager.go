// Package wsclient is the client side of the realtime update channel: a
// connection manager that owns one physical websocket connection, recovers
// from failures with capped exponential backoff, and fans inbound messages
// out to any number of subscribers.
package wsclient

import (
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/badarshafiq1122/mental-health-tracker/internal/protocol"
)

const writeWait = 10 * time.Second

// State is the manager's connection lifecycle state.
type State int

const (
	// StateIdle: no connection and no attempt in flight.
	StateIdle State = iota
	// StateConnecting: a dial is in progress.
	StateConnecting
	// StateOpen: the physical connection is established.
	StateOpen
	// StateReconnectWait: disconnected, a backoff timer is pending.
	StateReconnectWait
	// StateCooldown: retry attempts exhausted; waiting for the reset
	// window before a fresh connect is allowed.
	StateCooldown
	// StateClosed: terminally closed; the manager cannot be reused.
	StateClosed
)

// Manager multiplexes many subscribers over a single websocket connection.
// Construct one per process in the composition root and hand it to
// whatever needs realtime updates; it is safe for concurrent use.
type Manager struct {
	opts   Options
	logger zerolog.Logger

	mu             sync.Mutex
	state          State
	conn           *websocket.Conn
	attempt        int
	backoff        *backoff.ExponentialBackOff
	reconnectTimer *time.Timer
	cooldownTimer  *time.Timer
	pingTimer      *time.Timer

	// gen identifies the current connection cycle so callbacks from a
	// superseded socket or timer cannot corrupt newer state.
	gen uint64

	writeMu sync.Mutex

	fan *fanout
}

func NewManager(opts Options) *Manager {
	opts = opts.withDefaults()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = opts.BaseDelay
	bo.RandomizationFactor = 0
	bo.Multiplier = 2
	bo.MaxInterval = opts.MaxDelay
	bo.MaxElapsedTime = 0
	bo.Reset()

	m := &Manager{
		opts:    opts,
		logger:  opts.Logger.With().Str("component", "wsclient").Logger(),
		backoff: bo,
		fan:     newFanout(opts.DedupWindow, opts.Logger),
	}
	m.fan.onEmpty = m.Disconnect
	return m
}

// Connect opens the physical connection. It is idempotent: while an
// attempt is in flight, a connection is open, a retry is pending, or the
// cooldown window is running, Connect does nothing.
func (m *Manager) Connect() {
	m.mu.Lock()
	if m.state != StateIdle {
		m.mu.Unlock()
		m.logger.Debug().Int("state", int(m.state)).Msg("connect ignored")
		return
	}
	m.state = StateConnecting
	gen := m.gen
	m.mu.Unlock()

	go m.dial(gen)
}

func (m *Manager) dial(gen uint64) {
	endpoint := m.opts.URL + "?token=" + url.QueryEscape(m.opts.Token)
	conn, _, err := m.opts.Dialer.Dial(endpoint, nil)

	m.mu.Lock()
	if m.gen != gen || m.state != StateConnecting {
		m.mu.Unlock()
		if err == nil {
			conn.Close()
		}
		return
	}

	if err != nil {
		m.logger.Warn().Err(err).Int("attempt", m.attempt).Msg("dial failed")
		m.scheduleRetryLocked()
		m.mu.Unlock()
		return
	}

	m.conn = conn
	m.state = StateOpen
	m.attempt = 0
	m.backoff.Reset()
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}

	// Confirm liveness end to end shortly after open.
	m.pingTimer = time.AfterFunc(m.opts.ConfirmPingDelay, func() {
		m.mu.Lock()
		ok := m.gen == gen && m.state == StateOpen
		m.mu.Unlock()
		if ok {
			m.Send(protocol.TypePing, nil)
		}
	})
	m.mu.Unlock()

	m.logger.Info().Msg("websocket connected")
	go m.readLoop(conn, gen)
}

func (m *Manager) readLoop(conn *websocket.Conn, gen uint64) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			code := websocket.CloseAbnormalClosure
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				code = ce.Code
			}
			m.handleClose(gen, code, err)
			return
		}

		msg, err := protocol.Decode(data)
		if err != nil {
			// Malformed payloads are dropped; the connection stays up.
			m.logger.Warn().Err(err).Msg("discarding undecodable message")
			continue
		}

		// Liveness is symmetric: answer the server's ping right away.
		if msg.Type == protocol.TypePing {
			m.Send(protocol.TypePong, nil)
		}

		m.fan.dispatch(msg)
	}
}

func (m *Manager) handleClose(gen uint64, code int, err error) {
	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return
	}
	m.gen++
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.stopPingTimerLocked()

	m.logger.Info().Err(err).Int("code", code).Msg("websocket disconnected")

	if m.state != StateClosed {
		if code == websocket.CloseNormalClosure || code == websocket.CloseGoingAway {
			m.state = StateIdle
		} else {
			m.state = StateIdle
			m.scheduleRetryLocked()
		}
	}
	m.mu.Unlock()

	m.fan.setConnected(false)
}

// scheduleRetryLocked runs the backoff arm of the state machine. The
// caller holds m.mu.
func (m *Manager) scheduleRetryLocked() {
	if m.attempt >= m.opts.MaxAttempts {
		m.state = StateCooldown
		m.logger.Warn().
			Int("attempts", m.attempt).
			Dur("cooldown", m.opts.Cooldown).
			Msg("maximum reconnection attempts reached")
		m.cooldownTimer = time.AfterFunc(m.opts.Cooldown, m.endCooldown)
		return
	}

	delay := m.backoff.NextBackOff()
	m.attempt++
	m.state = StateReconnectWait
	gen := m.gen

	m.logger.Info().
		Int("attempt", m.attempt).
		Int("max_attempts", m.opts.MaxAttempts).
		Dur("delay", delay).
		Msg("scheduling reconnect")

	m.reconnectTimer = time.AfterFunc(delay, func() {
		m.mu.Lock()
		if m.gen != gen || m.state != StateReconnectWait {
			m.mu.Unlock()
			return
		}
		m.state = StateConnecting
		m.mu.Unlock()
		m.dial(gen)
	})
}

func (m *Manager) endCooldown() {
	m.mu.Lock()
	if m.state == StateCooldown {
		m.attempt = 0
		m.backoff.Reset()
		m.state = StateIdle
		m.logger.Info().Msg("cooldown elapsed, reconnection allowed")
	}
	m.mu.Unlock()
}

// Send writes one message on the current connection. Returns false when
// no connection is open or the write fails.
func (m *Manager) Send(msgType protocol.Type, payload map[string]any) bool {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return false
	}

	data, err := protocol.Encode(protocol.New(msgType, payload))
	if err != nil {
		return false
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		m.logger.Warn().Err(err).Str("type", string(msgType)).Msg("send failed")
		return false
	}
	return true
}

// Subscribe registers callbacks for inbound messages and derived signals.
// The current signals are replayed to the new subscriber immediately.
func (m *Manager) Subscribe(sub Subscriber) SubscriptionID {
	return m.fan.subscribe(sub)
}

// Unsubscribe removes a subscriber. When the last subscriber leaves, the
// physical connection is torn down and the derived signals cleared.
func (m *Manager) Unsubscribe(id SubscriptionID) {
	m.fan.unsubscribe(id)
}

// Disconnect performs a normal closure and returns the manager to idle.
// No automatic reconnection follows; Connect may be called again.
func (m *Manager) Disconnect() {
	m.closeWith(StateIdle)
}

// Close shuts the manager down for good.
func (m *Manager) Close() {
	m.closeWith(StateClosed)
}

func (m *Manager) closeWith(next State) {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return
	}
	m.gen++
	conn := m.conn
	m.conn = nil
	m.stopPingTimerLocked()
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	if m.cooldownTimer != nil {
		m.cooldownTimer.Stop()
		m.cooldownTimer = nil
	}
	m.attempt = 0
	m.backoff.Reset()
	m.state = next
	m.mu.Unlock()

	if conn != nil {
		deadline := time.Now().Add(writeWait)
		m.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "Normal closure"), deadline)
		m.writeMu.Unlock()
		conn.Close()
	}

	m.fan.setConnected(false)
}

func (m *Manager) stopPingTimerLocked() {
	if m.pingTimer != nil {
		m.pingTimer.Stop()
		m.pingTimer = nil
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connected reports the derived connection signal (true once the server
// confirmed the session, false after any disconnect).
func (m *Manager) Connected() bool {
	connected, _, _ := m.fan.snapshotState()
	return connected
}

// LastMessage returns the most recent inbound message, if any.
func (m *Manager) LastMessage() *protocol.Message {
	_, msg, _ := m.fan.snapshotState()
	return msg
}

// LastError returns the most recent error surfaced by the server.
func (m *Manager) LastError() error {
	_, _, err := m.fan.snapshotState()
	return err
}
