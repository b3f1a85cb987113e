// Package channel implements the server side of the realtime update
// channel: an authenticated websocket connection registry with
// owner-tagged broadcast and ping/pong liveness supervision.
package channel

import (
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/badarshafiq1122/mental-health-tracker/internal/auth"
	"github.com/badarshafiq1122/mental-health-tracker/internal/protocol"
)

// Server accepts websocket connections, runs the authentication handshake
// and registers authenticated connections for broadcast.
type Server struct {
	validator *auth.Validator
	registry  *Registry
	limiter   *AdmissionLimiter
	metrics   *Metrics
	logger    zerolog.Logger

	handshakeTimeout time.Duration
	upgrader         websocket.Upgrader

	nextID       atomic.Uint64
	shuttingDown atomic.Bool
}

func NewServer(validator *auth.Validator, registry *Registry, limiter *AdmissionLimiter, metrics *Metrics, handshakeTimeout time.Duration, logger zerolog.Logger) *Server {
	return &Server{
		validator: validator,
		registry:  registry,
		limiter:   limiter,
		metrics:   metrics,
		logger:    logger.With().Str("component", "channel").Logger(),

		handshakeTimeout: handshakeTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Bearer-token auth carries the trust decision; the
				// channel is not cookie-authenticated.
				return true
			},
			HandshakeTimeout:  handshakeTimeout,
			EnableCompression: true,
		},
	}
}

// HandleWS is the handshake endpoint. A connection is Connecting until the
// upgrade completes, Authenticating until its credential is validated, and
// Open once registered. Nothing is broadcast to a connection before Open.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	if s.shuttingDown.Load() {
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}

	ip := clientIP(r)
	if s.limiter != nil && !s.limiter.Allow(ip) {
		s.metrics.HandshakeRejections.WithLabelValues("rate_limited").Inc()
		s.logger.Warn().Str("client_ip", ip).Msg("connection rejected: rate limit exceeded")
		http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.metrics.HandshakeRejections.WithLabelValues("upgrade").Inc()
		s.logger.Warn().Err(err).Str("client_ip", ip).Msg("websocket upgrade failed")
		return
	}

	// Authenticating. The credential travels as the "token" query
	// parameter of the opening request. An unauthenticated connection
	// never reaches the registry.
	owner, err := s.validator.Validate(auth.TokenFromRequest(r))
	if err != nil {
		s.metrics.HandshakeRejections.WithLabelValues("auth").Inc()
		s.logger.Warn().Err(err).Str("client_ip", ip).Msg("websocket authentication failed")
		deadline := time.Now().Add(s.handshakeTimeout)
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "Authentication failed"),
			deadline)
		_ = ws.Close()
		return
	}

	c := newConn(s.nextID.Add(1), owner, ws, s.logger)
	s.registry.Insert(c)
	s.metrics.ConnectionsTotal.Inc()
	s.metrics.ActiveConnections.Inc()

	s.logger.Info().
		Uint64("conn_id", c.ID()).
		Int64("owner", owner).
		Str("client_ip", ip).
		Msg("websocket authenticated")

	go c.writePump()

	if data, err := protocol.Encode(protocol.New(protocol.TypeConnectionSuccess, map[string]any{
		"message": "Connection established",
	})); err == nil {
		c.enqueue(data)
	}

	go s.readPump(c, ws)
}

// readPump consumes inbound frames for one connection until the transport
// closes from either side.
func (s *Server) readPump(c *Conn, ws *websocket.Conn) {
	defer func() {
		if s.registry.Remove(c.ID()) {
			s.metrics.ActiveConnections.Dec()
		}
		c.terminate()
		s.logger.Info().Uint64("conn_id", c.ID()).Int64("owner", c.Owner()).Msg("websocket disconnected")
	}()

	ws.SetReadLimit(maxMessageSize)

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug().Err(err).Uint64("conn_id", c.ID()).Msg("read error")
			}
			return
		}

		msg, err := protocol.Decode(data)
		if err != nil {
			// Malformed payloads get an ERROR reply; the connection
			// stays open.
			s.logger.Warn().Err(err).Uint64("conn_id", c.ID()).Msg("undecodable message")
			if reply, err := protocol.Encode(protocol.New(protocol.TypeError, map[string]any{
				"message": "Error processing message",
			})); err == nil {
				c.enqueue(reply)
			}
			continue
		}

		switch msg.Type {
		case protocol.TypePong:
			c.alive.Store(true)
		case protocol.TypePing:
			if reply, err := protocol.Encode(protocol.New(protocol.TypePong, nil)); err == nil {
				c.enqueue(reply)
			}
		default:
			// Unknown and unexpected types are accepted and ignored.
		}
	}
}

// Shutdown stops accepting new connections and closes every registered
// connection with a going-away status.
func (s *Server) Shutdown() {
	s.shuttingDown.Store(true)
	closed := s.registry.CloseAll(websocket.CloseGoingAway, "Server shutting down")
	s.metrics.ActiveConnections.Sub(float64(closed))
	s.logger.Info().Int("closed", closed).Msg("channel shut down")
}

// clientIP extracts the client address, honoring X-Forwarded-For when the
// server sits behind a proxy.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
