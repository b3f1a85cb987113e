package wsclient

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Options configures a Manager. Zero values fall back to the defaults
// below, which match the server's liveness and handshake settings.
type Options struct {
	// URL is the channel endpoint, e.g. "ws://localhost:3002/ws".
	// The bearer token is appended as the "token" query parameter.
	URL   string
	Token string

	// Reconnection: delay = min(BaseDelay * 2^attempt, MaxDelay), up to
	// MaxAttempts attempts, then a Cooldown before the counter resets.
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
	Cooldown    time.Duration

	// DedupWindow suppresses repeated (type, timestamp) messages.
	DedupWindow time.Duration

	// ConfirmPingDelay is how long after open the confirmation ping is
	// sent to verify liveness end to end.
	ConfirmPingDelay time.Duration

	Dialer *websocket.Dialer
	Logger zerolog.Logger
}

const (
	defaultBaseDelay        = time.Second
	defaultMaxDelay         = 10 * time.Second
	defaultMaxAttempts      = 5
	defaultCooldown         = 30 * time.Second
	defaultDedupWindow      = 5 * time.Second
	defaultConfirmPingDelay = time.Second
)

func (o Options) withDefaults() Options {
	if o.BaseDelay <= 0 {
		o.BaseDelay = defaultBaseDelay
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = defaultMaxDelay
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = defaultMaxAttempts
	}
	if o.Cooldown <= 0 {
		o.Cooldown = defaultCooldown
	}
	if o.DedupWindow <= 0 {
		o.DedupWindow = defaultDedupWindow
	}
	if o.ConfirmPingDelay <= 0 {
		o.ConfirmPingDelay = defaultConfirmPingDelay
	}
	if o.Dialer == nil {
		o.Dialer = websocket.DefaultDialer
	}
	return o
}
