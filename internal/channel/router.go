package channel

import (
	"github.com/rs/zerolog"

	"github.com/badarshafiq1122/mental-health-tracker/internal/protocol"
)

// Router delivers typed messages to registered connections. It is
// stateless; the registry is an explicit dependency so domain services can
// be handed a Router and tests can substitute their own registry.
type Router struct {
	registry *Registry
	metrics  *Metrics
	logger   zerolog.Logger
}

func NewRouter(registry *Registry, metrics *Metrics, logger zerolog.Logger) *Router {
	return &Router{
		registry: registry,
		metrics:  metrics,
		logger:   logger.With().Str("component", "router").Logger(),
	}
}

// Broadcast sends a message of the given type to every open connection,
// or only to connections owned by *owner when owner is non-nil. It returns
// the number of connections the message was delivered to; zero is a
// normal outcome, not an error.
func (rt *Router) Broadcast(msgType protocol.Type, payload map[string]any, owner *int64) int {
	msg := protocol.New(msgType, payload)
	data, err := protocol.Encode(msg)
	if err != nil {
		rt.logger.Error().Err(err).Str("type", string(msgType)).Msg("failed to encode broadcast")
		return 0
	}

	rt.metrics.BroadcastsTotal.WithLabelValues(string(msgType)).Inc()

	count := 0
	rt.registry.ForEachLive(owner, func(c *Conn) {
		if c.enqueue(data) {
			count++
			rt.metrics.MessagesDelivered.Inc()
			return
		}
		// A failed send never aborts the broadcast. The liveness
		// supervisor deals with the connection if it stays stuck.
		rt.metrics.SendFailures.Inc()
		rt.logger.Warn().
			Uint64("conn_id", c.ID()).
			Str("type", string(msgType)).
			Msg("send queue full, dropping message for connection")
	})

	rt.logger.Debug().
		Str("type", string(msgType)).
		Int("delivered", count).
		Msg("broadcast complete")

	return count
}
