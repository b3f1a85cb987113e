package channel

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/badarshafiq1122/mental-health-tracker/internal/protocol"
)

// Supervisor reaps dead connections. Every interval it pings each
// registered connection and terminates any that did not answer the
// previous ping: a peer gets one full interval to respond before it is
// considered gone on the following tick.
type Supervisor struct {
	registry *Registry
	interval time.Duration
	metrics  *Metrics
	logger   zerolog.Logger
}

func NewSupervisor(registry *Registry, interval time.Duration, metrics *Metrics, logger zerolog.Logger) *Supervisor {
	return &Supervisor{
		registry: registry,
		interval: interval,
		metrics:  metrics,
		logger:   logger.With().Str("component", "supervisor").Logger(),
	}
}

// Run drives Tick from a wall-clock ticker until ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick()
		}
	}
}

// Tick performs one liveness sweep. Exported so tests can drive the
// detector deterministically.
func (s *Supervisor) Tick() {
	s.registry.ForEachLive(nil, func(c *Conn) {
		if !c.alive.Load() {
			s.logger.Info().
				Uint64("conn_id", c.ID()).
				Int64("owner", c.Owner()).
				Msg("terminating unresponsive connection")
			c.terminate()
			if s.registry.Remove(c.ID()) {
				s.metrics.ActiveConnections.Dec()
			}
			s.metrics.LivenessTerminations.Inc()
			return
		}

		c.alive.Store(false)

		data, err := protocol.Encode(protocol.New(protocol.TypePing, nil))
		if err != nil {
			s.logger.Error().Err(err).Msg("failed to encode ping")
			return
		}
		if !c.enqueue(data) {
			// A failed ping send is logged, never a termination by
			// itself; the cleared alive flag drives the decision.
			s.metrics.SendFailures.Inc()
			s.logger.Warn().Uint64("conn_id", c.ID()).Msg("ping send failed")
		}
	})
}
