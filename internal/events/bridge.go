// Package events feeds domain events from the message broker into the
// realtime channel. Domain services publish "something happened" envelopes
// to well-known subjects; the bridge turns each one into a broadcast.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/badarshafiq1122/mental-health-tracker/internal/protocol"
)

// Event is the broker-side envelope. OwnerID nil means every authenticated
// connection; otherwise delivery is restricted to that owner.
type Event struct {
	OwnerID *int64         `json:"ownerId"`
	Payload map[string]any `json:"payload"`
}

// Broadcaster is the collaborator interface exposed by the channel router.
type Broadcaster interface {
	Broadcast(msgType protocol.Type, payload map[string]any, owner *int64) int
}

// subjectTypes maps broker subjects to wire message types.
var subjectTypes = map[string]protocol.Type{
	"tracker.events.log.created": protocol.TypeLogCreate,
	"tracker.events.log.updated": protocol.TypeLogUpdate,
	"tracker.events.log.deleted": protocol.TypeLogDelete,
	"tracker.events.analytics":   protocol.TypeAnalyticsUpdate,
}

// Bridge subscribes to domain event subjects and forwards them to the
// broadcaster.
type Bridge struct {
	conn        *nats.Conn
	broadcaster Broadcaster
	logger      zerolog.Logger
	subs        []*nats.Subscription
}

// Connect dials the broker and prepares a bridge. Subscriptions start with
// Start so callers can wire everything before traffic flows.
func Connect(url string, broadcaster Broadcaster, logger zerolog.Logger) (*Bridge, error) {
	b := &Bridge{
		broadcaster: broadcaster,
		logger:      logger.With().Str("component", "events").Logger(),
	}

	opts := []nats.Option{
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			b.logger.Warn().Err(err).Msg("disconnected from broker")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			b.logger.Info().Str("url", nc.ConnectedUrl()).Msg("reconnected to broker")
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			b.logger.Error().Err(err).Msg("broker error")
		}),
	}

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to broker: %w", err)
	}
	b.conn = conn

	return b, nil
}

// Start subscribes to every domain event subject.
func (b *Bridge) Start() error {
	for subject, msgType := range subjectTypes {
		msgType := msgType
		sub, err := b.conn.Subscribe(subject, func(msg *nats.Msg) {
			b.HandleEvent(msgType, msg.Data)
		})
		if err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
		}
		b.subs = append(b.subs, sub)
		b.logger.Info().Str("subject", subject).Msg("subscribed to domain events")
	}
	return nil
}

// HandleEvent decodes one broker envelope and broadcasts it. Undecodable
// events are logged and dropped; the bridge never pushes garbage onto the
// wire.
func (b *Bridge) HandleEvent(msgType protocol.Type, data []byte) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		b.logger.Warn().Err(err).Str("type", string(msgType)).Msg("dropping undecodable event")
		return
	}

	count := b.broadcaster.Broadcast(msgType, ev.Payload, ev.OwnerID)
	b.logger.Debug().
		Str("type", string(msgType)).
		Int("delivered", count).
		Msg("domain event forwarded")
}

// Close drains subscriptions and closes the broker connection.
func (b *Bridge) Close() {
	for _, sub := range b.subs {
		_ = sub.Unsubscribe()
	}
	if b.conn != nil {
		b.conn.Close()
	}
}
