package channel

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics instruments the realtime channel.
type Metrics struct {
	ActiveConnections    prometheus.Gauge
	ConnectionsTotal     prometheus.Counter
	HandshakeRejections  *prometheus.CounterVec
	MessagesDelivered    prometheus.Counter
	SendFailures         prometheus.Counter
	LivenessTerminations prometheus.Counter
	BroadcastsTotal      *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ActiveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "relay_active_connections",
			Help: "Currently registered websocket connections.",
		}),
		ConnectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_connections_total",
			Help: "Total accepted websocket connections.",
		}),
		HandshakeRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_handshake_rejections_total",
			Help: "Handshakes rejected before registration.",
		}, []string{"reason"}),
		MessagesDelivered: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_messages_delivered_total",
			Help: "Messages queued for delivery to connections.",
		}),
		SendFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_send_failures_total",
			Help: "Per-connection send failures during broadcast or ping.",
		}),
		LivenessTerminations: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_liveness_terminations_total",
			Help: "Connections terminated after missing two consecutive pings.",
		}),
		BroadcastsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_broadcasts_total",
			Help: "Broadcast operations by message type.",
		}, []string{"type"}),
	}
}
