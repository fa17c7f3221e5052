package monitoring

import (
	"peerlens/internal/core/domain"
	"peerlens/internal/core/ports"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RelayCollector exposes relay activity to Prometheus. Implements
// ports.RelayObserver.
type RelayCollector struct {
	peersConnected     prometheus.Gauge
	registrationsTotal *prometheus.CounterVec
	messagesRouted     *prometheus.CounterVec
	messagesDropped    *prometheus.CounterVec
	negotiateNowTotal  prometheus.Counter
}

func NewRelayCollector() *RelayCollector {
	return &RelayCollector{
		peersConnected: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "peerlens_peers_connected",
			Help: "Number of currently registered peer connections",
		}),

		registrationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "peerlens_registrations_total",
			Help: "Total peer registrations, including reconnect replacements",
		}, []string{"role", "replaced"}),

		messagesRouted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "peerlens_messages_routed_total",
			Help: "Signaling messages delivered to a counterpart",
		}, []string{"type"}),

		messagesDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "peerlens_messages_dropped_total",
			Help: "Signaling messages dropped for lack of a counterpart or malformed content",
		}, []string{"type"}),

		negotiateNowTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "peerlens_negotiate_now_total",
			Help: "Negotiate-now instructions emitted to consumers",
		}),
	}
}

func (c *RelayCollector) PeerRegistered(role domain.Role, replaced bool) {
	label := "false"
	if replaced {
		label = "true"
	} else {
		c.peersConnected.Inc()
	}
	c.registrationsTotal.WithLabelValues(string(role), label).Inc()
}

func (c *RelayCollector) PeerUnregistered(domain.Role) {
	c.peersConnected.Dec()
}

func (c *RelayCollector) MessageRouted(t domain.SignalType) {
	c.messagesRouted.WithLabelValues(string(t)).Inc()
}

func (c *RelayCollector) MessageDropped(t domain.SignalType) {
	c.messagesDropped.WithLabelValues(string(t)).Inc()
}

func (c *RelayCollector) NegotiateNowEmitted() {
	c.negotiateNowTotal.Inc()
}

var _ ports.RelayObserver = (*RelayCollector)(nil)
