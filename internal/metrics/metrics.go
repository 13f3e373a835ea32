// Package metrics holds the Prometheus collectors of the display server.
// Collectors register on the default registry at init via promauto.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "webcanvas"

// Connection Metrics
var (
	// ConnectionsActive tracks viewers currently attached to a window
	ConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Number of viewer connections currently attached",
		},
	)

	// ConnectionsTotal tracks accepted viewer connections
	ConnectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Total viewer connections accepted",
		},
	)

	// MessagesTotal tracks protocol messages by direction and tag
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Protocol messages by direction (in/out) and tag",
		},
		[]string{"direction", "tag"},
	)

	// SendsDroppedTotal tracks payloads refused because a viewer's send queue was full
	SendsDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sends_dropped_total",
			Help:      "Outbound payloads dropped by a full or closed connection",
		},
	)

	// PingFailures tracks keepalive pings that could not be written
	PingFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ping_failures_total",
			Help:      "Keepalive pings that failed to write",
		},
	)
)

// Painter Metrics
var (
	// CommandsTotal tracks finished commands by verb kind and outcome
	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Finished commands by verb kind and outcome (succeeded/failed)",
		},
		[]string{"verb", "outcome"},
	)

	// UpdatesTotal tracks resolved update requests by outcome
	UpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "updates_total",
			Help:      "Resolved update requests by outcome (delivered/failed)",
		},
		[]string{"outcome"},
	)

	// DeliveredVersion tracks the version every viewer has rendered
	DeliveredVersion = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "delivered_version",
			Help:      "Document version confirmed by every connected viewer",
		},
	)

	// ProtocolErrorsTotal tracks dropped inbound messages by error code
	ProtocolErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "protocol_errors_total",
			Help:      "Inbound messages dropped by error code",
		},
		[]string{"code"},
	)
)
