// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// ConversationsTotal tracks conversations created per channel kind.
	ConversationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversations_total",
			Help: "Total conversations created",
		},
		[]string{"channel"},
	)

	// MessagesReceivedTotal tracks inbound messages per channel kind.
	MessagesReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_received_total",
			Help: "Total inbound messages",
		},
		[]string{"channel"},
	)

	// MessagesSentTotal tracks outbound messages per channel kind and outcome.
	MessagesSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_sent_total",
			Help: "Total outbound messages",
		},
		[]string{"channel", "status"},
	)

	// AdapterSendsTotal tracks channel adapter dispatch attempts.
	AdapterSendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adapter_sends_total",
			Help: "Channel adapter send attempts",
		},
		[]string{"channel", "outcome"},
	)

	// AssignmentsTotal tracks assignment attempts by outcome.
	AssignmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assignments_total",
			Help: "Conversation assignment attempts",
		},
		[]string{"outcome"},
	)

	// EscalationsTotal tracks escalations by reason.
	EscalationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escalations_total",
			Help: "Conversation escalations",
		},
		[]string{"reason"},
	)

	// ClassifierDuration tracks classification latency per implementation.
	ClassifierDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "classifier_duration_seconds",
			Help:    "Classification latency",
			Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1},
		},
		[]string{"implementation"},
	)

	// ClassifierTimeoutsTotal tracks classifications that fell back to neutral.
	ClassifierTimeoutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "classifier_timeouts_total",
			Help: "Classifications that timed out",
		},
	)

	// BusDroppedEventsTotal tracks events dropped per subscriber.
	BusDroppedEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bus_dropped_events_total",
			Help: "Events dropped due to subscriber queue overflow",
		},
		[]string{"subscriber"},
	)

	// AgentsOnline tracks agents currently online.
	AgentsOnline = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "agents_online",
			Help: "Agents currently online",
		},
	)

	// SSEConnectionsActive tracks active SSE connections.
	SSEConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)

	// RelayConnected reports whether the realtime relay is connected.
	RelayConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_connected",
			Help: "1 when the realtime relay websocket is connected",
		},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordAdapterSend records one adapter dispatch attempt.
func RecordAdapterSend(channel, outcome string) {
	AdapterSendsTotal.WithLabelValues(channel, outcome).Inc()
}
