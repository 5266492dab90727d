package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every metric exported by the pipeline.
const Namespace = "telemetrystream"

// Metrics contains the pipeline-level metrics shared by all components.
// All Record methods are safe to call on a nil *Metrics.
type Metrics struct {
	// Ingest
	EventsReceived *prometheus.CounterVec
	EventsDropped  *prometheus.CounterVec

	// Shaping
	Emissions *prometheus.CounterVec

	// Connection
	ConnectionStatus  prometheus.Gauge
	ConnectionLatency prometheus.Gauge
	ReconnectAttempts prometheus.Counter

	// State
	ErrorsTotal        *prometheus.CounterVec
	SnapshotsPublished prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all pipeline metrics
func NewMetrics() *Metrics {
	return &Metrics{
		EventsReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "events",
				Name:      "received_total",
				Help:      "Total number of inbound frames by kind (event, fault, control)",
			},
			[]string{"kind"},
		),

		EventsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "events",
				Name:      "dropped_total",
				Help:      "Total number of events shed before aggregation, by reason",
			},
			[]string{"reason"},
		),

		Emissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "shaper",
				Name:      "emissions_total",
				Help:      "Total number of shaper emissions by strategy",
			},
			[]string{"strategy"},
		),

		ConnectionStatus: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "connection",
				Name:      "status",
				Help:      "Connection status (0=disconnected, 1=connecting, 2=connected, 3=error)",
			},
		),

		ConnectionLatency: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "connection",
				Name:      "latency_milliseconds",
				Help:      "Last measured round-trip latency in milliseconds",
			},
		),

		ReconnectAttempts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "connection",
				Name:      "reconnect_attempts_total",
				Help:      "Total number of scheduled reconnect attempts",
			},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "errors",
				Name:      "total",
				Help:      "Total number of recorded errors by code",
			},
			[]string{"code"},
		),

		SnapshotsPublished: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "state",
				Name:      "snapshots_published_total",
				Help:      "Total number of application state snapshots published",
			},
		),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.EventsReceived,
		m.EventsDropped,
		m.Emissions,
		m.ConnectionStatus,
		m.ConnectionLatency,
		m.ReconnectAttempts,
		m.ErrorsTotal,
		m.SnapshotsPublished,
	}
}

// RecordReceived increments the inbound frame counter
func (m *Metrics) RecordReceived(kind string) {
	if m == nil {
		return
	}
	m.EventsReceived.WithLabelValues(kind).Inc()
}

// RecordDropped increments the shed event counter
func (m *Metrics) RecordDropped(reason string) {
	if m == nil {
		return
	}
	m.EventsDropped.WithLabelValues(reason).Inc()
}

// RecordEmission increments the shaper emission counter
func (m *Metrics) RecordEmission(strategy string) {
	if m == nil {
		return
	}
	m.Emissions.WithLabelValues(strategy).Inc()
}

// RecordConnectionStatus updates the connection status gauge
func (m *Metrics) RecordConnectionStatus(status int) {
	if m == nil {
		return
	}
	m.ConnectionStatus.Set(float64(status))
}

// RecordLatency updates the round-trip latency gauge
func (m *Metrics) RecordLatency(rtt time.Duration) {
	if m == nil {
		return
	}
	m.ConnectionLatency.Set(float64(rtt.Milliseconds()))
}

// RecordReconnect increments the reconnect attempt counter
func (m *Metrics) RecordReconnect() {
	if m == nil {
		return
	}
	m.ReconnectAttempts.Inc()
}

// RecordError increments the error counter
func (m *Metrics) RecordError(code string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(code).Inc()
}

// RecordSnapshot increments the published snapshot counter
func (m *Metrics) RecordSnapshot() {
	if m == nil {
		return
	}
	m.SnapshotsPublished.Inc()
}
