// Package metric provides Prometheus-based metrics for the telemetry pipeline.
//
// The package offers a registry that owns a private Prometheus registry with the
// core pipeline metrics, Go runtime and process collectors, and extensible
// registration for component-specific metrics.
//
// # Basic Usage
//
//	registry := metric.NewMetricsRegistry()
//	mux.Handle("/metrics", registry.Handler())
//
//	core := registry.CoreMetrics()
//	core.RecordReceived("event")
//	core.RecordDropped("paused")
//
// # Core Metrics
//
// All core metrics live under the telemetrystream namespace:
//
//   - events_received_total{kind}: inbound frames (event, fault, control)
//   - events_dropped_total{reason}: events shed before aggregation
//   - shaper_emissions_total{strategy}: emissions per backpressure strategy
//   - connection_status, connection_latency_milliseconds, connection_reconnect_attempts_total
//   - errors_total{code}: error log entries by code
//   - state_snapshots_published_total
//
// Components accept a *MetricsRegistry and treat nil as "metrics disabled". The
// Record methods on *Metrics are nil-safe so callers do not need to guard them.
//
// # Component Metrics
//
// Components register their own collectors through MetricsRegistrar. Registration
// is keyed by component and metric name; a duplicate key or a Prometheus conflict
// returns an Invalid classified error instead of panicking.
package metric
