// Package stream coordinates the telemetry pipeline and owns its state.
//
// A Coordinator runs the connection source and the shaper in their own
// goroutines and applies everything that comes back (events, faults,
// connection changes, shaper emissions and user controls) on a single loop.
// That loop is the only writer of ApplicationState. Each change produces a
// new immutable snapshot, published through Snapshots and readable at any
// time with Snapshot.
//
// # Flow
//
//	source.Events -> [paused? rate limit? backlog full?] -> shaper -> aggregator -> snapshot
//	source.Faults -> error log (last MaxErrors)          -> snapshot
//	source.States -> Connection                          -> snapshot
//
// While paused, inbound events are discarded before the shaper and any
// emission the shaper still produces is discarded too. Dropped events are
// counted by reason on the events_dropped_total metric.
//
// # Controls
//
// Start, Stop, Pause, Resume, ClearMetrics, ClearErrors and Reset enqueue a
// command and return immediately. UpdateConfig validates synchronously so the
// caller learns about a rejected configuration; the rejection is also recorded
// in the error log as INVALID_CONFIG.
package stream
