// Package shaper converts a bursty event stream into a consumer-paced one.
//
// # Strategies
//
//   - throttle: leading edge only; an event is emitted on receipt when nothing was
//     emitted within the last interval, otherwise it is dropped
//   - debounce: the latest event is emitted after an interval without arrivals
//   - buffer: events are collected into fixed windows anchored when the strategy
//     starts and each non-empty window is emitted as one batch; BufferSize > 0
//     emits a batch early once it reaches that size
//   - sample: the latest event is emitted on a fixed clock; arrivals never move it
//
// # Scheduling
//
// Each strategy is a Scheduler driven by explicit timestamps. Shaper.Run owns a
// single time.Timer that it re-arms from Scheduler.Next after every decision, so
// there is never more than one pending timer and nothing fires once Run returns.
//
// # Reconfiguration
//
// Reconfigure is non-blocking and latest-wins. When the loop applies a new
// configuration it flushes the outgoing scheduler first: whatever it held (a
// debounced event, a partial buffer window, an unsampled event) is emitted once,
// immediately, in the outgoing strategy's shape. The new scheduler starts empty
// with its clock anchored at the switch instant.
//
// # Admission
//
// Limiter is an optional token bucket placed in front of the shaper. Shed events
// are counted and reported as a ShedReport at most once per report interval.
package shaper
