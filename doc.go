// Package telemetrystream is a real-time telemetry pipeline: it holds a
// resilient connection to a telemetry source, paces the bursty event stream
// with a configurable backpressure strategy, folds events into per-category
// aggregates and publishes immutable state snapshots to display clients.
//
// # Architecture
//
//	┌──────────────────────┐   events, faults, states
//	│  connection.Manager  │ ─────────────────────────┐
//	│  (input/websocket,   │                          ▼
//	│   input/nats)        │            ┌──────────────────────────┐
//	└──────────────────────┘            │    stream.Coordinator    │
//	           ▲  Connect/Disconnect    │  admission (rate limit)  │
//	           └─────────────────────── │  shaper.Shaper           │
//	                                    │  aggregate.Aggregator    │
//	                                    └──────────────────────────┘
//	                                                 │ ApplicationState
//	                                                 ▼
//	                                    ┌──────────────────────────┐
//	                                    │ output/websocket         │
//	                                    │ Broadcaster, /state,     │
//	                                    │ /health, /metrics        │
//	                                    └──────────────────────────┘
//
// # Packages
//
//   - message: inbound frame model and decoder (events, faults, control frames)
//   - connection: connection lifecycle, exponential backoff reconnect, latency probes
//   - input/websocket, input/nats: transports behind connection.Dialer
//   - shaper: throttle, debounce, buffer and sample strategies plus token-bucket admission
//   - aggregate: rolling statistics and trend per category
//   - stream: the coordinator that owns ApplicationState and the user controls
//   - output/websocket: snapshot fan-out to display clients
//   - health, metric, config, errors: ambient infrastructure
//   - pkg/retry, pkg/buffer, pkg/observable, pkg/mailbox, pkg/timestamp: shared building blocks
//
// # Running
//
//	go run ./cmd/telemetrystream --config config/testdata/telemetry.yaml
//
// Every long-lived component exposes Run(ctx) and stops cleanly when ctx is
// cancelled. Public control methods never block.
package telemetrystream
