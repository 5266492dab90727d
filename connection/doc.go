// Package connection keeps a single transport connection alive and turns its
// payloads into decoded events and faults.
//
// A Manager runs as an actor: Connect, Disconnect and Send enqueue intent and
// return at once, and one goroutine (Run) applies it. Transports plug in through
// the Dialer and Conn interfaces; input/websocket and input/nats provide the
// concrete ones.
//
// # Lifecycle
//
//	disconnected --Connect--> connecting --ok--> connected
//	                              |                  |
//	                            fail           unexpected close
//	                              v                  v
//	                            error ------> reconnect timer ------> connecting
//
// Failed dials and unexpected closes schedule a reconnect after
// min(InitialDelay * Multiplier^(n-1), MaxDelay) for attempt n. Once
// MaxReconnectAttempts is spent the manager stays disconnected and reports
// RECONNECT_EXHAUSTED until Connect is called again. A normal close from the
// peer ends the session without reconnecting.
//
// Every dial, disconnect and reconnect bumps a generation counter. Results,
// closures and timer callbacks carrying an older generation are ignored, so
// nothing from a torn-down connection can change state after Disconnect.
//
// # Observation
//
// States is a replaying feed that publishes on status changes only; State
// returns the latest value including latency. Events and Faults are closed
// when Run returns.
package connection
