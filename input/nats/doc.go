// Package nats provides a NATS transport for the connection manager.
//
// Telemetry arrives as messages on Dialer.Subject, one payload per message.
// Outbound payloads are published to Dialer.CommandSubject. The nats.go client
// is created with reconnection disabled so that reconnect policy stays in one
// place. Conn implements connection.RTTProvider, so latency is measured with
// the server's native PING rather than application frames.
package nats
