// Package testutil provides shared fixtures for telemetrystream tests.
//
// # Payloads
//
// TestEventPayloads, TestFaultPayloads, TestControlPayloads and
// TestMalformedPayloads cover every inbound frame shape. EventPayload and
// FaultPayload build single frames, and Generator produces a reproducible
// bursty stream with per-category baselines and occasional spikes.
//
// # Servers
//
// MockServer is an httptest websocket source. Tests script it with Send,
// CloseClients (a close frame with a chosen code), DropClients (an abrupt
// socket close) and SetReject (failing handshakes). It answers application
// pings with pongs.
//
// StartNATSContainer runs a real NATS server through testcontainers-go for
// tests behind the integration build tag.
package testutil
