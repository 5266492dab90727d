// Package message defines the telemetry wire model and its decoder.
//
// Inbound payloads are JSON objects of one of three shapes:
//
//	{"id":"cpu_1","type":"cpu","value":42.5,"timestamp":"2025-01-01T12:00:00Z","metadata":{"region":"eu-west-1"}}
//	{"error":"Rate limit exceeded","code":"RATE_LIMIT","severity":"error","timestamp":"..."}
//	{"type":"connected","message":"Connected to metrics stream","timestamp":"..."}
//
// Decode classifies each payload into a Frame of KindEvent, KindFault or KindControl.
// Events are validated (lowercase category, finite value within [0,100]); a missing id
// is replaced with a UUID and a missing or unparseable timestamp with the receive time.
// Faults default to code SERVER_ERROR and severity error. Anything else is rejected
// with an Invalid classified error so the caller can record it and keep reading.
package message
