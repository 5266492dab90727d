// Package errors provides standardized error handling patterns for telemetrystream components.
//
// # Overview
//
// Errors fall into three classes: Transient (temporary, retryable), Invalid (bad input or
// configuration, not retryable) and Fatal (unrecoverable). The pipeline maps its failure
// taxonomy onto these classes:
//
//   - Transport faults (dial failure, dropped connection): Transient
//   - Protocol faults (malformed payload, server fault envelope): Invalid
//   - Configuration faults (bad strategy or interval): Invalid, rejected at the boundary
//   - Reconnect exhaustion: ErrMaxRetriesExceeded, never retried automatically
//
// Nothing in the core is Fatal; every error degrades into observable state.
//
// # Wrapping
//
// Wrap produces messages of the form "component.method: action failed: cause":
//
//	if err := dialer.Dial(ctx); err != nil {
//	    return errors.WrapTransient(err, "websocket", "Dial", "open connection")
//	}
//
// The sentinels work with errors.Is through any wrapping chain, and the package
// re-exports Is, As and New so callers need a single import.
package errors
