// Package retry provides exponential backoff policy and retry helpers.
//
// # Overview
//
// Config describes a backoff schedule. Delay computes the wait before a given
// attempt, which the connection manager uses to schedule reconnects on its own timer.
// Do and DoWithResult run a function synchronously under the same schedule.
//
// # Configuration Presets
//
//   - DefaultConfig(): 3 attempts, 100ms-5s delay, jitter (short operations)
//   - Reconnect(): 10 attempts, 1s-30s delay, no jitter (transport reconnection)
//
// # Usage Examples
//
// Reconnect schedule:
//
//	cfg := retry.Reconnect()
//	for attempt := 1; cfg.Allows(attempt); attempt++ {
//	    fmt.Println(cfg.Delay(attempt)) // 1s 2s 4s 8s 16s 30s 30s ...
//	}
//
// Synchronous retry:
//
//	ln, err := retry.DoWithResult(ctx, retry.DefaultConfig(), func() (net.Listener, error) {
//	    return net.Listen("tcp", addr)
//	})
//
// # Context Cancellation
//
// Do respects context cancellation and stops retrying immediately when the context is
// cancelled, either during the operation or during the backoff delay.
//
// # Thread Safety
//
// All functions are safe for concurrent use. Jitter uses a mutex-guarded random source.
package retry
