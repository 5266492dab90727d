// Package health reports pipeline health in three levels.
//
//   - healthy: connected and streaming
//   - degraded: working with reduced function (connecting, transport error, paused)
//   - unhealthy: disconnected with no recovery in progress
//
// FromState derives a Status from a stream snapshot. Error messages copied
// into a Status are sanitized first, so URLs, addresses, file paths and
// credentials embedded in transport errors are not exposed by the /health
// endpoint.
//
//	mux.Handle("/health", health.Handler(func() health.Status {
//	    return health.Aggregate("telemetrystream", []health.Status{
//	        health.FromState("stream", coordinator.Snapshot(), time.Now()),
//	    })
//	}))
package health
