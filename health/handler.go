package health

import (
	"encoding/json"
	"net/http"
)

// Handler serves the status returned by check as JSON. Unhealthy maps to
// 503 Service Unavailable; healthy and degraded map to 200.
func Handler(check func() Status) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		status := check()
		code := http.StatusOK
		if status.IsUnhealthy() {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(status)
	})
}
