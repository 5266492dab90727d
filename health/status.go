package health

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/c360/telemetrystream/connection"
	"github.com/c360/telemetrystream/stream"
)

// Health levels
const (
	LevelHealthy   = "healthy"
	LevelDegraded  = "degraded"
	LevelUnhealthy = "unhealthy"
)

var (
	urlRegex         = regexp.MustCompile(`(?:https?|wss?|nats|tls)://[^\s]+`)
	unixPathRegex    = regexp.MustCompile(`/[a-zA-Z0-9/_.-]+`)
	windowsPathRegex = regexp.MustCompile(`[A-Z]:\\[^:\s]+`)
	ipAddrRegex      = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)
	portRegex        = regexp.MustCompile(`:\d{2,5}\b`)
	credentialRegex  = regexp.MustCompile(`(?i)(password|token|key|secret|credential)[^a-zA-Z]*[:=][^,\s}]+`)
)

// Status is the health of the pipeline or one of its parts.
type Status struct {
	Component   string    `json:"component"`
	Healthy     bool      `json:"healthy"`
	Status      string    `json:"status"`
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	SubStatuses []Status  `json:"sub_statuses,omitempty"`
	Metrics     *Metrics  `json:"metrics,omitempty"`
}

// Metrics are the figures reported alongside a status.
type Metrics struct {
	Uptime            time.Duration `json:"uptime,omitempty"`
	ErrorCount        int           `json:"error_count"`
	ReconnectAttempts uint          `json:"reconnect_attempts"`
	LatencyMs         int64         `json:"latency_ms"`
	StateVersion      uint64        `json:"state_version"`
	LastUpdate        time.Time     `json:"last_update,omitzero"`
}

// IsHealthy returns true if the status is healthy
func (s Status) IsHealthy() bool { return s.Status == LevelHealthy }

// IsDegraded returns true if the status is degraded
func (s Status) IsDegraded() bool { return s.Status == LevelDegraded }

// IsUnhealthy returns true if the status is unhealthy
func (s Status) IsUnhealthy() bool { return s.Status == LevelUnhealthy }

// WithMetrics returns a copy of the status with metrics attached
func (s Status) WithMetrics(metrics *Metrics) Status {
	s.Metrics = metrics
	return s
}

// WithSubStatus returns a copy with sub appended. The receiver's slice is not shared.
func (s Status) WithSubStatus(sub Status) Status {
	subs := make([]Status, len(s.SubStatuses), len(s.SubStatuses)+1)
	copy(subs, s.SubStatuses)
	s.SubStatuses = append(subs, sub)
	return s
}

// FromState derives pipeline health from a state snapshot:
//
//   - connected: healthy, or degraded while paused
//   - connecting or error: degraded
//   - disconnected: unhealthy, or degraded while paused
//
// The latest error message, when present, replaces the default message after
// sanitization.
func FromState(name string, st stream.ApplicationState, now time.Time) Status {
	var level, msg string
	switch st.Connection.Status {
	case connection.StatusConnected:
		level, msg = LevelHealthy, "Streaming"
	case connection.StatusConnecting:
		level = LevelDegraded
		msg = fmt.Sprintf("Connecting (attempt %d)", st.Connection.ReconnectAttempts)
	case connection.StatusError:
		level, msg = LevelDegraded, "Connection error"
	default:
		level, msg = LevelUnhealthy, "Disconnected"
	}
	if st.Paused {
		if level == LevelHealthy || level == LevelUnhealthy {
			level = LevelDegraded
		}
		msg += ", paused"
	}
	if level != LevelHealthy {
		if rec, ok := st.LatestError(); ok {
			msg = fmt.Sprintf("%s: %s", msg, sanitizeErrorMessage(rec.Message))
		}
	}

	return Status{
		Component: name,
		Healthy:   level == LevelHealthy,
		Status:    level,
		Message:   msg,
		Timestamp: now,
		Metrics: &Metrics{
			ErrorCount:        len(st.Errors),
			ReconnectAttempts: st.Connection.ReconnectAttempts,
			LatencyMs:         st.Connection.Latency.Milliseconds(),
			StateVersion:      st.Version,
			LastUpdate:        st.LastUpdate,
		},
	}
}

// sanitizeErrorMessage redacts details that should not leave the process:
//
//   - URLs → [URL]
//   - file paths → [PATH]
//   - IP addresses → [IP]
//   - ports → [PORT]
//   - password=X, token=X and similar → [REDACTED]
func sanitizeErrorMessage(msg string) string {
	if msg == "" {
		return ""
	}

	// URLs contain paths, so they go first
	out := urlRegex.ReplaceAllString(msg, "[URL]")
	out = unixPathRegex.ReplaceAllString(out, "[PATH]")
	out = windowsPathRegex.ReplaceAllString(out, "[PATH]")
	out = ipAddrRegex.ReplaceAllString(out, "[IP]")
	out = portRegex.ReplaceAllString(out, "[PORT]")

	lower := strings.ToLower(out)
	for _, word := range []string{"password", "token", "key", "secret", "credential"} {
		if strings.Contains(lower, word) {
			out = credentialRegex.ReplaceAllString(out, "[REDACTED]")
			break
		}
	}
	return out
}
