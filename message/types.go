package message

import (
	"regexp"
	"time"
)

// Category identifies the metric family an event belongs to.
// The set is open; the producers in practice send the four below.
type Category string

const (
	CategoryCPU     Category = "cpu"
	CategoryMemory  Category = "memory"
	CategoryNetwork Category = "network"
	CategoryDisk    Category = "disk"
)

var categoryPattern = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

// Valid reports whether c is a non-empty lowercase identifier.
func (c Category) Valid() bool {
	return categoryPattern.MatchString(string(c))
}

// String returns the category name
func (c Category) String() string {
	return string(c)
}

// Value bounds for telemetry events.
const (
	MinValue = 0.0
	MaxValue = 100.0
)

// Event is one decoded telemetry reading. Events are values and are never
// modified after Decode returns them.
type Event struct {
	ID        string            `json:"id"`
	Category  Category          `json:"category"`
	Value     float64           `json:"value"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Severity grades faults and error records.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// ParseSeverity maps a wire severity to a Severity. ok is false for unknown values.
func ParseSeverity(s string) (Severity, bool) {
	switch sev := Severity(s); sev {
	case SeverityInfo, SeverityWarning, SeverityError, SeverityCritical:
		return sev, true
	default:
		return "", false
	}
}

// Fault codes carried by server envelopes and raised by the pipeline itself.
const (
	CodeConnFailed         = "WS_CONN_FAILED"
	CodeClosed             = "WS_CLOSED"
	CodeInvalidMessage     = "INVALID_MSG"
	CodeRateLimit          = "RATE_LIMIT"
	CodeServerError        = "SERVER_ERROR"
	CodeReconnectExhausted = "RECONNECT_EXHAUSTED"
	CodeInvalidConfig      = "INVALID_CONFIG"
	CodeStreamError        = "METRICS_STREAM_ERROR"
)

// Fault is a server-signalled error envelope: {error, code, severity, timestamp}.
type Fault struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity"`
	Timestamp time.Time `json:"timestamp"`
}

// Control frame types.
const (
	ControlConnected = "connected"
	ControlPing      = "ping"
	ControlPong      = "pong"
)

func isControlType(t string) bool {
	return t == ControlConnected || t == ControlPing || t == ControlPong
}

// Control is a protocol frame that is neither an event nor a fault.
type Control struct {
	Type      string    `json:"type"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Kind discriminates decoded frames.
type Kind int

const (
	KindEvent Kind = iota + 1
	KindFault
	KindControl
)

// String returns the kind name used in logs and metric labels
func (k Kind) String() string {
	switch k {
	case KindEvent:
		return "event"
	case KindFault:
		return "fault"
	case KindControl:
		return "control"
	default:
		return "unknown"
	}
}

// Frame is the result of decoding one inbound payload. Exactly one of
// Event, Fault or Control is meaningful, selected by Kind.
type Frame struct {
	Kind    Kind
	Event   Event
	Fault   Fault
	Control Control
}
