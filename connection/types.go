package connection

import (
	"context"
	"fmt"
	"time"

	"github.com/c360/telemetrystream/errors"
	"github.com/c360/telemetrystream/message"
	"github.com/c360/telemetrystream/pkg/retry"
)

// Status is the coarse connection lifecycle state.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusError        Status = "error"
)

// Gauge maps the status onto the connection_status metric.
func (s Status) Gauge() int {
	switch s {
	case StatusConnecting:
		return 1
	case StatusConnected:
		return 2
	case StatusError:
		return 3
	default:
		return 0
	}
}

// State is a point-in-time view of the connection. It is replaced, never
// mutated, on every transition.
type State struct {
	Status            Status        `json:"status"`
	LastConnectedAt   time.Time     `json:"lastConnected,omitzero"`
	ReconnectAttempts uint          `json:"reconnectAttempts"`
	Latency           time.Duration `json:"latency"`
}

// Connected reports whether the status is StatusConnected.
func (s State) Connected() bool {
	return s.Status == StatusConnected
}

// Dialer opens transport connections.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// Conn is one open transport connection. ReadMessage is called from a single
// goroutine; WriteMessage may be called concurrently with it and must be safe
// for concurrent use. A read error ends the connection; a peer-initiated normal
// close is reported as errors.ErrClosedNormally.
type Conn interface {
	ReadMessage(ctx context.Context) ([]byte, error)
	WriteMessage(ctx context.Context, data []byte) error
	Close() error
}

// RTTProvider is implemented by transports that can measure round-trip time
// natively. Other transports are measured with application-level ping frames.
type RTTProvider interface {
	RTT() (time.Duration, error)
}

// Fault is a connection or protocol problem reported to observers.
type Fault struct {
	Code      string
	Message   string
	Severity  message.Severity
	Retryable bool
	At        time.Time
	Err       error
}

// Error implements error
func (f Fault) Error() string {
	return fmt.Sprintf("%s: %s", f.Code, f.Message)
}

// Unwrap returns the underlying cause
func (f Fault) Unwrap() error {
	return f.Err
}

// Config configures a Manager.
type Config struct {
	MaxReconnectAttempts int
	InitialDelay         time.Duration
	MaxDelay             time.Duration
	Multiplier           float64
	DialTimeout          time.Duration
	// PingInterval enables latency measurement when positive.
	PingInterval time.Duration
	// EventBuffer is the capacity of the Events channel.
	EventBuffer int
}

// DefaultConfig returns the standard reconnect policy: ten attempts starting at
// one second, doubling, capped at thirty seconds.
func DefaultConfig() Config {
	return Config{
		MaxReconnectAttempts: 10,
		InitialDelay:         time.Second,
		MaxDelay:             30 * time.Second,
		Multiplier:           2,
		DialTimeout:          10 * time.Second,
		EventBuffer:          256,
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.DialTimeout <= 0 {
		return errors.WrapInvalid(fmt.Errorf("%w: dial timeout must be positive", errors.ErrInvalidConfig),
			"connection", "Validate", "validate config")
	}
	if c.InitialDelay <= 0 {
		return errors.WrapInvalid(fmt.Errorf("%w: initial delay must be positive", errors.ErrInvalidConfig),
			"connection", "Validate", "validate config")
	}
	if c.Multiplier != 0 && c.Multiplier < 1 {
		return errors.WrapInvalid(fmt.Errorf("%w: multiplier %v below 1", errors.ErrInvalidConfig, c.Multiplier),
			"connection", "Validate", "validate config")
	}
	if c.PingInterval < 0 || c.EventBuffer < 0 {
		return errors.WrapInvalid(fmt.Errorf("%w: negative ping interval or event buffer", errors.ErrInvalidConfig),
			"connection", "Validate", "validate config")
	}
	if err := c.Backoff().Validate(); err != nil {
		return errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err),
			"connection", "Validate", "validate backoff")
	}
	return nil
}

// Backoff returns the reconnect schedule as a retry configuration.
func (c Config) Backoff() retry.Config {
	return retry.Config{
		MaxAttempts:  c.MaxReconnectAttempts,
		InitialDelay: c.InitialDelay,
		MaxDelay:     c.MaxDelay,
		Multiplier:   c.Multiplier,
	}
}
