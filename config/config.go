package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/c360/telemetrystream/connection"
	"github.com/c360/telemetrystream/errors"
	wsout "github.com/c360/telemetrystream/output/websocket"
	"github.com/c360/telemetrystream/pkg/security"
	"github.com/c360/telemetrystream/shaper"
)

// Source types
const (
	SourceWebSocket = "websocket"
	SourceNATS      = "nats"
)

// Duration is a time.Duration that decodes from a Go duration string ("1s",
// "250ms") or a number of milliseconds, and encodes as a string.
type Duration time.Duration

// D returns the value as a time.Duration
func (d Duration) D() time.Duration { return time.Duration(d) }

// MarshalJSON encodes the duration as a Go duration string
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON accepts "1s" style strings or integer milliseconds
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("%w: duration %q: %v", errors.ErrInvalidConfig, s, err)
		}
		*d = Duration(v)
		return nil
	}
	ms, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("%w: duration %s is neither a string nor a number", errors.ErrInvalidConfig, data)
	}
	*d = Duration(time.Duration(ms * float64(time.Millisecond)))
	return nil
}

// Config is the complete process configuration
type Config struct {
	Source    SourceConfig    `json:"source"`
	Reconnect ReconnectConfig `json:"reconnect"`
	Shaper    ShaperConfig    `json:"shaper"`
	RateLimit RateLimitConfig `json:"rate_limit"`
	Ping      PingConfig      `json:"ping"`
	Server    ServerConfig    `json:"server"`
	Log       LogConfig       `json:"log"`
}

// SourceConfig selects and configures the telemetry transport
type SourceConfig struct {
	Type             string             `json:"type"` // websocket or nats
	URL              string             `json:"url"`
	Subject          string             `json:"subject,omitempty"`         // nats only
	CommandSubject   string             `json:"command_subject,omitempty"` // nats only
	Name             string             `json:"name,omitempty"`
	DialTimeout      Duration           `json:"dial_timeout"`
	HandshakeTimeout Duration           `json:"handshake_timeout,omitempty"`
	ReadLimit        int64              `json:"read_limit,omitempty"`
	EventBuffer      int                `json:"event_buffer"`
	TLS              security.ClientTLS `json:"tls"`
}

// ReconnectConfig is the exponential backoff policy
type ReconnectConfig struct {
	MaxAttempts  int      `json:"max_attempts"`
	InitialDelay Duration `json:"initial_delay"`
	MaxDelay     Duration `json:"max_delay"`
	Multiplier   float64  `json:"multiplier"`
}

// ShaperConfig is the initial backpressure strategy
type ShaperConfig struct {
	Strategy   string   `json:"strategy"`
	Interval   Duration `json:"interval"`
	BufferSize int      `json:"buffer_size,omitempty"`
	Backlog    int      `json:"backlog,omitempty"`
}

// RateLimitConfig configures admission shedding ahead of the shaper
type RateLimitConfig struct {
	Enabled        bool     `json:"enabled"`
	Rate           float64  `json:"rate"`
	Burst          int      `json:"burst"`
	ReportInterval Duration `json:"report_interval"`
}

// PingConfig configures latency measurement. Zero disables pings.
type PingConfig struct {
	Interval Duration `json:"interval"`
}

// ServerConfig configures the display and observability HTTP server
type ServerConfig struct {
	Addr           string             `json:"addr"`
	AllowedOrigins []string           `json:"allowed_origins,omitempty"`
	WriteTimeout   Duration           `json:"write_timeout"`
	PingInterval   Duration           `json:"ping_interval"`
	TLS            security.ServerTLS `json:"tls"`
}

// LogConfig configures the process logger
type LogConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text or console
}

// Default returns the built-in configuration
func Default() *Config {
	conn := connection.DefaultConfig()
	sh := shaper.DefaultConfig()
	ws := wsout.DefaultConfig()
	return &Config{
		Source: SourceConfig{
			Type:        SourceWebSocket,
			URL:         "ws://localhost:8765/telemetry",
			Subject:     "telemetry.>",
			DialTimeout: Duration(conn.DialTimeout),
			EventBuffer: conn.EventBuffer,
		},
		Reconnect: ReconnectConfig{
			MaxAttempts:  conn.MaxReconnectAttempts,
			InitialDelay: Duration(conn.InitialDelay),
			MaxDelay:     Duration(conn.MaxDelay),
			Multiplier:   conn.Multiplier,
		},
		Shaper: ShaperConfig{
			Strategy: string(sh.Strategy),
			Interval: Duration(sh.Interval),
		},
		RateLimit: RateLimitConfig{
			Rate:           500,
			Burst:          100,
			ReportInterval: Duration(5 * time.Second),
		},
		Ping: PingConfig{Interval: Duration(10 * time.Second)},
		Server: ServerConfig{
			Addr:         ":8080",
			WriteTimeout: Duration(ws.WriteTimeout),
			PingInterval: Duration(ws.PingInterval),
		},
		Log: LogConfig{Level: "info", Format: "json"},
	}
}

// Validate checks every section, returning the first problem found
func (c *Config) Validate() error {
	switch c.Source.Type {
	case SourceWebSocket, SourceNATS:
	default:
		return invalid(fmt.Errorf("%w: source.type %q", errors.ErrInvalidConfig, c.Source.Type))
	}
	if c.Source.URL == "" {
		return invalid(fmt.Errorf("%w: source.url", errors.ErrMissingConfig))
	}
	if c.Source.Type == SourceNATS && c.Source.Subject == "" {
		return invalid(fmt.Errorf("%w: source.subject", errors.ErrMissingConfig))
	}
	if c.Server.Addr == "" {
		return invalid(fmt.Errorf("%w: server.addr", errors.ErrMissingConfig))
	}
	switch c.Log.Format {
	case "json", "text", "console":
	default:
		return invalid(fmt.Errorf("%w: log.format %q", errors.ErrInvalidConfig, c.Log.Format))
	}

	checks := []func() error{
		c.Connection().Validate,
		c.ShaperConfig().Validate,
		c.Source.TLS.Validate,
		c.Server.TLS.Validate,
	}
	if lim, ok := c.Limiter(); ok {
		checks = append(checks, lim.Validate)
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

func invalid(err error) error {
	return errors.WrapInvalid(err, "config", "Validate", "validate config")
}

// Connection returns the connection manager settings
func (c *Config) Connection() connection.Config {
	return connection.Config{
		MaxReconnectAttempts: c.Reconnect.MaxAttempts,
		InitialDelay:         c.Reconnect.InitialDelay.D(),
		MaxDelay:             c.Reconnect.MaxDelay.D(),
		Multiplier:           c.Reconnect.Multiplier,
		DialTimeout:          c.Source.DialTimeout.D(),
		PingInterval:         c.Ping.Interval.D(),
		EventBuffer:          c.Source.EventBuffer,
	}
}

// ShaperConfig returns the initial shaper settings
func (c *Config) ShaperConfig() shaper.Config {
	return shaper.Config{
		Strategy:   shaper.Strategy(c.Shaper.Strategy),
		Interval:   c.Shaper.Interval.D(),
		BufferSize: c.Shaper.BufferSize,
	}
}

// Limiter returns the admission limiter settings when rate limiting is enabled
func (c *Config) Limiter() (shaper.LimiterConfig, bool) {
	if !c.RateLimit.Enabled {
		return shaper.LimiterConfig{}, false
	}
	return shaper.LimiterConfig{
		Rate:           c.RateLimit.Rate,
		Burst:          c.RateLimit.Burst,
		ReportInterval: c.RateLimit.ReportInterval.D(),
	}, true
}

// Broadcaster returns the display server client settings
func (c *Config) Broadcaster() wsout.Config {
	cfg := wsout.DefaultConfig()
	cfg.WriteTimeout = c.Server.WriteTimeout.D()
	cfg.PingInterval = c.Server.PingInterval.D()
	cfg.AllowedOrigins = c.Server.AllowedOrigins
	return cfg
}

// String returns the configuration as indented JSON
func (c *Config) String() string {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
