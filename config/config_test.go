package config

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/telemetrystream/connection"
	"github.com/c360/telemetrystream/errors"
	"github.com/c360/telemetrystream/shaper"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, connection.DefaultConfig().MaxReconnectAttempts, cfg.Connection().MaxReconnectAttempts)
	assert.Equal(t, shaper.DefaultConfig(), cfg.ShaperConfig())

	_, enabled := cfg.Limiter()
	assert.False(t, enabled)
}

func TestDuration_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		input   string
		want    time.Duration
		wantErr bool
	}{
		{`"1s"`, time.Second, false},
		{`"1m30s"`, 90 * time.Second, false},
		{`250`, 250 * time.Millisecond, false},
		{`1.5`, 1500 * time.Microsecond, false},
		{`"soon"`, 0, true},
		{`true`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			var d Duration
			err := json.Unmarshal([]byte(tt.input), &d)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, errors.ErrInvalidConfig))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.D())
		})
	}
}

func TestDuration_MarshalJSON(t *testing.T) {
	data, err := json.Marshal(Duration(1500 * time.Millisecond))
	require.NoError(t, err)
	assert.JSONEq(t, `"1.5s"`, string(data))
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"unknown source", func(c *Config) { c.Source.Type = "mqtt" }, errors.ErrInvalidConfig},
		{"missing url", func(c *Config) { c.Source.URL = "" }, errors.ErrMissingConfig},
		{"nats without subject", func(c *Config) {
			c.Source.Type = SourceNATS
			c.Source.Subject = ""
		}, errors.ErrMissingConfig},
		{"missing addr", func(c *Config) { c.Server.Addr = "" }, errors.ErrMissingConfig},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, errors.ErrInvalidConfig},
		{"short interval", func(c *Config) { c.Shaper.Interval = Duration(10 * time.Millisecond) }, errors.ErrInvalidConfig},
		{"bad strategy", func(c *Config) { c.Shaper.Strategy = "drop" }, errors.ErrInvalidConfig},
		{"zero dial timeout", func(c *Config) { c.Source.DialTimeout = 0 }, errors.ErrInvalidConfig},
		{"enabled limiter without rate", func(c *Config) {
			c.RateLimit.Enabled = true
			c.RateLimit.Rate = 0
		}, errors.ErrInvalidConfig},
		{"server tls without files", func(c *Config) { c.Server.TLS.Enabled = true }, errors.ErrMissingConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err), "got %v", err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestConfig_Converters(t *testing.T) {
	cfg := Default()
	cfg.Reconnect.MaxAttempts = 3
	cfg.Reconnect.InitialDelay = Duration(200 * time.Millisecond)
	cfg.Ping.Interval = Duration(time.Second)
	cfg.Shaper = ShaperConfig{Strategy: "buffer", Interval: Duration(500 * time.Millisecond), BufferSize: 50}
	cfg.RateLimit = RateLimitConfig{Enabled: true, Rate: 10, Burst: 5, ReportInterval: Duration(time.Second)}
	cfg.Server.AllowedOrigins = []string{"http://display.local"}

	conn := cfg.Connection()
	assert.Equal(t, 3, conn.MaxReconnectAttempts)
	assert.Equal(t, 200*time.Millisecond, conn.InitialDelay)
	assert.Equal(t, time.Second, conn.PingInterval)

	assert.Equal(t, shaper.Config{Strategy: shaper.StrategyBuffer, Interval: 500 * time.Millisecond, BufferSize: 50},
		cfg.ShaperConfig())

	lim, ok := cfg.Limiter()
	require.True(t, ok)
	assert.Equal(t, shaper.LimiterConfig{Rate: 10, Burst: 5, ReportInterval: time.Second}, lim)

	assert.Equal(t, []string{"http://display.local"}, cfg.Broadcaster().AllowedOrigins)
}
