package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPath      string
	LogLevel        string
	LogFormat       string
	Debug           bool
	ShutdownTimeout time.Duration
	NoAutostart     bool
	ShowVersion     bool
	Validate        bool
}

func parseFlags(args []string, stderr io.Writer) (*CLIConfig, error) {
	cfg := &CLIConfig{}
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)
	fs.SetOutput(stderr)

	configPath := getEnv("TELEMETRY_CONFIG", "")
	fs.StringVar(&cfg.ConfigPath, "config", configPath,
		"Path to a JSON or YAML configuration file (env: TELEMETRY_CONFIG)")
	fs.StringVar(&cfg.ConfigPath, "c", configPath,
		"Path to a JSON or YAML configuration file (env: TELEMETRY_CONFIG)")

	// Empty log flags defer to the config file
	fs.StringVar(&cfg.LogLevel, "log-level", "",
		"Log level: debug, info, warn, error (overrides config)")
	fs.StringVar(&cfg.LogFormat, "log-format", "",
		"Log format: json, text, console (overrides config)")

	fs.BoolVar(&cfg.Debug, "debug", getEnvBool("TELEMETRY_DEBUG", false),
		"Enable debug logging (env: TELEMETRY_DEBUG)")
	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout",
		getEnvDuration("TELEMETRY_SHUTDOWN_TIMEOUT", 10*time.Second),
		"Graceful shutdown timeout (env: TELEMETRY_SHUTDOWN_TIMEOUT)")
	fs.BoolVar(&cfg.NoAutostart, "no-autostart", getEnvBool("TELEMETRY_NO_AUTOSTART", false),
		"Do not connect on boot; wait for POST /control/start (env: TELEMETRY_NO_AUTOSTART)")

	fs.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	fs.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	fs.BoolVar(&cfg.Validate, "validate", false, "Validate configuration and exit")

	fs.Usage = func() { printDetailedHelp(fs, stderr) }

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if cfg.Debug {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

func validateFlags(cfg *CLIConfig) error {
	if cfg.ShowVersion {
		return nil
	}
	if cfg.ConfigPath != "" {
		if _, err := os.Stat(cfg.ConfigPath); err != nil {
			return fmt.Errorf("config file not found: %s", cfg.ConfigPath)
		}
	}
	if cfg.LogLevel != "" {
		if _, ok := parseLevel(cfg.LogLevel); !ok {
			return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
		}
	}
	switch cfg.LogFormat {
	case "", "json", "text", "console":
	default:
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}
	if cfg.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid shutdown timeout: %v", cfg.ShutdownTimeout)
	}
	return nil
}

func printDetailedHelp(fs *flag.FlagSet, w io.Writer) {
	_, _ = fmt.Fprintf(w, `%s - real-time telemetry streaming pipeline

Usage: %s [options]

Options:
`, appName, appName)
	fs.PrintDefaults()
	_, _ = fmt.Fprintf(w, `
Examples:
  # Stream from a websocket source with defaults
  TELEMETRY_SOURCE_URL=ws://sensors.local:8765/telemetry %s

  # Run with a config file and text logs
  %s --config=configs/telemetry.yaml --log-format=text

  # Validate configuration only
  %s --config=configs/telemetry.yaml --validate

Endpoints:
  /ws                    state snapshots for display clients
  /state                 current state snapshot
  /health                pipeline health
  /metrics               Prometheus metrics
  POST /config           shaper update, e.g. {"strategy":"debounce","intervalMs":300}
  POST /control/{action} start, stop, pause, resume, reset, clear-metrics, clear-errors

Version: %s
`, appName, appName, appName, Version)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
