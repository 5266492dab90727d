// Package main runs the telemetrystream pipeline: it connects to a telemetry
// source, shapes and aggregates the stream, and serves state snapshots to
// display clients over websocket alongside health, metrics and control
// endpoints.
package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/c360/telemetrystream/config"
	"github.com/c360/telemetrystream/pkg/retry"
	"github.com/c360/telemetrystream/pkg/tlsutil"
)

// Build information
const (
	Version = "0.1.0"
	appName = "telemetrystream"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cli, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	if err := validateFlags(cli); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	if cli.ShowVersion {
		_, _ = fmt.Fprintf(stdout, "%s version %s\n", appName, Version)
		return nil
	}

	cfg, err := loadConfig(cli)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := setupLogger(stdout, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	if cli.Validate {
		logger.Info("Configuration is valid", "source", cfg.Source.Type, "strategy", cfg.Shaper.Strategy)
		return nil
	}

	dialer, err := buildDialer(cfg)
	if err != nil {
		return fmt.Errorf("build dialer: %w", err)
	}
	p, err := buildPipeline(cfg, dialer, logger)
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}

	serverTLS, err := tlsutil.LoadServerTLSConfig(cfg.Server.TLS)
	if err != nil {
		return fmt.Errorf("load server TLS: %w", err)
	}
	ln, err := listen(ctx, cfg.Server.Addr, serverTLS)
	if err != nil {
		return err
	}

	logger.Info("Starting telemetrystream",
		"addr", ln.Addr().String(),
		"source", cfg.Source.Type,
		"strategy", cfg.Shaper.Strategy,
		"interval", cfg.Shaper.Interval.D())

	return serve(ctx, p, ln, cli, logger)
}

func loadConfig(cli *CLIConfig) (*config.Config, error) {
	loader := config.NewLoader()
	if cli.ConfigPath != "" {
		loader.AddLayer(cli.ConfigPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}
	if cli.LogLevel != "" {
		cfg.Log.Level = cli.LogLevel
	}
	if cli.LogFormat != "" {
		cfg.Log.Format = cli.LogFormat
	}
	return cfg, nil
}

// listen retries briefly so a restart can wait out a socket still held by
// the previous process.
func listen(ctx context.Context, addr string, tlsCfg *tls.Config) (net.Listener, error) {
	policy := retry.Config{
		MaxAttempts:  5,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2,
	}
	ln, err := retry.DoWithResult(ctx, policy, func() (net.Listener, error) {
		var lc net.ListenConfig
		return lc.Listen(ctx, "tcp", addr)
	})
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	if tlsCfg != nil {
		ln = tls.NewListener(ln, tlsCfg)
	}
	return ln, nil
}

// serve runs the pipeline and HTTP server until ctx is cancelled or either fails.
func serve(ctx context.Context, p *pipeline, ln net.Listener, cli *CLIConfig, logger *slog.Logger) error {
	srv := &http.Server{
		Handler:           newMux(p),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return p.coordinator.Run(gctx)
	})

	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down", "timeout", cli.ShutdownTimeout)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cli.ShutdownTimeout)
		defer cancel()
		_ = p.broadcaster.Close()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	if !cli.NoAutostart {
		p.coordinator.Start()
	}

	err := g.Wait()
	logger.Info("telemetrystream stopped")
	return err
}
