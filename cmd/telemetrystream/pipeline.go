package main

import (
	"log/slog"
	"strings"

	"github.com/c360/telemetrystream/config"
	"github.com/c360/telemetrystream/connection"
	natsin "github.com/c360/telemetrystream/input/nats"
	wsin "github.com/c360/telemetrystream/input/websocket"
	"github.com/c360/telemetrystream/metric"
	wsout "github.com/c360/telemetrystream/output/websocket"
	"github.com/c360/telemetrystream/pkg/tlsutil"
	"github.com/c360/telemetrystream/stream"
)

// pipeline is the assembled process: source, coordinator and display fan-out.
type pipeline struct {
	registry    *metric.MetricsRegistry
	manager     *connection.Manager
	coordinator *stream.Coordinator
	broadcaster *wsout.Broadcaster
}

func buildDialer(cfg *config.Config) (connection.Dialer, error) {
	tlsCfg, err := tlsutil.LoadClientTLSConfig(cfg.Source.TLS)
	if err != nil {
		return nil, err
	}

	switch cfg.Source.Type {
	case config.SourceNATS:
		// nats.Secure forces TLS, so only plain URLs without TLS settings skip it
		if !strings.HasPrefix(cfg.Source.URL, "tls://") && len(cfg.Source.TLS.CAFiles) == 0 && !cfg.Source.TLS.InsecureSkipVerify {
			tlsCfg = nil
		}
		return &natsin.Dialer{
			URL:            cfg.Source.URL,
			Subject:        cfg.Source.Subject,
			CommandSubject: cfg.Source.CommandSubject,
			Name:           cfg.Source.Name,
			Timeout:        cfg.Source.DialTimeout.D(),
			TLSConfig:      tlsCfg,
		}, nil
	default:
		return &wsin.Dialer{
			URL:              cfg.Source.URL,
			HandshakeTimeout: cfg.Source.HandshakeTimeout.D(),
			ReadLimit:        cfg.Source.ReadLimit,
			TLSConfig:        tlsCfg,
		}, nil
	}
}

func buildPipeline(cfg *config.Config, dialer connection.Dialer, logger *slog.Logger) (*pipeline, error) {
	registry := metric.NewMetricsRegistry()

	manager, err := connection.NewManager(dialer, cfg.Connection(),
		connection.WithLogger(logger),
		connection.WithMetrics(registry))
	if err != nil {
		return nil, err
	}

	opts := []stream.Option{
		stream.WithLogger(logger),
		stream.WithMetrics(registry),
		stream.WithBacklog(cfg.Shaper.Backlog),
	}
	if lim, ok := cfg.Limiter(); ok {
		opts = append(opts, stream.WithRateLimit(lim))
	}
	coordinator, err := stream.New(manager, cfg.ShaperConfig(), opts...)
	if err != nil {
		return nil, err
	}

	broadcaster := wsout.NewBroadcaster(coordinator.Snapshots(),
		wsout.WithLogger(logger),
		wsout.WithMetrics(registry),
		wsout.WithConfig(cfg.Broadcaster()))

	return &pipeline{
		registry:    registry,
		manager:     manager,
		coordinator: coordinator,
		broadcaster: broadcaster,
	}, nil
}
