package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cuelink/cuelink-go/pkg/connection"
	"github.com/cuelink/cuelink-go/pkg/discovery"
	"github.com/cuelink/cuelink-go/pkg/log"
	"github.com/cuelink/cuelink-go/pkg/metrics"
	"github.com/cuelink/cuelink-go/pkg/orchestrator"
	"github.com/cuelink/cuelink-go/pkg/persistence"
	"github.com/cuelink/cuelink-go/pkg/transport"
)

// app holds the components of one cuelink process.
type app struct {
	config   Config
	logger   *slog.Logger
	capture  *log.FileLogger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	store    *persistence.Store
	conn     *connection.Manager
	disc     *discovery.Service
	orch     *orchestrator.Orchestrator
}

// openStore opens the configured storage backend.
func openStore(cfg Config, logger *slog.Logger) (*persistence.Store, error) {
	if cfg.Store != persistence.BackendMemory {
		if err := os.MkdirAll(cfg.StateDir, 0o755); err != nil {
			return nil, fmt.Errorf("create state directory: %w", err)
		}
	}
	kv, err := persistence.OpenKV(cfg.Store, cfg.StateDir)
	if err != nil {
		return nil, err
	}
	return persistence.NewStore(persistence.Config{
		KV:     kv,
		Logger: logger.With("component", "store"),
	}), nil
}

// openProtocolLog returns the logger that receives protocol events: debug
// logs, plus the capture file when one is configured. The capture file is
// returned so the caller can close it.
func openProtocolLog(cfg Config, logger *slog.Logger) (log.Logger, *log.FileLogger, error) {
	debug := log.NewSlogAdapter(logger.With("component", "protocol"))
	if cfg.ProtocolLog == "" {
		return debug, nil, nil
	}

	capture, err := log.NewFileLogger(cfg.ProtocolLog)
	if err != nil {
		return nil, nil, fmt.Errorf("open protocol log: %w", err)
	}
	return log.NewMultiLogger(capture, debug), capture, nil
}

// newDialer builds the transport chain named by cfg.Transports.
func newDialer(cfg ConnectionConfig, protocol log.Logger, logger *slog.Logger) (transport.Dialer, error) {
	tc := transport.Config{ProtocolLogger: protocol}

	var dialers []transport.Dialer
	for _, name := range cfg.Transports {
		switch name {
		case transport.TransportWebSocket:
			dialers = append(dialers, transport.NewWSDialer(transport.WSConfig{Config: tc, Path: cfg.Path}))
		case transport.TransportTCP:
			dialers = append(dialers, transport.NewTCPDialer(tc))
		default:
			return nil, fmt.Errorf("unknown transport: %s (must be websocket or tcp)", name)
		}
	}
	if len(dialers) == 0 {
		return nil, transport.ErrNoTransports
	}
	return transport.NewFallbackDialer(logger, dialers...), nil
}

// newConnection builds a connection manager from cfg.
func newConnection(cfg Config, protocol log.Logger, logger *slog.Logger) (*connection.Manager, error) {
	dialer, err := newDialer(cfg.Connection, protocol, logger.With("component", "transport"))
	if err != nil {
		return nil, err
	}
	return connection.NewManager(connection.Config{
		Dialer:             dialer,
		ConnectTimeout:     cfg.Connection.ConnectTimeout,
		MaxRetries:         cfg.Connection.MaxRetries,
		Backoff:            cfg.Connection.Backoff,
		HealthCheckTimeout: cfg.Connection.HealthCheckTimeout,
		KeepAlive:          cfg.Connection.KeepAlive,
		ProbeTimeout:       cfg.Connection.ProbeTimeout,
		DisableProbe:       cfg.Connection.DisableProbe,
		Logger:             logger.With("component", "connection"),
		ProtocolLogger:     protocol,
	}), nil
}

// newDiscovery builds a discovery service from cfg.
func newDiscovery(cfg Config, logger *slog.Logger) *discovery.Service {
	dc := cfg.Discovery
	dc.Logger = logger.With("component", "discovery")
	return discovery.NewService(dc)
}

// newApp wires every component. Nothing is started.
func newApp(cfg Config, logger *slog.Logger) (*app, error) {
	a := &app{
		config:   cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
	}

	protocol, capture, err := openProtocolLog(cfg, logger)
	if err != nil {
		return nil, err
	}
	a.capture = capture

	store, err := openStore(cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.store = store

	// Without an explicit value the connect timeout follows the stored setting.
	if cfg.Connection.ConnectTimeout <= 0 {
		cfg.Connection.ConnectTimeout = store.Settings(context.Background()).ConnectionTimeout()
		a.config = cfg
	}

	a.conn, err = newConnection(cfg, protocol, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.disc = newDiscovery(cfg, logger)

	a.metrics = metrics.New(a.registry, nil)
	a.orch = orchestrator.New(orchestrator.Deps{
		Connection: a.conn,
		Discovery:  a.disc,
		Store:      a.store,
		Logger:     logger.With("component", "orchestrator"),
		Metrics:    a.metrics,
	}, cfg.Orchestrator)
	a.registry.MustRegister(metrics.NewStatusCollector(a.orch.MetricsSnapshot))

	return a, nil
}

// Close stops the orchestrator and releases every component.
func (a *app) Close() error {
	var errs []error
	if a.orch != nil {
		errs = append(errs, a.orch.Close())
	}
	if a.disc != nil {
		a.disc.Close()
	}
	if a.conn != nil {
		errs = append(errs, a.conn.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.capture != nil {
		errs = append(errs, a.capture.Close())
	}
	return errors.Join(errs...)
}
