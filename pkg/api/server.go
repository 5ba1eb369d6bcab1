package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/cuelink/cuelink-go/pkg/connection"
	"github.com/cuelink/cuelink-go/pkg/orchestrator"
	"github.com/cuelink/cuelink-go/pkg/persistence"
	"github.com/cuelink/cuelink-go/pkg/wire"
)

// Server defaults.
const (
	DefaultAddr           = "127.0.0.1:8455"
	DefaultRequestTimeout = 30 * time.Second
	DefaultCommandRate    = 10
	DefaultCommandBurst   = 5
)

// Controller is the orchestrator as seen by the HTTP API.
type Controller interface {
	Status() orchestrator.Status
	Connect(ctx context.Context, ep connection.Endpoint) error
	Reconnect(ctx context.Context) error
	Disconnect()
	Send(ctx context.Context, cmd wire.Command) error
	HealthCheck(ctx context.Context) bool
	RemoveFromHistory(ctx context.Context, id string) (bool, error)
	ClearHistory(ctx context.Context) error
	UpdateSettings(ctx context.Context, patch persistence.SettingsPatch) (persistence.Settings, error)
	StartDiscovery(ctx context.Context) error
	StopDiscovery()
}

var _ Controller = (*orchestrator.Orchestrator)(nil)

// Config configures a Server.
type Config struct {
	// Addr is the listen address (default: 127.0.0.1:8455).
	Addr string `yaml:"addr"`

	// RequestTimeout bounds every request.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// CommandRate is the sustained rate of remote-control commands per
	// second; CommandBurst the burst above it.
	CommandRate  float64 `yaml:"command_rate"`
	CommandBurst int     `yaml:"command_burst"`

	// Version is reported by /api/v1/health.
	Version string `yaml:"-"`

	// Metrics serves /metrics when set.
	Metrics http.Handler `yaml:"-"`

	// Logger receives access logs. Nil discards them.
	Logger *slog.Logger `yaml:"-"`
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() Config {
	return Config{
		Addr:           DefaultAddr,
		RequestTimeout: DefaultRequestTimeout,
		CommandRate:    DefaultCommandRate,
		CommandBurst:   DefaultCommandBurst,
	}
}

// Server is the HTTP API server.
type Server struct {
	config  Config
	ctl     Controller
	logger  *slog.Logger
	router  *chi.Mux
	http    *http.Server
	limiter *rate.Limiter
}

// NewServer creates a server over ctl.
func NewServer(ctl Controller, config Config) *Server {
	if config.Addr == "" {
		config.Addr = DefaultAddr
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = DefaultRequestTimeout
	}
	if config.CommandRate <= 0 {
		config.CommandRate = DefaultCommandRate
	}
	if config.CommandBurst <= 0 {
		config.CommandBurst = DefaultCommandBurst
	}
	if config.Version == "" {
		config.Version = "dev"
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	s := &Server{
		config:  config,
		ctl:     ctl,
		logger:  config.Logger,
		router:  chi.NewRouter(),
		limiter: rate.NewLimiter(rate.Limit(config.CommandRate), config.CommandBurst),
	}
	s.registerRoutes()

	s.http = &http.Server{
		Addr:              config.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
	return s
}

func (s *Server) registerRoutes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(accessLog(s.logger))
	r.Use(middleware.Timeout(s.config.RequestTimeout))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/health", s.handleHealth)

		r.Post("/connect", s.handleConnect)
		r.Post("/reconnect", s.handleReconnect)
		r.Post("/disconnect", s.handleDisconnect)
		r.With(s.rateLimit).Post("/commands/{command}", s.handleCommand)

		r.Get("/history", s.handleHistory)
		r.Delete("/history", s.handleClearHistory)
		r.Delete("/history/{id}", s.handleRemoveHistory)

		r.Get("/settings", s.handleSettings)
		r.Patch("/settings", s.handleUpdateSettings)

		r.Post("/discovery/start", s.handleStartDiscovery)
		r.Post("/discovery/stop", s.handleStopDiscovery)
	})

	if s.config.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.config.Metrics)
	}
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.config.Addr
}

// ListenAndServe serves on Config.Addr until Shutdown.
func (s *Server) ListenAndServe() error {
	l, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return err
	}
	return s.Serve(l)
}

// Serve serves on l until Shutdown.
func (s *Server) Serve(l net.Listener) error {
	s.logger.Info("HTTP API listening", "addr", l.Addr().String())
	err := s.http.Serve(l)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("HTTP API shutting down")
	return s.http.Shutdown(ctx)
}
