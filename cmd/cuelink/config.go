package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cuelink/cuelink-go/pkg/api"
	"github.com/cuelink/cuelink-go/pkg/connection"
	"github.com/cuelink/cuelink-go/pkg/discovery"
	"github.com/cuelink/cuelink-go/pkg/orchestrator"
	"github.com/cuelink/cuelink-go/pkg/persistence"
	"github.com/cuelink/cuelink-go/pkg/transport"
)

// Config is the cuelink configuration file.
type Config struct {
	// StateDir holds history and settings (default: user config dir).
	StateDir string `yaml:"state_dir"`

	// Store is the storage backend: file, sqlite or memory.
	Store string `yaml:"store"`

	// LogLevel is debug, info, warn or error.
	LogLevel string `yaml:"log_level"`

	// ProtocolLog is an optional capture file for protocol events.
	ProtocolLog string `yaml:"protocol_log"`

	Connection   ConnectionConfig    `yaml:"connection"`
	Discovery    discovery.Config    `yaml:"discovery"`
	Orchestrator orchestrator.Config `yaml:"orchestrator"`
	HTTP         api.Config          `yaml:"http"`
}

// ConnectionConfig is the file form of connection.Config.
type ConnectionConfig struct {
	// ConnectTimeout bounds a whole connect. Zero uses the stored
	// connection timeout setting.
	ConnectTimeout     time.Duration             `yaml:"connect_timeout"`
	MaxRetries         int                       `yaml:"max_retries"`
	HealthCheckTimeout time.Duration             `yaml:"health_check_timeout"`
	ProbeTimeout       time.Duration             `yaml:"probe_timeout"`
	DisableProbe       bool                      `yaml:"disable_probe"`
	Backoff            connection.BackoffConfig  `yaml:"backoff"`
	KeepAlive          transport.KeepAliveConfig `yaml:"keepalive"`

	// Transports in preference order (default: websocket, tcp).
	Transports []string `yaml:"transports"`

	// Path is the WebSocket control path.
	Path string `yaml:"path"`
}

func defaultConfig() Config {
	conn := connection.DefaultConfig()
	return Config{
		Store:    persistence.BackendFile,
		LogLevel: "info",
		Connection: ConnectionConfig{
			MaxRetries:         conn.MaxRetries,
			HealthCheckTimeout: conn.HealthCheckTimeout,
			ProbeTimeout:       conn.ProbeTimeout,
			Backoff:            conn.Backoff,
			KeepAlive:          conn.KeepAlive,
			Transports:         []string{transport.TransportWebSocket, transport.TransportTCP},
			Path:               transport.DefaultControlPath,
		},
		Discovery:    discovery.DefaultConfig(),
		Orchestrator: orchestrator.DefaultConfig(),
		HTTP:         api.DefaultConfig(),
	}
}

// loadConfig reads path over the defaults. An empty path returns the
// defaults.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// resolveConfig loads --config and applies the persistent flags over it.
func resolveConfig(cmd *cobra.Command) (Config, error) {
	flags := cmd.Flags()

	path, _ := flags.GetString("config")
	cfg, err := loadConfig(path)
	if err != nil {
		return Config{}, err
	}

	for name, dst := range map[string]*string{
		"log-level":    &cfg.LogLevel,
		"state-dir":    &cfg.StateDir,
		"store":        &cfg.Store,
		"protocol-log": &cfg.ProtocolLog,
	} {
		if flags.Changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}

	if cfg.StateDir == "" {
		cfg.StateDir, err = defaultStateDir()
		if err != nil {
			return Config{}, err
		}
	}
	if _, err := parseLevel(cfg.LogLevel); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func defaultStateDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate state directory: %w", err)
	}
	return filepath.Join(dir, "cuelink"), nil
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", s)
	}
}

// newLogger returns a text logger on w at the configured level.
func newLogger(cfg Config, w io.Writer) *slog.Logger {
	level, _ := parseLevel(cfg.LogLevel)
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
