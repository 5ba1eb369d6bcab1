package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"sync"
	"time"
)

// DefaultMaxHistory bounds the history list.
const DefaultMaxHistory = 10

// Settings limits.
const (
	MinConnectionTimeoutSeconds = 1
	MaxConnectionTimeoutSeconds = 120
)

// Themes accepted in Settings.Theme.
const (
	ThemeDark   = "dark"
	ThemeLight  = "light"
	ThemeSystem = "system"
)

// Store errors.
var (
	ErrInvalidEntry = errors.New("invalid history entry")
)

// HistoryEntry is one successfully connected endpoint.
type HistoryEntry struct {
	ID              string         `json:"id"`
	Host            string         `json:"host"`
	Port            int            `json:"port"`
	Name            string         `json:"name,omitempty"`
	LastUsedAt      time.Time      `json:"last_used_at"`
	SuccessCount    int            `json:"success_count"`
	CapabilityPorts map[string]int `json:"capability_ports,omitempty"`
}

// EntryID returns the history id of host:port.
func EntryID(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}

// Settings are the application settings.
type Settings struct {
	Theme                    string `json:"theme"`
	NotificationsEnabled     bool   `json:"notifications_enabled"`
	AutoReconnectEnabled     bool   `json:"auto_reconnect_enabled"`
	ConnectionTimeoutSeconds int    `json:"connection_timeout_seconds"`
}

// DefaultSettings returns the settings used for anything not stored.
func DefaultSettings() Settings {
	return Settings{
		Theme:                    ThemeDark,
		NotificationsEnabled:     true,
		AutoReconnectEnabled:     true,
		ConnectionTimeoutSeconds: 10,
	}
}

// ConnectionTimeout returns ConnectionTimeoutSeconds as a duration.
func (s Settings) ConnectionTimeout() time.Duration {
	return time.Duration(s.ConnectionTimeoutSeconds) * time.Second
}

// normalize clamps the timeout and replaces an unknown theme.
func (s Settings) normalize() Settings {
	switch s.Theme {
	case ThemeDark, ThemeLight, ThemeSystem:
	default:
		s.Theme = DefaultSettings().Theme
	}
	s.ConnectionTimeoutSeconds = max(MinConnectionTimeoutSeconds,
		min(MaxConnectionTimeoutSeconds, s.ConnectionTimeoutSeconds))
	return s
}

// SettingsPatch is a partial settings update. Nil fields are left as they are.
type SettingsPatch struct {
	Theme                    *string `json:"theme,omitempty"`
	NotificationsEnabled     *bool   `json:"notifications_enabled,omitempty"`
	AutoReconnectEnabled     *bool   `json:"auto_reconnect_enabled,omitempty"`
	ConnectionTimeoutSeconds *int    `json:"connection_timeout_seconds,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p SettingsPatch) IsEmpty() bool {
	return p.Theme == nil && p.NotificationsEnabled == nil &&
		p.AutoReconnectEnabled == nil && p.ConnectionTimeoutSeconds == nil
}

// Merge overlays the non-nil fields of other.
func (p SettingsPatch) Merge(other SettingsPatch) SettingsPatch {
	if other.Theme != nil {
		p.Theme = other.Theme
	}
	if other.NotificationsEnabled != nil {
		p.NotificationsEnabled = other.NotificationsEnabled
	}
	if other.AutoReconnectEnabled != nil {
		p.AutoReconnectEnabled = other.AutoReconnectEnabled
	}
	if other.ConnectionTimeoutSeconds != nil {
		p.ConnectionTimeoutSeconds = other.ConnectionTimeoutSeconds
	}
	return p
}

// apply returns s with the patch applied.
func (p SettingsPatch) apply(s Settings) Settings {
	if p.Theme != nil {
		s.Theme = *p.Theme
	}
	if p.NotificationsEnabled != nil {
		s.NotificationsEnabled = *p.NotificationsEnabled
	}
	if p.AutoReconnectEnabled != nil {
		s.AutoReconnectEnabled = *p.AutoReconnectEnabled
	}
	if p.ConnectionTimeoutSeconds != nil {
		s.ConnectionTimeoutSeconds = *p.ConnectionTimeoutSeconds
	}
	return s
}

// State is the result of Load.
type State struct {
	History  []HistoryEntry
	Settings Settings
}

// Config configures a Store.
type Config struct {
	// KV is the storage backend (default: MemoryKV).
	KV KV

	// MaxHistory bounds the history list (default: 10).
	MaxHistory int

	// Logger receives warnings about unreadable state. Nil discards them.
	Logger *slog.Logger

	// Now returns the current time (default: time.Now).
	Now func() time.Time
}

// Store persists connection history and settings.
type Store struct {
	kv         KV
	maxHistory int
	logger     *slog.Logger
	now        func() time.Time

	// mu serializes read-modify-write cycles.
	mu sync.Mutex
}

// NewStore creates a store over config.KV.
func NewStore(config Config) *Store {
	if config.KV == nil {
		config.KV = NewMemoryKV()
	}
	if config.MaxHistory <= 0 {
		config.MaxHistory = DefaultMaxHistory
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Store{
		kv:         config.KV,
		maxHistory: config.MaxHistory,
		logger:     config.Logger,
		now:        config.Now,
	}
}

// Load reads history and settings.
func (s *Store) Load(ctx context.Context) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		History:  s.readHistory(ctx),
		Settings: s.readPatch(ctx).apply(DefaultSettings()).normalize(),
	}
}

// History returns the history, most recently used first.
func (s *Store) History(ctx context.Context) []HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readHistory(ctx)
}

// AddToHistory records a successful connection to host:port and returns
// the updated entry. An existing entry is moved to the front with its
// success count incremented; its name is replaced only by a non-empty one
// and capability ports are merged.
func (s *Store) AddToHistory(ctx context.Context, host string, port int, name string, capabilityPorts map[string]int) (HistoryEntry, error) {
	if host == "" || port < 1 || port > 65535 {
		return HistoryEntry{}, fmt.Errorf("%w: %q:%d", ErrInvalidEntry, host, port)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	history := s.readHistory(ctx)
	id := EntryID(host, port)

	entry := HistoryEntry{ID: id, Host: host, Port: port}
	rest := make([]HistoryEntry, 0, len(history))
	for _, h := range history {
		if h.ID == id {
			entry = h
			continue
		}
		rest = append(rest, h)
	}

	entry.LastUsedAt = s.now()
	entry.SuccessCount++
	if name != "" {
		entry.Name = name
	}
	if len(capabilityPorts) > 0 {
		if entry.CapabilityPorts == nil {
			entry.CapabilityPorts = make(map[string]int, len(capabilityPorts))
		}
		maps.Copy(entry.CapabilityPorts, capabilityPorts)
	}

	history = append([]HistoryEntry{entry}, rest...)
	if len(history) > s.maxHistory {
		history = history[:s.maxHistory]
	}

	if err := s.writeJSON(ctx, KeyHistory, history); err != nil {
		return HistoryEntry{}, err
	}
	return entry, nil
}

// RemoveFromHistory deletes the entry with id. It reports whether the
// entry existed.
func (s *Store) RemoveFromHistory(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := s.readHistory(ctx)
	kept := history[:0]
	for _, h := range history {
		if h.ID != id {
			kept = append(kept, h)
		}
	}
	if len(kept) == len(history) {
		return false, nil
	}
	return true, s.writeJSON(ctx, KeyHistory, kept)
}

// ClearHistory removes every entry.
func (s *Store) ClearHistory(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kv.Delete(ctx, KeyHistory)
}

// Settings returns the stored settings merged against defaults.
func (s *Store) Settings(ctx context.Context) Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readPatch(ctx).apply(DefaultSettings()).normalize()
}

// UpdateSettings merges patch into the stored settings and returns the
// result.
func (s *Store) UpdateSettings(ctx context.Context, patch SettingsPatch) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := s.readPatch(ctx).Merge(patch)
	settings := stored.apply(DefaultSettings()).normalize()

	// Persist the normalized values of the fields that are set.
	if stored.Theme != nil {
		stored.Theme = &settings.Theme
	}
	if stored.ConnectionTimeoutSeconds != nil {
		stored.ConnectionTimeoutSeconds = &settings.ConnectionTimeoutSeconds
	}

	if err := s.writeJSON(ctx, KeySettings, stored); err != nil {
		return Settings{}, err
	}
	return settings, nil
}

// Close closes the backend.
func (s *Store) Close() error {
	return s.kv.Close()
}

func (s *Store) readHistory(ctx context.Context) []HistoryEntry {
	var history []HistoryEntry
	if !s.readJSON(ctx, KeyHistory, &history) {
		return []HistoryEntry{}
	}

	// Drop malformed and duplicate entries left by older or foreign writers.
	seen := make(map[string]bool, len(history))
	out := make([]HistoryEntry, 0, len(history))
	for _, h := range history {
		if h.Host == "" || h.Port < 1 || h.Port > 65535 {
			continue
		}
		h.ID = EntryID(h.Host, h.Port)
		if seen[h.ID] {
			continue
		}
		seen[h.ID] = true
		out = append(out, h)
	}
	if len(out) > s.maxHistory {
		out = out[:s.maxHistory]
	}
	return out
}

func (s *Store) readPatch(ctx context.Context) SettingsPatch {
	var patch SettingsPatch
	if !s.readJSON(ctx, KeySettings, &patch) {
		return SettingsPatch{}
	}
	return patch
}

// readJSON decodes key into v. It returns false when the key is missing or
// unreadable.
func (s *Store) readJSON(ctx context.Context, key string, v any) bool {
	data, err := s.kv.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false
	}
	if err != nil {
		s.logger.Warn("failed to read state", "key", key, "err", err)
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		s.logger.Warn("failed to decode state", "key", key, "err", err)
		return false
	}
	return true
}

func (s *Store) writeJSON(ctx context.Context, key string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.kv.Set(ctx, key, data); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}
