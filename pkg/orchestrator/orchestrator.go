package orchestrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/cuelink/cuelink-go/pkg/connection"
	"github.com/cuelink/cuelink-go/pkg/discovery"
	"github.com/cuelink/cuelink-go/pkg/metrics"
	"github.com/cuelink/cuelink-go/pkg/persistence"
	"github.com/cuelink/cuelink-go/pkg/subscription"
	"github.com/cuelink/cuelink-go/pkg/timers"
	"github.com/cuelink/cuelink-go/pkg/wire"
)

// Orchestrator defaults.
const (
	DefaultSettleDelay      = 1500 * time.Millisecond
	DefaultLivenessInterval = 5 * time.Second
)

// Timer names registered with the orchestrator's scheduler.
const (
	timerAutoReconnectDelay   = "auto-reconnect-delay"
	timerAutoReconnectTimeout = "auto-reconnect-timeout"
	timerLiveness             = "liveness"
)

// Orchestrator errors.
var (
	ErrAutoReconnectTimeout = errors.New("auto-reconnect timeout")
	ErrNoHistory            = errors.New("no connection history")
	ErrClosed               = errors.New("orchestrator closed")
	ErrNotStarted           = errors.New("orchestrator not started")
)

// Connector is the connection manager as seen by the orchestrator.
type Connector interface {
	ConnectEndpoint(ctx context.Context, ep connection.Endpoint) error
	Disconnect()
	Send(ctx context.Context, cmd wire.Command) error
	HealthCheck(ctx context.Context) bool
	State() connection.State
	IsConnected() bool
	Snapshot() connection.Snapshot
	Subscribe(kind connection.EventKind, h connection.Handler) connection.Subscription
	Unsubscribe(sub connection.Subscription) error
}

// Discoverer is the discovery service as seen by the orchestrator.
type Discoverer interface {
	Start(ctx context.Context) error
	Stop()
	IsAvailable() bool
	IsDiscovering() bool
	Hosts() []discovery.DiscoveredHost
	Instance(ip string) (discovery.DiscoveredInstance, bool)
	OnUpdate(fn func([]discovery.DiscoveredHost)) discovery.Subscription
	OnError(fn func(error)) discovery.Subscription
	Unsubscribe(sub discovery.Subscription) error
}

// HistoryStore is the persistence store as seen by the orchestrator.
type HistoryStore interface {
	Load(ctx context.Context) persistence.State
	History(ctx context.Context) []persistence.HistoryEntry
	AddToHistory(ctx context.Context, host string, port int, name string, capabilityPorts map[string]int) (persistence.HistoryEntry, error)
	RemoveFromHistory(ctx context.Context, id string) (bool, error)
	ClearHistory(ctx context.Context) error
	UpdateSettings(ctx context.Context, patch persistence.SettingsPatch) (persistence.Settings, error)
}

var (
	_ Connector    = (*connection.Manager)(nil)
	_ Discoverer   = (*discovery.Service)(nil)
	_ HistoryStore = (*persistence.Store)(nil)
)

// Deps are the components the orchestrator drives.
type Deps struct {
	Connection Connector
	Discovery  Discoverer
	Store      HistoryStore

	// Logger receives operational logs. Nil discards them.
	Logger *slog.Logger

	// Metrics is optional.
	Metrics *metrics.Metrics
}

// Config configures an Orchestrator.
type Config struct {
	// SettleDelay is the wait before the startup auto-reconnect.
	SettleDelay time.Duration `yaml:"settle_delay"`

	// LivenessInterval is the period of the liveness poll.
	LivenessInterval time.Duration `yaml:"liveness_interval"`

	// DisableDiscovery keeps Start from starting discovery.
	DisableDiscovery bool `yaml:"disable_discovery"`
}

// DefaultConfig returns the default orchestrator configuration.
func DefaultConfig() Config {
	return Config{
		SettleDelay:      DefaultSettleDelay,
		LivenessInterval: DefaultLivenessInterval,
	}
}

type statusTopic struct{}

// Subscription identifies an OnStatus registration.
type Subscription = subscription.Handle[statusTopic]

// Orchestrator owns the application status.
type Orchestrator struct {
	config  Config
	conn    Connector
	disc    Discoverer
	store   HistoryStore
	logger  *slog.Logger
	metrics *metrics.Metrics
	timers  *timers.Scheduler
	subs    *subscription.Manager[statusTopic, Status]

	lifeCtx    context.Context
	lifeCancel context.CancelFunc
	wg         sync.WaitGroup

	mu            sync.Mutex
	status        Status
	started       bool
	closed        bool
	backgrounded  bool
	autoAttempted bool
	autoCancel    context.CancelCauseFunc
	connSub       connection.Subscription
	discSubs      []discovery.Subscription
}

// New creates an orchestrator over deps. Start must be called before the
// status is meaningful.
func New(deps Deps, config Config) *Orchestrator {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if config.SettleDelay <= 0 {
		config.SettleDelay = DefaultSettleDelay
	}
	if config.LivenessInterval <= 0 {
		config.LivenessInterval = DefaultLivenessInterval
	}

	lifeCtx, lifeCancel := context.WithCancel(context.Background())

	o := &Orchestrator{
		config:     config,
		conn:       deps.Connection,
		disc:       deps.Discovery,
		store:      deps.Store,
		logger:     deps.Logger,
		metrics:    deps.Metrics,
		timers:     timers.NewScheduler(),
		lifeCtx:    lifeCtx,
		lifeCancel: lifeCancel,
		status: Status{
			State:               connection.StateDisconnected,
			History:             []persistence.HistoryEntry{},
			Settings:            persistence.DefaultSettings(),
			DiscoveredInstances: []discovery.DiscoveredHost{},
		},
	}
	o.subs = subscription.NewManager[statusTopic, Status](subscription.Config[statusTopic]{
		OnPanic: func(_ statusTopic, err *subscription.PanicError) {
			o.logger.Error("status subscriber panicked", "err", err)
		},
	})
	return o
}

// Start loads persisted state, starts discovery and the liveness poll and
// evaluates auto-reconnect. Calling Start again is a no-op.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	if o.started {
		o.mu.Unlock()
		return nil
	}
	o.started = true
	o.mu.Unlock()

	state := o.store.Load(ctx)
	sub := o.conn.Subscribe(connection.EventStateChanged, o.handleStateChange)
	snap := o.conn.Snapshot()

	o.update(func(s *Status) {
		s.History = state.History
		s.Settings = state.Settings
		s.State = snap.State
		s.IsConnected = snap.State == connection.StateConnected
		s.Host = snap.Endpoint.Host
		s.Port = snap.Endpoint.Port
		s.DiscoveryAvailable = o.disc.IsAvailable()
		s.Ready = true
	})
	o.mu.Lock()
	o.connSub = sub
	o.mu.Unlock()

	o.logger.Info("orchestrator started",
		"history", len(state.History),
		"auto_reconnect", state.Settings.AutoReconnectEnabled)

	if !o.config.DisableDiscovery {
		if err := o.StartDiscovery(ctx); err != nil {
			o.logger.Warn("discovery not started", "err", err)
		}
	}
	o.timers.Every(timerLiveness, o.config.LivenessInterval, o.reconcile)
	o.evaluateAutoReconnect()
	return nil
}

// evaluateAutoReconnect schedules the single auto-reconnect attempt when
// every precondition holds.
func (o *Orchestrator) evaluateAutoReconnect() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed || o.backgrounded || o.autoAttempted || !o.status.Ready {
		return
	}
	if len(o.status.History) == 0 || !o.status.Settings.AutoReconnectEnabled {
		return
	}
	if o.conn.State() != connection.StateDisconnected {
		return
	}

	o.autoAttempted = true
	o.status.AutoReconnectAttempted = true
	entry := o.status.History[0]

	o.logger.Info("auto-reconnect scheduled", "host", entry.Host, "port", entry.Port, "delay", o.config.SettleDelay)
	o.timers.After(timerAutoReconnectDelay, o.config.SettleDelay, func() {
		o.autoReconnect(entry)
	})
}

func (o *Orchestrator) autoReconnect(entry persistence.HistoryEntry) {
	o.mu.Lock()
	if o.closed || o.backgrounded {
		o.mu.Unlock()
		return
	}
	timeout := o.status.Settings.ConnectionTimeout()
	ctx, cancel := context.WithCancelCause(o.lifeCtx)
	o.autoCancel = cancel
	o.wg.Add(1)
	o.mu.Unlock()

	defer o.wg.Done()
	defer cancel(nil)

	// settled and expired are guarded by o.mu. Whichever of the connect
	// result and the timeout lands first decides the outcome.
	var settled, expired bool
	forced := make(chan struct{})
	tok := o.timers.After(timerAutoReconnectTimeout, timeout, func() {
		defer close(forced)
		o.mu.Lock()
		if settled {
			o.mu.Unlock()
			return
		}
		expired = true
		o.mu.Unlock()

		o.logger.Warn("auto-reconnect timed out", "host", entry.Host, "port", entry.Port, "timeout", timeout)
		cancel(ErrAutoReconnectTimeout)
		o.conn.Disconnect()
	})

	ep := connection.Endpoint{Host: entry.Host, Port: entry.Port, Name: entry.Name}
	err := o.open(ctx, ep)

	o.mu.Lock()
	settled = true
	timedOut := expired
	o.autoCancel = nil
	o.mu.Unlock()
	tok.Cancel()

	if err == nil && !timedOut {
		o.recordSuccess(ep)
		return
	}
	if timedOut {
		// The forced Disconnect publishes Disconnected; Error must land after it.
		<-forced
		err = &connection.Error{
			Kind:   connection.KindTimeout,
			Op:     "auto-reconnect",
			Err:    ErrAutoReconnectTimeout,
			Source: "caller",
		}
		o.update(func(s *Status) {
			s.State = connection.StateError
			s.IsConnected = false
			s.setError(err)
		})
	}
	o.logger.Warn("auto-reconnect failed", "host", entry.Host, "port", entry.Port, "err", err)
}

// connect runs one connect and records a success in history.
func (o *Orchestrator) connect(ctx context.Context, ep connection.Endpoint) error {
	if err := o.open(ctx, ep); err != nil {
		return err
	}
	o.recordSuccess(ep)
	return nil
}

func (o *Orchestrator) open(ctx context.Context, ep connection.Endpoint) error {
	o.metrics.ConnectAttempt()
	if err := o.conn.ConnectEndpoint(ctx, ep); err != nil {
		o.metrics.ConnectFailure(connection.KindOf(err).String())
		return err
	}
	return nil
}

// recordSuccess adds ep to history and refreshes the status.
func (o *Orchestrator) recordSuccess(ep connection.Endpoint) {
	name := ep.Name
	var ports map[string]int
	if inst, ok := o.disc.Instance(ep.Host); ok {
		ports = inst.CapabilityPorts()
		if name == "" {
			name = inst.Name
		}
	}

	entry, err := o.store.AddToHistory(o.lifeCtx, ep.Host, ep.Port, name, ports)
	if err != nil {
		o.logger.Warn("failed to record history", "host", ep.Host, "port", ep.Port, "err", err)
		return
	}
	history := o.store.History(o.lifeCtx)
	o.update(func(s *Status) {
		s.History = history
		if s.Host == ep.Host && s.Port == ep.Port {
			s.Name = entry.Name
		}
	})
}

// Connect connects to ep. It sets the auto-reconnect latch and cancels a
// pending auto-reconnect.
func (o *Orchestrator) Connect(ctx context.Context, ep connection.Endpoint) error {
	if err := o.latch(); err != nil {
		return err
	}
	return o.connect(ctx, ep)
}

// Reconnect connects to the most recently used history entry.
func (o *Orchestrator) Reconnect(ctx context.Context) error {
	o.mu.Lock()
	var entry persistence.HistoryEntry
	empty := len(o.status.History) == 0
	if !empty {
		entry = o.status.History[0]
	}
	o.mu.Unlock()

	if empty {
		return ErrNoHistory
	}
	return o.Connect(ctx, connection.Endpoint{Host: entry.Host, Port: entry.Port, Name: entry.Name})
}

// latch marks auto-reconnect as used and cancels a pending attempt.
func (o *Orchestrator) latch() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}
	o.autoAttempted = true
	o.timers.CancelNamed(timerAutoReconnectDelay)
	return nil
}

// Disconnect closes the channel and cancels any auto-reconnect.
func (o *Orchestrator) Disconnect() {
	_ = o.latch()
	o.timers.CancelNamed(timerAutoReconnectTimeout)
	o.mu.Lock()
	cancel := o.autoCancel
	o.mu.Unlock()
	if cancel != nil {
		cancel(connection.ErrConnectAborted)
	}
	o.conn.Disconnect()
}

// Send writes cmd to the host.
func (o *Orchestrator) Send(ctx context.Context, cmd wire.Command) error {
	if err := o.conn.Send(ctx, cmd); err != nil {
		o.update(func(s *Status) { s.setError(err) })
		return err
	}
	o.metrics.CommandSent(cmd.String())
	return nil
}

// HealthCheck pings the host and reports whether it answered in time.
func (o *Orchestrator) HealthCheck(ctx context.Context) bool {
	ok := o.conn.HealthCheck(ctx)
	o.metrics.HealthCheck(ok)
	return ok
}

func (o *Orchestrator) handleStateChange(ev connection.Event) {
	o.update(func(s *Status) {
		s.State = ev.State
		s.IsConnected = ev.State == connection.StateConnected
		if !ev.Endpoint.IsZero() {
			if ev.Endpoint.Host != s.Host || ev.Endpoint.Port != s.Port {
				s.Name = ev.Endpoint.Name
			}
			s.Host = ev.Endpoint.Host
			s.Port = ev.Endpoint.Port
		}
		switch {
		case ev.Err != nil:
			s.setError(ev.Err)
		case ev.State == connection.StateConnecting, ev.State == connection.StateConnected:
			s.setError(nil)
		}
	})

	if ev.State == connection.StateDisconnected {
		o.evaluateAutoReconnect()
	}
}

// reconcile corrects the held status against the manager. Only
// Disconnected and Connected are corrected.
func (o *Orchestrator) reconcile() {
	connected := o.conn.IsConnected()

	o.mu.Lock()
	var next connection.State
	switch {
	case connected && o.status.State == connection.StateDisconnected:
		next = connection.StateConnected
	case !connected && o.status.State == connection.StateConnected:
		next = connection.StateDisconnected
	default:
		o.mu.Unlock()
		return
	}
	o.mu.Unlock()

	o.logger.Debug("liveness corrected status", "status", next.String())
	o.update(func(s *Status) {
		s.State = next
		s.IsConnected = connected
	})
}

// StartDiscovery starts a discovery session. The session outlives ctx and
// ends on StopDiscovery, Background or Close.
func (o *Orchestrator) StartDiscovery(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	old := o.discSubs
	o.discSubs = nil
	o.mu.Unlock()

	if !o.disc.IsAvailable() {
		o.update(func(s *Status) {
			s.DiscoveryAvailable = false
			s.IsDiscovering = false
		})
		return discovery.ErrUnavailable
	}

	for _, sub := range old {
		_ = o.disc.Unsubscribe(sub)
	}
	subs := []discovery.Subscription{
		o.disc.OnUpdate(o.handleDiscoveryUpdate),
		o.disc.OnError(o.handleDiscoveryError),
	}
	o.mu.Lock()
	o.discSubs = subs
	o.mu.Unlock()

	if err := o.disc.Start(o.lifeCtx); err != nil {
		return err
	}
	o.update(func(s *Status) {
		s.DiscoveryAvailable = true
		s.IsDiscovering = o.disc.IsDiscovering()
		s.DiscoveryError = ""
	})
	return nil
}

// StopDiscovery ends the discovery session and clears discovered hosts.
func (o *Orchestrator) StopDiscovery() {
	o.mu.Lock()
	o.discSubs = nil
	o.mu.Unlock()

	o.disc.Stop()
	o.update(func(s *Status) {
		s.IsDiscovering = false
		s.DiscoveredInstances = []discovery.DiscoveredHost{}
	})
}

func (o *Orchestrator) handleDiscoveryUpdate(hosts []discovery.DiscoveredHost) {
	o.update(func(s *Status) {
		s.DiscoveredInstances = hosts
		s.IsDiscovering = true
	})
}

func (o *Orchestrator) handleDiscoveryError(err error) {
	o.logger.Warn("discovery failed", "err", err)
	o.update(func(s *Status) {
		s.IsDiscovering = false
		s.DiscoveryError = err.Error()
		s.DiscoveredInstances = []discovery.DiscoveredHost{}
	})
}

// RemoveFromHistory deletes a history entry. It reports whether the entry
// existed.
func (o *Orchestrator) RemoveFromHistory(ctx context.Context, id string) (bool, error) {
	removed, err := o.store.RemoveFromHistory(ctx, id)
	if err != nil || !removed {
		return removed, err
	}
	o.refreshHistory(ctx)
	return true, nil
}

// ClearHistory removes every history entry.
func (o *Orchestrator) ClearHistory(ctx context.Context) error {
	if err := o.store.ClearHistory(ctx); err != nil {
		return err
	}
	o.refreshHistory(ctx)
	return nil
}

func (o *Orchestrator) refreshHistory(ctx context.Context) {
	history := o.store.History(ctx)
	o.update(func(s *Status) { s.History = history })
}

// UpdateSettings applies patch and returns the resulting settings.
func (o *Orchestrator) UpdateSettings(ctx context.Context, patch persistence.SettingsPatch) (persistence.Settings, error) {
	settings, err := o.store.UpdateSettings(ctx, patch)
	if err != nil {
		return persistence.Settings{}, err
	}
	o.update(func(s *Status) { s.Settings = settings })
	if patch.AutoReconnectEnabled != nil && *patch.AutoReconnectEnabled {
		o.evaluateAutoReconnect()
	}
	return settings, nil
}

// Status returns a copy of the current status.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status.clone()
}

// MetricsSnapshot returns the gauge values for the metrics collector.
func (o *Orchestrator) MetricsSnapshot() metrics.Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return metrics.Snapshot{
		Connected:           o.status.IsConnected,
		Discovering:         o.status.IsDiscovering,
		DiscoveredInstances: len(o.status.DiscoveredInstances),
		HistoryEntries:      len(o.status.History),
	}
}

// OnStatus registers fn for every status change.
func (o *Orchestrator) OnStatus(fn func(Status)) Subscription {
	return o.subs.Subscribe(statusTopic{}, fn)
}

// Unsubscribe removes an OnStatus registration.
func (o *Orchestrator) Unsubscribe(sub Subscription) error {
	return o.subs.Unsubscribe(sub)
}

// update applies fn to the held status and notifies subscribers.
func (o *Orchestrator) update(fn func(*Status)) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	fn(&o.status)
	s := o.status.clone()
	o.mu.Unlock()

	o.subs.Publish(statusTopic{}, s)
}

// Background disconnects, stops discovery and cancels every outstanding
// timer. Resume restores normal operation.
func (o *Orchestrator) Background() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.backgrounded = true
	cancel := o.autoCancel
	o.mu.Unlock()

	o.timers.CancelAll()
	if cancel != nil {
		cancel(connection.ErrConnectAborted)
	}
	o.conn.Disconnect()
	o.StopDiscovery()
	o.logger.Info("orchestrator backgrounded")
}

// Resume starts a new session after Background: the auto-reconnect latch
// is re-armed, discovery and the liveness poll restart.
func (o *Orchestrator) Resume(ctx context.Context) error {
	o.mu.Lock()
	switch {
	case o.closed:
		o.mu.Unlock()
		return ErrClosed
	case !o.started:
		o.mu.Unlock()
		return ErrNotStarted
	case !o.backgrounded:
		o.mu.Unlock()
		return nil
	}
	o.backgrounded = false
	o.autoAttempted = false
	o.status.AutoReconnectAttempted = false
	o.mu.Unlock()

	o.logger.Info("orchestrator resumed")
	if !o.config.DisableDiscovery {
		if err := o.StartDiscovery(ctx); err != nil {
			o.logger.Warn("discovery not started", "err", err)
		}
	}
	o.timers.Every(timerLiveness, o.config.LivenessInterval, o.reconcile)
	o.evaluateAutoReconnect()
	return nil
}

// Close tears the orchestrator down: timers are cancelled, the channel is
// closed, discovery is stopped and every subscriber is removed. The
// components in Deps are not closed.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	cancel := o.autoCancel
	connSub := o.connSub
	o.mu.Unlock()

	o.timers.Close()
	if cancel != nil {
		cancel(connection.ErrConnectAborted)
	}
	if connSub.Valid() {
		_ = o.conn.Unsubscribe(connSub)
	}
	o.conn.Disconnect()
	o.disc.Stop()

	o.lifeCancel()
	o.wg.Wait()
	o.subs.ClearAll()
	return nil
}
