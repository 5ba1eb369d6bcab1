package connection

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/cuelink/cuelink-go/pkg/log"
	"github.com/cuelink/cuelink-go/pkg/subscription"
	"github.com/cuelink/cuelink-go/pkg/timers"
	"github.com/cuelink/cuelink-go/pkg/transport"
	"github.com/cuelink/cuelink-go/pkg/wire"
)

// Manager defaults.
const (
	DefaultConnectTimeout     = 15 * time.Second
	DefaultMaxRetries         = 3
	DefaultHealthCheckTimeout = 3 * time.Second
)

// Timer names registered with the manager's scheduler.
const (
	timerConnectTimeout = "connect-timeout"
	timerHealthCheck    = "health-check"
)

// ProbeFunc checks whether a host accepts TCP connections.
type ProbeFunc func(ctx context.Context, address string, timeout time.Duration) (time.Duration, error)

// Config configures a Manager.
type Config struct {
	// Dialer opens channels (default: WebSocket with TCP fallback).
	Dialer transport.Dialer

	// ConnectTimeout bounds a whole Connect call including retries.
	ConnectTimeout time.Duration

	// MaxRetries is the number of channel-open attempts per Connect.
	MaxRetries int

	// Backoff shapes the delay between attempts.
	Backoff BackoffConfig

	// HealthCheckTimeout bounds the wait for a pong.
	HealthCheckTimeout time.Duration

	// KeepAlive configures liveness monitoring of the open channel.
	KeepAlive transport.KeepAliveConfig

	// Probe runs a reachability check before dialing (default: transport.Probe).
	Probe        ProbeFunc
	ProbeTimeout time.Duration
	DisableProbe bool

	// Logger receives operational logs. Nil discards them.
	Logger *slog.Logger

	// ProtocolLogger receives state-change and error events. Optional.
	ProtocolLogger log.Logger
}

// DefaultConfig returns the default manager configuration.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout:     DefaultConnectTimeout,
		MaxRetries:         DefaultMaxRetries,
		Backoff:            DefaultBackoffConfig(),
		HealthCheckTimeout: DefaultHealthCheckTimeout,
		KeepAlive:          transport.DefaultKeepAliveConfig(),
		ProbeTimeout:       transport.DefaultProbeTimeout,
	}
}

// session is one open channel and everything tied to its lifetime.
type session struct {
	channel   transport.Channel
	keepAlive *transport.KeepAlive
	cancel    context.CancelFunc
}

// Manager owns the single control channel.
type Manager struct {
	config  Config
	logger  *slog.Logger
	plog    log.Logger
	backoff *Backoff
	timers  *timers.Scheduler
	subs    *subscription.Manager[EventKind, Event]

	lifeCtx    context.Context
	lifeCancel context.CancelFunc
	wg         sync.WaitGroup

	mu            sync.RWMutex
	state         State
	lastError     string
	endpoint      Endpoint
	gen           uint64
	connectCancel context.CancelCauseFunc
	attemptDone   chan struct{}
	session       *session
	closed        bool

	pingMu  sync.Mutex
	pending map[int64]chan bool
}

// NewManager creates a manager in the Disconnected state.
func NewManager(config Config) *Manager {
	if config.Logger == nil {
		config.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = DefaultConnectTimeout
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = DefaultMaxRetries
	}
	if config.Backoff == (BackoffConfig{}) {
		config.Backoff = DefaultBackoffConfig()
	}
	if config.HealthCheckTimeout <= 0 {
		config.HealthCheckTimeout = DefaultHealthCheckTimeout
	}
	if config.ProbeTimeout <= 0 {
		config.ProbeTimeout = transport.DefaultProbeTimeout
	}
	if config.Probe == nil {
		config.Probe = transport.Probe
	}
	if config.Dialer == nil {
		config.Dialer = transport.NewDefaultDialer(transport.Config{ProtocolLogger: config.ProtocolLogger}, config.Logger)
	}

	lifeCtx, lifeCancel := context.WithCancel(context.Background())

	m := &Manager{
		config:     config,
		logger:     config.Logger,
		plog:       log.OrNoop(config.ProtocolLogger),
		backoff:    NewBackoff(config.Backoff),
		timers:     timers.NewScheduler(),
		lifeCtx:    lifeCtx,
		lifeCancel: lifeCancel,
		state:      StateDisconnected,
		pending:    make(map[int64]chan bool),
	}
	m.subs = subscription.NewManager[EventKind, Event](subscription.Config[EventKind]{
		OnPanic: m.handlerPanic,
	})
	return m
}

// Connect opens a channel to host:port.
func (m *Manager) Connect(ctx context.Context, host string, port int) error {
	return m.ConnectEndpoint(ctx, Endpoint{Host: host, Port: port})
}

// ConnectEndpoint opens a channel to ep. It blocks until the channel is
// open, every attempt failed, the connect timeout expired, ctx was
// cancelled or Disconnect was called.
func (m *Manager) ConnectEndpoint(ctx context.Context, ep Endpoint) error {
	if err := ep.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	for {
		if m.closed {
			m.mu.Unlock()
			return newError(KindConnection, "connect", ErrManagerClosed)
		}
		if m.state == StateConnecting {
			m.mu.Unlock()
			return newError(KindConnection, "connect", ErrConnectInProgress)
		}
		// A cancelled attempt may still hold a dial or a channel.
		unwinding := m.attemptDone
		if unwinding == nil {
			break
		}
		m.mu.Unlock()
		select {
		case <-unwinding:
		case <-ctx.Done():
			return Classify("connect", ctx.Err())
		case <-m.lifeCtx.Done():
			return newError(KindConnection, "connect", ErrManagerClosed)
		}
		m.mu.Lock()
	}

	done := make(chan struct{})
	m.attemptDone = done
	defer m.finishAttempt(done)

	prev := m.session
	m.session = nil
	m.gen++
	gen := m.gen
	attemptCtx, cancel := context.WithCancelCause(ctx)
	m.connectCancel = cancel
	m.endpoint = ep
	oldState := m.setStateLocked(StateConnecting, "")
	m.backoff.Reset()
	if !m.config.DisableProbe {
		m.wg.Add(1)
		go m.probe(ep)
	}
	m.mu.Unlock()

	defer cancel(nil)

	m.closeSession(prev)
	m.publishTransition(transition{from: oldState, to: StateConnecting, ep: ep, reason: "connect requested"})

	timeout := m.timers.After(timerConnectTimeout, m.config.ConnectTimeout, func() {
		cancel(ErrConnectTimeout)
	})
	defer timeout.Cancel()

	ch, attempts, dialErr := m.dialWithRetry(attemptCtx, ep)
	if dialErr == nil {
		if err := m.attach(gen, ep, ch); err != nil {
			_ = ch.Close()
			return err
		}
		return nil
	}

	cerr := m.classifyConnectError(ctx, attemptCtx, attempts, dialErr)
	m.fail(gen, ep, cerr)
	return cerr
}

// finishAttempt marks the attempt owning done as fully unwound.
func (m *Manager) finishAttempt(done chan struct{}) {
	m.mu.Lock()
	if m.attemptDone == done {
		m.attemptDone = nil
	}
	m.mu.Unlock()
	close(done)
}

func (m *Manager) dialWithRetry(ctx context.Context, ep Endpoint) (transport.Channel, int, error) {
	addr := ep.Address()

	var lastErr error
	attempt := 0
	for attempt < m.config.MaxRetries {
		attempt++

		ch, err := m.config.Dialer.Dial(ctx, addr)
		if err == nil {
			if ctx.Err() != nil {
				_ = ch.Close()
				return nil, attempt, ctx.Err()
			}
			return ch, attempt, nil
		}

		lastErr = err
		m.logger.Debug("connect attempt failed",
			"host", ep.Host, "port", ep.Port, "attempt", attempt, "err", err)

		if ctx.Err() != nil || attempt == m.config.MaxRetries {
			break
		}

		timer := time.NewTimer(m.backoff.Next())
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, attempt, lastErr
		case <-timer.C:
		}
	}
	return nil, attempt, lastErr
}

func (m *Manager) classifyConnectError(callerCtx, attemptCtx context.Context, attempts int, lastErr error) *Error {
	cause := context.Cause(attemptCtx)
	switch {
	case errors.Is(cause, ErrConnectTimeout):
		return newError(KindTimeout, "connect", fmt.Errorf("%w after %s", ErrConnectTimeout, m.config.ConnectTimeout))
	case errors.Is(cause, ErrConnectAborted):
		return newError(KindConnection, "connect", ErrConnectAborted)
	case callerCtx.Err() != nil:
		return Classify("connect", callerCtx.Err())
	case attempts > 1 && attempts >= m.config.MaxRetries:
		return newError(KindConnection, "connect",
			fmt.Errorf("%w (%d attempts): %w", ErrMaxRetriesExceeded, attempts, lastErr))
	default:
		return Classify("connect", lastErr)
	}
}

// attach installs ch as the active channel unless the attempt was
// superseded in the meantime.
func (m *Manager) attach(gen uint64, ep Endpoint, ch transport.Channel) error {
	m.mu.Lock()
	if m.closed || gen != m.gen {
		m.mu.Unlock()
		return newError(KindConnection, "connect", ErrConnectAborted)
	}

	sessCtx, cancel := context.WithCancel(m.lifeCtx)
	s := &session{channel: ch, cancel: cancel}
	if !m.config.KeepAlive.Disabled {
		s.keepAlive = transport.NewKeepAlive(m.config.KeepAlive,
			func(ts int64) error {
				return ch.Send(wire.NewPing(time.UnixMilli(ts)))
			},
			func() {
				m.drop(s, newError(KindTimeout, "keepalive", ErrKeepAliveTimeout))
			},
		)
	}

	m.session = s
	m.connectCancel = nil
	oldState := m.setStateLocked(StateConnected, "")
	m.backoff.Reset()
	m.wg.Add(1)
	m.mu.Unlock()

	m.logger.Info("connected", "host", ep.Host, "port", ep.Port, "transport", ch.Transport())
	m.publishTransition(transition{from: oldState, to: StateConnected, ep: ep, reason: "channel open", connID: ch.ID()})
	m.emit(Event{Kind: EventConnected, Endpoint: ep})

	go m.readLoop(s, ep)
	if s.keepAlive != nil {
		s.keepAlive.Start(sessCtx)
	}
	return nil
}

func (m *Manager) fail(gen uint64, ep Endpoint, cerr *Error) {
	m.mu.Lock()
	if m.closed || gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.connectCancel = nil
	oldState := m.setStateLocked(StateError, cerr.Error())
	m.mu.Unlock()

	m.logger.Warn("connect failed", "host", ep.Host, "port", ep.Port, "kind", cerr.Kind.String(), "err", cerr.Err)
	m.logError(cerr, "")
	m.publishTransition(transition{from: oldState, to: StateError, ep: ep, reason: cerr.Error(), err: cerr})
	m.emit(Event{Kind: EventError, Endpoint: ep, Reason: cerr.Error(), Err: cerr})
}

func (m *Manager) probe(ep Endpoint) {
	defer m.wg.Done()

	rtt, err := m.config.Probe(m.lifeCtx, ep.Address(), m.config.ProbeTimeout)
	if err != nil {
		if m.lifeCtx.Err() != nil {
			return
		}
		perr := newError(KindNetwork, "probe", err)
		m.logger.Warn("reachability probe failed", "host", ep.Host, "port", ep.Port, "err", err)
		m.logError(perr, "")
		return
	}
	m.logger.Debug("reachability probe ok", "host", ep.Host, "port", ep.Port, "rtt", rtt)
}

func (m *Manager) readLoop(s *session, ep Endpoint) {
	defer m.wg.Done()

	for {
		msg, err := s.channel.Receive(0)
		if err != nil {
			m.drop(s, Classify("receive", err))
			return
		}
		m.dispatch(s, ep, msg)
	}
}

func (m *Manager) dispatch(s *session, ep Endpoint, msg *wire.Message) {
	switch {
	case msg.IsPing():
		ts, err := msg.Timestamp()
		if err != nil {
			m.logger.Debug("ignoring ping without timestamp")
			return
		}
		if err := s.channel.Send(wire.NewPong(ts)); err != nil {
			m.logger.Debug("pong reply failed", "err", err)
		}

	case msg.IsPong():
		ev := Event{Kind: EventPong, Endpoint: ep, Message: msg}
		if ts, err := msg.Timestamp(); err == nil {
			if s.keepAlive != nil {
				s.keepAlive.PongReceived(ts)
			}
			m.resolvePing(ts)
			ev.RoundTrip = time.Since(time.UnixMilli(ts))
		}
		m.emit(ev)

	default:
		m.emit(Event{Kind: EventMessage, Endpoint: ep, Message: msg})
	}
}

// drop tears s down after a transport failure. It is a no-op when s is no
// longer the active session.
func (m *Manager) drop(s *session, cause *Error) {
	m.mu.Lock()
	if m.session != s {
		m.mu.Unlock()
		return
	}
	m.session = nil
	ep := m.endpoint
	oldState := m.setStateLocked(StateDisconnected, cause.Error())
	m.mu.Unlock()

	m.closeSession(s)
	m.failPendingPings()

	connID := s.channel.ID()
	m.logger.Warn("connection lost", "host", ep.Host, "port", ep.Port, "err", cause)
	m.logError(cause, connID)
	m.publishTransition(transition{from: oldState, to: StateDisconnected, ep: ep, reason: cause.Error(), err: cause, connID: connID})
	m.emit(Event{Kind: EventDisconnected, Endpoint: ep, Reason: cause.Error(), Err: cause})
}

// Disconnect cancels any in-flight connect, closes the channel and cancels
// every timer the manager owns. Safe to call repeatedly.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.gen++
	cancel := m.connectCancel
	m.connectCancel = nil
	s := m.session
	m.session = nil
	ep := m.endpoint
	oldState := m.setStateLocked(StateDisconnected, "")
	m.timers.CancelAll()
	m.mu.Unlock()

	if cancel != nil {
		cancel(ErrConnectAborted)
	}
	m.closeSession(s)
	m.failPendingPings()

	if oldState == StateDisconnected {
		return
	}

	var connID string
	if s != nil {
		connID = s.channel.ID()
	}
	m.logger.Info("disconnected", "host", ep.Host, "port", ep.Port)
	m.publishTransition(transition{from: oldState, to: StateDisconnected, ep: ep, reason: "disconnect requested", connID: connID})
	if s != nil {
		m.emit(Event{Kind: EventDisconnected, Endpoint: ep, Reason: "disconnect requested"})
	}
}

// Close disconnects and removes every subscriber. The manager is unusable
// afterwards.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	m.Disconnect()
	m.subs.ClearAll()
	m.timers.Close()
	m.lifeCancel()
	m.wg.Wait()
	return nil
}

func (m *Manager) closeSession(s *session) {
	if s == nil {
		return
	}
	s.cancel()
	if s.keepAlive != nil {
		s.keepAlive.Stop()
	}
	_ = s.channel.Close()
}

// Send writes a fire-and-forget command.
func (m *Manager) Send(ctx context.Context, cmd wire.Command) error {
	if !cmd.Valid() {
		return newError(KindInput, "send", fmt.Errorf("%w: %q", ErrUnknownCommand, string(cmd)))
	}

	m.mu.RLock()
	closed := m.closed
	s := m.session
	m.mu.RUnlock()

	if closed {
		return newError(KindConnection, "send", ErrManagerClosed)
	}
	if s == nil {
		return newError(KindConnection, "send", ErrNotConnected)
	}
	if err := ctx.Err(); err != nil {
		return Classify("send", err)
	}

	if err := s.channel.Send(wire.NewCommand(cmd)); err != nil {
		return Classify("send", err)
	}
	m.logger.Debug("command sent", "command", cmd.String())
	return nil
}

// HealthCheck sends a ping and reports whether the matching pong arrived
// within Config.HealthCheckTimeout.
func (m *Manager) HealthCheck(ctx context.Context) bool {
	m.mu.RLock()
	s := m.session
	m.mu.RUnlock()
	if s == nil {
		return false
	}

	ts, reply := m.registerPing()
	defer m.unregisterPing(ts)

	if err := s.channel.Send(wire.NewPing(time.UnixMilli(ts))); err != nil {
		m.logger.Debug("health check ping failed", "err", err)
		return false
	}

	expired := make(chan struct{})
	tok := m.timers.After(timerHealthCheck, m.config.HealthCheckTimeout, func() { close(expired) })
	defer tok.Cancel()

	select {
	case ok := <-reply:
		return ok
	case <-expired:
		return false
	case <-ctx.Done():
		return false
	}
}

func (m *Manager) registerPing() (int64, chan bool) {
	m.pingMu.Lock()
	defer m.pingMu.Unlock()

	ts := time.Now().UnixMilli()
	for {
		if _, taken := m.pending[ts]; !taken {
			break
		}
		ts++
	}
	reply := make(chan bool, 1)
	m.pending[ts] = reply
	return ts, reply
}

func (m *Manager) unregisterPing(ts int64) {
	m.pingMu.Lock()
	defer m.pingMu.Unlock()
	delete(m.pending, ts)
}

func (m *Manager) resolvePing(ts int64) {
	m.pingMu.Lock()
	defer m.pingMu.Unlock()
	if reply, ok := m.pending[ts]; ok {
		select {
		case reply <- true:
		default:
		}
	}
}

func (m *Manager) failPendingPings() {
	m.pingMu.Lock()
	defer m.pingMu.Unlock()
	for _, reply := range m.pending {
		select {
		case reply <- false:
		default:
		}
	}
}

// Subscribe registers h for events of kind. It returns an invalid
// Subscription for unknown kinds, a nil handler or a closed manager.
func (m *Manager) Subscribe(kind EventKind, h Handler) Subscription {
	if !kind.Valid() || h == nil {
		return Subscription{}
	}
	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return Subscription{}
	}
	return m.subs.Subscribe(kind, h)
}

// Unsubscribe removes a subscription.
func (m *Manager) Unsubscribe(sub Subscription) error {
	return m.subs.Unsubscribe(sub)
}

func (m *Manager) emit(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	m.subs.Publish(ev.Kind, ev)
}

func (m *Manager) handlerPanic(kind EventKind, perr *subscription.PanicError) {
	herr := newError(KindHandler, "handle "+kind.String(), perr)
	m.logger.Error("event handler panicked", "event", kind.String(), "err", perr)
	m.logError(herr, "")
}

// transition describes one state change for subscribers and the protocol log.
type transition struct {
	from, to State
	ep       Endpoint
	reason   string
	err      error
	connID   string
}

func (m *Manager) publishTransition(t transition) {
	ev := log.Event{
		Timestamp:    time.Now(),
		ConnectionID: t.connID,
		Layer:        log.LayerConnection,
		Category:     log.CategoryState,
		StateChange: &log.StateChangeEvent{
			OldState: t.from.String(),
			NewState: t.to.String(),
			Reason:   t.reason,
		},
	}
	if !t.ep.IsZero() {
		ev.RemoteAddr = t.ep.Address()
	}
	m.plog.Log(ev)

	m.emit(Event{
		Kind:     EventStateChanged,
		Endpoint: t.ep,
		OldState: t.from,
		State:    t.to,
		Reason:   t.reason,
		Err:      t.err,
	})
}

func (m *Manager) logError(e *Error, connID string) {
	m.plog.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Layer:        log.LayerConnection,
		Category:     log.CategoryError,
		Error: &log.ErrorEventData{
			Layer:   log.LayerConnection,
			Kind:    e.Kind.String(),
			Message: e.Error(),
			Context: e.Op,
		},
	})
}

func (m *Manager) setStateLocked(s State, lastError string) State {
	old := m.state
	m.state = s
	m.lastError = lastError
	return old
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// IsConnected reports whether a channel is open.
func (m *Manager) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == StateConnected
}

// Endpoint returns the endpoint of the current or last connect attempt.
func (m *Manager) Endpoint() Endpoint {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.endpoint
}

// LastError returns the failure message of the last transition, if any.
func (m *Manager) LastError() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastError
}

// Snapshot returns a consistent view of the manager state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := Snapshot{
		State:     m.state,
		LastError: m.lastError,
		Endpoint:  m.endpoint,
	}
	if m.session != nil {
		snap.Transport = m.session.channel.Transport()
		snap.ConnectionID = m.session.channel.ID()
	}
	return snap
}
