package orchestrator

import (
	"context"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuelink/cuelink-go/internal/testutil"
	"github.com/cuelink/cuelink-go/pkg/connection"
	"github.com/cuelink/cuelink-go/pkg/discovery"
	"github.com/cuelink/cuelink-go/pkg/metrics"
	"github.com/cuelink/cuelink-go/pkg/persistence"
	"github.com/cuelink/cuelink-go/pkg/transport"
	"github.com/cuelink/cuelink-go/pkg/wire"
)

const (
	studioHost = "192.168.1.5"
	boothHost  = "192.168.1.9"
	hostPort   = 5505
)

// fakeBrowse hands the found channel of every browse session to the test.
type fakeBrowse struct {
	sessions chan chan<- discovery.Advertisement
}

func (f *fakeBrowse) browse(ctx context.Context, service, domain string, found, lost chan<- discovery.Advertisement) error {
	select {
	case f.sessions <- found:
	default:
	}
	<-ctx.Done()
	return nil
}

func (f *fakeBrowse) next(t *testing.T) chan<- discovery.Advertisement {
	t.Helper()
	select {
	case found := <-f.sessions:
		return found
	case <-time.After(time.Second):
		t.Fatal("discovery was not started")
		return nil
	}
}

type fixture struct {
	dialer  *testutil.FakeDialer
	conn    *connection.Manager
	disc    *discovery.Service
	browse  *fakeBrowse
	store   *persistence.Store
	metrics *metrics.Metrics
	reg     *prometheus.Registry

	config    Config
	available bool
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		dialer:    testutil.NewFakeDialer(),
		browse:    &fakeBrowse{sessions: make(chan chan<- discovery.Advertisement, 8)},
		store:     persistence.NewStore(persistence.Config{}),
		reg:       prometheus.NewRegistry(),
		available: true,
		config: Config{
			SettleDelay:      30 * time.Millisecond,
			LivenessInterval: time.Hour,
		},
	}
	f.conn = connection.NewManager(connection.Config{
		Dialer:             f.dialer,
		ConnectTimeout:     3 * time.Second,
		MaxRetries:         1,
		Backoff:            connection.BackoffConfig{Initial: time.Millisecond, Max: time.Millisecond, Multiplier: 2},
		HealthCheckTimeout: 100 * time.Millisecond,
		KeepAlive:          transport.KeepAliveConfig{Disabled: true},
		DisableProbe:       true,
	})
	t.Cleanup(func() { _ = f.conn.Close() })

	f.metrics = metrics.New(f.reg, nil)
	return f
}

// seed records host:port in history before the orchestrator starts.
func (f *fixture) seed(t *testing.T, host string, port int, name string) {
	t.Helper()
	_, err := f.store.AddToHistory(context.Background(), host, port, name, nil)
	require.NoError(t, err)
}

func (f *fixture) settings(t *testing.T, patch persistence.SettingsPatch) {
	t.Helper()
	_, err := f.store.UpdateSettings(context.Background(), patch)
	require.NoError(t, err)
}

func (f *fixture) start(t *testing.T) *Orchestrator {
	t.Helper()

	available := f.available
	f.disc = discovery.NewService(discovery.Config{
		Browse:    f.browse.browse,
		Available: func() bool { return available },
	})
	t.Cleanup(f.disc.Close)

	o := New(Deps{
		Connection: f.conn,
		Discovery:  f.disc,
		Store:      f.store,
		Metrics:    f.metrics,
	}, f.config)
	t.Cleanup(func() { _ = o.Close() })

	require.NoError(t, o.Start(context.Background()))
	return o
}

func ptr[T any](v T) *T { return &v }

func address(host string) string {
	return net.JoinHostPort(host, "5505")
}

func waitState(t *testing.T, o *Orchestrator, want connection.State) {
	t.Helper()
	require.Eventually(t, func() bool { return o.Status().State == want },
		2*time.Second, 5*time.Millisecond, "status never became %s", want)
}

func TestStartupAutoReconnect(t *testing.T) {
	f := newFixture(t)
	f.config.SettleDelay = 100 * time.Millisecond
	f.seed(t, studioHost, hostPort, "Studio")

	o := f.start(t)
	st := o.Status()
	assert.True(t, st.Ready)
	assert.True(t, st.AutoReconnectAttempted)
	assert.Empty(t, f.dialer.Calls(), "connect must wait for the settle delay")

	waitState(t, o, connection.StateConnected)

	st = o.Status()
	assert.True(t, st.IsConnected)
	assert.Equal(t, studioHost, st.Host)
	assert.Equal(t, hostPort, st.Port)
	require.Len(t, st.History, 1)
	assert.Equal(t, 2, st.History[0].SuccessCount)

	time.Sleep(3 * f.config.SettleDelay)
	assert.Equal(t, []string{address(studioHost)}, f.dialer.Calls())
}

func TestAutoReconnectFiresOnce(t *testing.T) {
	f := newFixture(t)
	f.seed(t, studioHost, hostPort, "")

	o := f.start(t)
	waitState(t, o, connection.StateConnected)

	f.dialer.LastChannel().Drop()
	waitState(t, o, connection.StateDisconnected)

	time.Sleep(4 * f.config.SettleDelay)
	assert.Len(t, f.dialer.Calls(), 1)
	assert.Equal(t, connection.StateDisconnected, o.Status().State)
	assert.NotEmpty(t, o.Status().LastError)
}

func TestAutoReconnectSkipped(t *testing.T) {
	t.Run("empty history", func(t *testing.T) {
		f := newFixture(t)
		o := f.start(t)

		time.Sleep(3 * f.config.SettleDelay)
		assert.Empty(t, f.dialer.Calls())
		assert.False(t, o.Status().AutoReconnectAttempted)
	})

	t.Run("disabled in settings", func(t *testing.T) {
		f := newFixture(t)
		f.seed(t, studioHost, hostPort, "")
		f.settings(t, persistence.SettingsPatch{AutoReconnectEnabled: ptr(false)})
		o := f.start(t)

		time.Sleep(3 * f.config.SettleDelay)
		assert.Empty(t, f.dialer.Calls())
		assert.False(t, o.Status().AutoReconnectAttempted)
	})

	t.Run("enabled later", func(t *testing.T) {
		f := newFixture(t)
		f.seed(t, studioHost, hostPort, "")
		f.settings(t, persistence.SettingsPatch{AutoReconnectEnabled: ptr(false)})
		o := f.start(t)

		settings, err := o.UpdateSettings(context.Background(), persistence.SettingsPatch{AutoReconnectEnabled: ptr(true)})
		require.NoError(t, err)
		assert.True(t, settings.AutoReconnectEnabled)

		waitState(t, o, connection.StateConnected)
		assert.Len(t, f.dialer.Calls(), 1)
	})
}

func TestAutoReconnectCallerTimeout(t *testing.T) {
	f := newFixture(t)
	f.seed(t, studioHost, hostPort, "")
	f.settings(t, persistence.SettingsPatch{ConnectionTimeoutSeconds: ptr(1)})
	f.dialer.Hold()
	t.Cleanup(f.dialer.Release)

	o := f.start(t)

	require.Eventually(t, func() bool {
		return o.Status().State == connection.StateError
	}, 3*time.Second, 10*time.Millisecond)

	st := o.Status()
	assert.Equal(t, "TimeoutError", st.ErrorKind)
	assert.Contains(t, st.LastError, ErrAutoReconnectTimeout.Error())
	assert.False(t, st.IsConnected)
	assert.Equal(t, connection.StateDisconnected, f.conn.State())
	assert.Empty(t, f.dialer.OpenChannels())
	assert.Len(t, f.dialer.Calls(), 1)
}

// gatedKV blocks writes while armed.
type gatedKV struct {
	persistence.KV

	mu      sync.Mutex
	gate    chan struct{}
	entered chan struct{}
}

// arm makes the next writes block until the returned func is called.
func (g *gatedKV) arm() func() {
	gate := make(chan struct{})
	g.mu.Lock()
	g.gate = gate
	g.mu.Unlock()

	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

func (g *gatedKV) Set(ctx context.Context, key string, value []byte) error {
	g.mu.Lock()
	gate := g.gate
	g.mu.Unlock()

	if gate != nil {
		select {
		case g.entered <- struct{}{}:
		default:
		}
		<-gate
	}
	return g.KV.Set(ctx, key, value)
}

func TestAutoReconnectTimeoutAfterOpen(t *testing.T) {
	f := newFixture(t)
	kv := &gatedKV{KV: persistence.NewMemoryKV(), entered: make(chan struct{}, 1)}
	f.store = persistence.NewStore(persistence.Config{KV: kv})
	f.seed(t, studioHost, hostPort, "")
	f.settings(t, persistence.SettingsPatch{ConnectionTimeoutSeconds: ptr(1)})

	release := kv.arm()
	t.Cleanup(release)

	o := f.start(t)

	// The channel is open and the history write is stuck past the timeout.
	select {
	case <-kv.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("history was not written")
	}
	time.Sleep(1200 * time.Millisecond)
	release()

	require.Eventually(t, func() bool {
		h := o.Status().History
		return len(h) == 1 && h[0].SuccessCount == 2
	}, 2*time.Second, 10*time.Millisecond)

	st := o.Status()
	assert.Equal(t, connection.StateConnected, st.State)
	assert.True(t, st.IsConnected)
	assert.Empty(t, st.LastError)
	assert.Equal(t, connection.StateConnected, f.conn.State())
	assert.Len(t, f.dialer.OpenChannels(), 1)
}

func TestConnectRecordsCapabilityPorts(t *testing.T) {
	f := newFixture(t)
	o := f.start(t)

	found := f.browse.next(t)
	found <- discovery.Advertisement{
		Instance: "REMOTE-Studio",
		HostName: "studio.local.",
		Port:     50001,
		AddrIPv4: []net.IP{net.ParseIP(studioHost)},
	}
	require.Eventually(t, func() bool { return len(o.Status().DiscoveredInstances) == 1 },
		time.Second, 5*time.Millisecond)

	st := o.Status()
	assert.True(t, st.IsDiscovering)
	assert.Equal(t, hostPort, st.DiscoveredInstances[0].Port)

	require.NoError(t, o.Connect(context.Background(), connection.Endpoint{Host: studioHost, Port: hostPort}))

	st = o.Status()
	require.Len(t, st.History, 1)
	entry := st.History[0]
	assert.Equal(t, persistence.EntryID(studioHost, hostPort), entry.ID)
	assert.Equal(t, "Studio", entry.Name)
	assert.Equal(t, 1, entry.SuccessCount)
	assert.Equal(t, map[string]int{"remote": 50001}, entry.CapabilityPorts)
	assert.Equal(t, "Studio", st.Name)
}

func TestManualConnectCancelsPendingAutoReconnect(t *testing.T) {
	f := newFixture(t)
	f.config.SettleDelay = 100 * time.Millisecond
	f.seed(t, studioHost, hostPort, "")

	o := f.start(t)
	require.NoError(t, o.Connect(context.Background(), connection.Endpoint{Host: boothHost, Port: hostPort}))

	time.Sleep(2 * f.config.SettleDelay)
	assert.Equal(t, []string{address(boothHost)}, f.dialer.Calls())
	assert.Equal(t, boothHost, o.Status().Host)
	require.Len(t, o.Status().History, 2)
	assert.Equal(t, boothHost, o.Status().History[0].Host)
}

func TestConnectInputErrorKeepsStatus(t *testing.T) {
	f := newFixture(t)
	o := f.start(t)

	err := o.Connect(context.Background(), connection.Endpoint{Host: " ", Port: hostPort})
	assert.True(t, connection.IsKind(err, connection.KindInput))
	assert.Equal(t, connection.StateDisconnected, o.Status().State)
	assert.Empty(t, f.dialer.Calls())
}

func TestReconnect(t *testing.T) {
	t.Run("no history", func(t *testing.T) {
		f := newFixture(t)
		o := f.start(t)
		assert.ErrorIs(t, o.Reconnect(context.Background()), ErrNoHistory)
	})

	t.Run("most recent entry", func(t *testing.T) {
		f := newFixture(t)
		f.seed(t, boothHost, hostPort, "")
		f.seed(t, studioHost, hostPort, "")
		f.settings(t, persistence.SettingsPatch{AutoReconnectEnabled: ptr(false)})
		o := f.start(t)

		require.NoError(t, o.Reconnect(context.Background()))
		assert.Equal(t, []string{address(studioHost)}, f.dialer.Calls())
		assert.True(t, o.Status().IsConnected)
	})
}

func TestDisconnect(t *testing.T) {
	f := newFixture(t)
	f.settings(t, persistence.SettingsPatch{AutoReconnectEnabled: ptr(false)})
	o := f.start(t)

	require.NoError(t, o.Connect(context.Background(), connection.Endpoint{Host: studioHost, Port: hostPort}))
	o.Disconnect()
	o.Disconnect()

	st := o.Status()
	assert.Equal(t, connection.StateDisconnected, st.State)
	assert.False(t, st.IsConnected)
	assert.Empty(t, f.dialer.OpenChannels())

	// History survives and a later enable does not reconnect.
	_, err := o.UpdateSettings(context.Background(), persistence.SettingsPatch{AutoReconnectEnabled: ptr(true)})
	require.NoError(t, err)
	time.Sleep(3 * f.config.SettleDelay)
	assert.Len(t, f.dialer.Calls(), 1)
}

func TestSendAndHealthCheck(t *testing.T) {
	f := newFixture(t)
	f.dialer.AutoPong = true
	o := f.start(t)
	f.reg.MustRegister(metrics.NewStatusCollector(o.MetricsSnapshot))

	err := o.Send(context.Background(), wire.CommandNext)
	assert.True(t, connection.IsKind(err, connection.KindConnection))
	assert.Equal(t, "ConnectionError", o.Status().ErrorKind)
	assert.False(t, o.HealthCheck(context.Background()))

	require.NoError(t, o.Connect(context.Background(), connection.Endpoint{Host: studioHost, Port: hostPort}))
	assert.Empty(t, o.Status().LastError)

	require.NoError(t, o.Send(context.Background(), wire.CommandNext))
	require.NoError(t, o.Send(context.Background(), wire.CommandClearAll))
	assert.Equal(t, []string{"NEXT", "CLEAR_ALL"}, f.dialer.LastChannel().SentEvents())
	assert.True(t, o.HealthCheck(context.Background()))

	expected := `
# HELP cuelink_commands_sent_total Remote-control commands written to the control channel
# TYPE cuelink_commands_sent_total counter
cuelink_commands_sent_total{command="CLEAR_ALL"} 1
cuelink_commands_sent_total{command="NEXT"} 1
# HELP cuelink_connect_attempts_total Connect calls issued to the control host
# TYPE cuelink_connect_attempts_total counter
cuelink_connect_attempts_total 1
# HELP cuelink_connected Whether the control channel is open
# TYPE cuelink_connected gauge
cuelink_connected 1
# HELP cuelink_history_entries Entries in the connection history
# TYPE cuelink_history_entries gauge
cuelink_history_entries 1
`
	assert.NoError(t, promtest.GatherAndCompare(f.reg, strings.NewReader(expected),
		"cuelink_commands_sent_total", "cuelink_connect_attempts_total",
		"cuelink_connected", "cuelink_history_entries"))
}

func TestHistoryOperations(t *testing.T) {
	f := newFixture(t)
	f.seed(t, boothHost, hostPort, "")
	f.seed(t, studioHost, hostPort, "")
	f.settings(t, persistence.SettingsPatch{AutoReconnectEnabled: ptr(false)})
	o := f.start(t)
	require.Len(t, o.Status().History, 2)

	removed, err := o.RemoveFromHistory(context.Background(), persistence.EntryID(boothHost, hostPort))
	require.NoError(t, err)
	assert.True(t, removed)
	require.Len(t, o.Status().History, 1)

	removed, err = o.RemoveFromHistory(context.Background(), "10.0.0.1:5505")
	require.NoError(t, err)
	assert.False(t, removed)

	require.NoError(t, o.ClearHistory(context.Background()))
	assert.Empty(t, o.Status().History)
	assert.Empty(t, f.store.History(context.Background()))
}

func TestStatusSubscription(t *testing.T) {
	f := newFixture(t)
	f.settings(t, persistence.SettingsPatch{AutoReconnectEnabled: ptr(false)})
	o := f.start(t)

	var mu sync.Mutex
	var states []connection.State
	sub := o.OnStatus(func(s Status) {
		mu.Lock()
		states = append(states, s.State)
		mu.Unlock()
	})
	require.True(t, sub.Valid())

	require.NoError(t, o.Connect(context.Background(), connection.Endpoint{Host: studioHost, Port: hostPort}))

	mu.Lock()
	assert.Contains(t, states, connection.StateConnecting)
	assert.Contains(t, states, connection.StateConnected)
	n := len(states)
	mu.Unlock()

	require.NoError(t, o.Unsubscribe(sub))
	o.Disconnect()
	mu.Lock()
	assert.Len(t, states, n)
	mu.Unlock()

	// Status returns a copy.
	st := o.Status()
	st.History[0].CapabilityPorts = map[string]int{"api": 1}
	st.History = nil
	require.Len(t, o.Status().History, 1)
	assert.Nil(t, o.Status().History[0].CapabilityPorts)
}

func TestBackgroundAndResume(t *testing.T) {
	f := newFixture(t)
	f.config.SettleDelay = 80 * time.Millisecond
	f.seed(t, studioHost, hostPort, "")
	o := f.start(t)
	f.browse.next(t)

	o.Background()
	assert.Zero(t, o.timers.Pending())
	assert.False(t, o.Status().IsDiscovering)

	time.Sleep(2 * f.config.SettleDelay)
	assert.Empty(t, f.dialer.Calls())

	require.NoError(t, o.Resume(context.Background()))
	f.browse.next(t)
	waitState(t, o, connection.StateConnected)
	assert.Len(t, f.dialer.Calls(), 1)
	require.Eventually(t, func() bool {
		names := o.timers.Names()
		return len(names) == 1 && names[0] == timerLiveness
	}, time.Second, 5*time.Millisecond)
}

func TestDiscoveryUnavailable(t *testing.T) {
	f := newFixture(t)
	f.available = false
	o := f.start(t)

	assert.False(t, o.Status().DiscoveryAvailable)
	assert.ErrorIs(t, o.StartDiscovery(context.Background()), discovery.ErrUnavailable)
	assert.False(t, o.Status().IsDiscovering)
}

func TestStopDiscovery(t *testing.T) {
	f := newFixture(t)
	o := f.start(t)

	found := f.browse.next(t)
	found <- discovery.Advertisement{Instance: "STAGE-Booth", Port: 1, AddrIPv4: []net.IP{net.ParseIP(boothHost)}}
	require.Eventually(t, func() bool { return len(o.Status().DiscoveredInstances) == 1 },
		time.Second, 5*time.Millisecond)

	o.StopDiscovery()
	st := o.Status()
	assert.False(t, st.IsDiscovering)
	assert.Empty(t, st.DiscoveredInstances)

	// Restart resubscribes.
	require.NoError(t, o.StartDiscovery(context.Background()))
	found = f.browse.next(t)
	found <- discovery.Advertisement{Instance: "STAGE-Booth", Port: 1, AddrIPv4: []net.IP{net.ParseIP(boothHost)}}
	require.Eventually(t, func() bool { return len(o.Status().DiscoveredInstances) == 1 },
		time.Second, 5*time.Millisecond)
}

func TestClose(t *testing.T) {
	f := newFixture(t)
	o := f.start(t)

	require.NoError(t, o.Close())
	require.NoError(t, o.Close())

	assert.ErrorIs(t, o.Start(context.Background()), ErrClosed)
	assert.ErrorIs(t, o.Connect(context.Background(), connection.Endpoint{Host: studioHost, Port: hostPort}), ErrClosed)
	assert.ErrorIs(t, o.Resume(context.Background()), ErrClosed)
	assert.Zero(t, o.timers.Pending())
}

// stubConnector reports a scripted connection state and never emits events.
type stubConnector struct {
	connected atomic.Bool
}

func (s *stubConnector) ConnectEndpoint(context.Context, connection.Endpoint) error { return nil }
func (s *stubConnector) Disconnect()                                            {}
func (s *stubConnector) Send(context.Context, wire.Command) error               { return nil }
func (s *stubConnector) HealthCheck(context.Context) bool                       { return false }
func (s *stubConnector) IsConnected() bool                                      { return s.connected.Load() }
func (s *stubConnector) Unsubscribe(connection.Subscription) error              { return nil }

func (s *stubConnector) State() connection.State {
	if s.connected.Load() {
		return connection.StateConnected
	}
	return connection.StateDisconnected
}

func (s *stubConnector) Snapshot() connection.Snapshot {
	return connection.Snapshot{State: s.State()}
}

func (s *stubConnector) Subscribe(connection.EventKind, connection.Handler) connection.Subscription {
	return connection.Subscription{}
}

func TestLivenessReconcile(t *testing.T) {
	stub := &stubConnector{}
	store := persistence.NewStore(persistence.Config{})
	disc := discovery.NewService(discovery.Config{Available: func() bool { return false }})
	t.Cleanup(disc.Close)

	o := New(Deps{Connection: stub, Discovery: disc, Store: store},
		Config{LivenessInterval: 10 * time.Millisecond, DisableDiscovery: true})
	t.Cleanup(func() { _ = o.Close() })
	require.NoError(t, o.Start(context.Background()))
	assert.Equal(t, connection.StateDisconnected, o.Status().State)

	stub.connected.Store(true)
	waitState(t, o, connection.StateConnected)
	assert.True(t, o.Status().IsConnected)

	stub.connected.Store(false)
	waitState(t, o, connection.StateDisconnected)

	for _, held := range []connection.State{connection.StateConnecting, connection.StateError} {
		o.update(func(s *Status) { s.State = held })
		stub.connected.Store(true)
		time.Sleep(50 * time.Millisecond)
		assert.Equal(t, held, o.Status().State, "liveness must not overwrite %s", held)
		stub.connected.Store(false)
		time.Sleep(50 * time.Millisecond)
		assert.Equal(t, held, o.Status().State, "liveness must not overwrite %s", held)
	}
}
