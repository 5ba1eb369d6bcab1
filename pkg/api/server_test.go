package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuelink/cuelink-go/pkg/connection"
	"github.com/cuelink/cuelink-go/pkg/discovery"
	"github.com/cuelink/cuelink-go/pkg/orchestrator"
	"github.com/cuelink/cuelink-go/pkg/persistence"
	"github.com/cuelink/cuelink-go/pkg/wire"
)

// fakeController records calls and returns scripted results.
type fakeController struct {
	mu        sync.Mutex
	status    orchestrator.Status
	connected []connection.Endpoint
	sent      []wire.Command
	patches   []persistence.SettingsPatch
	removed   []string

	connectErr   error
	reconnectErr error
	sendErr      error
	discoveryErr error
	healthy      bool
}

func newFakeController() *fakeController {
	return &fakeController{
		status: orchestrator.Status{
			State:    connection.StateDisconnected,
			History:  []persistence.HistoryEntry{{ID: "192.168.1.5:5505", Host: "192.168.1.5", Port: 5505, SuccessCount: 3}},
			Settings: persistence.DefaultSettings(),
		},
	}
}

func (f *fakeController) Status() orchestrator.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeController) Connect(_ context.Context, ep connection.Endpoint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := ep.Validate(); err != nil {
		return err
	}
	f.connected = append(f.connected, ep)
	if f.connectErr != nil {
		return f.connectErr
	}
	f.status.State = connection.StateConnected
	f.status.IsConnected = true
	f.status.Host = ep.Host
	f.status.Port = ep.Port
	return nil
}

func (f *fakeController) Reconnect(context.Context) error { return f.reconnectErr }

func (f *fakeController) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status.State = connection.StateDisconnected
	f.status.IsConnected = false
}

func (f *fakeController) Send(_ context.Context, cmd wire.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !cmd.Valid() {
		return &connection.Error{Kind: connection.KindInput, Op: "send", Err: fmt.Errorf("%w: %q", connection.ErrUnknownCommand, string(cmd))}
	}
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, cmd)
	return nil
}

func (f *fakeController) HealthCheck(context.Context) bool { return f.healthy }

func (f *fakeController) RemoveFromHistory(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, id)
	return id == "192.168.1.5:5505", nil
}

func (f *fakeController) ClearHistory(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status.History = nil
	return nil
}

func (f *fakeController) UpdateSettings(_ context.Context, patch persistence.SettingsPatch) (persistence.Settings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.patches = append(f.patches, patch)
	if patch.Theme != nil {
		f.status.Settings.Theme = *patch.Theme
	}
	return f.status.Settings, nil
}

func (f *fakeController) StartDiscovery(context.Context) error { return f.discoveryErr }
func (f *fakeController) StopDiscovery()                       {}

func newTestServer(ctl Controller, opts ...func(*Config)) *Server {
	cfg := Config{Version: "1.2.3"}
	for _, opt := range opts {
		opt(&cfg)
	}
	return NewServer(ctl, cfg)
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestStatus(t *testing.T) {
	s := newTestServer(newFakeController())

	rec := do(t, s, http.MethodGet, "/api/v1/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	body := decode[map[string]any](t, rec)
	assert.Equal(t, "disconnected", body["status"])
	assert.Equal(t, false, body["is_connected"])
	assert.Len(t, body["history"], 1)
}

func TestHealth(t *testing.T) {
	ctl := newFakeController()
	s := newTestServer(ctl)

	rec := do(t, s, http.MethodGet, "/api/v1/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, healthResponse{Status: "ok", Version: "1.2.3"}, decode[healthResponse](t, rec))

	ctl.healthy = true
	require.NoError(t, ctl.Connect(context.Background(), connection.Endpoint{Host: "192.168.1.5", Port: 5505}))
	rec = do(t, s, http.MethodGet, "/api/v1/health", "")
	assert.Equal(t, healthResponse{Status: "ok", Version: "1.2.3", Connected: true, Responding: true}, decode[healthResponse](t, rec))
}

func TestConnect(t *testing.T) {
	t.Run("success with default port", func(t *testing.T) {
		ctl := newFakeController()
		s := newTestServer(ctl)

		rec := do(t, s, http.MethodPost, "/api/v1/connect", `{"host":" 192.168.1.5 ","name":"Studio"}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, []connection.Endpoint{{Host: "192.168.1.5", Port: discovery.DefaultControlPort, Name: "Studio"}}, ctl.connected)
		assert.Equal(t, "connected", decode[map[string]any](t, rec)["status"])
	})

	t.Run("malformed body", func(t *testing.T) {
		s := newTestServer(newFakeController())
		rec := do(t, s, http.MethodPost, "/api/v1/connect", `{"host":`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "InputError", decode[errorResponse](t, rec).Kind)
	})

	t.Run("unknown field", func(t *testing.T) {
		s := newTestServer(newFakeController())
		rec := do(t, s, http.MethodPost, "/api/v1/connect", `{"hostname":"a"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("invalid port", func(t *testing.T) {
		s := newTestServer(newFakeController())
		rec := do(t, s, http.MethodPost, "/api/v1/connect", `{"host":"192.168.1.5","port":70000}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		resp := decode[errorResponse](t, rec)
		assert.Equal(t, "InputError", resp.Kind)
		assert.Contains(t, resp.Error, "port")
	})

	tests := []struct {
		name   string
		err    error
		status int
		kind   string
	}{
		{"in progress", &connection.Error{Kind: connection.KindConnection, Op: "connect", Err: connection.ErrConnectInProgress}, http.StatusConflict, "ConnectionError"},
		{"timeout", &connection.Error{Kind: connection.KindTimeout, Op: "connect", Err: connection.ErrConnectTimeout}, http.StatusGatewayTimeout, "TimeoutError"},
		{"refused", &connection.Error{Kind: connection.KindConnection, Op: "connect", Err: connection.ErrMaxRetriesExceeded}, http.StatusBadGateway, "ConnectionError"},
		{"network", &connection.Error{Kind: connection.KindNetwork, Op: "connect", Err: fmt.Errorf("no route")}, http.StatusBadGateway, "NetworkError"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctl := newFakeController()
			ctl.connectErr = tt.err
			s := newTestServer(ctl)

			rec := do(t, s, http.MethodPost, "/api/v1/connect", `{"host":"192.168.1.5","port":5505}`)
			assert.Equal(t, tt.status, rec.Code)
			resp := decode[errorResponse](t, rec)
			assert.Equal(t, tt.kind, resp.Kind)
			assert.Equal(t, tt.err.Error(), resp.Error)
		})
	}
}

func TestReconnect(t *testing.T) {
	ctl := newFakeController()
	ctl.reconnectErr = orchestrator.ErrNoHistory
	s := newTestServer(ctl)

	rec := do(t, s, http.MethodPost, "/api/v1/reconnect", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	ctl.reconnectErr = nil
	rec = do(t, s, http.MethodPost, "/api/v1/reconnect", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDisconnect(t *testing.T) {
	ctl := newFakeController()
	s := newTestServer(ctl)
	require.NoError(t, ctl.Connect(context.Background(), connection.Endpoint{Host: "192.168.1.5", Port: 5505}))

	rec := do(t, s, http.MethodPost, "/api/v1/disconnect", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "disconnected", decode[map[string]any](t, rec)["status"])
}

func TestCommands(t *testing.T) {
	t.Run("sent", func(t *testing.T) {
		ctl := newFakeController()
		s := newTestServer(ctl)

		assert.Equal(t, http.StatusNoContent, do(t, s, http.MethodPost, "/api/v1/commands/NEXT", "").Code)
		assert.Equal(t, http.StatusNoContent, do(t, s, http.MethodPost, "/api/v1/commands/clear_all", "").Code)
		assert.Equal(t, []wire.Command{wire.CommandNext, wire.CommandClearAll}, ctl.sent)
	})

	t.Run("unknown command", func(t *testing.T) {
		s := newTestServer(newFakeController())
		rec := do(t, s, http.MethodPost, "/api/v1/commands/JUMP", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "InputError", decode[errorResponse](t, rec).Kind)
	})

	t.Run("not connected", func(t *testing.T) {
		ctl := newFakeController()
		ctl.sendErr = &connection.Error{Kind: connection.KindConnection, Op: "send", Err: connection.ErrNotConnected}
		s := newTestServer(ctl)

		rec := do(t, s, http.MethodPost, "/api/v1/commands/PREVIOUS", "")
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "send: not connected", decode[errorResponse](t, rec).Error)
	})

	t.Run("rate limited", func(t *testing.T) {
		ctl := newFakeController()
		s := newTestServer(ctl, func(c *Config) {
			c.CommandRate = 0.001
			c.CommandBurst = 2
		})

		assert.Equal(t, http.StatusNoContent, do(t, s, http.MethodPost, "/api/v1/commands/NEXT", "").Code)
		assert.Equal(t, http.StatusNoContent, do(t, s, http.MethodPost, "/api/v1/commands/NEXT", "").Code)

		rec := do(t, s, http.MethodPost, "/api/v1/commands/NEXT", "")
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "1", rec.Header().Get("Retry-After"))
		assert.Len(t, ctl.sent, 2)

		// Other routes are not limited.
		assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/api/v1/status", "").Code)
	})
}

func TestHistory(t *testing.T) {
	ctl := newFakeController()
	s := newTestServer(ctl)

	rec := do(t, s, http.MethodGet, "/api/v1/history", "")
	require.Equal(t, http.StatusOK, rec.Code)
	history := decode[[]persistence.HistoryEntry](t, rec)
	require.Len(t, history, 1)
	assert.Equal(t, 3, history[0].SuccessCount)

	rec = do(t, s, http.MethodDelete, "/api/v1/history/192.168.1.5:5505", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[removedResponse](t, rec).Removed)

	rec = do(t, s, http.MethodDelete, "/api/v1/history/10.0.0.1:5505", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, []string{"192.168.1.5:5505", "10.0.0.1:5505"}, ctl.removed)

	assert.Equal(t, http.StatusNoContent, do(t, s, http.MethodDelete, "/api/v1/history", "").Code)
	assert.Empty(t, ctl.Status().History)
}

func TestSettings(t *testing.T) {
	ctl := newFakeController()
	s := newTestServer(ctl)

	rec := do(t, s, http.MethodGet, "/api/v1/settings", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, persistence.DefaultSettings(), decode[persistence.Settings](t, rec))

	rec = do(t, s, http.MethodPatch, "/api/v1/settings", `{"theme":"light"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "light", decode[persistence.Settings](t, rec).Theme)
	require.Len(t, ctl.patches, 1)
	assert.Nil(t, ctl.patches[0].AutoReconnectEnabled)

	rec = do(t, s, http.MethodPatch, "/api/v1/settings", `{"connection_timeout_seconds":"ten"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDiscovery(t *testing.T) {
	ctl := newFakeController()
	s := newTestServer(ctl)

	assert.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/api/v1/discovery/start", "").Code)
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/api/v1/discovery/stop", "").Code)

	ctl.discoveryErr = discovery.ErrUnavailable
	assert.Equal(t, http.StatusServiceUnavailable, do(t, s, http.MethodPost, "/api/v1/discovery/start", "").Code)
}

func TestMetricsRoute(t *testing.T) {
	s := newTestServer(newFakeController())
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/metrics", "").Code)

	s = newTestServer(newFakeController(), func(c *Config) {
		c.Metrics = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("cuelink_connected 0\n"))
		})
	})
	rec := do(t, s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cuelink_connected 0\n", rec.Body.String())
}

func TestMethodNotAllowed(t *testing.T) {
	s := newTestServer(newFakeController())
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, s, http.MethodPost, "/api/v1/status", "").Code)
}
