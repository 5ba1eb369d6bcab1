package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg, nil)

	m.ConnectAttempt()
	m.ConnectAttempt()
	m.ConnectFailure("TimeoutError")
	m.CommandSent("NEXT")
	m.CommandSent("NEXT")
	m.CommandSent("PREVIOUS")
	m.HealthCheck(true)
	m.HealthCheck(false)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.connectAttempts))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.connectFailures.WithLabelValues("TimeoutError")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.commandsSent.WithLabelValues("NEXT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.commandsSent.WithLabelValues("PREVIOUS")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.healthChecks.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.healthChecks.WithLabelValues("fail")))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ConnectAttempt()
		m.ConnectFailure("x")
		m.CommandSent("NEXT")
		m.HealthCheck(true)
	})
}

func TestStatusCollector(t *testing.T) {
	snap := Snapshot{Connected: true, DiscoveredInstances: 3, HistoryEntries: 7}
	c := NewStatusCollector(func() Snapshot { return snap })

	expected := `
# HELP cuelink_connected Whether the control channel is open
# TYPE cuelink_connected gauge
cuelink_connected 1
# HELP cuelink_discovered_instances Hosts in the latest discovery snapshot
# TYPE cuelink_discovered_instances gauge
cuelink_discovered_instances 3
# HELP cuelink_discovering Whether an mDNS discovery session is running
# TYPE cuelink_discovering gauge
cuelink_discovering 0
# HELP cuelink_history_entries Entries in the connection history
# TYPE cuelink_history_entries gauge
cuelink_history_entries 7
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected)))

	snap.Connected = false
	assert.Equal(t, 4, testutil.CollectAndCount(c))
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg, func() Snapshot { return Snapshot{Discovering: true} })
	m.CommandSent("CLEAR_ALL")

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `cuelink_commands_sent_total{command="CLEAR_ALL"} 1`)
	assert.Contains(t, body, "cuelink_discovering 1")
}
