package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "cuelink"

// Snapshot is the status view the gauges are computed from.
type Snapshot struct {
	Connected           bool
	Discovering         bool
	DiscoveredInstances int
	HistoryEntries      int
}

// SnapshotFunc returns the current status view.
type SnapshotFunc func() Snapshot

// Metrics holds the client counters. A nil *Metrics ignores every call.
type Metrics struct {
	connectAttempts prometheus.Counter
	connectFailures *prometheus.CounterVec
	commandsSent    *prometheus.CounterVec
	healthChecks    *prometheus.CounterVec
}

// New creates the counters and registers them, together with a status
// collector over snapshot when it is non-nil, with registry.
func New(registry prometheus.Registerer, snapshot SnapshotFunc) *Metrics {
	m := &Metrics{
		connectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "connect_attempts_total",
			Help:      "Connect calls issued to the control host",
		}),
		connectFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "connect_failures_total",
			Help:      "Failed connect calls by error kind",
		}, []string{"kind"}),
		commandsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "commands_sent_total",
			Help:      "Remote-control commands written to the control channel",
		}, []string{"command"}),
		healthChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "health_checks_total",
			Help:      "Health checks by result",
		}, []string{"result"}),
	}

	registry.MustRegister(m.connectAttempts, m.connectFailures, m.commandsSent, m.healthChecks)
	if snapshot != nil {
		registry.MustRegister(NewStatusCollector(snapshot))
	}
	return m
}

// ConnectAttempt counts one connect call.
func (m *Metrics) ConnectAttempt() {
	if m == nil {
		return
	}
	m.connectAttempts.Inc()
}

// ConnectFailure counts one failed connect call of the given error kind.
func (m *Metrics) ConnectFailure(kind string) {
	if m == nil {
		return
	}
	m.connectFailures.WithLabelValues(kind).Inc()
}

// CommandSent counts one command written to the channel.
func (m *Metrics) CommandSent(command string) {
	if m == nil {
		return
	}
	m.commandsSent.WithLabelValues(command).Inc()
}

// HealthCheck counts one health check.
func (m *Metrics) HealthCheck(ok bool) {
	if m == nil {
		return
	}
	result := "fail"
	if ok {
		result = "ok"
	}
	m.healthChecks.WithLabelValues(result).Inc()
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
