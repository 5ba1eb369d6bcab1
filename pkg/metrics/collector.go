package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// StatusCollector reports status gauges computed at scrape time.
type StatusCollector struct {
	snapshot SnapshotFunc

	connected   *prometheus.Desc
	discovering *prometheus.Desc
	instances   *prometheus.Desc
	history     *prometheus.Desc
}

// NewStatusCollector creates a collector over snapshot.
func NewStatusCollector(snapshot SnapshotFunc) *StatusCollector {
	return &StatusCollector{
		snapshot: snapshot,
		connected: prometheus.NewDesc(
			prometheus.BuildFQName(Namespace, "", "connected"),
			"Whether the control channel is open", nil, nil),
		discovering: prometheus.NewDesc(
			prometheus.BuildFQName(Namespace, "", "discovering"),
			"Whether an mDNS discovery session is running", nil, nil),
		instances: prometheus.NewDesc(
			prometheus.BuildFQName(Namespace, "", "discovered_instances"),
			"Hosts in the latest discovery snapshot", nil, nil),
		history: prometheus.NewDesc(
			prometheus.BuildFQName(Namespace, "", "history_entries"),
			"Entries in the connection history", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *StatusCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.connected
	ch <- c.discovering
	ch <- c.instances
	ch <- c.history
}

// Collect implements prometheus.Collector.
func (c *StatusCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.snapshot()
	ch <- prometheus.MustNewConstMetric(c.connected, prometheus.GaugeValue, boolValue(s.Connected))
	ch <- prometheus.MustNewConstMetric(c.discovering, prometheus.GaugeValue, boolValue(s.Discovering))
	ch <- prometheus.MustNewConstMetric(c.instances, prometheus.GaugeValue, float64(s.DiscoveredInstances))
	ch <- prometheus.MustNewConstMetric(c.history, prometheus.GaugeValue, float64(s.HistoryEntries))
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

var _ prometheus.Collector = (*StatusCollector)(nil)
