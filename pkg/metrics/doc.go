// Package metrics exposes Prometheus metrics for the control client.
//
// Gauges are computed on scrape from a status snapshot:
//
//	cuelink_connected               1 while the control channel is open
//	cuelink_discovering             1 while an mDNS session runs
//	cuelink_discovered_instances    hosts in the last discovery snapshot
//	cuelink_history_entries         entries in the connection history
//
// Counters are updated by the orchestrator and the HTTP API:
//
//	cuelink_connect_attempts_total
//	cuelink_connect_failures_total{kind}
//	cuelink_commands_sent_total{command}
//	cuelink_health_checks_total{result}
package metrics
