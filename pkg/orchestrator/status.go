package orchestrator

import (
	"slices"

	"github.com/cuelink/cuelink-go/pkg/connection"
	"github.com/cuelink/cuelink-go/pkg/discovery"
	"github.com/cuelink/cuelink-go/pkg/persistence"
)

// Status is the application status object.
type Status struct {
	IsConnected bool             `json:"is_connected"`
	Host        string           `json:"host,omitempty"`
	Port        int              `json:"port,omitempty"`
	Name        string           `json:"name,omitempty"`
	State       connection.State `json:"status"`
	LastError   string           `json:"last_error,omitempty"`
	ErrorKind   string           `json:"error_kind,omitempty"`

	History  []persistence.HistoryEntry `json:"history"`
	Settings persistence.Settings       `json:"settings"`

	DiscoveredInstances []discovery.DiscoveredHost `json:"discovered_instances"`
	IsDiscovering       bool                       `json:"is_discovering"`
	DiscoveryAvailable  bool                       `json:"discovery_available"`
	DiscoveryError      string                     `json:"discovery_error,omitempty"`

	AutoReconnectAttempted bool `json:"auto_reconnect_attempted"`
	Ready                  bool `json:"ready"`
}

// clone returns a deep copy of s.
func (s Status) clone() Status {
	out := s
	out.History = make([]persistence.HistoryEntry, len(s.History))
	for i, h := range s.History {
		if h.CapabilityPorts != nil {
			ports := make(map[string]int, len(h.CapabilityPorts))
			for k, v := range h.CapabilityPorts {
				ports[k] = v
			}
			h.CapabilityPorts = ports
		}
		out.History[i] = h
	}
	out.DiscoveredInstances = make([]discovery.DiscoveredHost, len(s.DiscoveredInstances))
	for i, d := range s.DiscoveredInstances {
		d.Capabilities = slices.Clone(d.Capabilities)
		out.DiscoveredInstances[i] = d
	}
	return out
}

// setError records err as the last failure.
func (s *Status) setError(err error) {
	if err == nil {
		s.LastError = ""
		s.ErrorKind = ""
		return
	}
	s.LastError = err.Error()
	s.ErrorKind = connection.KindOf(err).String()
}
