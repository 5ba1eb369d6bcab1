package connection

import (
	"net"
	"strconv"
	"strings"
)

// State represents the connection state.
type State uint8

const (
	// StateDisconnected indicates no channel and no attempt in progress.
	StateDisconnected State = iota

	// StateConnecting indicates a connect attempt is in progress.
	StateConnecting

	// StateConnected indicates an open channel.
	StateConnected

	// StateError indicates the last connect attempt failed.
	StateError
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Endpoint is a host/port pair to connect to.
type Endpoint struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	Name string `json:"name,omitempty"`
}

// Validate checks host non-emptiness and port range.
func (e Endpoint) Validate() error {
	if strings.TrimSpace(e.Host) == "" {
		return newError(KindInput, "validate", ErrInvalidHost)
	}
	if e.Port < 1 || e.Port > 65535 {
		return newError(KindInput, "validate", ErrInvalidPort)
	}
	return nil
}

// Address returns host:port.
func (e Endpoint) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// IsZero reports whether no endpoint is set.
func (e Endpoint) IsZero() bool {
	return e.Host == "" && e.Port == 0
}

// Snapshot is a consistent view of the manager's state.
type Snapshot struct {
	State        State
	LastError    string
	Endpoint     Endpoint
	Transport    string
	ConnectionID string
}
