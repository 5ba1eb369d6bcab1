package connection

import (
	"time"

	"github.com/cuelink/cuelink-go/pkg/subscription"
	"github.com/cuelink/cuelink-go/pkg/wire"
)

// EventKind enumerates manager events.
type EventKind uint8

const (
	// EventStateChanged fires on every state transition.
	EventStateChanged EventKind = iota

	// EventConnected fires after a channel opened.
	EventConnected

	// EventDisconnected fires when an open channel went away.
	EventDisconnected

	// EventError fires when a connect attempt failed.
	EventError

	// EventMessage fires for every non-liveness message from the host.
	EventMessage

	// EventPong fires for every pong from the host.
	EventPong
)

// String returns the event kind name.
func (k EventKind) String() string {
	switch k {
	case EventStateChanged:
		return "state_changed"
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventError:
		return "error"
	case EventMessage:
		return "message"
	case EventPong:
		return "pong"
	default:
		return "unknown"
	}
}

// Valid reports whether k is one of the defined kinds.
func (k EventKind) Valid() bool {
	return k <= EventPong
}

// Event is delivered to subscribers.
type Event struct {
	Kind     EventKind
	Time     time.Time
	Endpoint Endpoint

	// Set for EventStateChanged.
	OldState State
	State    State

	// Why a state change or disconnect happened.
	Reason string

	// Set for EventError and for drops caused by an error.
	Err error

	// Set for EventMessage and EventPong.
	Message *wire.Message

	// Set for EventPong when the timestamp parsed.
	RoundTrip time.Duration
}

// Handler receives manager events.
type Handler func(Event)

// Subscription identifies a registered handler.
type Subscription = subscription.Handle[EventKind]
