package wire

import (
	"errors"
	"math"
	"time"
)

// Event names used on the control channel.
const (
	EventNext        = "NEXT"
	EventPrevious    = "PREVIOUS"
	EventClearOutput = "CLEAR_OUTPUT"
	EventClearAll    = "CLEAR_ALL"
	EventClearSlide  = "CLEAR_SLIDE"

	EventPing = "ping"
	EventPong = "pong"
)

// MaxEventNameLen bounds event names so a corrupt frame cannot allocate
// arbitrarily large strings downstream.
const MaxEventNameLen = 64

// Message errors.
var (
	ErrEmptyEvent       = errors.New("event name is empty")
	ErrEventTooLong     = errors.New("event name too long")
	ErrMissingTimestamp = errors.New("missing timestamp payload")
)

// Command is a fire-and-forget remote-control command.
type Command string

// Supported commands.
const (
	CommandNext        Command = EventNext
	CommandPrevious    Command = EventPrevious
	CommandClearOutput Command = EventClearOutput
	CommandClearAll    Command = EventClearAll
	CommandClearSlide  Command = EventClearSlide
)

// Commands returns every supported command in display order.
func Commands() []Command {
	return []Command{
		CommandNext,
		CommandPrevious,
		CommandClearOutput,
		CommandClearAll,
		CommandClearSlide,
	}
}

// Valid reports whether c is one of the supported commands.
func (c Command) Valid() bool {
	switch c {
	case CommandNext, CommandPrevious, CommandClearOutput, CommandClearAll, CommandClearSlide:
		return true
	default:
		return false
	}
}

// String returns the command's event name.
func (c Command) String() string {
	return string(c)
}

// Message is a single control-channel message.
//
// CBOR encoding:
//
//	{
//	  1: event    // string
//	  2: payload  // any, omitted when nil
//	}
type Message struct {
	Event   string `cbor:"1,keyasint"`
	Payload any    `cbor:"2,keyasint,omitempty"`
}

// Validate checks the message for structural errors.
func (m *Message) Validate() error {
	if m.Event == "" {
		return ErrEmptyEvent
	}
	if len(m.Event) > MaxEventNameLen {
		return ErrEventTooLong
	}
	return nil
}

// IsPing reports whether the message is a liveness ping.
func (m *Message) IsPing() bool {
	return m.Event == EventPing
}

// IsPong reports whether the message is a liveness pong.
func (m *Message) IsPong() bool {
	return m.Event == EventPong
}

// NewCommand builds the message for a remote-control command.
func NewCommand(cmd Command) *Message {
	return &Message{Event: string(cmd)}
}

// NewPing builds a ping carrying t as milliseconds since the Unix epoch.
func NewPing(t time.Time) *Message {
	return &Message{Event: EventPing, Payload: t.UnixMilli()}
}

// NewPong builds the reply to a ping with the given timestamp.
func NewPong(timestamp int64) *Message {
	return &Message{Event: EventPong, Payload: timestamp}
}

// Timestamp extracts the millisecond timestamp carried by a ping or pong.
func (m *Message) Timestamp() (int64, error) {
	ts, ok := ToInt64(m.Payload)
	if !ok {
		return 0, ErrMissingTimestamp
	}
	return ts, nil
}

// ToInt64 converts a decoded CBOR integer to int64.
// CBOR decodes non-negative integers as uint64 and negative ones as int64.
func ToInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case uint32:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}
