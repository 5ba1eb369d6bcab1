package transport

import (
	"errors"
	"time"

	"github.com/cuelink/cuelink-go/pkg/log"
	"github.com/cuelink/cuelink-go/pkg/wire"
)

// Channel defaults.
const (
	// DefaultWriteTimeout bounds a single Send.
	DefaultWriteTimeout = 5 * time.Second

	// DefaultControlPath is the WebSocket endpoint path on the host.
	DefaultControlPath = "/control"

	// DefaultHandshakeTimeout bounds the WebSocket upgrade.
	DefaultHandshakeTimeout = 10 * time.Second
)

// Channel errors.
var (
	ErrChannelClosed = errors.New("channel closed")
	ErrPeerClosed    = errors.New("peer closed channel")
	ErrNoTransports  = errors.New("no transports configured")
)

// Config configures channels opened by a dialer.
type Config struct {
	// MaxMessageSize is the maximum encoded message size (default: 64KB).
	MaxMessageSize uint32

	// WriteTimeout bounds a single Send (default: 5s).
	WriteTimeout time.Duration

	// ProtocolLogger receives frame and message events. Optional.
	ProtocolLogger log.Logger
}

func (c Config) withDefaults() Config {
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = DefaultMaxMessageSize
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	return c
}

// msgLog emits wire-layer protocol events for one channel.
type msgLog struct {
	logger     log.Logger
	connID     string
	remoteAddr string
	transport  string
}

func (ml msgLog) message(direction log.Direction, msg *wire.Message) {
	if ml.logger == nil {
		return
	}

	ev := log.Event{
		Timestamp:    time.Now(),
		ConnectionID: ml.connID,
		Direction:    direction,
		Layer:        log.LayerWire,
		Category:     log.CategoryMessage,
		RemoteAddr:   ml.remoteAddr,
		Transport:    ml.transport,
	}

	switch {
	case msg.IsPing(), msg.IsPong():
		ts, _ := msg.Timestamp()
		ctl := &log.ControlMsgEvent{Type: log.ControlMsgPing, Timestamp: ts}
		if msg.IsPong() {
			ctl.Type = log.ControlMsgPong
		}
		ev.Category = log.CategoryControl
		ev.ControlMsg = ctl
	default:
		ev.Message = &log.MessageEvent{Event: msg.Event, Payload: msg.Payload}
	}

	ml.logger.Log(ev)
}

func (ml msgLog) error(context string, err error) {
	if ml.logger == nil || err == nil {
		return
	}
	ml.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: ml.connID,
		Layer:        log.LayerWire,
		Category:     log.CategoryError,
		RemoteAddr:   ml.remoteAddr,
		Transport:    ml.transport,
		Error: &log.ErrorEventData{
			Layer:   log.LayerWire,
			Message: err.Error(),
			Context: context,
		},
	})
}

// deadline converts a relative timeout into a connection deadline.
// Zero means no deadline.
func deadline(timeout time.Duration) time.Time {
	if timeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(timeout)
}
