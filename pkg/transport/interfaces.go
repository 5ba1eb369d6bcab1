package transport

import (
	"context"
	"time"

	"github.com/cuelink/cuelink-go/pkg/wire"
)

// Transport names reported by Channel.Transport.
const (
	TransportWebSocket = "websocket"
	TransportTCP       = "tcp"
)

// Channel is an open, message-oriented control channel.
// Implemented by WSChannel and TCPChannel.
type Channel interface {
	// ID returns the unique connection ID used in protocol logs.
	ID() string

	// Transport returns the transport name (websocket, tcp).
	Transport() string

	// RemoteAddr returns the host address (host:port).
	RemoteAddr() string

	// Send writes one message to the host.
	Send(msg *wire.Message) error

	// Receive blocks until a message arrives, the timeout expires
	// (zero means no timeout) or the channel is closed.
	Receive(timeout time.Duration) (*wire.Message, error)

	// Close closes the channel. Safe to call more than once.
	Close() error
}

// Dialer opens control channels.
// Implemented by WSDialer, TCPDialer and FallbackDialer.
type Dialer interface {
	// Dial opens a channel to address (host:port).
	Dial(ctx context.Context, address string) (Channel, error)
}

// FrameReadWriter provides length-prefixed frame I/O.
// Implemented by Framer.
type FrameReadWriter interface {
	// ReadFrame reads a length-prefixed frame.
	ReadFrame() ([]byte, error)

	// WriteFrame writes a length-prefixed frame.
	WriteFrame(data []byte) error
}

// Compile-time interface satisfaction checks.
var (
	_ Channel         = (*WSChannel)(nil)
	_ Channel         = (*TCPChannel)(nil)
	_ Dialer          = (*WSDialer)(nil)
	_ Dialer          = (*TCPDialer)(nil)
	_ Dialer          = (*FallbackDialer)(nil)
	_ FrameReadWriter = (*Framer)(nil)
)
