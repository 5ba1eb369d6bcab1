package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cuelink/cuelink-go/pkg/log"
	"github.com/cuelink/cuelink-go/pkg/wire"
)

// TCPDialer opens length-prefixed CBOR channels over plain TCP.
type TCPDialer struct {
	config Config
}

// NewTCPDialer creates a TCP dialer.
func NewTCPDialer(config Config) *TCPDialer {
	return &TCPDialer{config: config.withDefaults()}
}

// Name returns the transport name.
func (d *TCPDialer) Name() string { return TransportTCP }

// Dial opens a framed TCP channel to address.
func (d *TCPDialer) Dial(ctx context.Context, address string) (Channel, error) {
	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial failed: %w", err)
	}
	return newTCPChannel(conn, address, d.config), nil
}

// TCPChannel is a control channel over a framed TCP stream.
type TCPChannel struct {
	conn   net.Conn
	framer *Framer
	config Config
	log    msgLog
	id     string
	remote string

	closeCh   chan struct{}
	closeOnce sync.Once
	writeMu   sync.Mutex
	readMu    sync.Mutex
}

// NewTCPChannel wraps an established connection. Used by tests and by
// hosts that accept the fallback transport.
func NewTCPChannel(conn net.Conn, config Config) *TCPChannel {
	return newTCPChannel(conn, conn.RemoteAddr().String(), config.withDefaults())
}

func newTCPChannel(conn net.Conn, remote string, config Config) *TCPChannel {
	id := uuid.NewString()
	framer := NewFramer(conn, config.MaxMessageSize)
	if config.ProtocolLogger != nil {
		framer.SetLogger(config.ProtocolLogger, id, remote)
	}

	return &TCPChannel{
		conn:    conn,
		framer:  framer,
		config:  config,
		id:      id,
		remote:  remote,
		closeCh: make(chan struct{}),
		log: msgLog{
			logger:     config.ProtocolLogger,
			connID:     id,
			remoteAddr: remote,
			transport:  TransportTCP,
		},
	}
}

// ID returns the connection ID.
func (c *TCPChannel) ID() string { return c.id }

// Transport returns "tcp".
func (c *TCPChannel) Transport() string { return TransportTCP }

// RemoteAddr returns the host address.
func (c *TCPChannel) RemoteAddr() string { return c.remote }

// Send encodes and writes one message.
func (c *TCPChannel) Send(msg *wire.Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.isClosed() {
		return ErrChannelClosed
	}

	data, err := wire.EncodeMessage(msg)
	if err != nil {
		return err
	}

	_ = c.conn.SetWriteDeadline(deadline(c.config.WriteTimeout))
	if err := c.framer.WriteFrame(data); err != nil {
		c.log.error("send", err)
		return err
	}

	c.log.message(log.DirectionOut, msg)
	return nil
}

// Receive reads and decodes one message.
func (c *TCPChannel) Receive(timeout time.Duration) (*wire.Message, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	if c.isClosed() {
		return nil, ErrChannelClosed
	}

	_ = c.conn.SetReadDeadline(deadline(timeout))

	data, err := c.framer.ReadFrame()
	if err != nil {
		if c.isClosed() {
			return nil, ErrChannelClosed
		}
		if errors.Is(err, io.EOF) {
			return nil, ErrPeerClosed
		}
		c.log.error("receive", err)
		return nil, err
	}

	msg, err := wire.DecodeMessage(data)
	if err != nil {
		c.log.error("decode", err)
		return nil, err
	}

	c.log.message(log.DirectionIn, msg)
	return msg, nil
}

// Close closes the connection.
func (c *TCPChannel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeCh)
		err = c.conn.Close()
	})
	return err
}

func (c *TCPChannel) isClosed() bool {
	select {
	case <-c.closeCh:
		return true
	default:
		return false
	}
}
