package transport

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/cuelink/cuelink-go/pkg/log"
	"github.com/cuelink/cuelink-go/pkg/wire"
)

// closeGrace bounds the close handshake write.
const closeGrace = time.Second

// WSConfig configures a WebSocket dialer.
type WSConfig struct {
	Config

	// Path is the control endpoint path (default: /control).
	Path string

	// HandshakeTimeout bounds the upgrade (default: 10s).
	HandshakeTimeout time.Duration
}

// WSDialer opens binary CBOR channels over WebSocket.
type WSDialer struct {
	config WSConfig
	dialer websocket.Dialer
}

// NewWSDialer creates a WebSocket dialer.
func NewWSDialer(config WSConfig) *WSDialer {
	config.Config = config.Config.withDefaults()
	if config.Path == "" {
		config.Path = DefaultControlPath
	}
	if config.HandshakeTimeout == 0 {
		config.HandshakeTimeout = DefaultHandshakeTimeout
	}

	return &WSDialer{
		config: config,
		dialer: websocket.Dialer{
			HandshakeTimeout: config.HandshakeTimeout,
		},
	}
}

// Name returns the transport name.
func (d *WSDialer) Name() string { return TransportWebSocket }

// URL returns the control endpoint URL for address.
func (d *WSDialer) URL(address string) string {
	u := url.URL{Scheme: "ws", Host: address, Path: d.config.Path}
	return u.String()
}

// Dial performs the WebSocket upgrade against address.
func (d *WSDialer) Dial(ctx context.Context, address string) (Channel, error) {
	conn, resp, err := d.dialer.DialContext(ctx, d.URL(address), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket handshake failed (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return NewWSChannel(conn, address, d.config.Config), nil
}

// WSChannel is a control channel over a WebSocket connection.
type WSChannel struct {
	conn   *websocket.Conn
	config Config
	log    msgLog
	id     string
	remote string

	closeCh   chan struct{}
	closeOnce sync.Once
	writeMu   sync.Mutex
	readMu    sync.Mutex
}

// NewWSChannel wraps an upgraded connection.
func NewWSChannel(conn *websocket.Conn, remote string, config Config) *WSChannel {
	config = config.withDefaults()
	conn.SetReadLimit(int64(config.MaxMessageSize))

	id := uuid.NewString()
	return &WSChannel{
		conn:    conn,
		config:  config,
		id:      id,
		remote:  remote,
		closeCh: make(chan struct{}),
		log: msgLog{
			logger:     config.ProtocolLogger,
			connID:     id,
			remoteAddr: remote,
			transport:  TransportWebSocket,
		},
	}
}

// ID returns the connection ID.
func (c *WSChannel) ID() string { return c.id }

// Transport returns "websocket".
func (c *WSChannel) Transport() string { return TransportWebSocket }

// RemoteAddr returns the host address.
func (c *WSChannel) RemoteAddr() string { return c.remote }

// Send encodes msg and writes it as one binary message.
func (c *WSChannel) Send(msg *wire.Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.isClosed() {
		return ErrChannelClosed
	}

	data, err := wire.EncodeMessage(msg)
	if err != nil {
		return err
	}
	if uint32(len(data)) > c.config.MaxMessageSize {
		return fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, len(data), c.config.MaxMessageSize)
	}

	_ = c.conn.SetWriteDeadline(deadline(c.config.WriteTimeout))
	if err := c.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		c.log.error("send", err)
		return fmt.Errorf("websocket write failed: %w", err)
	}

	c.log.message(log.DirectionOut, msg)
	return nil
}

// Receive reads the next binary message. Text frames are skipped.
func (c *WSChannel) Receive(timeout time.Duration) (*wire.Message, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	if c.isClosed() {
		return nil, ErrChannelClosed
	}

	_ = c.conn.SetReadDeadline(deadline(timeout))

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.isClosed() {
				return nil, ErrChannelClosed
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, ErrPeerClosed
			}
			c.log.error("receive", err)
			return nil, err
		}
		if msgType != websocket.BinaryMessage {
			continue
		}

		msg, err := wire.DecodeMessage(data)
		if err != nil {
			c.log.error("decode", err)
			return nil, err
		}

		c.log.message(log.DirectionIn, msg)
		return msg, nil
	}
}

// Close sends a normal-closure frame and closes the connection.
func (c *WSChannel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeCh)

		c.writeMu.Lock()
		_ = c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeGrace),
		)
		c.writeMu.Unlock()

		err = c.conn.Close()
	})
	return err
}

func (c *WSChannel) isClosed() bool {
	select {
	case <-c.closeCh:
		return true
	default:
		return false
	}
}
