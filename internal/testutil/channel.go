package testutil

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cuelink/cuelink-go/pkg/transport"
	"github.com/cuelink/cuelink-go/pkg/wire"
)

// FakeChannel is an in-memory transport.Channel. Messages the host sends
// are injected with Deliver; messages the client sends are recorded.
type FakeChannel struct {
	id     string
	remote string

	// AutoPong answers every ping with a pong carrying the same timestamp.
	AutoPong bool

	mu      sync.Mutex
	sent    []*wire.Message
	sendErr error

	inbox     chan *wire.Message
	closed    chan struct{}
	dropped   chan struct{}
	closeOnce sync.Once
	dropOnce  sync.Once
}

// NewFakeChannel creates an open channel to remote.
func NewFakeChannel(remote string) *FakeChannel {
	return &FakeChannel{
		id:      uuid.NewString(),
		remote:  remote,
		inbox:   make(chan *wire.Message, 64),
		closed:  make(chan struct{}),
		dropped: make(chan struct{}),
	}
}

func (c *FakeChannel) ID() string         { return c.id }
func (c *FakeChannel) Transport() string  { return "fake" }
func (c *FakeChannel) RemoteAddr() string { return c.remote }

// Send records msg.
func (c *FakeChannel) Send(msg *wire.Message) error {
	if c.IsClosed() {
		return transport.ErrChannelClosed
	}

	c.mu.Lock()
	if c.sendErr != nil {
		err := c.sendErr
		c.mu.Unlock()
		return err
	}
	c.sent = append(c.sent, msg)
	autoPong := c.AutoPong
	c.mu.Unlock()

	if autoPong && msg.IsPing() {
		if ts, err := msg.Timestamp(); err == nil {
			c.Deliver(wire.NewPong(ts))
		}
	}
	return nil
}

// Receive returns the next delivered message.
func (c *FakeChannel) Receive(timeout time.Duration) (*wire.Message, error) {
	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	select {
	case msg := <-c.inbox:
		return msg, nil
	case <-c.closed:
		return nil, transport.ErrChannelClosed
	case <-c.dropped:
		return nil, transport.ErrPeerClosed
	case <-timer:
		return nil, errTimeout{}
	}
}

// Close closes the channel.
func (c *FakeChannel) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// Deliver injects a message from the host.
func (c *FakeChannel) Deliver(msg *wire.Message) {
	select {
	case c.inbox <- msg:
	case <-c.closed:
	}
}

// Drop simulates the host closing the channel.
func (c *FakeChannel) Drop() {
	c.dropOnce.Do(func() { close(c.dropped) })
}

// SetSendError makes every following Send fail with err.
func (c *FakeChannel) SetSendError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendErr = err
}

// SetAutoPong toggles automatic pong replies.
func (c *FakeChannel) SetAutoPong(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.AutoPong = on
}

// Sent returns a copy of the recorded messages.
func (c *FakeChannel) Sent() []*wire.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*wire.Message(nil), c.sent...)
}

// SentEvents returns the event names of recorded messages, skipping
// liveness traffic.
func (c *FakeChannel) SentEvents() []string {
	var events []string
	for _, msg := range c.Sent() {
		if msg.IsPing() || msg.IsPong() {
			continue
		}
		events = append(events, msg.Event)
	}
	return events
}

// IsClosed reports whether Close was called.
func (c *FakeChannel) IsClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

type errTimeout struct{}

func (errTimeout) Error() string   { return "fake receive timeout" }
func (errTimeout) Timeout() bool   { return true }
func (errTimeout) Temporary() bool { return true }

var _ transport.Channel = (*FakeChannel)(nil)
