package testutil

import (
	"context"
	"sync"

	"github.com/cuelink/cuelink-go/pkg/transport"
)

// FakeDialer is a scripted transport.Dialer.
type FakeDialer struct {
	// AutoPong is copied onto every channel it opens.
	AutoPong bool

	// IgnoreCancel makes held dials wait for Release even after their
	// context is cancelled.
	IgnoreCancel bool

	mu          sync.Mutex
	script      []error
	failWith    error
	hold        chan struct{}
	calls       []string
	channels    []*FakeChannel
	dialed      chan string
	inFlight    int
	maxInFlight int
}

// NewFakeDialer creates a dialer that succeeds by default.
func NewFakeDialer() *FakeDialer {
	return &FakeDialer{dialed: make(chan string, 64)}
}

// FailNext queues errors returned by the next dials, in order.
func (d *FakeDialer) FailNext(errs ...error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.script = append(d.script, errs...)
}

// FailAlways makes every dial fail with err. Pass nil to clear.
func (d *FakeDialer) FailAlways(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failWith = err
}

// Hold makes dials block until Release or context cancellation.
func (d *FakeDialer) Hold() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hold = make(chan struct{})
}

// Release unblocks held dials.
func (d *FakeDialer) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.hold != nil {
		close(d.hold)
		d.hold = nil
	}
}

// Dial opens a FakeChannel unless scripted to fail.
func (d *FakeDialer) Dial(ctx context.Context, address string) (transport.Channel, error) {
	d.mu.Lock()
	d.calls = append(d.calls, address)
	hold := d.hold
	ignoreCancel := d.IgnoreCancel
	d.inFlight++
	d.maxInFlight = max(d.maxInFlight, d.inFlight)
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.inFlight--
		d.mu.Unlock()
	}()

	select {
	case d.dialed <- address:
	default:
	}

	if hold != nil {
		if ignoreCancel {
			<-hold
		} else {
			select {
			case <-hold:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.script) > 0 {
		err := d.script[0]
		d.script = d.script[1:]
		if err != nil {
			return nil, err
		}
	} else if d.failWith != nil {
		return nil, d.failWith
	}

	ch := NewFakeChannel(address)
	ch.AutoPong = d.AutoPong
	d.channels = append(d.channels, ch)
	return ch, nil
}

// Dialed receives the address of every dial as it starts.
func (d *FakeDialer) Dialed() <-chan string {
	return d.dialed
}

// Calls returns every address dialed so far.
func (d *FakeDialer) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

// MaxInFlight returns the largest number of dials that were running at
// the same time.
func (d *FakeDialer) MaxInFlight() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.maxInFlight
}

// Channels returns every channel opened so far.
func (d *FakeDialer) Channels() []*FakeChannel {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*FakeChannel(nil), d.channels...)
}

// OpenChannels returns the channels that have not been closed.
func (d *FakeDialer) OpenChannels() []*FakeChannel {
	var open []*FakeChannel
	for _, ch := range d.Channels() {
		if !ch.IsClosed() {
			open = append(open, ch)
		}
	}
	return open
}

// LastChannel returns the most recently opened channel, or nil.
func (d *FakeDialer) LastChannel() *FakeChannel {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.channels) == 0 {
		return nil
	}
	return d.channels[len(d.channels)-1]
}

var _ transport.Dialer = (*FakeDialer)(nil)
