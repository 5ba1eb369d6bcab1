package transport

import (
	"context"
	"sync"
	"time"
)

// Keep-alive constants.
const (
	// DefaultPingInterval is the default interval between pings.
	DefaultPingInterval = 30 * time.Second

	// DefaultPongTimeout is the default timeout waiting for a pong response.
	DefaultPongTimeout = 5 * time.Second

	// DefaultMaxMissedPongs is the default number of missed pongs before the
	// channel is considered dropped.
	DefaultMaxMissedPongs = 3
)

// KeepAliveConfig configures keep-alive behavior.
type KeepAliveConfig struct {
	// PingInterval is the interval between pings.
	PingInterval time.Duration `yaml:"ping_interval"`

	// PongTimeout is the timeout waiting for a pong response.
	PongTimeout time.Duration `yaml:"pong_timeout"`

	// MaxMissedPongs is the number of missed pongs before timeout.
	MaxMissedPongs int `yaml:"max_missed_pongs"`

	// Disabled turns the keep-alive loop off.
	Disabled bool `yaml:"disabled"`
}

// DefaultKeepAliveConfig returns the default keep-alive configuration.
func DefaultKeepAliveConfig() KeepAliveConfig {
	return KeepAliveConfig{
		PingInterval:   DefaultPingInterval,
		PongTimeout:    DefaultPongTimeout,
		MaxMissedPongs: DefaultMaxMissedPongs,
	}
}

// DetectionDelay is the longest a dead channel can go unnoticed.
func (c KeepAliveConfig) DetectionDelay() time.Duration {
	return c.PingInterval*time.Duration(c.MaxMissedPongs) + c.PongTimeout
}

// KeepAlive pings the host at a fixed interval and reports a timeout
// after too many unanswered pings.
type KeepAlive struct {
	config KeepAliveConfig
	now    func() time.Time

	sendPing       func(timestamp int64) error
	onTimeout      func()
	onPongReceived func(timestamp int64, latency time.Duration)

	mu           sync.Mutex
	running      bool
	stopCh       chan struct{}
	pongCh       chan int64
	missedPongs  int
	pingsSent    int
	lastPingTime time.Time
	lastPongTime time.Time
	pendingTS    int64
	hasPending   bool
}

// NewKeepAlive creates a keep-alive manager. sendPing writes a ping
// carrying the given millisecond timestamp.
func NewKeepAlive(config KeepAliveConfig, sendPing func(timestamp int64) error, onTimeout func()) *KeepAlive {
	if config.PingInterval == 0 {
		config.PingInterval = DefaultPingInterval
	}
	if config.PongTimeout == 0 {
		config.PongTimeout = DefaultPongTimeout
	}
	if config.MaxMissedPongs == 0 {
		config.MaxMissedPongs = DefaultMaxMissedPongs
	}

	return &KeepAlive{
		config:    config,
		now:       time.Now,
		sendPing:  sendPing,
		onTimeout: onTimeout,
		stopCh:    make(chan struct{}),
		pongCh:    make(chan int64, 1),
	}
}

// SetPongReceivedCallback sets a callback for matched pongs.
func (ka *KeepAlive) SetPongReceivedCallback(cb func(timestamp int64, latency time.Duration)) {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	ka.onPongReceived = cb
}

// Start begins the monitoring loop.
func (ka *KeepAlive) Start(ctx context.Context) {
	ka.mu.Lock()
	if ka.running {
		ka.mu.Unlock()
		return
	}
	ka.running = true
	ka.stopCh = make(chan struct{})
	stopCh := ka.stopCh
	ka.mu.Unlock()

	go ka.loop(ctx, stopCh)
}

// Stop stops the monitoring loop.
func (ka *KeepAlive) Stop() {
	ka.mu.Lock()
	defer ka.mu.Unlock()

	if !ka.running {
		return
	}
	ka.running = false
	close(ka.stopCh)
}

// PongReceived feeds a pong's timestamp into the loop.
func (ka *KeepAlive) PongReceived(timestamp int64) {
	select {
	case ka.pongCh <- timestamp:
	default:
	}
}

// IsRunning reports whether monitoring is active.
func (ka *KeepAlive) IsRunning() bool {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	return ka.running
}

// KeepAliveStats contains keep-alive statistics.
type KeepAliveStats struct {
	LastPingTime time.Time
	LastPongTime time.Time
	MissedPongs  int
	PingsSent    int
}

// Stats returns current keep-alive statistics.
func (ka *KeepAlive) Stats() KeepAliveStats {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	return KeepAliveStats{
		LastPingTime: ka.lastPingTime,
		LastPongTime: ka.lastPongTime,
		MissedPongs:  ka.missedPongs,
		PingsSent:    ka.pingsSent,
	}
}

func (ka *KeepAlive) loop(ctx context.Context, stopCh chan struct{}) {
	ticker := time.NewTicker(ka.config.PingInterval)
	defer ticker.Stop()

	ka.ping()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			if ka.handleTick() {
				return
			}
		case ts := <-ka.pongCh:
			ka.handlePong(ts)
		}
	}
}

func (ka *KeepAlive) ping() {
	now := ka.now()
	ts := now.UnixMilli()

	ka.mu.Lock()
	ka.lastPingTime = now
	ka.pendingTS = ts
	ka.hasPending = true
	ka.pingsSent++
	ka.mu.Unlock()

	// A failed send is left to the pong timeout.
	_ = ka.sendPing(ts)
}

// handleTick returns true when the channel is considered dropped.
func (ka *KeepAlive) handleTick() bool {
	ka.mu.Lock()
	if ka.hasPending && ka.now().Sub(ka.lastPingTime) >= ka.config.PongTimeout {
		ka.missedPongs++
		ka.hasPending = false

		if ka.missedPongs >= ka.config.MaxMissedPongs {
			ka.running = false
			onTimeout := ka.onTimeout
			ka.mu.Unlock()
			if onTimeout != nil {
				onTimeout()
			}
			return true
		}
	}
	ka.mu.Unlock()

	ka.ping()
	return false
}

func (ka *KeepAlive) handlePong(ts int64) {
	ka.mu.Lock()
	defer ka.mu.Unlock()

	now := ka.now()
	ka.lastPongTime = now

	// Late pongs for an earlier ping are ignored.
	if !ka.hasPending || ts != ka.pendingTS {
		return
	}

	ka.hasPending = false
	ka.missedPongs = 0
	if ka.onPongReceived != nil {
		go ka.onPongReceived(ts, now.Sub(ka.lastPingTime))
	}
}
