package transport

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestKeepAliveConfig(t *testing.T) {
	config := DefaultKeepAliveConfig()

	if config.PingInterval != 30*time.Second {
		t.Errorf("PingInterval = %v, want 30s", config.PingInterval)
	}
	if config.MaxMissedPongs != 3 {
		t.Errorf("MaxMissedPongs = %d, want 3", config.MaxMissedPongs)
	}
	if got, want := config.DetectionDelay(), 95*time.Second; got != want {
		t.Errorf("DetectionDelay = %v, want %v", got, want)
	}
}

func TestKeepAliveTimeout(t *testing.T) {
	var timeouts atomic.Int32

	ka := NewKeepAlive(KeepAliveConfig{
		PingInterval:   20 * time.Millisecond,
		PongTimeout:    10 * time.Millisecond,
		MaxMissedPongs: 2,
	},
		func(int64) error { return nil },
		func() { timeouts.Add(1) },
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ka.Start(ctx)

	deadline := time.Now().Add(time.Second)
	for timeouts.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if timeouts.Load() != 1 {
		t.Fatalf("expected exactly one timeout, got %d", timeouts.Load())
	}
	if ka.IsRunning() {
		t.Error("keep-alive should stop after timing out")
	}

	time.Sleep(60 * time.Millisecond)
	if timeouts.Load() != 1 {
		t.Errorf("timeout fired again: %d", timeouts.Load())
	}
}

func TestKeepAlivePongKeepsChannelAlive(t *testing.T) {
	var timeouts atomic.Int32
	var ka *KeepAlive

	ka = NewKeepAlive(KeepAliveConfig{
		PingInterval:   20 * time.Millisecond,
		PongTimeout:    10 * time.Millisecond,
		MaxMissedPongs: 2,
	},
		func(ts int64) error {
			go ka.PongReceived(ts)
			return nil
		},
		func() { timeouts.Add(1) },
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ka.Start(ctx)
	time.Sleep(150 * time.Millisecond)
	ka.Stop()

	if timeouts.Load() != 0 {
		t.Errorf("expected no timeout while pongs arrive, got %d", timeouts.Load())
	}
	stats := ka.Stats()
	if stats.PingsSent < 3 {
		t.Errorf("expected at least 3 pings, got %d", stats.PingsSent)
	}
	if stats.MissedPongs != 0 {
		t.Errorf("MissedPongs = %d, want 0", stats.MissedPongs)
	}
}

func TestKeepAliveIgnoresStalePong(t *testing.T) {
	var latencies atomic.Int32

	ka := NewKeepAlive(KeepAliveConfig{PingInterval: time.Hour}, func(int64) error { return nil }, nil)
	ka.SetPongReceivedCallback(func(int64, time.Duration) { latencies.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ka.Start(ctx)
	defer ka.Stop()

	deadline := time.Now().Add(time.Second)
	for ka.Stats().PingsSent == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	ka.PongReceived(1)
	time.Sleep(20 * time.Millisecond)
	if latencies.Load() != 0 {
		t.Error("pong with unknown timestamp must be ignored")
	}

	ka.PongReceived(ka.Stats().LastPingTime.UnixMilli())
	deadline = time.Now().Add(time.Second)
	for latencies.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if latencies.Load() != 1 {
		t.Errorf("expected one matched pong, got %d", latencies.Load())
	}
}

func TestKeepAliveStartStop(t *testing.T) {
	ka := NewKeepAlive(KeepAliveConfig{PingInterval: time.Hour}, func(int64) error { return nil }, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ka.Start(ctx)
	ka.Start(ctx)
	if !ka.IsRunning() {
		t.Fatal("expected running after Start")
	}
	ka.Stop()
	ka.Stop()
	if ka.IsRunning() {
		t.Error("expected stopped after Stop")
	}
}
