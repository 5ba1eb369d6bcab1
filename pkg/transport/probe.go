package transport

import (
	"context"
	"fmt"
	"net"
	"time"
)

// DefaultProbeTimeout bounds a reachability probe.
const DefaultProbeTimeout = 5 * time.Second

// Probe opens and immediately closes a TCP connection to address and
// returns the time it took. It says nothing about whether a control
// channel will open, only whether the host accepts connections.
func Probe(ctx context.Context, address string, timeout time.Duration) (time.Duration, error) {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return 0, fmt.Errorf("probe %s: %w", address, err)
	}
	rtt := time.Since(start)
	_ = conn.Close()
	return rtt, nil
}
