package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// FallbackDialer tries each dialer in order and returns the first channel
// that opens.
type FallbackDialer struct {
	dialers []Dialer
	logger  *slog.Logger
}

// NewFallbackDialer creates a dialer over the given transports, in
// preference order.
func NewFallbackDialer(logger *slog.Logger, dialers ...Dialer) *FallbackDialer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &FallbackDialer{
		dialers: dialers,
		logger:  logger,
	}
}

// NewDefaultDialer returns WebSocket with TCP fallback.
func NewDefaultDialer(config Config, logger *slog.Logger) *FallbackDialer {
	return NewFallbackDialer(logger,
		NewWSDialer(WSConfig{Config: config}),
		NewTCPDialer(config),
	)
}

// Dial returns the first channel that opens. Context cancellation stops
// the sequence immediately.
func (d *FallbackDialer) Dial(ctx context.Context, address string) (Channel, error) {
	if len(d.dialers) == 0 {
		return nil, ErrNoTransports
	}

	var errs []error
	for _, dialer := range d.dialers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		ch, err := dialer.Dial(ctx, address)
		if err == nil {
			if len(errs) > 0 {
				d.logger.Info("using fallback transport", "addr", address, "transport", ch.Transport())
			}
			return ch, nil
		}

		d.logger.Debug("transport dial failed", "addr", address, "transport", dialerName(dialer), "err", err)
		errs = append(errs, fmt.Errorf("%s: %w", dialerName(dialer), err))
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("all transports failed: %w", errors.Join(errs...))
}

func dialerName(d Dialer) string {
	if n, ok := d.(interface{ Name() string }); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", d)
}
