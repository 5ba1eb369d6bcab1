package connection

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"

	"github.com/gorilla/websocket"

	"github.com/cuelink/cuelink-go/pkg/transport"
)

// Connection errors.
var (
	ErrInvalidHost        = errors.New("host must not be empty")
	ErrInvalidPort        = errors.New("port must be between 1 and 65535")
	ErrNotConnected       = errors.New("not connected")
	ErrConnectInProgress  = errors.New("connect already in progress")
	ErrMaxRetriesExceeded = errors.New("max connect retries exceeded")
	ErrConnectTimeout     = errors.New("connect timeout")
	ErrConnectAborted     = errors.New("connect aborted")
	ErrKeepAliveTimeout   = errors.New("keep-alive timeout")
	ErrManagerClosed      = errors.New("connection manager closed")
	ErrUnknownCommand     = errors.New("unknown command")
)

// Kind classifies a failure.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindInput
	KindNetwork
	KindTimeout
	KindConnection
	KindHandler
)

// String returns the kind name used in status and API responses.
func (k Kind) String() string {
	switch k {
	case KindInput:
		return "InputError"
	case KindNetwork:
		return "NetworkError"
	case KindTimeout:
		return "TimeoutError"
	case KindConnection:
		return "ConnectionError"
	case KindHandler:
		return "HandlerError"
	default:
		return "Unknown"
	}
}

// Error is a classified failure.
type Error struct {
	Kind Kind
	Op   string
	Err  error

	// Source names who raised a timeout when it was not the manager
	// itself, e.g. "caller".
	Source string
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Classify wraps err in an *Error for op. Errors that are already
// classified are returned unchanged.
func Classify(op string, err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return newError(KindOf(err), op, err)
}

// KindOf returns the failure kind of err.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	switch {
	case errors.Is(err, ErrInvalidHost),
		errors.Is(err, ErrInvalidPort),
		errors.Is(err, ErrUnknownCommand):
		return KindInput

	case errors.Is(err, ErrConnectTimeout),
		errors.Is(err, ErrKeepAliveTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return KindTimeout

	case errors.Is(err, ErrNotConnected),
		errors.Is(err, ErrConnectInProgress),
		errors.Is(err, ErrMaxRetriesExceeded),
		errors.Is(err, ErrConnectAborted),
		errors.Is(err, ErrManagerClosed),
		errors.Is(err, transport.ErrPeerClosed),
		errors.Is(err, transport.ErrChannelClosed),
		errors.Is(err, websocket.ErrBadHandshake),
		errors.Is(err, context.Canceled):
		return KindConnection
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}

	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return KindConnection
	}

	var opErr *net.OpError
	var dnsErr *net.DNSError
	var addrErr *net.AddrError
	if errors.As(err, &opErr) || errors.As(err, &dnsErr) || errors.As(err, &addrErr) {
		return KindNetwork
	}

	return KindUnknown
}

// IsKind reports whether err classifies as kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
