// Package connection owns the single control channel to a presentation
// host.
//
// This package handles:
//   - The connection lifecycle state machine
//   - Bounded connect retries with exponential backoff and jitter
//   - Typed failure classification (input, network, timeout, connection, handler)
//   - Fire-and-forget command sending and ping/pong health checks
//   - Keep-alive monitoring of the active channel
//   - Handle-based event subscriptions
//
// # State Machine
//
//	Disconnected --Connect--> Connecting --success--> Connected
//	Connecting --failure/timeout--> Error
//	Connected --transport drop--> Disconnected
//	Error --Connect--> Connecting
//	any --Disconnect--> Disconnected
//
// Only one Connect may be in flight. A second call while Connecting fails
// with ErrConnectInProgress. Connecting while Connected replaces the
// existing channel, so at most one channel is ever open.
//
// # Retries
//
// Channel opening is retried up to Config.MaxRetries times inside the
// overall Config.ConnectTimeout. Delays between attempts follow:
//
//	actual_delay = base_delay + random(0, base_delay * jitter)
//
// The backoff resets after every successful connect.
package connection
