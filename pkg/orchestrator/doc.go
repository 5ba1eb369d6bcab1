// Package orchestrator ties the connection manager, discovery and the
// history/settings store into the status object consumers render.
//
// # Startup
//
// Start loads history and settings, subscribes to connection state
// changes, starts discovery and the liveness poll, and then evaluates
// auto-reconnect:
//
//	history non-empty && AutoReconnectEnabled && manager Disconnected && !attempted
//	  -> wait SettleDelay -> Connect(most recently used entry)
//
// The attempt is latched: it fires at most once per session, however often
// the manager re-enters Disconnected. A manual Connect or Disconnect also
// sets the latch. Reconnect is always available.
//
// # Timeouts
//
// The auto-reconnect attempt runs under its own timer of
// Settings.ConnectionTimeoutSeconds. When it expires the orchestrator
// forces Disconnect and reports ErrAutoReconnectTimeout, a TimeoutError
// with Source "caller", distinct from the manager's connect timeout.
//
// # Liveness
//
// Every LivenessInterval the held status is compared with IsConnected and
// corrected only between Disconnected and Connected. Connecting and Error
// are never overwritten by the poll.
package orchestrator
