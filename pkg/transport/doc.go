// Package transport provides message-oriented control channels to a
// presentation-control host.
//
// Two transports are supported:
//   - WebSocket at ws://host:port/control carrying binary CBOR messages (preferred)
//   - Plain TCP with 4-byte big-endian length-prefixed CBOR frames (fallback)
//
// # Protocol Stack
//
//	┌──────────────────────────────────────────┐
//	│      CBOR Messages {1: event, 2: payload} │
//	├─────────────────────┬────────────────────┤
//	│  WebSocket (binary) │ Length-Prefix (4B) │
//	├─────────────────────┴────────────────────┤
//	│                  TCP                     │
//	└──────────────────────────────────────────┘
//
// FallbackDialer tries each transport in order and returns the first
// channel that opens. Probe is a best-effort reachability check used
// for diagnostics only.
//
// # Keep-Alive
//
// Channel liveness is monitored with ping/pong messages carrying a
// millisecond timestamp:
//   - Ping interval: 30 seconds
//   - Pong timeout: 5 seconds
//   - Max missed pongs: 3
package transport
