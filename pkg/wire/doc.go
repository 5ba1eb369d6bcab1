// Package wire defines the CBOR wire format of the cuelink control channel.
//
// Every frame on the control channel carries exactly one Message:
//
//	{
//	  1: event    // string: event name (NEXT, PREVIOUS, ping, pong, ...)
//	  2: payload  // optional: event-specific value
//	}
//
// # Commands
//
// Remote-control commands are bare events with no payload and no
// acknowledgement:
//   - NEXT, PREVIOUS
//   - CLEAR_OUTPUT, CLEAR_ALL, CLEAR_SLIDE
//
// # Liveness
//
// A ping carries the sender's wall clock in milliseconds since the Unix
// epoch. The peer answers with a pong echoing the same timestamp, which lets
// the sender match replies to requests without a sequence counter.
package wire
