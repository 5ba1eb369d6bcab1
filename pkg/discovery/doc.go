// Package discovery finds presentation-control hosts on the local network
// using mDNS/DNS-SD.
//
// Hosts advertise one service instance of type _cuelink._tcp per
// capability they offer. The instance name starts with a short uppercase
// token naming the capability, followed by a display name:
//
//	REMOTE-StudioMac._cuelink._tcp.local.
//	STAGE-StudioMac._cuelink._tcp.local.
//	OUTPUT_STREAM-StudioMac._cuelink._tcp.local.
//
// A TXT entry svc=<token> overrides the token taken from the instance name.
//
// # Aggregation
//
// Advertisements that resolve to the same IP address belong to one
// physical host and collapse into a single DiscoveredInstance carrying the
// union of their capabilities and advertised ports. Routable IPv4
// addresses are preferred; link-local 169.254.0.0/16 addresses are never
// used, and IPv6 is only used when no IPv4 address qualifies.
//
// # Exposure
//
// Consumers connect to the port in DiscoveredHost, which is always
// Config.ControlPort. Advertised ports are informational only: the control
// service listens on the configured control port regardless of which
// capability service advertised the host.
package discovery
