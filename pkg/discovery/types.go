package discovery

import (
	"errors"
	"net"
	"slices"
	"strings"
	"time"
)

// Service constants.
const (
	// ServiceType is the default DNS-SD service type.
	ServiceType = "_cuelink._tcp"

	// Domain is the mDNS domain.
	Domain = "local."

	// DefaultControlPort is the port every discovered host is connected on.
	DefaultControlPort = 5505

	// BrowseTimeout is the default duration of a one-shot browse.
	BrowseTimeout = 5 * time.Second
)

// TXTKeyService overrides the capability token of the instance name.
const TXTKeyService = "svc"

// Discovery errors.
var (
	ErrUnavailable   = errors.New("multicast networking unavailable")
	ErrBrowseFailed  = errors.New("mDNS browse failed")
	ErrNoAddress     = errors.New("advertisement has no usable address")
	ErrNotSubscribed = errors.New("subscription not found")
)

// Capability is a normalized service tag.
type Capability string

// Known capabilities.
const (
	CapabilityAPI     Capability = "api"
	CapabilityRemote  Capability = "remote"
	CapabilityStage   Capability = "stage"
	CapabilityControl Capability = "control"
	CapabilityOutput  Capability = "output"
)

var capabilityAliases = map[string]Capability{
	"api":           CapabilityAPI,
	"remote":        CapabilityRemote,
	"stage":         CapabilityStage,
	"control":       CapabilityControl,
	"controller":    CapabilityControl,
	"output":        CapabilityOutput,
	"output_stream": CapabilityOutput,
}

// Substring matching order. More specific tags come first.
var capabilityFallback = []Capability{
	CapabilityControl,
	CapabilityOutput,
	CapabilityRemote,
	CapabilityStage,
	CapabilityAPI,
}

// ParseCapability maps a service token to a capability. Exact matches and
// aliases win, then the first known tag contained in the token; anything
// else is returned lowercased as-is.
func ParseCapability(token string) Capability {
	t := strings.ToLower(strings.TrimSpace(token))
	if c, ok := capabilityAliases[t]; ok {
		return c
	}
	for _, c := range capabilityFallback {
		if strings.Contains(t, string(c)) {
			return c
		}
	}
	return Capability(t)
}

// Known reports whether c is one of the defined capabilities.
func (c Capability) Known() bool {
	switch c {
	case CapabilityAPI, CapabilityRemote, CapabilityStage, CapabilityControl, CapabilityOutput:
		return true
	default:
		return false
	}
}

// Advertisement is one resolved DNS-SD service instance.
type Advertisement struct {
	Instance string
	HostName string
	Port     int
	Text     []string
	AddrIPv4 []net.IP
	AddrIPv6 []net.IP
}

// Token returns the capability token: the svc TXT entry when present,
// otherwise the first label of the instance name.
func (a Advertisement) Token() string {
	for _, kv := range a.Text {
		key, value, ok := strings.Cut(kv, "=")
		if ok && strings.EqualFold(key, TXTKeyService) && value != "" {
			return value
		}
	}
	token, _ := splitInstance(a.Instance)
	return token
}

// DisplayName returns the human-readable part of the advertisement: the
// instance name after the token, else the host name without its domain.
func (a Advertisement) DisplayName() string {
	if _, rest := splitInstance(a.Instance); rest != "" {
		return rest
	}
	host := strings.TrimSuffix(a.HostName, ".")
	host = strings.TrimSuffix(host, ".local")
	return host
}

func splitInstance(instance string) (token, rest string) {
	instance = strings.TrimSpace(instance)
	i := strings.IndexAny(instance, "- .")
	if i < 0 {
		return instance, ""
	}
	return instance[:i], strings.TrimSpace(instance[i+1:])
}

// SelectAddress picks the address a host is reached on: the first routable
// IPv4 address, else the first routable IPv6 address. Loopback, link-local
// and unspecified addresses are skipped.
func SelectAddress(v4, v6 []net.IP) (net.IP, bool) {
	for _, ip := range v4 {
		ip4 := ip.To4()
		if ip4 == nil || ip4.IsUnspecified() || ip4.IsLoopback() || ip4.IsLinkLocalUnicast() {
			continue
		}
		return ip4, true
	}
	for _, ip := range v6 {
		if ip == nil || ip.To4() != nil || ip.IsUnspecified() || ip.IsLoopback() || ip.IsLinkLocalUnicast() {
			continue
		}
		return ip, true
	}
	return nil, false
}

// DiscoveredInstance is one physical host, merged from every advertisement
// that resolved to its IP.
type DiscoveredInstance struct {
	IP                string             `json:"ip"`
	Host              string             `json:"host"`
	Name              string             `json:"name"`
	Capabilities      []Capability       `json:"capabilities"`
	PortsByCapability map[Capability]int `json:"ports_by_capability"`
	LastSeenAt        time.Time          `json:"last_seen_at"`
}

// Has reports whether the instance advertises c.
func (d DiscoveredInstance) Has(c Capability) bool {
	return slices.Contains(d.Capabilities, c)
}

// CapabilityPorts returns the advertised ports keyed by capability name.
func (d DiscoveredInstance) CapabilityPorts() map[string]int {
	if len(d.PortsByCapability) == 0 {
		return nil
	}
	out := make(map[string]int, len(d.PortsByCapability))
	for c, p := range d.PortsByCapability {
		out[string(c)] = p
	}
	return out
}

// DiscoveredHost is what consumers connect to.
type DiscoveredHost struct {
	IP           string    `json:"ip"`
	Name         string    `json:"name"`
	Port         int       `json:"port"`
	Capabilities []string  `json:"capabilities"`
	LastSeenAt   time.Time `json:"last_seen_at"`
}
