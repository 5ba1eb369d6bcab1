package discovery

import (
	"slices"
	"sort"
	"time"
)

// source is one advertisement contributing to an instance.
type source struct {
	capability Capability
	port       int
}

type instance struct {
	ip       string
	host     string
	name     string
	lastSeen time.Time
	sources  map[string]source // keyed by DNS-SD instance name
}

// aggregator merges advertisements per resolved IP.
type aggregator struct {
	byIP   map[string]*instance
	byName map[string]string // DNS-SD instance name -> IP
}

func newAggregator() *aggregator {
	return &aggregator{
		byIP:   make(map[string]*instance),
		byName: make(map[string]string),
	}
}

// add merges adv into the instance of its resolved IP. It reports whether
// the visible set of instances, capabilities or ports changed.
func (a *aggregator) add(adv Advertisement, now time.Time) (bool, error) {
	ip, ok := SelectAddress(adv.AddrIPv4, adv.AddrIPv6)
	if !ok {
		return false, ErrNoAddress
	}
	addr := ip.String()
	src := source{capability: ParseCapability(adv.Token()), port: adv.Port}

	changed := false

	// An instance name that moved to another IP leaves its old host.
	if prev, found := a.byName[adv.Instance]; found && prev != addr {
		a.removeSource(prev, adv.Instance)
		changed = true
	}

	inst, found := a.byIP[addr]
	if !found {
		inst = &instance{ip: addr, sources: make(map[string]source)}
		a.byIP[addr] = inst
		changed = true
	}
	if old, had := inst.sources[adv.Instance]; !had || old != src {
		changed = true
	}

	inst.sources[adv.Instance] = src
	inst.lastSeen = now
	if adv.HostName != "" {
		inst.host = adv.HostName
	}
	if inst.name == "" {
		inst.name = adv.DisplayName()
	}
	a.byName[adv.Instance] = addr

	return changed, nil
}

// remove drops the advertisement named by adv.Instance. An instance with
// no remaining sources disappears.
func (a *aggregator) remove(adv Advertisement) bool {
	ip, found := a.byName[adv.Instance]
	if !found {
		return false
	}
	a.removeSource(ip, adv.Instance)
	return true
}

func (a *aggregator) removeSource(ip, name string) {
	delete(a.byName, name)
	inst, found := a.byIP[ip]
	if !found {
		return
	}
	delete(inst.sources, name)
	if len(inst.sources) == 0 {
		delete(a.byIP, ip)
	}
}

// instances returns every instance ordered by IP.
func (a *aggregator) instances() []DiscoveredInstance {
	out := make([]DiscoveredInstance, 0, len(a.byIP))
	for _, inst := range a.byIP {
		out = append(out, inst.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IP < out[j].IP })
	return out
}

func (a *aggregator) instance(ip string) (DiscoveredInstance, bool) {
	inst, found := a.byIP[ip]
	if !found {
		return DiscoveredInstance{}, false
	}
	return inst.snapshot(), true
}

func (i *instance) snapshot() DiscoveredInstance {
	// Sources are visited in name order so the port kept for a capability
	// advertised twice is stable.
	names := make([]string, 0, len(i.sources))
	for name := range i.sources {
		names = append(names, name)
	}
	sort.Strings(names)

	ports := make(map[Capability]int, len(i.sources))
	caps := make([]Capability, 0, len(i.sources))
	for _, name := range names {
		src := i.sources[name]
		if _, dup := ports[src.capability]; !dup {
			caps = append(caps, src.capability)
		}
		ports[src.capability] = src.port
	}
	slices.Sort(caps)

	return DiscoveredInstance{
		IP:                i.ip,
		Host:              i.host,
		Name:              i.name,
		Capabilities:      caps,
		PortsByCapability: ports,
		LastSeenAt:        i.lastSeen,
	}
}

// expose converts an instance to the record consumers connect to.
func expose(inst DiscoveredInstance, controlPort int) DiscoveredHost {
	caps := make([]string, len(inst.Capabilities))
	for i, c := range inst.Capabilities {
		caps[i] = string(c)
	}
	name := inst.Name
	if name == "" {
		name = inst.IP
	}
	return DiscoveredHost{
		IP:           inst.IP,
		Name:         name,
		Port:         controlPort,
		Capabilities: caps,
		LastSeenAt:   inst.LastSeenAt,
	}
}
