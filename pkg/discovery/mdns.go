package discovery

import (
	"context"
	"fmt"
	"net"

	"github.com/enbility/zeroconf/v3"
)

// BrowseFunc browses service.domain until ctx is cancelled, sending
// resolved advertisements on found and goodbyes/expiries on lost. It
// returns a non-nil error only when browsing failed.
type BrowseFunc func(ctx context.Context, service, domain string, found, lost chan<- Advertisement) error

// ZeroconfBrowser returns a BrowseFunc backed by zeroconf. An empty iface
// browses on all multicast interfaces.
func ZeroconfBrowser(iface string) BrowseFunc {
	return func(ctx context.Context, service, domain string, found, lost chan<- Advertisement) error {
		opts, err := clientOptions(iface)
		if err != nil {
			return err
		}

		entries := make(chan *zeroconf.ServiceEntry)
		removed := make(chan *zeroconf.ServiceEntry)
		errc := make(chan error, 1)

		go func() {
			errc <- zeroconf.Browse(ctx, service, domain, entries, removed, opts...)
		}()

		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					entries = nil
					continue
				}
				if !forward(ctx, found, advertisementFrom(entry)) {
					return nil
				}

			case entry, ok := <-removed:
				if !ok {
					removed = nil
					continue
				}
				if !forward(ctx, lost, advertisementFrom(entry)) {
					return nil
				}

			case err := <-errc:
				if err != nil && ctx.Err() == nil {
					return fmt.Errorf("%w: %w", ErrBrowseFailed, err)
				}
				// Browse may return while its listeners keep running.
				errc = nil

			case <-ctx.Done():
				return nil
			}
		}
	}
}

func forward(ctx context.Context, out chan<- Advertisement, adv Advertisement) bool {
	select {
	case out <- adv:
		return true
	case <-ctx.Done():
		return false
	}
}

// clientOptions returns zeroconf client options for the configured interface.
func clientOptions(iface string) ([]zeroconf.ClientOption, error) {
	if iface == "" {
		return nil, nil
	}
	ifi, err := net.InterfaceByName(iface)
	if err != nil {
		return nil, fmt.Errorf("interface %q: %w", iface, err)
	}
	return []zeroconf.ClientOption{zeroconf.SelectIfaces([]net.Interface{*ifi})}, nil
}

func advertisementFrom(entry *zeroconf.ServiceEntry) Advertisement {
	return Advertisement{
		Instance: entry.Instance,
		HostName: entry.HostName,
		Port:     entry.Port,
		Text:     entry.Text,
		AddrIPv4: entry.AddrIPv4,
		AddrIPv6: entry.AddrIPv6,
	}
}

// MulticastAvailable reports whether an up, multicast-capable interface
// exists. A non-empty iface restricts the check to that interface.
func MulticastAvailable(iface string) bool {
	ifaces, err := net.Interfaces()
	if err != nil {
		return false
	}
	for _, ifi := range ifaces {
		if iface != "" && ifi.Name != iface {
			continue
		}
		if ifi.Flags&net.FlagUp != 0 && ifi.Flags&net.FlagMulticast != 0 {
			return true
		}
	}
	return false
}
