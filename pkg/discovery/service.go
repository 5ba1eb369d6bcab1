package discovery

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/cuelink/cuelink-go/pkg/subscription"
)

// Config configures a Service.
type Config struct {
	// ServiceType to browse (default: _cuelink._tcp).
	ServiceType string `yaml:"service_type"`

	// Domain to browse (default: local.).
	Domain string `yaml:"domain"`

	// ControlPort is the port exposed for every discovered host. Hosts
	// serve the control channel on this port whatever they advertise.
	ControlPort int `yaml:"control_port"`

	// Interface restricts browsing to one network interface.
	Interface string `yaml:"interface"`

	// Browse performs the mDNS browse (default: ZeroconfBrowser).
	Browse BrowseFunc `yaml:"-"`

	// Available reports whether multicast networking can be used
	// (default: MulticastAvailable).
	Available func() bool `yaml:"-"`

	// Logger receives operational logs. Nil discards them.
	Logger *slog.Logger `yaml:"-"`
}

// DefaultConfig returns the default discovery configuration.
func DefaultConfig() Config {
	return Config{
		ServiceType: ServiceType,
		Domain:      Domain,
		ControlPort: DefaultControlPort,
	}
}

type topic uint8

const (
	topicUpdate topic = iota + 1
	topicError
)

// Subscription identifies an OnUpdate or OnError registration.
type Subscription = subscription.Handle[topic]

// Service runs discovery sessions and keeps the aggregated host list.
type Service struct {
	config Config
	logger *slog.Logger

	updates *subscription.Manager[topic, []DiscoveredHost]
	errs    *subscription.Manager[topic, error]

	mu      sync.Mutex
	running bool
	gen     uint64
	cancel  context.CancelFunc
	agg     *aggregator
	wg      sync.WaitGroup
}

// NewService creates a stopped discovery service.
func NewService(config Config) *Service {
	if config.ServiceType == "" {
		config.ServiceType = ServiceType
	}
	if config.Domain == "" {
		config.Domain = Domain
	}
	if config.ControlPort <= 0 {
		config.ControlPort = DefaultControlPort
	}
	if config.Browse == nil {
		config.Browse = ZeroconfBrowser(config.Interface)
	}
	if config.Available == nil {
		iface := config.Interface
		config.Available = func() bool { return MulticastAvailable(iface) }
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	s := &Service{
		config: config,
		logger: config.Logger,
		agg:    newAggregator(),
	}
	onPanic := func(t topic, err *subscription.PanicError) {
		s.logger.Error("discovery subscriber panicked", "err", err)
	}
	s.updates = subscription.NewManager[topic, []DiscoveredHost](subscription.Config[topic]{OnPanic: onPanic})
	s.errs = subscription.NewManager[topic, error](subscription.Config[topic]{OnPanic: onPanic})
	return s
}

// ControlPort returns the port exposed for every discovered host.
func (s *Service) ControlPort() int {
	return s.config.ControlPort
}

// IsAvailable reports whether multicast networking can be used.
func (s *Service) IsAvailable() bool {
	return s.config.Available()
}

// IsDiscovering reports whether a session is running.
func (s *Service) IsDiscovering() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Start begins a discovery session. It is a no-op while a session runs or
// when multicast networking is unavailable. The session ends on Stop, when
// ctx is cancelled, or when browsing fails.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	if !s.config.Available() {
		s.logger.Info("mDNS discovery unavailable", "interface", s.config.Interface)
		return nil
	}

	sessCtx, cancel := context.WithCancel(ctx)
	s.gen++
	s.running = true
	s.cancel = cancel
	s.agg = newAggregator()

	found := make(chan Advertisement, 16)
	lost := make(chan Advertisement, 16)
	done := make(chan error, 1)

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		done <- s.config.Browse(sessCtx, s.config.ServiceType, s.config.Domain, found, lost)
	}()
	go s.session(sessCtx, s.gen, found, lost, done)

	s.logger.Info("discovery started", "service", s.config.ServiceType, "control_port", s.config.ControlPort)
	return nil
}

func (s *Service) session(ctx context.Context, gen uint64, found, lost <-chan Advertisement, done <-chan error) {
	defer s.wg.Done()

	for {
		select {
		case adv := <-found:
			s.handleFound(gen, adv)
		case adv := <-lost:
			s.handleLost(gen, adv)
		case err := <-done:
			if ctx.Err() != nil {
				err = nil
			}
			s.end(gen, err)
			return
		case <-ctx.Done():
			s.end(gen, nil)
			return
		}
	}
}

func (s *Service) handleFound(gen uint64, adv Advertisement) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	changed, err := s.agg.add(adv, time.Now())
	hosts := s.hostsLocked()
	s.mu.Unlock()

	if err != nil {
		s.logger.Debug("ignoring advertisement", "instance", adv.Instance, "err", err)
		return
	}
	if changed {
		s.logger.Debug("host discovered", "instance", adv.Instance, "token", adv.Token())
		s.updates.Publish(topicUpdate, hosts)
	}
}

func (s *Service) handleLost(gen uint64, adv Advertisement) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	removed := s.agg.remove(adv)
	hosts := s.hostsLocked()
	s.mu.Unlock()

	if removed {
		s.logger.Debug("advertisement removed", "instance", adv.Instance)
		s.updates.Publish(topicUpdate, hosts)
	}
}

// end closes session gen. A browse failure is reported to OnError
// subscribers.
func (s *Service) end(gen uint64, err error) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	s.agg = newAggregator()
	s.mu.Unlock()

	if err == nil {
		return
	}
	if !errors.Is(err, ErrBrowseFailed) {
		err = errors.Join(ErrBrowseFailed, err)
	}
	s.logger.Warn("discovery session failed", "err", err)
	s.errs.Publish(topicError, err)
}

// Stop ends the running session, clears aggregation state and removes
// every subscriber.
func (s *Service) Stop() {
	s.mu.Lock()
	s.gen++
	if s.running {
		s.running = false
		s.cancel()
	}
	s.agg = newAggregator()
	s.mu.Unlock()

	s.updates.ClearAll()
	s.errs.ClearAll()
}

// Close stops discovery and waits for the session goroutines to exit.
func (s *Service) Close() {
	s.Stop()
	s.wg.Wait()
}

// Hosts returns one DiscoveredHost per discovered IP.
func (s *Service) Hosts() []DiscoveredHost {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hostsLocked()
}

func (s *Service) hostsLocked() []DiscoveredHost {
	instances := s.agg.instances()
	hosts := make([]DiscoveredHost, len(instances))
	for i, inst := range instances {
		hosts[i] = expose(inst, s.config.ControlPort)
	}
	return hosts
}

// Instances returns the aggregated instances with their advertised ports.
func (s *Service) Instances() []DiscoveredInstance {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agg.instances()
}

// Instance returns the aggregated instance for ip.
func (s *Service) Instance(ip string) (DiscoveredInstance, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agg.instance(ip)
}

// OnUpdate registers fn for host list snapshots.
func (s *Service) OnUpdate(fn func([]DiscoveredHost)) Subscription {
	return s.updates.Subscribe(topicUpdate, fn)
}

// OnError registers fn for session failures.
func (s *Service) OnError(fn func(error)) Subscription {
	return s.errs.Subscribe(topicError, fn)
}

// Unsubscribe removes an OnUpdate or OnError registration.
func (s *Service) Unsubscribe(sub Subscription) error {
	switch sub.Topic {
	case topicUpdate:
		return s.updates.Unsubscribe(sub)
	case topicError:
		return s.errs.Unsubscribe(sub)
	default:
		return ErrNotSubscribed
	}
}

// Browse runs a one-shot discovery for timeout and returns what was found.
// It is independent of the Start/Stop session.
func (s *Service) Browse(ctx context.Context, timeout time.Duration) ([]DiscoveredInstance, error) {
	if !s.config.Available() {
		return nil, ErrUnavailable
	}
	if timeout <= 0 {
		timeout = BrowseTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	found := make(chan Advertisement, 16)
	lost := make(chan Advertisement, 16)
	done := make(chan error, 1)
	go func() {
		done <- s.config.Browse(ctx, s.config.ServiceType, s.config.Domain, found, lost)
	}()

	agg := newAggregator()
	for {
		select {
		case adv := <-found:
			if _, err := agg.add(adv, time.Now()); err != nil {
				s.logger.Debug("ignoring advertisement", "instance", adv.Instance, "err", err)
			}
		case adv := <-lost:
			agg.remove(adv)
		case err := <-done:
			if err != nil && ctx.Err() == nil {
				return agg.instances(), err
			}
			if ctx.Err() != nil {
				return agg.instances(), nil
			}
			done = nil
		case <-ctx.Done():
			return agg.instances(), nil
		}
	}
}

// Expose converts an instance to the record consumers connect to.
func (s *Service) Expose(inst DiscoveredInstance) DiscoveredHost {
	return expose(inst, s.config.ControlPort)
}
