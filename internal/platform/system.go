package platform

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	psnet "github.com/shirou/gopsutil/v3/net"
	"go.uber.org/zap"
)

const defaultInterfacePollInterval = 2 * time.Second

// InterfaceLister returns the host's network interfaces.
type InterfaceLister func(ctx context.Context) (psnet.InterfaceStatList, error)

// System derives online transitions from the host's network interfaces by
// polling them. It cannot report link quality, so link-type notifications
// are never available.
type System struct {
	interval time.Duration
	clock    clock.Clock
	log      *zap.Logger
	list     InterfaceLister
	caps     Capabilities

	online atomic.Bool

	mu       sync.Mutex
	watchers map[chan struct{}]struct{}
	cancel   context.CancelFunc
	done     chan struct{}
}

var _ Platform = (*System)(nil)

// SystemOption customises a System platform.
type SystemOption func(*System)

// WithPollInterval sets how often interfaces are inspected.
func WithPollInterval(d time.Duration) SystemOption {
	return func(s *System) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c clock.Clock) SystemOption {
	return func(s *System) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) SystemOption {
	return func(s *System) {
		if l != nil {
			s.log = l
		}
	}
}

// WithInterfaceLister replaces the gopsutil interface listing.
func WithInterfaceLister(l InterfaceLister) SystemOption {
	return func(s *System) {
		if l != nil {
			s.list = l
		}
	}
}

// NewSystem inspects the host interfaces once. When they cannot be listed
// the platform reports no capabilities at all.
func NewSystem(opts ...SystemOption) *System {
	s := &System{
		interval: defaultInterfacePollInterval,
		clock:    clock.New(),
		log:      zap.NewNop(),
		list:     psnet.InterfacesWithContext,
		watchers: make(map[chan struct{}]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.Named("platform")

	ctx, cancel := context.WithTimeout(context.Background(), s.interval)
	defer cancel()
	ifaces, err := s.list(ctx)
	if err != nil {
		s.log.Warn("network interfaces unavailable, running without platform signals", zap.Error(err))
		return s
	}
	s.caps = Capabilities{OnlineEvents: true, OnlineFlag: true}
	s.online.Store(hasUsableInterface(ifaces))
	return s
}

func (s *System) Capabilities() Capabilities {
	return s.caps
}

// IsOnline returns the state observed by the most recent poll.
func (s *System) IsOnline() bool {
	return s.online.Load()
}

func (s *System) LinkType() string {
	return ""
}

func (s *System) WatchLinkType(context.Context) (<-chan struct{}, error) {
	return nil, ErrUnsupported
}

// WatchOnline returns a channel signalled whenever the host moves between
// having and lacking a usable interface.
func (s *System) WatchOnline(ctx context.Context) (<-chan struct{}, error) {
	if !s.caps.OnlineEvents {
		return nil, ErrUnsupported
	}

	ch := make(chan struct{}, 1)
	s.mu.Lock()
	s.watchers[ch] = struct{}{}
	if s.cancel == nil {
		pollCtx, cancel := context.WithCancel(context.Background())
		s.cancel = cancel
		s.done = make(chan struct{})
		go s.pollLoop(pollCtx, s.done)
	}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.removeWatcher(ch)
	}()
	return ch, nil
}

func (s *System) removeWatcher(ch chan struct{}) {
	s.mu.Lock()
	delete(s.watchers, ch)
	close(ch)
	var cancel context.CancelFunc
	var done chan struct{}
	if len(s.watchers) == 0 && s.cancel != nil {
		cancel, done = s.cancel, s.done
		s.cancel, s.done = nil, nil
	}
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (s *System) pollLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := s.clock.Ticker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.poll(ctx)
		}
	}
}

func (s *System) poll(ctx context.Context) {
	pollCtx, cancel := context.WithTimeout(ctx, s.interval)
	defer cancel()

	ifaces, err := s.list(pollCtx)
	if err != nil {
		s.log.Debug("list interfaces failed", zap.Error(err))
		return
	}
	online := hasUsableInterface(ifaces)
	if s.online.Swap(online) == online {
		return
	}
	s.log.Info("interface state changed", zap.Bool("online", online))

	s.mu.Lock()
	for ch := range s.watchers {
		notify(ch)
	}
	s.mu.Unlock()
}

// hasUsableInterface reports whether any non-loopback interface is up and
// carries an address that is not link-local.
func hasUsableInterface(ifaces psnet.InterfaceStatList) bool {
	for _, iface := range ifaces {
		if !hasFlag(iface.Flags, "up") || hasFlag(iface.Flags, "loopback") {
			continue
		}
		for _, addr := range iface.Addrs {
			ip, _, err := net.ParseCIDR(addr.Addr)
			if err != nil {
				ip = net.ParseIP(addr.Addr)
			}
			if ip == nil || ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsUnspecified() {
				continue
			}
			return true
		}
	}
	return false
}

func hasFlag(flags []string, want string) bool {
	for _, f := range flags {
		if f == want {
			return true
		}
	}
	return false
}
