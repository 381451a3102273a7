package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"netmonitor/internal/config"
	"netmonitor/internal/models"
	"netmonitor/internal/platform"
)

var (
	// ErrNotRunning is returned for checks requested before Start or after Stop.
	ErrNotRunning = errors.New("monitor is not running")
	// ErrDegraded is returned for checks requested while the platform offers
	// no network capabilities; such a monitor never probes.
	ErrDegraded = errors.New("monitor running without platform capabilities")
)

type runState int

const (
	stateIdle runState = iota
	stateRunning
	stateDegraded
	stateStopped
)

// Monitor merges platform notifications and periodic probes into a single
// deduplicated NetworkStatus stream.
type Monitor struct {
	cfg      config.MonitorConfig
	prober   Prober
	platform platform.Platform
	clock    clock.Clock
	log      *zap.Logger
	metrics  Metrics
	store    *Store
	sched    *scheduler

	mu     sync.Mutex
	state  runState
	caps   platform.Capabilities
	cancel context.CancelFunc
	ctx    context.Context
	wg     sync.WaitGroup
}

// Option customises a Monitor.
type Option func(*Monitor)

// WithClock replaces the clock driving the scheduler.
func WithClock(c clock.Clock) Option {
	return func(m *Monitor) {
		if c != nil {
			m.clock = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Monitor) {
		if l != nil {
			m.log = l
		}
	}
}

// WithMetrics registers a probe metrics sink.
func WithMetrics(mt Metrics) Option {
	return func(m *Monitor) {
		if mt != nil {
			m.metrics = mt
		}
	}
}

// New creates a monitor. A nil platform behaves like platform.None.
func New(cfg config.MonitorConfig, prober Prober, p platform.Platform, opts ...Option) (*Monitor, error) {
	if prober == nil {
		return nil, errors.New("monitor: prober is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if p == nil {
		p = platform.None{}
	}

	m := &Monitor{
		cfg:      cfg,
		prober:   prober,
		platform: p,
		clock:    clock.New(),
		log:      zap.NewNop(),
		metrics:  noopMetrics{},
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.Named("monitor")
	m.store = NewStore(cfg, m.log.Named("store"))
	return m, nil
}

// Start detects platform capabilities once, starts the listeners that are
// available and begins probing. Without any capability the monitor stays in
// the default status and never probes. ctx only bounds startup; use Stop to
// end monitoring.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case stateRunning, stateDegraded:
		return nil
	case stateStopped:
		return ErrNotRunning
	}

	m.caps = m.platform.Capabilities()
	if !m.caps.Any() {
		m.state = stateDegraded
		m.log.Warn("no platform network capabilities, monitor stays at default status")
		return nil
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.ctx, m.cancel = runCtx, cancel

	if m.caps.OnlineEvents && m.caps.OnlineFlag {
		events, err := m.platform.WatchOnline(runCtx)
		if err != nil {
			m.log.Warn("online notifications unavailable", zap.Error(err))
		} else {
			m.wg.Add(1)
			go listenOnline(runCtx, &m.wg, events, m.platform, m.store, m.log)
		}
	}

	linkTypes := false
	if m.caps.LinkTypeEvents {
		events, err := m.platform.WatchLinkType(runCtx)
		if err != nil {
			m.log.Warn("link type notifications unavailable", zap.Error(err))
		} else {
			linkTypes = true
			m.wg.Add(1)
			go listenLinkType(runCtx, &m.wg, events, m.platform, m.store, m.log)
		}
	}

	interval := m.cfg.FallbackPollInterval()
	if linkTypes {
		interval = m.cfg.PollInterval()
	}
	m.sched = &scheduler{
		prober:    m.prober,
		store:     m.store,
		platform:  m.platform,
		linkTypes: linkTypes,
		clock:     m.clock,
		interval:  interval,
		timeout:   m.cfg.ProbeTimeout(),
		log:       m.log.Named("scheduler"),
		metrics:   m.metrics,
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.sched.run(runCtx, &m.wg)
	}()

	m.state = stateRunning
	m.log.Info("monitor started",
		zap.Duration("interval", interval),
		zap.Bool("link_type_events", linkTypes),
		zap.Bool("online_events", m.caps.OnlineEvents))
	return nil
}

// Stop cancels the scheduler and listeners and waits for them. Probes that
// complete afterwards publish nothing. Stop is idempotent.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	if m.state == stateStopped {
		m.mu.Unlock()
		return nil
	}
	m.state = stateStopped
	cancel := m.cancel
	m.mu.Unlock()

	m.store.Close()
	if cancel != nil {
		cancel()
	}
	m.wg.Wait()

	m.log.Info("monitor stopped")
	return nil
}

// Read returns the current status.
func (m *Monitor) Read() models.NetworkStatus {
	return m.store.Read()
}

// Subscribe delivers the current status and every later change to obs until
// the returned func is called. Observers run on the publishing goroutine and
// must not call Subscribe, Stop or CheckNow.
func (m *Monitor) Subscribe(obs Observer) func() {
	return m.store.Subscribe(obs)
}

// RunManualCheck probes out of band without touching the schedule. After the
// result is published, callback (if any) receives the resulting status. When
// the monitor is not running, or stops before the probe completes, nothing is
// published and callback is not called.
func (m *Monitor) RunManualCheck(callback func(models.NetworkStatus)) {
	ctx, sched, err := m.acquire()
	if err != nil {
		m.log.Debug("manual check ignored", zap.Error(err))
		return
	}

	go func() {
		defer m.wg.Done()
		status, ok := sched.probe(ctx, sourceManual)
		if ok && callback != nil {
			callback(status)
		}
	}()
}

// CheckNow runs a manual check and waits for its published result.
func (m *Monitor) CheckNow(ctx context.Context) (models.NetworkStatus, error) {
	runCtx, sched, err := m.acquire()
	if err != nil {
		return m.Read(), err
	}
	defer m.wg.Done()

	probeCtx, cancel := context.WithCancel(runCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	status, ok := sched.probe(probeCtx, sourceManual)
	if !ok {
		if ctx.Err() != nil {
			return m.Read(), ctx.Err()
		}
		return m.Read(), ErrNotRunning
	}
	return status, nil
}

// acquire registers a manual probe with the wait group while the monitor is
// known to be running.
func (m *Monitor) acquire() (context.Context, *scheduler, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case stateRunning:
		m.wg.Add(1)
		return m.ctx, m.sched, nil
	case stateDegraded:
		return nil, nil, ErrDegraded
	default:
		return nil, nil, ErrNotRunning
	}
}

// Config returns the resolved configuration.
func (m *Monitor) Config() config.MonitorConfig {
	return m.cfg
}

// Capabilities returns the platform capabilities detected at Start.
func (m *Monitor) Capabilities() platform.Capabilities {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.caps
}

// Interval returns the probe period chosen at Start, or zero when not probing.
func (m *Monitor) Interval() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sched == nil {
		return 0
	}
	return m.sched.interval
}

// SkippedTicks counts ticks dropped because a probe was still in flight.
func (m *Monitor) SkippedTicks() int64 {
	m.mu.Lock()
	sched := m.sched
	m.mu.Unlock()
	if sched == nil {
		return 0
	}
	return sched.skipped.Load()
}
