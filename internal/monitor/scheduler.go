package monitor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"netmonitor/internal/models"
	"netmonitor/internal/platform"
)

const (
	sourceScheduled = "scheduled"
	sourceManual    = "manual"
)

// Metrics receives probe and scheduling events.
type Metrics interface {
	ObserveProbe(source string, latencyMs float64, err error)
	ObserveSkippedTick()
}

type noopMetrics struct{}

func (noopMetrics) ObserveProbe(string, float64, error) {}

func (noopMetrics) ObserveSkippedTick() {}

// scheduler drives periodic probing. A tick that fires while the previous
// scheduled probe is still outstanding is skipped, not queued.
type scheduler struct {
	prober    Prober
	store     *Store
	platform  platform.Platform
	linkTypes bool
	clock     clock.Clock
	interval  time.Duration
	timeout   time.Duration
	log       *zap.Logger
	metrics   Metrics

	inFlight atomic.Bool
	skipped  atomic.Int64
	ticks    atomic.Int64
}

// run fires tick 0 immediately and then one tick per interval until ctx is
// done. Probe goroutines are tracked by wg.
func (s *scheduler) run(ctx context.Context, wg *sync.WaitGroup) {
	ticker := s.clock.Ticker(s.interval)
	defer ticker.Stop()

	s.tick(ctx, wg)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx, wg)
		}
	}
}

func (s *scheduler) tick(ctx context.Context, wg *sync.WaitGroup) {
	if ctx.Err() != nil {
		return
	}
	s.ticks.Add(1)
	if !s.inFlight.CompareAndSwap(false, true) {
		s.skipped.Add(1)
		s.metrics.ObserveSkippedTick()
		s.log.Debug("probe still in flight, skipping tick")
		return
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer s.inFlight.Store(false)
		s.probe(ctx, sourceScheduled)
	}()
}

// probe runs one check and publishes its outcome. ok is false when the
// monitor is stopping and nothing was published.
func (s *scheduler) probe(ctx context.Context, source string) (models.NetworkStatus, bool) {
	probeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	res, err := s.prober.Check(probeCtx)
	cancel()

	if ctx.Err() != nil {
		return models.NetworkStatus{}, false
	}
	s.metrics.ObserveProbe(source, res.LatencyMs, err)

	if err != nil {
		s.log.Info("connectivity probe failed", zap.String("source", source), zap.Error(err))
	} else {
		s.log.Debug("connectivity probe succeeded", zap.String("source", source), zap.Float64("latency_ms", res.LatencyMs))
	}

	status, applyErr := s.store.Apply(func(cur models.NetworkStatus) models.NetworkStatus {
		next := cur
		if err != nil {
			next.Online = false
			next = next.WithLatency(nil)
		} else {
			next.Online = true
			next = next.WithLatency(&res.LatencyMs)
		}
		if s.linkTypes {
			next = next.WithEffectiveType(s.platform.LinkType())
		}
		return next
	})
	if applyErr != nil {
		return models.NetworkStatus{}, false
	}
	return status, true
}
