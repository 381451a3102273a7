package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"netmonitor/internal/config"
)

// HeartbeatHeader marks probe requests so proxies and analytics can skip them.
const HeartbeatHeader = "X-Heartbeat"

const maxProbeBody = 64 << 10

// ErrProbeFailed matches every *ProbeError.
var ErrProbeFailed = errors.New("probe failed")

// ProbeError describes why a probe did not succeed.
type ProbeError struct {
	Target     string
	StatusCode int
	Err        error
}

func (e *ProbeError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("probe %s: unexpected status %d", e.Target, e.StatusCode)
	}
	return fmt.Sprintf("probe %s: %v", e.Target, e.Err)
}

func (e *ProbeError) Unwrap() error {
	return e.Err
}

func (e *ProbeError) Is(target error) bool {
	return target == ErrProbeFailed
}

// ProbeResult is the outcome of a successful probe.
type ProbeResult struct {
	LatencyMs float64
}

// Prober performs a single connectivity check. Implementations report every
// failure as an error value and never retry.
type Prober interface {
	Check(ctx context.Context) (ProbeResult, error)
}

// HTTPProber checks connectivity with a GET against a lightweight endpoint.
type HTTPProber struct {
	target string
	client *http.Client
	clock  clock.Clock
	log    *zap.Logger
}

var _ Prober = (*HTTPProber)(nil)

// ProberOption customises an HTTPProber.
type ProberOption func(*HTTPProber)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) ProberOption {
	return func(p *HTTPProber) {
		if c != nil {
			p.client = c
		}
	}
}

// WithProberClock replaces the clock used for latency measurement.
func WithProberClock(c clock.Clock) ProberOption {
	return func(p *HTTPProber) {
		if c != nil {
			p.clock = c
		}
	}
}

// WithProberLogger sets the logger.
func WithProberLogger(l *zap.Logger) ProberOption {
	return func(p *HTTPProber) {
		if l != nil {
			p.log = l
		}
	}
}

// NewHTTPProber builds a prober for cfg.ProbeTarget. Relative targets are
// resolved against cfg.BaseURL.
func NewHTTPProber(cfg config.MonitorConfig, opts ...ProberOption) (*HTTPProber, error) {
	target, err := cfg.Target()
	if err != nil {
		return nil, err
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.ProbeTimeout(),
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          2,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   cfg.ProbeTimeout(),
		ExpectContinueTimeout: time.Second,
	}

	p := &HTTPProber{
		target: target,
		client: &http.Client{Transport: transport, Timeout: cfg.ProbeTimeout()},
		clock:  clock.New(),
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.log = p.log.Named("probe")
	return p, nil
}

// Target returns the absolute URL being probed.
func (p *HTTPProber) Target() string {
	return p.target
}

// Check issues one heartbeat request. Latency covers the time from sending
// the request until the body has fully arrived.
func (p *HTTPProber) Check(ctx context.Context) (ProbeResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.target, nil)
	if err != nil {
		return ProbeResult{}, &ProbeError{Target: p.target, Err: err}
	}
	req.Header.Set(HeartbeatHeader, "true")
	req.Header.Set("Cache-Control", "no-cache")

	start := p.clock.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("request timed out: %w", err)
		}
		p.log.Debug("probe failed", zap.String("target", p.target), zap.Error(err))
		return ProbeResult{}, &ProbeError{Target: p.target, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		p.log.Debug("probe rejected", zap.String("target", p.target), zap.Int("status", resp.StatusCode))
		return ProbeResult{}, &ProbeError{Target: p.target, StatusCode: resp.StatusCode, Err: errors.New(http.StatusText(resp.StatusCode))}
	}
	if _, err := io.Copy(io.Discard, io.LimitReader(resp.Body, maxProbeBody)); err != nil {
		return ProbeResult{}, &ProbeError{Target: p.target, Err: fmt.Errorf("read body: %w", err)}
	}

	elapsed := p.clock.Since(start)
	return ProbeResult{LatencyMs: float64(elapsed) / float64(time.Millisecond)}, nil
}
