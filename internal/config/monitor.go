package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"go.uber.org/multierr"
)

// ErrInvalidConfig is returned when override values cannot be applied.
var ErrInvalidConfig = errors.New("invalid monitor configuration")

const (
	DefaultProbeTarget            = "/assets/ping.txt"
	DefaultLatencyThresholdMs     = 1800
	DefaultPollIntervalMs         = 60000
	DefaultFallbackPollIntervalMs = 10000
	DefaultProbeTimeoutMs         = 5000
)

// MonitorConfig is the resolved, read-only configuration of a monitor.
type MonitorConfig struct {
	ProbeTarget            string   `json:"probe_target"`
	BaseURL                string   `json:"base_url"`
	LatencyThresholdMs     float64  `json:"latency_threshold_ms"`
	SlowLinkTypes          []string `json:"slow_link_types"`
	PollIntervalMs         int      `json:"poll_interval_ms"`
	FallbackPollIntervalMs int      `json:"fallback_poll_interval_ms"`
	ProbeTimeoutMs         int      `json:"probe_timeout_ms"`
}

// MonitorOverrides holds caller-supplied values. Nil fields fall back to
// the defaults.
type MonitorOverrides struct {
	ProbeTarget            *string   `yaml:"probe_target" split_words:"true"`
	BaseURL                *string   `yaml:"base_url" split_words:"true"`
	LatencyThresholdMs     *float64  `yaml:"latency_threshold_ms" split_words:"true"`
	SlowLinkTypes          *[]string `yaml:"slow_link_types" split_words:"true"`
	PollIntervalMs         *int      `yaml:"poll_interval_ms" split_words:"true"`
	FallbackPollIntervalMs *int      `yaml:"fallback_poll_interval_ms" split_words:"true"`
	ProbeTimeoutMs         *int      `yaml:"probe_timeout_ms" split_words:"true"`
}

// DefaultSlowLinkTypes returns the link classes treated as poor by default.
func DefaultSlowLinkTypes() []string {
	return []string{"2g", "slow-2g", "3g"}
}

// DefaultMonitorConfig returns the configuration used when nothing is overridden.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		ProbeTarget:            DefaultProbeTarget,
		LatencyThresholdMs:     DefaultLatencyThresholdMs,
		SlowLinkTypes:          DefaultSlowLinkTypes(),
		PollIntervalMs:         DefaultPollIntervalMs,
		FallbackPollIntervalMs: DefaultFallbackPollIntervalMs,
		ProbeTimeoutMs:         DefaultProbeTimeoutMs,
	}
}

// Resolve merges overrides onto the defaults and validates the result.
func Resolve(o MonitorOverrides) (MonitorConfig, error) {
	cfg := DefaultMonitorConfig()
	if o.ProbeTarget != nil {
		cfg.ProbeTarget = strings.TrimSpace(*o.ProbeTarget)
	}
	if o.BaseURL != nil {
		cfg.BaseURL = strings.TrimSpace(*o.BaseURL)
	}
	if o.LatencyThresholdMs != nil {
		cfg.LatencyThresholdMs = *o.LatencyThresholdMs
	}
	if o.SlowLinkTypes != nil {
		cfg.SlowLinkTypes = normaliseLinkTypes(*o.SlowLinkTypes)
	}
	if o.PollIntervalMs != nil {
		cfg.PollIntervalMs = *o.PollIntervalMs
	}
	if o.FallbackPollIntervalMs != nil {
		cfg.FallbackPollIntervalMs = *o.FallbackPollIntervalMs
	}
	if o.ProbeTimeoutMs != nil {
		cfg.ProbeTimeoutMs = *o.ProbeTimeoutMs
	}
	if err := cfg.Validate(); err != nil {
		return MonitorConfig{}, err
	}
	return cfg, nil
}

// Validate rejects values that would make the monitor misbehave, such as a
// zero interval turning the scheduler into a hot loop.
func (c MonitorConfig) Validate() error {
	var errs error
	if c.ProbeTarget == "" {
		errs = multierr.Append(errs, errors.New("probe_target must not be empty"))
	} else if _, err := url.Parse(c.ProbeTarget); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("probe_target: %w", err))
	}
	if c.BaseURL != "" {
		u, err := url.Parse(c.BaseURL)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("base_url: %w", err))
		} else if u.Scheme == "" || u.Host == "" {
			errs = multierr.Append(errs, fmt.Errorf("base_url %q must be absolute", c.BaseURL))
		}
	}
	if c.LatencyThresholdMs < 0 {
		errs = multierr.Append(errs, fmt.Errorf("latency_threshold_ms must be >= 0, got %v", c.LatencyThresholdMs))
	}
	if c.PollIntervalMs <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("poll_interval_ms must be > 0, got %d", c.PollIntervalMs))
	}
	if c.FallbackPollIntervalMs <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("fallback_poll_interval_ms must be > 0, got %d", c.FallbackPollIntervalMs))
	}
	if c.ProbeTimeoutMs <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("probe_timeout_ms must be > 0, got %d", c.ProbeTimeoutMs))
	}
	if errs != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errs)
	}
	return nil
}

// Target returns the absolute URL the probe requests.
func (c MonitorConfig) Target() (string, error) {
	return ResolveTarget(c.BaseURL, c.ProbeTarget)
}

// RequireRemoteTarget fails unless the probe leaves the host. A target on
// loopback answers as long as this process runs and says nothing about the
// network.
func (c MonitorConfig) RequireRemoteTarget() error {
	target, err := c.Target()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	u, err := url.Parse(target)
	if err != nil {
		return fmt.Errorf("%w: probe target: %w", ErrInvalidConfig, err)
	}
	if isLocalHost(u.Hostname()) {
		return fmt.Errorf("%w: probe target %s is on this host; point base_url or probe_target at a remote endpoint", ErrInvalidConfig, target)
	}
	return nil
}

// ResolveTarget turns target into an absolute URL using base when needed.
func ResolveTarget(base, target string) (string, error) {
	ref, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("parse probe target: %w", err)
	}
	if ref.IsAbs() {
		return ref.String(), nil
	}
	if base == "" {
		return "", fmt.Errorf("probe target %q is relative and no base_url is set", target)
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	return baseURL.ResolveReference(ref).String(), nil
}

func isLocalHost(host string) bool {
	if host == "" || strings.EqualFold(host, "localhost") || strings.HasSuffix(strings.ToLower(host), ".localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && (ip.IsLoopback() || ip.IsUnspecified())
}

// IsSlowLinkType reports whether linkType is configured as poor.
func (c MonitorConfig) IsSlowLinkType(linkType string) bool {
	linkType = strings.ToLower(strings.TrimSpace(linkType))
	if linkType == "" {
		return false
	}
	for _, t := range c.SlowLinkTypes {
		if t == linkType {
			return true
		}
	}
	return false
}

// PollInterval is the probe period when link-type notifications are available.
func (c MonitorConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// FallbackPollInterval is the probe period without link-type notifications.
func (c MonitorConfig) FallbackPollInterval() time.Duration {
	return time.Duration(c.FallbackPollIntervalMs) * time.Millisecond
}

// ProbeTimeout bounds a single probe request.
func (c MonitorConfig) ProbeTimeout() time.Duration {
	return time.Duration(c.ProbeTimeoutMs) * time.Millisecond
}

func normaliseLinkTypes(in []string) []string {
	out := make([]string, 0, len(in))
	for _, t := range in {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}
