package models

// NetworkStatus is the published view of host connectivity. Values are
// replaced wholesale; the pointed-to latency and link type are never mutated
// after construction.
type NetworkStatus struct {
	Online         bool     `json:"online"`
	Latency        *float64 `json:"latency"`
	EffectiveType  *string  `json:"effective_type,omitempty"`
	PoorConnection bool     `json:"poor_connection"`
}

// DefaultStatus is the status every monitor starts with.
func DefaultStatus() NetworkStatus {
	return NetworkStatus{Online: true}
}

// Equal reports whether both statuses carry the same values.
func (s NetworkStatus) Equal(other NetworkStatus) bool {
	if s.Online != other.Online || s.PoorConnection != other.PoorConnection {
		return false
	}
	if !equalPtr(s.Latency, other.Latency) {
		return false
	}
	return equalPtr(s.EffectiveType, other.EffectiveType)
}

// LatencyMs returns the measured latency and whether one is present.
func (s NetworkStatus) LatencyMs() (float64, bool) {
	if s.Latency == nil {
		return 0, false
	}
	return *s.Latency, true
}

// LinkType returns the reported link class or "" when unknown.
func (s NetworkStatus) LinkType() string {
	if s.EffectiveType == nil {
		return ""
	}
	return *s.EffectiveType
}

// WithLatency returns a copy carrying the given latency. A nil value clears it.
func (s NetworkStatus) WithLatency(ms *float64) NetworkStatus {
	if ms != nil {
		v := *ms
		ms = &v
	}
	s.Latency = ms
	return s
}

// WithEffectiveType returns a copy carrying the given link type. An empty
// string clears it.
func (s NetworkStatus) WithEffectiveType(linkType string) NetworkStatus {
	if linkType == "" {
		s.EffectiveType = nil
		return s
	}
	s.EffectiveType = &linkType
	return s
}

// Float64 returns a pointer to v.
func Float64(v float64) *float64 {
	return &v
}

// String returns a pointer to v.
func String(v string) *string {
	return &v
}

func equalPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
