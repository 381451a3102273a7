package models

import "time"

// ConnectivitySample captures a published status at a moment in time.
type ConnectivitySample struct {
	Timestamp      time.Time `json:"timestamp"`
	Online         bool      `json:"online"`
	LatencyMs      *float64  `json:"latency_ms,omitempty"`
	EffectiveType  string    `json:"effective_type,omitempty"`
	PoorConnection bool      `json:"poor_connection"`
}

// NewConnectivitySample converts a status into a history sample.
func NewConnectivitySample(status NetworkStatus, at time.Time) ConnectivitySample {
	sample := ConnectivitySample{
		Timestamp:      at.UTC(),
		Online:         status.Online,
		EffectiveType:  status.LinkType(),
		PoorConnection: status.PoorConnection,
	}
	if ms, ok := status.LatencyMs(); ok {
		sample.LatencyMs = &ms
	}
	return sample
}

// State returns "offline", "poor" or "ok".
func (s ConnectivitySample) State() string {
	switch {
	case !s.Online:
		return StateOffline
	case s.PoorConnection:
		return StatePoor
	default:
		return StateOK
	}
}

const (
	StateOK      = "ok"
	StatePoor    = "poor"
	StateOffline = "offline"
	StateUnknown = "unknown"
)
