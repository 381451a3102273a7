package models

import "time"

// TimelinePoint represents a single compact point in the connectivity timeline.
type TimelinePoint struct {
	ClassName string           `json:"className"`
	Label     string           `json:"label"`
	Start     time.Time        `json:"start"`
	End       time.Time        `json:"end"`
	Details   []TimelineDetail `json:"details,omitempty"`
}

// TimelineDetail carries extra information for degraded buckets.
type TimelineDetail struct {
	Timestamp     time.Time `json:"timestamp"`
	State         string    `json:"state,omitempty"`
	LatencyMs     *float64  `json:"latency_ms,omitempty"`
	EffectiveType string    `json:"effective_type,omitempty"`
}
