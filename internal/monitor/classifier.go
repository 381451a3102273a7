package monitor

import (
	"netmonitor/internal/config"
	"netmonitor/internal/models"
)

// IsPoor reports whether a connection counts as poor: offline, on a slow
// link class, or slower than the latency threshold. Absent link type or
// latency simply do not contribute.
func IsPoor(online bool, effectiveType *string, latencyMs *float64, cfg config.MonitorConfig) bool {
	if !online {
		return true
	}
	if effectiveType != nil && cfg.IsSlowLinkType(*effectiveType) {
		return true
	}
	if latencyMs != nil && *latencyMs > cfg.LatencyThresholdMs {
		return true
	}
	return false
}

// Classify returns status with PoorConnection derived from its other fields.
func Classify(status models.NetworkStatus, cfg config.MonitorConfig) models.NetworkStatus {
	status.PoorConnection = IsPoor(status.Online, status.EffectiveType, status.Latency, cfg)
	return status
}
