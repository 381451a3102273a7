package metrics

import (
	"math"
	"time"

	"netmonitor/internal/models"
)

// ConnectivityUptime summarises connectivity over a window of history.
// Percentages are weighted by how long each state was in force, since a
// sample is only written when the status changes.
type ConnectivityUptime struct {
	TotalSamples    int      `json:"total_samples"`
	Online          int      `json:"online"`
	Offline         int      `json:"offline"`
	Poor            int      `json:"poor"`
	ObservedSeconds float64  `json:"observed_seconds"`
	OnlineSeconds   float64  `json:"online_seconds"`
	PoorSeconds     float64  `json:"poor_seconds"`
	UptimePercent   float64  `json:"uptime_percent"`
	PoorPercent     float64  `json:"poor_percent"`
	AvgLatencyMs    *float64 `json:"avg_latency_ms,omitempty"`
	MaxLatencyMs    *float64 `json:"max_latency_ms,omitempty"`
	LastState       string   `json:"last_state,omitempty"`
	LastUpdated     string   `json:"last_updated,omitempty"`
	FirstSampledAt  string   `json:"first_sampled_at,omitempty"`
}

// ComputeUptime aggregates the samples over [start, end]. Each sample holds
// until the next one, so a sample taken before start still counts for the
// part of the window it covers. A zero start begins at the first sample.
// Samples are expected in chronological order.
func ComputeUptime(samples []models.ConnectivitySample, start, end time.Time) ConnectivityUptime {
	result := ConnectivityUptime{LastState: models.StateUnknown}
	if len(samples) == 0 {
		return result
	}
	if start.IsZero() {
		start = samples[0].Timestamp
	}

	var (
		latencySum   float64
		latencyCount int
		latencyMax   float64
		online, poor time.Duration
		observed     time.Duration
		current      *models.ConnectivitySample
		first, last  *models.ConnectivitySample
	)
	for i := range samples {
		sample := &samples[i]
		if sample.Timestamp.After(end) {
			break
		}
		current = sample

		from := sample.Timestamp
		if from.Before(start) {
			from = start
		}
		to := end
		if i+1 < len(samples) && samples[i+1].Timestamp.Before(end) {
			to = samples[i+1].Timestamp
		}
		if span := to.Sub(from); span > 0 {
			observed += span
			if sample.Online {
				online += span
			}
			if sample.PoorConnection {
				poor += span
			}
		}

		if sample.Timestamp.Before(start) {
			continue
		}
		if first == nil {
			first = sample
		}
		last = sample
		result.TotalSamples++
		if sample.Online {
			result.Online++
		} else {
			result.Offline++
		}
		if sample.PoorConnection {
			result.Poor++
		}
		if sample.LatencyMs != nil {
			latencySum += *sample.LatencyMs
			latencyCount++
			latencyMax = math.Max(latencyMax, *sample.LatencyMs)
		}
	}
	if current == nil {
		return result
	}

	result.ObservedSeconds = round2(observed.Seconds())
	result.OnlineSeconds = round2(online.Seconds())
	result.PoorSeconds = round2(poor.Seconds())
	switch {
	case observed > 0:
		result.UptimePercent = round2(float64(online) / float64(observed) * 100)
		result.PoorPercent = round2(float64(poor) / float64(observed) * 100)
	case current.Online:
		result.UptimePercent = 100
	}
	if observed == 0 && current.PoorConnection {
		result.PoorPercent = 100
	}
	if latencyCount > 0 {
		avg := round2(latencySum / float64(latencyCount))
		maxLatency := round2(latencyMax)
		result.AvgLatencyMs = &avg
		result.MaxLatencyMs = &maxLatency
	}

	result.LastState = current.State()
	if last != nil {
		result.LastUpdated = last.Timestamp.UTC().Format(time.RFC3339)
		result.FirstSampledAt = first.Timestamp.UTC().Format(time.RFC3339)
	}
	return result
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
