package history

import (
	"sort"
	"time"

	"netmonitor/internal/models"
)

const (
	// DefaultTimelinePoints controls how many dots we generate per timeline.
	DefaultTimelinePoints = 80
	maxDetailsPerPoint    = 4
)

const (
	classSuccess = "state-success"
	classWarning = "state-warning"
	classError   = "state-error"
	classMissing = "state-missing"
)

// BuildConnectivityTimeline reduces connectivity samples into compact
// timeline points covering [start, end). Samples are only written when the
// status changes, so each one holds until the next: a bucket without samples
// inherits the state in force at its start. A bucket reports the worst state
// seen in it.
func BuildConnectivityTimeline(entries []models.ConnectivitySample, start, end time.Time, points int) []models.TimelinePoint {
	if points <= 0 {
		points = DefaultTimelinePoints
	}
	if !end.After(start) {
		end = start.Add(time.Minute)
	}

	samples := make([]models.ConnectivitySample, 0, len(entries))
	for _, entry := range entries {
		if entry.Timestamp.IsZero() {
			continue
		}
		samples = append(samples, entry)
	}
	sort.SliceStable(samples, func(i, j int) bool {
		return samples[i].Timestamp.Before(samples[j].Timestamp)
	})

	bucketDuration := end.Sub(start) / time.Duration(points)
	if bucketDuration <= 0 {
		bucketDuration = time.Minute
	}

	idx := 0
	var last *models.ConnectivitySample
	for idx < len(samples) && samples[idx].Timestamp.Before(start) {
		last = &samples[idx]
		idx++
	}

	result := make([]models.TimelinePoint, 0, points)
	for i := 0; i < points; i++ {
		bucketStart := start.Add(time.Duration(i) * bucketDuration)
		bucketEnd := bucketStart.Add(bucketDuration)
		if i == points-1 {
			bucketEnd = end
		}

		var bucket []models.ConnectivitySample
		if last != nil {
			carried := *last
			carried.Timestamp = bucketStart
			bucket = append(bucket, carried)
		}
		for idx < len(samples) && samples[idx].Timestamp.Before(bucketEnd) {
			bucket = append(bucket, samples[idx])
			last = &samples[idx]
			idx++
		}

		className, label, details := evaluateBucket(bucket)
		result = append(result, models.TimelinePoint{
			ClassName: className,
			Label:     label,
			Start:     bucketStart,
			End:       bucketEnd,
			Details:   details,
		})
	}
	return result
}

func evaluateBucket(bucket []models.ConnectivitySample) (className, label string, details []models.TimelineDetail) {
	if len(bucket) == 0 {
		return classMissing, "No data", nil
	}

	worst := models.StateOK
	for _, sample := range bucket {
		state := sample.State()
		if severity(state) > severity(worst) {
			worst = state
		}
		if state != models.StateOK && len(details) < maxDetailsPerPoint {
			details = append(details, models.TimelineDetail{
				Timestamp:     sample.Timestamp,
				State:         state,
				LatencyMs:     sample.LatencyMs,
				EffectiveType: sample.EffectiveType,
			})
		}
	}

	switch worst {
	case models.StateOffline:
		return classError, "Offline", details
	case models.StatePoor:
		return classWarning, "Poor connection", details
	default:
		return classSuccess, "Online", nil
	}
}

func severity(state string) int {
	switch state {
	case models.StateOffline:
		return 2
	case models.StatePoor:
		return 1
	default:
		return 0
	}
}
