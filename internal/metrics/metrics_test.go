package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netmonitor/internal/models"
)

func sample(at time.Time, online, poor bool, latency *float64) models.ConnectivitySample {
	return models.ConnectivitySample{Timestamp: at, Online: online, PoorConnection: poor, LatencyMs: latency}
}

func TestComputeUptime_Empty(t *testing.T) {
	got := ComputeUptime(nil, time.Time{}, time.Now())
	assert.Zero(t, got.TotalSamples)
	assert.Equal(t, models.StateUnknown, got.LastState)
	assert.Nil(t, got.AvgLatencyMs)
}

func TestComputeUptime(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	samples := []models.ConnectivitySample{
		sample(base, true, false, models.Float64(100)),
		sample(base.Add(time.Minute), true, true, models.Float64(2000)),
		sample(base.Add(2*time.Minute), false, true, nil),
	}

	got := ComputeUptime(samples, time.Time{}, base.Add(3*time.Minute))
	assert.Equal(t, 3, got.TotalSamples)
	assert.Equal(t, 2, got.Online)
	assert.Equal(t, 1, got.Offline)
	assert.Equal(t, 2, got.Poor)
	assert.Equal(t, 66.67, got.UptimePercent)
	assert.Equal(t, 66.67, got.PoorPercent)
	assert.Equal(t, 180.0, got.ObservedSeconds)
	assert.Equal(t, 120.0, got.OnlineSeconds)
	require.NotNil(t, got.AvgLatencyMs)
	assert.Equal(t, 1050.0, *got.AvgLatencyMs)
	assert.Equal(t, 2000.0, *got.MaxLatencyMs)
	assert.Equal(t, models.StateOffline, got.LastState)
	assert.Equal(t, "2024-05-01T12:02:00Z", got.LastUpdated)
	assert.Equal(t, "2024-05-01T12:00:00Z", got.FirstSampledAt)
}

func TestComputeUptime_WeightsByDuration(t *testing.T) {
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	samples := []models.ConnectivitySample{
		sample(base, true, false, models.Float64(40)),
		sample(base.Add(10*time.Second), true, false, models.Float64(45)),
		sample(base.Add(20*time.Second), true, false, models.Float64(50)),
		sample(base.Add(30*time.Second), false, true, nil),
		sample(base.Add(10*time.Hour), true, false, models.Float64(42)),
	}

	got := ComputeUptime(samples, time.Time{}, base.Add(10*time.Hour))
	assert.Equal(t, 5, got.TotalSamples)
	assert.Equal(t, 4, got.Online)
	assert.Equal(t, 36000.0, got.ObservedSeconds)
	assert.Equal(t, 30.0, got.OnlineSeconds)
	assert.Equal(t, 0.08, got.UptimePercent)
	assert.Equal(t, 99.92, got.PoorPercent)
	assert.Equal(t, models.StateOK, got.LastState)
}

func TestComputeUptime_WindowCarriesEarlierState(t *testing.T) {
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	samples := []models.ConnectivitySample{
		sample(base, false, true, nil),
		sample(base.Add(time.Hour), true, false, models.Float64(30)),
	}

	// the outage started before the window and lasts for its first half
	got := ComputeUptime(samples, base.Add(30*time.Minute), base.Add(90*time.Minute))
	assert.Equal(t, 1, got.TotalSamples)
	assert.Equal(t, 3600.0, got.ObservedSeconds)
	assert.Equal(t, 50.0, got.UptimePercent)
	assert.Equal(t, 50.0, got.PoorPercent)
	assert.Equal(t, "2024-05-01T01:00:00Z", got.FirstSampledAt)

	// nothing changed inside the window: the earlier state covers all of it
	got = ComputeUptime(samples[:1], base.Add(30*time.Minute), base.Add(90*time.Minute))
	assert.Zero(t, got.TotalSamples)
	assert.Equal(t, 0.0, got.UptimePercent)
	assert.Equal(t, 100.0, got.PoorPercent)
	assert.Equal(t, models.StateOffline, got.LastState)
	assert.Empty(t, got.LastUpdated)
}

func TestComputeUptime_SingleSampleAtEnd(t *testing.T) {
	at := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	got := ComputeUptime([]models.ConnectivitySample{sample(at, true, false, nil)}, time.Time{}, at)
	assert.Equal(t, 100.0, got.UptimePercent)
	assert.Zero(t, got.ObservedSeconds)
}

func TestCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	require.NoError(t, err)

	c.ObserveProbe("scheduled", 120, nil)
	c.ObserveProbe("scheduled", 0, errors.New("down"))
	c.ObserveProbe("manual", 80, nil)
	c.ObserveSkippedTick()

	assert.Equal(t, 1.0, testutil.ToFloat64(c.probes.WithLabelValues("scheduled", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.probes.WithLabelValues("scheduled", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.probes.WithLabelValues("manual", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.skipped))
	assert.Equal(t, -1.0, testutil.ToFloat64(c.current))

	c.ObserveStatus(models.NetworkStatus{Online: true, Latency: models.Float64(120)})
	assert.Equal(t, 1.0, testutil.ToFloat64(c.online))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.poor))
	assert.Equal(t, 120.0, testutil.ToFloat64(c.current))

	c.ObserveStatus(models.NetworkStatus{Online: false, PoorConnection: true})
	assert.Equal(t, 0.0, testutil.ToFloat64(c.online))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.poor))
	assert.Equal(t, -1.0, testutil.ToFloat64(c.current))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.changes))
}

func TestCollector_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewCollector(reg)
	require.NoError(t, err)
	_, err = NewCollector(reg)
	assert.Error(t, err)
}
