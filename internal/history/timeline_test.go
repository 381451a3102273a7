package history

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netmonitor/internal/models"
)

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func at(minutes int, online, poor bool) models.ConnectivitySample {
	return models.ConnectivitySample{
		Timestamp:      base.Add(time.Duration(minutes) * time.Minute),
		Online:         online,
		PoorConnection: poor,
	}
}

func TestBuildConnectivityTimeline_NoSamples(t *testing.T) {
	points := BuildConnectivityTimeline(nil, base, base.Add(10*time.Minute), 5)
	require.Len(t, points, 5)
	for _, p := range points {
		assert.Equal(t, classMissing, p.ClassName)
		assert.Nil(t, p.Details)
	}
	assert.Equal(t, base, points[0].Start)
	assert.Equal(t, base.Add(10*time.Minute), points[4].End)
}

func TestBuildConnectivityTimeline_CarriesStateForward(t *testing.T) {
	samples := []models.ConnectivitySample{
		at(-5, true, false),
		at(4, false, true),
		at(7, true, true),
	}
	points := BuildConnectivityTimeline(samples, base, base.Add(10*time.Minute), 5)
	require.Len(t, points, 5)

	assert.Equal(t, classSuccess, points[0].ClassName)
	assert.Equal(t, classSuccess, points[1].ClassName)
	assert.Equal(t, classError, points[2].ClassName)
	assert.Equal(t, "Offline", points[2].Label)
	// offline carried into 6m, then poor at 7m
	assert.Equal(t, classError, points[3].ClassName)
	require.Len(t, points[3].Details, 2)
	assert.Equal(t, models.StatePoor, points[3].Details[1].State)
	assert.Equal(t, classWarning, points[4].ClassName)
}

func TestBuildConnectivityTimeline_MissingBeforeFirstSample(t *testing.T) {
	points := BuildConnectivityTimeline([]models.ConnectivitySample{at(5, true, false)}, base, base.Add(10*time.Minute), 2)
	require.Len(t, points, 2)
	assert.Equal(t, classMissing, points[0].ClassName)
	assert.Equal(t, classSuccess, points[1].ClassName)
}

func TestBuildConnectivityTimeline_DetailsCapped(t *testing.T) {
	var samples []models.ConnectivitySample
	for i := 0; i < 10; i++ {
		samples = append(samples, models.ConnectivitySample{
			Timestamp:      base.Add(time.Duration(i) * time.Second),
			Online:         true,
			PoorConnection: true,
			LatencyMs:      models.Float64(2000),
		})
	}
	points := BuildConnectivityTimeline(samples, base, base.Add(time.Minute), 1)
	require.Len(t, points, 1)
	assert.Len(t, points[0].Details, maxDetailsPerPoint)
	assert.Equal(t, 2000.0, *points[0].Details[0].LatencyMs)
}

func TestBuildConnectivityTimeline_Defaults(t *testing.T) {
	points := BuildConnectivityTimeline(nil, base, base, 0)
	require.Len(t, points, DefaultTimelinePoints)
	assert.Equal(t, base.Add(time.Minute), points[len(points)-1].End)
}
