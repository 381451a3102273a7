package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"netmonitor/internal/models"
)

const namespace = "netmonitor"

// Collector exports probe activity and the current connectivity status.
type Collector struct {
	probes  *prometheus.CounterVec
	latency *prometheus.HistogramVec
	skipped prometheus.Counter

	online  prometheus.Gauge
	poor    prometheus.Gauge
	current prometheus.Gauge
	changes prometheus.Counter
}

// NewCollector creates the collectors and registers them with reg.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probes_total",
			Help:      "Connectivity probes by source and result.",
		}, []string{"source", "result"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "probe_latency_ms",
			Help:      "Latency of successful probes in milliseconds.",
			Buckets:   []float64{25, 50, 100, 250, 500, 1000, 1800, 3000, 5000},
		}, []string{"source"}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skipped_ticks_total",
			Help:      "Scheduled ticks dropped while a probe was in flight.",
		}),
		online: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online",
			Help:      "1 when the network is believed reachable.",
		}),
		poor: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "poor_connection",
			Help:      "1 when the connection is classified as poor.",
		}),
		current: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "latency_ms",
			Help:      "Last measured latency in milliseconds, -1 when unknown.",
		}),
		changes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_changes_total",
			Help:      "Distinct statuses published.",
		}),
	}
	c.current.Set(-1)

	for _, col := range []prometheus.Collector{c.probes, c.latency, c.skipped, c.online, c.poor, c.current, c.changes} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// ObserveProbe records a completed probe.
func (c *Collector) ObserveProbe(source string, latencyMs float64, err error) {
	if err != nil {
		c.probes.WithLabelValues(source, "failure").Inc()
		return
	}
	c.probes.WithLabelValues(source, "success").Inc()
	c.latency.WithLabelValues(source).Observe(latencyMs)
}

// ObserveSkippedTick records a dropped scheduler tick.
func (c *Collector) ObserveSkippedTick() {
	c.skipped.Inc()
}

// ObserveStatus updates the status gauges. It is meant to be registered as a
// status observer.
func (c *Collector) ObserveStatus(status models.NetworkStatus) {
	c.changes.Inc()
	c.online.Set(boolGauge(status.Online))
	c.poor.Set(boolGauge(status.PoorConnection))
	if ms, ok := status.LatencyMs(); ok {
		c.current.Set(ms)
	} else {
		c.current.Set(-1)
	}
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
