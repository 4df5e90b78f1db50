package tracker

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/evinjohnn/LinkedIn-Job-Stats/metric"
)

// trackerMetrics holds the tracker's Prometheus instruments. All record
// methods are nil-receiver safe so the tracker runs unchanged without a
// registry.
type trackerMetrics struct {
	state       prometheus.Gauge
	resolutions *prometheus.CounterVec
	waits       prometheus.Counter
}

func newTrackerMetrics(registry *metric.Registry, name string) (*trackerMetrics, error) {
	if registry == nil {
		return nil, nil
	}

	m := &trackerMetrics{
		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "jobstats",
			Subsystem: "tracker",
			Name:      "state",
			Help:      "Current tracker state (0=idle, 1=pending, 2=resolved)",
		}),
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jobstats",
			Subsystem: "tracker",
			Name:      "resolutions_total",
			Help:      "Focus resolutions by source",
		}, []string{"source"}),
		waits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "jobstats",
			Subsystem: "tracker",
			Name:      "waits_total",
			Help:      "Focus switches that found no record available",
		}),
	}

	for metricName, collector := range map[string]prometheus.Collector{
		"state":             m.state,
		"resolutions_total": m.resolutions,
		"waits_total":       m.waits,
	} {
		if err := registry.Register(name, metricName, collector); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *trackerMetrics) recordState(s State) {
	if m == nil {
		return
	}
	m.state.Set(float64(s))
}

func (m *trackerMetrics) recordResolution(source string) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(source).Inc()
}

func (m *trackerMetrics) recordWaiting() {
	if m == nil {
		return
	}
	m.waits.Inc()
}
