package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/evinjohnn/LinkedIn-Job-Stats/metric"
)

// pipelineMetrics holds the pipeline's Prometheus instruments. All record
// methods are nil-receiver safe so the pipeline runs unchanged without a
// registry.
type pipelineMetrics struct {
	received   prometheus.Counter
	accepted   prometheus.Counter
	dropped    *prometheus.CounterVec
	processing prometheus.Histogram
}

func newPipelineMetrics(registry *metric.Registry, name string) (*pipelineMetrics, error) {
	if registry == nil {
		return nil, nil
	}

	m := &pipelineMetrics{
		received: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "jobstats",
			Subsystem: "pipeline",
			Name:      "events_received_total",
			Help:      "Raw events handed to Ingest",
		}),
		accepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "jobstats",
			Subsystem: "pipeline",
			Name:      "events_accepted_total",
			Help:      "Events normalized, cached, and broadcast",
		}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jobstats",
			Subsystem: "pipeline",
			Name:      "events_dropped_total",
			Help:      "Events dropped before acceptance, by reason",
		}, []string{"reason"}),
		processing: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "jobstats",
			Subsystem: "pipeline",
			Name:      "processing_duration_seconds",
			Help:      "Normalize+cache+broadcast duration",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	for metricName, collector := range map[string]prometheus.Collector{
		"events_received_total":       m.received,
		"events_accepted_total":       m.accepted,
		"events_dropped_total":        m.dropped,
		"processing_duration_seconds": m.processing,
	} {
		if err := registry.Register(name, metricName, collector); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *pipelineMetrics) recordReceived() {
	if m == nil {
		return
	}
	m.received.Inc()
}

func (m *pipelineMetrics) recordAccepted() {
	if m == nil {
		return
	}
	m.accepted.Inc()
}

func (m *pipelineMetrics) recordDropped(reason string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(reason).Inc()
}

func (m *pipelineMetrics) recordProcessing(d time.Duration) {
	if m == nil {
		return
	}
	m.processing.Observe(d.Seconds())
}
