package websocket

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/evinjohnn/LinkedIn-Job-Stats/metric"
)

// inputMetrics holds the ingress Prometheus instruments. All record methods
// are nil-receiver safe so the ingress runs unchanged without a registry.
type inputMetrics struct {
	connectionsActive prometheus.Gauge
	connectionsTotal  prometheus.Counter
	frames            *prometheus.CounterVec
	dropped           *prometheus.CounterVec
}

func newInputMetrics(registry *metric.Registry, name string) (*inputMetrics, error) {
	if registry == nil {
		return nil, nil
	}

	m := &inputMetrics{
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "jobstats",
			Subsystem: "websocket_input",
			Name:      "connections_active",
			Help:      "Agent connections currently open",
		}),
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "jobstats",
			Subsystem: "websocket_input",
			Name:      "connections_total",
			Help:      "Agent connections accepted since start",
		}),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jobstats",
			Subsystem: "websocket_input",
			Name:      "frames_total",
			Help:      "Frames dispatched, by frame type",
		}, []string{"type"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jobstats",
			Subsystem: "websocket_input",
			Name:      "frames_dropped_total",
			Help:      "Frames rejected before dispatch, by reason",
		}, []string{"reason"}),
	}

	for metricName, collector := range map[string]prometheus.Collector{
		"connections_active":   m.connectionsActive,
		"connections_total":    m.connectionsTotal,
		"frames_total":         m.frames,
		"frames_dropped_total": m.dropped,
	} {
		if err := registry.Register(name, metricName, collector); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *inputMetrics) recordConnect() {
	if m == nil {
		return
	}
	m.connectionsActive.Inc()
	m.connectionsTotal.Inc()
}

func (m *inputMetrics) recordDisconnect() {
	if m == nil {
		return
	}
	m.connectionsActive.Dec()
}

func (m *inputMetrics) recordFrame(frameType string) {
	if m == nil {
		return
	}
	m.frames.WithLabelValues(frameType).Inc()
}

func (m *inputMetrics) recordDropped(reason string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(reason).Inc()
}
