// Package metric owns the Prometheus registry, the platform-level metrics
// shared across components, and the HTTP server that exposes them.
package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Service status values reported through RecordServiceStatus.
const (
	StatusStopped  = 0
	StatusStarting = 1
	StatusRunning  = 2
	StatusStopping = 3
	StatusFailed   = 4
)

// Metrics contains platform-level metrics (not component-specific)
type Metrics struct {
	// Pipeline metrics
	ServiceStatus      *prometheus.GaugeVec
	EventsReceived     *prometheus.CounterVec
	EventsAccepted     *prometheus.CounterVec
	EventsDropped      *prometheus.CounterVec
	ProcessingDuration *prometheus.HistogramVec
	ErrorsTotal        *prometheus.CounterVec

	// NATS metrics
	NATSConnected  prometheus.Gauge
	NATSReconnects prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all platform metrics
func NewMetrics() *Metrics {
	return &Metrics{
		ServiceStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "jobstats",
				Subsystem: "service",
				Name:      "status",
				Help:      "Service status (0=stopped, 1=starting, 2=running, 3=stopping, 4=failed)",
			},
			[]string{"service"},
		),

		EventsReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "jobstats",
				Subsystem: "events",
				Name:      "received_total",
				Help:      "Total number of raw events received",
			},
			[]string{"service", "source"},
		),

		EventsAccepted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "jobstats",
				Subsystem: "events",
				Name:      "accepted_total",
				Help:      "Total number of events accepted into cache and broadcast",
			},
			[]string{"service"},
		),

		EventsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "jobstats",
				Subsystem: "events",
				Name:      "dropped_total",
				Help:      "Total number of events dropped, by reason",
			},
			[]string{"service", "reason"},
		),

		ProcessingDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "jobstats",
				Subsystem: "processing",
				Name:      "duration_seconds",
				Help:      "Event processing duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"service", "operation"},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "jobstats",
				Subsystem: "errors",
				Name:      "total",
				Help:      "Total number of errors",
			},
			[]string{"service", "type"},
		),

		NATSConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "jobstats",
				Subsystem: "nats",
				Name:      "connected",
				Help:      "NATS connection status (0=disconnected, 1=connected)",
			},
		),

		NATSReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "jobstats",
				Subsystem: "nats",
				Name:      "reconnects_total",
				Help:      "Total number of NATS reconnections",
			},
		),
	}
}

// RecordServiceStatus updates service status metric
func (c *Metrics) RecordServiceStatus(service string, status int) {
	if c == nil {
		return
	}
	c.ServiceStatus.WithLabelValues(service).Set(float64(status))
}

// RecordEventReceived increments the received event counter
func (c *Metrics) RecordEventReceived(service, source string) {
	if c == nil {
		return
	}
	c.EventsReceived.WithLabelValues(service, source).Inc()
}

// RecordEventAccepted increments the accepted event counter
func (c *Metrics) RecordEventAccepted(service string) {
	if c == nil {
		return
	}
	c.EventsAccepted.WithLabelValues(service).Inc()
}

// RecordEventDropped increments the dropped event counter for a reason
// (rate_limited, coalesced, malformed, forward_failed)
func (c *Metrics) RecordEventDropped(service, reason string) {
	if c == nil {
		return
	}
	c.EventsDropped.WithLabelValues(service, reason).Inc()
}

// RecordProcessingDuration records processing time
func (c *Metrics) RecordProcessingDuration(service, operation string, duration time.Duration) {
	if c == nil {
		return
	}
	c.ProcessingDuration.WithLabelValues(service, operation).Observe(duration.Seconds())
}

// RecordError increments the error counter
func (c *Metrics) RecordError(service, errorType string) {
	if c == nil {
		return
	}
	c.ErrorsTotal.WithLabelValues(service, errorType).Inc()
}

// RecordNATSStatus updates NATS connection status
func (c *Metrics) RecordNATSStatus(connected bool) {
	if c == nil {
		return
	}
	value := 0.0
	if connected {
		value = 1.0
	}
	c.NATSConnected.Set(value)
}

// RecordNATSReconnect increments the reconnection counter
func (c *Metrics) RecordNATSReconnect() {
	if c == nil {
		return
	}
	c.NATSReconnects.Inc()
}
