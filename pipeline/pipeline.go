// Package pipeline wires the ingestion path for captured job statistics:
// admission gate, per-posting coalescer, strict normalization, cache write,
// broadcast, and best-effort forward. Ingest is the sole inbound interface
// for the event source; everything downstream observes accepted records
// through the broadcaster.
package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/evinjohnn/LinkedIn-Job-Stats/broadcast"
	"github.com/evinjohnn/LinkedIn-Job-Stats/component"
	"github.com/evinjohnn/LinkedIn-Job-Stats/errors"
	"github.com/evinjohnn/LinkedIn-Job-Stats/metric"
	"github.com/evinjohnn/LinkedIn-Job-Stats/pkg/debounce"
	"github.com/evinjohnn/LinkedIn-Job-Stats/pkg/ratelimit"
	"github.com/evinjohnn/LinkedIn-Job-Stats/record"
	"github.com/evinjohnn/LinkedIn-Job-Stats/statscache"
)

// Drop reasons used in logs and metrics.
const (
	dropRateLimited   = "rate_limited"
	dropCoalesced     = "coalesced"
	dropMalformed     = "malformed"
	dropNotRunning    = "not_running"
	dropForwardFailed = "forward_failed"
)

// ingestSource labels events arriving through Ingest in the shared event
// counters.
const ingestSource = "ingress"

// Config holds pipeline settings.
type Config struct {
	DebounceDelay time.Duration    `json:"debounce_delay"`
	CacheTTL      time.Duration    `json:"cache_ttl"`
	HistorySize   int              `json:"history_size"`
	RateLimit     ratelimit.Config `json:"rate_limit"`
}

// DefaultConfig returns the pipeline settings: 100ms ingest coalescing,
// 5 minute cache freshness, 50 retained records, 15 admissions per minute
// at least a second apart.
func DefaultConfig() Config {
	return Config{
		DebounceDelay: 100 * time.Millisecond,
		CacheTTL:      statscache.DefaultTTL,
		HistorySize:   broadcast.DefaultHistorySize,
		RateLimit:     ratelimit.DefaultConfig(),
	}
}

// Forwarder is the optional persistence collaborator. Forward reports
// success for accounting; failures are never pipeline errors.
type Forwarder interface {
	Forward(ctx context.Context, rec record.Record) bool
}

// Pipeline is the ingestion pipeline component.
type Pipeline struct {
	name      string
	cfg       Config
	gate      *ratelimit.Gate
	coalescer *debounce.Debouncer[map[string]any]
	cache     *statscache.Cache
	hub       *broadcast.Broadcaster
	forwarder Forwarder // optional
	logger    *slog.Logger
	metrics   *pipelineMetrics
	core      *metric.Metrics // shared event accounting; nil-safe
	now       func() time.Time

	lifecycleMu sync.Mutex
	mu          sync.RWMutex
	running     bool
	startTime   time.Time

	// Atomic counters for the health surface
	received int64
	accepted int64
	dropped  int64
	errCount int64
}

// New creates a pipeline around an injected cache and broadcaster. The
// broadcaster is owned by the composition point and shared with the
// tracker; the pipeline only publishes to it. forwarder may be nil.
// registry may be nil to run without Prometheus metrics.
func New(
	cfg Config,
	cache *statscache.Cache,
	hub *broadcast.Broadcaster,
	forwarder Forwarder,
	logger *slog.Logger,
	registry *metric.Registry,
) (*Pipeline, error) {
	if cache == nil || hub == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Pipeline", "New",
			"cache and broadcaster required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DebounceDelay <= 0 {
		cfg.DebounceDelay = DefaultConfig().DebounceDelay
	}

	metrics, err := newPipelineMetrics(registry, "pipeline")
	if err != nil {
		logger.Error("Failed to initialize pipeline metrics", "error", err)
		metrics = nil // continue without metrics
	}

	var core *metric.Metrics
	if registry != nil {
		core = registry.CoreMetrics()
	}

	return &Pipeline{
		name:      "pipeline",
		cfg:       cfg,
		gate:      ratelimit.New(cfg.RateLimit),
		coalescer: debounce.New[map[string]any](cfg.DebounceDelay),
		cache:     cache,
		hub:       hub,
		forwarder: forwarder,
		logger:    logger,
		metrics:   metrics,
		core:      core,
		now:       time.Now,
	}, nil
}

// Name identifies the component.
func (p *Pipeline) Name() string {
	return p.name
}

// Initialize prepares the pipeline (no-op; dependencies checked in New).
func (p *Pipeline) Initialize() error {
	return nil
}

// Start marks the pipeline ready to accept events.
func (p *Pipeline) Start(_ context.Context) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return errors.WrapFatal(errors.ErrAlreadyStarted, "Pipeline", "Start", "check running state")
	}
	p.running = true
	p.startTime = p.now()

	p.logger.Info("ingestion pipeline started",
		"component", p.name,
		"debounce_delay", p.cfg.DebounceDelay,
		"cache_ttl", p.cache.TTL(),
		"history_size", p.cfg.HistorySize)
	return nil
}

// Stop stops accepting events and cancels pending coalescer tasks so no
// timer fires into a torn-down pipeline.
func (p *Pipeline) Stop(_ time.Duration) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.mu.Unlock()

	p.coalescer.Stop()
	p.logger.Info("ingestion pipeline stopped", "component", p.name)
	return nil
}

// Ingest accepts one raw captured event for entityID. It never blocks and
// never returns an error: rate-limited, coalesced-away, and malformed
// events are dropped and accounted. Entity extraction is the event
// source's job; payload validation happens here after coalescing.
func (p *Pipeline) Ingest(entityID string, payload map[string]any) {
	atomic.AddInt64(&p.received, 1)
	p.metrics.recordReceived()
	p.core.RecordEventReceived(p.name, ingestSource)

	p.mu.RLock()
	running := p.running
	p.mu.RUnlock()
	if !running {
		p.drop(entityID, dropNotRunning, nil)
		return
	}

	if !p.gate.Admit(p.now()) {
		p.drop(entityID, dropRateLimited, nil)
		return
	}

	// Replacing a pending task for the same posting discards the older
	// payload; only the newest survives the quiet window. The discarded
	// event counts as a drop.
	if p.coalescer.Schedule(entityID, payload, p.process) {
		p.drop(entityID, dropCoalesced, nil)
	}
}

// process runs once per posting per quiet window, on the coalescer's timer
// goroutine.
func (p *Pipeline) process(entityID string, payload map[string]any) {
	start := p.now()

	rec, err := record.Parse(entityID, payload, start)
	if err != nil {
		atomic.AddInt64(&p.errCount, 1)
		p.core.RecordError(p.name, "parse")
		p.drop(entityID, dropMalformed, err)
		return
	}

	p.cache.Put(rec.EntityID, rec, start)
	p.hub.Publish(rec)

	atomic.AddInt64(&p.accepted, 1)
	p.metrics.recordAccepted()
	p.core.RecordEventAccepted(p.name)

	if p.forwarder != nil {
		if !p.forwarder.Forward(context.Background(), rec) {
			p.metrics.recordDropped(dropForwardFailed)
			p.core.RecordEventDropped(p.name, dropForwardFailed)
		}
	}

	p.metrics.recordProcessing(p.now().Sub(start))
	p.core.RecordProcessingDuration(p.name, "process", p.now().Sub(start))

	p.logger.Debug("record accepted",
		"component", p.name,
		"entity_id", rec.EntityID,
		"views", rec.Views,
		"applies", rec.Applies)
}

// drop accounts for a discarded event. Drops are normal flow control and
// log at debug level only.
func (p *Pipeline) drop(entityID, reason string, err error) {
	atomic.AddInt64(&p.dropped, 1)
	p.metrics.recordDropped(reason)
	p.core.RecordEventDropped(p.name, reason)
	p.logger.Debug("event dropped",
		"component", p.name,
		"entity_id", entityID,
		"reason", reason,
		"error", err)
}

// OnUpdate registers fn for every accepted record. It is the display
// collaborator's outbound interface and delegates to the shared
// broadcaster.
func (p *Pipeline) OnUpdate(fn broadcast.Handler) *broadcast.Subscription {
	return p.hub.Subscribe(fn)
}

// Cache exposes the stats cache for read-side collaborators.
func (p *Pipeline) Cache() *statscache.Cache {
	return p.cache
}

// Broadcaster exposes the shared broadcaster.
func (p *Pipeline) Broadcaster() *broadcast.Broadcaster {
	return p.hub
}

// Health returns the current health status of the pipeline.
func (p *Pipeline) Health() component.HealthStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return component.HealthStatus{
		Healthy:    p.running,
		LastCheck:  p.now(),
		ErrorCount: int(atomic.LoadInt64(&p.errCount)),
		Uptime:     p.now().Sub(p.startTime),
	}
}

// Received returns the total number of events handed to Ingest.
func (p *Pipeline) Received() int64 {
	return atomic.LoadInt64(&p.received)
}

// Accepted returns the number of events that reached cache and broadcast.
func (p *Pipeline) Accepted() int64 {
	return atomic.LoadInt64(&p.accepted)
}

// Dropped returns the number of events dropped before acceptance.
func (p *Pipeline) Dropped() int64 {
	return atomic.LoadInt64(&p.dropped)
}
