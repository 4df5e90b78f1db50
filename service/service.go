// Package service composes the components into a runnable whole: one cache
// and one broadcaster constructed here and injected everywhere, the
// pipeline, the tracker, the WebSocket ingress, the optional NATS
// forwarder, and the metrics endpoint. Components start in dependency
// order and stop in reverse.
package service

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/evinjohnn/LinkedIn-Job-Stats/broadcast"
	"github.com/evinjohnn/LinkedIn-Job-Stats/component"
	"github.com/evinjohnn/LinkedIn-Job-Stats/config"
	"github.com/evinjohnn/LinkedIn-Job-Stats/errors"
	"github.com/evinjohnn/LinkedIn-Job-Stats/forward"
	wsinput "github.com/evinjohnn/LinkedIn-Job-Stats/input/websocket"
	"github.com/evinjohnn/LinkedIn-Job-Stats/metric"
	"github.com/evinjohnn/LinkedIn-Job-Stats/natsclient"
	"github.com/evinjohnn/LinkedIn-Job-Stats/pipeline"
	"github.com/evinjohnn/LinkedIn-Job-Stats/statscache"
	"github.com/evinjohnn/LinkedIn-Job-Stats/tracker"
)

// StopTimeout bounds each component's shutdown.
const StopTimeout = 10 * time.Second

// healthInterval is how often the running service logs component health.
const healthInterval = 30 * time.Second

// Service owns the component graph.
type Service struct {
	cfg    *config.Config
	logger *slog.Logger

	registry *metric.Registry
	cache    *statscache.Cache
	hub      *broadcast.Broadcaster

	natsClient    *natsclient.Client // nil when forwarding is disabled
	pipeline      *pipeline.Pipeline
	tracker       *tracker.Tracker
	ingress       *wsinput.Input
	metricsServer *metric.Server // nil when metrics are disabled

	// Start order; Stop walks it backwards.
	components []component.Lifecycle

	statesMu sync.Mutex
	states   map[string]component.State

	started atomic.Bool
}

// serviceName labels the service in the status gauge.
const serviceName = "jobstats"

// New wires the component graph from cfg. Nothing is started.
func New(cfg *config.Config, logger *slog.Logger) (*Service, error) {
	if cfg == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Service", "New", "config required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	registry := metric.NewRegistry()
	cache := statscache.New(cfg.Pipeline.CacheTTL)
	hub := broadcast.New(cfg.Pipeline.HistorySize, logger)

	var natsClient *natsclient.Client
	var forwarder pipeline.Forwarder
	if cfg.NATS.Enabled {
		natsClient = natsclient.New(cfg.NATS.Client, logger, registry.CoreMetrics())
		forwarder = forward.New(natsClient, forward.DefaultSubjectPrefix, logger)
	}

	pipe, err := pipeline.New(cfg.Pipeline, cache, hub, forwarder, logger, registry)
	if err != nil {
		return nil, err
	}

	track, err := tracker.New(cfg.Tracker, cache, hub, logger, registry)
	if err != nil {
		return nil, err
	}

	ingress, err := wsinput.NewInput(cfg.Ingress, pipe, track, logger, registry)
	if err != nil {
		return nil, err
	}

	svc := &Service{
		cfg:        cfg,
		logger:     logger,
		registry:   registry,
		cache:      cache,
		hub:        hub,
		natsClient: natsClient,
		pipeline:   pipe,
		tracker:    track,
		ingress:    ingress,
	}

	// The ingress starts last so no frame arrives before the pipeline and
	// tracker are ready.
	svc.components = []component.Lifecycle{pipe, track, ingress}
	if cfg.Metrics.Enabled {
		svc.metricsServer = metric.NewServer(cfg.Metrics.Addr, cfg.Metrics.Path, registry, logger)
		svc.components = append([]component.Lifecycle{svc.metricsServer}, svc.components...)
	}

	svc.states = make(map[string]component.State, len(svc.components))
	for _, c := range svc.components {
		svc.states[c.Name()] = component.StateCreated
	}

	return svc, nil
}

// setState records a component's lifecycle transition.
func (s *Service) setState(name string, state component.State) {
	s.statesMu.Lock()
	s.states[name] = state
	s.statesMu.Unlock()
}

// ComponentStates returns a snapshot of every component's lifecycle state.
func (s *Service) ComponentStates() map[string]component.State {
	s.statesMu.Lock()
	defer s.statesMu.Unlock()

	states := make(map[string]component.State, len(s.states))
	for name, state := range s.states {
		states[name] = state
	}
	return states
}

// Start connects the forwarder and brings components up in order. A
// component failure rolls back the ones already started.
func (s *Service) Start(ctx context.Context) error {
	if s.started.Load() {
		return errors.WrapFatal(errors.ErrAlreadyStarted, "Service", "Start", "check started state")
	}

	s.registry.CoreMetrics().RecordServiceStatus(serviceName, metric.StatusStarting)

	if s.natsClient != nil {
		// Forwarding is best effort: a broker that is down at boot must not
		// keep the service from ingesting.
		if err := s.natsClient.Connect(ctx); err != nil {
			s.logger.Warn("stats forwarding unavailable",
				"component", "service", "error", err)
		}
	}

	for idx, c := range s.components {
		if err := c.Initialize(); err != nil {
			s.setState(c.Name(), component.StateFailed)
			s.stopComponents(idx - 1)
			s.registry.CoreMetrics().RecordServiceStatus(serviceName, metric.StatusFailed)
			return err
		}
		s.setState(c.Name(), component.StateInitialized)

		if err := c.Start(ctx); err != nil {
			s.setState(c.Name(), component.StateFailed)
			s.stopComponents(idx - 1)
			s.registry.CoreMetrics().RecordServiceStatus(serviceName, metric.StatusFailed)
			return err
		}
		s.setState(c.Name(), component.StateStarted)
		s.logger.Info("component started", "component", c.Name())
	}

	s.started.Store(true)
	s.registry.CoreMetrics().RecordServiceStatus(serviceName, metric.StatusRunning)
	return nil
}

// Stop brings components down in reverse start order and closes the NATS
// connection last. The first component error is returned; later components
// still get their Stop call.
func (s *Service) Stop() error {
	if !s.started.Load() {
		return nil
	}
	s.started.Store(false)
	s.registry.CoreMetrics().RecordServiceStatus(serviceName, metric.StatusStopping)

	err := s.stopComponents(len(s.components) - 1)

	if s.natsClient != nil {
		s.natsClient.Close(context.Background())
	}
	s.registry.CoreMetrics().RecordServiceStatus(serviceName, metric.StatusStopped)
	return err
}

func (s *Service) stopComponents(from int) error {
	var firstErr error
	for idx := from; idx >= 0; idx-- {
		c := s.components[idx]
		if err := c.Stop(StopTimeout); err != nil {
			s.setState(c.Name(), component.StateFailed)
			s.logger.Error("component stop failed", "component", c.Name(), "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		s.setState(c.Name(), component.StateStopped)
		s.logger.Info("component stopped", "component", c.Name())
	}
	return firstErr
}

// Run starts the service and blocks until ctx is canceled, then stops it.
func (s *Service) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.healthLoop(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})
	_ = g.Wait()

	return s.Stop()
}

// healthLoop periodically logs the health of every reporting component.
func (s *Service) healthLoop(ctx context.Context) {
	ticker := time.NewTicker(healthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for name, status := range s.Health() {
				if status.Healthy {
					continue
				}
				s.logger.Warn("component unhealthy",
					"component", name,
					"errors", status.ErrorCount)
			}
		}
	}
}

// Health returns the health of every component that reports it.
func (s *Service) Health() map[string]component.HealthStatus {
	health := make(map[string]component.HealthStatus)
	for _, c := range s.components {
		if reporter, ok := c.(component.HealthReporter); ok {
			health[c.Name()] = reporter.Health()
		}
	}
	return health
}

// Pipeline exposes the ingestion pipeline.
func (s *Service) Pipeline() *pipeline.Pipeline {
	return s.pipeline
}

// Tracker exposes the active-posting tracker.
func (s *Service) Tracker() *tracker.Tracker {
	return s.tracker
}

// Ingress exposes the WebSocket ingress.
func (s *Service) Ingress() *wsinput.Input {
	return s.ingress
}

// Cache exposes the shared stats cache.
func (s *Service) Cache() *statscache.Cache {
	return s.cache
}

// Broadcaster exposes the shared broadcaster.
func (s *Service) Broadcaster() *broadcast.Broadcaster {
	return s.hub
}
