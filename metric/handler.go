package metric

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/evinjohnn/LinkedIn-Job-Stats/errors"
)

// Server exposes the metrics registry over HTTP alongside a health endpoint.
type Server struct {
	addr     string
	path     string
	server   *http.Server
	listener net.Listener
	registry *Registry
	logger   *slog.Logger
	mu       sync.Mutex // protects server and listener fields
}

// NewServer creates a metrics server for the provided registry. logger may
// be nil to use the default logger.
func NewServer(addr, path string, registry *Registry, logger *slog.Logger) *Server {
	if path == "" {
		path = "/metrics"
	}
	if addr == "" {
		addr = ":9090"
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		addr:     addr,
		path:     path,
		registry: registry,
		logger:   logger,
	}
}

// Name identifies the component.
func (s *Server) Name() string {
	return "metrics-server"
}

// Initialize validates the server's dependencies.
func (s *Server) Initialize() error {
	if s.registry == nil {
		return errors.WrapFatal(errors.ErrMissingConfig, "MetricsServer", "Initialize",
			"metrics registry not provided")
	}
	return nil
}

// Start binds the listener and serves until Stop. Serving happens on a
// background goroutine; Start returns once the listener is bound so the
// caller learns about port conflicts immediately.
func (s *Server) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "MetricsServer", "Start",
			"check running state")
	}

	mux := http.NewServeMux()
	mux.Handle(s.path, promhttp.HandlerFor(
		s.registry.PrometheusRegistry(),
		promhttp.HandlerOpts{
			EnableOpenMetrics: true,
		},
	))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return errors.WrapFatal(err, "MetricsServer", "Start",
			fmt.Sprintf("listen on %s", s.addr))
	}

	s.listener = listener
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	server := s.server
	go func() {
		if serveErr := server.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			s.logger.Error("metrics server stopped unexpectedly",
				"component", s.Name(), "error", serveErr)
		}
	}()

	return nil
}

// Stop shuts the server down gracefully within timeout.
func (s *Server) Stop(timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := s.server.Shutdown(ctx)
	s.server = nil
	s.listener = nil
	if err != nil {
		return errors.WrapTransient(err, "MetricsServer", "Stop", "graceful shutdown")
	}
	return nil
}

// Address returns the address metrics are served on.
func (s *Server) Address() string {
	return fmt.Sprintf("http://%s%s", s.addr, s.path)
}

// BoundAddr returns the actual listen address, useful when addr was ":0".
// Empty until Start succeeds.
func (s *Server) BoundAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}
