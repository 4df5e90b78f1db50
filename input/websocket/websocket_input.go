// Package websocket provides the WebSocket ingress for captured job
// statistics. External capture agents connect and push small JSON frames;
// the ingress validates frame shape, applies a per-connection read guard,
// and hands events to the pipeline. Entity extraction stays on the agent
// side: a frame without an entity id is dropped here.
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/evinjohnn/LinkedIn-Job-Stats/component"
	"github.com/evinjohnn/LinkedIn-Job-Stats/errors"
	"github.com/evinjohnn/LinkedIn-Job-Stats/metric"
)

// Frame types accepted from capture agents.
const (
	// FrameStats carries one captured statistics event.
	FrameStats = "stats"
	// FrameFocus reports the posting currently in focus on the agent side.
	// An empty entity id clears the focus.
	FrameFocus = "focus"
)

// Frame is the wire format pushed by capture agents. Type defaults to
// "stats" when omitted.
type Frame struct {
	Type     string         `json:"type,omitempty"`
	EntityID string         `json:"entity_id"`
	Payload  map[string]any `json:"payload,omitempty"`
}

// Sink receives captured statistics events.
type Sink interface {
	Ingest(entityID string, payload map[string]any)
}

// FocusSink receives focus-change notifications.
type FocusSink interface {
	Signal(entityID string)
}

// Drop reasons used in logs and metrics.
const (
	dropThrottled = "throttled"
	dropBadFrame  = "bad_frame"
	dropNoEntity  = "no_entity"
)

// Input is the WebSocket ingress component.
type Input struct {
	name   string
	cfg    Config
	sink   Sink
	focus  FocusSink // optional
	logger *slog.Logger

	upgrader   websocket.Upgrader
	httpServer *http.Server
	listener   net.Listener
	clients    map[string]*websocket.Conn
	clientsMu  sync.Mutex

	shutdown     chan struct{}
	shutdownOnce sync.Once
	started      atomic.Bool
	startTime    time.Time
	wg           sync.WaitGroup
	lifecycleMu  sync.Mutex

	framesReceived   int64
	framesDropped    int64
	connectionsTotal int64
	errorCount       atomic.Int64

	metrics *inputMetrics
}

var _ component.Lifecycle = (*Input)(nil)

// NewInput creates the ingress. focus may be nil when no tracker is wired.
// registry may be nil to run without Prometheus metrics.
func NewInput(
	cfg Config,
	sink Sink,
	focus FocusSink,
	logger *slog.Logger,
	registry *metric.Registry,
) (*Input, error) {
	if sink == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "websocket_input", "NewInput",
			"sink required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	metrics, err := newInputMetrics(registry, "websocket_input")
	if err != nil {
		logger.Error("Failed to initialize ingress metrics", "error", err)
		metrics = nil // continue without metrics
	}

	return &Input{
		name:   "websocket_input",
		cfg:    cfg,
		sink:   sink,
		focus:  focus,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(_ *http.Request) bool { return true },
		},
		clients:  make(map[string]*websocket.Conn),
		shutdown: make(chan struct{}),
		metrics:  metrics,
	}, nil
}

// Name identifies the component.
func (i *Input) Name() string {
	return i.name
}

// Initialize prepares the ingress (no-op; dependencies checked in NewInput).
func (i *Input) Initialize() error {
	return nil
}

// Start binds the listen address and begins accepting agent connections.
// Binding happens synchronously so a bad address fails Start, not a
// background goroutine.
func (i *Input) Start(ctx context.Context) error {
	i.lifecycleMu.Lock()
	defer i.lifecycleMu.Unlock()

	if i.started.Load() {
		return errors.WrapFatal(errors.ErrAlreadyStarted, "websocket_input", "Start",
			"check started state")
	}

	listener, err := net.Listen("tcp", i.cfg.Addr)
	if err != nil {
		return errors.WrapFatal(err, "websocket_input", "Start", "bind listen address")
	}
	i.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc(i.cfg.Path, func(w http.ResponseWriter, r *http.Request) {
		i.handleWebSocket(ctx, w, r)
	})
	i.httpServer = &http.Server{Handler: mux}

	i.wg.Add(1)
	go func() {
		defer i.wg.Done()
		if err := i.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			i.trackError()
			i.logger.Error("ingress server stopped unexpectedly",
				"component", i.name, "error", err)
		}
	}()

	i.startTime = time.Now()
	i.started.Store(true)

	i.logger.Info("websocket ingress started",
		"component", i.name,
		"addr", listener.Addr().String(),
		"path", i.cfg.Path)
	return nil
}

// Stop shuts the server down and closes all agent connections.
func (i *Input) Stop(timeout time.Duration) error {
	i.lifecycleMu.Lock()
	defer i.lifecycleMu.Unlock()

	if !i.started.Load() {
		return nil
	}

	i.shutdownOnce.Do(func() {
		close(i.shutdown)
	})

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := i.httpServer.Shutdown(ctx); err != nil {
		i.logger.Warn("ingress shutdown incomplete", "component", i.name, "error", err)
	}

	i.clientsMu.Lock()
	for _, conn := range i.clients {
		_ = conn.Close()
	}
	i.clients = make(map[string]*websocket.Conn)
	i.clientsMu.Unlock()

	done := make(chan struct{})
	go func() {
		i.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		return errors.WrapTransient(errors.ErrConnectionTimeout, "websocket_input", "Stop",
			"wait for connection handlers")
	}

	i.started.Store(false)
	i.logger.Info("websocket ingress stopped", "component", i.name)
	return nil
}

// Addr returns the bound listen address, useful when Addr was ":0".
func (i *Input) Addr() string {
	if i.listener == nil {
		return ""
	}
	return i.listener.Addr().String()
}

// Health returns the current health status of the ingress.
func (i *Input) Health() component.HealthStatus {
	started := i.started.Load()
	uptime := time.Duration(0)
	if started && !i.startTime.IsZero() {
		uptime = time.Since(i.startTime)
	}

	return component.HealthStatus{
		Healthy:    started,
		LastCheck:  time.Now(),
		ErrorCount: int(i.errorCount.Load()),
		Uptime:     uptime,
	}
}

// FramesReceived returns the total frames read from all connections.
func (i *Input) FramesReceived() int64 {
	return atomic.LoadInt64(&i.framesReceived)
}

// FramesDropped returns the total frames rejected before dispatch.
func (i *Input) FramesDropped() int64 {
	return atomic.LoadInt64(&i.framesDropped)
}

func (i *Input) handleWebSocket(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	conn, err := i.upgrader.Upgrade(w, r, nil)
	if err != nil {
		i.trackError()
		return
	}
	conn.SetReadLimit(i.cfg.ReadLimit)

	clientID := fmt.Sprintf("agent-%d", atomic.AddInt64(&i.connectionsTotal, 1))
	i.clientsMu.Lock()
	i.clients[clientID] = conn
	i.clientsMu.Unlock()
	i.metrics.recordConnect()

	i.logger.Debug("agent connected",
		"component", i.name,
		"client", clientID,
		"remote", conn.RemoteAddr().String())

	i.wg.Add(1)
	go i.readLoop(ctx, clientID, conn)
}

// readLoop reads frames from one agent connection until disconnect or
// shutdown. Each connection carries its own token-bucket guard; frames
// beyond the budget are dropped without closing the connection, since the
// pipeline's gate is the real admission policy and this guard only protects
// the process from a runaway agent.
func (i *Input) readLoop(ctx context.Context, clientID string, conn *websocket.Conn) {
	defer i.wg.Done()
	defer func() {
		_ = conn.Close()
		i.clientsMu.Lock()
		delete(i.clients, clientID)
		i.clientsMu.Unlock()
		i.metrics.recordDisconnect()
	}()

	limiter := rate.NewLimiter(rate.Limit(i.cfg.RatePerSecond), i.cfg.RateBurst)

	for {
		select {
		case <-i.shutdown:
			return
		case <-ctx.Done():
			return
		default:
			_ = conn.SetReadDeadline(time.Now().Add(i.cfg.ReadDeadline))

			_, message, err := conn.ReadMessage()
			if err != nil {
				if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
					continue // re-check shutdown
				}
				if websocket.IsUnexpectedCloseError(err,
					websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					i.trackError()
				}
				return
			}

			atomic.AddInt64(&i.framesReceived, 1)

			if !limiter.Allow() {
				i.drop(clientID, dropThrottled, nil)
				continue
			}

			var frame Frame
			if err := json.Unmarshal(message, &frame); err != nil {
				i.drop(clientID, dropBadFrame, err)
				continue
			}
			i.dispatch(clientID, frame)
		}
	}
}

// dispatch routes one decoded frame. Unknown frame types count as bad
// frames so a newer agent cannot silently feed garbage.
func (i *Input) dispatch(clientID string, frame Frame) {
	switch frame.Type {
	case FrameStats, "":
		if frame.EntityID == "" {
			i.drop(clientID, dropNoEntity, nil)
			return
		}
		i.metrics.recordFrame(FrameStats)
		i.sink.Ingest(frame.EntityID, frame.Payload)

	case FrameFocus:
		i.metrics.recordFrame(FrameFocus)
		if i.focus != nil {
			i.focus.Signal(frame.EntityID)
		}

	default:
		i.drop(clientID, dropBadFrame, fmt.Errorf("unknown frame type %q", frame.Type))
	}
}

func (i *Input) drop(clientID, reason string, err error) {
	atomic.AddInt64(&i.framesDropped, 1)
	i.metrics.recordDropped(reason)
	i.logger.Debug("frame dropped",
		"component", i.name,
		"client", clientID,
		"reason", reason,
		"error", err)
}

func (i *Input) trackError() {
	i.errorCount.Add(1)
}
