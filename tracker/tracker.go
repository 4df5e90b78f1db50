// Package tracker follows the posting currently in focus and decides what a
// display collaborator should show for it: the cached record if fresh, a
// record recovered from broadcast history, or an explicit waiting signal
// until one arrives. Live broadcast notifications, a short debounce after a
// focus switch, and a slow poll all funnel into the same idempotent
// resolution step, so whichever trigger fires first wins and the rest
// become no-ops.
package tracker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/evinjohnn/LinkedIn-Job-Stats/broadcast"
	"github.com/evinjohnn/LinkedIn-Job-Stats/component"
	"github.com/evinjohnn/LinkedIn-Job-Stats/errors"
	"github.com/evinjohnn/LinkedIn-Job-Stats/metric"
	"github.com/evinjohnn/LinkedIn-Job-Stats/pkg/debounce"
	"github.com/evinjohnn/LinkedIn-Job-Stats/record"
	"github.com/evinjohnn/LinkedIn-Job-Stats/statscache"
)

// State is the tracker's position in the Idle/Pending/Resolved cycle.
type State int

const (
	// StateIdle means no posting is in focus.
	StateIdle State = iota
	// StatePending means a posting is in focus but no record is available yet.
	StatePending
	// StateResolved means the focused posting has a record on display.
	StateResolved
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePending:
		return "pending"
	case StateResolved:
		return "resolved"
	default:
		return "unknown"
	}
}

// Resolution sources for logs and metrics.
const (
	sourceCache   = "cache"
	sourceHistory = "history"
	sourceLive    = "live"
)

// Config holds tracker settings.
type Config struct {
	SwitchDebounce time.Duration `json:"switch_debounce"`
	PollInterval   time.Duration `json:"poll_interval"`
}

// DefaultConfig returns the tracker settings: a 300ms settle window after a
// focus switch and a 5s poll fallback while pending.
func DefaultConfig() Config {
	return Config{
		SwitchDebounce: 300 * time.Millisecond,
		PollInterval:   5 * time.Second,
	}
}

// UpdateHandler receives the record to display for the focused posting.
type UpdateHandler func(rec record.Record)

// WaitingHandler is notified when the focused posting has no record yet.
type WaitingHandler func()

// Tracker is the active-posting state machine.
type Tracker struct {
	name    string
	cfg     Config
	cache   *statscache.Cache
	hub     *broadcast.Broadcaster
	logger  *slog.Logger
	metrics *trackerMetrics
	now     func() time.Time

	mu        sync.Mutex
	state     State
	currentID string
	onUpdate  []UpdateHandler
	onWaiting []WaitingHandler

	retry *debounce.Debouncer[string]
	sub   *broadcast.Subscription

	lifecycleMu sync.Mutex
	running     bool
	startTime   time.Time
	shutdown    chan struct{}
	done        chan struct{}
}

// New creates a tracker over the shared cache and broadcaster. registry may
// be nil to run without Prometheus metrics.
func New(
	cfg Config,
	cache *statscache.Cache,
	hub *broadcast.Broadcaster,
	logger *slog.Logger,
	registry *metric.Registry,
) (*Tracker, error) {
	if cache == nil || hub == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Tracker", "New",
			"cache and broadcaster required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.SwitchDebounce <= 0 {
		cfg.SwitchDebounce = def.SwitchDebounce
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}

	metrics, err := newTrackerMetrics(registry, "tracker")
	if err != nil {
		logger.Error("Failed to initialize tracker metrics", "error", err)
		metrics = nil // continue without metrics
	}

	return &Tracker{
		name:    "tracker",
		cfg:     cfg,
		cache:   cache,
		hub:     hub,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
		state:   StateIdle,
		retry:   debounce.New[string](cfg.SwitchDebounce),
	}, nil
}

// Name identifies the component.
func (t *Tracker) Name() string {
	return t.name
}

// Initialize prepares the tracker (no-op; dependencies checked in New).
func (t *Tracker) Initialize() error {
	return nil
}

// Start subscribes to the broadcaster and starts the poll fallback. A
// stopped tracker can be started again.
func (t *Tracker) Start(ctx context.Context) error {
	t.lifecycleMu.Lock()
	defer t.lifecycleMu.Unlock()

	if t.running {
		return errors.WrapFatal(errors.ErrAlreadyStarted, "Tracker", "Start", "check running state")
	}

	// Stop consumed the previous debouncer and channels; every start gets
	// fresh ones so the poll loop and settle window work across restarts.
	t.mu.Lock()
	t.retry = debounce.New[string](t.cfg.SwitchDebounce)
	t.mu.Unlock()
	t.shutdown = make(chan struct{})
	t.done = make(chan struct{})

	t.sub = t.hub.Subscribe(t.onBroadcast)
	t.running = true
	t.startTime = t.now()

	go t.pollLoop(ctx, t.shutdown, t.done)

	t.logger.Info("active-entity tracker started",
		"component", t.name,
		"switch_debounce", t.cfg.SwitchDebounce,
		"poll_interval", t.cfg.PollInterval)
	return nil
}

// Stop unsubscribes, cancels pending retries, and waits for the poll loop.
func (t *Tracker) Stop(timeout time.Duration) error {
	t.lifecycleMu.Lock()
	defer t.lifecycleMu.Unlock()

	if !t.running {
		return nil
	}
	t.running = false

	t.sub.Unsubscribe()
	t.mu.Lock()
	retry := t.retry
	t.mu.Unlock()
	retry.Stop()
	close(t.shutdown)

	select {
	case <-t.done:
	case <-time.After(timeout):
		return errors.WrapTransient(errors.ErrConnectionTimeout, "Tracker", "Stop",
			"wait for poll loop")
	}

	t.logger.Info("active-entity tracker stopped", "component", t.name)
	return nil
}

// Signal reports a change of the posting in focus. An empty id means no
// posting is in focus and returns the tracker to Idle. Signaling the id
// already in focus is a no-op.
func (t *Tracker) Signal(entityID string) {
	t.mu.Lock()

	if entityID == "" {
		prev := t.currentID
		t.currentID = ""
		t.state = StateIdle
		retry := t.retry
		t.mu.Unlock()

		if prev != "" {
			retry.Cancel(prev)
		}
		t.metrics.recordState(StateIdle)
		t.logger.Debug("focus cleared", "component", t.name)
		return
	}

	if entityID == t.currentID && t.state != StateIdle {
		t.mu.Unlock()
		return
	}

	prev := t.currentID
	t.currentID = entityID
	t.state = StatePending
	retry := t.retry
	t.mu.Unlock()

	if prev != "" && prev != entityID {
		retry.Cancel(prev)
	}
	t.metrics.recordState(StatePending)
	t.logger.Debug("focus switched", "component", t.name, "entity_id", entityID)

	if t.resolve(entityID) {
		return
	}

	// No record yet: tell the display we are waiting and let the settle
	// window retry once the switch burst quiets down. The poll loop covers
	// anything both paths miss.
	t.emitWaiting()
	retry.Schedule(entityID, entityID, func(_ string, id string) {
		t.resolve(id)
	})
}

// resolve attempts to produce a record for entityID and reports success.
// It is the single transition used by every trigger path: focus switch,
// settle-window retry, poll tick, and live broadcast notification. A
// trigger for a posting no longer in focus is a no-op.
func (t *Tracker) resolve(entityID string) bool {
	now := t.now()

	t.mu.Lock()
	if entityID != t.currentID {
		t.mu.Unlock()
		return false
	}

	if entry, ok := t.cache.Get(entityID, now); ok && t.cache.Fresh(entry, now) {
		t.state = StateResolved
		t.mu.Unlock()
		t.metrics.recordState(StateResolved)
		t.metrics.recordResolution(sourceCache)
		t.emitUpdate(entry.Record)
		return true
	}

	if rec, ok := t.hub.FindByEntity(entityID); ok {
		// Re-populate the cache so the next focus switch hits it directly.
		t.cache.Put(entityID, rec, now)
		t.state = StateResolved
		t.mu.Unlock()
		t.metrics.recordState(StateResolved)
		t.metrics.recordResolution(sourceHistory)
		t.emitUpdate(rec)
		return true
	}

	t.mu.Unlock()
	return false
}

// onBroadcast receives every accepted record. A record for the posting in
// focus resolves the tracker immediately, ahead of the settle window and
// the poll: live updates take priority.
func (t *Tracker) onBroadcast(rec record.Record) {
	t.mu.Lock()
	if rec.EntityID != t.currentID || t.currentID == "" {
		t.mu.Unlock()
		return
	}
	wasPending := t.state == StatePending
	t.state = StateResolved
	retry := t.retry
	t.mu.Unlock()

	if wasPending {
		retry.Cancel(rec.EntityID)
		t.metrics.recordState(StateResolved)
		t.metrics.recordResolution(sourceLive)
	}
	t.emitUpdate(rec)
}

// pollLoop re-attempts resolution at a low frequency while pending. This is
// a fallback for timing races between the live path and the settle window,
// not the primary path. The channels belong to one Start/Stop cycle so a
// restart never touches a previous loop's signaling.
func (t *Tracker) pollLoop(ctx context.Context, shutdown, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(t.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-shutdown:
			return
		case <-ticker.C:
			t.mu.Lock()
			pending := t.state == StatePending
			id := t.currentID
			t.mu.Unlock()

			if pending && id != "" {
				t.resolve(id)
			}
		}
	}
}

// OnUpdate registers fn to receive the record to display whenever the
// focused posting resolves or refreshes.
func (t *Tracker) OnUpdate(fn UpdateHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onUpdate = append(t.onUpdate, fn)
}

// OnWaiting registers fn to be notified when the focused posting has no
// record yet.
func (t *Tracker) OnWaiting(fn WaitingHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onWaiting = append(t.onWaiting, fn)
}

// Current returns the focused posting id ("" when idle) and the state.
func (t *Tracker) Current() (string, State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.currentID, t.state
}

// Health returns the current health status of the tracker.
func (t *Tracker) Health() component.HealthStatus {
	t.lifecycleMu.Lock()
	running := t.running
	startTime := t.startTime
	t.lifecycleMu.Unlock()

	return component.HealthStatus{
		Healthy:   running,
		LastCheck: t.now(),
		Uptime:    t.now().Sub(startTime),
	}
}

// emitUpdate delivers rec to the display handlers with no locks held.
func (t *Tracker) emitUpdate(rec record.Record) {
	t.mu.Lock()
	handlers := make([]UpdateHandler, len(t.onUpdate))
	copy(handlers, t.onUpdate)
	t.mu.Unlock()

	for _, fn := range handlers {
		fn(rec)
	}
}

// emitWaiting notifies the display handlers that no record is available.
func (t *Tracker) emitWaiting() {
	t.mu.Lock()
	handlers := make([]WaitingHandler, len(t.onWaiting))
	copy(handlers, t.onWaiting)
	t.mu.Unlock()

	t.metrics.recordWaiting()
	for _, fn := range handlers {
		fn()
	}
}
