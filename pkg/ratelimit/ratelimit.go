// Package ratelimit provides a sliding-window admission gate. Unlike a token
// bucket, the gate enforces two independent constraints at an explicit
// caller-supplied instant: a cap on admissions within a rolling window, and a
// minimum gap between consecutive admissions.
package ratelimit

import (
	"sync"
	"sync/atomic"
	"time"
)

// Config controls the admission gate.
type Config struct {
	Window        time.Duration // Rolling window the admission cap applies to
	MaxAdmissions int           // Maximum admissions within Window
	MinInterval   time.Duration // Minimum gap between consecutive admissions
}

// DefaultConfig returns the gate settings used by the ingestion pipeline:
// at most 15 admissions per rolling minute, at least one second apart.
func DefaultConfig() Config {
	return Config{
		Window:        60 * time.Second,
		MaxAdmissions: 15,
		MinInterval:   time.Second,
	}
}

// Gate is a thread-safe sliding-window admission gate.
type Gate struct {
	mu     sync.Mutex
	cfg    Config
	window []time.Time // Admission instants, oldest first, never older than cfg.Window
	last   time.Time   // Last admission instant, zero until first admission

	// Atomic counters for observability
	admitted int64
	rejected int64
}

// New creates a gate from cfg, substituting defaults for zero fields.
func New(cfg Config) *Gate {
	def := DefaultConfig()
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.MaxAdmissions <= 0 {
		cfg.MaxAdmissions = def.MaxAdmissions
	}
	if cfg.MinInterval == 0 {
		cfg.MinInterval = def.MinInterval
	} else if cfg.MinInterval < 0 {
		// Negative disables the gap entirely.
		cfg.MinInterval = 0
	}
	return &Gate{
		cfg:    cfg,
		window: make([]time.Time, 0, cfg.MaxAdmissions),
	}
}

// Admit reports whether an event arriving at now may proceed. On admission
// the instant is recorded against the rolling window. Admit never blocks and
// never returns an error: rejection is a normal flow-control outcome.
func (g *Gate) Admit(now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.prune(now)

	if len(g.window) >= g.cfg.MaxAdmissions {
		atomic.AddInt64(&g.rejected, 1)
		return false
	}
	if !g.last.IsZero() && now.Sub(g.last) < g.cfg.MinInterval {
		atomic.AddInt64(&g.rejected, 1)
		return false
	}

	g.last = now
	g.window = append(g.window, now)
	atomic.AddInt64(&g.admitted, 1)
	return true
}

// prune drops window entries strictly older than cfg.Window relative to now.
// Caller must hold g.mu.
func (g *Gate) prune(now time.Time) {
	cutoff := now.Add(-g.cfg.Window)
	i := 0
	for i < len(g.window) && g.window[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		g.window = append(g.window[:0], g.window[i:]...)
	}
}

// Pending returns the number of admissions currently inside the rolling
// window, pruned relative to now.
func (g *Gate) Pending(now time.Time) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prune(now)
	return len(g.window)
}

// Admitted returns the total number of admissions since creation.
func (g *Gate) Admitted() int64 {
	return atomic.LoadInt64(&g.admitted)
}

// Rejected returns the total number of rejections since creation.
func (g *Gate) Rejected() int64 {
	return atomic.LoadInt64(&g.rejected)
}

// Reset clears all gate state.
func (g *Gate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.window = g.window[:0]
	g.last = time.Time{}
	atomic.StoreInt64(&g.admitted, 0)
	atomic.StoreInt64(&g.rejected, 0)
}
