// Package debounce provides a per-key delayed-task table with
// cancel-on-reschedule semantics. Scheduling a key that already has a
// pending task replaces the task and restarts the delay, so a burst of
// schedules for one key collapses into a single fire carrying the most
// recent value once the key has been quiet for the full delay.
package debounce

import (
	"sync"
	"sync/atomic"
	"time"
)

// task is one pending timer slot. The pointer identity of the slot is the
// cancellation token: a fire only proceeds if its slot is still the one
// registered for the key.
type task[T any] struct {
	timer *time.Timer
	value T
}

// Debouncer coalesces rapid repeated schedules per key into a single
// delayed fire. All methods are safe for concurrent use.
type Debouncer[T any] struct {
	mu      sync.Mutex
	delay   time.Duration
	pending map[string]*task[T]
	stopped bool

	fired    int64
	replaced int64
}

// New creates a debouncer that fires tasks after the given delay of
// quiescence per key.
func New[T any](delay time.Duration) *Debouncer[T] {
	if delay <= 0 {
		delay = time.Millisecond
	}
	return &Debouncer[T]{
		delay:   delay,
		pending: make(map[string]*task[T]),
	}
}

// Schedule registers value under key, replacing and cancelling any pending
// task for the same key. After the delay elapses without another Schedule
// for key, fn runs exactly once with the most recent value. fn runs on the
// timer goroutine with no locks held, so it may call back into the
// debouncer. Schedule reports whether a pending task for key was replaced,
// so callers can account for the discarded value.
func (d *Debouncer[T]) Schedule(key string, value T, fn func(key string, value T)) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return false
	}

	replaced := false
	if prev, ok := d.pending[key]; ok {
		prev.timer.Stop()
		atomic.AddInt64(&d.replaced, 1)
		replaced = true
	}

	t := &task[T]{value: value}
	t.timer = time.AfterFunc(d.delay, func() {
		d.fire(key, t, fn)
	})
	d.pending[key] = t
	return replaced
}

// fire runs when a task's delay elapses. The slot check makes a stopped
// timer that already fired concurrently with a reschedule a no-op.
func (d *Debouncer[T]) fire(key string, t *task[T], fn func(key string, value T)) {
	d.mu.Lock()
	current, ok := d.pending[key]
	if !ok || current != t || d.stopped {
		d.mu.Unlock()
		return
	}
	delete(d.pending, key)
	atomic.AddInt64(&d.fired, 1)
	d.mu.Unlock()

	fn(key, t.value)
}

// Cancel removes any pending task for key without firing it. It reports
// whether a task was pending.
func (d *Debouncer[T]) Cancel(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	t, ok := d.pending[key]
	if !ok {
		return false
	}
	t.timer.Stop()
	delete(d.pending, key)
	return true
}

// Stop cancels every pending task and rejects further schedules. Tasks
// whose timers already fired observe the stopped flag and do not run.
func (d *Debouncer[T]) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	for key, t := range d.pending {
		t.timer.Stop()
		delete(d.pending, key)
	}
}

// Len returns the number of keys with a pending task.
func (d *Debouncer[T]) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Fired returns the total number of tasks that have run.
func (d *Debouncer[T]) Fired() int64 {
	return atomic.LoadInt64(&d.fired)
}

// Replaced returns the total number of tasks cancelled by a reschedule of
// the same key.
func (d *Debouncer[T]) Replaced() int64 {
	return atomic.LoadInt64(&d.replaced)
}
