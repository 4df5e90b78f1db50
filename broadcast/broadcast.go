// Package broadcast provides the in-process publish/subscribe hub for
// accepted records. Delivery is synchronous and in subscription order; a
// bounded history of recent records across all postings answers
// "most recent record for posting X" without a per-posting index.
//
// The hub is constructed once at the composition point and injected into
// every component that publishes or subscribes. There is no package-level
// instance.
package broadcast

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/evinjohnn/LinkedIn-Job-Stats/pkg/ring"
	"github.com/evinjohnn/LinkedIn-Job-Stats/record"
)

// DefaultHistorySize is the number of accepted records retained across all
// postings.
const DefaultHistorySize = 50

// Handler receives each published record synchronously.
type Handler func(rec record.Record)

type subscriber struct {
	id string
	fn Handler
}

// Broadcaster fans accepted records out to subscribers and keeps a bounded
// history.
type Broadcaster struct {
	mu      sync.RWMutex
	subs    []subscriber
	history *ring.Ring[record.Record]
	logger  *slog.Logger

	published int64
	failures  int64
}

// New creates a broadcaster retaining historySize records. Non-positive
// historySize uses DefaultHistorySize. A nil logger falls back to the
// default slog logger.
func New(historySize int, logger *slog.Logger) *Broadcaster {
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		history: ring.New[record.Record](historySize),
		logger:  logger,
	}
}

// Subscription identifies one registered handler.
type Subscription struct {
	id string
	b  *Broadcaster
}

// Subscribe registers fn to receive every subsequently published record.
// Handlers run synchronously on the publisher's goroutine in subscription
// order.
func (b *Broadcaster) Subscribe(fn Handler) *Subscription {
	id := uuid.NewString()

	b.mu.Lock()
	b.subs = append(b.subs, subscriber{id: id, fn: fn})
	b.mu.Unlock()

	return &Subscription{id: id, b: b}
}

// Unsubscribe removes the handler. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if s == nil || s.b == nil {
		return
	}
	b := s.b

	b.mu.Lock()
	defer b.mu.Unlock()
	for i, sub := range b.subs {
		if sub.id == s.id {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// Publish appends rec to history, then notifies every subscriber in
// subscription order. A panicking handler is isolated: the panic is logged
// and remaining handlers still run. The subscriber list is snapshotted
// before delivery, so handlers may subscribe, unsubscribe, or publish
// without deadlocking.
func (b *Broadcaster) Publish(rec record.Record) {
	b.history.Append(rec)
	atomic.AddInt64(&b.published, 1)

	b.mu.RLock()
	subs := make([]subscriber, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, sub := range subs {
		b.notify(sub, rec)
	}
}

// notify delivers rec to a single subscriber, containing panics.
func (b *Broadcaster) notify(sub subscriber, rec record.Record) {
	defer func() {
		if r := recover(); r != nil {
			atomic.AddInt64(&b.failures, 1)
			b.logger.Error("subscriber handler panicked",
				"component", "broadcast",
				"subscription", sub.id,
				"entity_id", rec.EntityID,
				"panic", r)
		}
	}()
	sub.fn(rec)
}

// Latest returns the most recently published record.
func (b *Broadcaster) Latest() (record.Record, bool) {
	return b.history.Last()
}

// FindByEntity scans history newest to oldest and returns the first record
// for entityID. The linear scan is fine at the bounded history size.
func (b *Broadcaster) FindByEntity(entityID string) (record.Record, bool) {
	return b.history.FindNewest(func(r record.Record) bool {
		return r.EntityID == entityID
	})
}

// History returns a snapshot of retained records, oldest first.
func (b *Broadcaster) History() []record.Record {
	return b.history.Snapshot()
}

// SubscriberCount returns the number of registered handlers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Published returns the total number of published records.
func (b *Broadcaster) Published() int64 {
	return atomic.LoadInt64(&b.published)
}

// Failures returns the number of isolated subscriber panics.
func (b *Broadcaster) Failures() int64 {
	return atomic.LoadInt64(&b.failures)
}
