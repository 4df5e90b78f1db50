package statscache

import (
	"sync"
	"sync/atomic"
)

// Statistics tracks cache behavior. Counters are atomic for cheap
// lock-free updates from the read path.
type Statistics struct {
	hits      int64
	misses    int64
	staleHits int64
	sets      int64
	deletes   int64

	mu          sync.RWMutex
	currentSize int64
	maxSize     int64
}

// NewStatistics creates a statistics tracker.
func NewStatistics() *Statistics {
	return &Statistics{}
}

// Hit records a lookup that found an entry (fresh or stale).
func (s *Statistics) Hit() {
	atomic.AddInt64(&s.hits, 1)
}

// Miss records a lookup that found nothing.
func (s *Statistics) Miss() {
	atomic.AddInt64(&s.misses, 1)
}

// StaleHit records a lookup that found an entry past its TTL.
func (s *Statistics) StaleHit() {
	atomic.AddInt64(&s.staleHits, 1)
}

// Set records a write.
func (s *Statistics) Set() {
	atomic.AddInt64(&s.sets, 1)
}

// Delete records a removal.
func (s *Statistics) Delete() {
	atomic.AddInt64(&s.deletes, 1)
}

// UpdateSize updates the current entry count.
func (s *Statistics) UpdateSize(size int64) {
	s.mu.Lock()
	s.currentSize = size
	if size > s.maxSize {
		s.maxSize = size
	}
	s.mu.Unlock()
}

// Hits returns the total number of hits.
func (s *Statistics) Hits() int64 {
	return atomic.LoadInt64(&s.hits)
}

// Misses returns the total number of misses.
func (s *Statistics) Misses() int64 {
	return atomic.LoadInt64(&s.misses)
}

// StaleHits returns the number of hits on entries past their TTL.
func (s *Statistics) StaleHits() int64 {
	return atomic.LoadInt64(&s.staleHits)
}

// Sets returns the total number of writes.
func (s *Statistics) Sets() int64 {
	return atomic.LoadInt64(&s.sets)
}

// Deletes returns the total number of removals.
func (s *Statistics) Deletes() int64 {
	return atomic.LoadInt64(&s.deletes)
}

// CurrentSize returns the current entry count.
func (s *Statistics) CurrentSize() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentSize
}

// MaxSize returns the largest entry count observed.
func (s *Statistics) MaxSize() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxSize
}

// HitRatio returns hits / (hits + misses), or 0 with no lookups.
func (s *Statistics) HitRatio() float64 {
	hits := s.Hits()
	total := hits + s.Misses()
	if total == 0 {
		return 0.0
	}
	return float64(hits) / float64(total)
}
