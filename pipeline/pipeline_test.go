package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evinjohnn/LinkedIn-Job-Stats/broadcast"
	"github.com/evinjohnn/LinkedIn-Job-Stats/metric"
	"github.com/evinjohnn/LinkedIn-Job-Stats/pkg/ratelimit"
	"github.com/evinjohnn/LinkedIn-Job-Stats/record"
	"github.com/evinjohnn/LinkedIn-Job-Stats/statscache"
)

// testConfig compresses time and opens the gate wide so flow tests exercise
// the pipeline, not the limiter.
func testConfig() Config {
	return Config{
		DebounceDelay: 10 * time.Millisecond,
		CacheTTL:      statscache.DefaultTTL,
		HistorySize:   50,
		RateLimit: ratelimit.Config{
			Window:        time.Minute,
			MaxAdmissions: 1000,
			MinInterval:   -1,
		},
	}
}

type collector struct {
	mu   sync.Mutex
	recs []record.Record
}

func (c *collector) handler(r record.Record) {
	c.mu.Lock()
	c.recs = append(c.recs, r)
	c.mu.Unlock()
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.recs)
}

func (c *collector) last() record.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recs[len(c.recs)-1]
}

func newTestPipeline(t *testing.T, cfg Config, fwd Forwarder) (*Pipeline, *statscache.Cache, *broadcast.Broadcaster) {
	t.Helper()

	cache := statscache.New(cfg.CacheTTL)
	hub := broadcast.New(cfg.HistorySize, nil)
	p, err := New(cfg, cache, hub, fwd, nil, nil)
	require.NoError(t, err)
	require.NoError(t, p.Initialize())
	require.NoError(t, p.Start(context.Background()))
	t.Cleanup(func() { _ = p.Stop(time.Second) })
	return p, cache, hub
}

func TestAcceptedEventReachesCacheHistoryAndSubscribers(t *testing.T) {
	p, cache, hub := newTestPipeline(t, testConfig(), nil)

	got := &collector{}
	p.OnUpdate(got.handler)

	p.Ingest("J1", map[string]any{"data": map[string]any{"views": 10.0, "applies": 2.0}})

	require.Eventually(t, func() bool { return got.count() == 1 }, time.Second, 2*time.Millisecond)

	rec := got.last()
	assert.Equal(t, "J1", rec.EntityID)
	require.NotNil(t, rec.Views)
	require.NotNil(t, rec.Applies)
	assert.Equal(t, 10.0, *rec.Views)
	assert.Equal(t, 2.0, *rec.Applies)

	entry, ok := cache.Get("J1", time.Now())
	require.True(t, ok)
	assert.Equal(t, rec, entry.Record)

	fromHistory, ok := hub.FindByEntity("J1")
	require.True(t, ok)
	assert.Equal(t, rec, fromHistory)

	assert.Equal(t, int64(1), p.Accepted())
}

func TestMetriclessPayloadIsDiscarded(t *testing.T) {
	p, cache, _ := newTestPipeline(t, testConfig(), nil)

	got := &collector{}
	p.OnUpdate(got.handler)

	p.Ingest("J2", map[string]any{"data": map[string]any{}})

	// Give the coalescer time to fire and reject.
	require.Eventually(t, func() bool { return p.Dropped() == 1 }, time.Second, 2*time.Millisecond)

	_, ok := cache.Get("J2", time.Now())
	assert.False(t, ok)
	assert.Equal(t, 0, got.count())
	assert.Equal(t, int64(0), p.Accepted())
}

func TestBurstCoalescesToSinglePublish(t *testing.T) {
	p, _, _ := newTestPipeline(t, testConfig(), nil)

	got := &collector{}
	p.OnUpdate(got.handler)

	p.Ingest("J1", map[string]any{"views": 1.0})
	p.Ingest("J1", map[string]any{"views": 2.0})
	p.Ingest("J1", map[string]any{"views": 3.0})

	require.Eventually(t, func() bool { return got.count() == 1 }, time.Second, 2*time.Millisecond)
	time.Sleep(30 * time.Millisecond) // no second fire

	assert.Equal(t, 1, got.count())
	assert.Equal(t, 3.0, *got.last().Views)
	assert.Equal(t, int64(1), p.Accepted())
	// The two replaced payloads count as coalesced-away drops.
	assert.Equal(t, int64(2), p.Dropped())
}

func TestDistinctEntitiesDoNotCoalesce(t *testing.T) {
	p, _, _ := newTestPipeline(t, testConfig(), nil)

	got := &collector{}
	p.OnUpdate(got.handler)

	p.Ingest("J1", map[string]any{"views": 1.0})
	p.Ingest("J2", map[string]any{"views": 2.0})

	require.Eventually(t, func() bool { return got.count() == 2 }, time.Second, 2*time.Millisecond)
}

func TestRateLimitedEventIsDropped(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.MinInterval = time.Second
	p, _, _ := newTestPipeline(t, cfg, nil)

	p.Ingest("J1", map[string]any{"views": 1.0})
	p.Ingest("J1", map[string]any{"views": 2.0}) // within the 1s gap

	require.Eventually(t, func() bool { return p.Accepted() == 1 }, time.Second, 2*time.Millisecond)
	assert.Equal(t, int64(1), p.Dropped())
	// The admitted (first) payload is the one that survives.
	entry, ok := p.Cache().Get("J1", time.Now())
	require.True(t, ok)
	assert.Equal(t, 1.0, *entry.Record.Views)
}

func TestIngestBeforeStartIsDropped(t *testing.T) {
	cache := statscache.New(0)
	hub := broadcast.New(0, nil)
	p, err := New(testConfig(), cache, hub, nil, nil, nil)
	require.NoError(t, err)

	p.Ingest("J1", map[string]any{"views": 1.0})

	assert.Equal(t, int64(1), p.Dropped())
	assert.Equal(t, int64(0), p.Accepted())
}

type failingForwarder struct{ calls int64 }

func (f *failingForwarder) Forward(context.Context, record.Record) bool {
	f.calls++
	return false
}

func TestForwardFailureDoesNotAffectAcceptance(t *testing.T) {
	fwd := &failingForwarder{}
	p, cache, _ := newTestPipeline(t, testConfig(), fwd)

	p.Ingest("J1", map[string]any{"views": 1.0})

	require.Eventually(t, func() bool { return p.Accepted() == 1 }, time.Second, 2*time.Millisecond)
	assert.EqualValues(t, 1, fwd.calls)
	_, ok := cache.Get("J1", time.Now())
	assert.True(t, ok)
}

func TestSharedEventCountersTrackFlow(t *testing.T) {
	cfg := testConfig()
	cache := statscache.New(cfg.CacheTTL)
	hub := broadcast.New(cfg.HistorySize, nil)
	registry := metric.NewRegistry()

	p, err := New(cfg, cache, hub, nil, nil, registry)
	require.NoError(t, err)
	require.NoError(t, p.Initialize())
	require.NoError(t, p.Start(context.Background()))
	t.Cleanup(func() { _ = p.Stop(time.Second) })

	p.Ingest("J1", map[string]any{"views": 1.0})
	p.Ingest("J1", map[string]any{"views": 2.0})

	core := registry.CoreMetrics()
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(core.EventsAccepted) == 1.0
	}, time.Second, 2*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(core.EventsReceived))
	assert.Equal(t, 1.0,
		testutil.ToFloat64(core.EventsDropped.WithLabelValues("pipeline", dropCoalesced)))
}

func TestStopCancelsPendingWork(t *testing.T) {
	p, _, _ := newTestPipeline(t, testConfig(), nil)

	got := &collector{}
	p.OnUpdate(got.handler)

	p.Ingest("J1", map[string]any{"views": 1.0})
	require.NoError(t, p.Stop(time.Second))

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 0, got.count())
	assert.Equal(t, int64(0), p.Accepted())
}

func TestDoubleStartFails(t *testing.T) {
	p, _, _ := newTestPipeline(t, testConfig(), nil)
	assert.Error(t, p.Start(context.Background()))
}

func TestHealth(t *testing.T) {
	p, _, _ := newTestPipeline(t, testConfig(), nil)
	h := p.Health()
	assert.True(t, h.Healthy)
	assert.Zero(t, h.ErrorCount)
}
