package service

import (
	"context"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evinjohnn/LinkedIn-Job-Stats/component"
	"github.com/evinjohnn/LinkedIn-Job-Stats/config"
	wsinput "github.com/evinjohnn/LinkedIn-Job-Stats/input/websocket"
	"github.com/evinjohnn/LinkedIn-Job-Stats/metric"
	"github.com/evinjohnn/LinkedIn-Job-Stats/tracker"
)

func testServiceConfig() *config.Config {
	cfg := config.Default()
	cfg.Ingress.Addr = "127.0.0.1:0"
	cfg.Metrics.Addr = "127.0.0.1:0"
	cfg.Pipeline.DebounceDelay = 10 * time.Millisecond
	cfg.Pipeline.RateLimit.MinInterval = -1
	cfg.Pipeline.RateLimit.MaxAdmissions = 1000
	cfg.Tracker.SwitchDebounce = 10 * time.Millisecond
	cfg.Tracker.PollInterval = 25 * time.Millisecond
	return cfg
}

func startTestService(t *testing.T) *Service {
	t.Helper()

	svc, err := New(testServiceConfig(), nil)
	require.NoError(t, err)
	require.NoError(t, svc.Start(context.Background()))
	t.Cleanup(func() { _ = svc.Stop() })
	return svc
}

func dialIngress(t *testing.T, svc *Service) *websocket.Conn {
	t.Helper()

	url := "ws://" + svc.Ingress().Addr() + config.Default().Ingress.Path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestFrameFlowsThroughToCache(t *testing.T) {
	svc := startTestService(t)
	conn := dialIngress(t, svc)

	err := conn.WriteJSON(wsinput.Frame{
		EntityID: "J1",
		Payload:  map[string]any{"views": 120.0, "applies": 8.0},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, ok := svc.Cache().Get("J1", time.Now())
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	entry, ok := svc.Cache().Get("J1", time.Now())
	require.True(t, ok)
	assert.Equal(t, 120.0, *entry.Record.Views)
	assert.Equal(t, 8.0, *entry.Record.Applies)

	rec, ok := svc.Broadcaster().FindByEntity("J1")
	require.True(t, ok)
	assert.Equal(t, "J1", rec.EntityID)
}

func TestFocusFrameDrivesTracker(t *testing.T) {
	svc := startTestService(t)
	conn := dialIngress(t, svc)

	require.NoError(t, conn.WriteJSON(wsinput.Frame{
		EntityID: "J7",
		Payload:  map[string]any{"views": 5.0},
	}))
	require.Eventually(t, func() bool {
		_, ok := svc.Cache().Get("J7", time.Now())
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, conn.WriteJSON(wsinput.Frame{Type: wsinput.FrameFocus, EntityID: "J7"}))

	require.Eventually(t, func() bool {
		id, state := svc.Tracker().Current()
		return id == "J7" && state == tracker.StateResolved
	}, 2*time.Second, 5*time.Millisecond)
}

func TestPendingFocusResolvesOnLaterIngest(t *testing.T) {
	svc := startTestService(t)
	conn := dialIngress(t, svc)

	// Focus on a posting nothing has been captured for yet.
	require.NoError(t, conn.WriteJSON(wsinput.Frame{Type: wsinput.FrameFocus, EntityID: "J9"}))
	require.Eventually(t, func() bool {
		id, state := svc.Tracker().Current()
		return id == "J9" && state == tracker.StatePending
	}, 2*time.Second, 5*time.Millisecond)

	// A captured event for that posting arrives and resolves the focus.
	require.NoError(t, conn.WriteJSON(wsinput.Frame{
		EntityID: "J9",
		Payload:  map[string]any{"data": map[string]any{"views": 10.0, "applies": 2.0}},
	}))

	require.Eventually(t, func() bool {
		_, state := svc.Tracker().Current()
		return state == tracker.StateResolved
	}, 2*time.Second, 5*time.Millisecond)

	entry, ok := svc.Cache().Get("J9", time.Now())
	require.True(t, ok)
	assert.Equal(t, 10.0, *entry.Record.Views)
	assert.Equal(t, 2.0, *entry.Record.Applies)
}

func TestHealthReportsAllComponents(t *testing.T) {
	svc := startTestService(t)

	health := svc.Health()
	require.NotEmpty(t, health)
	for name, status := range health {
		assert.True(t, status.Healthy, "component %s unhealthy", name)
	}
}

func TestStartRollsBackOnFailure(t *testing.T) {
	cfg := testServiceConfig()
	svc, err := New(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, svc.Start(context.Background()))
	t.Cleanup(func() { _ = svc.Stop() })

	// A second service on the same ingress port fails to start and leaves
	// nothing running.
	cfg2 := testServiceConfig()
	cfg2.Ingress.Addr = svc.Ingress().Addr()
	cfg2.Metrics.Enabled = false
	svc2, err := New(cfg2, nil)
	require.NoError(t, err)
	assert.Error(t, svc2.Start(context.Background()))
	assert.NoError(t, svc2.Stop())

	// The failing component is marked failed; nothing stays started.
	states := svc2.ComponentStates()
	assert.Equal(t, component.StateFailed, states[svc2.Ingress().Name()])
	for name, state := range states {
		assert.NotEqual(t, component.StateStarted, state, "component %s", name)
	}
}

func TestComponentStatesFollowLifecycle(t *testing.T) {
	svc := startTestService(t)

	for name, state := range svc.ComponentStates() {
		assert.Equal(t, component.StateStarted, state, "component %s", name)
	}

	require.NoError(t, svc.Stop())
	for name, state := range svc.ComponentStates() {
		assert.Equal(t, component.StateStopped, state, "component %s", name)
	}
}

func TestServiceStatusGaugeTracksLifecycle(t *testing.T) {
	svc := startTestService(t)

	gauge := svc.registry.CoreMetrics().ServiceStatus
	assert.Equal(t, float64(metric.StatusRunning), testutil.ToFloat64(gauge))

	require.NoError(t, svc.Stop())
	assert.Equal(t, float64(metric.StatusStopped), testutil.ToFloat64(gauge))
}

func TestStopIsIdempotent(t *testing.T) {
	svc := startTestService(t)
	require.NoError(t, svc.Stop())
	require.NoError(t, svc.Stop())
}

func TestRunStopsOnContextCancel(t *testing.T) {
	svc, err := New(testServiceConfig(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	// Give the service time to come up, then cancel.
	require.Eventually(t, func() bool { return svc.started.Load() },
		2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
