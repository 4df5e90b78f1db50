package websocket

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sinkRecorder struct {
	mu      sync.Mutex
	events  []string
	signals []string
}

func (s *sinkRecorder) Ingest(entityID string, _ map[string]any) {
	s.mu.Lock()
	s.events = append(s.events, entityID)
	s.mu.Unlock()
}

func (s *sinkRecorder) Signal(entityID string) {
	s.mu.Lock()
	s.signals = append(s.signals, entityID)
	s.mu.Unlock()
}

func (s *sinkRecorder) eventCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func (s *sinkRecorder) signalCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.signals)
}

func (s *sinkRecorder) firstEvent() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events[0]
}

func (s *sinkRecorder) firstSignal() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.signals[0]
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	return cfg
}

func newTestInput(t *testing.T, cfg Config) (*Input, *sinkRecorder) {
	t.Helper()

	sink := &sinkRecorder{}
	in, err := NewInput(cfg, sink, sink, nil, nil)
	require.NoError(t, err)
	require.NoError(t, in.Initialize())
	require.NoError(t, in.Start(context.Background()))
	t.Cleanup(func() { _ = in.Stop(2 * time.Second) })
	return in, sink
}

func dial(t *testing.T, in *Input) *websocket.Conn {
	t.Helper()

	url := "ws://" + in.Addr() + in.cfg.Path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestStatsFrameReachesSink(t *testing.T) {
	in, sink := newTestInput(t, testConfig())
	conn := dial(t, in)

	err := conn.WriteJSON(Frame{EntityID: "J1", Payload: map[string]any{"views": 10.0}})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return sink.eventCount() == 1 },
		time.Second, 5*time.Millisecond)
	assert.Equal(t, "J1", sink.firstEvent())
}

func TestFocusFrameReachesTracker(t *testing.T) {
	in, sink := newTestInput(t, testConfig())
	conn := dial(t, in)

	require.NoError(t, conn.WriteJSON(Frame{Type: FrameFocus, EntityID: "J2"}))

	require.Eventually(t, func() bool { return sink.signalCount() == 1 },
		time.Second, 5*time.Millisecond)
	assert.Equal(t, "J2", sink.firstSignal())
	assert.Equal(t, 0, sink.eventCount())
}

func TestMalformedFrameDoesNotKillConnection(t *testing.T) {
	in, sink := newTestInput(t, testConfig())
	conn := dial(t, in)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	require.NoError(t, conn.WriteJSON(Frame{EntityID: "J1", Payload: map[string]any{"views": 1.0}}))

	require.Eventually(t, func() bool { return sink.eventCount() == 1 },
		time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, in.FramesDropped(), int64(1))
}

func TestFrameWithoutEntityIsDropped(t *testing.T) {
	in, sink := newTestInput(t, testConfig())
	conn := dial(t, in)

	require.NoError(t, conn.WriteJSON(Frame{Payload: map[string]any{"views": 1.0}}))

	require.Eventually(t, func() bool { return in.FramesDropped() == 1 },
		time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, sink.eventCount())
}

func TestUnknownFrameTypeIsDropped(t *testing.T) {
	in, sink := newTestInput(t, testConfig())
	conn := dial(t, in)

	require.NoError(t, conn.WriteJSON(Frame{Type: "telemetry", EntityID: "J1"}))

	require.Eventually(t, func() bool { return in.FramesDropped() == 1 },
		time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, sink.eventCount())
}

func TestPerConnectionThrottle(t *testing.T) {
	cfg := testConfig()
	cfg.RatePerSecond = 0.001
	cfg.RateBurst = 1
	in, sink := newTestInput(t, cfg)
	conn := dial(t, in)

	require.NoError(t, conn.WriteJSON(Frame{EntityID: "J1", Payload: map[string]any{"views": 1.0}}))
	require.NoError(t, conn.WriteJSON(Frame{EntityID: "J1", Payload: map[string]any{"views": 2.0}}))

	require.Eventually(t, func() bool { return in.FramesReceived() == 2 },
		time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return in.FramesDropped() == 1 },
		time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, sink.eventCount())
}

func TestStartRejectsDoubleStart(t *testing.T) {
	in, _ := newTestInput(t, testConfig())
	assert.Error(t, in.Start(context.Background()))
}

func TestNewInputRequiresSink(t *testing.T) {
	_, err := NewInput(testConfig(), nil, nil, nil, nil)
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())

	bad := cfg
	bad.Addr = " "
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.Path = "ingest"
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.RateBurst = -1
	assert.Error(t, bad.Validate())
}
