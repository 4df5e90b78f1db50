package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestAdmitFirstEvent(t *testing.T) {
	g := New(DefaultConfig())
	assert.True(t, g.Admit(t0))
	assert.Equal(t, int64(1), g.Admitted())
}

func TestMinIntervalRejects(t *testing.T) {
	g := New(DefaultConfig())

	require.True(t, g.Admit(t0))
	assert.False(t, g.Admit(t0.Add(999*time.Millisecond)))
	assert.True(t, g.Admit(t0.Add(time.Second)))
	assert.Equal(t, int64(1), g.Rejected())
}

func TestWindowCapRejectsExcess(t *testing.T) {
	g := New(DefaultConfig())

	// 15 admissions spaced one second apart all pass.
	now := t0
	for i := 0; i < 15; i++ {
		require.True(t, g.Admit(now), "admission %d", i)
		now = now.Add(time.Second)
	}

	// The 16th within the same rolling minute is rejected even though the
	// minimum gap is satisfied.
	assert.False(t, g.Admit(now))
	assert.Equal(t, 15, g.Pending(now))
}

func TestWindowSlides(t *testing.T) {
	g := New(DefaultConfig())

	now := t0
	for i := 0; i < 15; i++ {
		require.True(t, g.Admit(now))
		now = now.Add(time.Second)
	}
	require.False(t, g.Admit(now))

	// 61s after the first admission the oldest entries have aged out.
	later := t0.Add(61 * time.Second)
	assert.True(t, g.Admit(later))
}

func TestPruneDropsOldEntries(t *testing.T) {
	g := New(DefaultConfig())

	require.True(t, g.Admit(t0))
	require.True(t, g.Admit(t0.Add(2*time.Second)))

	// Both entries fall out of the window.
	assert.Equal(t, 0, g.Pending(t0.Add(2*time.Minute)))
}

func TestExactWindowBoundary(t *testing.T) {
	g := New(DefaultConfig())

	require.True(t, g.Admit(t0))
	// An entry exactly Window old is not yet "older than" the window.
	assert.Equal(t, 1, g.Pending(t0.Add(60*time.Second)))
	assert.Equal(t, 0, g.Pending(t0.Add(60*time.Second+time.Millisecond)))
}

func TestReset(t *testing.T) {
	g := New(DefaultConfig())
	require.True(t, g.Admit(t0))
	require.False(t, g.Admit(t0))

	g.Reset()
	assert.Equal(t, int64(0), g.Admitted())
	assert.Equal(t, int64(0), g.Rejected())
	assert.True(t, g.Admit(t0))
}

func TestZeroConfigGetsDefaults(t *testing.T) {
	g := New(Config{})
	require.True(t, g.Admit(t0))
	assert.False(t, g.Admit(t0.Add(500*time.Millisecond)))
}
