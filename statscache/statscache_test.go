package statscache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evinjohnn/LinkedIn-Job-Stats/record"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func rec(id string, views float64) record.Record {
	return record.New(id, record.Float(views), nil, t0)
}

func TestGetMissOnEmpty(t *testing.T) {
	c := New(DefaultTTL)

	_, ok := c.Get("J1", t0)
	assert.False(t, ok)
	assert.Equal(t, int64(1), c.Stats().Misses())
}

func TestPutThenGet(t *testing.T) {
	c := New(DefaultTTL)
	r := rec("J1", 10)

	c.Put("J1", r, t0)

	entry, ok := c.Get("J1", t0)
	require.True(t, ok)
	assert.Equal(t, r, entry.Record)
	assert.Equal(t, t0, entry.InsertedAt)
	assert.True(t, c.Fresh(entry, t0))
}

func TestLastWriteWins(t *testing.T) {
	c := New(DefaultTTL)

	c.Put("J1", rec("J1", 10), t0)
	c.Put("J1", rec("J1", 20), t0.Add(time.Second))

	entry, ok := c.Get("J1", t0.Add(time.Second))
	require.True(t, ok)
	require.NotNil(t, entry.Record.Views)
	assert.Equal(t, 20.0, *entry.Record.Views)
	assert.Equal(t, 1, c.Size())
}

func TestGetIsIdempotent(t *testing.T) {
	c := New(DefaultTTL)
	c.Put("J1", rec("J1", 10), t0)

	first, ok1 := c.Get("J1", t0)
	second, ok2 := c.Get("J1", t0)
	require.True(t, ok1)
	require.True(t, ok2)
	assert.Equal(t, first, second)
}

func TestFreshnessBoundary(t *testing.T) {
	c := New(DefaultTTL)
	c.Put("J1", rec("J1", 10), t0)
	entry, _ := c.Get("J1", t0)

	assert.True(t, c.Fresh(entry, t0.Add(5*time.Minute-time.Millisecond)))
	// Aged exactly TTL is stale.
	assert.False(t, c.Fresh(entry, t0.Add(5*time.Minute)))
	assert.False(t, c.Fresh(entry, t0.Add(6*time.Minute)))
}

func TestStaleEntriesStillReturned(t *testing.T) {
	c := New(DefaultTTL)
	c.Put("J1", rec("J1", 10), t0)

	later := t0.Add(time.Hour)
	entry, ok := c.Get("J1", later)
	require.True(t, ok)
	assert.False(t, c.Fresh(entry, later))
	assert.Equal(t, int64(1), c.Stats().StaleHits())
	// Stale entries are not evicted.
	assert.Equal(t, 1, c.Size())
}

func TestDeleteAndClear(t *testing.T) {
	c := New(DefaultTTL)
	c.Put("J1", rec("J1", 10), t0)
	c.Put("J2", rec("J2", 5), t0)

	assert.True(t, c.Delete("J1"))
	assert.False(t, c.Delete("J1"))
	assert.Equal(t, 1, c.Size())

	c.Clear()
	assert.Equal(t, 0, c.Size())
	assert.Empty(t, c.Keys())
}

func TestKeys(t *testing.T) {
	c := New(DefaultTTL)
	c.Put("J1", rec("J1", 1), t0)
	c.Put("J2", rec("J2", 2), t0)

	assert.ElementsMatch(t, []string{"J1", "J2"}, c.Keys())
}

func TestDefaultTTLSubstitution(t *testing.T) {
	c := New(0)
	assert.Equal(t, DefaultTTL, c.TTL())
}
