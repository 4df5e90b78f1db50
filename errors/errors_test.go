package errors

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"nil error defaults transient", nil, ErrorTransient},
		{"connection lost", ErrConnectionLost, ErrorTransient},
		{"rate limited", ErrRateLimited, ErrorTransient},
		{"context deadline", context.DeadlineExceeded, ErrorTransient},
		{"no metrics", ErrNoMetrics, ErrorInvalid},
		{"empty entity id", ErrEmptyEntityID, ErrorInvalid},
		{"invalid config", ErrInvalidConfig, ErrorFatal},
		{"missing config", ErrMissingConfig, ErrorFatal},
		{"unknown defaults transient", fmt.Errorf("something odd"), ErrorTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestWrapHelpers(t *testing.T) {
	base := fmt.Errorf("boom")

	err := WrapInvalid(base, "Pipeline", "Ingest", "payload parse")
	require.Error(t, err)
	assert.True(t, IsInvalid(err))
	assert.False(t, IsTransient(err))
	assert.Contains(t, err.Error(), "Pipeline.Ingest: payload parse failed")
	assert.ErrorIs(t, err, base)

	err = WrapTransient(base, "Forwarder", "Forward", "publish")
	assert.True(t, IsTransient(err))

	err = WrapFatal(base, "Runtime", "Start", "compose")
	assert.True(t, IsFatal(err))
}

func TestWrapNilPassthrough(t *testing.T) {
	assert.NoError(t, Wrap(nil, "a", "b", "c"))
	assert.NoError(t, WrapTransient(nil, "a", "b", "c"))
	assert.NoError(t, WrapInvalid(nil, "a", "b", "c"))
	assert.NoError(t, WrapFatal(nil, "a", "b", "c"))
}

func TestClassifiedSentinelStaysClassified(t *testing.T) {
	// Wrapping a fatal sentinel as invalid keeps the explicit class:
	// classification set at wrap time wins over sentinel matching.
	err := WrapInvalid(ErrInvalidConfig, "Config", "Validate", "check")
	assert.True(t, IsInvalid(err))
	assert.False(t, IsFatal(err))
}

func TestRetryConfig(t *testing.T) {
	rc := DefaultRetryConfig()

	assert.True(t, rc.ShouldRetry(ErrConnectionLost, 0))
	assert.False(t, rc.ShouldRetry(ErrConnectionLost, rc.MaxRetries))
	assert.False(t, rc.ShouldRetry(ErrNoMetrics, 0))
	assert.False(t, rc.ShouldRetry(nil, 0))

	fc := rc.ToRetryConfig()
	assert.Equal(t, rc.MaxRetries+1, fc.MaxAttempts)
	assert.True(t, fc.AddJitter)
}
