package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trendscout/crawler/internal/metrics"
)

func TestLimiter_UnlimitedWhenRateUnset(t *testing.T) {
	t.Parallel()
	metrics.Init()

	l := New(Config{})
	start := time.Now()
	for i := 0; i < 50; i++ {
		require.NoError(t, l.Wait(context.Background(), "listing"))
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestLimiter_ThrottlesBeyondBurst(t *testing.T) {
	t.Parallel()
	metrics.Init()

	l := New(Config{RequestsPerSecond: 10, Burst: 1})
	require.NoError(t, l.Wait(context.Background(), "listing"))

	start := time.Now()
	require.NoError(t, l.Wait(context.Background(), "listing"))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestLimiter_FamiliesAreIndependent(t *testing.T) {
	t.Parallel()
	metrics.Init()

	l := New(Config{RequestsPerSecond: 1, Burst: 1})
	require.NoError(t, l.Wait(context.Background(), "listing"))

	// A drained listing bucket must not delay the trending family.
	start := time.Now()
	require.NoError(t, l.Wait(context.Background(), "trending"))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestLimiter_RespectsContextCancellation(t *testing.T) {
	t.Parallel()
	metrics.Init()

	l := New(Config{RequestsPerSecond: 0.1, Burst: 1})
	require.NoError(t, l.Wait(context.Background(), "listing"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Wait(ctx, "listing")
	assert.Error(t, err)
}
