package safety

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/trendscout/crawler/internal/coordination/memory"
	"github.com/trendscout/crawler/internal/crawl"
	"github.com/trendscout/crawler/internal/metrics"
)

type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time { return c.now }

func newTestBreaker(t *testing.T, threshold int, cooldown time.Duration) (*Breaker, *memory.Store, *fixedClock) {
	t.Helper()
	metrics.Init()
	store := memory.NewStore()
	clock := &fixedClock{now: time.Unix(10000, 0).UTC()}
	store.SetClock(func() time.Time { return clock.now })
	b := New(store, Config{Threshold: threshold, Cooldown: cooldown}, clock, zap.NewNop())
	return b, store, clock
}

func TestBreaker_OpensAtThreshold(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	b, _, _ := newTestBreaker(t, 5, time.Hour)

	for i := 0; i < 4; i++ {
		b.RecordFailure(ctx)
		assert.True(t, b.Allow(ctx), "breaker must stay closed below threshold")
	}
	b.RecordFailure(ctx)
	assert.False(t, b.Allow(ctx), "breaker must open at threshold")
}

func TestBreaker_ClosesAfterCooldown(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	b, _, clock := newTestBreaker(t, 3, time.Hour)
	for i := 0; i < 3; i++ {
		b.RecordFailure(ctx)
	}
	require.False(t, b.Allow(ctx))

	clock.now = clock.now.Add(time.Hour + time.Minute)
	assert.True(t, b.Allow(ctx), "breaker must close once cooldown elapses")
	assert.Zero(t, b.Failures(ctx), "state must be cleared on close")
}

func TestBreaker_SuccessResetsCounter(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	b, _, _ := newTestBreaker(t, 3, time.Hour)
	b.RecordFailure(ctx)
	b.RecordFailure(ctx)
	b.RecordSuccess(ctx)

	// Two more failures only reach 2 of 3.
	b.RecordFailure(ctx)
	b.RecordFailure(ctx)
	assert.True(t, b.Allow(ctx))
	assert.Equal(t, int64(2), b.Failures(ctx))
}

func TestBreaker_SuccessDoesNotCloseOpenWindow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	b, _, _ := newTestBreaker(t, 2, time.Hour)
	b.RecordFailure(ctx)
	b.RecordFailure(ctx)
	require.False(t, b.Allow(ctx))

	b.RecordSuccess(ctx)
	assert.False(t, b.Allow(ctx), "success must not clear an open window")
}

func TestBreaker_TripsOnceAcrossWorkers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	// Two breakers sharing one store model two worker processes.
	metrics.Init()
	store := memory.NewStore()
	clock := &fixedClock{now: time.Unix(10000, 0).UTC()}
	store.SetClock(func() time.Time { return clock.now })
	cfg := Config{Threshold: 5, Cooldown: time.Hour}
	a := New(store, cfg, clock, zap.NewNop())
	b := New(store, cfg, clock, zap.NewNop())

	for i := 0; i < 5; i++ {
		a.RecordFailure(ctx)
	}
	assert.False(t, a.Allow(ctx))
	assert.False(t, b.Allow(ctx), "second worker must observe the open window")
	assert.Zero(t, a.Failures(ctx), "counter resets when the window opens")
}

type failingStore struct{}

func (failingStore) Get(context.Context, string) (string, error) {
	return "", errors.New("store down")
}
func (failingStore) Set(context.Context, string, string, time.Duration) error {
	return errors.New("store down")
}
func (failingStore) Del(context.Context, string) error { return errors.New("store down") }
func (failingStore) Incr(context.Context, string) (int64, error) {
	return 0, errors.New("store down")
}

var _ crawl.CoordStore = failingStore{}

func TestBreaker_FailsOpenOnStoreErrors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	metrics.Init()
	b := New(failingStore{}, Config{Threshold: 1, Cooldown: time.Hour}, &fixedClock{now: time.Now()}, zap.NewNop())
	b.RecordFailure(ctx)
	assert.True(t, b.Allow(ctx), "store outage must degrade to normal operation")
}

// tripCount reads the trip counter from the default registry.
func tripCount(t *testing.T) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == "safety_breaker_trips_total" {
			return mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	return 0
}

func TestBreaker_TripIncrementsCounter(t *testing.T) {
	ctx := context.Background()

	b, _, _ := newTestBreaker(t, 2, time.Hour)
	before := tripCount(t)

	b.RecordFailure(ctx)
	assert.Equal(t, before, tripCount(t), "no trip below threshold")

	b.RecordFailure(ctx)
	assert.Equal(t, before+1, tripCount(t), "opening the window counts one trip")
}
