// Package safety implements the cross-process circuit breaker gating live
// acquisition attempts. Its state lives in the coordination store so every
// worker process observes the same open/closed decision.
package safety

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/trendscout/crawler/internal/crawl"
	"github.com/trendscout/crawler/internal/metrics"
)

// Store keys. The counter is TTL-free; the safety-mode timestamp carries
// the cooldown as its TTL plus a lazy timestamp check for stores that do
// not expire server-side.
const (
	keyConsecutiveFailures = "crawler:safety:consecutive_failures"
	keySafetyModeUntil     = "crawler:safety:mode_until"
)

// Breaker trips after a configured number of consecutive acquisition
// failures and holds live tiers closed for a cooldown window.
//
// This is a fail-open design: any coordination-store error is treated as
// "safety check passed" so a store outage degrades to normal operation
// instead of wedging every worker into synthetic-only mode.
type Breaker struct {
	store     crawl.CoordStore
	threshold int64
	cooldown  time.Duration
	clock     crawl.Clock
	logger    *zap.Logger
}

// Config controls trip threshold and cooldown.
type Config struct {
	Threshold int           `mapstructure:"threshold"`
	Cooldown  time.Duration `mapstructure:"cooldown"`
}

// New constructs a Breaker.
func New(store crawl.CoordStore, cfg Config, clock crawl.Clock, logger *zap.Logger) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Breaker{
		store:     store,
		threshold: int64(cfg.Threshold),
		cooldown:  cfg.Cooldown,
		clock:     clock,
		logger:    logger,
	}
}

// Allow reports whether live tiers may run. While the safety window is
// open, callers must use the synthetic tier unconditionally. Once the
// window has elapsed the breaker closes itself and clears its state.
func (b *Breaker) Allow(ctx context.Context) bool {
	raw, err := b.store.Get(ctx, keySafetyModeUntil)
	if errors.Is(err, crawl.ErrKeyNotFound) {
		return true
	}
	if err != nil {
		b.logger.Warn("safety store read failed, failing open", zap.Error(err))
		return true
	}

	until, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		b.logger.Warn("unparseable safety window, clearing", zap.String("value", raw))
		b.clear(ctx)
		return true
	}
	if b.clock.Now().Before(until) {
		return false
	}

	// Window elapsed: transition back to closed.
	b.clear(ctx)
	b.logger.Info("safety window elapsed, live tiers resumed")
	return true
}

// RecordFailure atomically bumps the consecutive-failure counter and trips
// the breaker at the threshold.
func (b *Breaker) RecordFailure(ctx context.Context) {
	n, err := b.store.Incr(ctx, keyConsecutiveFailures)
	if err != nil {
		b.logger.Warn("failure counter increment failed", zap.Error(err))
		return
	}
	if n < b.threshold {
		return
	}

	until := b.clock.Now().Add(b.cooldown)
	if err := b.store.Set(ctx, keySafetyModeUntil, until.Format(time.RFC3339), b.cooldown); err != nil {
		b.logger.Warn("safety window write failed", zap.Error(err))
		return
	}
	// Reset so a reopened window requires a fresh run of failures.
	if err := b.store.Del(ctx, keyConsecutiveFailures); err != nil {
		b.logger.Warn("failure counter reset failed", zap.Error(err))
	}
	metrics.ObserveSafetyTrip()
	b.logger.Warn("safety breaker tripped",
		zap.Int64("consecutive_failures", n),
		zap.Time("until", until),
	)
}

// RecordSuccess resets the consecutive-failure counter. It does not touch
// an already open safety window.
func (b *Breaker) RecordSuccess(ctx context.Context) {
	if err := b.store.Del(ctx, keyConsecutiveFailures); err != nil {
		b.logger.Warn("failure counter reset failed", zap.Error(err))
	}
}

// Failures returns the current consecutive-failure count, for status
// reporting only.
func (b *Breaker) Failures(ctx context.Context) int64 {
	raw, err := b.store.Get(ctx, keyConsecutiveFailures)
	if err != nil {
		return 0
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func (b *Breaker) clear(ctx context.Context) {
	if err := b.store.Del(ctx, keySafetyModeUntil); err != nil {
		b.logger.Warn("safety window clear failed", zap.Error(err))
	}
	if err := b.store.Del(ctx, keyConsecutiveFailures); err != nil {
		b.logger.Warn("failure counter clear failed", zap.Error(err))
	}
}

var _ fmt.Stringer = Config{}

// String renders the config for startup logs.
func (c Config) String() string {
	return fmt.Sprintf("threshold=%d cooldown=%s", c.Threshold, c.Cooldown)
}
