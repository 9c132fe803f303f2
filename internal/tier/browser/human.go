package browser

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/chromedp/chromedp"
)

// humanScroll performs a human-like scroll pass: uneven step sizes, jittered
// pauses, and an occasional small upward correction. checkAbort runs between
// steps so a detected block page stops the simulation immediately.
func humanScroll(ctx context.Context, passes int, baseDelay time.Duration, checkAbort func(context.Context) error) error {
	if passes <= 0 {
		return nil
	}
	for i := 0; i < passes; i++ {
		step := 400 + rand.IntN(500)
		if rand.IntN(8) == 0 {
			// Brief scroll-back, the way a reader rechecks something.
			step = -(80 + rand.IntN(120))
		}
		script := fmt.Sprintf("window.scrollBy({top: %d, behavior: 'smooth'})", step)
		if err := chromedp.Run(ctx, chromedp.Evaluate(script, nil)); err != nil {
			return fmt.Errorf("scroll step: %w", err)
		}
		if err := sleepJitter(ctx, baseDelay); err != nil {
			return err
		}
		if checkAbort != nil {
			if err := checkAbort(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

// sleepJitter pauses for baseDelay plus up to half again, honoring
// cancellation.
func sleepJitter(ctx context.Context, baseDelay time.Duration) error {
	if baseDelay <= 0 {
		baseDelay = 400 * time.Millisecond
	}
	delay := baseDelay + time.Duration(rand.Int64N(int64(baseDelay/2)+1))
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
