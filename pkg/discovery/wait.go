package discovery

import (
	"context"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/utils/clock"
)

// NewWatchBackoff returns the backoff used to re-establish the CRD watch.
// Delays grow from 250ms to a cap of roughly eight minutes and carry 10% jitter.
func NewWatchBackoff() wait.Backoff {
	return wait.Backoff{
		Duration: 250 * time.Millisecond,
		Factor:   1.5,
		Steps:    20,
		Jitter:   0.1,
		Cap:      8 * time.Minute,
	}
}

// RetryForever runs operation until ctx is done, waiting an exponentially growing delay between runs.
// The delay starts over once an operation has kept running for longer than resetAfter,
// so a watch that was healthy for a while reconnects quickly. A zero resetAfter never resets.
func RetryForever(
	ctx context.Context,
	clk clock.Clock,
	initial wait.Backoff,
	resetAfter time.Duration,
	operation func(context.Context),
) error {
	backoff := initial
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		started := clk.Now()
		operation(ctx)
		if resetAfter > 0 && clk.Since(started) >= resetAfter {
			backoff = initial
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-clk.After(backoff.Step()):
		}
	}
}
