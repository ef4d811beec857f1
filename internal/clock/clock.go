// ABOUTME: Injectable time source for polling loops.
// ABOUTME: Lets tests drive deadlines deterministically without real sleeps.

package clock

import (
	"context"
	"time"
)

// Clock provides the two time operations polling loops need. Production code
// uses System; tests substitute their own functions to make deadline
// behavior deterministic.
type Clock struct {
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// System returns a Clock backed by real time. Sleep returns early with the
// context's error if the context is cancelled.
func System() Clock {
	return Clock{
		Now:   time.Now,
		Sleep: sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
