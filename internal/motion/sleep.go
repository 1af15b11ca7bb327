package motion

import (
	"context"
	"time"
)

// DefaultSleeper returns the platform's high-resolution sleeper.
func DefaultSleeper() Sleeper { return platformSleeper{} }

// TimerSleeper sleeps on a runtime timer and wakes early when ctx ends.
type TimerSleeper struct{}

func (TimerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
