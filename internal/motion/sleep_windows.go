//go:build windows

package motion

import (
	"context"
	"time"

	"golang.org/x/sys/windows"
)

// platformSleeper uses SleepEx, which has millisecond granularity.
type platformSleeper struct{}

func (platformSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ms := uint32((d + time.Millisecond/2) / time.Millisecond)
	if ms == 0 && d > 0 {
		ms = 1
	}
	windows.SleepEx(ms, false)
	return ctx.Err()
}
