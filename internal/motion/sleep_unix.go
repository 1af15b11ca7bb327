//go:build linux || freebsd || netbsd || openbsd

package motion

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sys/unix"
)

// platformSleeper uses nanosleep, resuming after signal interruptions.
type platformSleeper struct{}

func (platformSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	req := unix.NsecToTimespec(d.Nanoseconds())
	var rem unix.Timespec
	for {
		err := unix.Nanosleep(&req, &rem)
		if !errors.Is(err, unix.EINTR) {
			break
		}
		if ctx.Err() != nil {
			break
		}
		req = rem
	}
	return ctx.Err()
}
