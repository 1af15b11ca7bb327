//go:build !linux && !freebsd && !netbsd && !openbsd && !windows

package motion

type platformSleeper = TimerSleeper
