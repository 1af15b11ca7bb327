//go:build !darwin && !windows && !linux && !freebsd && !netbsd && !openbsd

package autostart

func New(e Entry) (Installer, error) {
	return nil, ErrUnsupported
}
