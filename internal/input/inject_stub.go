//go:build !darwin && !windows && !linux && !freebsd && !openbsd && !netbsd

package input

// New reports that this platform has no injection backend.
func New() (Backend, error) {
	return nil, ErrUnsupportedPlatform
}
