//go:build linux || freebsd || netbsd || openbsd

package autostart

import (
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
)

// New returns the login item installer for the current user.
func New(e Entry) (Installer, error) {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := homedir.Dir()
		if err != nil {
			return nil, err
		}
		dir = filepath.Join(home, ".config")
	}
	return XDGAutostart(dir, e), nil
}
