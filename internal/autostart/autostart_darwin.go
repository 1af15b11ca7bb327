//go:build darwin

package autostart

import (
	"github.com/mitchellh/go-homedir"
)

// New returns the login item installer for the current user.
func New(e Entry) (Installer, error) {
	home, err := homedir.Dir()
	if err != nil {
		return nil, err
	}
	return LaunchAgent(home, e), nil
}
