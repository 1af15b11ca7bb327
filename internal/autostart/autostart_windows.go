//go:build windows

package autostart

import (
	"errors"
	"strings"

	"golang.org/x/sys/windows"
	"golang.org/x/sys/windows/registry"
)

const runKey = `Software\Microsoft\Windows\CurrentVersion\Run`

type runKeyInstaller struct {
	entry Entry
}

// New returns an installer using the current user's Run registry key.
func New(e Entry) (Installer, error) {
	return &runKeyInstaller{entry: e}, nil
}

func (r *runKeyInstaller) commandLine() string {
	parts := []string{windows.EscapeArg(r.entry.Exec)}
	for _, a := range r.entry.Args {
		parts = append(parts, windows.EscapeArg(a))
	}
	return strings.Join(parts, " ")
}

func (r *runKeyInstaller) Enable() error {
	k, _, err := registry.CreateKey(registry.CURRENT_USER, runKey, registry.SET_VALUE)
	if err != nil {
		return err
	}
	defer k.Close()
	return k.SetStringValue(r.entry.Label, r.commandLine())
}

func (r *runKeyInstaller) Disable() error {
	k, err := registry.OpenKey(registry.CURRENT_USER, runKey, registry.SET_VALUE)
	if err != nil {
		return err
	}
	defer k.Close()
	if err := k.DeleteValue(r.entry.Label); err != nil && !errors.Is(err, registry.ErrNotExist) {
		return err
	}
	return nil
}

func (r *runKeyInstaller) Enabled() (bool, error) {
	k, err := registry.OpenKey(registry.CURRENT_USER, runKey, registry.QUERY_VALUE)
	if err != nil {
		return false, err
	}
	defer k.Close()
	_, _, err = k.GetStringValue(r.entry.Label)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, registry.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

func (r *runKeyInstaller) Location() string {
	return `HKCU\` + runKey + `\` + r.entry.Label
}
