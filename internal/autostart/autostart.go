// Package autostart registers a command to run when the user logs in.
package autostart

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"text/template"
)

// ErrUnsupported is returned by New on platforms without a login item mechanism.
var ErrUnsupported = errors.New("autostart: not supported on this platform")

// Entry describes the command started at login.
type Entry struct {
	// Label is a reverse-DNS identifier, used for file and value names.
	Label string
	// Name is shown by desktop environments that list login items.
	Name string
	Exec string
	Args []string
}

// Installer enables or disables one login item.
type Installer interface {
	Enable() error
	Disable() error
	Enabled() (bool, error)
	// Location describes where the login item lives.
	Location() string
}

const launchAgentPlist = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{xml .Label}}</string>
    <key>ProgramArguments</key>
    <array>
        <string>{{xml .Exec}}</string>
{{- range .Args}}
        <string>{{xml .}}</string>
{{- end}}
    </array>
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <false/>
</dict>
</plist>
`

const desktopEntry = `[Desktop Entry]
Type=Application
Name={{.Name}}
Exec={{exec .}}
X-GNOME-Autostart-enabled=true
NoDisplay=true
`

var funcs = template.FuncMap{
	"xml":  template.HTMLEscapeString,
	"exec": desktopExec,
}

var (
	plistTmpl   = template.Must(template.New("plist").Funcs(funcs).Parse(launchAgentPlist))
	desktopTmpl = template.Must(template.New("desktop").Funcs(funcs).Parse(desktopEntry))
)

// desktopExec renders the Exec key of a desktop entry, quoting arguments
// that contain spaces or reserved characters.
func desktopExec(e Entry) string {
	parts := make([]string, 0, len(e.Args)+1)
	for _, a := range append([]string{e.Exec}, e.Args...) {
		if a != "" && !strings.ContainsAny(a, " \t\n\"'\\$`") {
			parts = append(parts, a)
			continue
		}
		r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "`", "\\`", `$`, `\$`)
		parts = append(parts, `"`+r.Replace(a)+`"`)
	}
	// A literal % must be doubled in Exec.
	return strings.ReplaceAll(strings.Join(parts, " "), "%", "%%")
}

type fileInstaller struct {
	path  string
	tmpl  *template.Template
	entry Entry
}

// LaunchAgent returns an installer writing a launchd agent under
// home/Library/LaunchAgents.
func LaunchAgent(home string, e Entry) Installer {
	return &fileInstaller{
		path:  filepath.Join(home, "Library", "LaunchAgents", e.Label+".plist"),
		tmpl:  plistTmpl,
		entry: e,
	}
}

// XDGAutostart returns an installer writing a desktop entry under
// configHome/autostart.
func XDGAutostart(configHome string, e Entry) Installer {
	return &fileInstaller{
		path:  filepath.Join(configHome, "autostart", e.Label+".desktop"),
		tmpl:  desktopTmpl,
		entry: e,
	}
}

func (f *fileInstaller) Enable() error {
	var buf bytes.Buffer
	if err := f.tmpl.Execute(&buf, f.entry); err != nil {
		return fmt.Errorf("autostart: render %s: %w", f.tmpl.Name(), err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
		return err
	}
	return os.WriteFile(f.path, buf.Bytes(), 0644)
}

func (f *fileInstaller) Disable() error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (f *fileInstaller) Enabled() (bool, error) {
	_, err := os.Stat(f.path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

func (f *fileInstaller) Location() string { return f.path }
