//go:build !windows && !darwin

package osutils

import (
	"os"
	"runtime"

	"go.uber.org/zap"
)

// IsAdmin reports whether the process runs as root.
func IsAdmin() bool {
	return os.Geteuid() == 0
}

func inputTrusted(bool) (bool, []string) {
	switch runtime.GOOS {
	case "linux", "freebsd", "openbsd", "netbsd":
		if os.Getenv("DISPLAY") == "" {
			return false, []string{"DISPLAY is not set; an X11 session is required for input injection"}
		}
		if os.Getenv("WAYLAND_DISPLAY") != "" {
			return true, []string{"running under Wayland; input reaches XWayland windows only"}
		}
		return true, nil
	}
	return false, []string{"input injection is not supported on " + runtime.GOOS}
}

// EnsureFirewallRule is a no-op outside Windows.
func EnsureFirewallRule(name string, port int, proto string, logger *zap.Logger) error {
	logger.Debug("firewall management is only supported on Windows",
		zap.String("rule", name), zap.Int("port", port), zap.String("proto", proto))
	return nil
}
