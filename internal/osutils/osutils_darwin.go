//go:build darwin

package osutils

/*
#cgo LDFLAGS: -framework ApplicationServices
#include <ApplicationServices/ApplicationServices.h>

static int dpAccessibilityTrusted(void) {
    return AXIsProcessTrusted() ? 1 : 0;
}
*/
import "C"

import (
	"os"

	"go.uber.org/zap"
)

// IsAdmin reports whether the process runs as root.
func IsAdmin() bool {
	return os.Geteuid() == 0
}

func inputTrusted(bool) (bool, []string) {
	if C.dpAccessibilityTrusted() == 1 {
		return true, nil
	}
	return false, []string{
		"accessibility access is not granted; injected events are dropped. " +
			"Enable this program under System Settings > Privacy & Security > Accessibility",
	}
}

// EnsureFirewallRule is a no-op outside Windows.
func EnsureFirewallRule(name string, port int, proto string, logger *zap.Logger) error {
	logger.Debug("firewall management is only supported on Windows",
		zap.String("rule", name), zap.Int("port", port), zap.String("proto", proto))
	return nil
}
