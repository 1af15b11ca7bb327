//go:build windows

package osutils

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sys/windows"
)

// IsAdmin checks if the current process has administrative privileges
func IsAdmin() bool {
	var token windows.Token
	h, _ := windows.GetCurrentProcess()
	err := windows.OpenProcessToken(h, windows.TOKEN_QUERY, &token)
	if err != nil {
		return false
	}
	defer token.Close()

	var sid *windows.SID
	err = windows.AllocateAndInitializeSid(
		&windows.SECURITY_NT_AUTHORITY,
		2,
		windows.SECURITY_BUILTIN_DOMAIN_RID,
		windows.DOMAIN_ALIAS_RID_ADMINS,
		0, 0, 0, 0, 0, 0,
		&sid,
	)
	if err != nil {
		return false
	}
	defer windows.FreeSid(sid)

	member, err := token.IsMember(sid)
	if err != nil {
		return false
	}

	return member
}

func inputTrusted(admin bool) (bool, []string) {
	if admin {
		return true, nil
	}
	// UIPI blocks SendInput into windows of elevated processes.
	return true, []string{"not elevated; input into elevated windows (installers, admin consoles) is blocked"}
}

// EnsureFirewallRule checks if an inbound firewall rule for port exists,
// and if not, attempts to create it using PowerShell with admin elevation.
// proto is "TCP" or "UDP".
func EnsureFirewallRule(name string, port int, proto string, logger *zap.Logger) error {
	log := logger.With(zap.String("rule", name), zap.Int("port", port), zap.String("proto", proto))
	log.Info("checking firewall rule")

	// Check if rule already exists AND matches the port
	output, err := exec.Command("netsh", "advfirewall", "firewall", "show", "rule", "name="+name).CombinedOutput()
	out := string(output)
	if err == nil && strings.Contains(out, name) {
		if strings.Contains(out, strconv.Itoa(port)) && strings.Contains(out, "Allow") {
			log.Info("firewall rule already present")
			return nil
		}
		log.Info("firewall rule mismatch, updating")
	} else {
		log.Info("firewall rule not found, creating")
	}

	// No -Program restriction, so the rule survives the binary moving.
	psCommand := fmt.Sprintf(
		"Remove-NetFirewallRule -DisplayName '%s' -ErrorAction SilentlyContinue; New-NetFirewallRule -DisplayName '%s' -Direction Inbound -LocalPort %d -Protocol %s -Action Allow -Profile Any",
		name, name, port, proto,
	)

	// Execute with RunAs verb to trigger UAC if not already admin
	if !IsAdmin() {
		log.Info("process not elevated, requesting UAC elevation")

		verbPtr, _ := windows.UTF16PtrFromString("runas")
		exePtr, _ := windows.UTF16PtrFromString("powershell.exe")
		argPtr, _ := windows.UTF16PtrFromString(fmt.Sprintf("-NoProfile -WindowStyle Hidden -Command \"%s\"", psCommand))

		if err := windows.ShellExecute(0, verbPtr, exePtr, argPtr, nil, windows.SW_HIDE); err != nil {
			return fmt.Errorf("failed to launch elevated powershell via ShellExecute: %w", err)
		}
		log.Info("UAC prompt requested")
		return nil
	}

	if output, err := exec.Command("powershell", "-NoProfile", "-Command", psCommand).CombinedOutput(); err != nil {
		return fmt.Errorf("failed to create firewall rule: %w (output: %s)", err, string(output))
	}
	log.Info("firewall rule applied")
	return nil
}
