package osutils

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func TestCheckIsConsistent(t *testing.T) {
	p := Check()
	assert.Equal(t, IsAdmin(), p.Admin)
	if !p.InputTrusted {
		assert.NotEmpty(t, p.Notes, "an untrusted process explains why")
	}
	p.Log(zaptest.NewLogger(t))
}

func TestPrivilegesString(t *testing.T) {
	p := Privileges{Admin: true, Notes: []string{"grant access"}}
	assert.Equal(t, "admin=yes input_trusted=no\n  grant access", p.String())
}

func TestFirewallNoopOutsideWindows(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("modifies the firewall on Windows")
	}
	assert.NoError(t, EnsureFirewallRule("deskpilot", 18080, "TCP", zaptest.NewLogger(t)))
}
