package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "deskpilot", cfg.Logger.ServiceName)
	assert.Equal(t, 5.0, cfg.Motion.GravityMin)
	assert.Equal(t, 500.0, cfg.Motion.GravityMax)
	assert.Equal(t, time.Millisecond, cfg.Motion.DelayMin)
	assert.Equal(t, 3*time.Millisecond, cfg.Motion.DelayMax)
	assert.Equal(t, "127.0.0.1:18080", cfg.API.Listen)
	assert.False(t, cfg.Relay.Enabled)
	assert.Equal(t, "127.0.0.1:18081", cfg.Relay.Listen)
	assert.Zero(t, cfg.Motion.MaxSteps)
	assert.Equal(t, 15*time.Second, cfg.Relay.PeerTimeout)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"gravity inverted", func(c *Config) { c.Motion.GravityMax = 1 }, false},
		{"gravity zero", func(c *Config) { c.Motion.GravityMin = 0 }, false},
		{"delay inverted", func(c *Config) { c.Motion.DelayMax = 0 }, false},
		{"negative steps", func(c *Config) { c.Motion.MaxSteps = -1 }, false},
		{"api without listen", func(c *Config) { c.API.Listen = "" }, false},
		{"api disabled without listen", func(c *Config) { c.API.Enabled = false; c.API.Listen = "" }, true},
		{"relay zero rate", func(c *Config) { c.Relay.Enabled = true; c.Relay.RatePerSecond = 0 }, false},
		{"relay on loopback without token", func(c *Config) { c.Relay.Enabled = true }, true},
		{"relay on localhost without token", func(c *Config) { c.Relay.Enabled = true; c.Relay.Listen = "localhost:9000" }, true},
		{"relay on all interfaces without token", func(c *Config) { c.Relay.Enabled = true; c.Relay.Listen = ":18081" }, false},
		{"relay on lan address without token", func(c *Config) { c.Relay.Enabled = true; c.Relay.Listen = "192.168.1.5:18081" }, false},
		{"relay on all interfaces with token", func(c *Config) {
			c.Relay.Enabled = true
			c.Relay.Listen = "0.0.0.0:18081"
			c.API.Token = "secret"
		}, true},
		{"capture zero", func(c *Config) { c.Capture.MaxBytes = 0 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if tt.ok {
				assert.NoError(t, cfg.Validate())
			} else {
				assert.Error(t, cfg.Validate())
			}
		})
	}
}

func TestNewConfigFromViperRejectsInvalid(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("motion.gravity_min", -3)

	_, err := NewConfigFromViper(v)
	assert.ErrorContains(t, err, "invalid configuration")
}

func TestManagerLoadMissingFileUsesDefaults(t *testing.T) {
	m, err := NewManager(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.NoError(t, m.Load())
	assert.Equal(t, *Default(), m.Get())
}

func TestManagerLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
motion:
  gravity_max: 80
  delay_max: 5ms
api:
  token: secret
`), 0600))

	m, err := NewManager(path)
	require.NoError(t, err)

	called := 0
	m.RegisterChangeCallback(func() { called++ })
	require.NoError(t, m.Load())

	cfg := m.Get()
	assert.Equal(t, 80.0, cfg.Motion.GravityMax)
	assert.Equal(t, 5.0, cfg.Motion.GravityMin)
	assert.Equal(t, 5*time.Millisecond, cfg.Motion.DelayMax)
	assert.Equal(t, "secret", cfg.API.Token)
	assert.Equal(t, 1, called)
}

func TestManagerEnvOverride(t *testing.T) {
	t.Setenv("DESKPILOT_API_TOKEN", "from-env")
	m, err := NewManager(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)
	require.NoError(t, m.Load())
	assert.Equal(t, "from-env", m.Get().API.Token)
}

func TestManagerSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	m, err := NewManager(path)
	require.NoError(t, err)

	cfg := m.Get()
	cfg.Motion.MaxSteps = 4000
	cfg.Relay.Enabled = true
	require.NoError(t, m.Set(cfg))
	require.NoError(t, m.Save())

	m2, err := NewManager(path)
	require.NoError(t, err)
	require.NoError(t, m2.Load())
	assert.Equal(t, 4000, m2.Get().Motion.MaxSteps)
	assert.True(t, m2.Get().Relay.Enabled)
}

func TestManagerSetRejectsInvalid(t *testing.T) {
	m, err := NewManager(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)

	cfg := m.Get()
	cfg.Capture.MaxBytes = -1
	assert.Error(t, m.Set(cfg))
	assert.Positive(t, m.Get().Capture.MaxBytes)
}
