// Package config provides configuration management for deskpilot.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for environment overrides, e.g. DESKPILOT_API_TOKEN.
const EnvPrefix = "DESKPILOT"

// Config represents the application configuration
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Motion  MotionConfig  `mapstructure:"motion" yaml:"motion"`
	API     APIConfig     `mapstructure:"api" yaml:"api"`
	Relay   RelayConfig   `mapstructure:"relay" yaml:"relay"`
	Capture CaptureConfig `mapstructure:"capture" yaml:"capture"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// MotionConfig tunes smooth pointer moves.
type MotionConfig struct {
	// GravityMin and GravityMax bound the per-step pull toward the target.
	GravityMin float64 `mapstructure:"gravity_min" yaml:"gravity_min"`
	GravityMax float64 `mapstructure:"gravity_max" yaml:"gravity_max"`

	// DelayMin and DelayMax bound the pause after each step.
	DelayMin time.Duration `mapstructure:"delay_min" yaml:"delay_min"`
	DelayMax time.Duration `mapstructure:"delay_max" yaml:"delay_max"`

	// MaxSteps aborts a move after this many steps; 0 derives the limit
	// from the screen size.
	MaxSteps int `mapstructure:"max_steps" yaml:"max_steps"`
}

// APIConfig configures the HTTP and WebSocket control server.
type APIConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
	// Token is an optional bearer token required on every request.
	Token string `mapstructure:"token" yaml:"token,omitempty"`
	// ManageFirewall opens the listen port in the Windows firewall on start.
	ManageFirewall bool `mapstructure:"manage_firewall" yaml:"manage_firewall"`
}

// RelayConfig configures the UDP input relay.
type RelayConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
	// RatePerSecond and Burst limit how many packets are applied.
	RatePerSecond float64 `mapstructure:"rate_per_second" yaml:"rate_per_second"`
	Burst         int     `mapstructure:"burst" yaml:"burst"`
	// PeerTimeout drops senders that stop sending heartbeats.
	PeerTimeout time.Duration `mapstructure:"peer_timeout" yaml:"peer_timeout"`
}

// CaptureConfig bounds screen captures.
type CaptureConfig struct {
	MaxBytes int `mapstructure:"max_bytes" yaml:"max_bytes"`
}

// SetDefaults registers every default value on v.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "deskpilot")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 20)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Motion --
	v.SetDefault("motion.gravity_min", 5.0)
	v.SetDefault("motion.gravity_max", 500.0)
	v.SetDefault("motion.delay_min", "1ms")
	v.SetDefault("motion.delay_max", "3ms")
	v.SetDefault("motion.max_steps", 0)

	// -- API --
	v.SetDefault("api.enabled", true)
	v.SetDefault("api.listen", "127.0.0.1:18080")
	v.SetDefault("api.token", "")
	v.SetDefault("api.manage_firewall", false)

	// -- Relay --
	v.SetDefault("relay.enabled", false)
	v.SetDefault("relay.listen", "127.0.0.1:18081")
	v.SetDefault("relay.rate_per_second", 2000.0)
	v.SetDefault("relay.burst", 200)
	v.SetDefault("relay.peer_timeout", "15s")

	// -- Capture --
	v.SetDefault("capture.max_bytes", 500*1024*1024)
}

// Default returns the configuration made of defaults only.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	cfg, err := NewConfigFromViper(v)
	if err != nil {
		// Defaults are static and always valid.
		panic(err)
	}
	return cfg
}

// NewConfigFromViper unmarshals and validates the settings held by v.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for sane values.
func (c *Config) Validate() error {
	m := c.Motion
	if m.GravityMin <= 0 || m.GravityMax < m.GravityMin {
		return fmt.Errorf("motion.gravity_min/gravity_max must satisfy 0 < min <= max (got %g, %g)", m.GravityMin, m.GravityMax)
	}
	if m.DelayMin < 0 || m.DelayMax < m.DelayMin {
		return fmt.Errorf("motion.delay_min/delay_max must satisfy 0 <= min <= max (got %s, %s)", m.DelayMin, m.DelayMax)
	}
	if m.MaxSteps < 0 {
		return errors.New("motion.max_steps must not be negative")
	}
	if c.API.Enabled && c.API.Listen == "" {
		return errors.New("api.listen is required when the API is enabled")
	}
	if c.Relay.Enabled {
		if c.Relay.Listen == "" {
			return errors.New("relay.listen is required when the relay is enabled")
		}
		if c.Relay.RatePerSecond <= 0 || c.Relay.Burst <= 0 {
			return errors.New("relay.rate_per_second and relay.burst must be positive")
		}
		// Relay registrations are signed with api.token.
		if c.API.Token == "" && !isLoopback(c.Relay.Listen) {
			return fmt.Errorf("relay.listen %q is reachable from other hosts; set api.token", c.Relay.Listen)
		}
	}
	if c.Capture.MaxBytes <= 0 {
		return errors.New("capture.max_bytes must be a positive integer")
	}
	return nil
}

// isLoopback reports whether the listen address only accepts local peers.
func isLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// Manager handles loading and saving configuration
type Manager struct {
	mu         sync.Mutex
	v          *viper.Viper
	configPath string
	config     *Config
	onChanged  func()
}

// NewManager creates a configuration manager for path. An empty path selects
// the per-user default location.
func NewManager(path string) (*Manager, error) {
	if path == "" {
		var err error
		if path, err = DefaultPath(); err != nil {
			return nil, err
		}
	}
	path, err := homedir.Expand(path)
	if err != nil {
		return nil, err
	}

	v := viper.New()
	SetDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg, err := NewConfigFromViper(v)
	if err != nil {
		return nil, err
	}
	return &Manager{v: v, configPath: path, config: cfg}, nil
}

// DefaultPath returns the per-user configuration file path.
func DefaultPath() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", err
	}

	var configDir string
	switch runtime.GOOS {
	case "darwin":
		configDir = filepath.Join(home, "Library", "Application Support", "deskpilot")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		configDir = filepath.Join(appData, "deskpilot")
	default:
		configDir = filepath.Join(home, ".config", "deskpilot")
	}
	return filepath.Join(configDir, "config.yaml"), nil
}

// Path returns the configuration file path.
func (m *Manager) Path() string { return m.configPath }

// Viper exposes the underlying viper instance for flag binding.
func (m *Manager) Viper() *viper.Viper { return m.v }

// Load reads the configuration file, if any, merged over the defaults and
// environment overrides.
func (m *Manager) Load() error {
	m.mu.Lock()
	if err := m.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			m.mu.Unlock()
			return fmt.Errorf("read config %s: %w", m.configPath, err)
		}
	}
	cfg, err := NewConfigFromViper(m.v)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	m.config = cfg
	cb := m.onChanged
	m.mu.Unlock()

	if cb != nil {
		cb()
	}
	return nil
}

// Save writes the configuration to disk as YAML.
func (m *Manager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := yaml.Marshal(m.config)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(m.configPath), 0755); err != nil {
		return err
	}
	return os.WriteFile(m.configPath, data, 0600)
}

// Get returns a copy of the current configuration
func (m *Manager) Get() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.config
}

// Set validates and replaces the configuration
func (m *Manager) Set(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	m.config = &cfg
	cb := m.onChanged
	m.mu.Unlock()
	if cb != nil {
		cb()
	}
	return nil
}

// RegisterChangeCallback registers a function to be called when config changes
func (m *Manager) RegisterChangeCallback(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChanged = fn
}
