package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dokzlo13/ledlink/internal/device"
)

// Config represents the application configuration
type Config struct {
	Device          DeviceConfig    `yaml:"device"`
	Discovery       DiscoveryConfig `yaml:"discovery"`
	Effects         EffectsConfig   `yaml:"effects"`
	Database        DatabaseConfig  `yaml:"database"`
	Log             LogConfig       `yaml:"log"`
	Ledger          LedgerConfig    `yaml:"ledger"`
	EventBus        EventBusConfig  `yaml:"eventbus"`
	API             APIConfig       `yaml:"api"`
	ShutdownTimeout Duration        `yaml:"shutdown_timeout"` // General shutdown timeout for graceful stops
}

// DeviceConfig contains device connection settings
type DeviceConfig struct {
	Address      string                   `yaml:"address"` // Empty: last saved address, then the profile default
	Profile      string                   `yaml:"profile"`
	Timeout      Duration                 `yaml:"timeout"` // HTTP timeout per device call
	Candidates   []string                 `yaml:"candidates"`
	ProbeTimeout Duration                 `yaml:"probe_timeout"` // Per-candidate discovery timeout
	SyncInterval Duration                 `yaml:"sync_interval"` // 0 = profile default
	AutoConnect  bool                     `yaml:"auto_connect"`
	Profiles     map[string]ProfileConfig `yaml:"profiles"` // Overrides and custom profiles
}

// ProfileConfig overrides fields of a device profile
type ProfileConfig struct {
	device.Profile `yaml:",inline"`
	SyncInterval   Duration `yaml:"sync_interval"`
}

// DiscoveryConfig contains mDNS discovery settings
type DiscoveryConfig struct {
	MDNS     bool     `yaml:"mdns"`
	Service  string   `yaml:"service"`
	Domain   string   `yaml:"domain"`
	Timeout  Duration `yaml:"timeout"`
	CacheTTL Duration `yaml:"cache_ttl"` // How long a discovered address is reused
}

// EffectsConfig contains client-side effect settings
type EffectsConfig struct {
	Script     string  `yaml:"script"`       // Lua file defining extra effects; empty = none
	MaxPushRPS float64 `yaml:"max_push_rps"` // Effect frame push limit, negative = unlimited
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`
	JSON   bool   `yaml:"json"`
	Colors bool   `yaml:"colors"`
}

// LedgerConfig contains event ledger settings
type LedgerConfig struct {
	CleanupInterval Duration `yaml:"cleanup_interval"`
	RetentionDays   int      `yaml:"retention_days"`
}

// EventBusConfig contains event bus settings
type EventBusConfig struct {
	Workers   int `yaml:"workers"`    // Number of worker goroutines (default: 4)
	QueueSize int `yaml:"queue_size"` // Event queue size (default: 100)
}

// APIConfig contains the local control API settings
type APIConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	CORSOrigin string `yaml:"cors_origin"`
}

// Addr returns host:port
func (c APIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GetWorkers returns worker count with default
func (c *EventBusConfig) GetWorkers() int {
	if c.Workers <= 0 {
		return 4
	}
	return c.Workers
}

// GetQueueSize returns queue size with default
func (c *EventBusConfig) GetQueueSize() int {
	if c.QueueSize <= 0 {
		return 100
	}
	return c.QueueSize
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse parses configuration YAML and applies defaults. Empty input yields the defaults.
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./ledlink.sqlite"
	}

	// Device defaults
	if cfg.Device.Profile == "" {
		cfg.Device.Profile = device.DefaultProfile
	}
	if cfg.Device.Timeout == 0 {
		cfg.Device.Timeout = Duration(5 * time.Second)
	}
	if cfg.Device.ProbeTimeout == 0 {
		cfg.Device.ProbeTimeout = Duration(2 * time.Second)
	}
	if len(cfg.Device.Candidates) == 0 {
		cfg.Device.Candidates = []string{
			"192.168.4.1",
			"192.168.1.100",
			"192.168.1.101",
			"192.168.0.100",
			"192.168.0.101",
		}
	}

	// Discovery defaults
	if cfg.Discovery.Service == "" {
		cfg.Discovery.Service = "_http._tcp"
	}
	if cfg.Discovery.Domain == "" {
		cfg.Discovery.Domain = "local"
	}
	if cfg.Discovery.Timeout == 0 {
		cfg.Discovery.Timeout = Duration(2 * time.Second)
	}
	if cfg.Discovery.CacheTTL == 0 {
		cfg.Discovery.CacheTTL = Duration(10 * time.Minute)
	}

	// Effects defaults
	if cfg.Effects.MaxPushRPS == 0 {
		cfg.Effects.MaxPushRPS = 20
	}

	// Ledger defaults
	if cfg.Ledger.CleanupInterval == 0 {
		cfg.Ledger.CleanupInterval = Duration(24 * time.Hour)
	}
	if cfg.Ledger.RetentionDays == 0 {
		cfg.Ledger.RetentionDays = 30
	}

	// API defaults
	if cfg.API.Port == 0 {
		cfg.API.Port = 8080
	}
	if cfg.API.Host == "" {
		cfg.API.Host = "127.0.0.1"
	}
	if cfg.API.CORSOrigin == "" {
		cfg.API.CORSOrigin = "*"
	}

	// General shutdown timeout
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(5 * time.Second)
	}

	return &cfg, nil
}

// ResolveProfile returns the configured device profile with overrides applied.
// A profile name that is not built in must be fully described under device.profiles.
func (c *Config) ResolveProfile() (device.Profile, error) {
	name := c.Device.Profile
	override, hasOverride := c.Device.Profiles[name]

	base, err := device.LookupProfile(name)
	if err != nil {
		if !hasOverride {
			return device.Profile{}, err
		}
		base, _ = device.LookupProfile(device.DefaultProfile)
		base.Name = name
	}
	if !hasOverride {
		return base, nil
	}

	p := override.Profile
	p.SyncInterval = override.SyncInterval.Duration()
	return base.Merge(p), nil
}

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	// Match ${VAR} or ${VAR:default}
	re := regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

	return re.ReplaceAllStringFunc(input, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}
