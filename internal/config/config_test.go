package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dokzlo13/ledlink/internal/device"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	if cfg.Device.Profile != device.DefaultProfile {
		t.Errorf("Device.Profile = %q", cfg.Device.Profile)
	}
	if cfg.Device.Timeout.Duration() != 5*time.Second {
		t.Errorf("Device.Timeout = %v", cfg.Device.Timeout.Duration())
	}
	if len(cfg.Device.Candidates) != 5 || cfg.Device.Candidates[0] != "192.168.4.1" {
		t.Errorf("Device.Candidates = %v", cfg.Device.Candidates)
	}
	if cfg.Effects.MaxPushRPS != 20 {
		t.Errorf("Effects.MaxPushRPS = %v", cfg.Effects.MaxPushRPS)
	}
	if cfg.API.Addr() != "127.0.0.1:8080" {
		t.Errorf("API.Addr() = %q", cfg.API.Addr())
	}
	if cfg.Log.Level != "info" || cfg.Ledger.RetentionDays != 30 {
		t.Errorf("log/ledger defaults = %q/%d", cfg.Log.Level, cfg.Ledger.RetentionDays)
	}
	if cfg.EventBus.GetWorkers() != 4 || cfg.EventBus.GetQueueSize() != 100 {
		t.Errorf("eventbus defaults = %d/%d", cfg.EventBus.GetWorkers(), cfg.EventBus.GetQueueSize())
	}
}

func TestEnvExpansion(t *testing.T) {
	t.Setenv("LEDLINK_ADDRESS", "10.1.2.3")

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"set variable", "${LEDLINK_ADDRESS}", "10.1.2.3"},
		{"set variable ignores default", "${LEDLINK_ADDRESS:192.168.4.1}", "10.1.2.3"},
		{"unset with default", "${LEDLINK_UNSET_VAR:192.168.4.1}", "192.168.4.1"},
		{"unset without default", "${LEDLINK_UNSET_VAR}", ""},
		{"embedded", "http://${LEDLINK_ADDRESS}:80", "http://10.1.2.3:80"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := expandEnvVars(tt.input); got != tt.want {
				t.Errorf("expandEnvVars(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	t.Setenv("LEDLINK_LEVEL", "debug")
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
device:
  address: "10.30.6.226"
  profile: esp32c3
  sync_interval: 3s
  auto_connect: true
discovery:
  mdns: true
  timeout: 500ms
effects:
  script: effects.lua
  max_push_rps: 10
log:
  level: ${LEDLINK_LEVEL:info}
  json: true
api:
  enabled: true
  port: 9000
shutdown_timeout: 2s
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Device.Address != "10.30.6.226" || !cfg.Device.AutoConnect {
		t.Errorf("Device = %+v", cfg.Device)
	}
	if cfg.Device.SyncInterval.Duration() != 3*time.Second {
		t.Errorf("SyncInterval = %v", cfg.Device.SyncInterval.Duration())
	}
	if !cfg.Discovery.MDNS || cfg.Discovery.Timeout.Duration() != 500*time.Millisecond {
		t.Errorf("Discovery = %+v", cfg.Discovery)
	}
	if cfg.Discovery.Service != "_http._tcp" {
		t.Errorf("Discovery.Service = %q", cfg.Discovery.Service)
	}
	if cfg.Effects.Script != "effects.lua" || cfg.Effects.MaxPushRPS != 10 {
		t.Errorf("Effects = %+v", cfg.Effects)
	}
	if cfg.Log.Level != "debug" || !cfg.Log.JSON {
		t.Errorf("Log = %+v", cfg.Log)
	}
	if cfg.API.Addr() != "127.0.0.1:9000" || !cfg.API.Enabled {
		t.Errorf("API = %+v", cfg.API)
	}
	if cfg.ShutdownTimeout.Duration() != 2*time.Second {
		t.Errorf("ShutdownTimeout = %v", cfg.ShutdownTimeout.Duration())
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load() accepted a missing file")
	}
}

func TestInvalidDuration(t *testing.T) {
	if _, err := Parse([]byte("shutdown_timeout: soon\n")); err == nil {
		t.Error("Parse() accepted an invalid duration")
	}
}

func TestResolveProfile(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		check   func(t *testing.T, p device.Profile)
		wantErr bool
	}{
		{
			name: "builtin",
			yaml: "device:\n  profile: esp32s3\n",
			check: func(t *testing.T, p device.Profile) {
				if p.Paths.AutoEffect != "/api/effect" || p.SyncInterval != 2*time.Second {
					t.Errorf("profile = %+v", p)
				}
			},
		},
		{
			name: "override",
			yaml: `
device:
  profile: esp32
  profiles:
    esp32:
      encoding: short
      sync_interval: 4s
      paths:
        color: /api/led/color
`,
			check: func(t *testing.T, p device.Profile) {
				if p.Encoding != device.EncodingShort || p.Paths.Color != "/api/led/color" {
					t.Errorf("profile = %+v", p)
				}
				if p.Paths.Status != "/api/status" {
					t.Errorf("override dropped status path: %+v", p.Paths)
				}
				if p.SyncInterval != 4*time.Second {
					t.Errorf("SyncInterval = %v", p.SyncInterval)
				}
			},
		},
		{
			name: "custom",
			yaml: `
device:
  profile: bench
  profiles:
    bench:
      default_address: 127.0.0.1:8081
      features: [power]
`,
			check: func(t *testing.T, p device.Profile) {
				if p.Name != "bench" || p.DefaultAddress != "127.0.0.1:8081" {
					t.Errorf("profile = %+v", p)
				}
				if !p.Supports(device.FeaturePower) || p.Supports(device.FeatureLEDStatus) {
					t.Errorf("features = %v", p.Features)
				}
			},
		},
		{
			name:    "unknown",
			yaml:    "device:\n  profile: esp8266\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse([]byte(tt.yaml))
			if err != nil {
				t.Fatal(err)
			}
			p, err := cfg.ResolveProfile()
			if tt.wantErr {
				if err == nil {
					t.Error("ResolveProfile() expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveProfile() error: %v", err)
			}
			tt.check(t, p)
		})
	}
}
