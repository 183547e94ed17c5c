package device

import (
	"fmt"
	"sort"
	"time"
)

// Encoding selects the JSON shape of the color payload.
type Encoding string

const (
	// EncodingLong sends {"red","green","blue","brightness"}.
	EncodingLong Encoding = "long"
	// EncodingShort sends {"r","g","b","brightness"}.
	EncodingShort Encoding = "short"
)

// Feature is an optional device capability.
type Feature string

const (
	FeaturePower         Feature = "power"
	FeatureDeviceEffects Feature = "device_effects"
	FeatureLEDStatus     Feature = "led_status"
	FeatureAutoEffect    Feature = "auto_effect"
	FeatureAccessPoint   Feature = "access_point"
)

// Paths is the API path set of a device firmware.
type Paths struct {
	Status     string `yaml:"status"`
	Color      string `yaml:"color"`
	Power      string `yaml:"power"`
	Effect     string `yaml:"effect"`
	LEDStatus  string `yaml:"led_status"`
	AutoEffect string `yaml:"auto_effect"`
	APMode     string `yaml:"ap_mode"`
	APStatus   string `yaml:"ap_status"`
}

// Profile describes what a device firmware variant exposes.
// One client parameterized by a Profile replaces per-variant controllers.
type Profile struct {
	Name           string        `yaml:"name"`
	Description    string        `yaml:"description"`
	DefaultAddress string        `yaml:"default_address"`
	Paths          Paths         `yaml:"paths"`
	Encoding       Encoding      `yaml:"encoding"`
	Features       []Feature     `yaml:"features"`
	SyncInterval   time.Duration `yaml:"-"`
}

// Supports reports whether the profile declares feature f.
func (p Profile) Supports(f Feature) bool {
	for _, have := range p.Features {
		if have == f {
			return true
		}
	}
	return false
}

var builtinProfiles = map[string]Profile{
	"esp32": {
		Name:           "esp32",
		Description:    "ESP32 LED controller (REST API with power and device effects)",
		DefaultAddress: "10.30.6.226",
		Paths: Paths{
			Status:    "/api/status",
			Color:     "/api/color",
			Power:     "/api/led/power",
			Effect:    "/api/led/effect",
			LEDStatus: "/api/led/status",
		},
		Encoding:     EncodingLong,
		Features:     []Feature{FeaturePower, FeatureDeviceEffects, FeatureLEDStatus},
		SyncInterval: 5 * time.Second,
	},
	"esp32s3": {
		Name:           "esp32s3",
		Description:    "ESP32-S3 RGB LED (PWA firmware with auto effect toggle)",
		DefaultAddress: "192.168.4.1",
		Paths: Paths{
			Status:     "/api/status",
			Color:      "/api/color",
			AutoEffect: "/api/effect",
		},
		Encoding:     EncodingLong,
		Features:     []Feature{FeatureAutoEffect},
		SyncInterval: 2 * time.Second,
	},
	"esp32c3": {
		Name:           "esp32c3",
		Description:    "ESP32-C3 WiFi LED controller (hotspot capable)",
		DefaultAddress: "192.168.4.1",
		Paths: Paths{
			Status:   "/api/status",
			Color:    "/api/led/color",
			Power:    "/api/led/power",
			Effect:   "/api/led/effect",
			APMode:   "/api/ap-mode",
			APStatus: "/api/ap-status",
		},
		Encoding:     EncodingShort,
		Features:     []Feature{FeaturePower, FeatureDeviceEffects, FeatureAccessPoint},
		SyncInterval: 5 * time.Second,
	},
}

// DefaultProfile is the profile used when none is configured.
const DefaultProfile = "esp32"

// LookupProfile returns a built-in profile by name.
func LookupProfile(name string) (Profile, error) {
	if name == "" {
		name = DefaultProfile
	}
	p, ok := builtinProfiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("unknown device profile %q (known: %v)", name, ProfileNames())
	}
	return p, nil
}

// ProfileNames lists the built-in profiles.
func ProfileNames() []string {
	names := make([]string, 0, len(builtinProfiles))
	for name := range builtinProfiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Merge overlays the non-empty fields of override onto p.
func (p Profile) Merge(override Profile) Profile {
	if override.Name != "" {
		p.Name = override.Name
	}
	if override.Description != "" {
		p.Description = override.Description
	}
	if override.DefaultAddress != "" {
		p.DefaultAddress = override.DefaultAddress
	}
	if override.Encoding != "" {
		p.Encoding = override.Encoding
	}
	if len(override.Features) > 0 {
		p.Features = append([]Feature(nil), override.Features...)
	}
	if override.SyncInterval > 0 {
		p.SyncInterval = override.SyncInterval
	}

	paths := &p.Paths
	o := override.Paths
	for _, f := range []struct {
		dst *string
		src string
	}{
		{&paths.Status, o.Status},
		{&paths.Color, o.Color},
		{&paths.Power, o.Power},
		{&paths.Effect, o.Effect},
		{&paths.LEDStatus, o.LEDStatus},
		{&paths.AutoEffect, o.AutoEffect},
		{&paths.APMode, o.APMode},
		{&paths.APStatus, o.APStatus},
	} {
		if f.src != "" {
			*f.dst = f.src
		}
	}
	return p
}
