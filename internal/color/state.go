// Package color holds the logical color/brightness/power value of the device.
// States are immutable: every mutation returns a new clamped snapshot.
package color

import "fmt"

// Channel and brightness domains.
const (
	MaxChannel    = 255
	MaxBrightness = 100
)

// State is the current logical value of the LED.
type State struct {
	Red        int  `json:"red"`
	Green      int  `json:"green"`
	Blue       int  `json:"blue"`
	Brightness int  `json:"brightness"`
	Power      bool `json:"power"`
}

// Partial carries the fields of a State update. Nil fields are left untouched.
type Partial struct {
	Red        *int  `json:"red,omitempty"`
	Green      *int  `json:"green,omitempty"`
	Blue       *int  `json:"blue,omitempty"`
	Brightness *int  `json:"brightness,omitempty"`
	Power      *bool `json:"power,omitempty"`
}

// Default is the state used when nothing was persisted.
func Default() State {
	return State{Red: 255, Green: 255, Blue: 255, Brightness: 50, Power: true}
}

// New builds a clamped state.
func New(r, g, b, brightness int, power bool) State {
	return State{}.Set(Partial{
		Red:        &r,
		Green:      &g,
		Blue:       &b,
		Brightness: &brightness,
		Power:      &power,
	})
}

// Set clamps each supplied field to its domain and merges it into a copy of s.
func (s State) Set(p Partial) State {
	if p.Red != nil {
		s.Red = clamp(*p.Red, MaxChannel)
	}
	if p.Green != nil {
		s.Green = clamp(*p.Green, MaxChannel)
	}
	if p.Blue != nil {
		s.Blue = clamp(*p.Blue, MaxChannel)
	}
	if p.Brightness != nil {
		s.Brightness = clamp(*p.Brightness, MaxBrightness)
	}
	if p.Power != nil {
		s.Power = *p.Power
	}
	return s
}

// Clamped returns s with every field forced into its domain.
// Used on values decoded from the wire or from storage.
func (s State) Clamped() State {
	s.Red = clamp(s.Red, MaxChannel)
	s.Green = clamp(s.Green, MaxChannel)
	s.Blue = clamp(s.Blue, MaxChannel)
	s.Brightness = clamp(s.Brightness, MaxBrightness)
	return s
}

// Equal reports whether both states carry the same values.
func (s State) Equal(other State) bool {
	return s == other
}

// SameColor compares the color and brightness only.
func (s State) SameColor(other State) bool {
	return s.Red == other.Red && s.Green == other.Green &&
		s.Blue == other.Blue && s.Brightness == other.Brightness
}

// Display returns the channels scaled by brightness, for presentation only.
func (s State) Display() (r, g, b int) {
	return s.Red * s.Brightness / MaxBrightness,
		s.Green * s.Brightness / MaxBrightness,
		s.Blue * s.Brightness / MaxBrightness
}

func (s State) String() string {
	power := "off"
	if s.Power {
		power = "on"
	}
	return fmt.Sprintf("%s@%d%% (%s)", s.Hex(), s.Brightness, power)
}

// Int returns a pointer to v, for building Partial values.
func Int(v int) *int {
	return &v
}

// Bool returns a pointer to v, for building Partial values.
func Bool(v bool) *bool {
	return &v
}

// RGB builds a partial touching only the color channels.
func RGB(r, g, b int) Partial {
	return Partial{Red: &r, Green: &g, Blue: &b}
}

// Brightness builds a partial touching only brightness.
func Brightness(v int) Partial {
	return Partial{Brightness: &v}
}

// IsZero reports whether p carries no field.
func (p Partial) IsZero() bool {
	return p.Red == nil && p.Green == nil && p.Blue == nil && p.Brightness == nil && p.Power == nil
}

func clamp(v, max int) int {
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}
