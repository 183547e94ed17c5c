package device

import (
	"encoding/json"

	"github.com/dokzlo13/ledlink/internal/color"
)

// ColorPayload is the color object exchanged with the device.
// Firmwares disagree on key names, so decoding accepts both long and short keys.
type ColorPayload struct {
	Red        int `json:"red"`
	Green      int `json:"green"`
	Blue       int `json:"blue"`
	Brightness int `json:"brightness"`
}

// UnmarshalJSON accepts {"red",...} and {"r",...} shapes.
func (c *ColorPayload) UnmarshalJSON(data []byte) error {
	var raw struct {
		Red        *int `json:"red"`
		Green      *int `json:"green"`
		Blue       *int `json:"blue"`
		R          *int `json:"r"`
		G          *int `json:"g"`
		B          *int `json:"b"`
		Brightness *int `json:"brightness"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = ColorPayload{
		Red:        firstInt(raw.Red, raw.R),
		Green:      firstInt(raw.Green, raw.G),
		Blue:       firstInt(raw.Blue, raw.B),
		Brightness: firstInt(raw.Brightness),
	}
	return nil
}

func firstInt(values ...*int) int {
	for _, v := range values {
		if v != nil {
			return *v
		}
	}
	return 0
}

// Status is the GET status payload. Only the color is guaranteed.
type Status struct {
	Color         *ColorPayload `json:"color"`
	Power         *bool         `json:"power,omitempty"`
	Version       string        `json:"version,omitempty"`
	Uptime        int64         `json:"uptime,omitempty"`
	MemoryUsed    int           `json:"memory_used,omitempty"`
	MemoryTotal   int           `json:"memory_total,omitempty"`
	WiFiConnected bool          `json:"wifi_connected,omitempty"`
	IPAddress     string        `json:"ip_address,omitempty"`
}

// HasColor reports whether the device reported a color object.
func (s *Status) HasColor() bool {
	return s != nil && s.Color != nil
}

// Apply merges the reported values into prev. Fields the device did not
// report keep their previous value.
func (s *Status) Apply(prev color.State) color.State {
	if s == nil {
		return prev
	}
	next := prev
	if s.Color != nil {
		next = next.Set(color.Partial{
			Red:        color.Int(s.Color.Red),
			Green:      color.Int(s.Color.Green),
			Blue:       color.Int(s.Color.Blue),
			Brightness: color.Int(s.Color.Brightness),
		})
	}
	if s.Power != nil {
		next = next.Set(color.Partial{Power: s.Power})
	}
	return next
}

// LEDStatus is the GET led status payload.
type LEDStatus struct {
	Power      bool   `json:"power"`
	Red        int    `json:"red"`
	Green      int    `json:"green"`
	Blue       int    `json:"blue"`
	Brightness int    `json:"brightness"`
	Effect     string `json:"effect,omitempty"`
}

// State converts the payload into a clamped color state.
// Firmwares omit brightness when it is at its default of 100.
func (l LEDStatus) State() color.State {
	brightness := l.Brightness
	if brightness == 0 {
		brightness = color.MaxBrightness
	}
	return color.New(l.Red, l.Green, l.Blue, brightness, l.Power)
}

// APStatus is the access point status payload.
type APStatus struct {
	Status    string `json:"status"`
	APEnabled bool   `json:"ap_enabled"`
	Message   string `json:"message,omitempty"`
}

type longColorBody struct {
	Red        int `json:"red"`
	Green      int `json:"green"`
	Blue       int `json:"blue"`
	Brightness int `json:"brightness"`
}

type shortColorBody struct {
	R          int `json:"r"`
	G          int `json:"g"`
	B          int `json:"b"`
	Brightness int `json:"brightness"`
}

type powerBody struct {
	Power bool `json:"power"`
}

type effectBody struct {
	Effect string `json:"effect"`
	Speed  *int   `json:"speed,omitempty"`
}

type autoEffectBody struct {
	Enabled bool `json:"enabled"`
}

type apModeBody struct {
	Enable bool `json:"enable"`
}
