package color

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

// ErrInvalidHex is returned when a string is not a 6-digit hex color.
var ErrInvalidHex = errors.New("invalid hex color")

var hexPattern = regexp.MustCompile(`^#?([0-9a-fA-F]{2})([0-9a-fA-F]{2})([0-9a-fA-F]{2})$`)

// Hex encodes the RGB channels as "#rrggbb". Brightness and power are not encoded.
func (s State) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", s.Red, s.Green, s.Blue)
}

// ParseHex decodes "#rrggbb" or "rrggbb".
func ParseHex(hex string) (r, g, b int, err error) {
	m := hexPattern.FindStringSubmatch(hex)
	if m == nil {
		return 0, 0, 0, fmt.Errorf("%w: %q", ErrInvalidHex, hex)
	}
	channels := [3]int{}
	for i := range channels {
		v, err := strconv.ParseUint(m[i+1], 16, 8)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("%w: %q", ErrInvalidHex, hex)
		}
		channels[i] = int(v)
	}
	return channels[0], channels[1], channels[2], nil
}

// WithHex returns s with its channels replaced by the decoded hex color.
// On error s is returned unchanged.
func (s State) WithHex(hex string) (State, error) {
	r, g, b, err := ParseHex(hex)
	if err != nil {
		return s, err
	}
	return s.Set(RGB(r, g, b)), nil
}
