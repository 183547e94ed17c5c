// Package settings persists the last device address and color between runs.
package settings

import (
	"fmt"

	"github.com/dokzlo13/ledlink/internal/color"
	"github.com/dokzlo13/ledlink/internal/kv"
)

const (
	keyAddress = "device_address"
	keyColor   = "color_state"
)

// Settings is what a session restores at start.
type Settings struct {
	Address string
	Color   color.State
	// HasColor is false when no color was ever saved.
	HasColor bool
}

// Store reads and writes settings in a kv bucket.
type Store struct {
	address *kv.Typed[string]
	color   *kv.Typed[color.State]
}

// New creates a store on bucket.
func New(bucket kv.Bucket) *Store {
	return &Store{
		address: kv.NewTyped[string](bucket, keyAddress),
		color:   kv.NewTyped[color.State](bucket, keyColor),
	}
}

// Load returns the saved settings. Missing values are left zero.
func (s *Store) Load() (Settings, error) {
	var out Settings

	address, _, err := s.address.Get()
	if err != nil {
		return out, fmt.Errorf("failed to load device address: %w", err)
	}
	out.Address = address

	state, ok, err := s.color.Get()
	if err != nil {
		return out, fmt.Errorf("failed to load color: %w", err)
	}
	if ok {
		// stored values may predate a range change
		out.Color = state.Clamped()
		out.HasColor = true
	}
	return out, nil
}

// SaveAddress stores the device address.
func (s *Store) SaveAddress(address string) error {
	return s.address.Set(address)
}

// SaveColor stores the color state.
func (s *Store) SaveColor(state color.State) error {
	return s.color.Set(state)
}
