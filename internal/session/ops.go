package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/ledlink/internal/color"
	"github.com/dokzlo13/ledlink/internal/device"
	"github.com/dokzlo13/ledlink/internal/effect"
	"github.com/dokzlo13/ledlink/internal/link"
	"github.com/dokzlo13/ledlink/internal/notify"
)

// ErrUnknownPreset is returned by ApplyPreset for an unknown name.
var ErrUnknownPreset = errors.New("unknown preset")

// Connect connects to address and adopts the state the device reports.
// Concurrent calls share one attempt.
func (s *Session) Connect(ctx context.Context, address string) (*device.Status, error) {
	status, err := s.link.Connect(ctx, address)
	if err != nil {
		if link.IsValidation(err) {
			s.notify(notify.Error(notify.TopicValidation, "Invalid device address", err))
		}
		s.activity(notify.LevelError, "Connection failed: %v", err)
		return nil, err
	}
	return status, s.connected(ctx, status)
}

// Retry reconnects to the last address.
func (s *Session) Retry(ctx context.Context) (*device.Status, error) {
	status, err := s.link.Retry(ctx)
	if err != nil {
		s.activity(notify.LevelError, "Retry failed: %v", err)
		return nil, err
	}
	return status, s.connected(ctx, status)
}

func (s *Session) connected(ctx context.Context, status *device.Status) error {
	var state color.State
	err := s.loop.DoSync(ctx, func(context.Context) error {
		s.state = status.Apply(s.state)
		state = s.state
		return nil
	})
	if err != nil {
		return err
	}

	address := s.link.Address()
	s.persist(address, &state)
	s.activity(notify.LevelSuccess, "Connected to %s, device reports %s", address, state)

	return s.sync.Start(ctx)
}

// Discover probes the candidate addresses and returns the first device found.
// The link status is not changed.
func (s *Session) Discover(ctx context.Context) (string, error) {
	s.notify(notify.Info(notify.TopicDiscovery, "Scanning for devices"))

	address, err := s.link.Discover(ctx, s.candidates, s.probeTimeout)
	if err != nil {
		s.notify(notify.Warning(notify.TopicDiscovery, "No device found").With("error", err.Error()))
		return "", err
	}

	s.notify(notify.Success(notify.TopicDiscovery, "Device found at "+address).With("address", address))
	if s.discovery != nil {
		if err := s.discovery.SetTTL(address, s.discoveryTTL); err != nil {
			log.Warn().Err(err).Msg("Failed to cache discovered address")
		}
	}
	return address, nil
}

// ConnectAuto connects to a recently discovered address, or discovers one first.
func (s *Session) ConnectAuto(ctx context.Context) (*device.Status, error) {
	if s.discovery != nil {
		if cached, ok, _ := s.discovery.Get(); ok {
			status, err := s.Connect(ctx, cached)
			if err == nil {
				return status, nil
			}
			log.Info().Str("address", cached).Msg("Cached device address unreachable, rediscovering")
			_ = s.discovery.Delete()
		}
	}

	address, err := s.Discover(ctx)
	if err != nil {
		return nil, err
	}
	return s.Connect(ctx, address)
}

// Disconnect stops a running effect, drops the link and stops pulling device
// state. No effect frame is produced after it returns.
func (s *Session) Disconnect(ctx context.Context) error {
	var (
		stopped effect.Session
		state   color.State
	)
	err := s.loop.DoSync(ctx, func(ctx context.Context) error {
		stopped = s.stopEffect(ctx)
		state = s.state
		return nil
	})
	if err != nil {
		return err
	}
	s.link.Disconnect()
	if stopped.Active() {
		s.persist("", &state)
	}
	return s.sync.Stop(ctx)
}

// SetColor merges p into the state and pushes it. A running effect is stopped
// first. On a failed push the local change is kept.
func (s *Session) SetColor(ctx context.Context, p color.Partial) (color.State, error) {
	return s.edit(ctx, func(state color.State) (color.State, error) {
		return state.Set(p), nil
	})
}

// SetHex sets the color channels from a hex string. An invalid string leaves
// the state unchanged.
func (s *Session) SetHex(ctx context.Context, hex string) (color.State, error) {
	return s.edit(ctx, func(state color.State) (color.State, error) {
		return state.WithHex(hex)
	})
}

// SetBrightness sets the brightness.
func (s *Session) SetBrightness(ctx context.Context, brightness int) (color.State, error) {
	return s.SetColor(ctx, color.Brightness(brightness))
}

func (s *Session) edit(ctx context.Context, mutate func(color.State) (color.State, error)) (color.State, error) {
	var next color.State
	err := s.loop.DoSync(ctx, func(ctx context.Context) error {
		candidate, err := mutate(s.state)
		if err != nil {
			return err
		}
		s.stopEffect(ctx)
		s.state = candidate
		s.edits++
		next = candidate
		return nil
	})
	if err != nil {
		if link.IsValidation(err) {
			s.notify(notify.Error(notify.TopicValidation, "Invalid color", err))
		}
		return color.State{}, err
	}

	pushErr := s.link.Push(ctx, next)
	s.finishEdit(ctx, nil)

	if pushErr != nil {
		s.activity(notify.LevelError, "Color update failed: %v", pushErr)
		return next, pushErr
	}
	s.activity(notify.LevelInfo, "Color updated: RGB(%d, %d, %d) brightness %d%%",
		next.Red, next.Green, next.Blue, next.Brightness)
	s.persist("", &next)
	return next, nil
}

// finishEdit clears the in-flight mark, then runs fn on the timeline.
// It runs even when the caller's context is already done.
func (s *Session) finishEdit(ctx context.Context, fn func()) {
	err := s.loop.DoSync(context.WithoutCancel(ctx), func(context.Context) error {
		s.edits--
		if fn != nil {
			fn()
		}
		return nil
	})
	if err != nil {
		log.Debug().Err(err).Msg("Edit completion not applied")
	}
}

// SetPower switches the LED on or off.
func (s *Session) SetPower(ctx context.Context, on bool) (color.State, error) {
	return s.setPower(ctx, func(bool) bool { return on })
}

// TogglePower inverts the power flag.
func (s *Session) TogglePower(ctx context.Context) (color.State, error) {
	return s.setPower(ctx, func(current bool) bool { return !current })
}

// setPower applies the new power optimistically. If the device rejects it,
// the previous value is restored with one assignment, unless a later edit has
// already replaced the power flag.
func (s *Session) setPower(ctx context.Context, choose func(current bool) bool) (color.State, error) {
	var (
		prev, want bool
		sent       color.State
	)
	err := s.loop.DoSync(ctx, func(ctx context.Context) error {
		s.stopEffect(ctx)
		prev = s.state.Power
		want = choose(prev)
		s.state = s.state.Set(color.Partial{Power: color.Bool(want)})
		s.edits++
		sent = s.state
		return nil
	})
	if err != nil {
		return color.State{}, err
	}

	pushErr := s.pushPower(ctx, sent)

	final := sent
	s.finishEdit(ctx, func() {
		if pushErr != nil && s.state.Power == want {
			s.state = s.state.Set(color.Partial{Power: color.Bool(prev)})
		}
		final = s.state
	})

	if pushErr != nil {
		s.activity(notify.LevelError, "Power change failed, restored %s: %v", onOff(prev), pushErr)
		return final, pushErr
	}
	s.activity(notify.LevelInfo, "LED power %s", onOff(want))
	s.persist("", &final)
	return final, nil
}

func (s *Session) pushPower(ctx context.Context, state color.State) error {
	if s.link.Profile().Supports(device.FeaturePower) {
		err := s.link.SetPower(ctx, state.Power)
		if errors.Is(err, link.ErrNotConnected) {
			return nil
		}
		return err
	}
	// firmwares without a power endpoint are switched off through brightness
	if !state.Power {
		state.Brightness = 0
	}
	return s.link.Push(ctx, state)
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

// StartEffect starts a client-side effect by name. "none" stops the running one.
func (s *Session) StartEffect(ctx context.Context, name string) (effect.Session, error) {
	var session effect.Session
	err := s.loop.DoSync(ctx, func(ctx context.Context) error {
		var err error
		session, err = s.engine.StartNamed(ctx, name, s.state)
		return err
	})
	if err != nil {
		if errors.Is(err, effect.ErrUnknownEffect) {
			s.notify(notify.Error(notify.TopicValidation, "Unknown effect", err).With("effect", name))
		}
		return effect.Session{}, err
	}

	if session.Active() {
		s.activity(notify.LevelInfo, "Effect started: %s", session.Name)
	} else {
		s.activity(notify.LevelInfo, "Effect stopped")
	}
	return session, nil
}

// StopEffect stops the running effect. The state keeps the last frame, which
// is pushed once more so the device ends on it too.
func (s *Session) StopEffect(ctx context.Context) (effect.Session, error) {
	var (
		stopped effect.Session
		state   color.State
	)
	err := s.loop.DoSync(ctx, func(ctx context.Context) error {
		stopped = s.stopEffect(ctx)
		state = s.state
		if stopped.Active() {
			s.edits++
		}
		return nil
	})
	if err != nil {
		return effect.Session{}, err
	}
	if stopped.Active() {
		s.pushLastFrame(ctx, state)
		s.finishEdit(ctx, nil)
		s.persist("", &state)
	}
	return stopped, nil
}

// stopEffect runs on the timeline.
func (s *Session) stopEffect(ctx context.Context) effect.Session {
	stopped, err := s.engine.Stop(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to stop effect")
	}
	if stopped.Active() {
		s.activity(notify.LevelInfo, "Effect stopped: %s", stopped.Name)
	}
	return stopped
}

// SetDeviceEffect selects a firmware-side effect. The client effect is stopped
// so the two do not fight.
func (s *Session) SetDeviceEffect(ctx context.Context, name string, speed int) error {
	if _, err := s.StopEffect(ctx); err != nil {
		return err
	}
	if err := s.link.SetDeviceEffect(ctx, name, speed); err != nil {
		s.activity(notify.LevelError, "Device effect %s failed: %v", name, err)
		return err
	}
	s.activity(notify.LevelInfo, "Device effect: %s", name)
	return nil
}

// SetAutoEffect toggles the firmware's own effect cycle.
func (s *Session) SetAutoEffect(ctx context.Context, enabled bool) error {
	if enabled {
		if _, err := s.StopEffect(ctx); err != nil {
			return err
		}
	}
	if err := s.link.SetAutoEffect(ctx, enabled); err != nil {
		s.activity(notify.LevelError, "Auto effect change failed: %v", err)
		return err
	}
	s.activity(notify.LevelInfo, "Auto effect %s", onOff(enabled))
	return nil
}

// SetAccessPoint toggles the device hotspot.
func (s *Session) SetAccessPoint(ctx context.Context, enable bool) (*device.APStatus, error) {
	status, err := s.link.SetAccessPoint(ctx, enable)
	if err != nil {
		s.activity(notify.LevelError, "Access point change failed: %v", err)
		return nil, err
	}
	s.activity(notify.LevelInfo, "Access point %s", onOff(enable))
	return status, nil
}

// LEDStatus reads the LED snapshot the firmware reports.
func (s *Session) LEDStatus(ctx context.Context) (*device.LEDStatus, error) {
	return s.link.LEDStatus(ctx)
}

// AutoEffect reports whether the firmware's own effect cycle is on.
func (s *Session) AutoEffect(ctx context.Context) (bool, error) {
	return s.link.AutoEffect(ctx)
}

// AccessPoint reads the device hotspot state.
func (s *Session) AccessPoint(ctx context.Context) (*device.APStatus, error) {
	return s.link.AccessPoint(ctx)
}

// Preset names.
const (
	PresetOn  = "on"
	PresetOff = "off"
	PresetMax = "max"
	PresetDim = "dim"
)

var presets = map[string]color.Partial{
	PresetOn:  color.Brightness(50),
	PresetOff: color.Brightness(0),
	PresetMax: color.Brightness(color.MaxBrightness),
	PresetDim: {Red: color.Int(255), Green: color.Int(200), Blue: color.Int(100), Brightness: color.Int(10)},
}

// PresetNames lists the presets ApplyPreset accepts.
func PresetNames() []string {
	return []string{PresetOn, PresetOff, PresetMax, PresetDim}
}

// ApplyPreset applies a named preset.
func (s *Session) ApplyPreset(ctx context.Context, name string) (color.State, error) {
	p, ok := presets[name]
	if !ok {
		return color.State{}, fmt.Errorf("%w: %s", ErrUnknownPreset, name)
	}
	return s.SetColor(ctx, p)
}

// TurnOn sets brightness 50.
func (s *Session) TurnOn(ctx context.Context) (color.State, error) {
	return s.ApplyPreset(ctx, PresetOn)
}

// TurnOff sets brightness 0.
func (s *Session) TurnOff(ctx context.Context) (color.State, error) {
	return s.ApplyPreset(ctx, PresetOff)
}

// MaxBrightness sets brightness 100.
func (s *Session) MaxBrightness(ctx context.Context) (color.State, error) {
	return s.ApplyPreset(ctx, PresetMax)
}

// Dim sets a warm white at brightness 10.
func (s *Session) Dim(ctx context.Context) (color.State, error) {
	return s.ApplyPreset(ctx, PresetDim)
}
