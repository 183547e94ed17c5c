package tui

import (
	"context"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/dokzlo13/ledlink/internal/color"
	"github.com/dokzlo13/ledlink/internal/notify"
	"github.com/dokzlo13/ledlink/internal/session"
)

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width

	case tickMsg:
		return m, tea.Batch(m.refresh(), tick())

	case snapshotMsg:
		if msg.err == nil {
			m.snap = msg.snap
			m.hasSnap = true
		}

	case eventMsg:
		m.log = append(m.log, notify.Event(msg))
		if len(m.log) > maxEvents {
			m.log = m.log[len(m.log)-maxEvents:]
		}
		return m, tea.Batch(waitForEvent(m.events), m.refresh())

	case resultMsg:
		if m.busy == msg.op {
			m.busy = ""
		}
		m.err = msg.err
		return m, m.refresh()

	case tea.KeyMsg:
		if m.mode != ModeNormal {
			return m.updateInput(msg)
		}
		return m.updateNormal(msg)
	}
	return m, nil
}

func (m Model) updateNormal(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	ctrl := m.ctrl
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Connect):
		return m.start("connect", func(ctx context.Context) error {
			_, err := ctrl.Retry(ctx)
			return err
		})

	case key.Matches(msg, m.keys.Auto):
		return m.start("auto-connect", func(ctx context.Context) error {
			_, err := ctrl.ConnectAuto(ctx)
			return err
		})

	case key.Matches(msg, m.keys.Address):
		return m.openInput(ModeAddress, m.snap.Link.Address)

	case key.Matches(msg, m.keys.Disconnect):
		return m.start("disconnect", ctrl.Disconnect)

	case key.Matches(msg, m.keys.Power):
		return m.start("power", func(ctx context.Context) error {
			_, err := ctrl.TogglePower(ctx)
			return err
		})

	case key.Matches(msg, m.keys.Brighter), key.Matches(msg, m.keys.Dimmer):
		step := brightnessStep
		if key.Matches(msg, m.keys.Dimmer) {
			step = -step
		}
		next := m.snap.State.Brightness + step
		return m.start("brightness", func(ctx context.Context) error {
			_, err := ctrl.SetColor(ctx, color.Brightness(next))
			return err
		})

	case key.Matches(msg, m.keys.Hex):
		return m.openInput(ModeHex, m.snap.Hex)

	case key.Matches(msg, m.keys.NextEffect):
		if len(m.effects) == 0 {
			return m, nil
		}
		m.effectIndex = (m.effectIndex + 1) % len(m.effects)
		name := m.effects[m.effectIndex]
		return m.start("effect", func(ctx context.Context) error {
			_, err := ctrl.StartEffect(ctx, name)
			return err
		})

	case key.Matches(msg, m.keys.StopEffect):
		m.effectIndex = -1
		return m.start("effect", func(ctx context.Context) error {
			_, err := ctrl.StopEffect(ctx)
			return err
		})

	case key.Matches(msg, m.keys.PresetOn):
		return m.preset(session.PresetOn)
	case key.Matches(msg, m.keys.PresetOff):
		return m.preset(session.PresetOff)
	case key.Matches(msg, m.keys.PresetMax):
		return m.preset(session.PresetMax)
	case key.Matches(msg, m.keys.PresetDim):
		return m.preset(session.PresetDim)
	}
	return m, nil
}

func (m Model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Cancel):
		m.closeInput()
		return m, nil

	case key.Matches(msg, m.keys.Submit):
		value := m.input.Value()
		mode := m.mode
		m.closeInput()
		ctrl := m.ctrl
		if mode == ModeAddress {
			return m.start("connect", func(ctx context.Context) error {
				_, err := ctrl.Connect(ctx, value)
				return err
			})
		}
		return m.start("color", func(ctx context.Context) error {
			_, err := ctrl.SetHex(ctx, value)
			return err
		})
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) start(op string, fn func(ctx context.Context) error) (tea.Model, tea.Cmd) {
	m.busy = op
	m.err = nil
	return m, m.run(op, fn)
}

func (m Model) preset(name string) (tea.Model, tea.Cmd) {
	ctrl := m.ctrl
	return m.start("preset", func(ctx context.Context) error {
		_, err := ctrl.ApplyPreset(ctx, name)
		return err
	})
}

func (m Model) openInput(mode Mode, value string) (tea.Model, tea.Cmd) {
	m.mode = mode
	m.input.Placeholder = "#rrggbb"
	if mode == ModeAddress {
		m.input.Placeholder = "192.168.4.1"
	}
	m.input.SetValue(value)
	m.input.CursorEnd()
	m.input.PromptStyle = FocusedStyle
	m.input.TextStyle = FocusedStyle
	return m, m.input.Focus()
}

func (m *Model) closeInput() {
	m.mode = ModeNormal
	m.input.Blur()
	m.input.Reset()
}
