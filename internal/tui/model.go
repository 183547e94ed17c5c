// Package tui is the interactive terminal front end of a device session.
package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/dokzlo13/ledlink/internal/color"
	"github.com/dokzlo13/ledlink/internal/device"
	"github.com/dokzlo13/ledlink/internal/effect"
	"github.com/dokzlo13/ledlink/internal/notify"
	"github.com/dokzlo13/ledlink/internal/session"
)

const (
	refreshInterval = 500 * time.Millisecond
	opTimeout       = 10 * time.Second
	maxEvents       = 8
	brightnessStep  = 5
)

// Controller is the session surface the terminal UI drives.
type Controller interface {
	Snapshot(ctx context.Context) (session.Snapshot, error)
	Connect(ctx context.Context, address string) (*device.Status, error)
	ConnectAuto(ctx context.Context) (*device.Status, error)
	Retry(ctx context.Context) (*device.Status, error)
	Disconnect(ctx context.Context) error
	SetColor(ctx context.Context, p color.Partial) (color.State, error)
	SetHex(ctx context.Context, hex string) (color.State, error)
	TogglePower(ctx context.Context) (color.State, error)
	StartEffect(ctx context.Context, name string) (effect.Session, error)
	StopEffect(ctx context.Context) (effect.Session, error)
	ApplyPreset(ctx context.Context, name string) (color.State, error)
	Effects() []string
}

// Mode defines what key presses currently edit.
type Mode int

const (
	ModeNormal Mode = iota
	ModeHex
	ModeAddress
)

// Model holds the state of the terminal UI.
type Model struct {
	ctrl   Controller
	events <-chan notify.Event

	mode  Mode
	input textinput.Model
	help  help.Model
	keys  keyMap

	snap    session.Snapshot
	hasSnap bool
	log     []notify.Event
	err     error
	busy    string

	effects     []string
	effectIndex int

	width, height int
}

// NewModel creates the UI for ctrl. events may be nil.
func NewModel(ctrl Controller, events <-chan notify.Event) Model {
	in := textinput.New()
	in.Cursor.Style = CursorStyle
	in.CharLimit = 64

	return Model{
		ctrl:        ctrl,
		events:      events,
		input:       in,
		help:        help.New(),
		keys:        defaultKeys(),
		effects:     ctrl.Effects(),
		effectIndex: -1,
	}
}

// Init starts the snapshot refresh and the event subscription.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.refresh(), tick(), waitForEvent(m.events))
}

type (
	snapshotMsg struct {
		snap session.Snapshot
		err  error
	}
	eventMsg  notify.Event
	resultMsg struct {
		op  string
		err error
	}
	tickMsg time.Time
)

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func waitForEvent(events <-chan notify.Event) tea.Cmd {
	if events == nil {
		return nil
	}
	return func() tea.Msg {
		e, ok := <-events
		if !ok {
			return nil
		}
		return eventMsg(e)
	}
}

func (m Model) refresh() tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		snap, err := ctrl.Snapshot(ctx)
		return snapshotMsg{snap: snap, err: err}
	}
}

// run executes a session operation off the UI goroutine.
func (m Model) run(op string, fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		return resultMsg{op: op, err: fn(ctx)}
	}
}
