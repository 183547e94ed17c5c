package tui

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/dokzlo13/ledlink/internal/color"
	"github.com/dokzlo13/ledlink/internal/device"
	"github.com/dokzlo13/ledlink/internal/effect"
	"github.com/dokzlo13/ledlink/internal/link"
	"github.com/dokzlo13/ledlink/internal/notify"
	"github.com/dokzlo13/ledlink/internal/session"
)

type fakeController struct {
	mu    sync.Mutex
	calls []string
	err   error
	state color.State
}

func (f *fakeController) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.err
}

func (f *fakeController) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeController) Snapshot(context.Context) (session.Snapshot, error) {
	return session.Snapshot{
		State: f.state,
		Hex:   f.state.Hex(),
		Link:  link.Info{Address: "10.30.6.226", Status: link.StatusConnected},
	}, nil
}

func (f *fakeController) Connect(_ context.Context, address string) (*device.Status, error) {
	return nil, f.record("connect " + address)
}

func (f *fakeController) ConnectAuto(context.Context) (*device.Status, error) {
	return nil, f.record("auto")
}

func (f *fakeController) Retry(context.Context) (*device.Status, error) {
	return nil, f.record("retry")
}

func (f *fakeController) Disconnect(context.Context) error {
	return f.record("disconnect")
}

func (f *fakeController) SetColor(_ context.Context, p color.Partial) (color.State, error) {
	return f.state.Set(p), f.record("brightness " + itoa(p.Brightness))
}

func (f *fakeController) SetHex(_ context.Context, hex string) (color.State, error) {
	return f.state, f.record("hex " + hex)
}

func (f *fakeController) TogglePower(context.Context) (color.State, error) {
	return f.state, f.record("power")
}

func (f *fakeController) StartEffect(_ context.Context, name string) (effect.Session, error) {
	return effect.Session{Name: name}, f.record("effect " + name)
}

func (f *fakeController) StopEffect(context.Context) (effect.Session, error) {
	return effect.Session{}, f.record("stop")
}

func (f *fakeController) ApplyPreset(_ context.Context, name string) (color.State, error) {
	return f.state, f.record("preset " + name)
}

func (f *fakeController) Effects() []string {
	return []string{"breathe", "rainbow"}
}

func itoa(v *int) string {
	if v == nil {
		return "nil"
	}
	return strconv.Itoa(*v)
}

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// press feeds a key and runs the resulting operation, feeding its result back.
// Commands from an open input only drive the cursor and are skipped.
func press(t *testing.T, m Model, s string) Model {
	t.Helper()
	next, cmd := m.Update(keyMsg(s))
	m = next.(Model)
	if cmd == nil || m.mode != ModeNormal {
		return m
	}
	if msg, ok := cmd().(resultMsg); ok {
		next, _ = m.Update(msg)
		m = next.(Model)
	}
	return m
}

func newTestModel(t *testing.T, ctrl *fakeController) Model {
	t.Helper()
	m := NewModel(ctrl, nil)
	next, _ := m.Update(snapshotMsg{snap: session.Snapshot{State: ctrl.state, Hex: ctrl.state.Hex()}})
	return next.(Model)
}

func TestKeyBindings(t *testing.T) {
	tests := []struct {
		keys []string
		want []string
	}{
		{[]string{"c"}, []string{"retry"}},
		{[]string{"a"}, []string{"auto"}},
		{[]string{"x"}, []string{"disconnect"}},
		{[]string{"p"}, []string{"power"}},
		{[]string{"up"}, []string{"brightness 55"}},
		{[]string{"-"}, []string{"brightness 45"}},
		{[]string{"e", "e", "e"}, []string{"effect breathe", "effect rainbow", "effect breathe"}},
		{[]string{"s"}, []string{"stop"}},
		{[]string{"1", "2", "3", "4"}, []string{"preset on", "preset off", "preset max", "preset dim"}},
	}

	for _, tt := range tests {
		t.Run(strings.Join(tt.keys, ","), func(t *testing.T) {
			ctrl := &fakeController{state: color.Default()}
			m := newTestModel(t, ctrl)
			for _, k := range tt.keys {
				m = press(t, m, k)
			}
			got := ctrl.Calls()
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Errorf("calls = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHexInput(t *testing.T) {
	ctrl := &fakeController{state: color.Default()}
	m := newTestModel(t, ctrl)

	m = press(t, m, "h")
	if m.mode != ModeHex {
		t.Fatalf("mode = %v, want hex input", m.mode)
	}
	// keys are text while the input is open
	m.input.SetValue("")
	m = press(t, m, "#ff0000")
	m = press(t, m, "enter")

	if m.mode != ModeNormal {
		t.Errorf("mode = %v after enter", m.mode)
	}
	if calls := ctrl.Calls(); len(calls) != 1 || calls[0] != "hex #ff0000" {
		t.Errorf("calls = %v", calls)
	}
}

func TestInputCancel(t *testing.T) {
	ctrl := &fakeController{state: color.Default()}
	m := newTestModel(t, ctrl)

	m = press(t, m, "A")
	m = press(t, m, "esc")
	if m.mode != ModeNormal || len(ctrl.Calls()) != 0 {
		t.Errorf("mode = %v, calls = %v", m.mode, ctrl.Calls())
	}
}

func TestOperationError(t *testing.T) {
	ctrl := &fakeController{state: color.Default(), err: errors.New("push failed")}
	m := newTestModel(t, ctrl)

	m = press(t, m, "p")
	if m.err == nil {
		t.Fatal("error not kept")
	}
	if !strings.Contains(m.View(), "push failed") {
		t.Error("View() does not show the error")
	}
}

func TestEventLogIsBounded(t *testing.T) {
	ctrl := &fakeController{state: color.Default()}
	m := newTestModel(t, ctrl)

	for i := 0; i < maxEvents+3; i++ {
		next, _ := m.Update(eventMsg(notify.Info(notify.TopicColor, "Color updated")))
		m = next.(Model)
	}
	if len(m.log) != maxEvents {
		t.Errorf("log has %d events, want %d", len(m.log), maxEvents)
	}
	if !strings.Contains(m.View(), "Color updated") {
		t.Error("View() does not show events")
	}
}
