package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// View renders the UI.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(TitleStyle.Render("ledlink"))
	b.WriteString("\n\n")

	if !m.hasSnap {
		b.WriteString(BlurredStyle.Render("Waiting for session..."))
		b.WriteString("\n")
		return b.String()
	}

	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, m.deviceView(), m.colorView()))
	b.WriteString("\n")

	switch m.mode {
	case ModeHex:
		b.WriteString("Hex color:\n")
		b.WriteString(m.input.View())
		b.WriteString("\n")
	case ModeAddress:
		b.WriteString("Device address:\n")
		b.WriteString(m.input.View())
		b.WriteString("\n")
	}

	if m.busy != "" {
		b.WriteString(BlurredStyle.Render(m.busy + "..."))
		b.WriteString("\n")
	}
	if m.err != nil {
		b.WriteString(ErrorStyle.Render("Error: " + m.err.Error()))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.eventsView())
	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m Model) deviceView() string {
	info := m.snap.Link
	rows := []string{
		row("Device", info.Address),
		row("Profile", m.snap.Profile),
		row("Link", statusStyle(info.Status).Render(info.Status.String())),
	}
	if info.LastError != "" {
		rows = append(rows, row("Last error", ErrorStyle.Render(info.LastError)))
	}
	sync := "off"
	if m.snap.Sync.Running {
		sync = fmt.Sprintf("every %s, %d pulls, %d drifts", m.snap.Sync.Interval, m.snap.Sync.Pulls, m.snap.Sync.Drifts)
	}
	rows = append(rows, row("Sync", sync))
	return PanelStyle.Render(strings.Join(rows, "\n"))
}

func (m Model) colorView() string {
	state := m.snap.State
	r, g, b := state.Display()
	swatch := SwatchStyle.Background(lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", r, g, b))).Render("")

	effect := "none"
	if m.snap.Effect.Name != "" {
		effect = fmt.Sprintf("%s (frame %d)", m.snap.Effect.Name, m.snap.Effect.Frame)
	}
	power := "off"
	if state.Power {
		power = "on"
	}
	rows := []string{
		row("Color", m.snap.Hex),
		row("Brightness", fmt.Sprintf("%d%%", state.Brightness)),
		row("Power", power),
		row("Effect", effect),
	}
	return PanelStyle.Render(lipgloss.JoinHorizontal(lipgloss.Top, swatch, " ", strings.Join(rows, "\n")))
}

func (m Model) eventsView() string {
	if len(m.log) == 0 {
		return BlurredStyle.Render("No events yet") + "\n"
	}
	var b strings.Builder
	for _, e := range m.log {
		b.WriteString(BlurredStyle.Render(e.Time.Format("15:04:05")))
		b.WriteString(" ")
		b.WriteString(levelStyle(e.Level).Render(fmt.Sprintf("%-8s", e.Level)))
		b.WriteString(" ")
		b.WriteString(e.Message)
		b.WriteString("\n")
	}
	return b.String()
}

func row(label, value string) string {
	return LabelStyle.Render(label) + value
}
