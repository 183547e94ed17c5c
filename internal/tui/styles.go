package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/dokzlo13/ledlink/internal/link"
	"github.com/dokzlo13/ledlink/internal/notify"
)

var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	FocusedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	BlurredStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	CursorStyle  = FocusedStyle
	LabelStyle   = lipgloss.NewStyle().Bold(true).Width(12)
	ErrorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5555"))

	PanelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1).
			MarginRight(2)

	SwatchStyle = lipgloss.NewStyle().Width(12).Height(3)
)

var statusColors = map[link.Status]lipgloss.Color{
	link.StatusConnected:    lipgloss.Color("#00FF00"),
	link.StatusConnecting:   lipgloss.Color("#FFFF00"),
	link.StatusFailed:       lipgloss.Color("#FF5555"),
	link.StatusDisconnected: lipgloss.Color("240"),
}

var levelColors = map[notify.Level]lipgloss.Color{
	notify.LevelInfo:    lipgloss.Color("#8BE9FD"),
	notify.LevelSuccess: lipgloss.Color("#00FF00"),
	notify.LevelWarning: lipgloss.Color("#FFFF00"),
	notify.LevelError:   lipgloss.Color("#FF5555"),
}

func statusStyle(s link.Status) lipgloss.Style {
	return lipgloss.NewStyle().Bold(true).Foreground(statusColors[s])
}

func levelStyle(l notify.Level) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(levelColors[l])
}
