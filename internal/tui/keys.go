package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Connect    key.Binding
	Auto       key.Binding
	Address    key.Binding
	Disconnect key.Binding
	Power      key.Binding
	Brighter   key.Binding
	Dimmer     key.Binding
	Hex        key.Binding
	NextEffect key.Binding
	StopEffect key.Binding
	PresetOn   key.Binding
	PresetOff  key.Binding
	PresetMax  key.Binding
	PresetDim  key.Binding
	Quit       key.Binding
	Cancel     key.Binding
	Submit     key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Connect:    key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "connect")),
		Auto:       key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "auto-connect")),
		Address:    key.NewBinding(key.WithKeys("A"), key.WithHelp("A", "address")),
		Disconnect: key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "disconnect")),
		Power:      key.NewBinding(key.WithKeys("p", " "), key.WithHelp("p", "power")),
		Brighter:   key.NewBinding(key.WithKeys("up", "+"), key.WithHelp("↑", "brighter")),
		Dimmer:     key.NewBinding(key.WithKeys("down", "-"), key.WithHelp("↓", "dimmer")),
		Hex:        key.NewBinding(key.WithKeys("h", "#"), key.WithHelp("h", "hex color")),
		NextEffect: key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "next effect")),
		StopEffect: key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "stop effect")),
		PresetOn:   key.NewBinding(key.WithKeys("1"), key.WithHelp("1", "on")),
		PresetOff:  key.NewBinding(key.WithKeys("2"), key.WithHelp("2", "off")),
		PresetMax:  key.NewBinding(key.WithKeys("3"), key.WithHelp("3", "max")),
		PresetDim:  key.NewBinding(key.WithKeys("4"), key.WithHelp("4", "dim")),
		Quit:       key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
		Cancel:     key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel")),
		Submit:     key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "apply")),
	}
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Connect, k.Power, k.Hex, k.NextEffect, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Connect, k.Auto, k.Address, k.Disconnect},
		{k.Power, k.Brighter, k.Dimmer, k.Hex},
		{k.NextEffect, k.StopEffect},
		{k.PresetOn, k.PresetOff, k.PresetMax, k.PresetDim},
		{k.Quit},
	}
}
