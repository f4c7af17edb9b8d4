package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Theme    key.Binding
	Pause    key.Binding
	Record   key.Binding
	Sessions key.Binding
	Stats    key.Binding
	Help     key.Binding
	Quit     key.Binding

	// Session list
	Up     key.Binding
	Down   key.Binding
	Select key.Binding
	Back   key.Binding
}

var keys = keyMap{
	Theme: key.NewBinding(
		key.WithKeys("t"),
		key.WithHelp("t", "theme"),
	),
	Pause: key.NewBinding(
		key.WithKeys(" "),
		key.WithHelp("space", "pause"),
	),
	Record: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "record"),
	),
	Sessions: key.NewBinding(
		key.WithKeys("s"),
		key.WithHelp("s", "sessions"),
	),
	Stats: key.NewBinding(
		key.WithKeys("i"),
		key.WithHelp("i", "stats"),
	),
	Help: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "help"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
	Up: key.NewBinding(
		key.WithKeys("k", "up"),
		key.WithHelp("↑/k", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("j", "down"),
		key.WithHelp("↓/j", "down"),
	),
	Select: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "replay"),
	),
	Back: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("esc", "back"),
	),
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Theme, k.Pause, k.Record, k.Sessions, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Theme, k.Pause, k.Record, k.Stats},
		{k.Sessions, k.Up, k.Down, k.Select, k.Back},
		{k.Help, k.Quit},
	}
}
