package main

import "github.com/charmbracelet/bubbles/key"

// keyMap holds every binding. sidebar bindings apply while the overlay
// is hidden; overlay bindings capture input while it is visible.
type keyMap struct {
	Up       key.Binding
	Down     key.Binding
	Top      key.Binding
	Bottom   key.Binding
	Select   key.Binding
	Restart  key.Binding
	Stop     key.Binding
	Lint     key.Binding
	Fix      key.Binding
	Quit     key.Binding
	LogUp    key.Binding
	LogDown  key.Binding
	PageUp   key.Binding
	PageDown key.Binding
	Follow   key.Binding

	Close key.Binding
}

var defaultKeys = keyMap{
	Up: key.NewBinding(
		key.WithKeys("k", "up"),
		key.WithHelp("↑/k", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("j", "down"),
		key.WithHelp("↓/j", "down"),
	),
	Top: key.NewBinding(
		key.WithKeys("g", "home"),
		key.WithHelp("g", "top"),
	),
	Bottom: key.NewBinding(
		key.WithKeys("G", "end"),
		key.WithHelp("G", "bottom"),
	),
	Select: key.NewBinding(
		key.WithKeys("enter", " "),
		key.WithHelp("enter", "select"),
	),
	Restart: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "restart"),
	),
	Stop: key.NewBinding(
		key.WithKeys("s"),
		key.WithHelp("s", "stop"),
	),
	Lint: key.NewBinding(
		key.WithKeys("l"),
		key.WithHelp("l", "lint"),
	),
	Fix: key.NewBinding(
		key.WithKeys("f"),
		key.WithHelp("f", "fix"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
	LogUp: key.NewBinding(
		key.WithKeys("ctrl+y", "shift+up"),
		key.WithHelp("C-y", "log up"),
	),
	LogDown: key.NewBinding(
		key.WithKeys("ctrl+e", "shift+down"),
		key.WithHelp("C-e", "log down"),
	),
	PageUp: key.NewBinding(
		key.WithKeys("ctrl+u", "pgup"),
		key.WithHelp("C-u", "page up"),
	),
	PageDown: key.NewBinding(
		key.WithKeys("ctrl+d", "pgdown"),
		key.WithHelp("C-d", "page down"),
	),
	Follow: key.NewBinding(
		key.WithKeys("F"),
		key.WithHelp("F", "follow"),
	),
	Close: key.NewBinding(
		key.WithKeys("esc", "q", "enter"),
		key.WithHelp("esc", "close"),
	),
}

func (k keyMap) sidebarHelp() []key.Binding {
	return []key.Binding{k.Up, k.Select, k.Restart, k.Stop, k.Lint, k.Fix, k.PageUp, k.Follow, k.Quit}
}

func (k keyMap) overlayHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.PageUp, k.PageDown, k.Close}
}
