package tui

import "github.com/charmbracelet/bubbles/key"

// keyMap holds all TUI key bindings.
type keyMap struct {
	Up        key.Binding
	Down      key.Binding
	Open      key.Binding
	Refresh   key.Binding
	Back      key.Binding
	Check     key.Binding
	Prev      key.Binding
	Next      key.Binding
	Command   key.Binding
	Namespace key.Binding
	Submit    key.Binding
	Cancel    key.Binding
	PgUp      key.Binding
	PgDown    key.Binding
	Quit      key.Binding
}

var keys = keyMap{
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓/j", "down"),
	),
	Open: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "open"),
	),
	Refresh: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "refresh"),
	),
	Back: key.NewBinding(
		key.WithKeys("b"),
		key.WithHelp("b", "questions"),
	),
	Check: key.NewBinding(
		key.WithKeys("c"),
		key.WithHelp("c", "check"),
	),
	Prev: key.NewBinding(
		key.WithKeys("left", "h"),
		key.WithHelp("←/h", "prev"),
	),
	Next: key.NewBinding(
		key.WithKeys("right", "l"),
		key.WithHelp("→/l", "next"),
	),
	Command: key.NewBinding(
		key.WithKeys("tab", ":"),
		key.WithHelp("tab", "terminal"),
	),
	Namespace: key.NewBinding(
		key.WithKeys("n"),
		key.WithHelp("n", "namespace"),
	),
	Submit: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "run"),
	),
	Cancel: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("esc", "leave input"),
	),
	PgUp: key.NewBinding(
		key.WithKeys("pgup"),
		key.WithHelp("PgUp", "scroll up"),
	),
	PgDown: key.NewBinding(
		key.WithKeys("pgdown"),
		key.WithHelp("PgDn", "scroll down"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

func hint(k, desc string) string {
	return keyStyle.Render(k) + keyDescStyle.Render(":"+desc)
}

// keyBarText renders the context-sensitive key hints.
func keyBarText(v view, f focus, firstStep bool) string {
	switch f {
	case focusCommand:
		return hint("enter", "run") + "  " + hint("esc", "leave terminal")
	case focusNamespace:
		return hint("enter", "verify") + "  " + hint("esc", "cancel")
	}
	if v == viewList {
		return hint("↑↓", "select") + "  " + hint("enter", "open") + "  " +
			hint("r", "refresh") + "  " + hint("q", "quit")
	}
	bar := hint("tab", "terminal") + "  " + hint("c", "check") + "  " +
		hint("←→", "step") + "  " + hint("1-9", "jump")
	if firstStep {
		bar += "  " + hint("n", "namespace")
	}
	return bar + "  " + hint("b", "questions") + "  " + hint("q", "quit")
}
