package ui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Up       key.Binding
	Down     key.Binding
	Left     key.Binding
	Right    key.Binding
	BigLeft  key.Binding
	BigRight key.Binding
	Process  key.Binding
	NewFile  key.Binding
	Download key.Binding
	Dismiss  key.Binding
	Quit     key.Binding
	Confirm  key.Binding
	Cancel   key.Binding
}

var keys = keyMap{
	Up:       key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/↓", "select")),
	Down:     key.NewBinding(key.WithKeys("down", "j")),
	Left:     key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←/→", "turn")),
	Right:    key.NewBinding(key.WithKeys("right", "l")),
	BigLeft:  key.NewBinding(key.WithKeys("shift+left", "H"), key.WithHelp("⇧←/→", "turn ×10")),
	BigRight: key.NewBinding(key.WithKeys("shift+right", "L")),
	Process:  key.NewBinding(key.WithKeys("enter", "p"), key.WithHelp("enter", "process")),
	NewFile:  key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "new file")),
	Download: key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "download")),
	Dismiss:  key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "dismiss")),
	Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	Confirm:  key.NewBinding(key.WithKeys("enter")),
	Cancel:   key.NewBinding(key.WithKeys("esc")),
}

// Bindings returns the key bindings shown in the help line and in --help
func Bindings() []key.Binding {
	return keys.help()
}

func (k keyMap) help() []key.Binding {
	return []key.Binding{k.Up, k.Left, k.BigLeft, k.Process, k.NewFile, k.Download, k.Dismiss, k.Quit}
}
