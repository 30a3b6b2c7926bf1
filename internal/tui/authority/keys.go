// Copyright (c) 2026 Keymaster Team
// Keymaster CA - SSH certificate authority console
// This source code is licensed under the MIT license found in the LICENSE file.

package authority

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/toeirei/keymaster-ca/internal/i18n"
)

// keyMap holds the card's bindings. Letter keys only act when no text input
// is focused.
type keyMap struct {
	Up     key.Binding
	Down   key.Binding
	Select key.Binding
	Remove key.Binding
	Copy   key.Binding
	Save   key.Binding
	Cancel key.Binding
	Delete key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "shift+tab"),
			key.WithHelp("↑/shift+tab", i18n.T("authority.help.up")),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "tab"),
			key.WithHelp("↓/tab", i18n.T("authority.help.down")),
		),
		Select: key.NewBinding(
			key.WithKeys("enter", " "),
			key.WithHelp("enter", i18n.T("authority.help.select")),
		),
		Remove: key.NewBinding(
			key.WithKeys("x", "delete", "backspace"),
			key.WithHelp("x", i18n.T("authority.help.remove")),
		),
		Copy: key.NewBinding(
			key.WithKeys("y"),
			key.WithHelp("y", i18n.T("authority.help.copy")),
		),
		Save: key.NewBinding(
			key.WithKeys("ctrl+s"),
			key.WithHelp("ctrl+s", i18n.T("authority.help.save")),
		),
		Cancel: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", i18n.T("authority.help.cancel")),
		),
		Delete: key.NewBinding(
			key.WithKeys("ctrl+d"),
			key.WithHelp("ctrl+d", i18n.T("authority.help.delete")),
		),
	}
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Select, k.Save, k.Cancel, k.Delete}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Select},
		{k.Remove, k.Copy},
		{k.Save, k.Cancel, k.Delete},
	}
}
