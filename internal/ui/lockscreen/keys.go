// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package lockscreen

import (
	"github.com/charmbracelet/bubbles/key"
)

// =============================================================================
// KEY MAP DEFINITION
// =============================================================================

// KeyMap defines the keyboard bindings for the lock screen.
type KeyMap struct {
	// Idle screen
	Activate key.Binding
	Quit     key.Binding

	// Locked overlay
	Submit  key.Binding
	Dismiss key.Binding
	Blocked key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Activate: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "activate overlay"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
		Submit: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("Enter", "submit PIN"),
		),
		Dismiss: key.NewBinding(
			key.WithKeys("enter", " ", "d"),
			key.WithHelp("Enter", "dismiss"),
		),
		// Swallowed while locked so the overlay cannot be escaped.
		Blocked: key.NewBinding(
			key.WithKeys("ctrl+c", "ctrl+z", "ctrl+\\", "esc", "q"),
		),
	}
}
