// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme names accepted by NewTheme.
const (
	ThemeDark  = "dark"
	ThemeLight = "light"
)

// Theme holds the styled components for the lock screen.
// It detects the terminal's color capability and adjusts accordingly.
type Theme struct {
	// Terminal capabilities
	IsDark       bool
	HasTrueColor bool
	ColorProfile termenv.Profile

	// Layout dimensions
	Width  int
	Height int

	// ==========================================================================
	// LOCKED OVERLAY
	// ==========================================================================

	LockBox         lipgloss.Style
	LockBoxLockout  lipgloss.Style
	LockTitle       lipgloss.Style
	LockMessage     lipgloss.Style
	Countdown       lipgloss.Style
	CountdownUrgent lipgloss.Style
	Progress        lipgloss.Style
	PINPrompt       lipgloss.Style
	PINText         lipgloss.Style
	Attempts        lipgloss.Style

	// ==========================================================================
	// IDLE SCREEN
	// ==========================================================================

	IdleBox   lipgloss.Style
	IdleTitle lipgloss.Style
	IdleLabel lipgloss.Style
	IdleValue lipgloss.Style

	// ==========================================================================
	// SHARED
	// ==========================================================================

	Hint        lipgloss.Style
	ShortcutKey lipgloss.Style
	Footer      lipgloss.Style
	Backdrop    lipgloss.Color
}

// NewTheme creates a theme. name forces a dark or light palette; any other
// value keeps the terminal's own background detection.
func NewTheme(name string) *Theme {
	colorProfile := termenv.ColorProfile()
	isDark := termenv.HasDarkBackground()
	switch name {
	case ThemeDark:
		isDark = true
	case ThemeLight:
		isDark = false
	}
	lipgloss.SetHasDarkBackground(isDark)

	t := &Theme{
		IsDark:       isDark,
		HasTrueColor: colorProfile == termenv.TrueColor,
		ColorProfile: colorProfile,
		Width:        80,
		Height:       24,
	}
	t.initStyles()
	return t
}

func (t *Theme) initStyles() {
	t.LockBox = lipgloss.NewStyle().
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(Amber).
		Padding(1, 3).
		Align(lipgloss.Center)

	t.LockBoxLockout = t.LockBox.
		BorderForeground(Rose)

	t.LockTitle = lipgloss.NewStyle().
		Foreground(Amber).
		Bold(true)

	t.LockMessage = lipgloss.NewStyle().
		Foreground(TextPrimary).
		Align(lipgloss.Center)

	t.Countdown = lipgloss.NewStyle().
		Foreground(Amber).
		Bold(true)

	t.CountdownUrgent = lipgloss.NewStyle().
		Foreground(Rose).
		Bold(true)

	t.Progress = lipgloss.NewStyle().
		Foreground(TextSecondary)

	t.PINPrompt = lipgloss.NewStyle().
		Foreground(Cyan).
		Bold(true)

	t.PINText = lipgloss.NewStyle().
		Foreground(TextPrimary)

	t.Attempts = lipgloss.NewStyle().
		Foreground(TextSecondary)

	t.IdleBox = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Purple).
		Padding(1, 3)

	t.IdleTitle = lipgloss.NewStyle().
		Foreground(Purple).
		Bold(true)

	t.IdleLabel = lipgloss.NewStyle().
		Foreground(TextSecondary).
		Width(16)

	t.IdleValue = lipgloss.NewStyle().
		Foreground(TextPrimary)

	t.Hint = lipgloss.NewStyle().
		Foreground(TextSecondary).
		Italic(true)

	t.ShortcutKey = lipgloss.NewStyle().
		Foreground(Cyan).
		Bold(true)

	t.Footer = lipgloss.NewStyle().
		Foreground(TextMuted)

	if t.IsDark {
		t.Backdrop = lipgloss.Color(SurfaceDim.Dark)
	} else {
		t.Backdrop = lipgloss.Color(SurfaceDim.Light)
	}
}

// SetSize updates the theme dimensions for responsive layouts.
func (t *Theme) SetSize(width, height int) {
	t.Width = width
	t.Height = height
}

// BoxWidth returns the content width for a centred box: the terminal width
// less a margin, clamped to [minWidth, maxWidth].
func (t *Theme) BoxWidth(minWidth, maxWidth int) int {
	w := t.Width - 8
	if w < minWidth {
		w = minWidth
	}
	if w > maxWidth {
		w = maxWidth
	}
	return w
}
