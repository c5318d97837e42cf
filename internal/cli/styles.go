// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/lockoverlay/internal/ui/styles"
)

// =============================================================================
// OUTPUT STYLES
// =============================================================================

var (
	// TitleStyle is for command output headings
	TitleStyle = lipgloss.NewStyle().Bold(true).Foreground(styles.Purple)

	// LabelStyle is for key/value labels
	LabelStyle = lipgloss.NewStyle().Foreground(styles.TextSecondary).Width(22)

	// ValueStyle is for key/value values
	ValueStyle = lipgloss.NewStyle().Foreground(styles.TextPrimary)

	// SuccessStyle marks successful outcomes
	SuccessStyle = lipgloss.NewStyle().Bold(true).Foreground(styles.Emerald)

	// ErrorStyle marks failures
	ErrorStyle = lipgloss.NewStyle().Bold(true).Foreground(styles.Rose)

	// WarningStyle marks refusals and cautions
	WarningStyle = lipgloss.NewStyle().Bold(true).Foreground(styles.Amber)

	// MutedStyle is for secondary detail
	MutedStyle = lipgloss.NewStyle().Foreground(styles.TextMuted)

	// SeparatorStyle draws horizontal rules
	SeparatorStyle = lipgloss.NewStyle().Foreground(styles.Overlay)
)

func init() {
	if !ColorsEnabled() {
		for _, s := range []*lipgloss.Style{
			&TitleStyle, &LabelStyle, &ValueStyle, &SuccessStyle,
			&ErrorStyle, &WarningStyle, &MutedStyle, &SeparatorStyle,
		} {
			*s = s.UnsetForeground().UnsetBold()
		}
	}
}

// RenderSeparator returns a horizontal rule of the given width (default 40).
func RenderSeparator(width ...int) string {
	w := 40
	if len(width) > 0 && width[0] > 0 {
		w = width[0]
	}
	return SeparatorStyle.Render(strings.Repeat("-", w))
}

// RenderKV renders one aligned key/value line.
func RenderKV(label, value string) string {
	return LabelStyle.Render(label) + ValueStyle.Render(value)
}
