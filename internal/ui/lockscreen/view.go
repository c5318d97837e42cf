// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package lockscreen

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/jeranaias/lockoverlay/internal/overlay"
	"github.com/jeranaias/lockoverlay/internal/ui/styles"
)

const (
	minBoxWidth = 36
	maxBoxWidth = 56

	// urgentSeconds switches the countdown to the urgent style.
	urgentSeconds = 5
)

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.session != nil {
		return m.viewLocked(*m.session)
	}
	return m.viewIdle()
}

// =============================================================================
// RENDER METHODS
// =============================================================================

func (m Model) viewLocked(v overlay.View) string {
	t := m.theme
	width := t.BoxWidth(minBoxWidth, maxBoxWidth)
	inner := width - 6

	var parts []string
	parts = append(parts, t.LockTitle.Render(styles.StatusIndicators.Locked+" Lock overlay is active"))
	parts = append(parts, "")

	if v.TimerArmed {
		countdown := t.Countdown
		if v.RemainingSeconds <= urgentSeconds {
			countdown = t.CountdownUrgent
		}
		parts = append(parts, t.LockMessage.Render(
			"Dismisses automatically in "+countdown.Render(styles.FormatRemaining(v.RemainingSeconds))))
		parts = append(parts, t.Progress.Render(styles.RenderCountdownBar(inner-4, v.RemainingSeconds, v.AutoDismissSeconds)))
		parts = append(parts, "")
	}

	switch {
	case v.PINRequired && v.LockedOut:
		parts = append(parts, styles.RenderError(overlay.DismissOutcome{Kind: overlay.OutcomeLockedOut}.Message()))
		if v.TimerArmed {
			parts = append(parts, t.Hint.Render("Wait for the timer to finish"))
		} else {
			parts = append(parts, t.Hint.Render("Run `lockoverlay stop` to end the session"))
		}
	case v.PINRequired:
		parts = append(parts, t.PINPrompt.Render("PIN ")+t.PINText.Render(m.input.View()))
		parts = append(parts, t.Attempts.Render(fmt.Sprintf("Attempts remaining: %d", v.RemainingAttempts)))
		parts = append(parts, "")
		parts = append(parts, t.Hint.Render("Enter PIN and press Enter to dismiss"))
	default:
		parts = append(parts, t.Hint.Render("Press "+t.ShortcutKey.Render("Enter")+" to dismiss"))
	}

	if n := m.renderNotice(inner); n != "" {
		parts = append(parts, "", n)
	}

	parts = append(parts, "", t.Footer.Render("Keyboard shortcuts are disabled while locked"))

	box := t.LockBox
	if v.LockedOut {
		box = t.LockBoxLockout
	}
	content := lipgloss.JoinVertical(lipgloss.Center, parts...)
	return m.place(box.Width(width).Render(content))
}

func (m Model) viewIdle() string {
	t := m.theme
	width := t.BoxWidth(minBoxWidth, maxBoxWidth)
	inner := width - 6
	s := m.stored

	autoDismiss := "off"
	if s.AutoDismissEnabled {
		autoDismiss = fmt.Sprintf("on (%ds)", s.AutoDismissSeconds)
	}
	protection := "off"
	switch {
	case s.PINProtectionEnabled && s.PINCode != "":
		protection = "on"
	case s.PINProtectionEnabled:
		protection = "on (no PIN set)"
	}

	row := func(label, value string) string {
		return t.IdleLabel.Render(label) + t.IdleValue.Render(value)
	}

	parts := []string{
		t.IdleTitle.Render("Lock Overlay"),
		"",
		row("Auto-dismiss", autoDismiss),
		row("PIN protection", protection),
	}

	if n := m.renderNotice(inner); n != "" {
		parts = append(parts, "", n)
	}

	parts = append(parts, "", m.renderShortcuts())

	content := lipgloss.JoinVertical(lipgloss.Left, parts...)
	return m.place(t.IdleBox.Width(width).Render(content))
}

func (m Model) renderShortcuts() string {
	t := m.theme
	var sb strings.Builder
	for i, b := range []struct{ key, desc string }{
		{m.keys.Activate.Help().Key, m.keys.Activate.Help().Desc},
		{m.keys.Quit.Help().Key, m.keys.Quit.Help().Desc},
	} {
		if i > 0 {
			sb.WriteString("  ")
		}
		sb.WriteString(t.ShortcutKey.Render(b.key))
		sb.WriteString(" ")
		sb.WriteString(t.Footer.Render(b.desc))
	}
	return sb.String()
}

// renderNotice truncates the current notice to width cells and styles it.
func (m Model) renderNotice(width int) string {
	if m.notice.text == "" {
		return ""
	}
	// Leave room for the indicator prefix.
	text := runewidth.Truncate(m.notice.text, width-5, "...")
	switch m.notice.kind {
	case noticeSuccess:
		return styles.RenderSuccess(text)
	case noticeWarning:
		return styles.RenderWarning(text)
	case noticeError:
		return styles.RenderError(text)
	default:
		return styles.RenderInfo(text)
	}
}

func (m Model) place(box string) string {
	t := m.theme
	return lipgloss.Place(
		t.Width, t.Height,
		lipgloss.Center, lipgloss.Center,
		box,
		lipgloss.WithWhitespaceBackground(t.Backdrop),
	)
}
