// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles provides the visual styling system for the lock screen.

# Color System (colors.go)

  - Purple - idle screen accent
  - Cyan - key hints and the PIN prompt
  - Emerald - dismissed notices
  - Amber - the locked overlay border and countdown
  - Rose - rejected PINs and lockout

Every color is a Lip Gloss AdaptiveColor. StatusIndicators pair each state
with an ASCII shape so nothing relies on color alone.

# Theme (theme.go)

NewTheme detects the color profile with termenv and honours the configured
"dark" or "light" palette. BoxWidth clamps the centred box to the terminal.

# Progress (progress.go)

RenderCountdownBar draws the countdown bar; FormatRemaining prints M:SS.
*/
package styles
