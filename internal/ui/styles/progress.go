// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"fmt"
	"strings"
)

// Countdown bar cells.
const (
	BarRemaining = "#"
	BarElapsed   = "-"
)

// RenderCountdownBar draws a bar of width cells that drains as remaining
// falls toward zero. Any time left keeps at least one cell filled so the bar
// only empties at expiry.
func RenderCountdownBar(width, remaining, total int) string {
	if width <= 0 {
		return ""
	}
	if total <= 0 || remaining <= 0 {
		return strings.Repeat(BarElapsed, width)
	}
	remaining = min(remaining, total)

	filled := (width*remaining + total - 1) / total
	return strings.Repeat(BarRemaining, filled) + strings.Repeat(BarElapsed, width-filled)
}

// FormatRemaining formats whole seconds as M:SS for display.
func FormatRemaining(seconds int) string {
	if seconds < 0 {
		return "0:00"
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
