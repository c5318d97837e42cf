// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package lockscreen

import (
	"github.com/jeranaias/lockoverlay/internal/overlay"
)

// =============================================================================
// SURFACE MESSAGES
// =============================================================================

// ShowMsg puts the overlay on screen for a session.
type ShowMsg struct {
	View overlay.View
}

// UpdateMsg refreshes the countdown and attempt counters.
type UpdateMsg struct {
	View overlay.View
}

// HideMsg takes the overlay down.
type HideMsg struct{}

// SettingsChangedMsg asks the idle screen to re-read stored settings.
type SettingsChangedMsg struct{}

// =============================================================================
// COMMAND RESULTS
// =============================================================================

type activateResultMsg struct {
	err error
}

type dismissResultMsg struct {
	outcome overlay.DismissOutcome
}
