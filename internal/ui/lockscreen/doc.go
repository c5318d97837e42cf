// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package lockscreen is the full-screen Bubble Tea presentation surface for
// the lock overlay.
//
// Model renders two screens: an idle screen summarising the stored settings
// with an activate shortcut, and the locked overlay showing the countdown, the
// PIN prompt and the remaining attempts. While locked, keys that would
// normally quit or suspend the program are swallowed.
//
// TeaSurface bridges the overlay controller to a running tea.Program:
//
//	p := tea.NewProgram(lockscreen.New(ctrl, func() overlay.Settings { return settings.Snapshot(store) }), tea.WithAltScreen())
//	surface := lockscreen.NewTeaSurface(p.Send)
//	defer surface.Close()
//	ctrl.AttachSurface(surface)
package lockscreen
