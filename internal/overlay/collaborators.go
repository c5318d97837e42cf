// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package overlay

import (
	"github.com/jeranaias/lockoverlay/internal/status"
)

// Surface renders the overlay. The controller calls it while holding its
// lock, so implementations must return promptly and must not call back into
// the controller synchronously.
type Surface interface {
	// Show brings the overlay on screen for a new or re-attached session.
	Show(View)
	// Update refreshes countdown and attempt information.
	Update(View)
	// Hide removes the overlay.
	Hide()
}

// Announcer tells the host that a long-running task is in progress and must
// be kept alive, and withdraws that notice when the session ends.
type Announcer interface {
	Announce(sessionID string) error
	Retract() error
}

// Publisher receives status events. status.Bus satisfies it.
type Publisher interface {
	Publish(status.Event) status.Event
}

// Auditor records security-relevant lifecycle events.
type Auditor interface {
	Record(eventType, sessionID string, success bool, metadata map[string]string)
}

// Recorder receives lifecycle counters for metrics.
type Recorder interface {
	Activated()
	Dismissed(reason string)
	PINAttempt(result string)
	LockedOut()
	OverlayActive(active bool)
}

type nopSurface struct{}

func (nopSurface) Show(View)   {}
func (nopSurface) Update(View) {}
func (nopSurface) Hide()       {}

type nopAnnouncer struct{}

func (nopAnnouncer) Announce(string) error { return nil }
func (nopAnnouncer) Retract() error        { return nil }

type nopPublisher struct{}

func (nopPublisher) Publish(e status.Event) status.Event { return e }

type nopAuditor struct{}

func (nopAuditor) Record(string, string, bool, map[string]string) {}

type nopRecorder struct{}

func (nopRecorder) Activated()         {}
func (nopRecorder) Dismissed(string)   {}
func (nopRecorder) PINAttempt(string)  {}
func (nopRecorder) LockedOut()         {}
func (nopRecorder) OverlayActive(bool) {}
