// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package overlay

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// ERRORS
// =============================================================================

// ErrAlreadyActive is returned by Activate while a session exists.
var ErrAlreadyActive = errors.New("overlay already active")

// =============================================================================
// SETTINGS
// =============================================================================

// DefaultAutoDismissSeconds is used when auto-dismiss is enabled without a
// usable duration.
const DefaultAutoDismissSeconds = 30

// AllowedDurations are the auto-dismiss durations a user can pick.
var AllowedDurations = []int{15, 30, 60, 90, 120}

// ValidDuration reports whether seconds is one of AllowedDurations.
func ValidDuration(seconds int) bool {
	for _, d := range AllowedDurations {
		if d == seconds {
			return true
		}
	}
	return false
}

// Settings is the per-activation configuration. The controller copies it at
// activation time; later edits to the settings store never reach a running
// session.
type Settings struct {
	AutoDismissEnabled   bool   `json:"auto_dismiss_enabled"`
	AutoDismissSeconds   int    `json:"auto_dismiss_duration"`
	PINProtectionEnabled bool   `json:"pin_protection_enabled"`
	PINCode              string `json:"pin_code,omitempty"`
}

// PINGated reports whether dismissal requires a PIN. Protection switched on
// without a configured PIN does not gate dismissal.
func (s Settings) PINGated() bool {
	return s.PINProtectionEnabled && s.PINCode != ""
}

// timerSeconds returns the countdown length for an auto-dismissing session.
func (s Settings) timerSeconds() int {
	if s.AutoDismissSeconds > 0 {
		return s.AutoDismissSeconds
	}
	return DefaultAutoDismissSeconds
}

// Redacted returns a copy safe to log or display.
func (s Settings) Redacted() Settings {
	if s.PINCode != "" {
		s.PINCode = "****"
	}
	return s
}

// =============================================================================
// STATE
// =============================================================================

// State is the controller's lifecycle state. PIN entry is a presentation
// sub-state of StateShowing and is not tracked here.
type State int

const (
	// StateIdle means no session exists.
	StateIdle State = iota
	// StateShowing means a session is active and the overlay is on screen.
	StateShowing
)

// String returns a string representation of the State.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateShowing:
		return "SHOWING"
	default:
		return "UNKNOWN"
	}
}

// MarshalText encodes the state for JSON status responses.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state written by MarshalText.
func (s *State) UnmarshalText(b []byte) error {
	switch string(b) {
	case "IDLE":
		*s = StateIdle
	case "SHOWING":
		*s = StateShowing
	default:
		return fmt.Errorf("unknown overlay state %q", b)
	}
	return nil
}

// =============================================================================
// VIEW
// =============================================================================

// View is what a presentation surface or control surface may know about the
// current session. It never carries the PIN.
type View struct {
	SessionID          string    `json:"session_id"`
	StartedAt          time.Time `json:"started_at"`
	AutoDismissEnabled bool      `json:"auto_dismiss_enabled"`
	AutoDismissSeconds int       `json:"auto_dismiss_seconds,omitempty"`
	TimerArmed         bool      `json:"timer_armed"`
	RemainingSeconds   int       `json:"remaining_seconds,omitempty"`
	PINRequired        bool      `json:"pin_required"`
	FailedAttempts     int       `json:"failed_attempts"`
	RemainingAttempts  int       `json:"remaining_attempts"`
	LockedOut          bool      `json:"locked_out"`
}

// Snapshot is the controller state as reported to control surfaces. View is
// nil while idle.
type Snapshot struct {
	State State `json:"state"`
	View  *View `json:"session,omitempty"`
}

// Active reports whether a session exists.
func (s Snapshot) Active() bool {
	return s.State == StateShowing && s.View != nil
}

// =============================================================================
// DISMISS OUTCOME
// =============================================================================

// OutcomeKind classifies the result of a dismissal request.
type OutcomeKind int

const (
	// OutcomeNotActive means there was no session to dismiss.
	OutcomeNotActive OutcomeKind = iota
	// OutcomeDismissed means the session was torn down.
	OutcomeDismissed
	// OutcomeRejected means the PIN was wrong and retries remain.
	OutcomeRejected
	// OutcomeLockedOut means the attempt limit is exhausted; the overlay
	// stays up until forced to stop or its timer expires.
	OutcomeLockedOut
	// OutcomePINRequired means the session is PIN gated and no PIN was
	// supplied. No attempt is counted.
	OutcomePINRequired
)

var outcomeNames = map[OutcomeKind]string{
	OutcomeNotActive:   "not_active",
	OutcomeDismissed:   "dismissed",
	OutcomeRejected:    "rejected",
	OutcomeLockedOut:   "locked_out",
	OutcomePINRequired: "pin_required",
}

// String returns a string representation of the OutcomeKind.
func (k OutcomeKind) String() string {
	if name, ok := outcomeNames[k]; ok {
		return name
	}
	return "unknown"
}

// MarshalText encodes the kind for JSON responses.
func (k OutcomeKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind written by MarshalText.
func (k *OutcomeKind) UnmarshalText(b []byte) error {
	for kind, name := range outcomeNames {
		if name == string(b) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown dismiss outcome %q", b)
}

// DismissOutcome is the typed result of RequestDismiss.
type DismissOutcome struct {
	Kind              OutcomeKind `json:"outcome"`
	RemainingAttempts int         `json:"remaining_attempts,omitempty"`
}

// Message returns the user-facing notice for the outcome.
func (o DismissOutcome) Message() string {
	switch o.Kind {
	case OutcomeDismissed:
		return "Overlay dismissed"
	case OutcomeRejected:
		return fmt.Sprintf("Incorrect PIN. Attempts remaining: %d", o.RemainingAttempts)
	case OutcomeLockedOut:
		return "Too many failed attempts"
	case OutcomePINRequired:
		return "Enter PIN to dismiss"
	default:
		return "Overlay is not active"
	}
}

func notActive() DismissOutcome { return DismissOutcome{Kind: OutcomeNotActive} }
func dismissed() DismissOutcome { return DismissOutcome{Kind: OutcomeDismissed} }
func lockedOut() DismissOutcome { return DismissOutcome{Kind: OutcomeLockedOut} }

func rejected(remaining int) DismissOutcome {
	return DismissOutcome{Kind: OutcomeRejected, RemainingAttempts: remaining}
}

func pinRequired(remaining int) DismissOutcome {
	return DismissOutcome{Kind: OutcomePINRequired, RemainingAttempts: remaining}
}
