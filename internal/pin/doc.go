// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package pin provides PIN verification and failed-attempt tracking for the
// lock overlay.
//
// # Verification
//
// Verify is a pure function over a stored PIN and an entered PIN. The stored
// PIN must be exactly four ASCII digits. Entered input must be checked with
// ValidateFormat before comparison so that length mismatches never reach the
// comparator; equal-length strings are compared in fixed time.
//
//	entered := pin.Normalize(raw)
//	if err := pin.ValidateFormat(entered); err != nil {
//	    // count as a failed attempt, do not compare
//	}
//	if pin.Verify(stored, entered) == pin.Match {
//	    // dismiss
//	}
//
// # Attempt tracking
//
// Tracker counts consecutive failures for one overlay session. It does not
// persist anything; the overlay controller creates a fresh Tracker for every
// session and discards it on teardown.
//
//	tracker := pin.NewTracker(pin.WithMaxAttempts(3))
//	remaining, locked := tracker.Fail()
package pin
