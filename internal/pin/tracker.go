// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package pin

// DefaultMaxAttempts is the number of consecutive failures that lock out PIN
// entry for the remainder of a session.
const DefaultMaxAttempts = 3

// Tracker counts consecutive failed PIN attempts for a single overlay session.
//
// Tracker is not safe for concurrent use; the overlay controller only touches
// it while holding its own lock.
type Tracker struct {
	failed      int
	maxAttempts int
	locked      bool
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithMaxAttempts sets the failure count that triggers lockout.
// Values below 1 are ignored.
func WithMaxAttempts(max int) TrackerOption {
	return func(t *Tracker) {
		if max >= 1 {
			t.maxAttempts = max
		}
	}
}

// NewTracker creates a Tracker with DefaultMaxAttempts unless overridden.
func NewTracker(opts ...TrackerOption) *Tracker {
	t := &Tracker{maxAttempts: DefaultMaxAttempts}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Fail records a failed attempt and returns the attempts left before lockout
// and whether the tracker is now locked. Once locked, Fail keeps returning
// (0, true) without counting further.
func (t *Tracker) Fail() (remaining int, locked bool) {
	if t.locked {
		return 0, true
	}
	t.failed++
	if t.failed >= t.maxAttempts {
		t.locked = true
		return 0, true
	}
	return t.maxAttempts - t.failed, false
}

// Succeed resets the failure counter. It has no effect once locked.
func (t *Tracker) Succeed() {
	if t.locked {
		return
	}
	t.failed = 0
}

// Failed returns the number of consecutive failed attempts.
func (t *Tracker) Failed() int {
	return t.failed
}

// Remaining returns the attempts left before lockout.
func (t *Tracker) Remaining() int {
	if t.locked {
		return 0
	}
	return t.maxAttempts - t.failed
}

// Locked reports whether the failure limit has been reached.
func (t *Tracker) Locked() bool {
	return t.locked
}

// MaxAttempts returns the configured failure limit.
func (t *Tracker) MaxAttempts() int {
	return t.maxAttempts
}
