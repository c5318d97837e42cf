// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package countdown provides a cancellable once-per-second countdown timer.
//
// A Timer ticks with the remaining whole-second count, first at seconds-1,
// and calls its expiry callback when the count reaches zero. Cancel is
// idempotent and non-blocking: once it returns, no tick or expiry that has
// not yet passed its liveness check will start. A callback that already
// passed the check may still start, or be finishing, after Cancel returns.
// Cancel does not wait for it because callbacks usually take the same lock
// the canceller holds. Owners that need strict ordering tag their callbacks
// with a run identity and discard stale ones under their own lock (the
// overlay controller does this with its session ID).
package countdown

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// tickInterval is the countdown resolution.
const tickInterval = time.Second

var (
	// ErrArmed is returned by Arm when the timer already has a run in progress.
	ErrArmed = errors.New("countdown already armed")

	// ErrInvalidDuration is returned by Arm for non-positive durations.
	ErrInvalidDuration = errors.New("countdown duration must be positive")
)

// Timer is a single-run countdown. After a run expires or is cancelled the
// Timer may be armed again.
type Timer struct {
	clock clockwork.Clock

	mu  sync.Mutex
	cur *run
}

// run is one armed countdown. cancelled is guarded by Timer.mu.
type run struct {
	stop      chan struct{}
	cancelled bool
	onTick    func(remaining int)
	onExpire  func()
}

// New creates a Timer driven by clock. A nil clock uses the real clock.
func New(clock clockwork.Clock) *Timer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Timer{clock: clock}
}

// Arm starts a countdown of the given number of seconds. onTick receives the
// remaining whole seconds after each elapsed second (seconds-1 down to 1);
// onExpire runs once when the countdown reaches zero. Either callback may be
// nil.
func (t *Timer) Arm(seconds int, onTick func(remaining int), onExpire func()) error {
	if seconds <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidDuration, seconds)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cur != nil {
		return ErrArmed
	}

	r := &run{
		stop:     make(chan struct{}),
		onTick:   onTick,
		onExpire: onExpire,
	}
	t.cur = r

	// The ticker is created before Arm returns so a fake clock advanced
	// immediately afterwards is observed by the run.
	ticker := t.clock.NewTicker(tickInterval)
	go t.loop(r, ticker, seconds)
	return nil
}

// Cancel stops the current run, if any. It is safe to call any number of
// times, including from inside a callback. It does not wait for a callback
// that is already under way.
func (t *Timer) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cur == nil {
		return
	}
	t.cur.cancelled = true
	close(t.cur.stop)
	t.cur = nil
}

// Armed reports whether a run is in progress.
func (t *Timer) Armed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cur != nil
}

func (t *Timer) loop(r *run, ticker clockwork.Ticker, seconds int) {
	defer ticker.Stop()

	remaining := seconds
	for {
		select {
		case <-r.stop:
			return
		case <-ticker.Chan():
		}

		remaining--
		if remaining <= 0 {
			t.expire(r)
			return
		}
		if !t.tick(r, remaining) {
			// onTick panicked; a timer that can no longer report progress
			// is treated as expired rather than left armed.
			t.expire(r)
			return
		}
	}
}

// live reports whether r is still the armed run. The caller holds no lock.
func (t *Timer) live(r *run) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !r.cancelled
}

// tick delivers one tick. It returns false if the callback panicked.
func (t *Timer) tick(r *run, remaining int) (ok bool) {
	if !t.live(r) || r.onTick == nil {
		return true
	}
	defer func() {
		if rec := recover(); rec != nil {
			ok = false
		}
	}()
	r.onTick(remaining)
	return true
}

// expire retires the run and invokes onExpire exactly once, unless the run
// was cancelled first.
func (t *Timer) expire(r *run) {
	t.mu.Lock()
	if r.cancelled {
		t.mu.Unlock()
		return
	}
	r.cancelled = true
	if t.cur == r {
		t.cur = nil
	}
	t.mu.Unlock()

	if r.onExpire == nil {
		return
	}
	defer func() {
		// Expiry is the last thing a run does; a panic here must not take
		// the process down with it.
		_ = recover()
	}()
	r.onExpire()
}
