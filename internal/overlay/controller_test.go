// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package overlay

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/lockoverlay/internal/status"
)

// =============================================================================
// TEST DOUBLES
// =============================================================================

// fakeSurface records commands and flags any Show while already showing.
type fakeSurface struct {
	mu         sync.Mutex
	showing    bool
	shows      int
	hides      int
	updates    int
	last       View
	violations []string
}

func (f *fakeSurface) Show(v View) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.showing {
		f.violations = append(f.violations, "show while showing "+v.SessionID)
	}
	f.showing = true
	f.shows++
	f.last = v
}

func (f *fakeSurface) Update(v View) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	f.last = v
}

func (f *fakeSurface) Hide() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.showing {
		f.violations = append(f.violations, "hide while hidden")
	}
	f.showing = false
	f.hides++
}

func (f *fakeSurface) snapshot() (shows, hides int, last View, violations []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.shows, f.hides, f.last, append([]string(nil), f.violations...)
}

type fakeAnnouncer struct {
	announced atomic.Int32
	retracted atomic.Int32
	fail      bool
}

func (f *fakeAnnouncer) Announce(string) error {
	f.announced.Add(1)
	if f.fail {
		return errors.New("presence unavailable")
	}
	return nil
}

func (f *fakeAnnouncer) Retract() error {
	f.retracted.Add(1)
	return nil
}

type auditEntry struct {
	eventType string
	success   bool
}

type fakeAuditor struct {
	mu      sync.Mutex
	entries []auditEntry
}

func (f *fakeAuditor) Record(eventType, _ string, success bool, _ map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, auditEntry{eventType, success})
}

func (f *fakeAuditor) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.entries))
	for _, e := range f.entries {
		out = append(out, e.eventType)
	}
	return out
}

type harness struct {
	ctrl      *Controller
	clock     *clockwork.FakeClock
	bus       *status.Bus
	sub       *status.Subscription
	surface   *fakeSurface
	announcer *fakeAnnouncer
	auditor   *fakeAuditor
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		clock:     clockwork.NewFakeClock(),
		bus:       status.NewBus(status.WithBuffer(4096)),
		surface:   &fakeSurface{},
		announcer: &fakeAnnouncer{},
		auditor:   &fakeAuditor{},
	}
	h.sub = h.bus.Subscribe(false)
	t.Cleanup(h.sub.Close)

	base := []Option{
		WithClock(h.clock),
		WithPublisher(h.bus),
		WithSurface(h.surface),
		WithAnnouncer(h.announcer),
		WithAuditor(h.auditor),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	h.ctrl = NewController(append(base, opts...)...)
	return h
}

// drain returns every event published so far.
func (h *harness) drain() []status.Event {
	var out []status.Event
	for {
		select {
		case e := <-h.sub.Events():
			out = append(out, e)
		case <-time.After(50 * time.Millisecond):
			return out
		}
	}
}

func countKind(events []status.Event, kind status.Kind) int {
	n := 0
	for _, e := range events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

func strPtr(s string) *string { return &s }

func pinSettings() Settings {
	return Settings{PINProtectionEnabled: true, PINCode: "1234"}
}

// =============================================================================
// ACTIVATE
// =============================================================================

func TestActivate_ShowsAnnouncesAndPublishes(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.ctrl.Activate(Settings{}))

	assert.Equal(t, StateShowing, h.ctrl.State())
	shows, _, last, _ := h.surface.snapshot()
	assert.Equal(t, 1, shows)
	assert.NotEmpty(t, last.SessionID)
	assert.False(t, last.TimerArmed)
	assert.Equal(t, int32(1), h.announcer.announced.Load())

	events := h.drain()
	require.Len(t, events, 1)
	assert.Equal(t, status.KindShown, events[0].Kind)
	assert.Equal(t, last.SessionID, events[0].SessionID)
	assert.Contains(t, h.auditor.types(), AuditActivated)
}

func TestActivate_AnnounceFailureDoesNotBlockOverlay(t *testing.T) {
	h := newHarness(t)
	h.announcer.fail = true

	require.NoError(t, h.ctrl.Activate(Settings{}))
	assert.Equal(t, StateShowing, h.ctrl.State())
}

func TestActivate_AlreadyActiveLeavesSessionUntouched(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.ctrl.Activate(Settings{AutoDismissEnabled: true, AutoDismissSeconds: 30}))

	h.clock.Advance(time.Second)
	require.Eventually(t, func() bool {
		return h.ctrl.Status().View.RemainingSeconds == 29
	}, time.Second, 5*time.Millisecond)

	before := h.ctrl.Status()
	err := h.ctrl.Activate(Settings{AutoDismissEnabled: true, AutoDismissSeconds: 120})
	assert.ErrorIs(t, err, ErrAlreadyActive)

	after := h.ctrl.Status()
	assert.Equal(t, before.View.SessionID, after.View.SessionID)
	assert.Equal(t, 29, after.View.RemainingSeconds)
	assert.Equal(t, 30, after.View.AutoDismissSeconds)

	shows, _, _, _ := h.surface.snapshot()
	assert.Equal(t, 1, shows)
	assert.Equal(t, 1, countKind(h.drain(), status.KindShown))
	assert.Contains(t, h.auditor.types(), AuditActivateRejected)
}

func TestActivate_TimerUsesDefaultWhenDurationMissing(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.ctrl.Activate(Settings{AutoDismissEnabled: true}))

	v := h.ctrl.Status().View
	require.NotNil(t, v)
	assert.True(t, v.TimerArmed)
	assert.Equal(t, DefaultAutoDismissSeconds, v.RemainingSeconds)
}

// =============================================================================
// DISMISS
// =============================================================================

func TestRequestDismiss_NotActive(t *testing.T) {
	h := newHarness(t)
	out := h.ctrl.RequestDismiss(nil)

	assert.Equal(t, OutcomeNotActive, out.Kind)
	assert.Empty(t, h.drain())
}

func TestRequestDismiss_WithoutPINProtection(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.ctrl.Activate(Settings{}))

	out := h.ctrl.RequestDismiss(nil)
	assert.Equal(t, OutcomeDismissed, out.Kind)
	assert.Equal(t, StateIdle, h.ctrl.State())

	_, hides, _, _ := h.surface.snapshot()
	assert.Equal(t, 1, hides)
	assert.Equal(t, int32(1), h.announcer.retracted.Load())

	events := h.drain()
	require.Len(t, events, 2)
	assert.Equal(t, status.KindDismissed, events[1].Kind)
	assert.Equal(t, status.ReasonUser, events[1].Reason)
}

func TestRequestDismiss_ProtectionWithoutPINDismissesDirectly(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.ctrl.Activate(Settings{PINProtectionEnabled: true}))

	out := h.ctrl.RequestDismiss(nil)
	assert.Equal(t, OutcomeDismissed, out.Kind)
}

func TestRequestDismiss_CorrectPIN(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.ctrl.Activate(pinSettings()))

	out := h.ctrl.RequestDismiss(strPtr("1234"))
	assert.Equal(t, OutcomeDismissed, out.Kind)
	assert.Equal(t, StateIdle, h.ctrl.State())

	events := h.drain()
	require.Equal(t, 1, countKind(events, status.KindDismissed))
	assert.Equal(t, status.ReasonPIN, events[len(events)-1].Reason)
}

func TestRequestDismiss_WrongPINIsRejected(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.ctrl.Activate(pinSettings()))

	out := h.ctrl.RequestDismiss(strPtr("0000"))
	assert.Equal(t, DismissOutcome{Kind: OutcomeRejected, RemainingAttempts: 2}, out)
	assert.Equal(t, "Incorrect PIN. Attempts remaining: 2", out.Message())
	assert.Equal(t, StateShowing, h.ctrl.State())

	v := h.ctrl.Status().View
	assert.Equal(t, 1, v.FailedAttempts)
	assert.Contains(t, h.auditor.types(), AuditPINRejected)
}

func TestRequestDismiss_ThirdFailureLocksOut(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.ctrl.Activate(pinSettings()))

	assert.Equal(t, OutcomeRejected, h.ctrl.RequestDismiss(strPtr("0000")).Kind)
	assert.Equal(t, OutcomeRejected, h.ctrl.RequestDismiss(strPtr("1111")).Kind)
	out := h.ctrl.RequestDismiss(strPtr("2222"))

	assert.Equal(t, OutcomeLockedOut, out.Kind)
	assert.Equal(t, StateShowing, h.ctrl.State())
	assert.True(t, h.ctrl.Status().View.LockedOut)
	assert.Equal(t, 0, countKind(h.drain(), status.KindDismissed))
	assert.Contains(t, h.auditor.types(), AuditPINLockout)
}

func TestRequestDismiss_LockoutBlocksEvenCorrectPIN(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.ctrl.Activate(pinSettings()))
	for i := 0; i < 3; i++ {
		h.ctrl.RequestDismiss(strPtr("9999"))
	}

	out := h.ctrl.RequestDismiss(strPtr("1234"))
	assert.Equal(t, OutcomeLockedOut, out.Kind)
	assert.Equal(t, StateShowing, h.ctrl.State())
	assert.Equal(t, 3, h.ctrl.Status().View.FailedAttempts)
	assert.Contains(t, h.auditor.types(), AuditPINBlocked)

	h.ctrl.ForceStop()
	assert.Equal(t, StateIdle, h.ctrl.State())
}

func TestRequestDismiss_MissingPINIsNotCounted(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.ctrl.Activate(pinSettings()))

	out := h.ctrl.RequestDismiss(nil)
	assert.Equal(t, OutcomePINRequired, out.Kind)
	assert.Equal(t, 3, out.RemainingAttempts)
	assert.Equal(t, 0, h.ctrl.Status().View.FailedAttempts)
}

func TestRequestDismiss_MalformedPINCountsAsFailure(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.ctrl.Activate(pinSettings()))

	out := h.ctrl.RequestDismiss(strPtr("12"))
	assert.Equal(t, DismissOutcome{Kind: OutcomeRejected, RemainingAttempts: 2}, out)

	out = h.ctrl.RequestDismiss(strPtr("12345"))
	assert.Equal(t, DismissOutcome{Kind: OutcomeRejected, RemainingAttempts: 1}, out)
}

func TestRequestDismiss_FullWidthPINIsAccepted(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.ctrl.Activate(pinSettings()))

	out := h.ctrl.RequestDismiss(strPtr("１２３４"))
	assert.Equal(t, OutcomeDismissed, out.Kind)
}

func TestRequestDismiss_FailuresThenSuccess(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.ctrl.Activate(pinSettings()))

	h.ctrl.RequestDismiss(strPtr("0000"))
	h.ctrl.RequestDismiss(strPtr("0001"))
	out := h.ctrl.RequestDismiss(strPtr("1234"))
	assert.Equal(t, OutcomeDismissed, out.Kind)

	// A fresh session starts with a clean counter.
	require.NoError(t, h.ctrl.Activate(pinSettings()))
	assert.Equal(t, 0, h.ctrl.Status().View.FailedAttempts)
}

func TestRequestDismiss_RejectionUpdatesSurface(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.ctrl.Activate(pinSettings()))
	h.ctrl.RequestDismiss(strPtr("0000"))

	_, _, last, _ := h.surface.snapshot()
	assert.Equal(t, 1, last.FailedAttempts)
	assert.Equal(t, 2, last.RemainingAttempts)
	assert.True(t, last.PINRequired)
}

// =============================================================================
// FORCE STOP AND TEARDOWN
// =============================================================================

func TestForceStop_IdleIsNoop(t *testing.T) {
	h := newHarness(t)
	h.ctrl.ForceStop()
	h.ctrl.ForceStop()

	assert.Empty(t, h.drain())
	assert.Equal(t, int32(0), h.announcer.retracted.Load())
}

func TestTeardown_IdempotentUnderConcurrency(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.ctrl.Activate(pinSettings()))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.ctrl.ForceStop()
		}()
	}
	wg.Wait()

	events := h.drain()
	assert.Equal(t, 1, countKind(events, status.KindDismissed))
	assert.Equal(t, status.ReasonForceStop, events[len(events)-1].Reason)
	_, hides, _, violations := h.surface.snapshot()
	assert.Equal(t, 1, hides)
	assert.Empty(t, violations)
	assert.Equal(t, int32(1), h.announcer.retracted.Load())
}

// =============================================================================
// TIMER
// =============================================================================

func TestTimer_TicksUpdateSurface(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.ctrl.Activate(Settings{AutoDismissEnabled: true, AutoDismissSeconds: 15}))

	h.clock.Advance(time.Second)
	require.Eventually(t, func() bool {
		_, _, last, _ := h.surface.snapshot()
		return last.RemainingSeconds == 14
	}, time.Second, 5*time.Millisecond)
}

func TestTimer_AutoDismissBypassesPIN(t *testing.T) {
	h := newHarness(t)
	settings := pinSettings()
	settings.AutoDismissEnabled = true
	settings.AutoDismissSeconds = 2
	require.NoError(t, h.ctrl.Activate(settings))

	h.clock.Advance(time.Second)
	require.Eventually(t, func() bool {
		v := h.ctrl.Status().View
		return v != nil && v.RemainingSeconds == 1
	}, time.Second, 5*time.Millisecond)
	h.clock.Advance(time.Second)

	require.Eventually(t, func() bool {
		return h.ctrl.State() == StateIdle
	}, time.Second, 5*time.Millisecond)

	events := h.drain()
	require.Equal(t, 1, countKind(events, status.KindDismissed))
	assert.Equal(t, status.ReasonTimer, events[len(events)-1].Reason)

	for _, typ := range h.auditor.types() {
		assert.NotContains(t, []string{AuditPINRejected, AuditPINLockout, AuditPINBlocked}, typ)
	}
	assert.Contains(t, h.auditor.types(), AuditExpired)
}

func TestTimer_ExpiryAfterLockoutStillDismisses(t *testing.T) {
	h := newHarness(t)
	settings := pinSettings()
	settings.AutoDismissEnabled = true
	settings.AutoDismissSeconds = 1
	require.NoError(t, h.ctrl.Activate(settings))
	for i := 0; i < 3; i++ {
		h.ctrl.RequestDismiss(strPtr("0000"))
	}

	h.clock.Advance(time.Second)
	require.Eventually(t, func() bool {
		return h.ctrl.State() == StateIdle
	}, time.Second, 5*time.Millisecond)
}

func TestTimer_RaceWithCorrectPIN(t *testing.T) {
	for i := 0; i < 50; i++ {
		t.Run(fmt.Sprintf("round-%d", i), func(t *testing.T) {
			h := newHarness(t)
			settings := pinSettings()
			settings.AutoDismissEnabled = true
			settings.AutoDismissSeconds = 1
			require.NoError(t, h.ctrl.Activate(settings))

			start := make(chan struct{})
			var wg sync.WaitGroup
			wg.Add(2)
			go func() {
				defer wg.Done()
				<-start
				h.clock.Advance(time.Second)
			}()
			go func() {
				defer wg.Done()
				<-start
				h.ctrl.RequestDismiss(strPtr("1234"))
			}()
			close(start)
			wg.Wait()

			require.Eventually(t, func() bool {
				return h.ctrl.State() == StateIdle
			}, time.Second, 5*time.Millisecond)

			// Let any straggling expiry callback run before counting.
			events := h.drain()
			assert.Equal(t, 1, countKind(events, status.KindDismissed))
			_, hides, _, violations := h.surface.snapshot()
			assert.Equal(t, 1, hides)
			assert.Empty(t, violations)
			assert.Equal(t, int32(1), h.announcer.retracted.Load())
		})
	}
}

func TestTimer_StaleExpiryIsIgnored(t *testing.T) {
	ids := []string{"first", "second"}
	var n int
	h := newHarness(t, WithIDGenerator(func() string {
		id := ids[n]
		n++
		return id
	}))

	require.NoError(t, h.ctrl.Activate(Settings{AutoDismissEnabled: true, AutoDismissSeconds: 1}))
	h.ctrl.ForceStop()
	require.NoError(t, h.ctrl.Activate(Settings{}))

	// Simulate the first session's expiry arriving late.
	h.ctrl.onTimerExpired("first")
	h.ctrl.onTick("first", 5)

	snap := h.ctrl.Status()
	require.True(t, snap.Active())
	assert.Equal(t, "second", snap.View.SessionID)
	assert.False(t, snap.View.TimerArmed)
}

// =============================================================================
// SURFACE RE-ATTACH
// =============================================================================

func TestAttachSurface_ReshowsActiveSession(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.ctrl.Activate(pinSettings()))
	h.ctrl.RequestDismiss(strPtr("0000"))

	replacement := &fakeSurface{}
	h.ctrl.AttachSurface(replacement)

	shows, _, last, _ := replacement.snapshot()
	assert.Equal(t, 1, shows)
	assert.Equal(t, 1, last.FailedAttempts)

	h.ctrl.ForceStop()
	_, hides, _, _ := replacement.snapshot()
	assert.Equal(t, 1, hides)
}

func TestAttachSurface_IdleDoesNotShow(t *testing.T) {
	h := newHarness(t)
	replacement := &fakeSurface{}
	h.ctrl.AttachSurface(replacement)

	shows, _, _, _ := replacement.snapshot()
	assert.Equal(t, 0, shows)

	h.ctrl.DetachSurface(replacement)
	require.NoError(t, h.ctrl.Activate(Settings{}))
	shows, _, _, _ = replacement.snapshot()
	assert.Equal(t, 0, shows)
}

// =============================================================================
// SINGLE SESSION PROPERTY
// =============================================================================

// TestSingleSession_RandomInterleavings hammers the controller from several
// goroutines with a random mix of triggers. The surface and announcer act as
// invariant checkers: a second Show without an intervening Hide, or more
// announcements outstanding than one, means two sessions existed at once.
func TestSingleSession_RandomInterleavings(t *testing.T) {
	for seed := int64(1); seed <= 20; seed++ {
		t.Run(fmt.Sprintf("seed-%d", seed), func(t *testing.T) {
			h := newHarness(t)
			var outstanding atomic.Int32
			var maxOutstanding atomic.Int32

			announcer := &countingAnnouncer{outstanding: &outstanding, max: &maxOutstanding}
			h.ctrl.announcer = announcer

			var wg sync.WaitGroup
			for w := 0; w < 4; w++ {
				wg.Add(1)
				go func(r *rand.Rand) {
					defer wg.Done()
					for i := 0; i < 100; i++ {
						switch r.Intn(6) {
						case 0:
							_ = h.ctrl.Activate(Settings{AutoDismissEnabled: true, AutoDismissSeconds: 1 + r.Intn(2)})
						case 1:
							_ = h.ctrl.Activate(pinSettings())
						case 2:
							h.ctrl.RequestDismiss(strPtr("1234"))
						case 3:
							h.ctrl.RequestDismiss(strPtr("0000"))
						case 4:
							h.ctrl.ForceStop()
						case 5:
							h.clock.Advance(time.Second)
						}
					}
				}(rand.New(rand.NewSource(seed*100 + int64(w))))
			}
			wg.Wait()
			h.ctrl.ForceStop()

			require.Eventually(t, func() bool {
				return h.ctrl.State() == StateIdle
			}, time.Second, 5*time.Millisecond)

			events := h.drain()
			_, _, _, violations := h.surface.snapshot()
			assert.Empty(t, violations)
			assert.LessOrEqual(t, maxOutstanding.Load(), int32(1))
			assert.Equal(t, countKind(events, status.KindShown), countKind(events, status.KindDismissed))

			// Shown and Dismissed must strictly alternate.
			expect := status.KindShown
			for _, e := range events {
				require.Equal(t, expect, e.Kind, "event %s out of order", e)
				if expect == status.KindShown {
					expect = status.KindDismissed
				} else {
					expect = status.KindShown
				}
			}
		})
	}
}

type countingAnnouncer struct {
	outstanding *atomic.Int32
	max         *atomic.Int32
}

func (c *countingAnnouncer) Announce(string) error {
	n := c.outstanding.Add(1)
	for {
		m := c.max.Load()
		if n <= m || c.max.CompareAndSwap(m, n) {
			break
		}
	}
	return nil
}

func (c *countingAnnouncer) Retract() error {
	c.outstanding.Add(-1)
	return nil
}

// =============================================================================
// TYPES
// =============================================================================

func TestOutcomeKind_TextRoundTrip(t *testing.T) {
	for kind := range outcomeNames {
		text, err := kind.MarshalText()
		require.NoError(t, err)
		var got OutcomeKind
		require.NoError(t, got.UnmarshalText(text))
		assert.Equal(t, kind, got)
	}
	var k OutcomeKind
	assert.Error(t, k.UnmarshalText([]byte("exploded")))
}

func TestSettings_Helpers(t *testing.T) {
	assert.True(t, ValidDuration(90))
	assert.False(t, ValidDuration(45))
	assert.False(t, Settings{PINProtectionEnabled: true}.PINGated())
	assert.True(t, pinSettings().PINGated())
	assert.Equal(t, "****", pinSettings().Redacted().PINCode)
	assert.Equal(t, "", Settings{}.Redacted().PINCode)
}

func TestController_LogsNeverCarryPIN(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	h := newHarness(t, WithLogger(logger))

	require.NoError(t, h.ctrl.Activate(Settings{PINProtectionEnabled: true, PINCode: "4821"}))
	h.ctrl.RequestDismiss(strPtr("0000"))
	assert.Equal(t, OutcomeDismissed, h.ctrl.RequestDismiss(strPtr("4821")).Kind)

	out := buf.String()
	assert.Contains(t, out, "session settings")
	assert.Contains(t, out, "****")
	assert.NotContains(t, out, "4821")
}
