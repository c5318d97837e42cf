// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package overlay

import (
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/jeranaias/lockoverlay/internal/countdown"
	"github.com/jeranaias/lockoverlay/internal/pin"
	"github.com/jeranaias/lockoverlay/internal/status"
)

// Audit event types emitted by the controller.
const (
	AuditActivated        = "OVERLAY_ACTIVATED"
	AuditActivateRejected = "OVERLAY_ACTIVATE_REJECTED"
	AuditDismissed        = "OVERLAY_DISMISSED"
	AuditExpired          = "OVERLAY_EXPIRED"
	AuditForceStop        = "OVERLAY_FORCE_STOP"
	AuditPINRejected      = "PIN_REJECTED"
	AuditPINLockout       = "PIN_LOCKOUT"
	AuditPINBlocked       = "PIN_BLOCKED"
)

// session is the single live overlay session. All fields are guarded by
// Controller.mu.
type session struct {
	id         string
	settings   Settings
	startedAt  time.Time
	timerArmed bool
	remaining  int
	tracker    *pin.Tracker
}

func (s *session) view() View {
	v := View{
		SessionID:          s.id,
		StartedAt:          s.startedAt,
		AutoDismissEnabled: s.settings.AutoDismissEnabled,
		TimerArmed:         s.timerArmed,
		PINRequired:        s.settings.PINGated(),
		FailedAttempts:     s.tracker.Failed(),
		RemainingAttempts:  s.tracker.Remaining(),
		LockedOut:          s.tracker.Locked(),
	}
	if s.settings.AutoDismissEnabled {
		v.AutoDismissSeconds = s.settings.timerSeconds()
	}
	if s.timerArmed {
		v.RemainingSeconds = s.remaining
	}
	return v
}

// Controller owns the overlay lifecycle. Activate, RequestDismiss, ForceStop
// and the countdown callbacks all serialise on one mutex, and every path that
// ends a session goes through teardownLocked.
type Controller struct {
	mu      sync.Mutex
	current *session

	surface   Surface
	announcer Announcer
	publisher Publisher
	auditor   Auditor
	recorder  Recorder

	clock       clockwork.Clock
	timer       *countdown.Timer
	maxAttempts int
	newID       func() string
	logger      *slog.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithSurface sets the initial presentation surface.
func WithSurface(s Surface) Option {
	return func(c *Controller) {
		if s != nil {
			c.surface = s
		}
	}
}

// WithAnnouncer sets the host presence announcer.
func WithAnnouncer(a Announcer) Option {
	return func(c *Controller) {
		if a != nil {
			c.announcer = a
		}
	}
}

// WithPublisher sets the status channel.
func WithPublisher(p Publisher) Option {
	return func(c *Controller) {
		if p != nil {
			c.publisher = p
		}
	}
}

// WithAuditor sets the audit sink.
func WithAuditor(a Auditor) Option {
	return func(c *Controller) {
		if a != nil {
			c.auditor = a
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(c *Controller) {
		if r != nil {
			c.recorder = r
		}
	}
}

// WithClock sets the clock used for session timestamps and the countdown.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Controller) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithMaxAttempts sets the PIN failure limit per session.
func WithMaxAttempts(n int) Option {
	return func(c *Controller) {
		if n >= 1 {
			c.maxAttempts = n
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithIDGenerator overrides session ID generation.
func WithIDGenerator(fn func() string) Option {
	return func(c *Controller) {
		if fn != nil {
			c.newID = fn
		}
	}
}

// NewController creates an idle Controller.
func NewController(opts ...Option) *Controller {
	c := &Controller{
		surface:     nopSurface{},
		announcer:   nopAnnouncer{},
		publisher:   nopPublisher{},
		auditor:     nopAuditor{},
		recorder:    nopRecorder{},
		clock:       clockwork.NewRealClock(),
		maxAttempts: pin.DefaultMaxAttempts,
		newID:       uuid.NewString,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.timer = countdown.New(c.clock)
	return c
}

// =============================================================================
// OPERATIONS
// =============================================================================

// Activate starts a session with a copy of settings. It returns
// ErrAlreadyActive, leaving the running session untouched, if one exists.
func (c *Controller) Activate(settings Settings) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil {
		c.auditor.Record(AuditActivateRejected, c.current.id, false, map[string]string{
			"reason": "already_active",
		})
		c.logger.Info("activation refused", "session_id", c.current.id, "reason", "already active")
		return ErrAlreadyActive
	}

	s := &session{
		id:        c.newID(),
		settings:  settings,
		startedAt: c.clock.Now(),
		tracker:   pin.NewTracker(pin.WithMaxAttempts(c.maxAttempts)),
	}
	c.current = s

	if err := c.announcer.Announce(s.id); err != nil {
		// The overlay still works without the presence record; the host
		// just has less reason to keep the process alive.
		c.logger.Warn("failed to announce overlay presence", "session_id", s.id, "error", err)
	}

	if settings.AutoDismissEnabled {
		c.armLocked(s)
	}

	c.surface.Show(s.view())

	ev := status.NewEvent(status.KindShown, s.id, s.startedAt)
	ev.PINProtected = settings.PINGated()
	if settings.AutoDismissEnabled {
		ev.AutoDismissSeconds = settings.timerSeconds()
	}
	c.publisher.Publish(ev)

	c.recorder.Activated()
	c.recorder.OverlayActive(true)
	c.auditor.Record(AuditActivated, s.id, true, map[string]string{
		"auto_dismiss":   strconv.FormatBool(settings.AutoDismissEnabled),
		"duration_secs":  strconv.Itoa(s.view().AutoDismissSeconds),
		"pin_protection": strconv.FormatBool(settings.PINGated()),
	})
	c.logger.Info("overlay shown",
		"session_id", s.id,
		"auto_dismiss", settings.AutoDismissEnabled,
		"remaining", s.remaining,
		"pin_protected", settings.PINGated(),
	)
	c.logger.Debug("session settings", "session_id", s.id, "settings", settings.Redacted())
	return nil
}

// RequestDismiss asks to end the session, supplying a PIN when the session
// is PIN gated. A nil pin means none was entered.
func (c *Controller) RequestDismiss(entered *string) DismissOutcome {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.current
	if s == nil {
		return notActive()
	}

	if !s.settings.PINGated() {
		c.teardownLocked(status.ReasonUser)
		return dismissed()
	}

	if s.tracker.Locked() {
		c.recorder.PINAttempt("blocked")
		c.auditor.Record(AuditPINBlocked, s.id, false, nil)
		return lockedOut()
	}

	if entered == nil {
		return pinRequired(s.tracker.Remaining())
	}

	candidate := pin.Normalize(*entered)
	if pin.ValidateFormat(candidate) == nil && pin.Verify(s.settings.PINCode, candidate) == pin.Match {
		s.tracker.Succeed()
		c.recorder.PINAttempt("match")
		c.teardownLocked(status.ReasonPIN)
		return dismissed()
	}

	remaining, locked := s.tracker.Fail()
	c.recorder.PINAttempt("mismatch")
	c.surface.Update(s.view())

	if locked {
		c.recorder.LockedOut()
		c.auditor.Record(AuditPINLockout, s.id, false, map[string]string{
			"attempts": strconv.Itoa(s.tracker.Failed()),
		})
		c.logger.Warn("pin entry locked out", "session_id", s.id, "attempts", s.tracker.Failed())
		return lockedOut()
	}

	c.auditor.Record(AuditPINRejected, s.id, false, map[string]string{
		"remaining_attempts": strconv.Itoa(remaining),
	})
	c.logger.Info("pin rejected", "session_id", s.id, "remaining_attempts", remaining)
	return rejected(remaining)
}

// ForceStop ends any session regardless of PIN gating. It is a no-op while
// idle.
func (c *Controller) ForceStop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.teardownLocked(status.ReasonForceStop)
}

// AttachSurface replaces the presentation surface. If a session is active
// the new surface is shown immediately, which is how a surface that was torn
// down and re-created gets the overlay back.
func (c *Controller) AttachSurface(s Surface) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s == nil {
		s = nopSurface{}
	}
	c.surface = s
	if c.current != nil {
		s.Show(c.current.view())
	}
}

// DetachSurface drops s if it is the current surface.
func (c *Controller) DetachSurface(s Surface) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.surface == s {
		c.surface = nopSurface{}
	}
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return StateIdle
	}
	return StateShowing
}

// Status returns a snapshot of the current session, if any.
func (c *Controller) Status() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return Snapshot{State: StateIdle}
	}
	v := c.current.view()
	return Snapshot{State: StateShowing, View: &v}
}

// =============================================================================
// COUNTDOWN
// =============================================================================

func (c *Controller) armLocked(s *session) {
	seconds := s.settings.timerSeconds()
	id := s.id
	err := c.timer.Arm(seconds,
		func(remaining int) { c.onTick(id, remaining) },
		func() { c.onTimerExpired(id) },
	)
	if err != nil {
		c.logger.Error("failed to arm auto-dismiss timer", "session_id", id, "error", err)
		return
	}
	s.timerArmed = true
	s.remaining = seconds
}

func (c *Controller) onTick(id string, remaining int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.current
	if s == nil || s.id != id || !s.timerArmed {
		return
	}
	s.remaining = remaining
	c.surface.Update(s.view())
}

// onTimerExpired tears down the session the timer was armed for. Expiry is
// time based and deliberately skips PIN verification.
func (c *Controller) onTimerExpired(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.current
	if s == nil || s.id != id {
		// Stale expiry from a session that already ended.
		return
	}
	s.timerArmed = false
	s.remaining = 0
	c.teardownLocked(status.ReasonTimer)
}

// =============================================================================
// TEARDOWN
// =============================================================================

// teardownLocked is the only path that ends a session. The first caller does
// the work; later callers find no session and return false.
func (c *Controller) teardownLocked(reason status.Reason) bool {
	s := c.current
	if s == nil {
		return false
	}

	c.timer.Cancel()
	c.current = nil

	c.surface.Hide()

	if err := c.announcer.Retract(); err != nil {
		c.logger.Warn("failed to retract overlay presence", "session_id", s.id, "error", err)
	}

	ev := status.NewEvent(status.KindDismissed, s.id, c.clock.Now())
	ev.Reason = reason
	c.publisher.Publish(ev)

	c.recorder.Dismissed(string(reason))
	c.recorder.OverlayActive(false)

	auditType := AuditDismissed
	switch reason {
	case status.ReasonTimer:
		auditType = AuditExpired
	case status.ReasonForceStop:
		auditType = AuditForceStop
	}
	c.auditor.Record(auditType, s.id, true, map[string]string{
		"reason":   string(reason),
		"duration": c.clock.Since(s.startedAt).Round(time.Second).String(),
	})
	c.logger.Info("overlay dismissed", "session_id", s.id, "reason", reason)
	return true
}
