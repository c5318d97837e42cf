// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package host

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/jeranaias/lockoverlay/internal/fsutil"
)

// Announcement text written into the presence record.
const (
	DefaultTitle   = "Lock Overlay Service"
	DefaultMessage = "Lock overlay is active"
)

// Record is the presence file's content.
type Record struct {
	PID       int       `json:"pid"`
	SessionID string    `json:"session_id"`
	Since     time.Time `json:"since"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
}

// Presence announces a running overlay session through a record file. It
// satisfies overlay.Announcer.
type Presence struct {
	path    string
	pid     int
	title   string
	message string
	clock   clockwork.Clock
	logger  *slog.Logger

	mu        sync.Mutex
	announced bool
}

// PresenceOption configures a Presence.
type PresenceOption func(*Presence)

// WithText overrides the announcement title and message.
func WithText(title, message string) PresenceOption {
	return func(p *Presence) {
		if title != "" {
			p.title = title
		}
		if message != "" {
			p.message = message
		}
	}
}

// WithPresenceClock sets the clock used for Record.Since.
func WithPresenceClock(c clockwork.Clock) PresenceOption {
	return func(p *Presence) {
		if c != nil {
			p.clock = c
		}
	}
}

// WithPresenceLogger sets the logger.
func WithPresenceLogger(l *slog.Logger) PresenceOption {
	return func(p *Presence) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewPresence creates a Presence writing to path.
func NewPresence(path string, opts ...PresenceOption) *Presence {
	p := &Presence{
		path:    path,
		pid:     os.Getpid(),
		title:   DefaultTitle,
		message: DefaultMessage,
		clock:   clockwork.NewRealClock(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Path returns the record file.
func (p *Presence) Path() string { return p.path }

// Announce writes the record for sessionID.
func (p *Presence) Announce(sessionID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec := Record{
		PID:       p.pid,
		SessionID: sessionID,
		Since:     p.clock.Now().UTC(),
		Title:     p.title,
		Message:   p.message,
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode presence record: %w", err)
	}
	if err := fsutil.WriteFileAtomic(p.path, data, fsutil.PrivateFilePerm); err != nil {
		return fmt.Errorf("failed to write presence record: %w", err)
	}
	p.announced = true
	p.logger.Debug("presence announced", "path", p.path, "session_id", sessionID)
	return nil
}

// Retract removes the record. Retracting without an announcement is a no-op.
func (p *Presence) Retract() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.announced = false
	if err := os.Remove(p.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove presence record: %w", err)
	}
	return nil
}

// Announced reports whether a record is currently published by this process.
func (p *Presence) Announced() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.announced
}

// ClearStale removes a record left behind by a daemon that died mid-session.
// Call it only while holding the InstanceLock: any record found then cannot
// belong to a live daemon.
func (p *Presence) ClearStale() (bool, error) {
	rec, ok, err := ReadPresence(p.path)
	if err != nil || !ok {
		// An unreadable record is removed all the same.
		if err != nil {
			p.logger.Warn("discarding unreadable presence record", "path", p.path, "error", err)
			return true, os.Remove(p.path)
		}
		return false, nil
	}
	if rec.Live() && rec.PID != os.Getpid() {
		// The writer still runs but no longer holds the lock, so it is not
		// a daemon any more; the PID may also have been reused.
		p.logger.Warn("clearing presence record of a process that no longer holds the lock",
			"pid", rec.PID, "session_id", rec.SessionID)
	} else {
		p.logger.Info("clearing stale presence record", "pid", rec.PID, "session_id", rec.SessionID)
	}
	if err := os.Remove(p.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("failed to remove stale presence record: %w", err)
	}
	return true, nil
}

// ReadPresence loads the record at path. ok is false when none exists.
func ReadPresence(path string) (rec Record, ok bool, err error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("failed to read presence record: %w", err)
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, false, fmt.Errorf("failed to parse presence record: %w", err)
	}
	return rec, true, nil
}

// Live reports whether the process that wrote rec is still running.
func (rec Record) Live() bool {
	return rec.PID > 0 && processAlive(rec.PID)
}
