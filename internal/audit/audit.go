// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package audit provides an append-only JSON-lines log of overlay lifecycle
// and PIN events, with secret redaction and size-based rotation.
package audit

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/jeranaias/lockoverlay/internal/fsutil"
)

// =============================================================================
// CONSTANTS
// =============================================================================

// DefaultMaxFileSize is the size at which the log rotates (10MB).
const DefaultMaxFileSize int64 = 10 * 1024 * 1024

// failureThreshold is the number of consecutive write failures after which
// the logger stops trying until Reset.
const failureThreshold = 5

// ErrFailed is returned once the logger has given up after repeated failures.
var ErrFailed = errors.New("audit log has failed")

// =============================================================================
// EVENT
// =============================================================================

// Event is a single audit record.
type Event struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	SessionID string            `json:"session_id,omitempty"`
	Success   bool              `json:"success"`
	PID       int               `json:"pid"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// =============================================================================
// REDACTION
// =============================================================================

// sensitiveKeys never have their values written.
var sensitiveKeys = []string{"pin", "pin_code", "token", "password", "secret"}

var secretPatterns = []struct {
	pattern *regexp.Regexp
	replace string
}{
	{regexp.MustCompile(`Bearer\s+[a-zA-Z0-9\-_.]+`), "Bearer [TOKEN_REDACTED]"},
	{regexp.MustCompile(`(?i)(pin|pin_code|password)\s*[=:]\s*\S+`), "[PIN_REDACTED]"},
}

// Redact scrubs secrets from a free-form string.
func Redact(input string) string {
	for _, sp := range secretPatterns {
		input = sp.pattern.ReplaceAllString(input, sp.replace)
	}
	return input
}

func redactMetadata(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		lk := strings.ToLower(k)
		sensitive := false
		for _, s := range sensitiveKeys {
			if lk == s {
				sensitive = true
				break
			}
		}
		if sensitive {
			out[k] = "[REDACTED]"
			continue
		}
		out[k] = Redact(v)
	}
	return out
}

// =============================================================================
// LOGGER
// =============================================================================

// Logger writes audit events. It satisfies overlay.Auditor.
type Logger struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	enabled  bool
	maxSize  int64
	clock    clockwork.Clock
	pid      int
	logger   *slog.Logger
	failures int
	failed   bool
}

// Option configures a Logger.
type Option func(*Logger)

// WithMaxSize sets the rotation threshold. Zero disables rotation.
func WithMaxSize(n int64) Option {
	return func(l *Logger) { l.maxSize = n }
}

// WithClock sets the clock used for timestamps and rotation suffixes.
func WithClock(c clockwork.Clock) Option {
	return func(l *Logger) {
		if c != nil {
			l.clock = c
		}
	}
}

// WithLogger sets where write failures are reported.
func WithLogger(sl *slog.Logger) Option {
	return func(l *Logger) {
		if sl != nil {
			l.logger = sl
		}
	}
}

// Open creates or appends to the audit log at path.
func Open(path string, opts ...Option) (*Logger, error) {
	if err := fsutil.EnsurePrivateDir(filepath.Dir(path)); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}
	file, err := openAppend(path)
	if err != nil {
		return nil, err
	}

	l := &Logger{
		path:    path,
		file:    file,
		enabled: true,
		maxSize: DefaultMaxFileSize,
		clock:   clockwork.NewRealClock(),
		pid:     os.Getpid(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

func openAppend(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, fsutil.PrivateFilePerm)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log file: %w", err)
	}
	return f, nil
}

// Record logs an event, reporting failures to the slog logger rather than
// the caller. The overlay controller calls it under its own lock.
func (l *Logger) Record(eventType, sessionID string, success bool, metadata map[string]string) {
	err := l.Log(Event{
		EventType: eventType,
		SessionID: sessionID,
		Success:   success,
		Metadata:  metadata,
	})
	if err != nil {
		l.logger.Warn("audit write failed", "event_type", eventType, "error", err)
	}
}

// Log writes event as one JSON line. A zero Timestamp is filled in.
func (l *Logger) Log(event Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.enabled || l.file == nil {
		return nil
	}
	if l.failed {
		return ErrFailed
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = l.clock.Now().UTC()
	}
	event.PID = l.pid
	event.Metadata = redactMetadata(event.Metadata)

	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode audit event: %w", err)
	}

	if err := l.checkRotationLocked(); err != nil {
		return l.failLocked(err)
	}
	if _, err := l.file.Write(append(line, '\n')); err != nil {
		return l.failLocked(fmt.Errorf("failed to write audit log: %w", err))
	}
	if err := l.file.Sync(); err != nil {
		return l.failLocked(fmt.Errorf("failed to sync audit log: %w", err))
	}

	l.failures = 0
	return nil
}

func (l *Logger) failLocked(err error) error {
	l.failures++
	if l.failures >= failureThreshold {
		l.failed = true
		l.logger.Error("audit log disabled after repeated failures", "failures", l.failures, "error", err)
	}
	return err
}

// =============================================================================
// ROTATION
// =============================================================================

func (l *Logger) rotateLocked() error {
	if l.file == nil {
		return nil
	}
	if err := l.file.Close(); err != nil {
		return fmt.Errorf("failed to close audit log for rotation: %w", err)
	}

	ext := filepath.Ext(l.path)
	base := strings.TrimSuffix(l.path, ext)
	rotated := fmt.Sprintf("%s_%s%s", base, l.clock.Now().Format("20060102_150405.000"), ext)

	if err := os.Rename(l.path, rotated); err != nil {
		l.file, _ = openAppend(l.path)
		return fmt.Errorf("failed to rotate audit log: %w", err)
	}

	file, err := openAppend(l.path)
	if err != nil {
		l.file = nil
		return err
	}
	l.file = file
	return nil
}

func (l *Logger) checkRotationLocked() error {
	if l.maxSize <= 0 {
		return nil
	}
	info, err := l.file.Stat()
	if err != nil {
		return nil
	}
	if info.Size() >= l.maxSize {
		return l.rotateLocked()
	}
	return nil
}

// =============================================================================
// CONFIGURATION
// =============================================================================

// SetEnabled turns logging on or off.
func (l *Logger) SetEnabled(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = enabled
}

// Failed reports whether the logger has given up.
func (l *Logger) Failed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.failed
}

// Reset clears the failure state.
func (l *Logger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failed = false
	l.failures = 0
}

// Path returns the log file path.
func (l *Logger) Path() string { return l.path }

// Close flushes and closes the file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// =============================================================================
// READING
// =============================================================================

// ReadEvents returns the events in the log at path, oldest first.
func ReadEvents(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var events []Event
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Event
		if err := json.Unmarshal(line, &e); err != nil {
			return events, fmt.Errorf("malformed audit line: %w", err)
		}
		events = append(events, e)
	}
	return events, sc.Err()
}
