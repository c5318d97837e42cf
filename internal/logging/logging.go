// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging configures the process-wide structured logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jeranaias/lockoverlay/internal/fsutil"
)

// Options selects level, format and destination.
type Options struct {
	// Level is "debug", "info", "warn" or "error" (default "info").
	Level string
	// Format is "text" or "json" (default "text").
	Format string
	// File, when set, receives the log instead of Writer.
	File string
	// Writer is used when File is empty (default os.Stderr).
	Writer io.Writer
}

// ParseLevel maps a level name to a slog.Level. Unknown names yield info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New builds a logger. The returned closer releases the log file, if any.
func New(opts Options) (*slog.Logger, io.Closer, error) {
	var w io.Writer = os.Stderr
	var closer io.Closer = nopCloser{}

	switch {
	case opts.File != "":
		if err := fsutil.EnsurePrivateDir(filepath.Dir(opts.File)); err != nil {
			return nil, nil, err
		}
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, fsutil.PrivateFilePerm)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		w, closer = f, f
	case opts.Writer != nil:
		w = opts.Writer
	}

	handlerOpts := &slog.HandlerOptions{
		Level:       ParseLevel(opts.Level),
		ReplaceAttr: redactAttr,
	}

	var handler slog.Handler
	if opts.Format == "json" {
		handler = slog.NewJSONHandler(w, handlerOpts)
	} else {
		handler = slog.NewTextHandler(w, handlerOpts)
	}
	return slog.New(handler), closer, nil
}

// Setup builds a logger with New and installs it as slog's default.
func Setup(opts Options) (*slog.Logger, io.Closer, error) {
	logger, closer, err := New(opts)
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(logger)
	return logger, closer, nil
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// redactAttr keeps PINs and tokens out of the log even if a caller slips.
func redactAttr(_ []string, a slog.Attr) slog.Attr {
	switch strings.ToLower(a.Key) {
	case "pin", "pin_code", "token", "password":
		return slog.String(a.Key, "[REDACTED]")
	}
	return a
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
