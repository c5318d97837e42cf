// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package settings

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces the burst of events an atomic rename produces.
const DefaultDebounce = 200 * time.Millisecond

// Watcher calls a function when the settings file changes on disk.
//
// The parent directory is watched rather than the file itself: atomic
// writes replace the inode, which would silently end a file watch. Events
// for any name starting with the file's base name count, which also covers
// SQLite's -wal and -shm companions.
type Watcher struct {
	fs       *fsnotify.Watcher
	base     string
	debounce time.Duration
	onChange func()
	logger   *slog.Logger

	mu      sync.Mutex
	timer   *time.Timer
	closed  bool
	running sync.WaitGroup

	cancel context.CancelFunc
	done   chan struct{}
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets the quiet period before onChange runs.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithWatcherLogger sets the logger for watch errors.
func WithWatcherLogger(l *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// Watch starts watching path. onChange runs on the watcher's own goroutine.
func Watch(path string, onChange func(), opts ...WatcherOption) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		fs:       fw,
		base:     filepath.Base(abs),
		debounce: DefaultDebounce,
		onChange: onChange,
		logger:   slog.Default(),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	go w.loop(ctx)
	return w, nil
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("settings watcher panicked", "panic", r)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if !strings.HasPrefix(filepath.Base(event.Name), w.base) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			w.schedule()

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn("settings watcher error", "error", err)
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.fire)
}

// fire runs onChange unless the watcher was closed while the debounce timer
// was pending.
func (w *Watcher) fire() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.running.Add(1)
	w.mu.Unlock()

	defer w.running.Done()
	w.onChange()
}

// Close stops watching. When it returns no onChange is running and none will
// start. onChange must not call Close.
func (w *Watcher) Close() error {
	w.cancel()
	err := w.fs.Close()
	<-w.done

	w.mu.Lock()
	w.closed = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	w.running.Wait()
	return err
}
