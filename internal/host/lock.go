// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package host

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/jeranaias/lockoverlay/internal/fsutil"
)

// ErrAnotherInstance is returned when a different process holds the lock.
var ErrAnotherInstance = errors.New("another lockoverlay daemon is already running")

// InstanceLock is an exclusive, process-lifetime lock on a file. The OS
// drops it when the process exits, so a crashed daemon never leaves it held.
type InstanceLock struct {
	path string

	mu sync.Mutex
	f  *os.File
}

// AcquireInstanceLock takes the lock at path without waiting.
func AcquireInstanceLock(path string) (*InstanceLock, error) {
	if err := fsutil.EnsurePrivateDir(filepath.Dir(path)); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, fsutil.PrivateFilePerm)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}
	if err := lockFile(f); err != nil {
		f.Close()
		return nil, err
	}

	// The pid is informational only; the OS lock is authoritative.
	if err := f.Truncate(0); err == nil {
		_, _ = f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0)
	}
	return &InstanceLock{path: path, f: f}, nil
}

// Path returns the lock file.
func (l *InstanceLock) Path() string { return l.path }

// Release drops the lock. It is safe to call more than once.
func (l *InstanceLock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	err := unlockFile(l.f)
	if cerr := l.f.Close(); err == nil {
		err = cerr
	}
	l.f = nil
	return err
}
