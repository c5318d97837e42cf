// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package fsutil holds the file helpers shared by the settings store, the
// presence record, the audit log and the config writer.
package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
)

// PrivateDirPerm and PrivateFilePerm are used for everything under the state
// directory. The settings file holds the PIN, so nothing there is world
// readable.
const (
	PrivateDirPerm  os.FileMode = 0700
	PrivateFilePerm os.FileMode = 0600
)

// WriteFileAtomic writes data to path via a synced temp file in the same
// directory followed by a rename. Readers see either the old file or the new
// one, never a partial write. Missing parent directories are created with
// PrivateDirPerm.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %w", err)
	}

	dir := filepath.Dir(absPath)
	if err := os.MkdirAll(dir, PrivateDirPerm); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}

	f, err := os.CreateTemp(dir, "."+filepath.Base(absPath)+".tmp-")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tempPath := f.Name()

	success := false
	defer func() {
		if !success {
			f.Close()
			os.Remove(tempPath)
		}
	}()

	// Restrict before writing so secrets never sit in a looser file.
	if err := f.Chmod(perm); err != nil {
		return fmt.Errorf("failed to set file permissions: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("failed to sync data to disk: %w", err)
	}
	// Windows refuses to rename an open file.
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tempPath, absPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

// EnsurePrivateDir creates dir if needed and tightens its permissions.
func EnsurePrivateDir(dir string) error {
	if err := os.MkdirAll(dir, PrivateDirPerm); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	// Chmod is advisory on Windows; ignore its result there.
	_ = os.Chmod(dir, PrivateDirPerm)
	return nil
}

// StateDir returns ~/.lockoverlay, the default home of the config, settings,
// socket, presence record and logs.
func StateDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate home directory: %w", err)
	}
	return filepath.Join(home, ".lockoverlay"), nil
}
