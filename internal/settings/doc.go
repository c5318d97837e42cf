// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package settings persists the four user-facing overlay settings.
//
// # Keys
//
//   - auto_dismiss_enabled (bool, default false)
//   - auto_dismiss_duration (int seconds, default 30)
//   - pin_protection_enabled (bool, default false)
//   - pin_code (string, default "")
//
// # Backends
//
//   - FileStore: a TOML document written atomically with 0600 permissions
//   - SQLiteStore: a single settings table in a pure Go SQLite database
//   - MemoryStore: process-local, for tests and ephemeral runs
//
// The controller never reads a Store directly. Callers take a Snapshot at
// activation time and hand the resulting overlay.Settings to the controller,
// so editing settings never affects a running session.
//
// # Usage
//
//	store, err := settings.Open(settings.BackendTOML, path)
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	snap := settings.Snapshot(store)
//	if err := settings.CheckActivatable(snap); err != nil {
//	    fmt.Println(settings.NoticePINRequired)
//	}
package settings
