// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package settings

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/lockoverlay/internal/fsutil"
)

// sqliteSchema holds one row per setting.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at INTEGER NOT NULL  -- Unix timestamp
) WITHOUT ROWID;
`

// SQLiteStore persists settings in a SQLite database. Reads go to the
// database every time, so edits made by other processes are seen at once.
type SQLiteStore struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := fsutil.EnsurePrivateDir(filepath.Dir(path)); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	// The database holds the PIN.
	_ = os.Chmod(path, fsutil.PrivateFilePerm)

	return &SQLiteStore{db: db, path: path, now: time.Now}, nil
}

// Path returns the database file.
func (s *SQLiteStore) Path() string { return s.path }

func (s *SQLiteStore) load(key string) (string, bool) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err != nil {
		// sql.ErrNoRows and closed-database errors both mean "use the default".
		return "", false
	}
	return value, true
}

func (s *SQLiteStore) GetBool(key string, def bool) bool {
	if raw, ok := s.load(key); ok {
		if b, ok := asBool(raw); ok {
			return b
		}
	}
	return def
}

func (s *SQLiteStore) GetInt(key string, def int) int {
	if raw, ok := s.load(key); ok {
		if n, ok := asInt(raw); ok {
			return n
		}
	}
	return def
}

func (s *SQLiteStore) GetString(key string, def string) string {
	if raw, ok := s.load(key); ok {
		return raw
	}
	return def
}

func (s *SQLiteStore) SetBool(key string, value bool) error     { return s.store(key, kindBool, value) }
func (s *SQLiteStore) SetInt(key string, value int) error       { return s.store(key, kindInt, value) }
func (s *SQLiteStore) SetString(key string, value string) error { return s.store(key, kindString, value) }

func (s *SQLiteStore) store(key string, kind valueKind, value any) error {
	if err := checkKey(key, kind); err != nil {
		return err
	}
	_, err := s.db.Exec(`
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, formatValue(value), s.now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save setting %s: %w", key, err)
	}
	return nil
}

// UpdatedAt reports when key was last written.
func (s *SQLiteStore) UpdatedAt(key string) (time.Time, bool) {
	var ts int64
	if err := s.db.QueryRow(`SELECT updated_at FROM settings WHERE key = ?`, key).Scan(&ts); err != nil {
		return time.Time{}, false
	}
	return time.Unix(ts, 0), true
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
