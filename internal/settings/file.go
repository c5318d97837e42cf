// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package settings

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/lockoverlay/internal/fsutil"
)

// FileStore persists settings as a flat TOML document. Values are cached in
// memory; every Set rewrites the file atomically.
type FileStore struct {
	values
	path string
}

// OpenFile loads path, creating nothing until the first Set. A missing file
// is treated as empty.
func OpenFile(path string) (*FileStore, error) {
	fs := &FileStore{values: values{data: make(map[string]any)}, path: path}
	if err := fs.Reload(); err != nil {
		return nil, err
	}
	return fs, nil
}

// Path returns the backing file.
func (f *FileStore) Path() string { return f.path }

// Reload replaces the cache with the file's current contents.
func (f *FileStore) Reload() error {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		f.mu.Lock()
		f.data = make(map[string]any)
		f.mu.Unlock()
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read settings: %w", err)
	}

	doc := make(map[string]any)
	if _, err := toml.Decode(string(data), &doc); err != nil {
		return fmt.Errorf("failed to parse settings %s: %w", f.path, err)
	}

	f.mu.Lock()
	f.data = doc
	f.mu.Unlock()
	return nil
}

func (f *FileStore) GetBool(key string, def bool) bool       { return f.getBool(key, def) }
func (f *FileStore) GetInt(key string, def int) int          { return f.getInt(key, def) }
func (f *FileStore) GetString(key string, def string) string { return f.getString(key, def) }

func (f *FileStore) SetBool(key string, value bool) error     { return f.set(key, kindBool, value) }
func (f *FileStore) SetInt(key string, value int) error       { return f.set(key, kindInt, int64(value)) }
func (f *FileStore) SetString(key string, value string) error { return f.set(key, kindString, value) }

func (f *FileStore) set(key string, kind valueKind, value any) error {
	if err := checkKey(key, kind); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}

	next := make(map[string]any, len(f.data)+1)
	for k, v := range f.data {
		next[k] = v
	}
	next[key] = value

	var buf bytes.Buffer
	buf.WriteString("# lockoverlay settings\n")
	if err := toml.NewEncoder(&buf).Encode(next); err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	if err := fsutil.WriteFileAtomic(f.path, buf.Bytes(), fsutil.PrivateFilePerm); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	f.data = next
	return nil
}

// Close marks the store closed.
func (f *FileStore) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}
