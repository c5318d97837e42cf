// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package settings

import "sync"

// values is the in-memory map shared by MemoryStore and FileStore.
type values struct {
	mu     sync.RWMutex
	data   map[string]any
	closed bool
}

func (v *values) get(key string) (any, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	val, ok := v.data[key]
	return val, ok
}

func (v *values) getBool(key string, def bool) bool {
	if raw, ok := v.get(key); ok {
		if b, ok := asBool(raw); ok {
			return b
		}
	}
	return def
}

func (v *values) getInt(key string, def int) int {
	if raw, ok := v.get(key); ok {
		if n, ok := asInt(raw); ok {
			return n
		}
	}
	return def
}

func (v *values) getString(key string, def string) string {
	if raw, ok := v.get(key); ok {
		if s, ok := asString(raw); ok {
			return s
		}
	}
	return def
}

// MemoryStore keeps settings in process memory only.
type MemoryStore struct {
	values
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: values{data: make(map[string]any)}}
}

func (m *MemoryStore) GetBool(key string, def bool) bool       { return m.getBool(key, def) }
func (m *MemoryStore) GetInt(key string, def int) int          { return m.getInt(key, def) }
func (m *MemoryStore) GetString(key string, def string) string { return m.getString(key, def) }

func (m *MemoryStore) SetBool(key string, value bool) error     { return m.set(key, kindBool, value) }
func (m *MemoryStore) SetInt(key string, value int) error       { return m.set(key, kindInt, int64(value)) }
func (m *MemoryStore) SetString(key string, value string) error { return m.set(key, kindString, value) }

func (m *MemoryStore) set(key string, kind valueKind, value any) error {
	if err := checkKey(key, kind); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.data[key] = value
	return nil
}

// Close marks the store closed. Reads keep working.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
