// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package settings

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jeranaias/lockoverlay/internal/overlay"
)

// =============================================================================
// KEYS
// =============================================================================

// Setting keys.
const (
	KeyAutoDismissEnabled   = "auto_dismiss_enabled"
	KeyAutoDismissDuration  = "auto_dismiss_duration"
	KeyPINProtectionEnabled = "pin_protection_enabled"
	KeyPINCode              = "pin_code"
)

// Errors returned by stores and the editor.
var (
	ErrUnknownKey      = errors.New("unknown setting")
	ErrTypeMismatch    = errors.New("wrong value type for setting")
	ErrInvalidPIN      = errors.New("invalid PIN")
	ErrPINMismatch     = errors.New("PINs do not match")
	ErrInvalidDuration = errors.New("invalid auto-dismiss duration")
	ErrPINNotSet       = errors.New("PIN protection is enabled but no PIN is set")
	ErrClosed          = errors.New("settings store closed")
)

type valueKind int

const (
	kindBool valueKind = iota
	kindInt
	kindString
)

func (k valueKind) String() string {
	switch k {
	case kindBool:
		return "bool"
	case kindInt:
		return "int"
	default:
		return "string"
	}
}

var registry = map[string]valueKind{
	KeyAutoDismissEnabled:   kindBool,
	KeyAutoDismissDuration:  kindInt,
	KeyPINProtectionEnabled: kindBool,
	KeyPINCode:              kindString,
}

// Keys returns every known key in sorted order.
func Keys() []string {
	keys := make([]string, 0, len(registry))
	for k := range registry {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func checkKey(key string, want valueKind) error {
	got, ok := registry[key]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	if got != want {
		return fmt.Errorf("%w: %s is %s, not %s", ErrTypeMismatch, key, got, want)
	}
	return nil
}

// =============================================================================
// STORE
// =============================================================================

// Store is the key-value contract every backend implements. Getters never
// fail: a missing or unreadable value yields the supplied default.
type Store interface {
	GetBool(key string, def bool) bool
	GetInt(key string, def int) int
	GetString(key string, def string) string

	SetBool(key string, value bool) error
	SetInt(key string, value int) error
	SetString(key string, value string) error

	Close() error
}

// Reloader is implemented by stores that cache their backing file and can
// re-read it after an external edit.
type Reloader interface {
	Reload() error
}

// Reload re-reads s if it caches its contents. Other stores are left alone.
func Reload(s Store) error {
	if r, ok := s.(Reloader); ok {
		return r.Reload()
	}
	return nil
}

// Timestamped is implemented by stores that record when each key was last
// written.
type Timestamped interface {
	UpdatedAt(key string) (time.Time, bool)
}

// UpdatedAt reports when key was last written, if s keeps that information.
func UpdatedAt(s Store, key string) (time.Time, bool) {
	if ts, ok := s.(Timestamped); ok {
		return ts.UpdatedAt(key)
	}
	return time.Time{}, false
}

// Defaults returns the settings used when nothing has been stored.
func Defaults() overlay.Settings {
	return overlay.Settings{
		AutoDismissEnabled:   false,
		AutoDismissSeconds:   overlay.DefaultAutoDismissSeconds,
		PINProtectionEnabled: false,
		PINCode:              "",
	}
}

// Snapshot reads the current settings. A stored duration outside the allowed
// set falls back to the default.
func Snapshot(s Store) overlay.Settings {
	d := Defaults()
	out := overlay.Settings{
		AutoDismissEnabled:   s.GetBool(KeyAutoDismissEnabled, d.AutoDismissEnabled),
		AutoDismissSeconds:   s.GetInt(KeyAutoDismissDuration, d.AutoDismissSeconds),
		PINProtectionEnabled: s.GetBool(KeyPINProtectionEnabled, d.PINProtectionEnabled),
		PINCode:              s.GetString(KeyPINCode, d.PINCode),
	}
	if !overlay.ValidDuration(out.AutoDismissSeconds) {
		out.AutoDismissSeconds = overlay.DefaultAutoDismissSeconds
	}
	return out
}

// Apply writes every field of settings to s.
func Apply(s Store, settings overlay.Settings) error {
	if err := s.SetBool(KeyAutoDismissEnabled, settings.AutoDismissEnabled); err != nil {
		return err
	}
	if err := s.SetInt(KeyAutoDismissDuration, settings.AutoDismissSeconds); err != nil {
		return err
	}
	if err := s.SetBool(KeyPINProtectionEnabled, settings.PINProtectionEnabled); err != nil {
		return err
	}
	return s.SetString(KeyPINCode, settings.PINCode)
}

// =============================================================================
// VALUE CONVERSION
// =============================================================================

// Backends keep values in their natural types where the format allows and
// fall back to strings otherwise; these helpers accept either.

func asBool(v any) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		return b, err == nil
	}
	return false, false
}

func asInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		return int(t), t == float64(int(t))
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		return n, err == nil
	}
	return 0, false
}

func asString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case int64:
		// A TOML editor may write pin_code = 1234 without quotes.
		return strconv.FormatInt(t, 10), true
	}
	return "", false
}

func formatValue(v any) string {
	switch t := v.(type) {
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case string:
		return t
	}
	return fmt.Sprint(v)
}
