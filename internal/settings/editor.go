// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package settings

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jeranaias/lockoverlay/internal/overlay"
	"github.com/jeranaias/lockoverlay/internal/pin"
)

// NoticePINRequired is shown when activation is refused because protection
// is on without a PIN.
const NoticePINRequired = "Please set a PIN first"

// CheckActivatable enforces the activation precondition for control
// surfaces: PIN protection requires a well-formed PIN.
func CheckActivatable(s overlay.Settings) error {
	if !s.PINProtectionEnabled {
		return nil
	}
	if s.PINCode == "" {
		return ErrPINNotSet
	}
	if err := pin.ValidateFormat(s.PINCode); err != nil {
		return fmt.Errorf("%w: stored PIN: %w", ErrInvalidPIN, err)
	}
	return nil
}

// Editor is the settings-editing boundary. It validates before writing so
// the store never holds a malformed PIN or an unsupported duration.
type Editor struct {
	store Store
}

// NewEditor wraps store.
func NewEditor(store Store) *Editor {
	return &Editor{store: store}
}

// SetPIN stores a new PIN and turns protection on. confirm must match.
func (e *Editor) SetPIN(code, confirm string) error {
	code = pin.Normalize(code)
	if err := pin.ValidateFormat(code); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPIN, err)
	}
	if pin.Normalize(confirm) != code {
		return ErrPINMismatch
	}
	if err := e.store.SetString(KeyPINCode, code); err != nil {
		return err
	}
	return e.store.SetBool(KeyPINProtectionEnabled, true)
}

// ClearPIN removes the PIN and turns protection off.
func (e *Editor) ClearPIN() error {
	if err := e.store.SetBool(KeyPINProtectionEnabled, false); err != nil {
		return err
	}
	return e.store.SetString(KeyPINCode, "")
}

// SetPINProtection toggles protection. Enabling it without a PIN is allowed
// here; CheckActivatable refuses to activate in that state.
func (e *Editor) SetPINProtection(enabled bool) error {
	return e.store.SetBool(KeyPINProtectionEnabled, enabled)
}

// SetAutoDismiss toggles the auto-dismiss timer.
func (e *Editor) SetAutoDismiss(enabled bool) error {
	return e.store.SetBool(KeyAutoDismissEnabled, enabled)
}

// SetDuration stores the auto-dismiss duration in seconds.
func (e *Editor) SetDuration(seconds int) error {
	if !overlay.ValidDuration(seconds) {
		return fmt.Errorf("%w: %d (allowed: %s)", ErrInvalidDuration, seconds, durationList())
	}
	return e.store.SetInt(KeyAutoDismissDuration, seconds)
}

// Set parses raw according to key's type and stores it. The PIN goes through
// the same validation as SetPIN.
func (e *Editor) Set(key, raw string) error {
	switch key {
	case KeyAutoDismissEnabled, KeyPINProtectionEnabled:
		b, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("%w: %s expects true or false", ErrTypeMismatch, key)
		}
		if key == KeyAutoDismissEnabled {
			return e.SetAutoDismiss(b)
		}
		return e.SetPINProtection(b)
	case KeyAutoDismissDuration:
		n, err := strconv.Atoi(strings.TrimSpace(strings.TrimSuffix(raw, "s")))
		if err != nil {
			return fmt.Errorf("%w: %s expects seconds", ErrTypeMismatch, key)
		}
		return e.SetDuration(n)
	case KeyPINCode:
		if raw == "" {
			return e.ClearPIN()
		}
		return e.SetPIN(raw, raw)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
}

func durationList() string {
	parts := make([]string, len(overlay.AllowedDurations))
	for i, d := range overlay.AllowedDurations {
		parts[i] = strconv.Itoa(d)
	}
	return strings.Join(parts, ", ")
}
