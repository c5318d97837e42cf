// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package pin

import (
	"crypto/subtle"
	"errors"
	"strings"

	"golang.org/x/text/width"
)

// Length is the number of digits in an overlay PIN.
const Length = 4

var (
	// ErrEmpty is returned when a PIN is empty.
	ErrEmpty = errors.New("PIN cannot be empty")

	// ErrLength is returned when a PIN is not exactly Length characters.
	ErrLength = errors.New("PIN must be exactly 4 digits")

	// ErrNotNumeric is returned when a PIN contains anything but ASCII digits.
	ErrNotNumeric = errors.New("PIN must contain only numbers")
)

// Result is the outcome of a PIN comparison.
type Result int

const (
	// Mismatch means the entered PIN does not equal the stored PIN.
	Mismatch Result = iota
	// Match means the entered PIN equals the stored PIN.
	Match
)

// String returns a string representation of the Result.
func (r Result) String() string {
	if r == Match {
		return "match"
	}
	return "mismatch"
}

// ValidateFormat reports whether p is a well-formed PIN: exactly four ASCII
// digits. The checks run in the same order as the settings PIN dialog so the
// first error matches what a user would have been told there.
func ValidateFormat(p string) error {
	if p == "" {
		return ErrEmpty
	}
	if len(p) != Length {
		return ErrLength
	}
	for i := 0; i < len(p); i++ {
		if p[i] < '0' || p[i] > '9' {
			return ErrNotNumeric
		}
	}
	return nil
}

// Normalize trims surrounding whitespace and folds full-width digits (as
// produced by some input methods) to their ASCII forms. It never changes the
// meaning of an already well-formed PIN.
func Normalize(p string) string {
	return width.Fold.String(strings.TrimSpace(p))
}

// Verify compares an entered PIN against the stored PIN.
//
// stored must already satisfy ValidateFormat; a malformed stored PIN never
// matches. Callers are expected to reject malformed entered input before
// calling Verify. Verify still refuses unequal lengths up front, and compares
// equal-length inputs with subtle.ConstantTimeCompare.
func Verify(stored, entered string) Result {
	if ValidateFormat(stored) != nil {
		return Mismatch
	}
	if len(entered) != len(stored) {
		return Mismatch
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(entered)) == 1 {
		return Match
	}
	return Mismatch
}
