// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/jeranaias/lockoverlay/internal/client"
	"github.com/jeranaias/lockoverlay/internal/config"
	"github.com/jeranaias/lockoverlay/internal/host"
	"github.com/jeranaias/lockoverlay/internal/overlay"
	"github.com/jeranaias/lockoverlay/internal/settings"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	// ExitSuccess indicates successful execution
	ExitSuccess = 0
	// ExitGeneralError indicates a general/unknown error
	ExitGeneralError = 1
	// ExitUsageError indicates invalid command usage or arguments
	ExitUsageError = 2
	// ExitConfigError indicates a configuration file problem
	ExitConfigError = 3
	// ExitAuthError indicates the control token was rejected
	ExitAuthError = 4
	// ExitUnavailable indicates the daemon is not running
	ExitUnavailable = 5
	// ExitRefused indicates the daemon refused the request
	ExitRefused = 6
)

// ErrConfig wraps failures to load or validate the configuration.
var ErrConfig = errors.New("configuration error")

// ErrLockedOut is returned by dismiss when the session no longer accepts PINs.
var ErrLockedOut = errors.New("too many failed attempts")

// ErrRejected is returned by dismiss when the PIN was wrong.
var ErrRejected = errors.New("incorrect PIN")

// =============================================================================
// ERROR TYPES
// =============================================================================

// CommandError represents a CLI command error with context.
type CommandError struct {
	Command string // Command that failed (e.g., "pin", "settings")
	Action  string // Action being performed (e.g., "set", "show")
	Reason  string // Human-readable reason
	Err     error  // Underlying error (if any)
}

func (e *CommandError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s failed: %s: %v", e.Command, e.Action, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s %s failed: %s", e.Command, e.Action, e.Reason)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// ValidationError represents a validation failure for user input.
type ValidationError struct {
	Field   string // Field that failed validation
	Value   string // Value that was provided
	Reason  string // Why validation failed
	Example string // Example of valid value (optional)
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	if e.Value != "" {
		msg += fmt.Sprintf(" (got: %s)", e.Value)
	}
	if e.Example != "" {
		msg += fmt.Sprintf("\nExample: %s", e.Example)
	}
	return msg
}

// UsageError reports a malformed command line.
type UsageError struct {
	Message string
	Usage   string
}

func (e *UsageError) Error() string {
	if e.Usage == "" {
		return e.Message
	}
	return fmt.Sprintf("%s\nUsage: %s", e.Message, e.Usage)
}

// NewCommandError creates a new command error.
func NewCommandError(command, action, reason string, err error) error {
	return &CommandError{Command: command, Action: action, Reason: reason, Err: err}
}

// ErrMissingArgument reports a required argument that was not given.
func ErrMissingArgument(argName, usage string) error {
	return &UsageError{Message: "missing required argument: " + argName, Usage: usage}
}

// =============================================================================
// DISPLAY
// =============================================================================

// DisplayError writes err to w, as a JSON envelope in JSON mode.
func DisplayError(w io.Writer, command string, err error, jsonMode bool) {
	if err == nil {
		return
	}
	if jsonMode {
		resp := NewJSONErrorResponse(command, err)
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		_ = enc.Encode(resp)
		return
	}
	fmt.Fprintf(w, "%s %s\n", ErrorStyle.Render("[ERROR]"), err.Error())
}

// GetExitCode maps an error to the process exit code.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var usageErr *UsageError
	var validationErr *ValidationError
	if errors.As(err, &usageErr) || errors.As(err, &validationErr) {
		return ExitUsageError
	}
	if errors.Is(err, ErrConfig) || config.IsValidationError(err) {
		return ExitConfigError
	}

	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusUnauthorized:
			return ExitAuthError
		case http.StatusBadRequest:
			return ExitUsageError
		}
		return ExitRefused
	}

	switch {
	case errors.Is(err, client.ErrDaemonUnavailable):
		return ExitUnavailable
	case errors.Is(err, overlay.ErrAlreadyActive),
		errors.Is(err, settings.ErrPINNotSet),
		errors.Is(err, ErrLockedOut),
		errors.Is(err, ErrRejected),
		errors.Is(err, ErrPINRequired),
		errors.Is(err, host.ErrAnotherInstance):
		return ExitRefused
	case errors.Is(err, settings.ErrInvalidPIN),
		errors.Is(err, settings.ErrPINMismatch),
		errors.Is(err, settings.ErrInvalidDuration),
		errors.Is(err, settings.ErrUnknownKey),
		errors.Is(err, settings.ErrTypeMismatch):
		return ExitUsageError
	}
	return ExitGeneralError
}
