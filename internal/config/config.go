// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/jeranaias/lockoverlay/internal/fsutil"
	"github.com/jeranaias/lockoverlay/internal/settings"
	"github.com/jeranaias/lockoverlay/internal/status"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "LOCKOVERLAY_"

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete lockoverlay configuration.
type Config struct {
	// StateDir holds the socket, settings, presence record, lock and logs.
	// Empty means ~/.lockoverlay.
	StateDir string `toml:"state_dir" yaml:"state_dir" json:"state_dir" env:"STATE_DIR"`

	Control  ControlConfig  `toml:"control" yaml:"control" json:"control" envPrefix:"CONTROL_"`
	Settings SettingsConfig `toml:"settings" yaml:"settings" json:"settings" envPrefix:"SETTINGS_"`
	Security SecurityConfig `toml:"security" yaml:"security" json:"security" envPrefix:"SECURITY_"`
	UI       UIConfig       `toml:"ui" yaml:"ui" json:"ui" envPrefix:"UI_"`
	Log      LogConfig      `toml:"log" yaml:"log" json:"log" envPrefix:"LOG_"`
	Metrics  MetricsConfig  `toml:"metrics" yaml:"metrics" json:"metrics" envPrefix:"METRICS_"`
	Events   EventsConfig   `toml:"events" yaml:"events" json:"events" envPrefix:"EVENTS_"`
}

// ControlConfig configures the control API.
type ControlConfig struct {
	// Socket is the unix socket path (default <state_dir>/control.sock).
	Socket string `toml:"socket" yaml:"socket" json:"socket" env:"SOCKET"`
	// Listen, when set, serves on TCP instead of the socket, e.g. 127.0.0.1:7420.
	Listen string `toml:"listen" yaml:"listen" json:"listen" env:"LISTEN"`
	// Token, when set, is required as a bearer token on every request.
	Token string `toml:"token" yaml:"token" json:"token" env:"TOKEN"`
	// DismissRate is the sustained dismiss requests per second.
	DismissRate float64 `toml:"dismiss_rate" yaml:"dismiss_rate" json:"dismiss_rate" env:"DISMISS_RATE"`
	// DismissBurst is the dismiss request burst size.
	DismissBurst int `toml:"dismiss_burst" yaml:"dismiss_burst" json:"dismiss_burst" env:"DISMISS_BURST"`
	// ShutdownTimeoutSecs bounds graceful server shutdown.
	ShutdownTimeoutSecs int `toml:"shutdown_timeout_secs" yaml:"shutdown_timeout_secs" json:"shutdown_timeout_secs" env:"SHUTDOWN_TIMEOUT_SECS"`
}

// SettingsConfig selects the overlay settings store.
type SettingsConfig struct {
	// Backend is "toml", "sqlite" or "memory".
	Backend string `toml:"backend" yaml:"backend" json:"backend" env:"BACKEND"`
	// Path is the backing file (default <state_dir>/settings.toml or settings.db).
	Path string `toml:"path" yaml:"path" json:"path" env:"PATH"`
	// Watch reloads the store when the file changes on disk.
	Watch bool `toml:"watch" yaml:"watch" json:"watch" env:"WATCH"`
}

// SecurityConfig contains PIN and audit settings.
type SecurityConfig struct {
	// MaxPINAttempts is the number of wrong PINs before lockout.
	MaxPINAttempts int `toml:"max_pin_attempts" yaml:"max_pin_attempts" json:"max_pin_attempts" env:"MAX_PIN_ATTEMPTS"`
	// AuditEnabled enables the audit log.
	AuditEnabled bool `toml:"audit_enabled" yaml:"audit_enabled" json:"audit_enabled" env:"AUDIT_ENABLED"`
	// AuditPath is the audit log file (default <state_dir>/audit.log).
	AuditPath string `toml:"audit_path" yaml:"audit_path" json:"audit_path" env:"AUDIT_PATH"`
	// AuditMaxSizeMB is the rotation threshold.
	AuditMaxSizeMB int `toml:"audit_max_size_mb" yaml:"audit_max_size_mb" json:"audit_max_size_mb" env:"AUDIT_MAX_SIZE_MB"`
}

// UIConfig contains terminal surface settings.
type UIConfig struct {
	// AltScreen renders the overlay on the alternate screen buffer.
	AltScreen bool `toml:"alt_screen" yaml:"alt_screen" json:"alt_screen" env:"ALT_SCREEN"`
	// Theme is "dark" or "light".
	Theme string `toml:"theme" yaml:"theme" json:"theme" env:"THEME"`
	// Headless runs the daemon without a terminal surface.
	Headless bool `toml:"headless" yaml:"headless" json:"headless" env:"HEADLESS"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `toml:"level" yaml:"level" json:"level" env:"LEVEL"`
	Format string `toml:"format" yaml:"format" json:"format" env:"FORMAT"`
	// File receives the log while the terminal surface owns the screen
	// (default <state_dir>/daemon.log).
	File string `toml:"file" yaml:"file" json:"file" env:"FILE"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `toml:"enabled" yaml:"enabled" json:"enabled" env:"ENABLED"`
}

// EventsConfig configures the status event stream.
type EventsConfig struct {
	// Encoding is the default stream encoding, "json" or "cbor".
	Encoding string `toml:"encoding" yaml:"encoding" json:"encoding" env:"ENCODING"`
	// Buffer is the per-subscriber queue length.
	Buffer int `toml:"buffer" yaml:"buffer" json:"buffer" env:"BUFFER"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns the built-in configuration. Paths are left empty and
// resolved against StateDir by SetDefaults.
func Default() *Config {
	return &Config{
		Control: ControlConfig{
			DismissRate:         2,
			DismissBurst:        5,
			ShutdownTimeoutSecs: 5,
		},
		Settings: SettingsConfig{
			Backend: settings.BackendTOML,
			Watch:   true,
		},
		Security: SecurityConfig{
			MaxPINAttempts: 3,
			AuditEnabled:   true,
			AuditMaxSizeMB: 10,
		},
		UI: UIConfig{
			AltScreen: true,
			Theme:     "dark",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Events: EventsConfig{
			Encoding: string(status.EncodingJSON),
			Buffer:   status.DefaultBuffer,
		},
	}
}

// SetDefaults fills zero values and resolves relative paths under StateDir.
func (c *Config) SetDefaults() {
	d := Default()

	if c.StateDir == "" {
		if dir, err := fsutil.StateDir(); err == nil {
			c.StateDir = dir
		} else {
			c.StateDir = ".lockoverlay"
		}
	}

	if c.Control.DismissRate == 0 {
		c.Control.DismissRate = d.Control.DismissRate
	}
	if c.Control.DismissBurst == 0 {
		c.Control.DismissBurst = d.Control.DismissBurst
	}
	if c.Control.ShutdownTimeoutSecs == 0 {
		c.Control.ShutdownTimeoutSecs = d.Control.ShutdownTimeoutSecs
	}
	if c.Settings.Backend == "" {
		c.Settings.Backend = d.Settings.Backend
	}
	if c.Security.MaxPINAttempts == 0 {
		c.Security.MaxPINAttempts = d.Security.MaxPINAttempts
	}
	if c.Security.AuditMaxSizeMB == 0 {
		c.Security.AuditMaxSizeMB = d.Security.AuditMaxSizeMB
	}
	if c.UI.Theme == "" {
		c.UI.Theme = d.UI.Theme
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
	if c.Events.Encoding == "" {
		c.Events.Encoding = d.Events.Encoding
	}
	if c.Events.Buffer == 0 {
		c.Events.Buffer = d.Events.Buffer
	}

	settingsFile := "settings.toml"
	if c.Settings.Backend == settings.BackendSQLite {
		settingsFile = "settings.db"
	}
	c.Control.Socket = c.resolve(c.Control.Socket, "control.sock")
	c.Settings.Path = c.resolve(c.Settings.Path, settingsFile)
	c.Security.AuditPath = c.resolve(c.Security.AuditPath, "audit.log")
	c.Log.File = c.resolve(c.Log.File, "daemon.log")
}

func (c *Config) resolve(path, fallback string) string {
	if path == "" {
		return filepath.Join(c.StateDir, fallback)
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.StateDir, path)
}

// PresencePath is where the presence record is written.
func (c *Config) PresencePath() string { return filepath.Join(c.StateDir, "presence.json") }

// LockPath is the single-instance lock file.
func (c *Config) LockPath() string { return filepath.Join(c.StateDir, "daemon.lock") }

// =============================================================================
// PATHS
// =============================================================================

// DefaultPath returns ~/.lockoverlay/config.toml.
func DefaultPath() (string, error) {
	dir, err := fsutil.StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ensureSecurePermissions tightens a config file to 0600; it may hold the
// control token.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != fsutil.PrivateFilePerm {
		if err := os.Chmod(path, fsutil.PrivateFilePerm); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD
// =============================================================================

// Load reads the configuration at path. An empty path means the default
// location, falling back to config.yaml beside it. A missing file yields
// the defaults. Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		p, err := DefaultPath()
		if err == nil {
			path = p
			if !exists(path) {
				if y := strings.TrimSuffix(path, ".toml") + ".yaml"; exists(y) {
					path = y
				}
			}
		}
	}

	if path != "" && exists(path) {
		if err := LoadFile(cfg, path); err != nil {
			return nil, err
		}
	}

	if err := cfg.ApplyEnvOverrides(); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFile decodes path into cfg, picking the format from the extension.
func LoadFile(cfg *Config, path string) error {
	// Permissions might not be fixable on all systems; carry on regardless.
	_ = ensureSecurePermissions(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to decode YAML config %s: %w", path, err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to decode JSON config %s: %w", path, err)
		}
	default:
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return fmt.Errorf("failed to decode TOML config %s: %w", path, err)
		}
	}
	return nil
}

// ApplyEnvOverrides applies LOCKOVERLAY_* variables on top of cfg.
func (c *Config) ApplyEnvOverrides() error {
	if err := env.ParseWithOptions(c, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// =============================================================================
// SAVE
// =============================================================================

// Save writes cfg as TOML to path atomically with 0600 permissions.
func Save(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# lockoverlay configuration file\n")
	buf.WriteString("# Environment variables prefixed LOCKOVERLAY_ override these values.\n\n")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := fsutil.WriteFileAtomic(path, buf.Bytes(), fsutil.PrivateFilePerm); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate returns every problem found, or nil.
func (c *Config) Validate() error {
	var errs ValidationErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if c.Control.Listen != "" {
		host, _, err := net.SplitHostPort(c.Control.Listen)
		switch {
		case err != nil:
			add("control.listen", "invalid address %q: %v", c.Control.Listen, err)
		case !isLoopback(host) && c.Control.Token == "":
			add("control.listen", "non-loopback address %q requires control.token", c.Control.Listen)
		}
	}
	if c.Control.DismissRate < 0 {
		add("control.dismiss_rate", "must not be negative, got %v", c.Control.DismissRate)
	}
	if c.Control.DismissBurst < 1 {
		add("control.dismiss_burst", "must be at least 1, got %d", c.Control.DismissBurst)
	}
	if c.Control.ShutdownTimeoutSecs < 1 || c.Control.ShutdownTimeoutSecs > 60 {
		add("control.shutdown_timeout_secs", "must be between 1 and 60, got %d", c.Control.ShutdownTimeoutSecs)
	}

	if !oneOf(c.Settings.Backend, settings.Backends...) {
		add("settings.backend", "invalid backend '%s', must be one of: %s", c.Settings.Backend, strings.Join(settings.Backends, ", "))
	}

	if c.Security.MaxPINAttempts < 1 || c.Security.MaxPINAttempts > 10 {
		add("security.max_pin_attempts", "must be between 1 and 10, got %d", c.Security.MaxPINAttempts)
	}
	if c.Security.AuditMaxSizeMB < 0 {
		add("security.audit_max_size_mb", "must not be negative, got %d", c.Security.AuditMaxSizeMB)
	}

	if !oneOf(c.UI.Theme, "dark", "light") {
		add("ui.theme", "invalid theme '%s', must be one of: dark, light", c.UI.Theme)
	}

	if !oneOf(strings.ToLower(c.Log.Level), "debug", "info", "warn", "warning", "error") {
		add("log.level", "invalid level '%s', must be one of: debug, info, warn, error", c.Log.Level)
	}
	if !oneOf(c.Log.Format, "text", "json") {
		add("log.format", "invalid format '%s', must be one of: text, json", c.Log.Format)
	}

	if _, err := status.CodecFor(status.Encoding(c.Events.Encoding)); err != nil {
		add("events.encoding", "%v", err)
	}
	if c.Events.Buffer < 1 || c.Events.Buffer > 4096 {
		add("events.buffer", "must be between 1 and 4096, got %d", c.Events.Buffer)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

// =============================================================================
// DISPLAY
// =============================================================================

// Clone returns a copy of c.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// String renders c as TOML with the control token redacted.
func (c *Config) String() string {
	safe := c.Clone()
	if safe.Control.Token != "" {
		safe.Control.Token = "[REDACTED]"
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(safe); err != nil {
		return fmt.Sprintf("config: %v", err)
	}
	return buf.String()
}

// IsValidationError reports whether err carries validation errors.
func IsValidationError(err error) bool {
	var v ValidationErrors
	return errors.As(err, &v)
}
