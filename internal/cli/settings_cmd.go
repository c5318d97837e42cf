// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// settings_cmd.go - settings and PIN management against the local store.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/jeranaias/lockoverlay/internal/config"
	"github.com/jeranaias/lockoverlay/internal/settings"
	"github.com/jeranaias/lockoverlay/internal/ui/styles"
)

// SettingsData is the JSON form of stored settings. The PIN itself is never
// printed.
type SettingsData struct {
	AutoDismissEnabled   bool   `json:"auto_dismiss_enabled"`
	AutoDismissDuration  int    `json:"auto_dismiss_duration"`
	PINProtectionEnabled bool   `json:"pin_protection_enabled"`
	PINSet               bool   `json:"pin_set"`
	Activatable          bool   `json:"activatable"`
	Problem              string `json:"problem,omitempty"`
	Backend              string `json:"backend"`
	Path                 string `json:"path,omitempty"`

	// PINUpdatedAt is set for stores that timestamp their writes.
	PINUpdatedAt *time.Time `json:"pin_updated_at,omitempty"`
}

func newSettingsData(cfg *config.Config, store settings.Store) SettingsData {
	s := settings.Snapshot(store)
	d := SettingsData{
		AutoDismissEnabled:   s.AutoDismissEnabled,
		AutoDismissDuration:  s.AutoDismissSeconds,
		PINProtectionEnabled: s.PINProtectionEnabled,
		PINSet:               s.PINCode != "",
		Activatable:          true,
		Backend:              cfg.Settings.Backend,
	}
	if cfg.Settings.Backend != settings.BackendMemory {
		d.Path = cfg.Settings.Path
	}
	if at, ok := settings.UpdatedAt(store, settings.KeyPINCode); ok {
		d.PINUpdatedAt = &at
	}
	if err := settings.CheckActivatable(s); err != nil {
		d.Activatable = false
		d.Problem = err.Error()
	}
	return d
}

func openStore(cfg *config.Config) (settings.Store, error) {
	store, err := settings.Open(cfg.Settings.Backend, cfg.Settings.Path)
	if err != nil {
		return nil, NewCommandError("settings", "open", "cannot open settings store", err)
	}
	return store, nil
}

// =============================================================================
// SETTINGS
// =============================================================================

// HandleSettings shows or edits the stored overlay settings.
func HandleSettings(ctx context.Context, args Args, s Streams) error {
	const usage = "lockoverlay settings show [--watch] | settings set <key> <value>"
	p := NewArgParser(args.Raw, "watch")

	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	switch p.Subcommand() {
	case "", "show":
		if err := showSettings(args, s.Out, cfg, store); err != nil {
			return err
		}
		if p.BoolFlag("watch") {
			return watchSettings(ctx, args, s.Out, cfg, store)
		}
		return nil

	case "set":
		key, value := p.Positional(1), p.Positional(2)
		if key == "" || p.PositionalCount() < 3 && key != settings.KeyPINCode {
			return ErrMissingArgument("key and value", usage)
		}
		switch key {
		case settings.KeyAutoDismissEnabled, settings.KeyPINProtectionEnabled:
			b, err := ParseBoolString(value)
			if err != nil {
				return err
			}
			value = strconv.FormatBool(b)
		}
		if err := settings.NewEditor(store).Set(key, value); err != nil {
			if errors.Is(err, settings.ErrUnknownKey) {
				return &ValidationError{
					Field:  "key",
					Value:  key,
					Reason: "must be one of " + strings.Join(settings.Keys(), ", "),
				}
			}
			return err
		}
		if args.JSON {
			return printJSON(s.Out, "settings", newSettingsData(cfg, store))
		}
		shown := value
		if key == settings.KeyPINCode {
			shown = "[REDACTED]"
		}
		say(args, s.Out, "%s %s = %s", SuccessStyle.Render(styles.StatusIndicators.Success), key, shown)
		return nil

	default:
		return &UsageError{Message: "unknown settings subcommand " + strconv.Quote(p.Subcommand()), Usage: usage}
	}
}

func showSettings(args Args, w io.Writer, cfg *config.Config, store settings.Store) error {
	d := newSettingsData(cfg, store)
	if args.JSON {
		return NewJSONResponse("settings", d).WriteCompact(w)
	}

	onOff := func(b bool) string {
		if b {
			return "on"
		}
		return "off"
	}
	pinState := "not set"
	if d.PINSet {
		pinState = "set"
	}

	fmt.Fprintln(w, TitleStyle.Render("Overlay settings"))
	fmt.Fprintln(w, RenderSeparator())
	fmt.Fprintln(w, RenderKV(settings.KeyAutoDismissEnabled, onOff(d.AutoDismissEnabled)))
	fmt.Fprintln(w, RenderKV(settings.KeyAutoDismissDuration, fmt.Sprintf("%ds", d.AutoDismissDuration)))
	fmt.Fprintln(w, RenderKV(settings.KeyPINProtectionEnabled, onOff(d.PINProtectionEnabled)))
	fmt.Fprintln(w, RenderKV(settings.KeyPINCode, pinState))
	if d.PINUpdatedAt != nil {
		fmt.Fprintln(w, RenderKV("PIN changed", d.PINUpdatedAt.Local().Format(time.DateTime)))
	}
	if d.Path != "" {
		fmt.Fprintln(w, MutedStyle.Render("Stored in "+d.Path))
	}
	if !d.Activatable {
		fmt.Fprintln(w, WarningStyle.Render(styles.StatusIndicators.Warning+" "+settings.NoticePINRequired))
	}
	return nil
}

// watchSettings reprints the settings whenever the backing file changes.
func watchSettings(ctx context.Context, args Args, w io.Writer, cfg *config.Config, store settings.Store) error {
	if cfg.Settings.Backend == settings.BackendMemory {
		return &UsageError{Message: "--watch needs a file-backed settings store"}
	}

	changed := make(chan struct{}, 1)
	watcher, err := settings.Watch(cfg.Settings.Path, func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	if err != nil {
		return NewCommandError("settings", "watch", "cannot watch settings file", err)
	}
	defer watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-changed:
			if err := settings.Reload(store); err != nil {
				return NewCommandError("settings", "watch", "cannot reload settings", err)
			}
			if !args.JSON {
				fmt.Fprintln(w)
			}
			if err := showSettings(args, w, cfg, store); err != nil {
				return err
			}
		}
	}
}

// =============================================================================
// PIN
// =============================================================================

// HandlePIN sets or clears the dismissal PIN.
func HandlePIN(ctx context.Context, args Args, s Streams) error {
	const usage = "lockoverlay pin set [--pin PIN] | pin clear"
	p := NewArgParser(args.Raw)

	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	editor := settings.NewEditor(store)

	switch p.Subcommand() {
	case "set":
		code, confirm := p.Flag("pin"), p.Flag("pin")
		if code == "" {
			pr := newPrompter(s.Err, s.In)
			if code, err = pr.Secret("New PIN (4 digits): "); err != nil {
				return err
			}
			if confirm, err = pr.Secret("Confirm PIN: "); err != nil {
				return err
			}
		}
		if err := editor.SetPIN(code, confirm); err != nil {
			return err
		}
		if args.JSON {
			return printJSON(s.Out, "pin", newSettingsData(cfg, store))
		}
		say(args, s.Out, "%s PIN set, protection enabled", SuccessStyle.Render(styles.StatusIndicators.Success))
		return nil

	case "clear":
		if err := editor.ClearPIN(); err != nil {
			return err
		}
		if args.JSON {
			return printJSON(s.Out, "pin", newSettingsData(cfg, store))
		}
		say(args, s.Out, "%s PIN cleared, protection disabled", SuccessStyle.Render(styles.StatusIndicators.Success))
		return nil

	case "":
		return ErrMissingArgument("set or clear", usage)
	default:
		return &UsageError{Message: "unknown pin subcommand " + strconv.Quote(p.Subcommand()), Usage: usage}
	}
}
