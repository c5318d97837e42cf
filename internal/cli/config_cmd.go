// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/jeranaias/lockoverlay/internal/config"
	"github.com/jeranaias/lockoverlay/internal/ui/styles"
)

// ConfigPathData is the JSON form of "config path".
type ConfigPathData struct {
	Path   string `json:"path"`
	Exists bool   `json:"exists"`
}

// HandleConfig shows the effective configuration, prints its path, or writes
// a default file.
func HandleConfig(args Args, s Streams) error {
	const usage = "lockoverlay config show | config path | config init [--force]"
	p := NewArgParser(args.Raw, "force")

	path := args.ConfigPath
	if path == "" {
		var err error
		if path, err = config.DefaultPath(); err != nil {
			return fmt.Errorf("%w: %w", ErrConfig, err)
		}
	}

	switch p.Subcommand() {
	case "", "show":
		cfg, err := loadConfig(args)
		if err != nil {
			return err
		}
		if args.JSON {
			safe := cfg.Clone()
			if safe.Control.Token != "" {
				safe.Control.Token = "[REDACTED]"
			}
			return printJSON(s.Out, "config", safe)
		}
		fmt.Fprint(s.Out, cfg.String())
		return nil

	case "path":
		_, err := os.Stat(path)
		data := ConfigPathData{Path: path, Exists: err == nil}
		if args.JSON {
			return printJSON(s.Out, "config", data)
		}
		fmt.Fprintln(s.Out, data.Path)
		return nil

	case "init":
		if _, err := os.Stat(path); err == nil && !p.BoolFlag("force") {
			return &UsageError{Message: path + " already exists (use --force to overwrite)", Usage: usage}
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %w", ErrConfig, err)
		}
		cfg := config.Default()
		if err := config.Save(cfg, path); err != nil {
			return fmt.Errorf("%w: %w", ErrConfig, err)
		}
		if args.JSON {
			return printJSON(s.Out, "config", ConfigPathData{Path: path, Exists: true})
		}
		say(args, s.Out, "%s wrote %s", SuccessStyle.Render(styles.StatusIndicators.Success), path)
		return nil

	default:
		return &UsageError{Message: "unknown config subcommand " + strconv.Quote(p.Subcommand()), Usage: usage}
	}
}
