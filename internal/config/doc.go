// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for the
// lockoverlay daemon and CLI.
//
// Supports TOML and YAML configuration files, built-in defaults,
// environment variable overrides, and validation.
//
// # Key Types
//
//   - Config: Main configuration structure with all sections
//   - ControlConfig: Control socket, TCP listener, token and rate limit
//   - SettingsConfig: Overlay settings backend and location
//   - SecurityConfig: PIN attempt limit and audit log
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (LOCKOVERLAY_*)
//   - ~/.lockoverlay/config.toml
//   - ~/.lockoverlay/config.yaml
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load("")
//	if err != nil {
//	    return err
//	}
//	socket := cfg.Control.Socket
package config
