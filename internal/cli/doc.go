// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the lockoverlay command line.
//
// Parse turns os.Args into a Command and Args; Run dispatches it. The run
// command hosts the daemon: it owns the overlay controller, serves the
// control API on a private unix socket and drives the full-screen lock
// surface. Every other command is a thin client of that API, except the
// settings, pin and config commands, which edit local files directly and are
// picked up by the daemon's file watcher, and audit, which reads the
// daemon's audit log.
//
// # Usage
//
//	lockoverlay run
//	lockoverlay pin set
//	lockoverlay activate --duration 60
//	lockoverlay dismiss
//	lockoverlay status --watch
//
// # Exit Codes
//
//	0  success
//	1  general error
//	2  usage error
//	3  configuration error
//	4  authentication failure
//	5  daemon unavailable
//	6  request refused (already active, PIN not set, locked out)
package cli
