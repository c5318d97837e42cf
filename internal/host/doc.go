// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package host integrates the daemon with the operating system.
//
// Presence writes a small JSON record while an overlay session is running
// so supervisors and scripts can see that a long-running task is in
// progress and must not be killed. InstanceLock ensures only one daemon,
// and therefore only one overlay controller, runs per state directory.
package host
