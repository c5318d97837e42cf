// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"

	"github.com/charmbracelet/glamour"
)

const usageText = `# lockoverlay

A full-screen lock overlay for the terminal. The overlay stays up until it is
dismissed, its auto-dismiss timer runs out, or it is force-stopped. Dismissal
can be gated behind a 4-digit PIN with a lockout after 3 wrong attempts.

## Usage

    lockoverlay [global flags] <command> [args]

## Commands

| Command | Description |
|---|---|
| ` + "`run`" + ` | Start the daemon and the lock screen (default) |
| ` + "`activate [--duration N] [--no-timer]`" + ` | Show the overlay using stored settings |
| ` + "`dismiss [--pin PIN]`" + ` | Request dismissal, prompting for the PIN if needed |
| ` + "`stop`" + ` | Force-stop the current session |
| ` + "`status [--watch]`" + ` | Show whether the overlay is active |
| ` + "`watch [--encoding json\\|cbor]`" + ` | Stream shown/dismissed events |
| ` + "`settings show [--watch]`" + ` | Show stored overlay settings |
| ` + "`settings set <key> <value>`" + ` | Change a stored setting |
| ` + "`pin set`" + ` | Set the dismissal PIN and turn protection on |
| ` + "`pin clear`" + ` | Remove the PIN and turn protection off |
| ` + "`config show\\|path\\|init`" + ` | Inspect or create the configuration file |
| ` + "`audit [--lines N] [--type TYPE]`" + ` | Show recent audit log entries |
| ` + "`version`" + ` | Print version information |

## Settings keys

- ` + "`auto_dismiss_enabled`" + ` (on/off)
- ` + "`auto_dismiss_duration`" + ` (15, 30, 60, 90 or 120 seconds)
- ` + "`pin_protection_enabled`" + ` (on/off)
- ` + "`pin_code`" + ` (4 digits; prefer ` + "`pin set`" + `)

## Global flags

- ` + "`--config PATH`" + ` configuration file (default ~/.lockoverlay/config.toml)
- ` + "`--socket PATH`" + ` control socket
- ` + "`--addr HOST:PORT`" + ` control API over TCP instead of the socket
- ` + "`--token TOKEN`" + ` bearer token for the control API
- ` + "`--json`" + ` machine-readable output
- ` + "`-q, --quiet`" + ` suppress informational output
- ` + "`-v, --verbose`" + ` debug logging

## Environment

Every configuration value can be overridden with a ` + "`LOCKOVERLAY_`" + `
variable, for example ` + "`LOCKOVERLAY_CONTROL_TOKEN`" + ` or
` + "`LOCKOVERLAY_SECURITY_MAX_PIN_ATTEMPTS`" + `.
`

// HandleHelp prints usage, rendered as markdown on a colour terminal.
func HandleHelp(s Streams) error {
	fmt.Fprint(s.Out, renderUsage())
	return nil
}

func renderUsage() string {
	if !ColorsEnabled() {
		return usageText
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		return usageText
	}
	out, err := r.Render(usageText)
	if err != nil {
		return usageText
	}
	return out
}
