// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// audit_cmd.go - review the daemon's audit log.
//
// Command: audit [--lines N] [--type TYPE]
//
// Examples:
//
//	lockoverlay audit                      Last 50 entries
//	lockoverlay audit --lines 10           Last 10 entries
//	lockoverlay audit --type PIN_LOCKOUT   Only lockouts
//	lockoverlay audit --json               Entries as JSON
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/jeranaias/lockoverlay/internal/audit"
)

// defaultAuditLines is how many entries audit shows without --lines.
const defaultAuditLines = 50

// HandleAudit prints the most recent audit entries, oldest first.
func HandleAudit(args Args, s Streams) error {
	const usage = "lockoverlay audit [--lines N] [--type TYPE]"
	p := NewArgParser(args.Raw)

	lines, ok, err := p.FlagInt("lines")
	if err != nil {
		return err
	}
	if !ok {
		lines = defaultAuditLines
	}
	if lines < 1 {
		return &ValidationError{Field: "lines", Value: fmt.Sprint(lines), Reason: "must be at least 1"}
	}
	if p.PositionalCount() > 0 {
		return &UsageError{Message: "unexpected argument " + fmt.Sprintf("%q", p.Positional(0)), Usage: usage}
	}
	eventType := strings.ToUpper(p.Flag("type"))

	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}

	events, err := audit.ReadEvents(cfg.Security.AuditPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return NewCommandError("audit", "read", "cannot read audit log", err)
	}

	if eventType != "" {
		filtered := events[:0]
		for _, e := range events {
			if e.EventType == eventType {
				filtered = append(filtered, e)
			}
		}
		events = filtered
	}
	if len(events) > lines {
		events = events[len(events)-lines:]
	}

	if args.JSON {
		if events == nil {
			events = []audit.Event{}
		}
		return printJSON(s.Out, "audit", events)
	}
	if len(events) == 0 {
		say(args, s.Out, "%s", MutedStyle.Render("No audit events in "+cfg.Security.AuditPath))
		return nil
	}
	for _, e := range events {
		printAuditEvent(s.Out, e)
	}
	return nil
}

func printAuditEvent(w io.Writer, e audit.Event) {
	result := SuccessStyle.Render("ok")
	if !e.Success {
		result = ErrorStyle.Render("fail")
	}

	keys := make([]string, 0, len(e.Metadata))
	for k := range e.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var meta strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&meta, " %s=%s", k, e.Metadata[k])
	}

	fmt.Fprintf(w, "%s %-26s %-4s %s%s\n",
		MutedStyle.Render(e.Timestamp.Local().Format(time.DateTime)),
		e.EventType, result, e.SessionID, meta.String())
}
