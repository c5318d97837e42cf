// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// control_cmd.go - commands that talk to a running daemon.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/jeranaias/lockoverlay/internal/overlay"
	"github.com/jeranaias/lockoverlay/internal/server"
	"github.com/jeranaias/lockoverlay/internal/status"
	"github.com/jeranaias/lockoverlay/internal/ui/styles"
)

// ErrPINRequired is returned by dismiss when no PIN could be obtained for a
// PIN-gated session.
var ErrPINRequired = errors.New("enter PIN to dismiss")

// =============================================================================
// ACTIVATE
// =============================================================================

// HandleActivate shows the overlay using the daemon's stored settings,
// optionally overriding the timer for this session only.
func HandleActivate(ctx context.Context, args Args, s Streams) error {
	const usage = "lockoverlay activate [--duration 15|30|60|90|120] [--no-timer]"
	p := NewArgParser(args.Raw, "no-timer")

	var req server.ActivateRequest
	n, ok, err := p.FlagInt("duration")
	if err != nil {
		return err
	}
	if ok {
		if !overlay.ValidDuration(n) {
			return &ValidationError{
				Field:   "duration",
				Value:   strconv.Itoa(n),
				Reason:  "must be one of 15, 30, 60, 90 or 120 seconds",
				Example: "lockoverlay activate --duration 60",
			}
		}
		enabled := true
		req.AutoDismissEnabled = &enabled
		req.AutoDismissSeconds = &n
	}
	if p.BoolFlag("no-timer") {
		if ok {
			return &UsageError{Message: "--duration and --no-timer cannot be combined", Usage: usage}
		}
		disabled := false
		req.AutoDismissEnabled = &disabled
	}
	if p.PositionalCount() > 0 {
		return &UsageError{Message: "unexpected argument " + strconv.Quote(p.Positional(0)), Usage: usage}
	}

	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	resp, err := newClient(cfg).Activate(ctx, req)
	if err != nil {
		return err
	}

	if args.JSON {
		return printJSON(s.Out, "activate", resp)
	}
	say(args, s.Out, "%s %s", SuccessStyle.Render(styles.StatusIndicators.Success), resp.Notice)
	if !args.Quiet {
		printSnapshot(s.Out, resp.Status)
	}
	return nil
}

// =============================================================================
// STOP
// =============================================================================

// HandleStop force-stops the current session. Stopping an idle daemon is
// not an error.
func HandleStop(ctx context.Context, args Args, s Streams) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	c := newClient(cfg)

	before, err := c.Status(ctx)
	if err != nil {
		return err
	}
	resp, err := c.Stop(ctx)
	if err != nil {
		return err
	}

	if args.JSON {
		return printJSON(s.Out, "stop", resp)
	}
	if !before.Active() {
		say(args, s.Out, "%s", MutedStyle.Render(overlay.DismissOutcome{Kind: overlay.OutcomeNotActive}.Message()))
		return nil
	}
	say(args, s.Out, "%s %s", SuccessStyle.Render(styles.StatusIndicators.Success), resp.Notice)
	return nil
}

// =============================================================================
// DISMISS
// =============================================================================

// HandleDismiss requests dismissal. For a PIN-gated session without --pin
// it prompts for the PIN.
func HandleDismiss(ctx context.Context, args Args, s Streams) error {
	p := NewArgParser(args.Raw)

	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	c := newClient(cfg)

	var entered *string
	switch {
	case p.Flag("pin") != "":
		v := p.Flag("pin")
		entered = &v
	default:
		snap, err := c.Status(ctx)
		if err != nil {
			return err
		}
		if snap.View != nil && snap.View.PINRequired && !snap.View.LockedOut {
			v, err := newPrompter(s.Err, s.In).Secret("PIN: ")
			if err != nil {
				if errors.Is(err, ErrNoTTY) {
					return fmt.Errorf("%w: pass --pin or run from a terminal", ErrPINRequired)
				}
				return err
			}
			if v != "" {
				entered = &v
			}
		}
	}

	resp, err := c.Dismiss(ctx, entered)
	if err != nil {
		return err
	}

	var outcomeErr error
	switch resp.Kind {
	case overlay.OutcomeRejected:
		outcomeErr = fmt.Errorf("%w: attempts remaining: %d", ErrRejected, resp.RemainingAttempts)
	case overlay.OutcomeLockedOut:
		outcomeErr = ErrLockedOut
	case overlay.OutcomePINRequired:
		outcomeErr = ErrPINRequired
	}
	if outcomeErr != nil {
		return outcomeErr
	}

	if args.JSON {
		return printJSON(s.Out, "dismiss", resp)
	}
	if resp.Kind == overlay.OutcomeNotActive {
		say(args, s.Out, "%s", MutedStyle.Render(resp.Message))
		return nil
	}
	say(args, s.Out, "%s %s", SuccessStyle.Render(styles.StatusIndicators.Success), resp.Message)
	return nil
}

// =============================================================================
// STATUS
// =============================================================================

// HandleStatus prints the controller state. With --watch it prints each
// status event followed by the refreshed state until interrupted.
func HandleStatus(ctx context.Context, args Args, s Streams) error {
	p := NewArgParser(args.Raw, "watch")

	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	c := newClient(cfg)

	snap, err := c.Status(ctx)
	if err != nil {
		return err
	}
	if args.JSON {
		if err := NewJSONResponse("status", snap).WriteCompact(s.Out); err != nil {
			return err
		}
	} else {
		printSnapshot(s.Out, snap)
	}
	if !p.BoolFlag("watch") {
		return nil
	}

	return c.Watch(ctx, status.EncodingJSON, false, func(e status.Event) error {
		snap, err := c.Status(ctx)
		if err != nil {
			return err
		}
		if args.JSON {
			return NewJSONResponse("status", snap).WriteCompact(s.Out)
		}
		fmt.Fprintln(s.Out, RenderSeparator())
		fmt.Fprintln(s.Out, formatEvent(e))
		printSnapshot(s.Out, snap)
		return nil
	})
}

// =============================================================================
// WATCH
// =============================================================================

// HandleWatch streams status events until interrupted or the daemon exits.
func HandleWatch(ctx context.Context, args Args, s Streams) error {
	p := NewArgParser(args.Raw, "no-replay")

	enc := status.Encoding(p.FlagOrDefault("encoding", string(status.EncodingJSON)))
	if _, err := status.CodecFor(enc); err != nil {
		return &ValidationError{Field: "encoding", Value: string(enc), Reason: "must be json or cbor"}
	}

	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}

	say(args, s.Err, "%s", MutedStyle.Render("Watching overlay events ("+string(enc)+"). Press Ctrl+C to stop."))
	return newClient(cfg).Watch(ctx, enc, !p.BoolFlag("no-replay"), func(e status.Event) error {
		if args.JSON {
			return NewJSONResponse("watch", e).WriteCompact(s.Out)
		}
		_, err := fmt.Fprintln(s.Out, formatEvent(e))
		return err
	})
}

// =============================================================================
// FORMATTING
// =============================================================================

func formatEvent(e status.Event) string {
	ts := e.At.Local().Format(time.TimeOnly)
	switch e.Kind {
	case status.KindShown:
		detail := ""
		if e.AutoDismissSeconds > 0 {
			detail += fmt.Sprintf(" timer=%ds", e.AutoDismissSeconds)
		}
		if e.PINProtected {
			detail += " pin"
		}
		return fmt.Sprintf("%s %s %s%s", MutedStyle.Render(ts), WarningStyle.Render("shown"), e.SessionID, detail)
	default:
		return fmt.Sprintf("%s %s %s reason=%s", MutedStyle.Render(ts), SuccessStyle.Render("dismissed"), e.SessionID, e.Reason)
	}
}

func printSnapshot(w io.Writer, snap overlay.Snapshot) {
	if !snap.Active() {
		fmt.Fprintln(w, RenderKV("Overlay", "idle"))
		return
	}
	v := snap.View
	fmt.Fprintln(w, RenderKV("Overlay", WarningStyle.Render("active")))
	fmt.Fprintln(w, RenderKV("Session", v.SessionID))
	fmt.Fprintln(w, RenderKV("Since", v.StartedAt.Local().Format(time.DateTime)))
	if v.TimerArmed {
		fmt.Fprintln(w, RenderKV("Auto-dismiss in", styles.FormatRemaining(v.RemainingSeconds)))
	} else {
		fmt.Fprintln(w, RenderKV("Auto-dismiss", "off"))
	}
	switch {
	case !v.PINRequired:
		fmt.Fprintln(w, RenderKV("PIN", "not required"))
	case v.LockedOut:
		fmt.Fprintln(w, RenderKV("PIN", ErrorStyle.Render("locked out")))
	default:
		fmt.Fprintln(w, RenderKV("PIN", fmt.Sprintf("required (%d attempts remaining)", v.RemainingAttempts)))
	}
}
