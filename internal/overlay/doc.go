// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package overlay implements the lock overlay lifecycle.

The Controller owns the one and only overlay session. It is constructed by
the daemon and injected into everything that needs it (the control server
and the terminal surface); there is no package-level instance.

# State machine

	Idle --Activate--> Showing
	Showing --RequestDismiss(ok) | timer expiry | ForceStop--> Idle
	Showing --RequestDismiss(wrong PIN, attempts left)--> Showing (Rejected)
	Showing --RequestDismiss(wrong PIN, last attempt)--> Showing (LockedOut)

Once a session is locked out no further PIN is evaluated; it ends only by
ForceStop or by its auto-dismiss timer. A torn-down session is never resumed.

# Concurrency

Activate, RequestDismiss, ForceStop and the countdown callbacks serialise on
a single mutex. Countdown callbacks carry the ID of the session that armed
them, so a callback that was already in flight when its session ended is
recognised as stale and ignored. Teardown therefore runs at most once per
session no matter how timer expiry, PIN entry and forced stops interleave.

# Collaborators

Surface, Announcer, Publisher, Auditor and Recorder are small interfaces
with no-op defaults. They are invoked under the controller lock and must not
block or call back into the Controller synchronously.

Usage:

	bus := status.NewBus()
	ctrl := overlay.NewController(
	    overlay.WithPublisher(bus),
	    overlay.WithAnnouncer(presence),
	)

	if err := ctrl.Activate(settings); errors.Is(err, overlay.ErrAlreadyActive) {
	    // tell the user
	}

	pin := "1234"
	switch out := ctrl.RequestDismiss(&pin); out.Kind {
	case overlay.OutcomeRejected:
	    fmt.Println(out.Message())
	}
*/
package overlay
