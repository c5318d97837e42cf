// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package status

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind identifies a status event.
type Kind string

const (
	// KindShown is published when an overlay session starts.
	KindShown Kind = "shown"
	// KindDismissed is published exactly once when an overlay session ends.
	KindDismissed Kind = "dismissed"
)

// Valid reports whether k is a known event kind.
func (k Kind) Valid() bool {
	return k == KindShown || k == KindDismissed
}

// Reason explains why a session was dismissed.
type Reason string

const (
	ReasonUser      Reason = "user"
	ReasonPIN       Reason = "pin"
	ReasonTimer     Reason = "timer"
	ReasonForceStop Reason = "force_stop"
)

// Event is the serialised envelope sent to control surfaces. It carries no
// PIN material; PINProtected only says whether dismissal is gated.
type Event struct {
	ID                 string    `json:"id" cbor:"1,keyasint"`
	Seq                uint64    `json:"seq" cbor:"2,keyasint"`
	Kind               Kind      `json:"kind" cbor:"3,keyasint"`
	SessionID          string    `json:"session_id" cbor:"4,keyasint"`
	Reason             Reason    `json:"reason,omitempty" cbor:"5,keyasint,omitempty"`
	At                 time.Time `json:"at" cbor:"6,keyasint"`
	AutoDismissSeconds int       `json:"auto_dismiss_seconds,omitempty" cbor:"7,keyasint,omitempty"`
	PINProtected       bool      `json:"pin_protected,omitempty" cbor:"8,keyasint,omitempty"`
}

// NewEvent builds an envelope with a fresh ID. Seq is assigned by the Bus.
func NewEvent(kind Kind, sessionID string, at time.Time) Event {
	return Event{
		ID:        uuid.NewString(),
		Kind:      kind,
		SessionID: sessionID,
		At:        at.UTC(),
	}
}

// Validate checks that an envelope received from the wire is usable.
func (e Event) Validate() error {
	if !e.Kind.Valid() {
		return fmt.Errorf("unknown event kind %q", e.Kind)
	}
	if e.SessionID == "" {
		return fmt.Errorf("event %s has no session id", e.ID)
	}
	return nil
}

// String returns a single-line description for logs and the CLI.
func (e Event) String() string {
	s := fmt.Sprintf("#%d %s session=%s", e.Seq, e.Kind, e.SessionID)
	if e.Reason != "" {
		s += " reason=" + string(e.Reason)
	}
	return s
}
