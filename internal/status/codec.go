// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package status

import (
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Encoding names a wire encoding for status envelopes.
type Encoding string

const (
	EncodingJSON Encoding = "json"
	EncodingCBOR Encoding = "cbor"
)

// Codec turns events into frames and back.
type Codec interface {
	Encoding() Encoding
	Encode(Event) ([]byte, error)
	Decode([]byte) (Event, error)
	// Binary reports whether frames should travel as binary messages.
	Binary() bool
}

var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func init() {
	var err error

	// Deterministic output so identical events produce identical frames.
	cborEnc, err = cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR encoder mode: %v", err))
	}

	// Lenient decoding so newer daemons can add fields.
	cborDec, err = cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyQuiet,
		IndefLength: cbor.IndefLengthAllowed,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR decoder mode: %v", err))
	}
}

// CodecFor returns the codec for an encoding name. An empty name selects JSON.
func CodecFor(enc Encoding) (Codec, error) {
	switch enc {
	case "", EncodingJSON:
		return jsonCodec{}, nil
	case EncodingCBOR:
		return cborCodec{}, nil
	default:
		return nil, fmt.Errorf("unsupported event encoding %q (want json or cbor)", enc)
	}
}

type jsonCodec struct{}

func (jsonCodec) Encoding() Encoding { return EncodingJSON }
func (jsonCodec) Binary() bool       { return false }

func (jsonCodec) Encode(e Event) ([]byte, error) {
	return json.Marshal(e)
}

func (jsonCodec) Decode(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, fmt.Errorf("failed to decode event: %w", err)
	}
	return e, e.Validate()
}

type cborCodec struct{}

func (cborCodec) Encoding() Encoding { return EncodingCBOR }
func (cborCodec) Binary() bool       { return true }

func (cborCodec) Encode(e Event) ([]byte, error) {
	return cborEnc.Marshal(e)
}

func (cborCodec) Decode(data []byte) (Event, error) {
	var e Event
	if err := cborDec.Unmarshal(data, &e); err != nil {
		return Event{}, fmt.Errorf("failed to decode event: %w", err)
	}
	return e, e.Validate()
}
