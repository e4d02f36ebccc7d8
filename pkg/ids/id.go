// Copyright (C) 2026, Voltgrid Labs. All rights reserved.
// See the file LICENSE for licensing terms.

// Package ids defines the identity type shared by every participant in the
// auction core: sellers, buyers, oracles, and the administrative authority.
package ids

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// ID is a 32-byte participant identifier. Timeslots are keyed by epoch
// timestamp instead (see pkg/market), not by ID.
type ID [32]byte

// Empty is the zero ID, used as a sentinel for "no owner".
var Empty = ID{}

// GenerateTestID creates a random ID for tests.
func GenerateTestID() ID {
	var id ID
	_, _ = rand.Read(id[:])
	return id
}

// String returns the hex representation of the ID.
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// Bytes returns the byte representation of the ID.
func (id ID) Bytes() []byte {
	return id[:]
}

// Less gives the lexicographic byte ordering spec.md's tie-breaking rule
// requires ("owner identifier bytes, lexicographic").
func (id ID) Less(other ID) bool {
	for i := range id {
		if id[i] != other[i] {
			return id[i] < other[i]
		}
	}
	return false
}

// IsEmpty reports whether id is the zero value.
func (id ID) IsEmpty() bool {
	return id == Empty
}

// FromString creates an ID from a hex string.
func FromString(s string) (ID, error) {
	var id ID
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, err
	}
	if len(b) != len(id) {
		return id, fmt.Errorf("invalid ID length: expected %d, got %d", len(id), len(b))
	}
	copy(id[:], b)
	return id, nil
}

// MarshalText renders an ID as its hex string. Implementing
// encoding.TextMarshaler (rather than json.Marshaler) means this also
// covers ID used as a JSON object key (e.g. map[ids.ID]*delivery.SlashingState),
// which encoding/json only supports for TextMarshaler key types.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText parses an ID from its hex string representation.
func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := FromString(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
