// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ids

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// IDLen is the length of an ID in bytes
const IDLen = 32

// ID is a fixed-width opaque value: nullifiers, commitments and
// campaign roots are all IDs.
type ID [IDLen]byte

// Empty is the zero ID
var Empty = ID{}

// GenerateTestID creates a random ID for testing
func GenerateTestID() ID {
	var id ID
	rand.Read(id[:])
	return id
}

// String returns the hex representation of the ID
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// Bytes returns the byte representation of the ID
func (id ID) Bytes() []byte {
	return id[:]
}

// IsEmpty returns true if the ID is all zero
func (id ID) IsEmpty() bool {
	return id == ID{}
}

// FromString creates an ID from a hex string
func FromString(s string) (ID, error) {
	var id ID
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, err
	}
	if len(b) != IDLen {
		return id, fmt.Errorf("invalid ID length: expected %d, got %d", IDLen, len(b))
	}
	copy(id[:], b)
	return id, nil
}

// FromBytes creates an ID from a byte slice
func FromBytes(b []byte) (ID, error) {
	var id ID
	if len(b) != IDLen {
		return id, fmt.Errorf("invalid ID length: expected %d, got %d", IDLen, len(b))
	}
	copy(id[:], b)
	return id, nil
}
