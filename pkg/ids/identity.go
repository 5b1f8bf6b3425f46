// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ids

import (
	"encoding/hex"
	"fmt"
)

// IdentityLen is the length of an Identity in bytes
const IdentityLen = 20

// Identity is an address-style identifier for a participant: campaign
// owners, publishers, users, devices and payout recipients.
type Identity [IdentityLen]byte

// EmptyIdentity is the zero Identity
var EmptyIdentity = Identity{}

// String returns the hex representation of an Identity
func (id Identity) String() string {
	return hex.EncodeToString(id[:])
}

// IsEmpty returns true if the Identity is empty
func (id Identity) IsEmpty() bool {
	return id == Identity{}
}

// Bytes returns the byte representation of an Identity
func (id Identity) Bytes() []byte {
	return id[:]
}

// IdentityFromString parses an Identity from a hex string
func IdentityFromString(s string) (Identity, error) {
	var id Identity
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, err
	}
	if len(b) != IdentityLen {
		return id, fmt.Errorf("invalid Identity length: expected %d, got %d", IdentityLen, len(b))
	}
	copy(id[:], b)
	return id, nil
}

// GenerateTestIdentity generates a new random Identity
func GenerateTestIdentity() Identity {
	var id Identity
	testID := GenerateTestID()
	copy(id[:], testID[:IdentityLen])
	return id
}
