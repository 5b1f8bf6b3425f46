// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package crypto

import (
	"github.com/luxfi/crypto/hashing"
	"golang.org/x/crypto/blake2b"

	"github.com/luxfi/attrib/pkg/ids"
)

// CreateCommitment creates a cryptographic commitment to data
func CreateCommitment(data []byte) []byte {
	return hashing.ComputeHash256(data)
}

// CommitmentID hashes data into a fixed-width ID
func CommitmentID(data []byte) ids.ID {
	id, _ := ids.FromBytes(hashing.ComputeHash256(data))
	return id
}

// DeriveNullifier derives the single-use conversion token from a user
// secret and the click context. The derivation runs client-side in
// production; it lives here so tests and tooling agree on the format.
func DeriveNullifier(userSecret []byte, clickContext []byte) ids.ID {
	h, _ := blake2b.New256(nil)
	h.Write(userSecret)
	h.Write(clickContext)
	var id ids.ID
	copy(id[:], h.Sum(nil))
	return id
}
