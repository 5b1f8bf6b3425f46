// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCommitmentDeterministic(t *testing.T) {
	require := require.New(t)

	data := []byte("click:campaign-7:slot-3")
	require.Equal(CreateCommitment(data), CreateCommitment(data))
	require.NotEqual(CreateCommitment(data), CreateCommitment([]byte("click:campaign-7:slot-4")))

	id := CommitmentID(data)
	require.False(id.IsEmpty())
	require.Equal(id, CommitmentID(data))
}

func TestDeriveNullifier(t *testing.T) {
	require := require.New(t)

	secret := []byte("user-secret")
	context := []byte("click-context")

	n := DeriveNullifier(secret, context)
	require.False(n.IsEmpty())
	require.Equal(n, DeriveNullifier(secret, context))

	// Either input changing yields a different nullifier
	require.NotEqual(n, DeriveNullifier([]byte("other-secret"), context))
	require.NotEqual(n, DeriveNullifier(secret, []byte("other-context")))

	// The derivation is not the commitment hash; knowing one reveals
	// nothing about the other
	require.NotEqual(n, CommitmentID(append(secret, context...)))
}
