// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package nullifier

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/attrib/pkg/ids"
	"github.com/luxfi/attrib/pkg/storage"
)

func newTestRegistry() *StoreRegistry {
	return NewStoreRegistry(storage.NewMemory())
}

func TestMarkUsedIsPermanent(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	reg := newTestRegistry()

	n := ids.GenerateTestID()

	used, err := reg.IsUsed(ctx, n)
	require.NoError(err)
	require.False(used)

	require.NoError(reg.MarkUsed(ctx, n))

	used, err = reg.IsUsed(ctx, n)
	require.NoError(err)
	require.True(used)

	require.ErrorIs(reg.MarkUsed(ctx, n), ErrAlreadyUsed)
}

func TestReserveCommit(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	reg := newTestRegistry()

	n := ids.GenerateTestID()

	require.NoError(reg.Reserve(ctx, n))

	// A reservation blocks a second reservation but does not consume
	require.ErrorIs(reg.Reserve(ctx, n), ErrReserved)
	used, err := reg.IsUsed(ctx, n)
	require.NoError(err)
	require.False(used)

	require.NoError(reg.Commit(ctx, n))
	used, err = reg.IsUsed(ctx, n)
	require.NoError(err)
	require.True(used)

	require.ErrorIs(reg.Reserve(ctx, n), ErrAlreadyUsed)
}

func TestReleaseReopensNullifier(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	reg := newTestRegistry()

	n := ids.GenerateTestID()

	require.NoError(reg.Reserve(ctx, n))
	require.NoError(reg.Release(ctx, n))

	used, err := reg.IsUsed(ctx, n)
	require.NoError(err)
	require.False(used)

	// A released nullifier can be reserved and committed again
	require.NoError(reg.Reserve(ctx, n))
	require.NoError(reg.Commit(ctx, n))
}

func TestCommitWithoutReserve(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	reg := newTestRegistry()

	n := ids.GenerateTestID()
	require.ErrorIs(reg.Commit(ctx, n), ErrNotReserved)
	require.ErrorIs(reg.Release(ctx, n), ErrNotReserved)
}

func TestRegistrySurvivesReopen(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	store := storage.NewMemory()
	reg := NewStoreRegistry(store)

	n := ids.GenerateTestID()
	require.NoError(reg.MarkUsed(ctx, n))

	// A new registry over the same store sees the consumed set
	reg2 := NewStoreRegistry(store)
	used, err := reg2.IsUsed(ctx, n)
	require.NoError(err)
	require.True(used)
}
