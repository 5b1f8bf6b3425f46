// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package nullifier tracks consumed single-use conversion tokens. The
// registry is the sole double-spend defense: once a nullifier is marked
// used it can never be marked again.
package nullifier

import (
	"context"
	"errors"
	"sync"

	"github.com/luxfi/database"

	"github.com/luxfi/attrib/pkg/ids"
	"github.com/luxfi/attrib/pkg/storage"
)

var (
	ErrAlreadyUsed = errors.New("nullifier already used")
	ErrReserved    = errors.New("nullifier reserved by in-flight settlement")
	ErrNotReserved = errors.New("nullifier not reserved")
)

// Registry is the source of truth for replay prevention. Besides the
// plain used-set, it supports a reserve/commit/release cycle so the
// orchestrator can roll a nullifier back when billing fails after the
// proof was admitted.
type Registry interface {
	IsUsed(ctx context.Context, n ids.ID) (bool, error)
	MarkUsed(ctx context.Context, n ids.ID) error
	Reserve(ctx context.Context, n ids.ID) error
	Commit(ctx context.Context, n ids.ID) error
	Release(ctx context.Context, n ids.ID) error
}

var usedPrefix = []byte("nullifier/used/")

// StoreRegistry persists the used-set in a key-value store.
// Reservations are process-local: a reservation that dies with the
// process never paid anyone and is safe to forget.
type StoreRegistry struct {
	mu       sync.Mutex
	store    *storage.Store
	reserved map[ids.ID]struct{}
}

// NewStoreRegistry creates a registry backed by the given store
func NewStoreRegistry(store *storage.Store) *StoreRegistry {
	return &StoreRegistry{
		store:    store,
		reserved: make(map[ids.ID]struct{}),
	}
}

func usedKey(n ids.ID) []byte {
	return append(usedPrefix, n[:]...)
}

// IsUsed reports whether the nullifier has been consumed
func (r *StoreRegistry) IsUsed(_ context.Context, n ids.ID) (bool, error) {
	has, err := r.store.Has(usedKey(n))
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return false, err
	}
	return has, nil
}

// MarkUsed consumes the nullifier, failing if already consumed
func (r *StoreRegistry) MarkUsed(ctx context.Context, n ids.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.markLocked(ctx, n)
}

func (r *StoreRegistry) markLocked(ctx context.Context, n ids.ID) error {
	used, err := r.IsUsed(ctx, n)
	if err != nil {
		return err
	}
	if used {
		return ErrAlreadyUsed
	}
	return r.store.Put(usedKey(n), []byte{1})
}

// Reserve holds the nullifier for an in-flight settlement
func (r *StoreRegistry) Reserve(ctx context.Context, n ids.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	used, err := r.IsUsed(ctx, n)
	if err != nil {
		return err
	}
	if used {
		return ErrAlreadyUsed
	}
	if _, ok := r.reserved[n]; ok {
		return ErrReserved
	}
	r.reserved[n] = struct{}{}
	return nil
}

// Commit converts a reservation into permanent consumption
func (r *StoreRegistry) Commit(ctx context.Context, n ids.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.reserved[n]; !ok {
		return ErrNotReserved
	}
	if err := r.markLocked(ctx, n); err != nil {
		return err
	}
	delete(r.reserved, n)
	return nil
}

// Release frees a reservation without consuming the nullifier
func (r *StoreRegistry) Release(_ context.Context, n ids.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.reserved[n]; !ok {
		return ErrNotReserved
	}
	delete(r.reserved, n)
	return nil
}
