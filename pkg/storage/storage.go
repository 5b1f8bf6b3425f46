// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package storage

import (
	"github.com/luxfi/database"
	"github.com/luxfi/database/badgerdb"
	"github.com/luxfi/database/memdb"
)

// Store wraps a key-value database. The nullifier set is the one piece
// of settlement state that must survive a restart, so it is kept here
// rather than in process memory.
type Store struct {
	db database.Database
}

// New creates a store of the given type ("memory" or "badger")
func New(dbType string, path string) (*Store, error) {
	var db database.Database
	var err error

	switch dbType {
	case "memory":
		db = memdb.New()
	default:
		db, err = badgerdb.New(path, nil, "", nil)
		if err != nil {
			return nil, err
		}
	}

	return &Store{db: db}, nil
}

// NewMemory creates an in-memory store
func NewMemory() *Store {
	return &Store{db: memdb.New()}
}

// Put stores a key-value pair
func (s *Store) Put(key, value []byte) error {
	return s.db.Put(key, value)
}

// Get retrieves a value by key
func (s *Store) Get(key []byte) ([]byte, error) {
	return s.db.Get(key)
}

// Has checks if a key exists
func (s *Store) Has(key []byte) (bool, error) {
	return s.db.Has(key)
}

// Delete removes a key-value pair
func (s *Store) Delete(key []byte) error {
	return s.db.Delete(key)
}

// NewIteratorWithPrefix creates an iterator over keys with a prefix
func (s *Store) NewIteratorWithPrefix(prefix []byte) database.Iterator {
	return s.db.NewIteratorWithPrefix(prefix)
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}
