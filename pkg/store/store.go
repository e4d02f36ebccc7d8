// Copyright (C) 2026, Voltgrid Labs. All rights reserved.
// See the file LICENSE for licensing terms.

// Package store wraps luxfi/database with a tuple-based key encoding for
// every pkg/ledger, pkg/market, pkg/clearing, pkg/allocation, and
// pkg/delivery record. pkg/engine writes only Timeslot records (under
// TimeslotKey); the other records are held in memory and not persisted.
package store

import (
	"github.com/luxfi/database"
	"github.com/luxfi/database/badgerdb"
	"github.com/luxfi/database/memdb"
)

// Store wraps luxfi's database interface.
type Store struct {
	db database.Database
}

// New creates a new Store instance. dbType "memory" backs it with memdb
// (tests, ephemeral nodes); anything else (including "" and "badger") opens
// a badgerdb instance rooted at path.
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

// Put stores a key-value pair.
func (s *Store) Put(key, value []byte) error {
	return s.db.Put(key, value)
}

// Get retrieves a value by key.
func (s *Store) Get(key []byte) ([]byte, error) {
	return s.db.Get(key)
}

// Has checks if a key exists.
func (s *Store) Has(key []byte) (bool, error) {
	return s.db.Has(key)
}

// Delete removes a key-value pair.
func (s *Store) Delete(key []byte) error {
	return s.db.Delete(key)
}

// NewBatch creates a new batch for atomic operations. pkg/engine writes
// with Put and does not use batches.
func (s *Store) NewBatch() database.Batch {
	return s.db.NewBatch()
}

// NewIteratorWithPrefix creates an iterator scoped to a key prefix.
// pkg/engine's read-only query surface reads its in-memory working set and
// does not iterate the store.
func (s *Store) NewIteratorWithPrefix(prefix []byte) database.Iterator {
	return s.db.NewIteratorWithPrefix(prefix)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDatabase returns the underlying database.
func (s *Store) GetDatabase() database.Database {
	return s.db
}
