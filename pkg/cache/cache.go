package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v3"
)

// Store is a JSON value cache with per-entry expiry
type Store struct {
	db  *badger.DB
	ttl time.Duration
}

// Open opens or creates a cache in dir
func Open(dir string, ttl time.Duration) (*Store, error) {
	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}
	return &Store{db: db, ttl: ttl}, nil
}

// OpenInMemory creates a cache that lives only as long as the process
func OpenInMemory(ttl time.Duration) (*Store, error) {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory cache: %w", err)
	}
	return &Store{db: db, ttl: ttl}, nil
}

// Get decodes the value stored under key into v. It reports false when the
// key is absent or expired.
func (s *Store) Get(key string, v interface{}) (bool, error) {
	var found bool
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, v)
		})
	})
	if err != nil {
		return false, fmt.Errorf("failed to read cache entry %s: %w", key, err)
	}
	return found, nil
}

// Set stores v under key with the store's TTL. A zero TTL never expires.
func (s *Store) Set(key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), data)
		if s.ttl > 0 {
			entry = entry.WithTTL(s.ttl)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("failed to write cache entry %s: %w", key, err)
	}
	return nil
}

// Delete removes key
func (s *Store) Delete(key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}
