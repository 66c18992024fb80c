package watcher

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketProcessed = []byte("processed")
	bucketFailed    = []byte("failed")
)

// boltHistory keeps History in a bbolt file, keyed by FileHash
type boltHistory struct {
	db *bolt.DB
}

// OpenHistory opens or creates the history database at path
func OpenHistory(path string) (History, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketProcessed, bucketFailed} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create %s bucket: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &boltHistory{db: db}, nil
}

func (h *boltHistory) Processed(hash string) (*ProcessedRecord, error) {
	var rec ProcessedRecord
	found, err := h.get(bucketProcessed, hash, &rec)
	if err != nil || !found {
		return nil, err
	}
	return &rec, nil
}

func (h *boltHistory) Failed(hash string) (*FailedRecord, error) {
	var rec FailedRecord
	found, err := h.get(bucketFailed, hash, &rec)
	if err != nil || !found {
		return nil, err
	}
	return &rec, nil
}

// MarkProcessed stores rec and clears any earlier failure
func (h *boltHistory) MarkProcessed(rec *ProcessedRecord) error {
	return h.db.Update(func(tx *bolt.Tx) error {
		if err := putJSON(tx.Bucket(bucketProcessed), rec.Hash, rec); err != nil {
			return err
		}
		return tx.Bucket(bucketFailed).Delete([]byte(rec.Hash))
	})
}

// MarkFailed stores rec, counting attempts across calls
func (h *boltHistory) MarkFailed(rec *FailedRecord) error {
	return h.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketFailed)
		rec.Attempts = 1
		if data := bucket.Get([]byte(rec.Hash)); data != nil {
			var previous FailedRecord
			if err := json.Unmarshal(data, &previous); err == nil {
				rec.Attempts = previous.Attempts + 1
			}
		}
		return putJSON(bucket, rec.Hash, rec)
	})
}

// Forget removes every record of hash
func (h *boltHistory) Forget(hash string) error {
	return h.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketProcessed, bucketFailed} {
			if err := tx.Bucket(name).Delete([]byte(hash)); err != nil {
				return fmt.Errorf("failed to delete from %s: %w", name, err)
			}
		}
		return nil
	})
}

func (h *boltHistory) Close() error {
	return h.db.Close()
}

func (h *boltHistory) get(bucket []byte, key string, v any) (bool, error) {
	found := false
	err := h.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucket).Get([]byte(key))
		if data == nil {
			return nil
		}
		found = true
		if err := json.Unmarshal(data, v); err != nil {
			return fmt.Errorf("failed to unmarshal %s record: %w", bucket, err)
		}
		return nil
	})
	return found, err
}

func putJSON(bucket *bolt.Bucket, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	if err := bucket.Put([]byte(key), data); err != nil {
		return fmt.Errorf("failed to store record: %w", err)
	}
	return nil
}
