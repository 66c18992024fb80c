package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/eternnoir/mixident/pkg/bpm"
	"github.com/eternnoir/mixident/pkg/identify"
)

const (
	bucketRuns    = "runs"
	bucketRunMeta = "run_meta"
)

// ErrRunNotFound is returned for an unknown run id
var ErrRunNotFound = errors.New("run not found")

// Run describes one invocation of the pipeline
type Run struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"started_at"`
	Mode      string    `json:"mode"`
	Inputs    []string  `json:"inputs"`
	Entries   int       `json:"entries"`
}

// Entry is the audit record of one segment
type Entry struct {
	RunID      string        `json:"run_id"`
	SourcePath string        `json:"source_path"`
	Index      int           `json:"index"`
	Start      time.Duration `json:"start"`
	Duration   time.Duration `json:"duration"`

	Status      identify.Status        `json:"status"`
	Reason      string                 `json:"reason,omitempty"`
	Record      *identify.MergedRecord `json:"record,omitempty"`
	DetectedBPM *bpm.Estimate          `json:"detected_bpm,omitempty"`
	Snapshot    identify.Snapshot      `json:"snapshot"`

	RecordedAt time.Time `json:"recorded_at"`
}

// Store persists runs in a bbolt database
type Store struct {
	db *bolt.DB
}

// Open opens or creates the manifest database at path
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create manifest directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(bucketRuns)); err != nil {
			return fmt.Errorf("failed to create runs bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(bucketRunMeta)); err != nil {
			return fmt.Errorf("failed to create run metadata bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// NewRun registers a run and returns its id
func (s *Store) NewRun(mode identify.Mode, inputs []string) (string, error) {
	run := Run{
		ID:        uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Mode:      mode.String(),
		Inputs:    inputs,
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.Bucket([]byte(bucketRuns)).CreateBucket([]byte(run.ID)); err != nil {
			return fmt.Errorf("failed to create run bucket: %w", err)
		}
		data, err := json.Marshal(run)
		if err != nil {
			return fmt.Errorf("failed to marshal run: %w", err)
		}
		return tx.Bucket([]byte(bucketRunMeta)).Put([]byte(run.ID), data)
	})
	if err != nil {
		return "", err
	}
	return run.ID, nil
}

// Record stores the outcome of one segment. Recording the same segment
// twice replaces the earlier entry.
func (s *Store) Record(runID string, outcome *identify.Outcome) error {
	if outcome == nil {
		return fmt.Errorf("outcome is nil")
	}

	entry := Entry{
		RunID:       runID,
		SourcePath:  outcome.Segment.SourcePath,
		Index:       outcome.Segment.Index,
		Start:       outcome.Segment.Start,
		Duration:    outcome.Segment.Duration,
		Status:      outcome.Status,
		Reason:      outcome.Reason,
		Record:      outcome.Record,
		DetectedBPM: outcome.DetectedBPM,
		Snapshot:    outcome.Snapshot,
		RecordedAt:  time.Now().UTC(),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketRuns)).Bucket([]byte(runID))
		if bucket == nil {
			return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		if err := bucket.Put(entryKey(entry.SourcePath, entry.Index), data); err != nil {
			return fmt.Errorf("failed to store entry: %w", err)
		}
		return nil
	})
}

// Entries returns the entries of a run ordered by source and index
func (s *Store) Entries(runID string) ([]Entry, error) {
	var entries []Entry
	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketRuns)).Bucket([]byte(runID))
		if bucket == nil {
			return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return bucket.ForEach(func(k, v []byte) error {
			var entry Entry
			if err := json.Unmarshal(v, &entry); err != nil {
				return fmt.Errorf("failed to unmarshal entry %q: %w", k, err)
			}
			entries = append(entries, entry)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Runs lists all runs, newest first
func (s *Store) Runs() ([]Run, error) {
	var runs []Run
	err := s.db.View(func(tx *bolt.Tx) error {
		entries := tx.Bucket([]byte(bucketRuns))
		return tx.Bucket([]byte(bucketRunMeta)).ForEach(func(k, v []byte) error {
			var run Run
			if err := json.Unmarshal(v, &run); err != nil {
				return fmt.Errorf("failed to unmarshal run %q: %w", k, err)
			}
			if b := entries.Bucket(k); b != nil {
				run.Entries = b.Stats().KeyN
			}
			runs = append(runs, run)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	return runs, nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

func entryKey(source string, index int) []byte {
	return []byte(fmt.Sprintf("%s\x00%06d", source, index))
}
