package watcher

import (
	"context"
	"time"

	"github.com/eternnoir/mixident/pkg/config"
	"github.com/eternnoir/mixident/pkg/session"
)

// Watcher identifies mix files as they appear in a directory
type Watcher interface {
	// Start registers the directory and begins processing in the background
	Start(ctx context.Context) error

	// Stop drains the workers and closes the history
	Stop() error

	// SetProgressCallback receives every event of every file
	SetProgressCallback(callback ProgressCallback)

	// Stats returns a snapshot of the counters
	Stats() Stats

	// InitialDone is closed once files present at Start have been handled
	InitialDone() <-chan struct{}
}

// Tracker guards against two workers handling the same path
type Tracker interface {
	Acquire(path string) bool
	Release(path string)
	Held(path string) bool
	Expire(olderThan time.Duration) int
	Paths() []string
}

// History remembers which file contents were already identified
type History interface {
	Processed(hash string) (*ProcessedRecord, error)
	Failed(hash string) (*FailedRecord, error)
	MarkProcessed(rec *ProcessedRecord) error
	MarkFailed(rec *FailedRecord) error
	Forget(hash string) error
	Close() error
}

// FileProcessor identifies one file
type FileProcessor interface {
	ProcessFile(ctx context.Context, path string) error
	CanProcess(path string) bool
}

// EventType classifies progress events
type EventType string

const (
	EventFound      EventType = "found"
	EventProcessing EventType = "processing"
	EventCompleted  EventType = "completed"
	EventFailed     EventType = "failed"
	EventSkipped    EventType = "skipped"
)

// ProgressCallback is called for every event
type ProgressCallback func(event *Event)

// Event reports what happened to one file
type Event struct {
	Type    EventType
	Path    string
	Message string
	Err     error
	At      time.Time

	// Set on EventCompleted
	Result *session.Result
}

// ProcessedRecord is stored for every identified file
type ProcessedRecord struct {
	Hash         string        `json:"hash"`
	Path         string        `json:"path"`
	Size         int64         `json:"size"`
	ProcessedAt  time.Time     `json:"processed_at"`
	Elapsed      time.Duration `json:"elapsed"`
	RunID        string        `json:"run_id,omitempty"`
	ReportPath   string        `json:"report_path"`
	Identified   int           `json:"identified"`
	Unidentified int           `json:"unidentified"`
	Skipped      int           `json:"skipped"`
}

// FailedRecord is stored for files whose run returned an error
type FailedRecord struct {
	Hash     string    `json:"hash"`
	Path     string    `json:"path"`
	FailedAt time.Time `json:"failed_at"`
	Error    string    `json:"error"`
	Attempts int       `json:"attempts"`
}

// Stats counts what the watcher has done since Start
type Stats struct {
	StartTime  time.Time
	Completed  int
	Failed     int
	Skipped    int
	Identified int
	InProgress int
}

// Config contains everything the watcher needs
type Config struct {
	WatchDir string

	Patterns          []string
	Recursive         bool
	Interval          time.Duration
	StabilityWait     time.Duration
	ProcessingTimeout time.Duration

	// Reports go next to the input when empty
	OutputDir string

	// Identified files are moved here when set
	MoveToDir string

	HistoryDB       string
	ProcessExisting bool
	RetryFailed     bool
	MaxWorkers      int

	// SegmentEvery is passed on to every session
	SegmentEvery time.Duration
}

// ConfigFromSettings builds a watcher config for dir from the watch section
func ConfigFromSettings(dir string, settings config.WatchConfig, segmentEvery time.Duration) *Config {
	cfg := &Config{
		WatchDir:          dir,
		Patterns:          settings.Patterns,
		Recursive:         settings.Recursive,
		Interval:          settings.Interval,
		StabilityWait:     settings.StabilityWait,
		ProcessingTimeout: settings.ProcessingTimeout,
		OutputDir:         settings.OutputDir,
		MoveToDir:         settings.MoveToDir,
		HistoryDB:         settings.HistoryDB,
		ProcessExisting:   settings.ProcessExisting,
		RetryFailed:       settings.RetryFailed,
		MaxWorkers:        settings.MaxWorkers,
		SegmentEvery:      segmentEvery,
	}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	d := config.DefaultConfig().Watch
	if len(c.Patterns) == 0 {
		c.Patterns = d.Patterns
	}
	if c.Interval <= 0 {
		c.Interval = d.Interval
	}
	if c.ProcessingTimeout <= 0 {
		c.ProcessingTimeout = d.ProcessingTimeout
	}
	if c.HistoryDB == "" {
		c.HistoryDB = d.HistoryDB
	}
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = 1
	}
}
