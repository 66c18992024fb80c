package session

import (
	"context"
	"time"

	"github.com/eternnoir/mixident/pkg/identify"
)

// Request describes one identification run over a set of input files
type Request struct {
	Paths      []string
	OutputPath string
	Options    Options
}

// Options controls how inputs are turned into segments
type Options struct {
	// SegmentEvery cuts each input into back-to-back segments. 0 keeps the
	// whole file as one segment.
	SegmentEvery time.Duration
}

// FileResult describes one input file of a run
type FileResult struct {
	Path     string        `json:"path"`
	Duration time.Duration `json:"duration"`
	Segments int           `json:"segments"`
	Error    string        `json:"error,omitempty"`
}

// Counts summarises the outcomes of a run
type Counts struct {
	Identified   int `json:"identified"`
	Unidentified int `json:"unidentified"`
	Skipped      int `json:"skipped"`
}

// Result is the complete outcome of a run
type Result struct {
	RunID       string              `json:"run_id,omitempty"`
	Mode        identify.Mode       `json:"mode"`
	Files       []FileResult        `json:"files"`
	Outcomes    []*identify.Outcome `json:"outcomes"`
	Counts      Counts              `json:"counts"`
	ProcessTime time.Duration       `json:"process_time"`
	Metadata    map[string]any      `json:"metadata,omitempty"`
}

// Runner runs identification sessions
type Runner interface {
	// Run identifies every segment of the requested files
	Run(ctx context.Context, req *Request) (*Result, error)

	// RunWithProgress reports each finished segment through callback
	RunWithProgress(ctx context.Context, req *Request, callback identify.ProgressCallback) (*Result, error)
}
