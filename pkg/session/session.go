package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/eternnoir/mixident/pkg/audio"
	"github.com/eternnoir/mixident/pkg/identify"
	"github.com/eternnoir/mixident/pkg/logger"
	"github.com/eternnoir/mixident/pkg/manifest"
)

// ErrNoInputs is returned when none of the requested files could be split
var ErrNoInputs = errors.New("no usable input files")

// Recorder persists per-segment outcomes
type Recorder interface {
	NewRun(mode identify.Mode, inputs []string) (string, error)
	Record(runID string, outcome *identify.Outcome) error
}

var _ Recorder = (*manifest.Store)(nil)

// SessionImpl splits inputs, runs the pipeline and records the results
type SessionImpl struct {
	processor audio.Processor
	splitter  audio.Splitter
	pipeline  *identify.Pipeline
	recorder  Recorder
}

// Option configures a SessionImpl
type Option func(*SessionImpl)

// WithRecorder records every outcome, typically into a manifest.Store
func WithRecorder(r Recorder) Option {
	return func(s *SessionImpl) {
		s.recorder = r
	}
}

// WithSplitter overrides how inputs are cut into segments
func WithSplitter(splitter audio.Splitter) Option {
	return func(s *SessionImpl) {
		s.splitter = splitter
	}
}

// New creates a session runner around pipeline
func New(processor audio.Processor, pipeline *identify.Pipeline, options ...Option) *SessionImpl {
	s := &SessionImpl{
		processor: processor,
		splitter:  audio.NewSplitter(processor),
		pipeline:  pipeline,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Run identifies every segment of the requested files
func (s *SessionImpl) Run(ctx context.Context, req *Request) (*Result, error) {
	return s.RunWithProgress(ctx, req, nil)
}

// RunWithProgress identifies every segment of the requested files. Files
// that fail validation are reported in the result and do not abort the run.
func (s *SessionImpl) RunWithProgress(ctx context.Context, req *Request, callback identify.ProgressCallback) (*Result, error) {
	log := logger.FromContext(ctx).WithComponent("session")
	startTime := time.Now()

	if len(req.Paths) == 0 {
		return nil, ErrNoInputs
	}

	log.Info().
		Int("inputs", len(req.Paths)).
		Dur("segment_every", req.Options.SegmentEvery).
		Str("output_path", req.OutputPath).
		Msg("Starting session")

	result := &Result{Mode: s.pipeline.Mode()}
	var segments []audio.Segment
	for _, path := range req.Paths {
		file, fileSegments := s.prepare(ctx, path, req.Options)
		result.Files = append(result.Files, file)
		segments = append(segments, fileSegments...)
	}
	if len(segments) == 0 {
		return result, ErrNoInputs
	}

	if s.recorder != nil {
		runID, err := s.recorder.NewRun(result.Mode, req.Paths)
		if err != nil {
			log.Error().Err(err).Msg("Failed to register run")
			return nil, fmt.Errorf("failed to register run: %w", err)
		}
		result.RunID = runID
		log = log.WithField("run_id", runID)
	}

	result.Outcomes = s.pipeline.RunWithProgress(ctx, segments, func(completed, total int, outcome *identify.Outcome) {
		if s.recorder != nil && result.RunID != "" {
			if err := s.recorder.Record(result.RunID, outcome); err != nil {
				log.Warn().Err(err).Int("segment", outcome.Segment.Index).Msg("Failed to record outcome")
			}
		}
		if callback != nil {
			callback(completed, total, outcome)
		}
	})
	result.Counts = CountOutcomes(result.Outcomes)
	result.ProcessTime = time.Since(startTime)

	log.Info().
		Int("identified", result.Counts.Identified).
		Int("unidentified", result.Counts.Unidentified).
		Int("skipped", result.Counts.Skipped).
		Dur("processing_time", result.ProcessTime).
		Msg("Session finished")

	if req.OutputPath != "" {
		if err := SaveResult(result, req.OutputPath); err != nil {
			log.Error().Err(err).Str("output_path", req.OutputPath).Msg("Failed to save result")
			return result, fmt.Errorf("failed to save result: %w", err)
		}
		log.Info().Str("output_path", req.OutputPath).Msg("Session result saved")
	}

	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

// prepare validates one input and cuts it into segments
func (s *SessionImpl) prepare(ctx context.Context, path string, opts Options) (FileResult, []audio.Segment) {
	log := logger.FromContext(ctx).WithComponent("session").WithField("file", filepath.Base(path))
	file := FileResult{Path: path}

	if err := s.processor.ValidateFile(path); err != nil {
		log.Warn().Err(err).Msg("File validation failed, skipping input")
		file.Error = err.Error()
		return file, nil
	}

	segments, err := s.splitter.Split(path, opts.SegmentEvery)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to split input, skipping")
		file.Error = err.Error()
		return file, nil
	}

	file.Segments = len(segments)
	if n := len(segments); n > 0 {
		file.Duration = segments[n-1].End()
	}
	log.Debug().Int("segments", file.Segments).Dur("duration", file.Duration).Msg("Input prepared")
	return file, segments
}

// CountOutcomes tallies outcomes by status
func CountOutcomes(outcomes []*identify.Outcome) Counts {
	var c Counts
	for _, o := range outcomes {
		switch o.Status {
		case identify.StatusIdentified:
			c.Identified++
		case identify.StatusUnidentified:
			c.Unidentified++
		case identify.StatusSkipped:
			c.Skipped++
		}
	}
	return c
}

// SaveResult writes result as indented JSON
func SaveResult(result *Result, outputPath string) error {
	if result.Metadata == nil {
		result.Metadata = make(map[string]any)
	}
	result.Metadata["saved_at"] = time.Now().Format(time.RFC3339)

	content, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	if dir := filepath.Dir(outputPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	if err := os.WriteFile(outputPath, content, 0o644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	return nil
}
