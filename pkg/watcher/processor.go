package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/eternnoir/mixident/pkg/logger"
	"github.com/eternnoir/mixident/pkg/session"
)

const (
	markerSuffix = ".processing"
	reportSuffix = ".mixident.json"
)

// mixProcessor runs one identification session per file
type mixProcessor struct {
	cfg     *Config
	runner  session.Runner
	tracker Tracker
	history History
	emit    ProgressCallback
}

// NewFileProcessor creates a processor. emit may be nil.
func NewFileProcessor(cfg *Config, runner session.Runner, tracker Tracker, history History, emit ProgressCallback) FileProcessor {
	return &mixProcessor{
		cfg:     cfg,
		runner:  runner,
		tracker: tracker,
		history: history,
		emit:    emit,
	}
}

// ProcessFile identifies path unless its contents were handled before.
// Errors are returned only when the session itself fails.
func (p *mixProcessor) ProcessFile(ctx context.Context, path string) error {
	log := logger.WithComponent("processor").WithField("file", filepath.Base(path))

	if !p.CanProcess(path) {
		p.report(EventSkipped, path, "File cannot be processed yet", nil)
		return nil
	}
	if !p.tracker.Acquire(path) {
		p.report(EventSkipped, path, "File is already being processed", nil)
		return nil
	}
	defer p.tracker.Release(path)

	marker := path + markerSuffix
	if err := os.WriteFile(marker, []byte(time.Now().Format(time.RFC3339)), 0o644); err != nil {
		log.Warn().Err(err).Msg("Failed to create processing marker")
	}
	defer func() { _ = os.Remove(marker) }()

	hash, err := FileHash(path)
	if err != nil {
		return fmt.Errorf("failed to calculate file hash: %w", err)
	}
	log = log.WithField("hash", hash)

	if skip, reason := p.seenBefore(hash); skip {
		log.Debug().Str("reason", reason).Msg("Skipping file")
		p.report(EventSkipped, path, reason, nil)
		return nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to get file info: %w", err)
	}

	p.report(EventProcessing, path, "Starting identification", nil)
	startTime := time.Now()
	reportPath := p.reportPath(path)

	runCtx, cancel := context.WithTimeout(ctx, p.cfg.ProcessingTimeout)
	defer cancel()

	result, err := p.runner.Run(runCtx, &session.Request{
		Paths:      []string{path},
		OutputPath: reportPath,
		Options:    session.Options{SegmentEvery: p.cfg.SegmentEvery},
	})
	if err != nil {
		if histErr := p.history.MarkFailed(&FailedRecord{
			Hash:     hash,
			Path:     path,
			FailedAt: time.Now(),
			Error:    err.Error(),
		}); histErr != nil {
			log.Warn().Err(histErr).Msg("Failed to record failure in history")
		}
		p.report(EventFailed, path, "Identification failed", err)
		return fmt.Errorf("identification failed: %w", err)
	}

	rec := &ProcessedRecord{
		Hash:         hash,
		Path:         path,
		Size:         info.Size(),
		ProcessedAt:  time.Now(),
		Elapsed:      time.Since(startTime),
		RunID:        result.RunID,
		ReportPath:   reportPath,
		Identified:   result.Counts.Identified,
		Unidentified: result.Counts.Unidentified,
		Skipped:      result.Counts.Skipped,
	}
	if err := p.history.MarkProcessed(rec); err != nil {
		log.Warn().Err(err).Msg("Failed to record success in history")
	}

	if p.cfg.MoveToDir != "" {
		if dest, err := moveInto(p.cfg.MoveToDir, path); err != nil {
			log.Warn().Err(err).Msg("Failed to move processed file")
		} else {
			log.Debug().Str("moved_to", dest).Msg("Moved processed file")
		}
	}

	p.emitEvent(&Event{
		Type:    EventCompleted,
		Path:    path,
		Message: fmt.Sprintf("Identified %d of %d segments in %v", result.Counts.Identified, len(result.Outcomes), rec.Elapsed.Round(time.Millisecond)),
		At:      time.Now(),
		Result:  result,
	})

	log.Info().
		Str("run_id", result.RunID).
		Int("identified", rec.Identified).
		Dur("duration", rec.Elapsed).
		Str("report", reportPath).
		Msg("File processed successfully")

	return nil
}

// seenBefore consults the history. History errors never block processing.
func (p *mixProcessor) seenBefore(hash string) (bool, string) {
	log := logger.WithComponent("processor")

	done, err := p.history.Processed(hash)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to check processing history")
		return false, ""
	}
	if done != nil {
		return true, "File already processed"
	}

	failed, err := p.history.Failed(hash)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to check failure history")
		return false, ""
	}
	if failed != nil && !p.cfg.RetryFailed {
		return true, fmt.Sprintf("File failed %d time(s) before", failed.Attempts)
	}
	return false, ""
}

// CanProcess reports whether path matches the patterns, is not being
// written to and carries no processing marker.
func (p *mixProcessor) CanProcess(path string) bool {
	if _, err := os.Stat(path); err != nil {
		return false
	}
	if !p.matches(path) {
		return false
	}
	if _, err := os.Stat(path + markerSuffix); err == nil {
		return false
	}
	return p.isStable(path)
}

func (p *mixProcessor) matches(path string) bool {
	name := filepath.Base(path)
	if strings.HasSuffix(name, markerSuffix) || strings.HasSuffix(name, reportSuffix) {
		return false
	}
	for _, pattern := range p.cfg.Patterns {
		if ok, _ := filepath.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

// isStable compares size and mtime across StabilityWait
func (p *mixProcessor) isStable(path string) bool {
	before, err := os.Stat(path)
	if err != nil {
		return false
	}
	if p.cfg.StabilityWait > 0 {
		time.Sleep(p.cfg.StabilityWait)
	}
	after, err := os.Stat(path)
	if err != nil {
		return false
	}
	return before.Size() == after.Size() && before.ModTime().Equal(after.ModTime())
}

// reportPath places "<name>.mixident.json" in OutputDir or next to the input
func (p *mixProcessor) reportPath(path string) string {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)) + reportSuffix
	if p.cfg.OutputDir != "" {
		return filepath.Join(p.cfg.OutputDir, name)
	}
	return filepath.Join(filepath.Dir(path), name)
}

func (p *mixProcessor) report(kind EventType, path, message string, err error) {
	p.emitEvent(&Event{Type: kind, Path: path, Message: message, Err: err, At: time.Now()})
}

func (p *mixProcessor) emitEvent(event *Event) {
	if p.emit != nil {
		p.emit(event)
	}
}
