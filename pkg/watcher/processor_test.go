package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/eternnoir/mixident/pkg/identify"
	"github.com/eternnoir/mixident/pkg/session"
)

type fakeRunner struct {
	mu       sync.Mutex
	err      error
	requests []*session.Request
}

func (f *fakeRunner) Run(ctx context.Context, req *session.Request) (*session.Result, error) {
	return f.RunWithProgress(ctx, req, nil)
}

func (f *fakeRunner) RunWithProgress(ctx context.Context, req *session.Request, callback identify.ProgressCallback) (*session.Result, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &session.Result{RunID: "run-1", Counts: session.Counts{Identified: 3, Unidentified: 1}}, nil
}

func (f *fakeRunner) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type eventLog struct {
	mu     sync.Mutex
	events []*Event
}

func (l *eventLog) record(e *Event) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

func (l *eventLog) last() *Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.events) == 0 {
		return nil
	}
	return l.events[len(l.events)-1]
}

func testConfig(dir string) *Config {
	cfg := &Config{
		WatchDir:  dir,
		Patterns:  []string{"*.mp3", "*.flac"},
		HistoryDB: filepath.Join(dir, ".history.db"),
	}
	cfg.applyDefaults()
	return cfg
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestCanProcess(t *testing.T) {
	dir := t.TempDir()
	p := NewFileProcessor(testConfig(dir), &fakeRunner{}, NewTracker(), nil, nil)

	writeFile(t, filepath.Join(dir, "set.mp3"), "mix")
	writeFile(t, filepath.Join(dir, "notes.txt"), "text")
	writeFile(t, filepath.Join(dir, "busy.flac"), "mix")
	writeFile(t, filepath.Join(dir, "busy.flac"+markerSuffix), "now")

	tests := []struct {
		name string
		want bool
	}{
		{"set.mp3", true},
		{"notes.txt", false},
		{"busy.flac", false},
		{"missing.mp3", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.CanProcess(filepath.Join(dir, tt.name)); got != tt.want {
				t.Errorf("CanProcess(%s) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestReportPath(t *testing.T) {
	tests := []struct {
		name      string
		outputDir string
		input     string
		want      string
	}{
		{"next to input", "", "/w/Friday Set.mp3", "/w/Friday Set.mixident.json"},
		{"output dir", "/reports", "/w/sub/set.flac", "/reports/set.mixident.json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &mixProcessor{cfg: &Config{OutputDir: tt.outputDir}}
			if got := p.reportPath(tt.input); got != tt.want {
				t.Errorf("reportPath() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestProcessFileRecordsAndSkipsRepeats(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	cfg.SegmentEvery = 5 * time.Minute
	history := openTestHistory(t)
	runner := &fakeRunner{}
	events := &eventLog{}
	p := NewFileProcessor(cfg, runner, NewTracker(), history, events.record)

	path := filepath.Join(dir, "set.mp3")
	writeFile(t, path, "mix")
	ctx := context.Background()

	if err := p.ProcessFile(ctx, path); err != nil {
		t.Fatalf("ProcessFile() error = %v", err)
	}
	if runner.calls() != 1 {
		t.Fatalf("runner calls = %d", runner.calls())
	}
	req := runner.requests[0]
	if len(req.Paths) != 1 || req.Paths[0] != path || req.Options.SegmentEvery != cfg.SegmentEvery {
		t.Errorf("request = %+v", req)
	}
	if e := events.last(); e.Type != EventCompleted || e.Result == nil {
		t.Errorf("last event = %+v", e)
	}
	if _, err := os.Stat(path + markerSuffix); !os.IsNotExist(err) {
		t.Error("processing marker left behind")
	}

	hash, _ := FileHash(path)
	rec, err := history.Processed(hash)
	if err != nil || rec == nil || rec.RunID != "run-1" || rec.Identified != 3 || rec.ReportPath != filepath.Join(dir, "set.mixident.json") {
		t.Errorf("history record = %+v, %v", rec, err)
	}

	// A copy under another name has the same hash
	copyPath := filepath.Join(dir, "copy.mp3")
	writeFile(t, copyPath, "mix")
	if err := p.ProcessFile(ctx, copyPath); err != nil {
		t.Fatalf("ProcessFile(copy) error = %v", err)
	}
	if runner.calls() != 1 {
		t.Errorf("copy was identified again")
	}
	if e := events.last(); e.Type != EventSkipped {
		t.Errorf("last event = %+v", e)
	}
}

func TestProcessFileFailures(t *testing.T) {
	tests := []struct {
		name        string
		retryFailed bool
		wantCalls   int
	}{
		{"failures are not retried", false, 1},
		{"failures are retried", true, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			cfg := testConfig(dir)
			cfg.RetryFailed = tt.retryFailed
			history := openTestHistory(t)
			runner := &fakeRunner{err: errors.New("ffprobe exploded")}
			p := NewFileProcessor(cfg, runner, NewTracker(), history, nil)

			path := filepath.Join(dir, "broken.mp3")
			writeFile(t, path, "not audio")

			if err := p.ProcessFile(context.Background(), path); err == nil {
				t.Fatal("expected error")
			}
			_ = p.ProcessFile(context.Background(), path)

			if runner.calls() != tt.wantCalls {
				t.Errorf("runner calls = %d, want %d", runner.calls(), tt.wantCalls)
			}
			hash, _ := FileHash(path)
			failed, err := history.Failed(hash)
			if err != nil || failed == nil || failed.Attempts != tt.wantCalls {
				t.Errorf("failed record = %+v, %v", failed, err)
			}
		})
	}
}

func TestProcessFileHeldElsewhere(t *testing.T) {
	dir := t.TempDir()
	tracker := NewTracker()
	runner := &fakeRunner{}
	p := NewFileProcessor(testConfig(dir), runner, tracker, openTestHistory(t), nil)

	path := filepath.Join(dir, "set.mp3")
	writeFile(t, path, "mix")
	tracker.Acquire(path)

	if err := p.ProcessFile(context.Background(), path); err != nil {
		t.Fatalf("ProcessFile() error = %v", err)
	}
	if runner.calls() != 0 {
		t.Error("file held by another worker was processed")
	}
}

func TestProcessFileMovesIdentifiedFile(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	cfg.MoveToDir = filepath.Join(dir, "done")
	p := NewFileProcessor(cfg, &fakeRunner{}, NewTracker(), openTestHistory(t), nil)

	path := filepath.Join(dir, "set.mp3")
	writeFile(t, path, "mix")
	writeFile(t, filepath.Join(cfg.MoveToDir, "set.mp3"), "older mix")

	if err := p.ProcessFile(context.Background(), path); err != nil {
		t.Fatalf("ProcessFile() error = %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("file was not moved")
	}
	entries, err := os.ReadDir(cfg.MoveToDir)
	if err != nil || len(entries) != 2 {
		t.Errorf("move-to dir has %d entries, err = %v", len(entries), err)
	}
}
