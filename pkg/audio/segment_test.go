package audio

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCalculateSegments(t *testing.T) {
	tests := []struct {
		name         string
		duration     time.Duration
		every        time.Duration
		wantSegments int
		wantLast     time.Duration
	}{
		{"zero duration", 0, time.Minute, 0, 0},
		{"no split", 10 * time.Minute, 0, 1, 10 * time.Minute},
		{"shorter than interval", 3 * time.Minute, 5 * time.Minute, 1, 3 * time.Minute},
		{"exact multiple", 10 * time.Minute, 5 * time.Minute, 2, 5 * time.Minute},
		{"short remainder", 10*time.Minute + 4*time.Second, 5 * time.Minute, 3, 4 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			segments := CalculateSegments("mix.mp3", tt.duration, tt.every)
			if len(segments) != tt.wantSegments {
				t.Fatalf("CalculateSegments() = %d segments, want %d", len(segments), tt.wantSegments)
			}
			if len(segments) == 0 {
				return
			}

			var total time.Duration
			for i, seg := range segments {
				if seg.Index != i {
					t.Errorf("segment %d has index %d", i, seg.Index)
				}
				if seg.Start != total {
					t.Errorf("segment %d starts at %v, want %v", i, seg.Start, total)
				}
				total += seg.Duration
			}
			if total != tt.duration {
				t.Errorf("segments cover %v, want %v", total, tt.duration)
			}
			if last := segments[len(segments)-1].Duration; last != tt.wantLast {
				t.Errorf("last segment = %v, want %v", last, tt.wantLast)
			}
		})
	}
}

func TestSplitterUsesProbe(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mix.mp3")
	if err := os.WriteFile(path, []byte("fake"), 0o644); err != nil {
		t.Fatal(err)
	}

	splitter := NewSplitter(NewProcessorWithProbe(func(string) (string, error) { return probeJSON, nil }))
	segments, err := splitter.Split(path, time.Minute)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if len(segments) != 5 {
		t.Errorf("Split() = %d segments, want 5", len(segments))
	}

	failing := NewSplitter(NewProcessorWithProbe(func(string) (string, error) { return "", errors.New("boom") }))
	if _, err := failing.Split(path, time.Minute); err == nil {
		t.Error("expected probe error to propagate")
	}
}

func TestMiddleWindow(t *testing.T) {
	seg := Segment{SourcePath: "a.wav", Index: 3, Start: 60 * time.Second, Duration: 100 * time.Second}

	tests := []struct {
		name      string
		window    time.Duration
		wantStart time.Duration
		wantDur   time.Duration
	}{
		{"centred", 20 * time.Second, 100 * time.Second, 20 * time.Second},
		{"window longer than segment", 200 * time.Second, 60 * time.Second, 100 * time.Second},
		{"zero window", 0, 60 * time.Second, 100 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := seg.MiddleWindow(tt.window)
			if got.Start != tt.wantStart || got.Duration != tt.wantDur {
				t.Errorf("MiddleWindow(%v) = %v +%v, want %v +%v", tt.window, got.Start, got.Duration, tt.wantStart, tt.wantDur)
			}
			if got.Index != seg.Index || got.SourcePath != seg.SourcePath {
				t.Error("MiddleWindow() lost segment identity")
			}
		})
	}
}

func TestWindowClipsToSegment(t *testing.T) {
	seg := Segment{Start: 10 * time.Second, Duration: 30 * time.Second}

	got := seg.Window(20*time.Second, 20*time.Second)
	if got.Start != 30*time.Second || got.Duration != 10*time.Second {
		t.Errorf("Window() = %v +%v, want 30s +10s", got.Start, got.Duration)
	}
	if got.End() != seg.End() {
		t.Errorf("End() = %v, want %v", got.End(), seg.End())
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		duration time.Duration
		want     string
	}{
		{0, "00:00:00.000"},
		{90 * time.Second, "00:01:30.000"},
		{time.Hour + 2*time.Minute + 3*time.Second + 450*time.Millisecond, "01:02:03.450"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := formatDuration(tt.duration); got != tt.want {
				t.Errorf("formatDuration(%v) = %v, want %v", tt.duration, got, tt.want)
			}
		})
	}
}

func TestSampleClose(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "s.wav")
	if err := os.WriteFile(path, []byte("RIFF"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := &Sample{Path: path}
	data, err := s.Bytes()
	if err != nil || string(data) != "RIFF" {
		t.Fatalf("Bytes() = %q, %v", data, err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("sample file still exists after Close")
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	var nilSample *Sample
	if err := nilSample.Close(); err != nil {
		t.Errorf("nil Close() error = %v", err)
	}
}
