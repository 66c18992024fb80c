package audio

import (
	"fmt"
	"os"
	"time"
)

// MiddleWindow returns a window of the given length centred on the segment.
// Segments no longer than the window are returned unchanged.
func (s Segment) MiddleWindow(window time.Duration) Segment {
	if window <= 0 || s.Duration <= window {
		return s
	}

	start := s.Duration/2 - window/2
	if start < 0 {
		start = 0
	}
	end := start + window
	if end > s.Duration {
		end = s.Duration
	}
	start = end - window
	if start < 0 {
		start = 0
	}

	return Segment{
		SourcePath: s.SourcePath,
		Index:      s.Index,
		Start:      s.Start + start,
		Duration:   end - start,
	}
}

// Window returns a sub-range of the segment, clipped to its bounds
func (s Segment) Window(offset, length time.Duration) Segment {
	if offset < 0 {
		offset = 0
	}
	if offset > s.Duration {
		offset = s.Duration
	}
	if length < 0 || offset+length > s.Duration {
		length = s.Duration - offset
	}
	return Segment{
		SourcePath: s.SourcePath,
		Index:      s.Index,
		Start:      s.Start + offset,
		Duration:   length,
	}
}

// String renders the segment as "source [hh:mm:ss.mmm +dur]"
func (s Segment) String() string {
	return fmt.Sprintf("%s [%s +%s]", s.SourcePath, formatDuration(s.Start), formatDuration(s.Duration))
}

// Sample is a temporary WAV rendering of a segment
type Sample struct {
	Path       string
	Segment    Segment
	SampleRate int
	Channels   int
}

// Bytes reads the whole sample file
func (s *Sample) Bytes() ([]byte, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sample: %w", err)
	}
	return data, nil
}

// Close removes the temporary file
func (s *Sample) Close() error {
	if s == nil || s.Path == "" {
		return nil
	}
	if err := os.Remove(s.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove sample: %w", err)
	}
	return nil
}

// formatDuration formats a time.Duration for ffmpeg
func formatDuration(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	milliseconds := int(d.Milliseconds()) % 1000

	return fmt.Sprintf("%02d:%02d:%02d.%03d", hours, minutes, seconds, milliseconds)
}
