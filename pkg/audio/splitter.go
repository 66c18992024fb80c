package audio

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/eternnoir/mixident/pkg/logger"
)

// SplitterImpl cuts a source file into fixed-length segments
type SplitterImpl struct {
	processor Processor
}

// NewSplitter creates a splitter that probes files with processor
func NewSplitter(processor Processor) *SplitterImpl {
	return &SplitterImpl{
		processor: processor,
	}
}

// Split probes filePath and returns back-to-back segments of length every.
// A non-positive every yields one segment covering the whole file.
func (s *SplitterImpl) Split(filePath string, every time.Duration) ([]Segment, error) {
	info, err := s.processor.GetAudioInfo(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to get audio info: %w", err)
	}

	segments := CalculateSegments(filePath, info.Duration, every)

	logger.WithComponent("splitter").
		WithField("file", filepath.Base(filePath)).
		Debug().
		Dur("duration", info.Duration).
		Dur("every", every).
		Int("segments", len(segments)).
		Msg("Calculated segments")

	return segments, nil
}

// CalculateSegments determines segment boundaries without overlap. The last
// segment keeps whatever remains, however short.
func CalculateSegments(filePath string, duration, every time.Duration) []Segment {
	if duration <= 0 {
		return nil
	}
	if every <= 0 || duration <= every {
		return []Segment{{SourcePath: filePath, Index: 0, Start: 0, Duration: duration}}
	}

	var segments []Segment
	index := 0
	for start := time.Duration(0); start < duration; start += every {
		end := start + every
		if end > duration {
			end = duration
		}
		segments = append(segments, Segment{
			SourcePath: filePath,
			Index:      index,
			Start:      start,
			Duration:   end - start,
		})
		index++
	}

	return segments
}
