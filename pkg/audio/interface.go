package audio

import (
	"context"
	"time"
)

// AudioFormat represents supported audio formats
type AudioFormat string

const (
	FormatWAV  AudioFormat = "wav"
	FormatMP3  AudioFormat = "mp3"
	FormatM4A  AudioFormat = "m4a"
	FormatFLAC AudioFormat = "flac"
	FormatOGG  AudioFormat = "ogg"
	FormatAIFF AudioFormat = "aiff"
)

// AudioInfo contains metadata about an audio file
type AudioInfo struct {
	FilePath   string
	Format     AudioFormat
	Duration   time.Duration
	SampleRate int
	Channels   int
	BitRate    int
	Size       int64
}

// Segment is one candidate track inside a source file. Segments are
// read-only; slicing returns a new value.
type Segment struct {
	SourcePath string        `json:"source_path"`
	Index      int           `json:"index"`
	Start      time.Duration `json:"start"`
	Duration   time.Duration `json:"duration"`
}

// End returns the segment end offset inside the source file
func (s Segment) End() time.Duration {
	return s.Start + s.Duration
}

// SampleSpec describes the PCM layout of an exported sample
type SampleSpec struct {
	SampleRate int
	Channels   int
	// Prefix is used for the temporary file name
	Prefix string
}

var (
	// FingerprintSpec is what the recognition backends receive
	FingerprintSpec = SampleSpec{SampleRate: 44100, Channels: 2, Prefix: "id"}

	// AnalysisSpec is used for local tempo estimation
	AnalysisSpec = SampleSpec{SampleRate: 22050, Channels: 1, Prefix: "bpm"}
)

// Processor inspects source files
type Processor interface {
	// GetAudioInfo extracts metadata from an audio file
	GetAudioInfo(filePath string) (*AudioInfo, error)

	// IsSupported checks if the file format is supported
	IsSupported(filePath string) bool

	// ValidateFile validates the audio file
	ValidateFile(filePath string) error
}

// Extractor writes short-lived WAV samples of a segment
type Extractor interface {
	// ExportSample renders the segment as a temporary WAV file. The caller
	// must Close the returned sample.
	ExportSample(ctx context.Context, seg Segment, layout SampleSpec) (*Sample, error)
}

// Splitter turns a source file into segments
type Splitter interface {
	Split(filePath string, every time.Duration) ([]Segment, error)
}
