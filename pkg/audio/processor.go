package audio

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/eternnoir/mixident/pkg/logger"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// ProbeFunc returns ffprobe JSON for a file
type ProbeFunc func(filePath string) (string, error)

// ProcessorImpl implements the Processor interface
type ProcessorImpl struct {
	probe ProbeFunc
}

// NewProcessor creates a new audio processor backed by ffprobe
func NewProcessor() *ProcessorImpl {
	return &ProcessorImpl{
		probe: func(filePath string) (string, error) {
			return ffmpeg.Probe(filePath)
		},
	}
}

// NewProcessorWithProbe creates a processor with a custom probe, used in tests
func NewProcessorWithProbe(probe ProbeFunc) *ProcessorImpl {
	return &ProcessorImpl{probe: probe}
}

// GetAudioInfo extracts metadata from an audio file
func (p *ProcessorImpl) GetAudioInfo(filePath string) (*AudioInfo, error) {
	log := logger.WithComponent("audio-processor").WithField("file", filepath.Base(filePath))

	if !fileExists(filePath) {
		return nil, fmt.Errorf("file does not exist: %s", filePath)
	}

	log.Debug().Msg("Probing file with ffprobe")
	data, err := p.probe(filePath)
	if err != nil {
		log.Error().Err(err).Msg("Failed to probe file")
		return nil, fmt.Errorf("failed to probe file: %w", err)
	}

	info := &AudioInfo{
		FilePath: filePath,
		Format:   DetectFormat(filePath),
	}
	if err := parseProbeInfo(data, info); err != nil {
		return nil, fmt.Errorf("failed to parse probe info: %w", err)
	}

	log.Debug().
		Dur("duration", info.Duration).
		Str("format", string(info.Format)).
		Int("sample_rate", info.SampleRate).
		Int("channels", info.Channels).
		Msg("Audio information extracted")

	return info, nil
}

// IsSupported checks if the file format is supported
func (p *ProcessorImpl) IsSupported(filePath string) bool {
	return DetectFormat(filePath) != ""
}

// ValidateFile validates the audio file
func (p *ProcessorImpl) ValidateFile(filePath string) error {
	if !fileExists(filePath) {
		return fmt.Errorf("file does not exist: %s", filePath)
	}

	if !p.IsSupported(filePath) {
		return fmt.Errorf("unsupported file format: %s", filepath.Ext(filePath))
	}

	if _, err := p.probe(filePath); err != nil {
		return fmt.Errorf("invalid or corrupted file: %w", err)
	}

	return nil
}

func fileExists(filePath string) bool {
	_, err := os.Stat(filePath)
	return !os.IsNotExist(err)
}

// parseProbeInfo parses ffprobe output and fills AudioInfo
func parseProbeInfo(probeData string, info *AudioInfo) error {
	var probe struct {
		Format struct {
			Duration string `json:"duration"`
			BitRate  string `json:"bit_rate"`
			Size     string `json:"size"`
		} `json:"format"`
		Streams []struct {
			CodecType  string `json:"codec_type"`
			SampleRate string `json:"sample_rate"`
			Channels   int    `json:"channels"`
		} `json:"streams"`
	}

	if err := json.Unmarshal([]byte(probeData), &probe); err != nil {
		return fmt.Errorf("failed to parse probe JSON: %w", err)
	}

	if probe.Format.Duration != "" {
		if secs, err := strconv.ParseFloat(probe.Format.Duration, 64); err == nil {
			info.Duration = time.Duration(secs * float64(time.Second))
		}
	}
	if probe.Format.BitRate != "" {
		if bitRate, err := strconv.ParseInt(probe.Format.BitRate, 10, 64); err == nil {
			info.BitRate = int(bitRate)
		}
	}
	if probe.Format.Size != "" {
		if size, err := strconv.ParseInt(probe.Format.Size, 10, 64); err == nil {
			info.Size = size
		}
	}

	for _, stream := range probe.Streams {
		if stream.CodecType != "audio" {
			continue
		}
		if sampleRate, err := strconv.Atoi(stream.SampleRate); err == nil {
			info.SampleRate = sampleRate
		}
		info.Channels = stream.Channels
		return nil
	}

	return fmt.Errorf("no audio stream found")
}

// DetectFormat detects audio format from file extension
func DetectFormat(filePath string) AudioFormat {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".wav":
		return FormatWAV
	case ".mp3":
		return FormatMP3
	case ".m4a":
		return FormatM4A
	case ".flac":
		return FormatFLAC
	case ".ogg":
		return FormatOGG
	case ".aif", ".aiff":
		return FormatAIFF
	default:
		return ""
	}
}
