package audio

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/eternnoir/mixident/pkg/logger"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// FFmpegExtractor implements Extractor by shelling out to ffmpeg
type FFmpegExtractor struct {
	tempDir string
}

// NewExtractor creates an extractor writing into tempDir
func NewExtractor(tempDir string) *FFmpegExtractor {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &FFmpegExtractor{
		tempDir: tempDir,
	}
}

// ExportSample renders seg to a PCM WAV file laid out as layout
func (e *FFmpegExtractor) ExportSample(ctx context.Context, seg Segment, layout SampleSpec) (*Sample, error) {
	log := logger.FromContext(ctx).WithComponent("extractor").WithField("file", filepath.Base(seg.SourcePath))

	if seg.Duration <= 0 {
		return nil, fmt.Errorf("segment %d has no duration", seg.Index)
	}
	if err := os.MkdirAll(e.tempDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}

	f, err := os.CreateTemp(e.tempDir, fmt.Sprintf("mixident_%s_%03d_*.wav", layout.Prefix, seg.Index))
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	outputPath := f.Name()
	_ = f.Close()

	sample := &Sample{
		Path:       outputPath,
		Segment:    seg,
		SampleRate: layout.SampleRate,
		Channels:   layout.Channels,
	}

	stream := ffmpeg.Input(seg.SourcePath, ffmpeg.KwArgs{
		"ss": formatDuration(seg.Start),
		"t":  formatDuration(seg.Duration),
	}).Output(outputPath, ffmpeg.KwArgs{
		"acodec": "pcm_s16le",
		"ar":     strconv.Itoa(layout.SampleRate),
		"ac":     strconv.Itoa(layout.Channels),
	}).OverWriteOutput()

	compiled := stream.Compile()
	cmd := exec.CommandContext(ctx, compiled.Path, compiled.Args[1:]...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	log.Debug().
		Dur("start", seg.Start).
		Dur("duration", seg.Duration).
		Int("sample_rate", layout.SampleRate).
		Msg("Exporting sample")

	if err := cmd.Run(); err != nil {
		_ = sample.Close()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("ffmpeg sample extraction failed: %w: %s", err, lastLine(stderr.String()))
	}

	if stat, err := os.Stat(outputPath); err != nil || stat.Size() == 0 {
		_ = sample.Close()
		return nil, fmt.Errorf("ffmpeg produced no output for segment %d", seg.Index)
	}

	return sample, nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
