package bpm

import (
	"fmt"
	"os"

	"github.com/go-audio/wav"
)

// ReadWAV decodes a PCM WAV file into mono samples in [-1, 1]
func ReadWAV(path string) ([]float64, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open wav: %w", err)
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		return nil, 0, fmt.Errorf("invalid wav file: %s", path)
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read pcm data: %w", err)
	}

	channels := int(decoder.NumChans)
	if channels < 1 {
		channels = 1
	}
	bitDepth := int(decoder.BitDepth)
	if bitDepth < 1 {
		bitDepth = 16
	}
	maxVal := float64(int(1) << (uint(bitDepth) - 1))

	frames := len(buf.Data) / channels
	samples := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += float64(buf.Data[i*channels+c])
		}
		samples[i] = sum / float64(channels) / maxVal
	}

	return samples, int(decoder.SampleRate), nil
}
