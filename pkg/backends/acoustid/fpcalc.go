package acoustid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Fingerprint is a chromaprint fingerprint and the audio length it covers
type Fingerprint struct {
	Duration    float64 `json:"duration"`
	Fingerprint string  `json:"fingerprint"`
}

// Fingerprinter computes chromaprint fingerprints for WAV files
type Fingerprinter interface {
	Fingerprint(ctx context.Context, path string) (*Fingerprint, error)
}

// Fpcalc runs the chromaprint command line tool
type Fpcalc struct {
	Path    string
	Timeout time.Duration
}

// NewFpcalc creates a fingerprinter for the fpcalc binary at path
func NewFpcalc(path string) *Fpcalc {
	if path == "" {
		path = "fpcalc"
	}
	return &Fpcalc{
		Path:    path,
		Timeout: 60 * time.Second,
	}
}

// Available reports whether the fpcalc binary can be found
func (f *Fpcalc) Available() bool {
	_, err := exec.LookPath(f.Path)
	return err == nil
}

// Fingerprint runs `fpcalc -json path`
func (f *Fpcalc) Fingerprint(ctx context.Context, path string) (*Fingerprint, error) {
	ctx, cancel := context.WithTimeout(ctx, f.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, f.Path, "-json", path)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("fpcalc timed out: %w", ctx.Err())
		}
		return nil, fmt.Errorf("fpcalc failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	return parseFpcalc(stdout.Bytes())
}

func parseFpcalc(data []byte) (*Fingerprint, error) {
	var fp Fingerprint
	if err := json.Unmarshal(data, &fp); err != nil {
		return nil, fmt.Errorf("failed to parse fpcalc output: %w", err)
	}
	if fp.Fingerprint == "" || fp.Duration <= 0 {
		return nil, fmt.Errorf("fpcalc returned an empty fingerprint")
	}
	return &fp, nil
}
