package bpm

import (
	"context"
	"time"

	"github.com/eternnoir/mixident/pkg/audio"
	"github.com/eternnoir/mixident/pkg/logger"
)

const (
	// AnalysisWindow is the longest stretch of a segment that is analysed
	AnalysisWindow = 60 * time.Second

	// MinConfidence is the lowest confidence an estimate is reported with
	MinConfidence = 0.6
)

// Estimate is a locally detected tempo
type Estimate struct {
	BPM        int     `json:"bpm"`
	Confidence float64 `json:"confidence"`
}

// Estimator detects the tempo of a segment
type Estimator interface {
	// Estimate returns nil when no reliable tempo can be found
	Estimate(ctx context.Context, seg audio.Segment) *Estimate
}

// LocalEstimator analyses a mono excerpt from the middle of the segment
type LocalEstimator struct {
	extractor audio.Extractor
}

var _ Estimator = (*LocalEstimator)(nil)

// NewEstimator creates an estimator reading audio through extractor
func NewEstimator(extractor audio.Extractor) *LocalEstimator {
	return &LocalEstimator{
		extractor: extractor,
	}
}

// Estimate never fails; any problem is logged and yields nil
func (e *LocalEstimator) Estimate(ctx context.Context, seg audio.Segment) *Estimate {
	log := logger.FromContext(ctx).WithComponent("bpm")

	sample, err := e.extractor.ExportSample(ctx, seg.MiddleWindow(AnalysisWindow), audio.AnalysisSpec)
	if err != nil {
		log.Debug().Err(err).Msg("BPM excerpt extraction failed")
		return nil
	}
	defer func() {
		_ = sample.Close()
	}()

	samples, sampleRate, err := ReadWAV(sample.Path)
	if err != nil {
		log.Debug().Err(err).Msg("BPM excerpt unreadable")
		return nil
	}

	startTime := time.Now()
	est := EstimateSamples(samples, sampleRate)
	if est == nil {
		log.Debug().Dur("elapsed", time.Since(startTime)).Msg("No reliable tempo found")
		return nil
	}

	log.Debug().
		Int("bpm", est.BPM).
		Float64("confidence", est.Confidence).
		Dur("elapsed", time.Since(startTime)).
		Msg("Tempo estimated")

	return est
}
