package identify

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/eternnoir/mixident/pkg/audio"
	"github.com/eternnoir/mixident/pkg/bpm"
	"github.com/eternnoir/mixident/pkg/config"
	"github.com/eternnoir/mixident/pkg/enrich"
	"github.com/eternnoir/mixident/pkg/logger"
)

// Options controls the per-segment pipeline
type Options struct {
	Workers         int
	SampleDuration  time.Duration
	MinSegment      time.Duration
	DisableLocalBPM bool
}

// OptionsFromConfig derives pipeline options from configuration
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Workers:         cfg.Identify.Workers,
		SampleDuration:  cfg.Identify.SampleDuration(),
		MinSegment:      cfg.Identify.MinSegment(),
		DisableLocalBPM: cfg.Identify.DisableLocalBPM,
	}
}

// ProgressCallback is called after each segment finishes
type ProgressCallback func(completed, total int, outcome *Outcome)

// Pipeline identifies, enriches and merges segments
type Pipeline struct {
	router    *Router
	extractor audio.Extractor
	enricher  enrich.Enricher
	estimator bpm.Estimator
	merger    *Merger
	opts      Options

	seen atomic.Pointer[trackSet]
}

// trackSet remembers the tracks identified within one run
type trackSet struct {
	mu   sync.Mutex
	keys map[string]bool
}

func newTrackSet() *trackSet {
	return &trackSet{keys: make(map[string]bool)}
}

// add records key and reports whether it was already present
func (s *trackSet) add(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keys[key] {
		return true
	}
	s.keys[key] = true
	return false
}

// NewPipeline creates a pipeline. enricher and estimator may be nil.
func NewPipeline(router *Router, extractor audio.Extractor, enricher enrich.Enricher, estimator bpm.Estimator, opts Options) *Pipeline {
	if opts.SampleDuration <= 0 {
		opts.SampleDuration = time.Duration(config.DefaultSampleSeconds) * time.Second
	}
	if opts.MinSegment <= 0 {
		opts.MinSegment = 10 * time.Second
	}
	p := &Pipeline{
		router:    router,
		extractor: extractor,
		enricher:  enricher,
		estimator: estimator,
		merger:    NewMerger(DefaultWeights()),
		opts:      opts,
	}
	p.seen.Store(newTrackSet())
	return p
}

// Mode returns the router's current mode
func (p *Pipeline) Mode() Mode {
	return p.router.Mode()
}

// Workers returns the pool size for the router's current mode
func (p *Pipeline) Workers() int {
	return Workers(p.router.Mode(), p.opts.Workers)
}

// Run processes all segments and returns their outcomes in segment order
func (p *Pipeline) Run(ctx context.Context, segments []audio.Segment) []*Outcome {
	return p.RunWithProgress(ctx, segments, nil)
}

// RunWithProgress processes segments on a bounded worker pool. Duplicate
// detection is scoped to this call. Segments that had not finished when ctx
// was cancelled are left out of the result.
func (p *Pipeline) RunWithProgress(ctx context.Context, segments []audio.Segment, callback ProgressCallback) []*Outcome {
	log := logger.FromContext(ctx).WithComponent("pipeline")
	startTime := time.Now()
	workers := p.Workers()

	log.Info().
		Int("segments", len(segments)).
		Int("workers", workers).
		Str("mode", p.router.Mode().String()).
		Msg("Starting identification")

	results := make([]*Outcome, len(segments))
	seen := newTrackSet()
	var mu sync.Mutex
	completed := 0

	var g errgroup.Group
	g.SetLimit(workers)
	for i, seg := range segments {
		i, seg := i, seg
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			outcome := p.processSegment(ctx, seg, seen)
			if ctx.Err() != nil {
				return nil
			}

			mu.Lock()
			results[i] = outcome
			completed++
			if callback != nil {
				callback(completed, len(segments), outcome)
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	outcomes := make([]*Outcome, 0, len(segments))
	counts := map[Status]int{}
	for _, o := range results {
		if o != nil {
			outcomes = append(outcomes, o)
			counts[o.Status]++
		}
	}

	log.Info().
		Int("identified", counts[StatusIdentified]).
		Int("unidentified", counts[StatusUnidentified]).
		Int("skipped", counts[StatusSkipped]).
		Int("unfinished", len(segments)-len(outcomes)).
		Dur("elapsed", time.Since(startTime)).
		Msg("Identification finished")

	return outcomes
}

// Process identifies one segment. Duplicates are detected against every
// earlier Process call until Reset.
func (p *Pipeline) Process(ctx context.Context, seg audio.Segment) *Outcome {
	return p.processSegment(ctx, seg, p.seen.Load())
}

func (p *Pipeline) processSegment(ctx context.Context, seg audio.Segment, seen *trackSet) *Outcome {
	ctx = logger.WithSegment(ctx, filepath.Base(seg.SourcePath), seg.Index)
	startTime := time.Now()

	outcome := p.process(ctx, seg, seen)
	outcome.Elapsed = time.Since(startTime)

	log := logger.FromContext(ctx).WithComponent("pipeline")
	event := log.Info().Str("status", string(outcome.Status)).Dur("elapsed", outcome.Elapsed)
	switch outcome.Status {
	case StatusIdentified:
		event = event.
			Str("track", outcome.Record.Key()).
			Str("agreement", string(outcome.Record.Agreement)).
			Float64("confidence", outcome.Record.Confidence)
	case StatusSkipped:
		event = event.Str("reason", outcome.Reason)
	}
	event.Msg("Segment done")

	return outcome
}

func (p *Pipeline) process(ctx context.Context, seg audio.Segment, seen *trackSet) *Outcome {
	log := logger.FromContext(ctx).WithComponent("pipeline")

	if seg.Duration < p.opts.MinSegment {
		return Skipped(seg, ReasonTooShort)
	}

	mode := p.router.Mode()
	if mode == ModeManualSearchOnly {
		return Unidentified(seg, p.localBPM(ctx, seg, nil))
	}

	sample, err := p.extractor.ExportSample(ctx, seg.MiddleWindow(p.opts.SampleDuration), audio.FingerprintSpec)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to export fingerprint sample")
		return Skipped(seg, ReasonNoAudio)
	}
	id := p.router.Identify(ctx, sample)
	_ = sample.Close()

	bundle := &enrich.Bundle{}
	if best := id.Best(); best != nil && p.enricher != nil {
		bundle = p.enricher.Enrich(ctx, enrich.Query{
			Artist:      best.Artist,
			Title:       best.Title,
			RecordingID: id.RecordingID,
		})
		if bundle == nil {
			bundle = &enrich.Bundle{}
		}
	}
	bundle.LocalBPM = p.localBPM(ctx, seg, bundle)

	record := p.merger.Merge(id.Primary, id.Secondary, bundle)
	snapshot := Snapshot{Identification: id, Enrichment: bundle}

	if !record.Identified() {
		outcome := Unidentified(seg, bundle.LocalBPM)
		outcome.Snapshot = snapshot
		return outcome
	}

	if seen.add(record.Key()) {
		log.Info().Str("track", record.Key()).Msg("Track already identified in this run")
		outcome := Skipped(seg, ReasonDuplicate)
		outcome.Record = record
		outcome.Snapshot = snapshot
		return outcome
	}

	outcome := Identified(seg, record)
	outcome.Snapshot = snapshot
	return outcome
}

// localBPM runs the estimator unless a catalog already supplied a tempo
func (p *Pipeline) localBPM(ctx context.Context, seg audio.Segment, bundle *enrich.Bundle) *bpm.Estimate {
	if p.opts.DisableLocalBPM || p.estimator == nil || bundle.HasBPM() {
		return nil
	}
	return p.estimator.Estimate(ctx, seg)
}

// Reset forgets the tracks seen by Process. Calls already in flight keep
// the set they started with.
func (p *Pipeline) Reset() {
	p.seen.Store(newTrackSet())
}

// String describes the pipeline configuration
func (p *Pipeline) String() string {
	return fmt.Sprintf("mode=%s workers=%d sample=%s", p.router.Mode(), p.Workers(), p.opts.SampleDuration)
}
