package identify

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eternnoir/mixident/pkg/audio"
	"github.com/eternnoir/mixident/pkg/backends"
	"github.com/eternnoir/mixident/pkg/bpm"
	"github.com/eternnoir/mixident/pkg/enrich"
)

type fakeBackend struct {
	name   string
	source backends.Source
	guess  *backends.Guess
	err    error
	delay  time.Duration
	calls  atomic.Int32
}

func (f *fakeBackend) Name() string            { return f.name }
func (f *fakeBackend) Source() backends.Source { return f.source }

func (f *fakeBackend) Identify(ctx context.Context, sample *audio.Sample) (*backends.Guess, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.guess, f.err
}

func guess(backend string, source backends.Source, artist, title string, confidence float64) *backends.Guess {
	return &backends.Guess{
		Artist:        artist,
		Title:         title,
		Confidence:    confidence,
		HasConfidence: true,
		Source:        source,
		Backend:       backend,
	}
}

func acrBackend(g *backends.Guess, err error) *fakeBackend {
	return &fakeBackend{name: backends.NameACRCloud, source: backends.SourceCommercial, guess: g, err: err}
}

func acoustidBackend(g *backends.Guess, err error) *fakeBackend {
	return &fakeBackend{name: backends.NameAcoustID, source: backends.SourceOpenDB, guess: g, err: err}
}

func shazamBackend(g *backends.Guess, err error) *fakeBackend {
	return &fakeBackend{name: backends.NameShazam, source: backends.SourceConsumer, guess: g, err: err}
}

var errBoom = errors.New("boom")

type fakeSearcher struct {
	candidates []enrich.Candidate
	err        error
	queries    []string
}

func (f *fakeSearcher) SearchRecordings(ctx context.Context, query string, limit int) ([]enrich.Candidate, error) {
	f.queries = append(f.queries, query)
	return f.candidates, f.err
}

type fakeTags struct {
	artist, title string
	err           error
}

func (f fakeTags) ReadTags(path string) (string, string, error) {
	return f.artist, f.title, f.err
}

type fakeExtractor struct {
	mu       sync.Mutex
	err      error
	exported []audio.Segment
}

func (f *fakeExtractor) ExportSample(ctx context.Context, seg audio.Segment, layout audio.SampleSpec) (*audio.Sample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.exported = append(f.exported, seg)
	return &audio.Sample{Segment: seg, SampleRate: layout.SampleRate, Channels: layout.Channels}, nil
}

type fakeEnricher struct {
	bundle  *enrich.Bundle
	mu      sync.Mutex
	queries []enrich.Query
}

func (f *fakeEnricher) Enrich(ctx context.Context, q enrich.Query) *enrich.Bundle {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()
	if f.bundle == nil {
		return &enrich.Bundle{}
	}
	copied := *f.bundle
	return &copied
}

type fakeEstimator struct {
	estimate *bpm.Estimate
	calls    atomic.Int32
}

func (f *fakeEstimator) Estimate(ctx context.Context, seg audio.Segment) *bpm.Estimate {
	f.calls.Add(1)
	return f.estimate
}
