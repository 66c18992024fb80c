package identify

import (
	"context"
	"errors"
	"sort"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/eternnoir/mixident/pkg/audio"
	"github.com/eternnoir/mixident/pkg/backends"
	"github.com/eternnoir/mixident/pkg/enrich"
	"github.com/eternnoir/mixident/pkg/logger"
)

// Identification is what the router learned about one sample
type Identification struct {
	Mode      Mode              `json:"mode"`
	Primary   *backends.Guess   `json:"primary,omitempty"`
	Secondary *backends.Guess   `json:"secondary,omitempty"`
	Guesses   []*backends.Guess `json:"guesses,omitempty"`
	Winner    string            `json:"winner,omitempty"`

	TextQuery      string             `json:"text_query,omitempty"`
	TextCandidates []enrich.Candidate `json:"text_candidates,omitempty"`

	// RecordingID feeds the MusicBrainz catalog lookup
	RecordingID string `json:"recording_id,omitempty"`
}

// Best returns the guess used for enrichment queries
func (id *Identification) Best() *backends.Guess {
	if id.Primary.Complete() {
		return id.Primary
	}
	if id.Secondary.Complete() {
		return id.Secondary
	}
	return nil
}

// Router runs the backend strategy of the active mode
type Router struct {
	mode atomic.Value

	acrcloud backends.Backend
	acoustid backends.Backend
	shazam   backends.Backend
	searcher enrich.Searcher
	tags     TagReader
	notices  *backends.Notices

	acoustidDisabled atomic.Bool
}

// RouterOption configures a Router
type RouterOption func(*Router)

// WithACRCloud sets the commercial backend
func WithACRCloud(b backends.Backend) RouterOption {
	return func(r *Router) {
		r.acrcloud = b
	}
}

// WithAcoustID sets the open database backend
func WithAcoustID(b backends.Backend) RouterOption {
	return func(r *Router) {
		r.acoustid = b
	}
}

// WithShazam sets the consumer backend; leave unset to disable it
func WithShazam(b backends.Backend) RouterOption {
	return func(r *Router) {
		r.shazam = b
	}
}

// WithSearcher enables the free-text fallback
func WithSearcher(s enrich.Searcher) RouterOption {
	return func(r *Router) {
		r.searcher = s
	}
}

// WithTagReader overrides how embedded tags are read for the free-text fallback
func WithTagReader(t TagReader) RouterOption {
	return func(r *Router) {
		r.tags = t
	}
}

// WithRouterNotices shares the one-time warning state
func WithRouterNotices(n *backends.Notices) RouterOption {
	return func(r *Router) {
		r.notices = n
	}
}

// NewRouter creates a router starting in mode
func NewRouter(mode Mode, options ...RouterOption) *Router {
	r := &Router{
		tags:    FileTagReader{},
		notices: backends.NewNotices(),
	}
	r.mode.Store(mode)

	for _, opt := range options {
		opt(r)
	}

	return r
}

// Mode returns the active mode
func (r *Router) Mode() Mode {
	return r.mode.Load().(Mode)
}

// Identify runs the active strategy on the sample
func (r *Router) Identify(ctx context.Context, sample *audio.Sample) *Identification {
	mode := r.Mode()
	id := &Identification{Mode: mode}

	switch mode {
	case ModeACRCloud:
		r.commercialPrimary(ctx, sample, id)
	case ModeMusicBrainzOnly:
		r.openDatabaseOnly(ctx, sample, id)
	case ModeDualBestMatch:
		r.dualBestMatch(ctx, sample, id)
	}

	return id
}

func (r *Router) commercialPrimary(ctx context.Context, sample *audio.Sample, id *Identification) {
	id.Primary = r.call(ctx, r.acrcloud, sample, id)
	if id.Primary != nil {
		id.Winner = id.Primary.Backend
		id.Secondary = r.call(ctx, r.acoustid, sample, id)
		if id.Secondary != nil {
			id.RecordingID = id.Secondary.RecordingID
		}
		return
	}

	for _, b := range []backends.Backend{r.shazam, r.acoustid} {
		if guess := r.call(ctx, b, sample, id); guess != nil {
			id.Secondary = guess
			id.Winner = guess.Backend
			id.RecordingID = guess.RecordingID
			return
		}
	}
}

func (r *Router) openDatabaseOnly(ctx context.Context, sample *audio.Sample, id *Identification) {
	if guess := r.call(ctx, r.shazam, sample, id); guess != nil {
		id.Secondary = guess
		id.Winner = guess.Backend
		return
	}

	attempted := r.usable(r.acoustid)
	if guess := r.call(ctx, r.acoustid, sample, id); guess != nil {
		id.Secondary = guess
		id.Winner = guess.Backend
		id.RecordingID = guess.RecordingID
		return
	}
	if !attempted {
		return
	}

	result := r.textSearch(ctx, sample.Segment.SourcePath)
	if result == nil {
		return
	}
	id.TextQuery = result.Query
	id.TextCandidates = result.Candidates
	if result.Guess != nil {
		id.Guesses = append(id.Guesses, result.Guess)
		id.Secondary = result.Guess
		id.Winner = result.Guess.Backend
		id.RecordingID = result.Guess.RecordingID
	}
}

func (r *Router) dualBestMatch(ctx context.Context, sample *audio.Sample, id *Identification) {
	all := []backends.Backend{r.acrcloud, r.acoustid, r.shazam}
	results := make([]*backends.Guess, len(all))

	// Every backend runs to completion; there is no early cancellation
	var g errgroup.Group
	g.SetLimit(len(all))
	for i, b := range all {
		i, b := i, b
		g.Go(func() error {
			results[i] = r.call(ctx, b, sample, nil)
			return nil
		})
	}
	_ = g.Wait()

	ranked := make([]*backends.Guess, 0, len(results))
	for _, guess := range results {
		if guess != nil {
			ranked = append(ranked, guess)
		}
	}
	id.Guesses = append(id.Guesses, ranked...)
	RankGuesses(ranked)

	if len(ranked) == 0 {
		return
	}

	id.Primary = ranked[0]
	id.Winner = ranked[0].Backend
	for _, guess := range ranked[1:] {
		if guess.Backend != id.Primary.Backend {
			id.Secondary = guess
			break
		}
	}

	id.RecordingID = id.Primary.RecordingID
	if id.RecordingID == "" {
		for _, guess := range ranked {
			if guess.RecordingID != "" {
				id.RecordingID = guess.RecordingID
				break
			}
		}
	}

	logger.FromContext(ctx).WithComponent("router").Debug().
		Int("candidates", len(ranked)).
		Str("winner", id.Winner).
		Float64("confidence", id.Primary.Confidence).
		Msg("Dual best match ranked")
}

// RankGuesses orders guesses by confidence, then by source priority
func RankGuesses(guesses []*backends.Guess) {
	sort.SliceStable(guesses, func(i, j int) bool {
		a, b := guesses[i], guesses[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		return a.Source.Priority() > b.Source.Priority()
	})
}

func (r *Router) usable(b backends.Backend) bool {
	if b == nil {
		return false
	}
	if b.Source() == backends.SourceOpenDB && r.acoustidDisabled.Load() {
		return false
	}
	return true
}

// call runs one backend. Errors are handled here and reported as no match.
// When id is non-nil the guess is appended to its raw guesses.
func (r *Router) call(ctx context.Context, b backends.Backend, sample *audio.Sample, id *Identification) *backends.Guess {
	if !r.usable(b) {
		return nil
	}

	guess, err := b.Identify(ctx, sample)
	if err != nil {
		r.handleError(ctx, b, err)
		return nil
	}
	if !guess.Complete() {
		return nil
	}
	if id != nil {
		id.Guesses = append(id.Guesses, guess)
	}
	return guess
}

func (r *Router) handleError(ctx context.Context, b backends.Backend, err error) {
	log := logger.FromContext(ctx).WithComponent("router").WithField("backend", b.Name())

	switch {
	case errors.Is(err, backends.ErrAuth):
		if b.Source() == backends.SourceCommercial {
			previous := r.mode.Swap(ModeMusicBrainzOnly).(Mode)
			if previous != ModeMusicBrainzOnly && r.notices.Once("router.commercial_auth") {
				log.Warn().Err(err).
					Str("from", previous.String()).
					Str("to", ModeMusicBrainzOnly.String()).
					Msg("Commercial backend rejected credentials, switching mode for the rest of the run")
			}
			return
		}
		r.acoustidDisabled.Store(true)
		if r.notices.Once("router.open_db_auth") {
			log.Warn().Err(err).Msg("Open database backend rejected credentials, disabled for the rest of the run")
		}

	case errors.Is(err, backends.ErrRateLimited):
		log.Warn().Err(err).Msg("Backend rate limited, treating as no match")

	default:
		log.Warn().Err(err).Msg("Backend failed, treating as no match")
	}
}

func (r *Router) textSearch(ctx context.Context, path string) *textSearchResult {
	if r.searcher == nil {
		return nil
	}
	log := logger.FromContext(ctx).WithComponent("router")

	query, ok := QueryFromFilename(path)
	if !ok && r.tags != nil && path != "" {
		if artist, title, err := r.tags.ReadTags(path); err == nil && artist != "" && title != "" {
			query, ok = artist+" "+title, true
		}
	}
	if !ok {
		log.Debug().Str("path", path).Msg("No usable text search query")
		return nil
	}

	candidates, err := r.searcher.SearchRecordings(ctx, query, textSearchLimit)
	if err != nil {
		log.Warn().Err(err).Str("query", query).Msg("Text search failed")
		return &textSearchResult{Query: query}
	}

	result := &textSearchResult{Query: query, Candidates: candidates}
	if best := BestCandidate(query, candidates); best >= 0 {
		result.Guess = candidateGuess(candidates[best])
	}

	log.Debug().
		Str("query", query).
		Int("candidates", len(candidates)).
		Msg("Text search complete")
	return result
}
