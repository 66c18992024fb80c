package identify

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/eternnoir/mixident/pkg/audio"
	"github.com/eternnoir/mixident/pkg/backends"
	"github.com/eternnoir/mixident/pkg/enrich"
)

func testSample(path string) *audio.Sample {
	return &audio.Sample{Segment: audio.Segment{SourcePath: path, Duration: 5 * time.Minute}}
}

func TestCommercialPrimary(t *testing.T) {
	t.Run("match is cross-checked", func(t *testing.T) {
		a := acrBackend(acr("Daft Punk", "One More Time"), nil)
		secondary := acoustid("Daft Punk", "One More Time")
		secondary.RecordingID = "rec-1"
		o := acoustidBackend(secondary, nil)
		s := shazamBackend(guess(backends.NameShazam, backends.SourceConsumer, "x", "y", 0.85), nil)

		id := NewRouter(ModeACRCloud, WithACRCloud(a), WithAcoustID(o), WithShazam(s)).Identify(context.Background(), testSample("mix.mp3"))
		if id.Primary == nil || id.Secondary == nil || id.RecordingID != "rec-1" {
			t.Fatalf("identification = %+v", id)
		}
		if s.calls.Load() != 0 {
			t.Error("Shazam called although ACRCloud matched")
		}
		if len(id.Guesses) != 2 || id.Winner != backends.NameACRCloud {
			t.Errorf("guesses = %d, winner = %q", len(id.Guesses), id.Winner)
		}
	})

	t.Run("no match falls back to shazam then acoustid", func(t *testing.T) {
		a := acrBackend(nil, nil)
		s := shazamBackend(nil, nil)
		o := acoustidBackend(acoustid("Artist", "Title"), nil)

		id := NewRouter(ModeACRCloud, WithACRCloud(a), WithAcoustID(o), WithShazam(s)).Identify(context.Background(), testSample("mix.mp3"))
		if id.Primary != nil {
			t.Errorf("primary = %+v, want nil", id.Primary)
		}
		if id.Secondary == nil || id.Secondary.Backend != backends.NameAcoustID {
			t.Errorf("secondary = %+v, want AcoustID", id.Secondary)
		}
		if s.calls.Load() != 1 || o.calls.Load() != 1 {
			t.Errorf("calls shazam=%d acoustid=%d", s.calls.Load(), o.calls.Load())
		}
	})

	t.Run("shazam match stops the chain", func(t *testing.T) {
		s := shazamBackend(guess(backends.NameShazam, backends.SourceConsumer, "X", "Y", 0.85), nil)
		o := acoustidBackend(acoustid("Artist", "Title"), nil)

		id := NewRouter(ModeACRCloud, WithACRCloud(acrBackend(nil, errBoom)), WithAcoustID(o), WithShazam(s)).Identify(context.Background(), testSample("mix.mp3"))
		if id.Secondary == nil || id.Secondary.Backend != backends.NameShazam {
			t.Errorf("secondary = %+v, want Shazam", id.Secondary)
		}
		if o.calls.Load() != 0 {
			t.Error("AcoustID called after Shazam matched")
		}
	})
}

func TestCommercialAuthErrorSwitchesMode(t *testing.T) {
	a := acrBackend(nil, fmt.Errorf("acrcloud: %w", backends.ErrAuth))
	o := acoustidBackend(acoustid("Artist", "Title"), nil)
	notices := backends.NewNotices()
	router := NewRouter(ModeACRCloud, WithACRCloud(a), WithAcoustID(o), WithRouterNotices(notices))

	id := router.Identify(context.Background(), testSample("mix.mp3"))
	if id.Secondary == nil {
		t.Error("fallback chain did not run after auth failure")
	}
	if router.Mode() != ModeMusicBrainzOnly {
		t.Fatalf("Mode() = %s, want musicbrainz_only", router.Mode())
	}
	if notices.Once("router.commercial_auth") {
		t.Error("mode switch was not logged")
	}

	router.Identify(context.Background(), testSample("mix.mp3"))
	if a.calls.Load() != 1 {
		t.Errorf("ACRCloud called %d times, want 1", a.calls.Load())
	}
}

func TestOpenDBAuthErrorDisablesAdapter(t *testing.T) {
	o := acoustidBackend(nil, backends.ErrAuth)
	router := NewRouter(ModeMusicBrainzOnly, WithAcoustID(o), WithSearcher(&fakeSearcher{}))

	router.Identify(context.Background(), testSample("mix.mp3"))
	router.Identify(context.Background(), testSample("mix.mp3"))

	if o.calls.Load() != 1 {
		t.Errorf("AcoustID called %d times, want 1", o.calls.Load())
	}
	if router.Mode() != ModeMusicBrainzOnly {
		t.Errorf("Mode() = %s", router.Mode())
	}
}

func TestRateLimitedIsNoMatch(t *testing.T) {
	o := acoustidBackend(nil, backends.ErrRateLimited)
	router := NewRouter(ModeACRCloud, WithACRCloud(acrBackend(nil, backends.ErrRateLimited)), WithAcoustID(o))

	id := router.Identify(context.Background(), testSample("mix.mp3"))
	if id.Primary != nil || id.Secondary != nil {
		t.Errorf("identification = %+v", id)
	}
	router.Identify(context.Background(), testSample("mix.mp3"))
	if router.Mode() != ModeACRCloud || o.calls.Load() != 2 {
		t.Errorf("mode = %s, acoustid calls = %d", router.Mode(), o.calls.Load())
	}
}

func TestOpenDatabaseOnly(t *testing.T) {
	candidates := []enrich.Candidate{
		{Artist: "Other", Title: "Strobe (Live)", RecordingID: "r0", Score: 90},
		{Artist: "deadmau5", Title: "Strobe", Album: "For Lack of a Better Name", RecordingID: "r1", Score: 100},
		{Artist: "deadmau5", Title: "Strobe (Edit)", RecordingID: "r2", Score: 100},
	}

	t.Run("shazam first", func(t *testing.T) {
		s := shazamBackend(guess(backends.NameShazam, backends.SourceConsumer, "X", "Y", 0.85), nil)
		o := acoustidBackend(acoustid("A", "B"), nil)
		id := NewRouter(ModeMusicBrainzOnly, WithShazam(s), WithAcoustID(o)).Identify(context.Background(), testSample("mix.mp3"))
		if id.Primary != nil || id.Secondary == nil || id.Secondary.Backend != backends.NameShazam || o.calls.Load() != 0 {
			t.Errorf("identification = %+v", id)
		}
	})

	t.Run("text search after acoustid miss", func(t *testing.T) {
		searcher := &fakeSearcher{candidates: candidates}
		router := NewRouter(ModeMusicBrainzOnly,
			WithAcoustID(acoustidBackend(nil, nil)),
			WithSearcher(searcher),
			WithTagReader(fakeTags{err: errBoom}))

		id := router.Identify(context.Background(), testSample("/music/deadmau5_-_Strobe.mp3"))
		if len(searcher.queries) != 1 || searcher.queries[0] != "deadmau5 Strobe" {
			t.Fatalf("queries = %v", searcher.queries)
		}
		if id.Secondary == nil || id.Secondary.RecordingID != "r1" || id.Secondary.Backend != backends.NameMusicBrainz {
			t.Fatalf("secondary = %+v, want best scored candidate", id.Secondary)
		}
		if id.Secondary.Confidence != 1 || id.RecordingID != "r1" {
			t.Errorf("confidence = %v, recording = %q", id.Secondary.Confidence, id.RecordingID)
		}
		if len(id.TextCandidates) != 3 || id.TextQuery != "deadmau5 Strobe" {
			t.Errorf("snapshot candidates = %d, query = %q", len(id.TextCandidates), id.TextQuery)
		}
	})

	t.Run("embedded tags when the name is generic", func(t *testing.T) {
		searcher := &fakeSearcher{candidates: candidates}
		router := NewRouter(ModeMusicBrainzOnly,
			WithAcoustID(acoustidBackend(nil, nil)),
			WithSearcher(searcher),
			WithTagReader(fakeTags{artist: "deadmau5", title: "Strobe"}))

		router.Identify(context.Background(), testSample("/music/track-01.mp3"))
		if len(searcher.queries) != 1 || searcher.queries[0] != "deadmau5 Strobe" {
			t.Errorf("queries = %v", searcher.queries)
		}
	})

	t.Run("no text search without acoustid attempt", func(t *testing.T) {
		searcher := &fakeSearcher{candidates: candidates}
		router := NewRouter(ModeMusicBrainzOnly, WithShazam(shazamBackend(nil, nil)), WithSearcher(searcher))

		id := router.Identify(context.Background(), testSample("/music/deadmau5 - Strobe.mp3"))
		if len(searcher.queries) != 0 || id.Secondary != nil {
			t.Errorf("queries = %v, secondary = %+v", searcher.queries, id.Secondary)
		}
	})

	t.Run("search failure is no match", func(t *testing.T) {
		router := NewRouter(ModeMusicBrainzOnly,
			WithAcoustID(acoustidBackend(nil, nil)),
			WithSearcher(&fakeSearcher{err: errors.New("503")}))

		id := router.Identify(context.Background(), testSample("/music/deadmau5 - Strobe.mp3"))
		if id.Secondary != nil || id.TextQuery != "deadmau5 Strobe" {
			t.Errorf("identification = %+v", id)
		}
	})
}

func TestDualBestMatch(t *testing.T) {
	t.Run("highest confidence wins, secondary from another backend", func(t *testing.T) {
		a := acrBackend(guess(backends.NameACRCloud, backends.SourceCommercial, "A", "B", 0.92), nil)
		og := guess(backends.NameAcoustID, backends.SourceOpenDB, "A", "B", 0.95)
		og.RecordingID = "rec-9"
		o := acoustidBackend(og, nil)
		s := shazamBackend(guess(backends.NameShazam, backends.SourceConsumer, "A", "B", 0.85), nil)

		id := NewRouter(ModeDualBestMatch, WithACRCloud(a), WithAcoustID(o), WithShazam(s)).Identify(context.Background(), testSample("mix.mp3"))
		if id.Primary.Backend != backends.NameAcoustID || id.Secondary.Backend != backends.NameACRCloud {
			t.Errorf("primary = %s, secondary = %s", id.Primary.Backend, id.Secondary.Backend)
		}
		if id.RecordingID != "rec-9" || len(id.Guesses) != 3 {
			t.Errorf("recording = %q, guesses = %d", id.RecordingID, len(id.Guesses))
		}
	})

	t.Run("ties break by source priority", func(t *testing.T) {
		a := acrBackend(guess(backends.NameACRCloud, backends.SourceCommercial, "A", "B", 0.85), nil)
		og := guess(backends.NameAcoustID, backends.SourceOpenDB, "A", "B", 0.85)
		og.RecordingID = "rec-2"
		o := acoustidBackend(og, nil)
		s := shazamBackend(guess(backends.NameShazam, backends.SourceConsumer, "A", "B", 0.85), nil)

		id := NewRouter(ModeDualBestMatch, WithACRCloud(a), WithAcoustID(o), WithShazam(s)).Identify(context.Background(), testSample("mix.mp3"))
		if id.Primary.Backend != backends.NameShazam || id.Secondary.Backend != backends.NameACRCloud {
			t.Errorf("primary = %s, secondary = %s", id.Primary.Backend, id.Secondary.Backend)
		}
		if id.RecordingID != "rec-2" {
			t.Errorf("recording = %q, want the candidate that supplied one", id.RecordingID)
		}
	})

	t.Run("backends run concurrently", func(t *testing.T) {
		delay := 100 * time.Millisecond
		a := acrBackend(nil, nil)
		o := acoustidBackend(nil, nil)
		s := shazamBackend(nil, nil)
		for _, b := range []*fakeBackend{a, o, s} {
			b.delay = delay
		}

		start := time.Now()
		id := NewRouter(ModeDualBestMatch, WithACRCloud(a), WithAcoustID(o), WithShazam(s)).Identify(context.Background(), testSample("mix.mp3"))
		if elapsed := time.Since(start); elapsed >= 3*delay {
			t.Errorf("elapsed = %s, backends ran sequentially", elapsed)
		}
		if id.Primary != nil || id.Secondary != nil {
			t.Errorf("identification = %+v", id)
		}
	})

	t.Run("one failure does not abort", func(t *testing.T) {
		a := acrBackend(nil, errBoom)
		s := shazamBackend(guess(backends.NameShazam, backends.SourceConsumer, "A", "B", 0.85), nil)

		id := NewRouter(ModeDualBestMatch, WithACRCloud(a), WithShazam(s)).Identify(context.Background(), testSample("mix.mp3"))
		if id.Primary == nil || id.Primary.Backend != backends.NameShazam || id.Secondary != nil {
			t.Errorf("identification = %+v", id)
		}
	})
}

func TestManualModeCallsNothing(t *testing.T) {
	a := acrBackend(acr("A", "B"), nil)
	id := NewRouter(ModeManualSearchOnly, WithACRCloud(a)).Identify(context.Background(), testSample("mix.mp3"))
	if id.Best() != nil || a.calls.Load() != 0 {
		t.Errorf("identification = %+v, calls = %d", id, a.calls.Load())
	}
}

func TestQueryFromFilename(t *testing.T) {
	tests := []struct {
		path   string
		want   string
		wantOK bool
	}{
		{"/m/Daft Punk - One More Time.mp3", "Daft Punk One More Time", true},
		{"/m/daft_punk_-_one_more_time.flac", "daft punk one more time", true},
		{"/m/Bicep-Glue-Original-Mix.wav", "Bicep Glue Original Mix", true},
		{"/m/Daft Punk One More Time.mp3", "", false},
		{"/m/a-b.mp3", "", false},
		{"/m/Track-01-of-the-night.mp3", "", false},
		{"/m/recording - 2024-05-01.wav", "", false},
		{"/m/AUDIO_-_something_long.wav", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, ok := QueryFromFilename(tt.path)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("QueryFromFilename() = %q, %v; want %q, %v", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestBestCandidate(t *testing.T) {
	if got := BestCandidate("x", nil); got != -1 {
		t.Errorf("BestCandidate(nil) = %d", got)
	}

	candidates := []enrich.Candidate{
		{Artist: "Someone", Title: "Else", Score: 100},
		{Artist: "Bicep", Title: "Glue", Score: 100},
		{Artist: "Bicep", Title: "Glue", Score: 99},
	}
	if got := BestCandidate("Bicep Glue", candidates); got != 1 {
		t.Errorf("BestCandidate() = %d, want tie broken by similarity", got)
	}
}

func TestRankGuesses(t *testing.T) {
	guesses := []*backends.Guess{
		guess("o", backends.SourceOpenDB, "a", "b", 0.7),
		guess("c", backends.SourceCommercial, "a", "b", 0.7),
		guess("s", backends.SourceConsumer, "a", "b", 0.6),
		guess("o2", backends.SourceOpenDB, "a", "b", 0.9),
	}
	RankGuesses(guesses)

	want := []string{"o2", "c", "o", "s"}
	for i, g := range guesses {
		if g.Backend != want[i] {
			t.Errorf("rank %d = %s, want %s", i, g.Backend, want[i])
		}
	}
}
