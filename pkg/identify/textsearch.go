package identify

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
	"github.com/dhowden/tag"

	"github.com/eternnoir/mixident/pkg/backends"
	"github.com/eternnoir/mixident/pkg/enrich"
)

const (
	textSearchLimit    = 3
	minTextQueryLength = 10
)

var (
	filenameSeparators = []string{" - ", "_-_", "-"}
	genericPrefixes    = []string{"file", "track", "audio", "recording"}
	separatorRun       = regexp.MustCompile(`[_-]+`)
)

// TagReader reads embedded artist and title tags from an audio file
type TagReader interface {
	ReadTags(path string) (artist, title string, err error)
}

// FileTagReader reads ID3, MP4, FLAC and OGG tags
type FileTagReader struct{}

// ReadTags returns the embedded artist and title
func (FileTagReader) ReadTags(path string) (string, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", "", fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return "", "", fmt.Errorf("failed to read tags: %w", err)
	}
	return strings.TrimSpace(m.Artist()), strings.TrimSpace(m.Title()), nil
}

// QueryFromFilename builds a free-text search query from a file name like
// "Artist - Title.mp3". It reports false for names that do not look like
// "artist separator title" or are too generic to search for.
func QueryFromFilename(path string) (string, bool) {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	hasSeparator := false
	for _, sep := range filenameSeparators {
		if strings.Contains(stem, sep) {
			hasSeparator = true
			break
		}
	}
	if !hasSeparator {
		return "", false
	}

	query := strings.Join(strings.Fields(separatorRun.ReplaceAllString(stem, " ")), " ")
	if len(query) <= minTextQueryLength {
		return "", false
	}

	lower := strings.ToLower(query)
	for _, prefix := range genericPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return "", false
		}
	}
	return query, true
}

// BestCandidate picks the highest scoring candidate, breaking ties by
// similarity to the query. Returns -1 for an empty list.
func BestCandidate(query string, candidates []enrich.Candidate) int {
	best := -1
	bestSimilarity := -1.0
	jw := metrics.NewJaroWinkler()
	q := strings.ToLower(query)

	for i, c := range candidates {
		similarity := strutil.Similarity(q, strings.ToLower(c.Artist+" "+c.Title), jw)
		if best < 0 ||
			c.Score > candidates[best].Score ||
			(c.Score == candidates[best].Score && similarity > bestSimilarity) {
			best, bestSimilarity = i, similarity
		}
	}
	return best
}

// textSearchResult is what the free-text fallback found
type textSearchResult struct {
	Query      string
	Candidates []enrich.Candidate
	Guess      *backends.Guess
}

func candidateGuess(c enrich.Candidate) *backends.Guess {
	return &backends.Guess{
		Artist:        c.Artist,
		Title:         c.Title,
		Album:         c.Album,
		Confidence:    float64(c.Score) / 100,
		HasConfidence: true,
		Source:        backends.SourceOpenDB,
		Backend:       backends.NameMusicBrainz,
		RecordingID:   c.RecordingID,
	}
}
