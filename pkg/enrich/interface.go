package enrich

import (
	"context"

	"github.com/eternnoir/mixident/pkg/bpm"
)

// Query identifies the track to look up
type Query struct {
	Artist      string
	Title       string
	RecordingID string
}

// SourceMetadata is what a consumer catalog knows about a track
type SourceMetadata struct {
	Artist     string   `json:"artist,omitempty"`
	Title      string   `json:"title,omitempty"`
	Album      string   `json:"album,omitempty"`
	Genre      string   `json:"genre,omitempty"`
	Year       string   `json:"year,omitempty"`
	BPM        int      `json:"bpm,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	Playcount  int      `json:"playcount,omitempty"`
	Listeners  int      `json:"listeners,omitempty"`
	ArtworkURL string   `json:"artwork_url,omitempty"`
}

// CatalogMetadata is the MusicBrainz view of a recording
type CatalogMetadata struct {
	Album       string   `json:"album,omitempty"`
	Label       string   `json:"label,omitempty"`
	ReleaseDate string   `json:"release_date,omitempty"`
	ISRC        string   `json:"isrc,omitempty"`
	Genres      []string `json:"genres,omitempty"`
}

// Empty reports whether nothing was found
func (c *CatalogMetadata) Empty() bool {
	return c == nil || (c.Album == "" && c.Label == "" && c.ReleaseDate == "" && c.ISRC == "" && len(c.Genres) == 0)
}

// Bundle collects per-source enrichment. Every entry is independently nil.
type Bundle struct {
	ITunes      *SourceMetadata  `json:"itunes,omitempty"`
	Deezer      *SourceMetadata  `json:"deezer,omitempty"`
	LastFM      *SourceMetadata  `json:"lastfm,omitempty"`
	MusicBrainz *CatalogMetadata `json:"musicbrainz,omitempty"`
	LocalBPM    *bpm.Estimate    `json:"local_bpm,omitempty"`
}

// HasBPM reports whether a catalog supplied a tempo
func (b *Bundle) HasBPM() bool {
	return b != nil && b.Deezer != nil && b.Deezer.BPM > 0
}

// Candidate is one free-text search hit
type Candidate struct {
	Artist      string `json:"artist"`
	Title       string `json:"title"`
	Album       string `json:"album"`
	RecordingID string `json:"recording_id"`
	Score       int    `json:"score"`
}

// Enricher gathers catalog metadata for an identified track. It never
// fails; unavailable sources are left nil.
type Enricher interface {
	Enrich(ctx context.Context, q Query) *Bundle
}

// Searcher runs free-text recording searches
type Searcher interface {
	SearchRecordings(ctx context.Context, query string, limit int) ([]Candidate, error)
}
