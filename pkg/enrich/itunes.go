package enrich

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

const defaultITunesURL = "https://itunes.apple.com"

// ITunes queries the iTunes Search API
type ITunes struct {
	baseURL string
	fetch   *fetcher
}

type itunesResponse struct {
	ResultCount int `json:"resultCount"`
	Results     []struct {
		ArtistName       string `json:"artistName"`
		TrackName        string `json:"trackName"`
		CollectionName   string `json:"collectionName"`
		PrimaryGenreName string `json:"primaryGenreName"`
		ReleaseDate      string `json:"releaseDate"`
		ArtworkURL100    string `json:"artworkUrl100"`
	} `json:"results"`
}

// Lookup searches for the track and returns the best result, or nil
func (s *ITunes) Lookup(ctx context.Context, q Query) (*SourceMetadata, error) {
	params := url.Values{}
	params.Set("term", q.Artist+" "+q.Title)
	params.Set("entity", "song")
	params.Set("limit", "3")

	var resp itunesResponse
	if err := s.fetch.getJSON(ctx, fmt.Sprintf("%s/search?%s", s.baseURL, params.Encode()), &resp); err != nil {
		return nil, fmt.Errorf("itunes search: %w", err)
	}
	if len(resp.Results) == 0 {
		return nil, nil
	}

	artists := make([]string, len(resp.Results))
	titles := make([]string, len(resp.Results))
	for i, r := range resp.Results {
		artists[i], titles[i] = r.ArtistName, r.TrackName
	}
	r := resp.Results[pickBest(q, artists, titles)]

	return &SourceMetadata{
		Artist:     r.ArtistName,
		Title:      r.TrackName,
		Album:      r.CollectionName,
		Genre:      r.PrimaryGenreName,
		Year:       yearOf(r.ReleaseDate),
		ArtworkURL: LargeArtwork(r.ArtworkURL100),
	}, nil
}

// LargeArtwork rewrites an iTunes 100px artwork URL to 600px
func LargeArtwork(u string) string {
	return strings.Replace(u, "100x100bb", "600x600bb", 1)
}
