package enrich

import (
	"context"
	"fmt"
	"net/url"
)

const defaultDeezerURL = "https://api.deezer.com"

// Deezer queries the public Deezer API
type Deezer struct {
	baseURL string
	fetch   *fetcher
}

type deezerSearch struct {
	Data []struct {
		ID     int64  `json:"id"`
		Title  string `json:"title"`
		Artist struct {
			Name string `json:"name"`
		} `json:"artist"`
		Album struct {
			ID    int64  `json:"id"`
			Title string `json:"title"`
			Cover string `json:"cover_xl"`
		} `json:"album"`
	} `json:"data"`
}

type deezerTrack struct {
	BPM float64 `json:"bpm"`
}

type deezerAlbum struct {
	ReleaseDate string `json:"release_date"`
	Genres      struct {
		Data []struct {
			Name string `json:"name"`
		} `json:"data"`
	} `json:"genres"`
}

// Lookup searches for the track, then reads tempo from the track record and
// genre and year from the album record. Failures of the detail requests
// leave those fields empty.
func (s *Deezer) Lookup(ctx context.Context, q Query) (*SourceMetadata, error) {
	params := url.Values{}
	params.Set("q", q.Artist+" "+q.Title)
	params.Set("limit", "3")

	var search deezerSearch
	if err := s.fetch.getJSON(ctx, fmt.Sprintf("%s/search?%s", s.baseURL, params.Encode()), &search); err != nil {
		return nil, fmt.Errorf("deezer search: %w", err)
	}
	if len(search.Data) == 0 {
		return nil, nil
	}

	artists := make([]string, len(search.Data))
	titles := make([]string, len(search.Data))
	for i, r := range search.Data {
		artists[i], titles[i] = r.Artist.Name, r.Title
	}
	r := search.Data[pickBest(q, artists, titles)]

	meta := &SourceMetadata{
		Artist:     r.Artist.Name,
		Title:      r.Title,
		Album:      r.Album.Title,
		ArtworkURL: r.Album.Cover,
	}

	if r.ID != 0 {
		var track deezerTrack
		if err := s.fetch.getJSON(ctx, fmt.Sprintf("%s/track/%d", s.baseURL, r.ID), &track); err == nil && track.BPM > 0 {
			meta.BPM = int(track.BPM + 0.5)
		}
	}

	if r.Album.ID != 0 {
		var album deezerAlbum
		if err := s.fetch.getJSON(ctx, fmt.Sprintf("%s/album/%d", s.baseURL, r.Album.ID), &album); err == nil {
			if len(album.Genres.Data) > 0 {
				meta.Genre = album.Genres.Data[0].Name
			}
			meta.Year = yearOf(album.ReleaseDate)
		}
	}

	return meta, nil
}
