package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
)

const defaultLastFMURL = "https://ws.audioscrobbler.com/2.0/"

// LastFM reads track info and community tags from Last.fm
type LastFM struct {
	baseURL string
	apiKey  string
	fetch   *fetcher
}

type lastfmTag struct {
	Name string `json:"name"`
}

// lastfmTags decodes toptags.tag, which is a list or a single object
type lastfmTags []lastfmTag

func (t *lastfmTags) UnmarshalJSON(data []byte) error {
	var list []lastfmTag
	if err := json.Unmarshal(data, &list); err == nil {
		*t = list
		return nil
	}
	var one lastfmTag
	if err := json.Unmarshal(data, &one); err != nil {
		return err
	}
	*t = lastfmTags{one}
	return nil
}

type lastfmResponse struct {
	Error   int    `json:"error"`
	Message string `json:"message"`
	Track   *struct {
		Name      string `json:"name"`
		Playcount string `json:"playcount"`
		Listeners string `json:"listeners"`
		Artist    struct {
			Name string `json:"name"`
		} `json:"artist"`
		Album *struct {
			Title string `json:"title"`
		} `json:"album"`
		TopTags struct {
			Tag lastfmTags `json:"tag"`
		} `json:"toptags"`
	} `json:"track"`
}

// Lookup calls track.getInfo. Error payloads yield nil.
func (s *LastFM) Lookup(ctx context.Context, q Query) (*SourceMetadata, error) {
	if s.apiKey == "" {
		return nil, nil
	}

	params := url.Values{}
	params.Set("method", "track.getInfo")
	params.Set("artist", q.Artist)
	params.Set("track", q.Title)
	params.Set("api_key", s.apiKey)
	params.Set("format", "json")

	var resp lastfmResponse
	if err := s.fetch.getJSON(ctx, s.baseURL+"?"+params.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("lastfm track.getInfo: %w", err)
	}
	if resp.Error != 0 || resp.Track == nil {
		return nil, nil
	}

	track := resp.Track
	meta := &SourceMetadata{
		Artist: track.Artist.Name,
		Title:  track.Name,
	}
	if track.Album != nil {
		meta.Album = track.Album.Title
	}
	for _, tag := range track.TopTags.Tag {
		if len(meta.Tags) == 5 {
			break
		}
		if tag.Name != "" {
			meta.Tags = append(meta.Tags, tag.Name)
		}
	}
	meta.Playcount, _ = strconv.Atoi(track.Playcount)
	meta.Listeners, _ = strconv.Atoi(track.Listeners)

	return meta, nil
}
