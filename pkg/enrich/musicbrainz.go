package enrich

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/eternnoir/mixident/pkg/ratelimit"
)

const (
	defaultMusicBrainzURL = "https://musicbrainz.org/ws/2"
	maxGenres             = 5
	unknownArtist         = "Unknown Artist"
	unknownAlbum          = "Unknown Album"
)

// MusicBrainz reads recordings, releases and tags. Every call waits on the
// shared gate.
type MusicBrainz struct {
	baseURL string
	fetch   *fetcher
	gate    *ratelimit.Gate
}

type mbTag struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type mbArtistCredit struct {
	Name   string `json:"name"`
	Artist struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"artist"`
}

type mbRelease struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Date  string `json:"date"`
}

type mbRecording struct {
	ID           string           `json:"id"`
	Score        int              `json:"score"`
	Title        string           `json:"title"`
	ArtistCredit []mbArtistCredit `json:"artist-credit"`
	Releases     []mbRelease      `json:"releases"`
	Tags         []mbTag          `json:"tags"`
	ISRCs        []string         `json:"isrcs"`
}

type mbFullRelease struct {
	ID        string `json:"id"`
	LabelInfo []struct {
		Label *struct {
			Name string `json:"name"`
		} `json:"label"`
	} `json:"label-info"`
	Tags         []mbTag `json:"tags"`
	ReleaseGroup *struct {
		Tags []mbTag `json:"tags"`
	} `json:"release-group"`
}

type mbArtist struct {
	ID   string  `json:"id"`
	Tags []mbTag `json:"tags"`
}

func (s *MusicBrainz) get(ctx context.Context, path string, params url.Values, v interface{}) error {
	if err := s.gate.Wait(ctx); err != nil {
		return err
	}
	params.Set("fmt", "json")
	return s.fetch.getJSON(ctx, fmt.Sprintf("%s/%s?%s", s.baseURL, path, params.Encode()), v)
}

// Lookup gathers album, label, release date, ISRC and genres. The recording
// id is used when present; otherwise the first artist/title search hit is
// used. Returns nil when nothing was found.
func (s *MusicBrainz) Lookup(ctx context.Context, q Query) (*CatalogMetadata, error) {
	meta := &CatalogMetadata{}
	var genres []string
	var artistID string

	if q.RecordingID != "" {
		var rec mbRecording
		params := url.Values{"inc": {"artists releases tags isrcs"}}
		if err := s.get(ctx, "recording/"+url.PathEscape(q.RecordingID), params, &rec); err == nil {
			genres = appendTags(genres, rec.Tags)
			if len(rec.ISRCs) > 0 {
				meta.ISRC = rec.ISRCs[0]
			}
			artistID = firstArtistID(rec.ArtistCredit)
			if len(rec.Releases) > 0 {
				release := rec.Releases[0]
				meta.Album = release.Title
				meta.ReleaseDate = release.Date
				genres = append(genres, s.releaseDetails(ctx, release.ID, "labels tags release-groups", meta)...)
			}
		}
	}

	if q.RecordingID == "" || meta.Empty() {
		if q.Artist != "" && q.Title != "" {
			var search struct {
				Recordings []mbRecording `json:"recordings"`
			}
			query := fmt.Sprintf(`artist:"%s" AND recording:"%s"`, luceneEscape(q.Artist), luceneEscape(q.Title))
			params := url.Values{"query": {query}, "limit": {"1"}}
			if err := s.get(ctx, "recording", params, &search); err != nil {
				return nil, fmt.Errorf("musicbrainz recording search: %w", err)
			}
			if len(search.Recordings) > 0 {
				rec := search.Recordings[0]
				genres = appendTags(genres, rec.Tags)
				if artistID == "" {
					artistID = firstArtistID(rec.ArtistCredit)
				}
				if meta.Album == "" && len(rec.Releases) > 0 {
					release := rec.Releases[0]
					meta.Album = release.Title
					meta.ReleaseDate = release.Date
					if meta.Label == "" {
						genres = append(genres, s.releaseDetails(ctx, release.ID, "labels tags", meta)...)
					}
				}
			}
		}
	}

	if artistID != "" {
		genres = append(genres, s.artistTags(ctx, artistID)...)
	}

	if len(genres) == 0 && q.Artist != "" {
		var search struct {
			Artists []mbArtist `json:"artists"`
		}
		params := url.Values{"query": {fmt.Sprintf(`artist:"%s"`, luceneEscape(q.Artist))}, "limit": {"1"}}
		if err := s.get(ctx, "artist", params, &search); err == nil && len(search.Artists) > 0 {
			genres = append(genres, s.artistTags(ctx, search.Artists[0].ID)...)
		}
	}

	meta.Genres = DedupeGenres(genres, maxGenres)

	if meta.Empty() {
		return nil, nil
	}
	return meta, nil
}

// releaseDetails fills the label and returns release and release-group tags
func (s *MusicBrainz) releaseDetails(ctx context.Context, releaseID, inc string, meta *CatalogMetadata) []string {
	if releaseID == "" {
		return nil
	}
	var rel mbFullRelease
	if err := s.get(ctx, "release/"+url.PathEscape(releaseID), url.Values{"inc": {inc}}, &rel); err != nil {
		return nil
	}
	if len(rel.LabelInfo) > 0 && rel.LabelInfo[0].Label != nil {
		meta.Label = rel.LabelInfo[0].Label.Name
	}
	tags := appendTags(nil, rel.Tags)
	if rel.ReleaseGroup != nil {
		tags = appendTags(tags, rel.ReleaseGroup.Tags)
	}
	return tags
}

func (s *MusicBrainz) artistTags(ctx context.Context, artistID string) []string {
	if artistID == "" {
		return nil
	}
	var artist mbArtist
	if err := s.get(ctx, "artist/"+url.PathEscape(artistID), url.Values{"inc": {"tags"}}, &artist); err != nil {
		return nil
	}
	return appendTags(nil, artist.Tags)
}

// SearchRecordings runs a free-text recording search
func (s *MusicBrainz) SearchRecordings(ctx context.Context, query string, limit int) ([]Candidate, error) {
	var search struct {
		Recordings []mbRecording `json:"recordings"`
	}
	params := url.Values{"query": {query}, "limit": {strconv.Itoa(limit)}}
	if err := s.get(ctx, "recording", params, &search); err != nil {
		return nil, fmt.Errorf("musicbrainz recording search: %w", err)
	}

	candidates := make([]Candidate, 0, len(search.Recordings))
	for _, rec := range search.Recordings {
		c := Candidate{
			Artist:      unknownArtist,
			Title:       rec.Title,
			Album:       unknownAlbum,
			RecordingID: rec.ID,
			Score:       rec.Score,
		}
		if len(rec.ArtistCredit) > 0 {
			if name := rec.ArtistCredit[0].Artist.Name; name != "" {
				c.Artist = name
			} else if rec.ArtistCredit[0].Name != "" {
				c.Artist = rec.ArtistCredit[0].Name
			}
		}
		if len(rec.Releases) > 0 && rec.Releases[0].Title != "" {
			c.Album = rec.Releases[0].Title
		}
		if c.Title == "" {
			c.Title = "Unknown Title"
		}
		candidates = append(candidates, c)
	}
	return candidates, nil
}

// DedupeGenres trims names, drops one-letter entries and duplicates
// (case-insensitive, first seen wins) and caps the list
func DedupeGenres(genres []string, limit int) []string {
	seen := make(map[string]bool, len(genres))
	var out []string
	for _, g := range genres {
		g = strings.TrimSpace(g)
		key := strings.ToLower(g)
		if len(key) <= 1 || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, g)
		if len(out) == limit {
			break
		}
	}
	return out
}

func appendTags(dst []string, tags []mbTag) []string {
	for _, t := range tags {
		dst = append(dst, t.Name)
	}
	return dst
}

func firstArtistID(credits []mbArtistCredit) string {
	for _, c := range credits {
		if c.Artist.ID != "" {
			return c.Artist.ID
		}
	}
	return ""
}

var luceneReplacer = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

func luceneEscape(s string) string {
	return luceneReplacer.Replace(s)
}
