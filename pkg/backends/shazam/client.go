package shazam

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/eternnoir/mixident/pkg/audio"
	"github.com/eternnoir/mixident/pkg/backends"
	"github.com/eternnoir/mixident/pkg/logger"
)

const confidence = 0.85

var yearPattern = regexp.MustCompile(`\b(19|20)\d{2}\b`)

// Recognizer submits a WAV file to the recognition service and returns the
// raw discovery JSON
type Recognizer interface {
	Recognize(ctx context.Context, path string) ([]byte, error)
}

// Songrec runs `songrec audio-file-to-recognized-song`
type Songrec struct {
	Path string
}

// Recognize runs songrec on the file
func (s *Songrec) Recognize(ctx context.Context, path string) ([]byte, error) {
	bin := s.Path
	if bin == "" {
		bin = "songrec"
	}

	cmd := exec.CommandContext(ctx, bin, "audio-file-to-recognized-song", path)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("songrec timed out: %w", ctx.Err())
		}
		return nil, fmt.Errorf("songrec failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// Client identifies samples through the consumer recognition service
type Client struct {
	recognizer Recognizer
	timeout    time.Duration
}

var _ backends.Backend = (*Client)(nil)

// Option configures a Client
type Option func(*Client)

// WithRecognizer replaces the songrec recognizer
func WithRecognizer(r Recognizer) Option {
	return func(c *Client) {
		c.recognizer = r
	}
}

// WithTimeout sets the recognition timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// New creates a client using songrec at songrecPath
func New(songrecPath string, options ...Option) *Client {
	c := &Client{
		recognizer: &Songrec{Path: songrecPath},
		timeout:    30 * time.Second,
	}

	for _, opt := range options {
		opt(c)
	}

	return c
}

// Name returns the display name
func (c *Client) Name() string {
	return backends.NameShazam
}

// Source returns the service class
func (c *Client) Source() backends.Source {
	return backends.SourceConsumer
}

// Identify recognizes the sample. Failures of any kind are reported as no match.
func (c *Client) Identify(ctx context.Context, sample *audio.Sample) (*backends.Guess, error) {
	log := logger.FromContext(ctx).WithComponent("shazam")

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	startTime := time.Now()
	data, err := c.recognizer.Recognize(reqCtx, sample.Path)
	if err != nil {
		diagnostic := "service error"
		if reqCtx.Err() != nil {
			diagnostic = "timeout"
		}
		log.Warn().Err(err).Str("diagnostic", diagnostic).Msg("Shazam recognition failed")
		return nil, nil
	}

	guess, err := ParseResponse(data)
	if err != nil {
		log.Warn().Err(err).Str("diagnostic", "decode").Msg("Shazam response unreadable")
		return nil, nil
	}
	if guess == nil {
		log.Debug().Msg("Shazam found no match")
		return nil, nil
	}

	log.Debug().
		Str("artist", guess.Artist).
		Str("title", guess.Title).
		Dur("elapsed", time.Since(startTime)).
		Msg("Shazam match")

	return guess, nil
}

// ParseResponse turns discovery JSON into a guess. A response without a
// track, title or artist is no match.
func ParseResponse(data []byte) (*backends.Guess, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	track := resp.Track
	if track == nil || track.Title == "" || track.Subtitle == "" {
		return nil, nil
	}

	guess := &backends.Guess{
		Artist:        track.Subtitle,
		Title:         track.Title,
		Confidence:    confidence,
		HasConfidence: true,
		Source:        backends.SourceConsumer,
		Backend:       backends.NameShazam,
		ShazamKey:     track.Key,
		ArtworkURL:    track.Images.CoverArtHQ,
	}
	if guess.ArtworkURL == "" {
		guess.ArtworkURL = track.Images.CoverArt
	}

	for _, section := range track.Sections {
		if section.Type != "SONG" {
			continue
		}
		for _, item := range section.Metadata {
			key := strings.ToLower(item.Title)
			switch {
			case strings.Contains(key, "album"):
				if item.Text != "" {
					guess.Album = item.Text
				}
			case strings.Contains(key, "release"):
				if year := yearPattern.FindString(item.Text); year != "" {
					guess.Year = year
				}
			case strings.Contains(key, "label"):
				if item.Text != "" {
					guess.Label = item.Text
				}
			}
		}
	}

	if genre := genreFromSubject(track.Share.Subject); genre != "" {
		guess.Genres = []string{genre}
	}

	for _, provider := range track.Hub.Providers {
		if provider.Type != "APPLEMUSIC" {
			continue
		}
		for _, action := range provider.Actions {
			if id := appleMusicID(action.URI); id != "" {
				guess.AppleMusicID = id
			}
		}
	}

	return guess, nil
}

func genreFromSubject(subject string) string {
	i := strings.Index(subject, "genre=")
	if i < 0 {
		return ""
	}
	genre := subject[i+len("genre="):]
	if j := strings.IndexByte(genre, '&'); j >= 0 {
		genre = genre[:j]
	}
	genre = strings.ReplaceAll(genre, "+", " ")
	genre = strings.ReplaceAll(genre, "%20", " ")
	return strings.TrimSpace(genre)
}

func appleMusicID(uri string) string {
	i := strings.LastIndex(uri, "song/")
	if i < 0 {
		return ""
	}
	id := uri[i+len("song/"):]
	if j := strings.IndexByte(id, '?'); j >= 0 {
		id = id[:j]
	}
	return id
}
