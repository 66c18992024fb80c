package backends

import (
	"context"
	"errors"
	"sync"

	"github.com/eternnoir/mixident/pkg/audio"
)

// Source classifies a backend by the kind of service behind it
type Source string

const (
	SourceCommercial Source = "commercial"
	SourceOpenDB     Source = "open_db"
	SourceConsumer   Source = "consumer"
)

// Priority ranks sources when two guesses carry the same confidence
func (s Source) Priority() int {
	switch s {
	case SourceConsumer:
		return 3
	case SourceCommercial:
		return 2
	case SourceOpenDB:
		return 1
	default:
		return 0
	}
}

// Display names used for attribution
const (
	NameACRCloud    = "ACRCloud"
	NameAcoustID    = "AcoustID"
	NameShazam      = "Shazam"
	NameMusicBrainz = "MusicBrainz search"
)

var (
	// ErrAuth means the service rejected our credentials
	ErrAuth = errors.New("authentication rejected")

	// ErrRateLimited means the service asked us to slow down
	ErrRateLimited = errors.New("rate limited")
)

// Guess is one backend's opinion about a sample. Empty strings mean the
// backend has no opinion on that field.
type Guess struct {
	Artist        string  `json:"artist"`
	Title         string  `json:"title"`
	Album         string  `json:"album,omitempty"`
	Confidence    float64 `json:"confidence"`
	HasConfidence bool    `json:"has_confidence"`
	Source        Source  `json:"source"`
	Backend       string  `json:"backend"`

	RecordingID  string   `json:"recording_id,omitempty"`
	Label        string   `json:"label,omitempty"`
	Year         string   `json:"year,omitempty"`
	Genres       []string `json:"genres,omitempty"`
	ShazamKey    string   `json:"shazam_key,omitempty"`
	AppleMusicID string   `json:"apple_music_id,omitempty"`
	ArtworkURL   string   `json:"artwork_url,omitempty"`
}

// Complete reports whether the guess names both artist and title
func (g *Guess) Complete() bool {
	return g != nil && g.Artist != "" && g.Title != ""
}

// Backend identifies audio samples against one remote service.
//
// Identify returns (nil, nil) when the service has no match, is not
// configured or fails transiently. The only errors returned are ErrAuth and
// ErrRateLimited, possibly wrapped.
type Backend interface {
	// Name returns the display name used for attribution
	Name() string

	// Source returns the service class
	Source() Source

	// Identify submits the sample and returns the best guess
	Identify(ctx context.Context, sample *audio.Sample) (*Guess, error)
}

// Notices remembers which one-time warnings were already emitted. It is safe
// for concurrent use.
type Notices struct {
	seen sync.Map
}

// NewNotices creates an empty notice set
func NewNotices() *Notices {
	return &Notices{}
}

// Once returns true the first time key is seen and false afterwards
func (n *Notices) Once(key string) bool {
	if n == nil {
		return true
	}
	_, loaded := n.seen.LoadOrStore(key, struct{}{})
	return !loaded
}
