package identify

import (
	"strings"
	"unicode"

	"github.com/eternnoir/mixident/pkg/backends"
	"github.com/eternnoir/mixident/pkg/enrich"
)

// Agreement classifies how the identification backends corroborate each other
type Agreement string

const (
	AgreementFull      Agreement = "full"
	AgreementPartial   Agreement = "partial"
	AgreementConflict  Agreement = "conflict"
	AgreementSingleACR Agreement = "single_acr"
	AgreementSingleMB  Agreement = "single_mb"
	AgreementNone      Agreement = "none"
)

// Attribution names for catalog sources
const (
	SourceITunes      = "iTunes"
	SourceDeezer      = "Deezer"
	SourceLastFM      = "Last.fm"
	SourceMusicBrainz = "MusicBrainz"
	SourceLocal       = "local"
)

const (
	unknownAlbum = "Unknown Album"
	maxGenres    = 5
)

// ConfidenceWeights are the constants of the confidence model
type ConfidenceWeights struct {
	Full       float64
	Partial    float64
	Conflict   float64
	SingleACR  float64
	SingleMB   float64
	PairStep   float64 // per source beyond the two guesses
	SingleStep float64 // per source beyond the single guess
	Max        float64
}

// DefaultWeights returns the stock confidence model
func DefaultWeights() ConfidenceWeights {
	return ConfidenceWeights{
		Full:       0.90,
		Partial:    0.75,
		Conflict:   0.60,
		SingleACR:  0.75,
		SingleMB:   0.70,
		PairStep:   0.025,
		SingleStep: 0.05,
		Max:        0.99,
	}
}

// Field is a merged value with the source it came from
type Field struct {
	Value  string `json:"value"`
	Source string `json:"source,omitempty"`
}

// GenresField is the merged genre list
type GenresField struct {
	Value  []string `json:"value"`
	Source string   `json:"source,omitempty"`
}

// BPMField is the merged tempo
type BPMField struct {
	Value      int     `json:"value"`
	Source     string  `json:"source,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

// MergedRecord is the reconciled identification of one segment
type MergedRecord struct {
	Artist      Field       `json:"artist"`
	Title       Field       `json:"title"`
	Album       Field       `json:"album"`
	Label       Field       `json:"label"`
	Genres      GenresField `json:"genres"`
	ReleaseDate Field       `json:"release_date"`
	ISRC        Field       `json:"isrc"`
	BPM         BPMField    `json:"bpm"`

	Confidence     float64   `json:"confidence"`
	Agreement      Agreement `json:"agreement"`
	SourcesUsed    []string  `json:"sources_used"`
	SourcesChecked int       `json:"sources_checked"`
	ArtworkURL     string    `json:"artwork_url,omitempty"`
}

// Identified reports whether the record names a track
func (r *MergedRecord) Identified() bool {
	return r != nil && r.Agreement != AgreementNone && r.Artist.Value != "" && r.Title.Value != ""
}

// Key returns the "Artist - Title" label used for duplicate detection
func (r *MergedRecord) Key() string {
	return r.Artist.Value + " - " + r.Title.Value
}

// Merger reconciles backend guesses and enrichment into one record
type Merger struct {
	weights ConfidenceWeights
}

// NewMerger creates a merger with the given weights
func NewMerger(weights ConfidenceWeights) *Merger {
	return &Merger{weights: weights}
}

// Merge reconciles with the default weights
func Merge(primary, secondary *backends.Guess, bundle *enrich.Bundle) *MergedRecord {
	return NewMerger(DefaultWeights()).Merge(primary, secondary, bundle)
}

// Merge builds the record. Either guess may be nil; guesses missing an
// artist or title are ignored.
func (m *Merger) Merge(primary, secondary *backends.Guess, bundle *enrich.Bundle) *MergedRecord {
	if !primary.Complete() {
		primary = nil
	}
	if !secondary.Complete() {
		secondary = nil
	}
	if bundle == nil {
		bundle = &enrich.Bundle{}
	}

	record := &MergedRecord{
		Agreement:   AgreementNone,
		SourcesUsed: []string{},
	}

	if primary != nil {
		record.SourcesUsed = append(record.SourcesUsed, primary.Backend)
	}
	if secondary != nil {
		record.SourcesUsed = append(record.SourcesUsed, secondary.Backend)
	}
	if bundle.ITunes != nil {
		record.SourcesUsed = append(record.SourcesUsed, SourceITunes)
	}
	if bundle.Deezer != nil {
		record.SourcesUsed = append(record.SourcesUsed, SourceDeezer)
	}
	if bundle.LastFM != nil {
		record.SourcesUsed = append(record.SourcesUsed, SourceLastFM)
	}
	record.SourcesChecked = len(record.SourcesUsed)

	record.Agreement, record.Confidence = m.score(primary, secondary, record.SourcesChecked)
	if record.Agreement == AgreementNone {
		return record
	}

	guesses := make([]*backends.Guess, 0, 2)
	for _, g := range []*backends.Guess{primary, secondary} {
		if g != nil {
			guesses = append(guesses, g)
		}
	}

	record.Artist = Field{Value: guesses[0].Artist, Source: guesses[0].Backend}
	record.Title = Field{Value: guesses[0].Title, Source: guesses[0].Backend}
	record.Album = mergeAlbum(guesses, bundle)
	record.Label = mergeLabel(guesses, bundle)
	record.Genres = mergeGenres(guesses, bundle, len(record.SourcesUsed))
	record.ReleaseDate = mergeReleaseDate(guesses, bundle)
	if mb := bundle.MusicBrainz; mb != nil && mb.ISRC != "" {
		record.ISRC = Field{Value: mb.ISRC, Source: SourceMusicBrainz}
	}
	record.BPM = mergeBPM(bundle)
	record.ArtworkURL = mergeArtwork(guesses, bundle)

	return record
}

func (m *Merger) score(primary, secondary *backends.Guess, n int) (Agreement, float64) {
	w := m.weights
	var agreement Agreement
	var confidence float64

	switch {
	case primary != nil && secondary != nil:
		artistMatch := StringsMatch(primary.Artist, secondary.Artist)
		titleMatch := StringsMatch(primary.Title, secondary.Title)
		switch {
		case artistMatch && titleMatch:
			agreement = AgreementFull
			confidence = w.Full + w.PairStep*float64(n-2)
		case artistMatch || titleMatch:
			agreement = AgreementPartial
			confidence = w.Partial + w.PairStep*float64(n-2)
		default:
			agreement = AgreementConflict
			confidence = w.Conflict
		}
	case primary != nil:
		agreement = AgreementSingleACR
		confidence = w.SingleACR + w.SingleStep*float64(n-1)
	case secondary != nil:
		agreement = AgreementSingleMB
		confidence = w.SingleMB + w.SingleStep*float64(n-1)
	default:
		return AgreementNone, 0
	}

	if confidence > w.Max {
		confidence = w.Max
	}
	if confidence < 0 {
		confidence = 0
	}
	return agreement, confidence
}

// StringsMatch compares two names ignoring case and everything that is not
// a letter or digit. Empty names never match.
func StringsMatch(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return foldName(a) == foldName(b)
}

func foldName(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return -1
	}, strings.ToLower(s))
}

func mergeAlbum(guesses []*backends.Guess, bundle *enrich.Bundle) Field {
	if mb := bundle.MusicBrainz; mb != nil && knownAlbum(mb.Album) {
		return Field{Value: mb.Album, Source: SourceMusicBrainz}
	}
	for _, g := range guesses {
		if knownAlbum(g.Album) {
			return Field{Value: g.Album, Source: g.Backend}
		}
	}
	if bundle.ITunes != nil && bundle.ITunes.Album != "" {
		return Field{Value: bundle.ITunes.Album, Source: SourceITunes}
	}
	if bundle.Deezer != nil && bundle.Deezer.Album != "" {
		return Field{Value: bundle.Deezer.Album, Source: SourceDeezer}
	}
	return Field{Value: unknownAlbum}
}

func knownAlbum(album string) bool {
	return album != "" && album != unknownAlbum
}

func mergeLabel(guesses []*backends.Guess, bundle *enrich.Bundle) Field {
	if mb := bundle.MusicBrainz; mb != nil && mb.Label != "" {
		return Field{Value: mb.Label, Source: SourceMusicBrainz}
	}
	for _, g := range guesses {
		if g.Label != "" {
			return Field{Value: g.Label, Source: g.Backend}
		}
	}
	return Field{}
}

func mergeGenres(guesses []*backends.Guess, bundle *enrich.Bundle, sourcesUsed int) GenresField {
	var genres []string
	seen := make(map[string]bool)
	source := ""

	add := func(from string, names ...string) {
		for _, name := range names {
			name = strings.TrimSpace(name)
			key := strings.ToLower(name)
			if name == "" || seen[key] {
				continue
			}
			seen[key] = true
			genres = append(genres, name)
			if source == "" {
				source = from
			}
		}
	}

	if bundle.MusicBrainz != nil {
		add(SourceMusicBrainz, bundle.MusicBrainz.Genres...)
	}
	if bundle.ITunes != nil {
		add(SourceITunes, bundle.ITunes.Genre)
	}
	if bundle.Deezer != nil {
		add(SourceDeezer, bundle.Deezer.Genre)
	}
	if bundle.LastFM != nil {
		add(SourceLastFM, bundle.LastFM.Tags...)
	}
	if len(genres) == 0 {
		for _, g := range guesses {
			add(g.Backend, g.Genres...)
		}
	}

	if len(genres) == 0 {
		return GenresField{}
	}
	if sourcesUsed > 1 && len(genres) > 1 {
		source += "+"
	}
	if len(genres) > maxGenres {
		genres = genres[:maxGenres]
	}
	return GenresField{Value: genres, Source: source}
}

func mergeReleaseDate(guesses []*backends.Guess, bundle *enrich.Bundle) Field {
	if mb := bundle.MusicBrainz; mb != nil && mb.ReleaseDate != "" {
		return Field{Value: mb.ReleaseDate, Source: SourceMusicBrainz}
	}
	if bundle.ITunes != nil && bundle.ITunes.Year != "" {
		return Field{Value: bundle.ITunes.Year, Source: SourceITunes}
	}
	if bundle.Deezer != nil && bundle.Deezer.Year != "" {
		return Field{Value: bundle.Deezer.Year, Source: SourceDeezer}
	}
	for _, g := range guesses {
		if g.Year != "" {
			return Field{Value: g.Year, Source: g.Backend}
		}
	}
	return Field{}
}

func mergeBPM(bundle *enrich.Bundle) BPMField {
	if bundle.HasBPM() {
		return BPMField{Value: bundle.Deezer.BPM, Source: SourceDeezer}
	}
	if est := bundle.LocalBPM; est != nil && est.BPM > 0 {
		return BPMField{Value: est.BPM, Source: SourceLocal, Confidence: est.Confidence}
	}
	return BPMField{}
}

func mergeArtwork(guesses []*backends.Guess, bundle *enrich.Bundle) string {
	for _, g := range guesses {
		if g.ArtworkURL != "" {
			return g.ArtworkURL
		}
	}
	if bundle.ITunes != nil && bundle.ITunes.ArtworkURL != "" {
		return enrich.LargeArtwork(bundle.ITunes.ArtworkURL)
	}
	if bundle.Deezer != nil {
		return bundle.Deezer.ArtworkURL
	}
	return ""
}
