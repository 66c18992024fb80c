package enrich

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/eternnoir/mixident/pkg/cache"
	"github.com/eternnoir/mixident/pkg/logger"
	"github.com/eternnoir/mixident/pkg/ratelimit"
)

// BaseURLs points each source at a custom endpoint, used in tests
type BaseURLs struct {
	ITunes      string
	Deezer      string
	LastFM      string
	MusicBrainz string
}

// Client fans out to every catalog concurrently
type Client struct {
	itunes      *ITunes
	deezer      *Deezer
	lastfm      *LastFM
	musicbrainz *MusicBrainz
	cache       *cache.Store
}

var (
	_ Enricher = (*Client)(nil)
	_ Searcher = (*Client)(nil)
)

type clientConfig struct {
	lastFMKey  string
	userAgent  string
	timeout    time.Duration
	httpClient *http.Client
	gate       *ratelimit.Gate
	cache      *cache.Store
	urls       BaseURLs
}

// Option configures a Client
type Option func(*clientConfig)

// WithLastFMKey enables Last.fm lookups
func WithLastFMKey(key string) Option {
	return func(c *clientConfig) {
		c.lastFMKey = key
	}
}

// WithUserAgent sets the User-Agent sent to every catalog
func WithUserAgent(ua string) Option {
	return func(c *clientConfig) {
		c.userAgent = ua
	}
}

// WithTimeout sets the per-request timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *clientConfig) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithHTTPClient overrides the default HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *clientConfig) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithMusicBrainzGate shares the MusicBrainz rate gate
func WithMusicBrainzGate(gate *ratelimit.Gate) Option {
	return func(c *clientConfig) {
		c.gate = gate
	}
}

// WithCache enables the response cache
func WithCache(store *cache.Store) Option {
	return func(c *clientConfig) {
		c.cache = store
	}
}

// WithBaseURLs overrides source endpoints; empty fields keep the default
func WithBaseURLs(urls BaseURLs) Option {
	return func(c *clientConfig) {
		c.urls = urls
	}
}

// New creates an enrichment client
func New(options ...Option) *Client {
	cfg := &clientConfig{
		timeout:    5 * time.Second,
		userAgent:  "mixident/0.1",
		httpClient: &http.Client{},
		gate:       ratelimit.NewGate("musicbrainz", ratelimit.MusicBrainzInterval),
	}
	for _, opt := range options {
		opt(cfg)
	}

	f := &fetcher{client: cfg.httpClient, timeout: cfg.timeout, userAgent: cfg.userAgent}
	return &Client{
		itunes:      &ITunes{baseURL: orDefault(cfg.urls.ITunes, defaultITunesURL), fetch: f},
		deezer:      &Deezer{baseURL: orDefault(cfg.urls.Deezer, defaultDeezerURL), fetch: f},
		lastfm:      &LastFM{baseURL: orDefault(cfg.urls.LastFM, defaultLastFMURL), apiKey: cfg.lastFMKey, fetch: f},
		musicbrainz: &MusicBrainz{baseURL: orDefault(cfg.urls.MusicBrainz, defaultMusicBrainzURL), fetch: f, gate: cfg.gate},
		cache:       cfg.cache,
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return strings.TrimSuffix(v, "/")
}

// Enrich queries all sources concurrently. A failing source leaves its
// bundle entry nil; Enrich itself never fails.
func (c *Client) Enrich(ctx context.Context, q Query) *Bundle {
	log := logger.FromContext(ctx).WithComponent("enrich")
	bundle := &Bundle{}

	if q.Artist == "" || q.Title == "" {
		return bundle
	}

	startTime := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	g.Go(func() error {
		bundle.ITunes = cachedLookup(gctx, c, "itunes", q, c.itunes.Lookup)
		return nil
	})
	g.Go(func() error {
		bundle.Deezer = cachedLookup(gctx, c, "deezer", q, c.deezer.Lookup)
		return nil
	})
	g.Go(func() error {
		if c.lastfm.apiKey != "" {
			bundle.LastFM = cachedLookup(gctx, c, "lastfm", q, c.lastfm.Lookup)
		}
		return nil
	})
	g.Go(func() error {
		bundle.MusicBrainz = cachedLookup(gctx, c, "musicbrainz", q, c.musicbrainz.Lookup)
		return nil
	})
	_ = g.Wait()

	log.Debug().
		Bool("itunes", bundle.ITunes != nil).
		Bool("deezer", bundle.Deezer != nil).
		Bool("lastfm", bundle.LastFM != nil).
		Bool("musicbrainz", bundle.MusicBrainz != nil).
		Dur("elapsed", time.Since(startTime)).
		Msg("Enrichment complete")

	return bundle
}

// SearchRecordings runs a MusicBrainz free-text search
func (c *Client) SearchRecordings(ctx context.Context, query string, limit int) ([]Candidate, error) {
	return c.musicbrainz.SearchRecordings(ctx, query, limit)
}

// cachedLookup consults the cache, then the source. Errors are logged and
// reported as nil; only hits are cached.
func cachedLookup[T any](ctx context.Context, c *Client, source string, q Query, lookup func(context.Context, Query) (*T, error)) *T {
	log := logger.FromContext(ctx).WithComponent("enrich").WithField("source", source)
	key := cacheKey(source, q)

	if c.cache != nil {
		var cached T
		found, err := c.cache.Get(key, &cached)
		if err != nil {
			log.Debug().Err(err).Msg("Cache read failed")
		} else if found {
			return &cached
		}
	}

	result, err := lookup(ctx, q)
	if err != nil {
		log.Debug().Err(err).Msg("Source lookup failed")
		return nil
	}
	if result == nil {
		return nil
	}

	if c.cache != nil {
		if err := c.cache.Set(key, result); err != nil {
			log.Debug().Err(err).Msg("Cache write failed")
		}
	}
	return result
}

func cacheKey(source string, q Query) string {
	return strings.ToLower(fmt.Sprintf("%s|%s|%s|%s", source, strings.TrimSpace(q.Artist), strings.TrimSpace(q.Title), q.RecordingID))
}
