package acoustid

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/eternnoir/mixident/pkg/audio"
	"github.com/eternnoir/mixident/pkg/backends"
	"github.com/eternnoir/mixident/pkg/logger"
	"github.com/eternnoir/mixident/pkg/ratelimit"
)

const (
	defaultBaseURL = "https://api.acoustid.org/v2"

	// Results must score strictly above this to be accepted
	minScore = 0.5
)

// Error codes from the lookup service
const (
	errInvalidFingerprint = 3
	errInvalidAPIKey      = 4
	errInvalidUserAPIKey  = 6
	errTooManyRequests    = 14
)

// Client looks up chromaprint fingerprints on AcoustID
type Client struct {
	apiKey        string
	baseURL       string
	timeout       time.Duration
	httpClient    *http.Client
	fingerprinter Fingerprinter
	gate          *ratelimit.Gate
	notices       *backends.Notices
}

var _ backends.Backend = (*Client)(nil)

// Option configures a Client
type Option func(*Client)

// WithBaseURL sets a custom base URL
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithHTTPClient overrides the default HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout sets the lookup timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithFingerprinter replaces the fpcalc fingerprinter
func WithFingerprinter(f Fingerprinter) Option {
	return func(c *Client) {
		c.fingerprinter = f
	}
}

// WithGate shares a rate gate between clients
func WithGate(gate *ratelimit.Gate) Option {
	return func(c *Client) {
		c.gate = gate
	}
}

// WithNotices shares one-time warning state
func WithNotices(notices *backends.Notices) Option {
	return func(c *Client) {
		c.notices = notices
	}
}

// New creates an AcoustID client. An empty key is allowed; Identify then
// reports no match and warns once.
func New(apiKey string, options ...Option) *Client {
	c := &Client{
		apiKey:        apiKey,
		baseURL:       defaultBaseURL,
		timeout:       15 * time.Second,
		httpClient:    &http.Client{},
		fingerprinter: NewFpcalc(""),
		notices:       backends.NewNotices(),
	}

	for _, opt := range options {
		opt(c)
	}

	return c
}

// Name returns the display name
func (c *Client) Name() string {
	return backends.NameAcoustID
}

// Source returns the service class
func (c *Client) Source() backends.Source {
	return backends.SourceOpenDB
}

// Identify fingerprints the sample and looks it up
func (c *Client) Identify(ctx context.Context, sample *audio.Sample) (*backends.Guess, error) {
	log := logger.FromContext(ctx).WithComponent("acoustid")

	if c.apiKey == "" {
		if c.notices.Once("acoustid.api_key") {
			log.Warn().Msg("AcoustID API key not configured, get a free key at https://acoustid.org/api-key")
		}
		return nil, nil
	}

	fp, err := c.fingerprinter.Fingerprint(ctx, sample.Path)
	if err != nil {
		log.Warn().Err(err).Str("diagnostic", "fingerprint").Msg("AcoustID fingerprinting failed")
		return nil, nil
	}

	if err := c.gate.Wait(ctx); err != nil {
		return nil, nil
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.lookup(reqCtx, fp)
	if err != nil {
		diagnostic := "service error"
		if errors.Is(err, context.DeadlineExceeded) {
			diagnostic = "timeout"
		}
		log.Warn().Err(err).Str("diagnostic", diagnostic).Msg("AcoustID lookup failed")
		return nil, nil
	}

	if resp.Status != "ok" {
		return nil, classify(resp.Error, log)
	}

	guess := pickGuess(resp)
	if guess == nil {
		log.Debug().Int("results", len(resp.Results)).Msg("AcoustID found no match above threshold")
		return nil, nil
	}

	log.Debug().
		Str("artist", guess.Artist).
		Str("title", guess.Title).
		Str("recording_id", guess.RecordingID).
		Float64("score", guess.Confidence).
		Msg("AcoustID match")

	return guess, nil
}

func (c *Client) lookup(ctx context.Context, fp *Fingerprint) (*LookupResponse, error) {
	form := url.Values{}
	form.Set("client", c.apiKey)
	form.Set("meta", "recordings")
	form.Set("duration", strconv.Itoa(int(fp.Duration)))
	form.Set("fingerprint", fp.Fingerprint)
	form.Set("format", "json")

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/lookup", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer func() {
		_ = httpResp.Body.Close()
	}()

	respData, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	// error bodies arrive with 4xx status codes and still carry JSON
	var resp LookupResponse
	if err := json.Unmarshal(respData, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response (status %d): %w", httpResp.StatusCode, err)
	}

	return &resp, nil
}

func classify(apiErr *APIError, log *logger.Logger) error {
	if apiErr == nil {
		log.Warn().Str("diagnostic", "service error").Msg("AcoustID returned an error without details")
		return nil
	}

	switch apiErr.Code {
	case errInvalidAPIKey, errInvalidUserAPIKey:
		return fmt.Errorf("acoustid error %d %s: %w", apiErr.Code, apiErr.Message, backends.ErrAuth)
	case errTooManyRequests:
		return fmt.Errorf("acoustid error %d %s: %w", apiErr.Code, apiErr.Message, backends.ErrRateLimited)
	case errInvalidFingerprint:
		log.Warn().Str("diagnostic", "fingerprint").Str("message", apiErr.Message).Msg("AcoustID rejected the fingerprint")
	default:
		log.Warn().Str("diagnostic", "service error").Int("code", apiErr.Code).Str("message", apiErr.Message).Msg("AcoustID returned an error")
	}
	return nil
}

// pickGuess returns the first recording of the first result scoring above
// the threshold
func pickGuess(resp *LookupResponse) *backends.Guess {
	for _, result := range resp.Results {
		if result.Score <= minScore {
			continue
		}
		for _, rec := range result.Recordings {
			artist := joinArtists(rec.Artists)
			if rec.Title == "" || artist == "" {
				continue
			}
			return &backends.Guess{
				Artist:        artist,
				Title:         rec.Title,
				Confidence:    result.Score,
				HasConfidence: true,
				Source:        backends.SourceOpenDB,
				Backend:       backends.NameAcoustID,
				RecordingID:   rec.ID,
			}
		}
	}
	return nil
}

func joinArtists(artists []Artist) string {
	names := make([]string, 0, len(artists))
	for _, a := range artists {
		if a.Name != "" {
			names = append(names, a.Name)
		}
	}
	return strings.Join(names, "; ")
}
