package acrcloud

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/eternnoir/mixident/pkg/audio"
	"github.com/eternnoir/mixident/pkg/backends"
	"github.com/eternnoir/mixident/pkg/logger"
	"github.com/eternnoir/mixident/pkg/ratelimit"
)

const (
	endpoint         = "/v1/identify"
	dataType         = "audio"
	signatureVersion = "1"
	defaultScore     = 85.0
	unknownAlbum     = "Unknown Album"
)

// Status codes returned in the response body
const (
	codeSuccess       = 0
	codeNoResult      = 1001
	codeInvalidKey    = 3001
	codeLimitExceeded = 3003
	codeInvalidSign   = 3014
	codeQPSLimit      = 3015
)

// Client identifies samples against the ACRCloud identify endpoint
type Client struct {
	host         string
	accessKey    string
	accessSecret string
	baseURL      string
	timeout      time.Duration
	httpClient   *http.Client
	gate         *ratelimit.Gate
	notices      *backends.Notices
	now          func() time.Time
}

var _ backends.Backend = (*Client)(nil)

// Option configures a Client
type Option func(*Client)

// WithBaseURL overrides the scheme and host derived from the configured host
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = baseURL
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

// WithTimeout sets the per-request timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
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

// WithClock overrides the timestamp source used for signing
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// New creates an ACRCloud client. Missing credentials are not an error;
// Identify then reports no match and warns once.
func New(host, accessKey, accessSecret string, options ...Option) *Client {
	c := &Client{
		host:         host,
		accessKey:    accessKey,
		accessSecret: accessSecret,
		baseURL:      "https://" + host,
		timeout:      15 * time.Second,
		httpClient:   &http.Client{},
		notices:      backends.NewNotices(),
		now:          time.Now,
	}

	for _, opt := range options {
		opt(c)
	}

	return c
}

// Name returns the display name
func (c *Client) Name() string {
	return backends.NameACRCloud
}

// Source returns the service class
func (c *Client) Source() backends.Source {
	return backends.SourceCommercial
}

func (c *Client) configured() bool {
	return c.host != "" && c.accessKey != "" && c.accessSecret != ""
}

// Identify submits the sample to ACRCloud
func (c *Client) Identify(ctx context.Context, sample *audio.Sample) (*backends.Guess, error) {
	log := logger.FromContext(ctx).WithComponent("acrcloud")

	if !c.configured() {
		if c.notices.Once("acrcloud.credentials") {
			log.Warn().Msg("ACRCloud credentials not configured, skipping commercial identification")
		}
		return nil, nil
	}

	data, err := sample.Bytes()
	if err != nil {
		log.Warn().Err(err).Msg("ACRCloud sample unreadable")
		return nil, nil
	}

	if err := c.gate.Wait(ctx); err != nil {
		return nil, nil
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	startTime := time.Now()
	resp, err := c.makeRequest(reqCtx, data)
	if err != nil {
		log.Warn().Err(err).Dur("elapsed", time.Since(startTime)).Msg("ACRCloud request failed")
		return nil, nil
	}

	guess, err := parseResponse(resp)
	if err != nil {
		log.Warn().Err(err).Int("code", resp.Status.Code).Msg("ACRCloud returned an error")
		return nil, err
	}
	if guess == nil {
		log.Debug().Msg("ACRCloud found no match")
		return nil, nil
	}

	log.Debug().
		Str("artist", guess.Artist).
		Str("title", guess.Title).
		Float64("confidence", guess.Confidence).
		Dur("elapsed", time.Since(startTime)).
		Msg("ACRCloud match")

	return guess, nil
}

// Sign computes the request signature for the given timestamp
func Sign(accessKey, accessSecret string, timestamp int64) string {
	stringToSign := fmt.Sprintf("POST\n%s\n%s\n%s\n%s\n%d", endpoint, accessKey, dataType, signatureVersion, timestamp)
	mac := hmac.New(sha1.New, []byte(accessSecret))
	mac.Write([]byte(stringToSign))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func (c *Client) makeRequest(ctx context.Context, sample []byte) (*Response, error) {
	timestamp := c.now().Unix()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	fields := []struct{ key, value string }{
		{"access_key", c.accessKey},
		{"sample_bytes", strconv.Itoa(len(sample))},
		{"timestamp", strconv.FormatInt(timestamp, 10)},
		{"signature", Sign(c.accessKey, c.accessSecret, timestamp)},
		{"data_type", dataType},
		{"signature_version", signatureVersion},
	}
	for _, f := range fields {
		if err := writer.WriteField(f.key, f.value); err != nil {
			return nil, fmt.Errorf("failed to write form field %s: %w", f.key, err)
		}
	}

	part, err := writer.CreateFormFile("sample", "sample.wav")
	if err != nil {
		return nil, fmt.Errorf("failed to create sample part: %w", err)
	}
	if _, err := part.Write(sample); err != nil {
		return nil, fmt.Errorf("failed to write sample: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

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

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API request failed with status %d", httpResp.StatusCode)
	}

	var resp Response
	if err := json.Unmarshal(respData, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return &resp, nil
}

// parseResponse maps a decoded body to a guess. It returns (nil, nil) for
// no match and transient service errors.
func parseResponse(resp *Response) (*backends.Guess, error) {
	switch resp.Status.Code {
	case codeSuccess:
	case codeNoResult:
		return nil, nil
	case codeInvalidKey, codeInvalidSign:
		return nil, fmt.Errorf("acrcloud status %d %s: %w", resp.Status.Code, resp.Status.Msg, backends.ErrAuth)
	case codeLimitExceeded, codeQPSLimit:
		return nil, fmt.Errorf("acrcloud status %d %s: %w", resp.Status.Code, resp.Status.Msg, backends.ErrRateLimited)
	default:
		return nil, nil
	}

	if len(resp.Metadata.Music) == 0 {
		return nil, nil
	}
	music := resp.Metadata.Music[0]
	if music.Title == "" || len(music.Artists) == 0 || music.Artists[0].Name == "" {
		return nil, nil
	}

	album := music.Album.Name
	if album == "" {
		album = unknownAlbum
	}

	score := defaultScore
	switch {
	case music.Score != nil:
		score = *music.Score
	case resp.Status.Score != nil:
		score = *resp.Status.Score
	}

	guess := &backends.Guess{
		Artist:        music.Artists[0].Name,
		Title:         music.Title,
		Album:         album,
		Confidence:    clampConfidence(score / 100),
		HasConfidence: true,
		Source:        backends.SourceCommercial,
		Backend:       backends.NameACRCloud,
		Label:         music.Label,
	}
	if len(music.ReleaseDate) >= 4 {
		guess.Year = music.ReleaseDate[:4]
	}
	for _, g := range music.Genres {
		if g.Name != "" {
			guess.Genres = append(guess.Genres, g.Name)
		}
	}
	if music.Album.Cover != nil {
		guess.ArtworkURL = music.Album.Cover.Large
		if guess.ArtworkURL == "" {
			guess.ArtworkURL = music.Album.Cover.Medium
		}
	}

	return guess, nil
}

func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
