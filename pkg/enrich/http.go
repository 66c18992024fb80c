package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
)

// fetcher performs JSON GETs with a per-call timeout
type fetcher struct {
	client    *http.Client
	timeout   time.Duration
	userAgent string
}

func (f *fetcher) getJSON(ctx context.Context, url string, v interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

// pickBest returns the index of the first result whose artist contains or is
// contained in the query artist, else the most similar "artist title" by
// Jaro-Winkler. Ties go to the earlier result.
func pickBest(q Query, artists, titles []string) int {
	if len(artists) == 0 {
		return -1
	}

	want := strings.ToLower(strings.TrimSpace(q.Artist))
	for i, a := range artists {
		got := strings.ToLower(strings.TrimSpace(a))
		if want == "" || got == "" {
			continue
		}
		if strings.Contains(got, want) || strings.Contains(want, got) {
			return i
		}
	}

	query := strings.ToLower(q.Artist + " " + q.Title)
	best, bestScore := 0, -1.0
	jw := metrics.NewJaroWinkler()
	for i := range artists {
		score := strutil.Similarity(query, strings.ToLower(artists[i]+" "+titles[i]), jw)
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	return best
}

func yearOf(date string) string {
	if len(date) < 4 {
		return ""
	}
	return date[:4]
}
