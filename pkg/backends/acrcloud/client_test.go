package acrcloud

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/eternnoir/mixident/pkg/audio"
	"github.com/eternnoir/mixident/pkg/backends"
)

func writeSample(t *testing.T) *audio.Sample {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sample.wav")
	if err := os.WriteFile(path, []byte("RIFFfakewave"), 0o644); err != nil {
		t.Fatal(err)
	}
	return &audio.Sample{Path: path}
}

func TestSign(t *testing.T) {
	a := Sign("key", "secret", 1700000000)
	b := Sign("key", "secret", 1700000000)
	if a != b {
		t.Error("Sign() is not deterministic")
	}
	if a == Sign("key", "other", 1700000000) {
		t.Error("Sign() ignores the secret")
	}
	if a == Sign("key", "secret", 1700000001) {
		t.Error("Sign() ignores the timestamp")
	}
}

func TestIdentifySendsSignedForm(t *testing.T) {
	fixed := time.Unix(1700000000, 0)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/identify" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("ParseMultipartForm() error = %v", err)
		}

		want := map[string]string{
			"access_key":        "key",
			"sample_bytes":      strconv.Itoa(len("RIFFfakewave")),
			"timestamp":         "1700000000",
			"signature":         Sign("key", "secret", 1700000000),
			"data_type":         "audio",
			"signature_version": "1",
		}
		for k, v := range want {
			if got := r.FormValue(k); got != v {
				t.Errorf("form %s = %q, want %q", k, got, v)
			}
		}

		f, _, err := r.FormFile("sample")
		if err != nil {
			t.Fatalf("FormFile() error = %v", err)
		}
		data, _ := io.ReadAll(f)
		if string(data) != "RIFFfakewave" {
			t.Errorf("sample = %q", data)
		}

		_, _ = io.WriteString(w, `{
			"status": {"code": 0, "msg": "Success"},
			"metadata": {"music": [{
				"title": "Strobe",
				"score": 92,
				"artists": [{"name": "deadmau5"}, {"name": "other"}],
				"album": {"name": "For Lack of a Better Name", "cover": {"medium": "http://m", "large": "http://l"}},
				"label": "mau5trap",
				"release_date": "2009-09-22"
			}]}
		}`)
	}))
	defer server.Close()

	client := New("identify.example", "key", "secret",
		WithBaseURL(server.URL),
		WithClock(func() time.Time { return fixed }),
	)

	guess, err := client.Identify(context.Background(), writeSample(t))
	if err != nil {
		t.Fatalf("Identify() error = %v", err)
	}
	if guess == nil {
		t.Fatal("Identify() = nil, want match")
	}

	if guess.Artist != "deadmau5" || guess.Title != "Strobe" {
		t.Errorf("guess = %s - %s", guess.Artist, guess.Title)
	}
	if guess.Album != "For Lack of a Better Name" {
		t.Errorf("album = %q", guess.Album)
	}
	if guess.Confidence != 0.92 {
		t.Errorf("confidence = %v, want 0.92", guess.Confidence)
	}
	if guess.ArtworkURL != "http://l" {
		t.Errorf("artwork = %q, want large cover", guess.ArtworkURL)
	}
	if guess.Year != "2009" || guess.Label != "mau5trap" {
		t.Errorf("year/label = %q/%q", guess.Year, guess.Label)
	}
	if guess.Source != backends.SourceCommercial || guess.Backend != "ACRCloud" {
		t.Errorf("source/backend = %v/%v", guess.Source, guess.Backend)
	}
}

func TestParseResponse(t *testing.T) {
	score := func(v float64) *float64 { return &v }
	match := Metadata{Music: []Music{{Title: "T", Artists: []Artist{{Name: "A"}}}}}
	scored := func(v float64) Metadata {
		return Metadata{Music: []Music{{Title: "T", Artists: []Artist{{Name: "A"}}, Score: score(v)}}}
	}

	tests := []struct {
		name      string
		resp      Response
		wantErr   error
		wantGuess bool
		wantConf  float64
		wantAlbum string
	}{
		{"match without score uses default", Response{Status: Status{Code: 0}, Metadata: match}, nil, true, 0.85, "Unknown Album"},
		{"status score", Response{Status: Status{Code: 0, Score: score(70)}, Metadata: match}, nil, true, 0.70, "Unknown Album"},
		{"match score wins over status score", Response{Status: Status{Code: 0, Score: score(70)}, Metadata: scored(64)}, nil, true, 0.64, "Unknown Album"},
		{"match score above 100 is clamped", Response{Status: Status{Code: 0}, Metadata: scored(120)}, nil, true, 1, "Unknown Album"},
		{"negative match score is clamped", Response{Status: Status{Code: 0}, Metadata: scored(-5)}, nil, true, 0, "Unknown Album"},
		{"no result", Response{Status: Status{Code: 1001}}, nil, false, 0, ""},
		{"invalid key", Response{Status: Status{Code: 3001}}, backends.ErrAuth, false, 0, ""},
		{"invalid signature", Response{Status: Status{Code: 3014}}, backends.ErrAuth, false, 0, ""},
		{"limit exceeded", Response{Status: Status{Code: 3003}}, backends.ErrRateLimited, false, 0, ""},
		{"qps limit", Response{Status: Status{Code: 3015}}, backends.ErrRateLimited, false, 0, ""},
		{"unknown code", Response{Status: Status{Code: 2004}}, nil, false, 0, ""},
		{"success without music", Response{Status: Status{Code: 0}}, nil, false, 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			guess, err := parseResponse(&tt.resp)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("parseResponse() error = %v, want %v", err, tt.wantErr)
				}
			} else if err != nil {
				t.Fatalf("parseResponse() error = %v", err)
			}

			if (guess != nil) != tt.wantGuess {
				t.Fatalf("parseResponse() guess = %v, want match %v", guess, tt.wantGuess)
			}
			if guess == nil {
				return
			}
			if guess.Confidence != tt.wantConf {
				t.Errorf("confidence = %v, want %v", guess.Confidence, tt.wantConf)
			}
			if guess.Album != tt.wantAlbum {
				t.Errorf("album = %q, want %q", guess.Album, tt.wantAlbum)
			}
		})
	}
}

func TestIdentifyAuthErrorPropagates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"status":{"code":3001,"msg":"Missing/Invalid Access Key"}}`)
	}))
	defer server.Close()

	client := New("h", "key", "secret", WithBaseURL(server.URL))
	guess, err := client.Identify(context.Background(), writeSample(t))
	if guess != nil || !errors.Is(err, backends.ErrAuth) {
		t.Errorf("Identify() = %v, %v; want nil, ErrAuth", guess, err)
	}
}

func TestIdentifyTransientFailuresAreNoMatch(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadGateway) }},
		{"bad json", func(w http.ResponseWriter, r *http.Request) { _, _ = io.WriteString(w, "{") }},
		{"slow", func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			client := New("h", "key", "secret", WithBaseURL(server.URL), WithTimeout(100*time.Millisecond))
			guess, err := client.Identify(context.Background(), writeSample(t))
			if guess != nil || err != nil {
				t.Errorf("Identify() = %v, %v; want nil, nil", guess, err)
			}
		})
	}
}

func TestIdentifyWithoutCredentialsWarnsOnce(t *testing.T) {
	notices := backends.NewNotices()
	client := New("", "", "", WithNotices(notices))

	for i := 0; i < 3; i++ {
		guess, err := client.Identify(context.Background(), writeSample(t))
		if guess != nil || err != nil {
			t.Fatalf("Identify() = %v, %v; want nil, nil", guess, err)
		}
	}
	if notices.Once("acrcloud.credentials") {
		t.Error("missing credential warning was never recorded")
	}
}
