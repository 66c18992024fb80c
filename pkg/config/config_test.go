package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestClampSampleSeconds(t *testing.T) {
	tests := []struct {
		name string
		in   int
		want int
	}{
		{"unset uses default", 0, 12},
		{"below minimum", 3, 8},
		{"minimum", 8, 8},
		{"in range", 20, 20},
		{"maximum", 45, 45},
		{"above maximum", 90, 45},
		{"negative", -5, 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClampSampleSeconds(tt.in); got != tt.want {
				t.Errorf("ClampSampleSeconds(%d) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestSampleDuration(t *testing.T) {
	cfg := IdentifyConfig{FingerprintSampleSeconds: 60}
	if got := cfg.SampleDuration(); got != 45*time.Second {
		t.Errorf("SampleDuration() = %v, want 45s", got)
	}
}

func TestACRCloudConfigured(t *testing.T) {
	tests := []struct {
		name string
		cfg  ACRCloudConfig
		want bool
	}{
		{"empty", ACRCloudConfig{}, false},
		{"missing secret", ACRCloudConfig{Host: "h", AccessKey: "k"}, false},
		{"complete", ACRCloudConfig{Host: "h", AccessKey: "k", AccessSecret: "s"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.Configured(); got != tt.want {
				t.Errorf("Configured() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLoaderReadsFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mixident.yaml")
	content := `
identify:
  mode: dual_best_match
  fingerprint_sample_seconds: 100
acrcloud:
  host: https://identify-eu-west-1.acrcloud.com/
  access_key: key
  access_secret: secret
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("MIXIDENT_ACOUSTID_API_KEY", "from-env")

	cfg, err := NewLoader(path).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Identify.Mode != "dual_best_match" {
		t.Errorf("mode = %q", cfg.Identify.Mode)
	}
	if cfg.Identify.FingerprintSampleSeconds != 45 {
		t.Errorf("sample seconds = %d, want clamped 45", cfg.Identify.FingerprintSampleSeconds)
	}
	if cfg.ACRCloud.Host != "identify-eu-west-1.acrcloud.com" {
		t.Errorf("host = %q", cfg.ACRCloud.Host)
	}
	if cfg.AcoustID.APIKey != "from-env" {
		t.Errorf("acoustid key = %q, want from-env", cfg.AcoustID.APIKey)
	}
	if cfg.Enrich.Timeout != 5*time.Second {
		t.Errorf("enrich timeout = %v, want default 5s", cfg.Enrich.Timeout)
	}
}

func TestValidateRejectsHalfCredentials(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ACRCloud.AccessKey = "only-key"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for access key without secret")
	}
}

func TestSplitEvery(t *testing.T) {
	tests := []struct {
		minutes float64
		want    time.Duration
	}{
		{0, 0},
		{-1, 0},
		{5, 5 * time.Minute},
		{2.5, 150 * time.Second},
	}

	for _, tt := range tests {
		if got := (SplitConfig{SegmentMinutes: tt.minutes}).Every(); got != tt.want {
			t.Errorf("Every(%v) = %v, want %v", tt.minutes, got, tt.want)
		}
	}
}
