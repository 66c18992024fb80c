package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/eternnoir/mixident/pkg/logger"
)

const (
	MinSampleSeconds     = 8
	MaxSampleSeconds     = 45
	DefaultSampleSeconds = 12
)

// Config represents the application configuration
type Config struct {
	// Identification behaviour
	Identify IdentifyConfig `yaml:"identify" mapstructure:"identify"`

	// Backend credentials and tools
	ACRCloud ACRCloudConfig `yaml:"acrcloud" mapstructure:"acrcloud"`
	AcoustID AcoustIDConfig `yaml:"acoustid" mapstructure:"acoustid"`
	Shazam   ShazamConfig   `yaml:"shazam" mapstructure:"shazam"`

	// Metadata enrichment
	Enrich EnrichConfig `yaml:"enrich" mapstructure:"enrich"`

	// Segmenting of long inputs
	Split SplitConfig `yaml:"split" mapstructure:"split"`

	// Audit trail of every run
	Manifest ManifestConfig `yaml:"manifest" mapstructure:"manifest"`

	// Watch mode
	Watch WatchConfig `yaml:"watch" mapstructure:"watch"`

	Logging logger.Config `yaml:"logging" mapstructure:"logging"`
}

// IdentifyConfig controls mode selection and the per-segment pipeline
type IdentifyConfig struct {
	// acrcloud, musicbrainz_only, dual_best_match, manual_search_only
	Mode string `yaml:"mode" mapstructure:"mode"`

	// Length of the sample submitted to fingerprint backends, clamped to 8..45
	FingerprintSampleSeconds int `yaml:"fingerprint_sample_seconds" mapstructure:"fingerprint_sample_seconds"`

	DisableShazam   bool `yaml:"disable_shazam" mapstructure:"disable_shazam"`
	DisableLocalBPM bool `yaml:"disable_local_bpm" mapstructure:"disable_local_bpm"`

	// 0 picks a size from the effective mode
	Workers int `yaml:"workers" mapstructure:"workers"`

	// Segments shorter than this are skipped as too short
	MinSegmentSeconds int `yaml:"min_segment_seconds" mapstructure:"min_segment_seconds"`

	TempDir string `yaml:"temp_dir" mapstructure:"temp_dir"`
}

// ACRCloudConfig holds commercial backend credentials
type ACRCloudConfig struct {
	Host         string        `yaml:"host" mapstructure:"host"`
	AccessKey    string        `yaml:"access_key" mapstructure:"access_key"`
	AccessSecret string        `yaml:"access_secret" mapstructure:"access_secret"`
	Timeout      time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// Configured reports whether a full credential set is present
func (c ACRCloudConfig) Configured() bool {
	return c.Host != "" && c.AccessKey != "" && c.AccessSecret != ""
}

// AcoustIDConfig holds open database settings
type AcoustIDConfig struct {
	APIKey     string        `yaml:"api_key" mapstructure:"api_key"`
	FpcalcPath string        `yaml:"fpcalc_path" mapstructure:"fpcalc_path"`
	Timeout    time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// ShazamConfig holds consumer recognition settings
type ShazamConfig struct {
	SongrecPath string        `yaml:"songrec_path" mapstructure:"songrec_path"`
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// EnrichConfig contains catalog lookup settings
type EnrichConfig struct {
	LastFMAPIKey string        `yaml:"lastfm_api_key" mapstructure:"lastfm_api_key"`
	Timeout      time.Duration `yaml:"timeout" mapstructure:"timeout"`
	UserAgent    string        `yaml:"user_agent" mapstructure:"user_agent"`

	// Response cache, disabled when empty
	CacheDir string        `yaml:"cache_dir" mapstructure:"cache_dir"`
	CacheTTL time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`
}

// SplitConfig controls fixed-length segmenting of long files
type SplitConfig struct {
	// 0 treats every input file as a single segment
	SegmentMinutes float64 `yaml:"segment_minutes" mapstructure:"segment_minutes"`
}

// ManifestConfig contains the manifest database location
type ManifestConfig struct {
	Path     string `yaml:"path" mapstructure:"path"`
	Disabled bool   `yaml:"disabled" mapstructure:"disabled"`
}

// WatchConfig contains watch mode settings
type WatchConfig struct {
	Patterns          []string      `yaml:"patterns" mapstructure:"patterns"`
	Recursive         bool          `yaml:"recursive" mapstructure:"recursive"`
	Interval          time.Duration `yaml:"interval" mapstructure:"interval"`
	StabilityWait     time.Duration `yaml:"stability_wait" mapstructure:"stability_wait"`
	ProcessingTimeout time.Duration `yaml:"processing_timeout" mapstructure:"processing_timeout"`
	OutputDir         string        `yaml:"output_dir" mapstructure:"output_dir"`
	MoveToDir         string        `yaml:"move_to_dir" mapstructure:"move_to_dir"`
	HistoryDB         string        `yaml:"history_db" mapstructure:"history_db"`
	ProcessExisting   bool          `yaml:"process_existing" mapstructure:"process_existing"`
	RetryFailed       bool          `yaml:"retry_failed" mapstructure:"retry_failed"`
	MaxWorkers        int           `yaml:"max_workers" mapstructure:"max_workers"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Identify: IdentifyConfig{
			Mode:                     "acrcloud",
			FingerprintSampleSeconds: DefaultSampleSeconds,
			MinSegmentSeconds:        10,
			TempDir:                  filepath.Join(os.TempDir(), "mixident"),
		},
		ACRCloud: ACRCloudConfig{
			Timeout: 15 * time.Second,
		},
		AcoustID: AcoustIDConfig{
			FpcalcPath: "fpcalc",
			Timeout:    15 * time.Second,
		},
		Shazam: ShazamConfig{
			SongrecPath: "songrec",
			Timeout:     30 * time.Second,
		},
		Enrich: EnrichConfig{
			Timeout:   5 * time.Second,
			UserAgent: "mixident/0.1 ( https://github.com/eternnoir/mixident )",
			CacheTTL:  7 * 24 * time.Hour,
		},
		Manifest: ManifestConfig{
			Path: ".mixident-manifest.db",
		},
		Watch: WatchConfig{
			Patterns:          []string{"*.mp3", "*.wav", "*.flac", "*.m4a"},
			Interval:          10 * time.Second,
			StabilityWait:     5 * time.Second,
			ProcessingTimeout: 2 * time.Hour,
			HistoryDB:         ".mixident-watch.db",
			ProcessExisting:   true,
			MaxWorkers:        1,
		},
		Logging: *logger.DefaultConfig(),
	}
}

// ClampSampleSeconds bounds a configured sample length to the accepted window
func ClampSampleSeconds(seconds int) int {
	if seconds == 0 {
		return DefaultSampleSeconds
	}
	if seconds < MinSampleSeconds {
		return MinSampleSeconds
	}
	if seconds > MaxSampleSeconds {
		return MaxSampleSeconds
	}
	return seconds
}

// SampleDuration returns the clamped fingerprint sample length
func (c IdentifyConfig) SampleDuration() time.Duration {
	return time.Duration(ClampSampleSeconds(c.FingerprintSampleSeconds)) * time.Second
}

// MinSegment returns the shortest segment that is submitted for identification
func (c IdentifyConfig) MinSegment() time.Duration {
	if c.MinSegmentSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.MinSegmentSeconds) * time.Second
}

// Every returns the segment length, or 0 when inputs are not split
func (c SplitConfig) Every() time.Duration {
	if c.SegmentMinutes <= 0 {
		return 0
	}
	return time.Duration(c.SegmentMinutes * float64(time.Minute))
}
