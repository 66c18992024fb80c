package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Loader handles configuration loading and management
type Loader struct {
	configPath string
	viper      *viper.Viper
}

// NewLoader creates a new configuration loader
func NewLoader(configPath string) *Loader {
	return NewLoaderWithViper(viper.New(), configPath)
}

// NewLoaderWithViper wraps an existing viper instance, so flags bound by the
// CLI take part in the lookup.
func NewLoaderWithViper(v *viper.Viper, configPath string) *Loader {
	v.SetEnvPrefix("MIXIDENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		home, _ := os.UserHomeDir()
		v.AddConfigPath(home)
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/mixident")
		v.SetConfigName(".mixident")
		v.SetConfigType("yaml")
	}

	return &Loader{
		configPath: configPath,
		viper:      v,
	}
}

// Load reads and returns the configuration
func (l *Loader) Load() (*Config, error) {
	l.setDefaults()

	if err := l.viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !(l.configPath == "" && os.IsNotExist(err)) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := l.viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Save writes the configuration to file
func (l *Loader) Save(cfg *Config) error {
	configFile := l.configPath
	if configFile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		configFile = filepath.Join(home, ".mixident.yaml")
	}

	if err := os.MkdirAll(filepath.Dir(configFile), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	l.viper.Set("identify", cfg.Identify)
	l.viper.Set("acrcloud", cfg.ACRCloud)
	l.viper.Set("acoustid", cfg.AcoustID)
	l.viper.Set("shazam", cfg.Shazam)
	l.viper.Set("enrich", cfg.Enrich)
	l.viper.Set("split", cfg.Split)
	l.viper.Set("manifest", cfg.Manifest)
	l.viper.Set("watch", cfg.Watch)

	if err := l.viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GetConfigFile returns the path to the config file being used
func (l *Loader) GetConfigFile() string {
	return l.viper.ConfigFileUsed()
}

// setDefaults mirrors DefaultConfig so that env vars without a config file still unmarshal
func (l *Loader) setDefaults() {
	d := DefaultConfig()

	l.viper.SetDefault("identify.mode", d.Identify.Mode)
	l.viper.SetDefault("identify.fingerprint_sample_seconds", d.Identify.FingerprintSampleSeconds)
	l.viper.SetDefault("identify.disable_shazam", false)
	l.viper.SetDefault("identify.disable_local_bpm", false)
	l.viper.SetDefault("identify.workers", 0)
	l.viper.SetDefault("identify.min_segment_seconds", d.Identify.MinSegmentSeconds)
	l.viper.SetDefault("identify.temp_dir", d.Identify.TempDir)

	l.viper.SetDefault("acrcloud.host", "")
	l.viper.SetDefault("acrcloud.access_key", "")
	l.viper.SetDefault("acrcloud.access_secret", "")
	l.viper.SetDefault("acrcloud.timeout", d.ACRCloud.Timeout)

	l.viper.SetDefault("acoustid.api_key", "")
	l.viper.SetDefault("acoustid.fpcalc_path", d.AcoustID.FpcalcPath)
	l.viper.SetDefault("acoustid.timeout", d.AcoustID.Timeout)

	l.viper.SetDefault("shazam.songrec_path", d.Shazam.SongrecPath)
	l.viper.SetDefault("shazam.timeout", d.Shazam.Timeout)

	l.viper.SetDefault("enrich.lastfm_api_key", "")
	l.viper.SetDefault("enrich.timeout", d.Enrich.Timeout)
	l.viper.SetDefault("enrich.user_agent", d.Enrich.UserAgent)
	l.viper.SetDefault("enrich.cache_dir", "")
	l.viper.SetDefault("enrich.cache_ttl", d.Enrich.CacheTTL)

	l.viper.SetDefault("split.segment_minutes", 0)

	l.viper.SetDefault("manifest.path", d.Manifest.Path)
	l.viper.SetDefault("manifest.disabled", false)

	l.viper.SetDefault("watch.patterns", d.Watch.Patterns)
	l.viper.SetDefault("watch.recursive", d.Watch.Recursive)
	l.viper.SetDefault("watch.interval", d.Watch.Interval)
	l.viper.SetDefault("watch.stability_wait", d.Watch.StabilityWait)
	l.viper.SetDefault("watch.processing_timeout", d.Watch.ProcessingTimeout)
	l.viper.SetDefault("watch.output_dir", "")
	l.viper.SetDefault("watch.move_to_dir", "")
	l.viper.SetDefault("watch.history_db", d.Watch.HistoryDB)
	l.viper.SetDefault("watch.process_existing", d.Watch.ProcessExisting)
	l.viper.SetDefault("watch.retry_failed", d.Watch.RetryFailed)
	l.viper.SetDefault("watch.max_workers", d.Watch.MaxWorkers)

	l.viper.SetDefault("logging.level", d.Logging.Level)
	l.viper.SetDefault("logging.format", d.Logging.Format)
	l.viper.SetDefault("logging.output", d.Logging.Output)
	l.viper.SetDefault("logging.timestamp", d.Logging.Timestamp)
	l.viper.SetDefault("logging.caller", d.Logging.Caller)
	l.viper.SetDefault("logging.pretty_mode", d.Logging.PrettyMode)
}

// Normalize clamps values into their accepted ranges
func (c *Config) Normalize() {
	c.Identify.Mode = strings.ToLower(strings.TrimSpace(c.Identify.Mode))
	c.Identify.FingerprintSampleSeconds = ClampSampleSeconds(c.Identify.FingerprintSampleSeconds)
	if c.Identify.Workers < 0 {
		c.Identify.Workers = 0
	}
	if c.Identify.Workers > 4 {
		c.Identify.Workers = 4
	}
	c.ACRCloud.Host = strings.TrimSuffix(strings.TrimPrefix(strings.TrimPrefix(c.ACRCloud.Host, "https://"), "http://"), "/")
	if c.Enrich.Timeout <= 0 {
		c.Enrich.Timeout = DefaultConfig().Enrich.Timeout
	}
}

// Validate checks the configuration for values that cannot be repaired
func (c *Config) Validate() error {
	if c.Split.SegmentMinutes < 0 {
		return fmt.Errorf("split.segment_minutes cannot be negative")
	}
	if c.Identify.MinSegmentSeconds < 0 {
		return fmt.Errorf("identify.min_segment_seconds cannot be negative")
	}
	if c.Watch.MaxWorkers < 0 {
		return fmt.Errorf("watch.max_workers cannot be negative")
	}
	if (c.ACRCloud.AccessKey != "") != (c.ACRCloud.AccessSecret != "") {
		return fmt.Errorf("acrcloud.access_key and acrcloud.access_secret must be set together")
	}
	return nil
}
