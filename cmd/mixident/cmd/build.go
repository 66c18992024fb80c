package cmd

import (
	"fmt"
	"os"

	"github.com/eternnoir/mixident/pkg/audio"
	"github.com/eternnoir/mixident/pkg/backends"
	"github.com/eternnoir/mixident/pkg/backends/acoustid"
	"github.com/eternnoir/mixident/pkg/backends/acrcloud"
	"github.com/eternnoir/mixident/pkg/backends/shazam"
	"github.com/eternnoir/mixident/pkg/bpm"
	"github.com/eternnoir/mixident/pkg/cache"
	"github.com/eternnoir/mixident/pkg/config"
	"github.com/eternnoir/mixident/pkg/enrich"
	"github.com/eternnoir/mixident/pkg/identify"
	"github.com/eternnoir/mixident/pkg/logger"
	"github.com/eternnoir/mixident/pkg/manifest"
	"github.com/eternnoir/mixident/pkg/ratelimit"
	"github.com/eternnoir/mixident/pkg/session"
)

// app holds everything one command invocation needs
type app struct {
	requested identify.Mode
	effective identify.Mode
	runner    *session.SessionImpl
	manifest  *manifest.Store
	closers   []func() error
}

// buildApp wires backends, enrichment and the pipeline from cfg
func buildApp(cfg *config.Config, withManifest bool) (*app, error) {
	log := logger.WithComponent("setup")
	a := &app{}

	if err := os.MkdirAll(cfg.Identify.TempDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}

	a.requested = identify.ParseMode(cfg.Identify.Mode)
	a.effective = identify.ResolveEffectiveMode(identify.CredentialsFromConfig(cfg), a.requested)
	if a.effective != a.requested {
		log.Warn().
			Str("requested", a.requested.String()).
			Str("effective", a.effective.String()).
			Msg("Requested mode is not available with the configured credentials")
	}

	gates := ratelimit.DefaultGates()
	notices := backends.NewNotices()

	enrichOptions := []enrich.Option{
		enrich.WithLastFMKey(cfg.Enrich.LastFMAPIKey),
		enrich.WithUserAgent(cfg.Enrich.UserAgent),
		enrich.WithTimeout(cfg.Enrich.Timeout),
		enrich.WithMusicBrainzGate(gates.MusicBrainz),
	}
	if cfg.Enrich.CacheDir != "" {
		store, err := cache.Open(cfg.Enrich.CacheDir, cfg.Enrich.CacheTTL)
		if err != nil {
			log.Warn().Err(err).Str("cache_dir", cfg.Enrich.CacheDir).Msg("Enrichment cache unavailable, continuing without it")
		} else {
			enrichOptions = append(enrichOptions, enrich.WithCache(store))
			a.closers = append(a.closers, store.Close)
		}
	}
	enricher := enrich.New(enrichOptions...)

	routerOptions := []identify.RouterOption{
		identify.WithACRCloud(acrcloud.New(
			cfg.ACRCloud.Host, cfg.ACRCloud.AccessKey, cfg.ACRCloud.AccessSecret,
			acrcloud.WithTimeout(cfg.ACRCloud.Timeout),
			acrcloud.WithGate(gates.ACRCloud),
			acrcloud.WithNotices(notices),
		)),
		identify.WithAcoustID(acoustid.New(
			cfg.AcoustID.APIKey,
			acoustid.WithFingerprinter(acoustid.NewFpcalc(cfg.AcoustID.FpcalcPath)),
			acoustid.WithTimeout(cfg.AcoustID.Timeout),
			acoustid.WithGate(gates.AcoustID),
			acoustid.WithNotices(notices),
		)),
		identify.WithSearcher(enricher),
		identify.WithRouterNotices(notices),
	}
	if !cfg.Identify.DisableShazam {
		routerOptions = append(routerOptions, identify.WithShazam(shazam.New(
			cfg.Shazam.SongrecPath,
			shazam.WithTimeout(cfg.Shazam.Timeout),
		)))
	}
	router := identify.NewRouter(a.effective, routerOptions...)

	extractor := audio.NewExtractor(cfg.Identify.TempDir)
	pipeline := identify.NewPipeline(router, extractor, enricher, bpm.NewEstimator(extractor), identify.OptionsFromConfig(cfg))

	sessionOptions := []session.Option{}
	if withManifest && !cfg.Manifest.Disabled {
		store, err := manifest.Open(cfg.Manifest.Path)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to open manifest: %w", err)
		}
		a.manifest = store
		a.closers = append(a.closers, store.Close)
		sessionOptions = append(sessionOptions, session.WithRecorder(store))
	}
	a.runner = session.New(audio.NewProcessor(), pipeline, sessionOptions...)

	log.Debug().Str("pipeline", pipeline.String()).Msg("Pipeline ready")
	return a, nil
}

// Close releases the databases opened by buildApp
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Warn().Err(err).Msg("Failed to close resource")
		}
	}
	a.closers = nil
}
