package identify

import (
	"strings"

	"github.com/eternnoir/mixident/pkg/config"
)

// Mode selects how backends are combined for each segment
type Mode string

const (
	ModeACRCloud         Mode = "acrcloud"
	ModeMusicBrainzOnly  Mode = "musicbrainz_only"
	ModeDualBestMatch    Mode = "dual_best_match"
	ModeManualSearchOnly Mode = "manual_search_only"
)

var modeAliases = map[string]Mode{
	"acrcloud":           ModeACRCloud,
	"acr":                ModeACRCloud,
	"commercial":         ModeACRCloud,
	"musicbrainz_only":   ModeMusicBrainzOnly,
	"musicbrainz":        ModeMusicBrainzOnly,
	"mb_only":            ModeMusicBrainzOnly,
	"mb":                 ModeMusicBrainzOnly,
	"dual_best_match":    ModeDualBestMatch,
	"dual":               ModeDualBestMatch,
	"best":               ModeDualBestMatch,
	"best_match":         ModeDualBestMatch,
	"manual_search_only": ModeManualSearchOnly,
	"manual":             ModeManualSearchOnly,
	"manual_only":        ModeManualSearchOnly,
}

// ParseMode normalizes a configured mode name. Unknown values fall back to
// ModeACRCloud.
func ParseMode(s string) Mode {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.ReplaceAll(key, "-", "_")
	if mode, ok := modeAliases[key]; ok {
		return mode
	}
	return ModeACRCloud
}

// String returns the canonical mode name
func (m Mode) String() string {
	return string(m)
}

// Description returns a short human label
func (m Mode) Description() string {
	switch m {
	case ModeACRCloud:
		return "commercial primary"
	case ModeMusicBrainzOnly:
		return "open database only"
	case ModeDualBestMatch:
		return "dual best match"
	case ModeManualSearchOnly:
		return "manual only"
	default:
		return "unknown"
	}
}

// DefaultWorkers returns the worker pool size used when none is configured
func (m Mode) DefaultWorkers() int {
	switch m {
	case ModeACRCloud:
		return 4
	case ModeDualBestMatch:
		return 3
	default:
		return 2
	}
}

// Workers resolves the pool size; a configured value is clamped to 1..4
func Workers(mode Mode, configured int) int {
	if configured <= 0 {
		return mode.DefaultWorkers()
	}
	if configured > 4 {
		return 4
	}
	return configured
}

// Credentials summarizes which backends can be used
type Credentials struct {
	ACRCloud bool
	AcoustID bool
	Shazam   bool
}

// Any reports whether at least one backend is usable
func (c Credentials) Any() bool {
	return c.ACRCloud || c.AcoustID || c.Shazam
}

// CredentialsFromConfig derives the credential summary from configuration
func CredentialsFromConfig(cfg *config.Config) Credentials {
	return Credentials{
		ACRCloud: cfg.ACRCloud.Configured(),
		AcoustID: cfg.AcoustID.APIKey != "",
		Shazam:   !cfg.Identify.DisableShazam,
	}
}

// ResolveEffectiveMode downgrades the requested mode to one the available
// credentials can serve
func ResolveEffectiveMode(creds Credentials, requested Mode) Mode {
	if !creds.Any() {
		return ModeManualSearchOnly
	}

	openDB := creds.AcoustID || creds.Shazam

	switch requested {
	case ModeDualBestMatch:
		if creds.ACRCloud && creds.AcoustID {
			return ModeDualBestMatch
		}
		if creds.ACRCloud {
			return ModeACRCloud
		}
		if openDB {
			return ModeMusicBrainzOnly
		}
		return ModeManualSearchOnly

	case ModeMusicBrainzOnly:
		if openDB {
			return ModeMusicBrainzOnly
		}
		return ModeManualSearchOnly

	case ModeManualSearchOnly:
		return ModeManualSearchOnly

	default:
		if creds.ACRCloud {
			return ModeACRCloud
		}
		if openDB {
			return ModeMusicBrainzOnly
		}
		return ModeManualSearchOnly
	}
}
