package identify

import (
	"testing"

	"github.com/eternnoir/mixident/pkg/config"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		input string
		want  Mode
	}{
		{"acrcloud", ModeACRCloud},
		{"commercial", ModeACRCloud},
		{" ACR ", ModeACRCloud},
		{"musicbrainz_only", ModeMusicBrainzOnly},
		{"mb_only", ModeMusicBrainzOnly},
		{"mb-only", ModeMusicBrainzOnly},
		{"dual", ModeDualBestMatch},
		{"best", ModeDualBestMatch},
		{"Dual_Best_Match", ModeDualBestMatch},
		{"manual", ModeManualSearchOnly},
		{"manual_search_only", ModeManualSearchOnly},
		{"", ModeACRCloud},
		{"something else", ModeACRCloud},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseMode(tt.input); got != tt.want {
				t.Errorf("ParseMode(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestResolveEffectiveMode(t *testing.T) {
	all := Credentials{ACRCloud: true, AcoustID: true, Shazam: true}
	none := Credentials{}
	acrOnly := Credentials{ACRCloud: true}
	acoustidOnly := Credentials{AcoustID: true}
	shazamOnly := Credentials{Shazam: true}
	acrShazam := Credentials{ACRCloud: true, Shazam: true}

	tests := []struct {
		name      string
		creds     Credentials
		requested Mode
		want      Mode
	}{
		{"nothing configured", none, ModeDualBestMatch, ModeManualSearchOnly},
		{"nothing configured acr", none, ModeACRCloud, ModeManualSearchOnly},
		{"dual with everything", all, ModeDualBestMatch, ModeDualBestMatch},
		{"dual without acoustid falls to acr", acrShazam, ModeDualBestMatch, ModeACRCloud},
		{"dual without acr falls to open db", acoustidOnly, ModeDualBestMatch, ModeMusicBrainzOnly},
		{"dual with only shazam", shazamOnly, ModeDualBestMatch, ModeMusicBrainzOnly},
		{"acr with credentials", acrOnly, ModeACRCloud, ModeACRCloud},
		{"acr without credentials", acoustidOnly, ModeACRCloud, ModeMusicBrainzOnly},
		{"acr without credentials shazam", shazamOnly, ModeACRCloud, ModeMusicBrainzOnly},
		{"open db with acoustid", acoustidOnly, ModeMusicBrainzOnly, ModeMusicBrainzOnly},
		{"open db with shazam", shazamOnly, ModeMusicBrainzOnly, ModeMusicBrainzOnly},
		{"open db with only acr", acrOnly, ModeMusicBrainzOnly, ModeManualSearchOnly},
		{"manual stays manual", all, ModeManualSearchOnly, ModeManualSearchOnly},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveEffectiveMode(tt.creds, tt.requested); got != tt.want {
				t.Errorf("ResolveEffectiveMode() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWorkers(t *testing.T) {
	tests := []struct {
		mode       Mode
		configured int
		want       int
	}{
		{ModeDualBestMatch, 0, 3},
		{ModeMusicBrainzOnly, 0, 2},
		{ModeACRCloud, 0, 4},
		{ModeManualSearchOnly, 0, 2},
		{ModeACRCloud, 1, 1},
		{ModeACRCloud, 9, 4},
		{ModeDualBestMatch, -3, 3},
	}

	for _, tt := range tests {
		if got := Workers(tt.mode, tt.configured); got != tt.want {
			t.Errorf("Workers(%s, %d) = %d, want %d", tt.mode, tt.configured, got, tt.want)
		}
	}
}

func TestCredentialsFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.ACRCloud.Host = "identify-eu-west-1.acrcloud.com"
	cfg.ACRCloud.AccessKey = "k"
	cfg.Identify.DisableShazam = true

	creds := CredentialsFromConfig(cfg)
	if creds.ACRCloud {
		t.Error("ACRCloud without secret reported configured")
	}
	if creds.AcoustID || creds.Shazam || creds.Any() {
		t.Errorf("creds = %+v, want none", creds)
	}

	cfg.ACRCloud.AccessSecret = "s"
	cfg.AcoustID.APIKey = "a"
	cfg.Identify.DisableShazam = false
	if got := CredentialsFromConfig(cfg); got != (Credentials{ACRCloud: true, AcoustID: true, Shazam: true}) {
		t.Errorf("creds = %+v", got)
	}
}
