package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/eternnoir/mixident/pkg/identify"
)

// modeCmd represents the mode command
var modeCmd = &cobra.Command{
	Use:   "mode",
	Short: "Show the requested and effective identification mode",
	Long: `Show which identification mode was requested, which mode the configured
credentials allow, and which backends are available.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		creds := identify.CredentialsFromConfig(appConfig)
		requested := identify.ParseMode(appConfig.Identify.Mode)
		effective := identify.ResolveEffectiveMode(creds, requested)

		fmt.Printf("Requested mode: %s\n", requested)
		fmt.Printf("Effective mode: %s\n", effective)
		fmt.Printf("  %s\n", effective.Description())
		fmt.Printf("Workers: %d\n\n", identify.Workers(effective, appConfig.Identify.Workers))

		rows := [][]string{
			{"ACRCloud", yesNo(creds.ACRCloud), "acrcloud, dual_best_match"},
			{"AcoustID", yesNo(creds.AcoustID), "musicbrainz_only, dual_best_match"},
			{"Shazam (songrec)", yesNo(creds.Shazam), "consumer fallback"},
			{"Last.fm", yesNo(appConfig.Enrich.LastFMAPIKey != ""), "genre tags"},
		}
		fmt.Println(renderTable([]string{"Backend", "Available", "Used for"}, rows, nil))

		if requested != effective {
			fmt.Println("\nThe requested mode needs credentials that are not configured.")
		}
	},
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func init() {
	rootCmd.AddCommand(modeCmd)
}
