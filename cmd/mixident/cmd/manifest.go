package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/eternnoir/mixident/pkg/manifest"
)

// manifestCmd represents the manifest command
var manifestCmd = &cobra.Command{
	Use:   "manifest [run-id]",
	Short: "List recorded runs, or the segments of one run",
	Long: `List the runs recorded in the manifest database, newest first. With a run id,
list every segment of that run; --json prints the full entries including the
raw backend answers.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runManifest,
}

func init() {
	rootCmd.AddCommand(manifestCmd)
	manifestCmd.Flags().Bool("json", false, "print entries as JSON")
	manifestCmd.Flags().Int("limit", 20, "number of runs to list (0 for all)")
}

func runManifest(cmd *cobra.Command, args []string) error {
	store, err := manifest.Open(appConfig.Manifest.Path)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	asJSON, _ := cmd.Flags().GetBool("json")

	if len(args) == 0 {
		runs, err := store.Runs()
		if err != nil {
			return fmt.Errorf("failed to list runs: %w", err)
		}
		if limit, _ := cmd.Flags().GetInt("limit"); limit > 0 && len(runs) > limit {
			runs = runs[:limit]
		}
		if asJSON {
			return writeJSON(runs)
		}
		if len(runs) == 0 {
			fmt.Println("No runs recorded")
			return nil
		}
		fmt.Println(renderTable(runHeaders, runRows(runs), []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight}))
		return nil
	}

	entries, err := store.Entries(args[0])
	if err != nil {
		return err
	}
	if asJSON {
		return writeJSON(entries)
	}
	fmt.Println(renderTable(entryHeaders, entryRows(entries), []columnAlignment{alignLeft, alignRight, alignRight}))
	return nil
}

func writeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
