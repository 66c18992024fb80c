package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/eternnoir/mixident/pkg/identify"
	"github.com/eternnoir/mixident/pkg/logger"
	"github.com/eternnoir/mixident/pkg/session"
)

// identifyCmd represents the identify command
var identifyCmd = &cobra.Command{
	Use:   "identify [files...]",
	Short: "Identify the tracks in audio files",
	Long: `Identify the tracks in one or more audio files.

Each file is cut into segments (or kept whole), a short sample from the middle
of every segment is fingerprinted, and the answers of all backends are merged
with catalog metadata.

Examples:
  # Identify a folder of single tracks
  mixident identify ~/Music/unsorted/*.mp3

  # Identify a two hour mix in five minute segments
  mixident identify friday.flac --segment-minutes 5

  # Use both fingerprint services and keep a JSON report
  mixident identify set.mp3 --mode dual_best_match -o set.json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIdentify,
}

func init() {
	rootCmd.AddCommand(identifyCmd)

	identifyCmd.Flags().StringP("output", "o", "", "write the full result as JSON to this file")
	identifyCmd.Flags().Float64("segment-minutes", 0, "cut inputs into segments of this length (0 keeps whole files)")
	identifyCmd.Flags().Int("workers", 0, "concurrent segments (0 picks from the mode, max 4)")
	identifyCmd.Flags().Int("sample-seconds", 0, "fingerprint sample length in seconds (8-45)")
	identifyCmd.Flags().Bool("no-shazam", false, "skip the songrec backend")
	identifyCmd.Flags().Bool("no-bpm", false, "skip local BPM estimation")
	identifyCmd.Flags().Bool("no-manifest", false, "do not record this run in the manifest")
	identifyCmd.Flags().Bool("progress", true, "show progress while identifying")

	_ = viper.BindPFlag("split.segment_minutes", identifyCmd.Flags().Lookup("segment-minutes"))
	_ = viper.BindPFlag("identify.workers", identifyCmd.Flags().Lookup("workers"))
	_ = viper.BindPFlag("identify.fingerprint_sample_seconds", identifyCmd.Flags().Lookup("sample-seconds"))
	_ = viper.BindPFlag("identify.disable_shazam", identifyCmd.Flags().Lookup("no-shazam"))
	_ = viper.BindPFlag("identify.disable_local_bpm", identifyCmd.Flags().Lookup("no-bpm"))
}

func runIdentify(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("identify")
	cfg := appConfig

	noManifest, _ := cmd.Flags().GetBool("no-manifest")
	a, err := buildApp(cfg, !noManifest)
	if err != nil {
		log.Error().Err(err).Msg("Failed to set up identification")
		return err
	}
	defer a.Close()

	log.Info().
		Int("file_count", len(args)).
		Str("mode", a.effective.String()).
		Msg("Starting identification")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	outputPath, _ := cmd.Flags().GetString("output")
	req := &session.Request{
		Paths:      args,
		OutputPath: outputPath,
		Options:    session.Options{SegmentEvery: cfg.Split.Every()},
	}

	var callback identify.ProgressCallback
	if showProgress, _ := cmd.Flags().GetBool("progress"); showProgress {
		callback = func(completed, total int, outcome *identify.Outcome) {
			label := outcome.Label()
			if label == "" {
				label = string(outcome.Status)
			}
			fmt.Fprintf(os.Stderr, "\r[%d/%d] %s #%d: %s\033[K",
				completed, total, filepath.Base(outcome.Segment.SourcePath), outcome.Segment.Index+1, label)
			if completed == total {
				fmt.Fprintln(os.Stderr)
			}
		}
	}

	startTime := time.Now()
	result, err := a.runner.RunWithProgress(ctx, req, callback)
	if err != nil && result == nil {
		log.Error().Err(err).Msg("Identification failed")
		return fmt.Errorf("identification failed: %w", err)
	}

	for _, f := range result.Files {
		if f.Error != "" {
			fmt.Fprintf(os.Stderr, "Skipped %s: %s\n", f.Path, f.Error)
		}
	}
	if len(result.Outcomes) > 0 {
		fmt.Println(renderTable(outcomeHeaders, outcomeRows(result.Outcomes), outcomeAligns))
	}

	fmt.Printf("Identified %d, unidentified %d, skipped %d in %v (mode %s)\n",
		result.Counts.Identified, result.Counts.Unidentified, result.Counts.Skipped,
		time.Since(startTime).Round(time.Second), a.effective)
	if result.RunID != "" {
		fmt.Printf("Run: %s\n", result.RunID)
	}
	if outputPath != "" && err == nil {
		fmt.Printf("Output: %s\n", outputPath)
	}

	switch {
	case errors.Is(err, context.Canceled):
		log.Warn().Msg("Identification interrupted")
		return nil
	case err != nil:
		log.Error().Err(err).Msg("Identification finished with errors")
		return err
	}
	return nil
}
