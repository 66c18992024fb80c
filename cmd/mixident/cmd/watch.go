package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/eternnoir/mixident/pkg/logger"
	"github.com/eternnoir/mixident/pkg/watcher"
)

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch [directory]",
	Short: "Watch a directory and identify new mixes as they arrive",
	Long: `Watch a directory for new or modified audio files and identify them.

Every file is identified once per content: renaming or copying a mix that was
already handled does not trigger another run. A JSON report is written next to
each file, or into --output-dir.

Examples:
  # Watch the current directory
  mixident watch .

  # Watch recursively and move handled files away
  mixident watch ./inbox -r --move-to ./done

  # Identify what is already there and exit
  mixident watch ./batch --once`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringSlice("pattern", nil, "file patterns to watch (comma-separated)")
	watchCmd.Flags().BoolP("recursive", "r", false, "watch subdirectories recursively")
	watchCmd.Flags().Duration("interval", 0, "rescan interval for missed files")
	watchCmd.Flags().Bool("once", false, "process existing files and exit")
	watchCmd.Flags().Bool("no-existing", false, "skip files that exist on startup")
	watchCmd.Flags().Duration("stability-wait", 0, "time a file must stay unchanged before processing")
	watchCmd.Flags().Duration("processing-timeout", 0, "maximum time to identify a single file")
	watchCmd.Flags().Int("max-workers", 0, "files identified at the same time")
	watchCmd.Flags().Float64("segment-minutes", 0, "cut files into segments of this length")
	watchCmd.Flags().String("output-dir", "", "directory for JSON reports")
	watchCmd.Flags().String("move-to", "", "move identified files to this directory")
	watchCmd.Flags().String("history-db", "", "path to the history database")
	watchCmd.Flags().Bool("retry-failed", false, "retry files that failed before")

	_ = viper.BindPFlag("watch.patterns", watchCmd.Flags().Lookup("pattern"))
	_ = viper.BindPFlag("watch.recursive", watchCmd.Flags().Lookup("recursive"))
	_ = viper.BindPFlag("watch.interval", watchCmd.Flags().Lookup("interval"))
	_ = viper.BindPFlag("watch.stability_wait", watchCmd.Flags().Lookup("stability-wait"))
	_ = viper.BindPFlag("watch.processing_timeout", watchCmd.Flags().Lookup("processing-timeout"))
	_ = viper.BindPFlag("watch.max_workers", watchCmd.Flags().Lookup("max-workers"))
	_ = viper.BindPFlag("watch.output_dir", watchCmd.Flags().Lookup("output-dir"))
	_ = viper.BindPFlag("watch.move_to_dir", watchCmd.Flags().Lookup("move-to"))
	_ = viper.BindPFlag("watch.history_db", watchCmd.Flags().Lookup("history-db"))
	_ = viper.BindPFlag("watch.retry_failed", watchCmd.Flags().Lookup("retry-failed"))
}

func runWatch(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("watch")
	cfg := appConfig

	watchDir := args[0]
	info, err := os.Stat(watchDir)
	if err != nil {
		return fmt.Errorf("invalid watch directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch path must be a directory")
	}

	segmentEvery := cfg.Split.Every()
	if cmd.Flags().Changed("segment-minutes") {
		minutes, _ := cmd.Flags().GetFloat64("segment-minutes")
		segmentEvery = time.Duration(minutes * float64(time.Minute))
	}

	wcfg := watcher.ConfigFromSettings(watchDir, cfg.Watch, segmentEvery)
	if noExisting, _ := cmd.Flags().GetBool("no-existing"); noExisting {
		wcfg.ProcessExisting = false
	}
	once, _ := cmd.Flags().GetBool("once")
	if once {
		wcfg.ProcessExisting = true
	}

	a, err := buildApp(cfg, true)
	if err != nil {
		log.Error().Err(err).Msg("Failed to set up identification")
		return err
	}
	defer a.Close()

	fw, err := watcher.New(wcfg, a.runner)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create file watcher")
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	fw.SetProgressCallback(func(event *watcher.Event) {
		switch event.Type {
		case watcher.EventFound:
			fmt.Printf("Found: %s\n", event.Path)
		case watcher.EventProcessing:
			fmt.Printf("Identifying: %s\n", event.Path)
		case watcher.EventCompleted:
			fmt.Printf("Done: %s - %s\n", event.Path, event.Message)
			if event.Result != nil && len(event.Result.Outcomes) > 0 {
				fmt.Println(renderTable(outcomeHeaders, outcomeRows(event.Result.Outcomes), outcomeAligns))
			}
		case watcher.EventFailed:
			fmt.Printf("Failed: %s - %v\n", event.Path, event.Err)
		case watcher.EventSkipped:
			log.Debug().Str("file", event.Path).Str("reason", event.Message).Msg("Skipped")
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("directory", watchDir).Str("mode", a.effective.String()).Msg("Starting watch mode")
	if err := fw.Start(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to start file watcher")
		return fmt.Errorf("failed to start file watcher: %w", err)
	}

	if once {
		log.Info().Msg("Running in once mode, will exit after processing existing files")
		select {
		case <-fw.InitialDone():
		case <-ctx.Done():
		}
	} else {
		fmt.Printf("\nWatching directory: %s\n", watchDir)
		if wcfg.Recursive {
			fmt.Println("   Recursive: yes")
		}
		fmt.Printf("   Patterns: %s\n", strings.Join(wcfg.Patterns, ", "))
		fmt.Printf("   Workers: %d\n", wcfg.MaxWorkers)
		if wcfg.OutputDir != "" {
			fmt.Printf("   Output: %s\n", wcfg.OutputDir)
		}
		if wcfg.MoveToDir != "" {
			fmt.Printf("   Move to: %s\n", wcfg.MoveToDir)
		}
		fmt.Println("\nPress Ctrl+C to stop watching...")

		go displayStats(ctx, fw)
		<-ctx.Done()
		fmt.Println("\nShutting down...")
	}

	if err := fw.Stop(); err != nil {
		log.Error().Err(err).Msg("Error stopping file watcher")
		return fmt.Errorf("error stopping file watcher: %w", err)
	}

	stats := fw.Stats()
	fmt.Printf("\nFinal statistics:\n")
	fmt.Printf("   Files identified: %d\n", stats.Completed)
	fmt.Printf("   Tracks named: %d\n", stats.Identified)
	fmt.Printf("   Failed: %d\n", stats.Failed)
	fmt.Printf("   Skipped: %d\n", stats.Skipped)
	fmt.Printf("   Duration: %v\n", time.Since(stats.StartTime).Round(time.Second))

	return nil
}

func displayStats(ctx context.Context, w watcher.Watcher) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := w.Stats()
			if stats.Completed > 0 || stats.Failed > 0 {
				fmt.Printf("Stats - Files: %d | Tracks: %d | Failed: %d | In progress: %d\n",
					stats.Completed, stats.Identified, stats.Failed, stats.InProgress)
			}
		}
	}
}
