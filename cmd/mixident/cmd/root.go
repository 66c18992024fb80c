package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/eternnoir/mixident/pkg/config"
	"github.com/eternnoir/mixident/pkg/logger"
)

var (
	cfgFile string
	envFile string

	// appConfig is loaded once before any command runs
	appConfig *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "mixident",
	Short: "Identify the tracks in DJ mixes and loose audio files",
	Long: `mixident names the tracks in a mix by fingerprinting a short sample of every
segment against several recognition services and merging their answers with
catalog metadata from iTunes, Deezer, Last.fm and MusicBrainz.

Features:
- ACRCloud, AcoustID and Shazam (songrec) fingerprint backends
- Four identification modes with automatic downgrade on missing credentials
- Field-by-field merge with confidence scoring and source attribution
- Local BPM estimation when no catalog supplies a tempo
- Run manifest for auditing every decision
- Watch folders for new mixes`,
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: loadAppConfig,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.mixident.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file with API keys, ignored when missing")
	rootCmd.PersistentFlags().String("mode", "", "identification mode (acrcloud, musicbrainz_only, dual_best_match, manual_search_only)")
	rootCmd.PersistentFlags().String("temp-dir", "", "directory for temporary samples")

	rootCmd.PersistentFlags().String("log-level", "info", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "console", "log format (console, json)")
	rootCmd.PersistentFlags().String("log-output", "stderr", "log output (stdout, stderr, file path)")
	rootCmd.PersistentFlags().Bool("log-no-color", false, "disable colored log output")
	rootCmd.PersistentFlags().Bool("log-caller", false, "include caller information in logs")

	_ = viper.BindPFlag("identify.mode", rootCmd.PersistentFlags().Lookup("mode"))
	_ = viper.BindPFlag("identify.temp_dir", rootCmd.PersistentFlags().Lookup("temp-dir"))
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag("logging.output", rootCmd.PersistentFlags().Lookup("log-output"))
	_ = viper.BindPFlag("logging.caller", rootCmd.PersistentFlags().Lookup("log-caller"))
}

// loadAppConfig reads .env, the config file and the environment, then
// initializes the logger
func loadAppConfig(cmd *cobra.Command, args []string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load env file: %w", err)
		}
	}

	loader := config.NewLoaderWithViper(viper.GetViper(), cfgFile)
	cfg, err := loader.Load()
	if err != nil {
		return err
	}

	if noColor, _ := cmd.Flags().GetBool("log-no-color"); noColor {
		cfg.Logging.PrettyMode = false
	}
	if err := logger.Initialize(&cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return err
	}

	if used := loader.GetConfigFile(); used != "" {
		logger.Info().Str("config_file", used).Msg("Loaded configuration file")
	}

	appConfig = cfg
	return nil
}
