package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/config"
)

var (
	cfg          *config.Config
	cfgFile      string
	profile      string
	verboseLevel int
	traceSpans   bool
)

// commands that run without a resolved profile
var noConfigCommands = map[string]bool{
	"init":     true,
	"validate": true,
	"use":      true,
	"extract":  true,
	"manifest": true,
	"help":     true,
}

var rootCmd = &cobra.Command{
	Use:   "mpd",
	Short: "Passive data collection for step based tasks",
	Long: `mpd runs passive data recorders (motion, microphone levels, distance
and weather) alongside the steps of a task.

Profiles in the config file choose which recorders run and at which
steps they start and stop. Each session writes its log files, a result
file and optionally a compressed archive below the output directory.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging(verboseLevel)

		// For sources command, only load config if explicitly provided
		if cmd.Name() == "sources" && cfgFile == "" {
			return nil
		}
		if cfgFile == "" {
			cfgFile = defaultConfigPath()
		}
		if noConfigCommands[cmd.Name()] {
			return nil
		}

		var err error
		cfg, err = config.LoadWithProfile(cfgFile, profile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		slog.Debug("Configuration loaded", "file", cfgFile, "profile", cfg.Name, "recorders", len(cfg.Configurations))
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	return os.ExpandEnv("$HOME/.config/mpd.yaml")
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/mpd.yaml)")
	rootCmd.PersistentFlags().StringVar(&profile, "profile", "", "configuration profile to use (overrides active_config from file)")
	rootCmd.PersistentFlags().IntVarP(&verboseLevel, "verbose", "v", 0, "verbose level: 0=info, 1=debug, 2=debug with source locations")
	rootCmd.PersistentFlags().BoolVar(&traceSpans, "trace", false, "log OpenTelemetry spans for events and HTTP requests")

	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(weatherCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(sourcesCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(archiveCmd)
}

// setupLogging configures slog based on the verbose level
func setupLogging(level int) {
	slogLevel := slog.LevelInfo
	if level >= 1 {
		slogLevel = slog.LevelDebug
	}

	// Level 2 adds the source location of every record
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:     slogLevel,
		AddSource: level >= 2,
	})
	slog.SetDefault(slog.New(handler))
}
