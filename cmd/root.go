package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/codetally/codetally/config"
	"github.com/codetally/codetally/logging"
)

var (
	cfgFile  string
	logLevel string
	debug    bool
	verbose  bool
)

var rootCmd = &cobra.Command{
	Use:   "codetally",
	Short: "AI coding tool usage collector",
	Long: `codetally collects token usage telemetry that AI coding tools persist
locally in incompatible formats, normalizes it into one record shape, and
syncs it to a remote service.

Running codetally with no subcommand performs a sync: each enabled source
is scanned incrementally against its stored checkpoint and new records are
uploaded.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSync(cmd)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/codetally/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug mode")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// loadConfiguration loads config and applies command line overrides.
func loadConfiguration() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if logLevel != "" {
		cfg.App.LogLevel = logLevel
	}
	if debug {
		cfg.App.LogLevel = "debug"
	}

	logging.InitLogger(cfg.App.LogLevel, cfg.App.LogFile, debug)
	return cfg, nil
}

func verbosef(format string, args ...interface{}) {
	if verbose {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
}
