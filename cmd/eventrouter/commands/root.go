// Package commands provides the CLI commands for eventrouter.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/telnet2/eventrouter/internal/config"
	"github.com/telnet2/eventrouter/internal/logging"
)

var (
	// Version information set at build time
	Version   = "0.1.0"
	BuildTime = "dev"
)

// Global flags
var (
	configFile string
	logLevel   string
	prettyLogs bool
	noColor    bool
)

// appConfig is the effective configuration, loaded before any subcommand runs
// from appConfigPath ("" when no file was found).
var (
	appConfig     *config.Config
	appConfigPath string
)

var rootCmd = &cobra.Command{
	Use:   "eventrouter",
	Short: "Scoped in-process event router",
	Long: `eventrouter routes typed events from publishers to subscribers inside one
process. Every event type carries a scope, and registering, subscribing and
unregistering are checked against it.

Run 'eventrouter bench' to measure dispatch throughput, or 'eventrouter debug'
to inspect configuration.`,
	Version:           Version,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Config file (.jsonc, .json, .yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().BoolVar(&prettyLogs, "pretty-logs", false, "Human-readable console logs")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable coloured output")

	rootCmd.SetVersionTemplate(fmt.Sprintf("eventrouter %s (%s)\n", Version, BuildTime))

	rootCmd.AddCommand(benchCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(debugCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// setup loads .env, the configuration file and the environment, then
// initialises logging. Flags win over everything else.
func setup(cmd *cobra.Command, args []string) error {
	if err := config.LoadEnvFile(".env"); err != nil {
		return err
	}

	path := configFile
	if path == "" {
		workDir, err := os.Getwd()
		if err != nil {
			return err
		}
		path = config.Discover(workDir)
	}

	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if err := applyLogConfig(cfg.Log); err != nil {
		return err
	}

	if path != "" {
		logging.Debug().Str("path", path).Msg("configuration loaded")
	}
	appConfig = cfg
	appConfigPath = path
	return nil
}

// applyLogConfig initialises logging from lc, with the global flags taking
// precedence.
func applyLogConfig(lc config.LogConfig) error {
	if logLevel != "" {
		lc.Level = logLevel
	}
	return logging.Setup(lc.Level, lc.Pretty || prettyLogs, lc.Rotation())
}
