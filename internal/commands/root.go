// Package commands provides the jarvis CLI.
package commands

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"jarvis/internal/config"
	"jarvis/internal/logging"
)

var (
	// Global flags
	configFlag    string
	logLevelFlag  string
	logFormatFlag string

	// loaded by the root PersistentPreRunE
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "jarvis",
	Short: "Jarvis chat assistant backend",
	Long: `jarvis serves a single conversation with the Jarvis assistant over HTTP
and forwards messages to an n8n automation webhook.

Examples:
  jarvis serve                          Start the HTTP API
  jarvis notify "Deploy finished"       Send one message to the webhook
  jarvis feed                           Print messages mirrored to redis`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()

		path := configFlag
		if path == "" {
			path = os.Getenv("JARVIS_CONFIG")
		}
		loaded, err := config.Load(path)
		if err != nil {
			return errors.Wrap(err, "load config")
		}

		level := loaded.Log.Level
		if logLevelFlag != "" {
			level = logLevelFlag
		}
		format := loaded.Log.Format
		if logFormatFlag != "" {
			format = logFormatFlag
		}
		if err := logging.Setup(level, format); err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Path to config file (default config.json, or $JARVIS_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormatFlag, "log-format", "", "Log format (console, json)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(notifyCmd)
	rootCmd.AddCommand(feedCmd)
}
