// Package cli implements the docchat command line.
package cli

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"docchat/internal/config"
)

var (
	cfgPath  string
	logLevel string
)

// RootCmd is the base command when called without any subcommands.
var RootCmd = &cobra.Command{
	Use:   "docchat",
	Short: "Analyze a document and chat with it",
	Long: `docchat summarizes a plain-text document, extracts its key terms and
answers questions grounded in the passages most similar to each question.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		_ = godotenv.Load()
	},
}

// Execute runs the root command.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	RootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Path to YAML config file (defaults to ./config.yaml or ~/.config/docchat/config.yaml)")
	RootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured log level (debug, info, warn, error)")
	RootCmd.AddCommand(chatCmd)
	RootCmd.AddCommand(askCmd)
	RootCmd.AddCommand(serveCmd)
}

func loadConfig() (*config.AppConfig, error) {
	var (
		cfg *config.AppConfig
		err error
	)
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
