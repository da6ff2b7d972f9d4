package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Russete77/migadigital/cmd/miga/commands"
	"github.com/Russete77/migadigital/pkg/observability/logging"
)

var (
	// Version information (set by build flags)
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	if _, err := logging.InitFromEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
	}
	defer logging.Sync()

	rootCmd := &cobra.Command{
		Use:   "miga",
		Short: "Adaptive conversational response engine",
		Long: `miga runs the self-improving conversational response engine.

It classifies inbound messages for emotion and urgency, selects a response
strategy, augments it with retrieved knowledge, generates and humanizes a
reply, and learns from user feedback.

Common workflows:
  miga serve                       # Start the HTTP API and metrics servers
  miga aggregate --date 2026-08-29 # Recompute one day's aggregate metrics`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	}

	rootCmd.PersistentFlags().StringP("config", "c", "config/config.yaml", "Path to configuration file")

	rootCmd.AddCommand(commands.NewServeCmd())
	rootCmd.AddCommand(commands.NewAggregateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
