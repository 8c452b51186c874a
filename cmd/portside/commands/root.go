package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose    bool
	jsonOutput bool

	// buildVersion is the version string baked in at build time, used
	// for the User-Agent header and telemetry service version.
	buildVersion = "dev"
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	buildVersion = version
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "portside",
		Short: "Portside - Integration Reconciliation Engine",
		Long: `Portside installs and reconciles event-driven integrations against a
remote resource platform from local, declarative resource definitions.

Features:
  - Declarative resources: blueprints.json, app-config.yml, webhook-mappings.json
  - Idempotent install: create or update, never duplicate
  - Webhook resolution from identifiers, keys, or URLs
  - Opt-in write verification with bounded delete-and-recreate escalation
  - Drift detection between live and local configuration
  - Policy gate (OPA/rego) and local run history`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	// Add subcommands
	rootCmd.AddCommand(newInstallCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newDriftCommand())
	rootCmd.AddCommand(newBlueprintsCommand())
	rootCmd.AddCommand(newWebhookCommand())
	rootCmd.AddCommand(newSampleEventCommand())
	rootCmd.AddCommand(newHistoryCommand())

	return rootCmd
}
