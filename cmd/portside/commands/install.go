package commands

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/portside/portside/pkg/desired"
	"github.com/portside/portside/pkg/diff"
	"github.com/portside/portside/pkg/reconcile"
)

func newInstallCommand() *cobra.Command {
	var (
		conn               platformOptions
		resourcesDir       string
		integrationID      string
		integrationType    string
		integrationVersion string
		webhookRef         string
		forceRecreate      bool
		verifyMappings     bool
		dryRun             bool
		skipMappings       bool
		historyDB          string
		policyPaths        []string
		metricsListen      string
	)

	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install or update the integration on the platform",
		Long: `Reconcile the platform against the local resource definitions.

This command:
  - Exchanges client credentials for an access token
  - Evaluates the policy gate over the desired state
  - Ensures every blueprint exists (best effort, per item)
  - Resolves or creates the events webhook
  - Creates or updates the integration and its resource mappings
  - Records the run in local history and reports drift

The install is idempotent: re-running it against an up-to-date
platform changes nothing and reports the same outcome.`,
		Example: `  # Install with credentials from the environment
  portside install

  # Install from a specific resources directory
  portside install --resources ./resources --integration aws-serverless

  # Preview what would change, without writing anything
  portside install --dry-run

  # Opt in to write verification and delete-and-recreate escalation
  portside install --force-recreate

  # Load credentials from a .env file and verify mappings afterwards
  portside install --env-file .env --verify-mappings`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if err := conn.resolve(cmd); err != nil {
				return err
			}

			tel, err := newTelemetry(metricsListen)
			if err != nil {
				return err
			}
			defer shutdownTelemetry(tel)

			logger := tel.Logger.Zerolog()
			client := conn.newClient(logger, tel.Metrics)
			loader := desired.NewLoader(resourcesDir, logger)

			policies, err := newPolicyEngine(ctx, logger, policyPaths)
			if err != nil {
				return err
			}

			history, err := openHistory(ctx, historyDB)
			if err != nil {
				return err
			}
			if history != nil {
				defer history.Close()
			}

			runner := reconcile.NewRunner(client, loader, policies, history, tel, logger)
			result, runErr := runner.Run(ctx, reconcile.RunOptions{
				ClientID:            conn.clientID,
				ClientSecret:        conn.clientSecret,
				IntegrationID:       integrationID,
				IntegrationType:     integrationType,
				IntegrationVersion:  integrationVersion,
				WebhookRef:          webhookRef,
				IngestBaseURL:       conn.ingestURL,
				VerifyWrites:        forceRecreate,
				DryRun:              dryRun,
				SkipWebhookMappings: skipMappings,
			})

			out := cmd.OutOrStdout()

			// The detailed local-vs-live report re-fetches the live
			// configuration; the run itself only records the count.
			if verifyMappings && runErr == nil && !dryRun {
				if report, err := liveReport(ctx, client, loader, integrationID); err != nil {
					logger.Warn().Err(err).Msg("Failed to verify mappings against live configuration")
				} else if err := report.RenderText(out); err != nil {
					return err
				}
			}

			if jsonOutput {
				if err := writeJSON(out, installOutput(result)); err != nil {
					return err
				}
			} else {
				printInstallSummary(out, result)
			}

			return runErr
		},
	}

	conn.register(cmd)
	cmd.Flags().StringVar(&resourcesDir, "resources", desired.DefaultResourcesDir, "directory with blueprints.json, app-config.yml, webhook-mappings.json")
	cmd.Flags().StringVar(&integrationID, "integration", "aws-serverless", "integration (installation) identifier")
	cmd.Flags().StringVar(&integrationType, "integration-type", "aws-serverless", "installation app type used when creating")
	cmd.Flags().StringVar(&integrationVersion, "integration-version", "1.0.0", "installation version used when creating")
	cmd.Flags().StringVar(&webhookRef, "webhook", "", "webhook reference: identifier, key, or URL (default: the standard events webhook)")
	cmd.Flags().BoolVar(&forceRecreate, "force-recreate", false, "verify writes and escalate to delete-and-recreate when mappings will not stick")
	cmd.Flags().BoolVar(&verifyMappings, "verify-mappings", false, "print the full local-vs-live mapping report after the install")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "stop before any remote write and preview drift instead")
	cmd.Flags().BoolVar(&skipMappings, "skip-webhook-mappings", false, "leave webhook-mappings.json unapplied")
	cmd.Flags().StringVar(&historyDB, "history-db", defaultHistoryPath(), "run history database path (empty disables history)")
	cmd.Flags().StringSliceVar(&policyPaths, "policy", nil, "additional rego policy files or directories")
	cmd.Flags().StringVar(&metricsListen, "metrics-listen", "", "expose Prometheus metrics on this address for the run")

	return cmd
}

// liveReport fetches the integration's live configuration and diffs it
// against the local one.
func liveReport(ctx context.Context, client reconcile.IntegrationAPI, loader *desired.Loader, integrationID string) (*diff.Report, error) {
	st, err := loader.Load()
	if err != nil {
		return nil, err
	}
	live, err := reconcile.LiveConfig(ctx, client, integrationID)
	if err != nil {
		return nil, err
	}
	return diff.NewReport(integrationID, diff.Diff(live, st.Config)), nil
}

// installOutput shapes a run result for --json output, folding the
// error into a string field.
func installOutput(result *reconcile.RunResult) map[string]interface{} {
	data := map[string]interface{}{
		"run_id":         result.RunID,
		"integration_id": result.IntegrationID,
		"outcome":        string(result.Outcome),
		"webhook_url":    result.WebhookURL,
		"blueprints":     result.BlueprintCounts(),
		"verified":       result.Verified,
		"recreated":      result.Recreated,
		"drift_entries":  result.DriftEntries,
		"dry_run":        result.DryRun,
		"started_at":     result.StartedAt,
		"completed_at":   result.CompletedAt,
		"duration":       result.Duration().String(),
	}
	if result.Err != nil {
		data["error"] = result.Err.Error()
	}
	return data
}

// printInstallSummary prints the closing banner with everything an
// operator needs after a run.
func printInstallSummary(w io.Writer, result *reconcile.RunResult) {
	line := strings.Repeat("=", 70)

	header := "INSTALLATION COMPLETE"
	switch {
	case result.Err != nil:
		header = "INSTALLATION FAILED"
	case result.DryRun:
		header = "DRY RUN COMPLETE"
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, line)
	fmt.Fprintln(w, header)
	fmt.Fprintln(w, line)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Run ID:         %s\n", result.RunID)
	fmt.Fprintf(w, "Integration ID: %s\n", result.IntegrationID)

	if result.WebhookURL != "" {
		fmt.Fprintf(w, "Webhook URL:    %s\n", result.WebhookURL)
	}
	if len(result.Blueprints) > 0 {
		counts := result.BlueprintCounts()
		fmt.Fprintf(w, "Blueprints:     %d created, %d existing, %d failed\n",
			counts[reconcile.BlueprintCreated], counts[reconcile.BlueprintExists], counts[reconcile.BlueprintFailed])
	}
	if result.Outcome != "" {
		fmt.Fprintf(w, "Outcome:        %s\n", result.Outcome)
		if result.Verified {
			fmt.Fprintln(w, "Verified:       resource mappings confirmed in live configuration")
		}
		if result.Recreated {
			fmt.Fprintln(w, "Recreated:      integration was deleted and recreated")
		}
	}

	switch {
	case result.DryRun && result.Err == nil:
		fmt.Fprintf(w, "Drift preview:  %d entries\n", result.DriftEntries)
	case result.Err == nil && result.DriftEntries == 0:
		fmt.Fprintln(w, "Drift:          live configuration matches local mappings")
	case result.Err == nil:
		fmt.Fprintf(w, "Drift:          %d entries, run 'portside drift' for details\n", result.DriftEntries)
	}

	if result.Err != nil {
		fmt.Fprintf(w, "Error:          %s\n", result.Err)
	}
	fmt.Fprintf(w, "Duration:       %s\n", result.Duration().Round(time.Millisecond))
	fmt.Fprintln(w)
	fmt.Fprintln(w, line)
}
