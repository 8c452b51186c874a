package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/portside/portside/pkg/desired"
	"github.com/portside/portside/pkg/diff"
	"github.com/portside/portside/pkg/reconcile"
)

func newDriftCommand() *cobra.Command {
	var (
		conn          platformOptions
		resourcesDir  string
		integrationID string
		reportFile    string
		watch         bool
	)

	cmd := &cobra.Command{
		Use:   "drift",
		Short: "Report drift between live and local configuration",
		Long: `Compare the integration's live configuration with the local one.

Drift occurs when the live resource mappings diverge from the local
app-config.yml. The report is advisory: nothing is written to the
platform, and a missing integration diffs as an empty configuration.`,
		Example: `  # One-shot drift report
  portside drift

  # Machine-readable report, also written to a file
  portside drift --json --report drift-report.json

  # Re-compare whenever the local resources change
  portside drift --watch`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if err := conn.resolve(cmd); err != nil {
				return err
			}

			tel, err := newTelemetry("")
			if err != nil {
				return err
			}
			defer shutdownTelemetry(tel)

			logger := tel.Logger.Zerolog()
			client := conn.newClient(logger, tel.Metrics)
			loader := desired.NewLoader(resourcesDir, logger)

			if err := client.Authenticate(ctx, conn.clientID, conn.clientSecret); err != nil {
				return err
			}

			compare := func(st *desired.State) error {
				live, err := reconcile.LiveConfig(ctx, client, integrationID)
				if err != nil {
					return err
				}
				report := diff.NewReport(integrationID, diff.Diff(live, st.Config))
				return renderDriftReport(cmd, report, reportFile)
			}

			st, err := loader.Load()
			if err != nil {
				return err
			}
			if err := compare(st); err != nil {
				return err
			}

			if !watch {
				return nil
			}
			logger.Info().Str("dir", loader.Dir()).Msg("Watching resources for changes")
			return loader.Watch(ctx, compare)
		},
	}

	conn.register(cmd)
	cmd.Flags().StringVar(&resourcesDir, "resources", desired.DefaultResourcesDir, "directory with blueprints.json, app-config.yml, webhook-mappings.json")
	cmd.Flags().StringVar(&integrationID, "integration", "aws-serverless", "integration (installation) identifier")
	cmd.Flags().StringVar(&reportFile, "report", "", "also write the JSON report to this file")
	cmd.Flags().BoolVar(&watch, "watch", false, "keep comparing as local resources change")

	return cmd
}

// renderDriftReport writes the report to the command output and,
// optionally, as JSON to a file.
func renderDriftReport(cmd *cobra.Command, report *diff.Report, path string) error {
	out := cmd.OutOrStdout()

	var err error
	if jsonOutput {
		err = report.RenderJSON(out)
	} else {
		err = report.RenderText(out)
	}
	if err != nil {
		return err
	}

	if path == "" {
		return nil
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer f.Close()
	if err := report.RenderJSON(f); err != nil {
		return fmt.Errorf("failed to write report file: %w", err)
	}
	return nil
}
