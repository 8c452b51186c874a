package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/portside/portside/pkg/stores"
)

func newHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect recorded reconciliation runs",
		Long: `Inspect the local run history.

History is advisory: runs are recorded for operators and audits, and
never read back to make reconciliation decisions. The live platform
stays the single source of truth.`,
	}

	cmd.AddCommand(newHistoryListCommand())
	cmd.AddCommand(newHistoryShowCommand())

	return cmd
}

func newHistoryListCommand() *cobra.Command {
	var (
		historyDB string
		limit     int
		offset    int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded runs, most recent first",
		Example: `  # List the last 20 runs
  portside history list

  # Page through older runs
  portside history list --limit 50 --offset 50`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := openHistoryRead(ctx, historyDB)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.ListRuns(ctx, limit, offset)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return writeJSON(out, runs)
			}

			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN ID\tINTEGRATION\tSTATUS\tOUTCOME\tDRIFT\tSTARTED\tDURATION")
			for _, run := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
					run.ID,
					run.IntegrationID,
					run.Status,
					run.Outcome,
					run.DriftEntries,
					run.StartedAt.Format(time.RFC3339),
					runDuration(run),
				)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&historyDB, "history-db", defaultHistoryPath(), "run history database path")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "runs to skip")

	return cmd
}

func newHistoryShowCommand() *cobra.Command {
	var historyDB string

	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run with its events and drift entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := openHistoryRead(ctx, historyDB)
			if err != nil {
				return err
			}
			defer store.Close()

			run, err := store.GetRun(ctx, args[0])
			if err != nil {
				return err
			}
			events, err := store.ListEvents(ctx, run.ID, 1000, 0)
			if err != nil {
				return err
			}
			drift, err := store.ListDriftEntries(ctx, run.ID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return writeJSON(out, map[string]interface{}{
					"run":           run,
					"events":        events,
					"drift_entries": drift,
				})
			}

			fmt.Fprintf(out, "Run:         %s\n", run.ID)
			fmt.Fprintf(out, "Integration: %s\n", run.IntegrationID)
			fmt.Fprintf(out, "Status:      %s\n", run.Status)
			if run.Outcome != "" {
				fmt.Fprintf(out, "Outcome:     %s\n", run.Outcome)
			}
			if run.WebhookURL != "" {
				fmt.Fprintf(out, "Webhook URL: %s\n", run.WebhookURL)
			}
			fmt.Fprintf(out, "Dry run:     %t\n", run.DryRun)
			fmt.Fprintf(out, "Verified:    %t\n", run.Verified)
			fmt.Fprintf(out, "Recreated:   %t\n", run.Recreated)
			fmt.Fprintf(out, "Started:     %s\n", run.StartedAt.Format(time.RFC3339))
			fmt.Fprintf(out, "Duration:    %s\n", runDuration(run))
			if run.Error != nil {
				fmt.Fprintf(out, "Error:       %s\n", *run.Error)
			}

			if len(events) > 0 {
				fmt.Fprintf(out, "\nEvents (%d):\n", len(events))
				for _, e := range events {
					stage := e.Stage
					if stage == "" {
						stage = "-"
					}
					fmt.Fprintf(out, "  %s  %-7s %-12s %s\n",
						e.Timestamp.Format("15:04:05"), e.Level, stage, e.Message)
				}
			}

			if len(drift) > 0 {
				fmt.Fprintf(out, "\nDrift entries (%d):\n", len(drift))
				for _, d := range drift {
					key := d.Kind
					if d.Key != "" {
						key = key + " " + d.Key
					}
					fmt.Fprintf(out, "  %-20s %s\n", d.EntryType, key)
				}
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&historyDB, "history-db", defaultHistoryPath(), "run history database path")

	return cmd
}

// runDuration renders how long a run took, "-" while it is still
// running.
func runDuration(run *stores.Run) string {
	if run.CompletedAt == nil {
		return "-"
	}
	return run.CompletedAt.Sub(run.StartedAt).Round(time.Millisecond).String()
}
