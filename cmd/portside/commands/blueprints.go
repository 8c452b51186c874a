package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/portside/portside/pkg/desired"
	"github.com/portside/portside/pkg/reconcile"
)

func newBlueprintsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "blueprints",
		Short: "Manage platform blueprints",
		Long: `Manage the blueprints the integration's entities are built on.

Blueprints are ensured in file order, each item isolated: a failed
blueprint is reported and the pass moves on to the next one. Existing
blueprints are never modified.`,
	}

	cmd.AddCommand(newBlueprintsEnsureCommand())

	return cmd
}

func newBlueprintsEnsureCommand() *cobra.Command {
	var (
		conn         platformOptions
		resourcesDir string
	)

	cmd := &cobra.Command{
		Use:   "ensure",
		Short: "Ensure every local blueprint exists on the platform",
		Long: `Ensure every blueprint in blueprints.json exists on the platform,
creating the missing ones and leaving existing ones untouched.`,
		Example: `  # Ensure blueprints from the default resources directory
  portside blueprints ensure

  # Ensure blueprints from a specific directory
  portside blueprints ensure --resources ./resources`,
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
			loader := desired.NewLoader(resourcesDir, logger)

			blueprints, err := loader.LoadBlueprints()
			if err != nil {
				return err
			}

			client := conn.newClient(logger, tel.Metrics)
			if err := client.Authenticate(ctx, conn.clientID, conn.clientSecret); err != nil {
				return err
			}

			ensurer := reconcile.NewBlueprintEnsurer(client, logger, tel.Metrics)
			results := ensurer.Ensure(ctx, blueprints)

			out := cmd.OutOrStdout()
			failed := 0
			if jsonOutput {
				if err := writeJSON(out, blueprintsOutput(results)); err != nil {
					return err
				}
				for _, r := range results {
					if r.Action == reconcile.BlueprintFailed {
						failed++
					}
				}
			} else {
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "IDENTIFIER\tACTION\tERROR")
				for _, r := range results {
					errMsg := ""
					if r.Err != nil {
						errMsg = r.Err.Error()
						failed++
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Identifier, r.Action, errMsg)
				}
				if err := tw.Flush(); err != nil {
					return err
				}
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d blueprints failed", failed, len(results))
			}
			return nil
		},
	}

	conn.register(cmd)
	cmd.Flags().StringVar(&resourcesDir, "resources", desired.DefaultResourcesDir, "directory with blueprints.json")

	return cmd
}

func blueprintsOutput(results []reconcile.BlueprintResult) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(results))
	for _, r := range results {
		item := map[string]interface{}{
			"identifier": r.Identifier,
			"action":     string(r.Action),
		}
		if r.Err != nil {
			item["error"] = r.Err.Error()
		}
		out = append(out, item)
	}
	return out
}
