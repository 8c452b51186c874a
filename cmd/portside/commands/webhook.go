package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/portside/portside/pkg/reconcile"
)

func newWebhookCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webhook",
		Short: "Manage the events webhook",
		Long: `Manage the webhook events are ingested through.

A webhook reference may be empty (the standard events webhook), an
identifier, a bare webhook key, or a partial or full ingestion URL.
All shapes resolve to the same canonical ingestion URL.`,
	}

	cmd.AddCommand(newWebhookResolveCommand())

	return cmd
}

func newWebhookResolveCommand() *cobra.Command {
	var conn platformOptions

	cmd := &cobra.Command{
		Use:   "resolve [reference]",
		Short: "Resolve or create the events webhook",
		Long: `Resolve a webhook reference to its ingestion URL, creating the
webhook when nothing matches remotely.

Resolution never duplicates: an existing webhook is reused whatever
shape the reference took.`,
		Example: `  # Resolve the standard events webhook, creating it if missing
  portside webhook resolve

  # Resolve by identifier
  portside webhook resolve aws_ingest

  # Resolve a full ingestion URL (verifies the webhook exists)
  portside webhook resolve https://ingest.getport.io/abc123XYZ0`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			ref := ""
			if len(args) > 0 {
				ref = args[0]
			}

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

			if err := client.Authenticate(ctx, conn.clientID, conn.clientSecret); err != nil {
				return err
			}

			resolver := reconcile.NewWebhookResolver(client, conn.ingestURL, logger)
			url, err := resolver.ResolveOrCreate(ctx, ref)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return writeJSON(out, map[string]string{
					"identifier": reconcile.NormalizeWebhookIdentifier(ref),
					"url":        url,
				})
			}
			fmt.Fprintln(out, url)
			return nil
		},
	}

	conn.register(cmd)

	return cmd
}
