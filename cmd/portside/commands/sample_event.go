package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func newSampleEventCommand() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "sample-event <webhook-url> <event-file>",
		Short: "Send a sample event to a webhook",
		Long: `Send a JSON event document to a webhook ingestion URL.

Useful after installation to confirm the webhook accepts events and
the mappings produce entities. The file must contain a single JSON
document.`,
		Example: `  # Send a sample S3 event to the resolved webhook
  portside sample-event https://ingest.getport.io/abc123XYZ0 s3-event.json

  # Allow a slower endpoint more time
  portside sample-event --timeout 30s https://ingest.getport.io/abc123XYZ0 event.json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			webhookURL, eventFile := args[0], args[1]

			data, err := os.ReadFile(eventFile)
			if err != nil {
				return fmt.Errorf("failed to read event file: %w", err)
			}
			var event interface{}
			if err := json.Unmarshal(data, &event); err != nil {
				return fmt.Errorf("event file is not valid JSON: %w", err)
			}

			log.Info().
				Str("webhook_url", webhookURL).
				Str("event_file", eventFile).
				Msg("Sending sample event")

			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, webhookURL, bytes.NewReader(data))
			if err != nil {
				return fmt.Errorf("failed to build request: %w", err)
			}
			req.Header.Set("Content-Type", "application/json")

			client := &http.Client{
				Timeout:   timeout,
				Transport: otelhttp.NewTransport(http.DefaultTransport),
			}
			resp, err := client.Do(req)
			if err != nil {
				return fmt.Errorf("failed to send event: %w", err)
			}
			defer resp.Body.Close()

			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

			out := cmd.OutOrStdout()
			if jsonOutput {
				if err := writeJSON(out, map[string]interface{}{
					"status_code": resp.StatusCode,
					"body":        string(bytes.TrimSpace(body)),
				}); err != nil {
					return err
				}
			} else {
				fmt.Fprintf(out, "Status: %s\n", resp.Status)
				if len(bytes.TrimSpace(body)) > 0 {
					fmt.Fprintf(out, "%s\n", bytes.TrimSpace(body))
				}
			}

			if resp.StatusCode >= 400 {
				return fmt.Errorf("webhook returned status %d", resp.StatusCode)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "request timeout")

	return cmd
}
