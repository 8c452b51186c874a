package commands

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/portside/portside/pkg/platform"
	"github.com/portside/portside/pkg/policy"
	"github.com/portside/portside/pkg/stores"
	"github.com/portside/portside/pkg/telemetry"
)

const (
	defaultAPIBaseURL    = "https://api.getport.io"
	defaultIngestBaseURL = "https://ingest.getport.io"

	envClientID      = "PORTSIDE_CLIENT_ID"
	envClientSecret  = "PORTSIDE_CLIENT_SECRET"
	envAPIBaseURL    = "PORTSIDE_API_URL"
	envIngestBaseURL = "PORTSIDE_INGEST_URL"
)

// platformOptions are the connection flags shared by every command
// that talks to the remote platform.
type platformOptions struct {
	apiURL       string
	ingestURL    string
	clientID     string
	clientSecret string
	envFile      string
}

func (o *platformOptions) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.apiURL, "api-url", defaultAPIBaseURL, "platform API base URL, without the version path (env PORTSIDE_API_URL)")
	cmd.Flags().StringVar(&o.ingestURL, "ingest-url", defaultIngestBaseURL, "event ingestion base URL webhook URLs are built on (env PORTSIDE_INGEST_URL)")
	cmd.Flags().StringVar(&o.clientID, "client-id", "", "platform client ID (env PORTSIDE_CLIENT_ID)")
	cmd.Flags().StringVar(&o.clientSecret, "client-secret", "", "platform client secret (env PORTSIDE_CLIENT_SECRET)")
	cmd.Flags().StringVar(&o.envFile, "env-file", "", "file with KEY=VALUE lines loaded into the environment first")
}

// resolve loads the env file and fills unset options from the
// environment. Flags win over the environment, the environment wins
// over the env file.
func (o *platformOptions) resolve(cmd *cobra.Command) error {
	if o.envFile != "" {
		if err := loadEnvFile(o.envFile); err != nil {
			return err
		}
	}
	if o.clientID == "" {
		o.clientID = os.Getenv(envClientID)
	}
	if o.clientSecret == "" {
		o.clientSecret = os.Getenv(envClientSecret)
	}
	if !cmd.Flags().Changed("api-url") {
		if v := os.Getenv(envAPIBaseURL); v != "" {
			o.apiURL = v
		}
	}
	if !cmd.Flags().Changed("ingest-url") {
		if v := os.Getenv(envIngestBaseURL); v != "" {
			o.ingestURL = v
		}
	}
	return nil
}

// newClient builds the platform client from the resolved options.
func (o *platformOptions) newClient(logger zerolog.Logger, metrics *telemetry.Metrics) *platform.Client {
	return platform.NewClient(platform.Config{
		BaseURL:   o.apiURL,
		UserAgent: "portside/" + buildVersion,
	}, logger, metrics)
}

// loadEnvFile loads KEY=VALUE lines into the process environment.
// Blank lines and # comments are skipped; already-set variables are
// left alone.
func loadEnvFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open env file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)
		if key == "" {
			continue
		}
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return fmt.Errorf("failed to set %s from env file: %w", key, err)
		}
	}
	return scanner.Err()
}

// newTelemetry builds the telemetry bundle for one command invocation
// from the global output flags. A non-empty metricsListen enables the
// Prometheus endpoint on that address.
func newTelemetry(metricsListen string) (*telemetry.Telemetry, error) {
	cfg := telemetry.DefaultConfig()
	cfg.ServiceVersion = buildVersion
	if jsonOutput {
		cfg.Logging.Format = "json"
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	if metricsListen != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.ListenAddress = metricsListen
	}

	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	if metricsListen != "" {
		if err := tel.StartMetricsServer(); err != nil {
			return nil, fmt.Errorf("failed to start metrics endpoint: %w", err)
		}
	}
	return tel, nil
}

// shutdownTelemetry flushes and stops the telemetry bundle at command
// exit.
func shutdownTelemetry(tel *telemetry.Telemetry) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tel.Shutdown(ctx); err != nil {
		log.Debug().Err(err).Msg("Telemetry shutdown failed")
	}
}

// newPolicyEngine builds the policy engine with its builtin policies
// and any additional rego files.
func newPolicyEngine(ctx context.Context, logger zerolog.Logger, paths []string) (*policy.Engine, error) {
	engine, err := policy.NewEngine(logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize policy engine: %w", err)
	}
	if len(paths) > 0 {
		if err := engine.LoadPolicies(ctx, paths); err != nil {
			return nil, err
		}
	}
	return engine, nil
}

// defaultHistoryPath is where run history lives unless overridden.
func defaultHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".portside", "history.db")
	}
	return filepath.Join(home, ".portside", "history.db")
}

// openHistory opens the run-history store, creating the database and
// applying migrations as needed. An empty path disables history.
func openHistory(ctx context.Context, path string) (stores.Store, error) {
	if path == "" {
		return nil, nil
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	store, err := stores.NewSQLiteStore(stores.Config{Path: path})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

// openHistoryRead opens an existing history database and refuses to
// create one, so read-only commands do not leave empty databases
// behind.
func openHistoryRead(ctx context.Context, path string) (stores.Store, error) {
	if path == "" {
		return nil, fmt.Errorf("run history is disabled")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("no run history at %s: %w", path, err)
	}
	return openHistory(ctx, path)
}

// writeJSON renders v as indented JSON for --json output.
func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
