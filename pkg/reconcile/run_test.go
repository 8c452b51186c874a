package reconcile

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/rs/zerolog"

	"github.com/portside/portside/pkg/desired"
	"github.com/portside/portside/pkg/diff"
	"github.com/portside/portside/pkg/platform"
	"github.com/portside/portside/pkg/policy"
	"github.com/portside/portside/pkg/stores"
	"github.com/portside/portside/pkg/telemetry"
)

const runBlueprints = `[
  {"identifier": "awsLambdaFunction", "title": "Lambda Function", "schema": {"properties": {}}},
  {"identifier": "awsS3Bucket", "title": "S3 Bucket", "schema": {"properties": {}}}
]`

const runAppConfig = `deleteDependentEntities: true
resources:
  - kind: AWS::Lambda::Function
    selector:
      query: .source == "aws.lambda"
    port:
      entity:
        mappings:
          identifier: .detail.functionName
          title: .detail.functionName
          blueprint: '"awsLambdaFunction"'
          properties:
            arn: .detail.functionArn
  - kind: AWS::S3::Bucket
    port:
      entity:
        mappings:
          identifier: .detail.bucket.name
          blueprint: '"awsS3Bucket"'
`

// duplicateKindAppConfig trips the mapping-kinds builtin policy.
const duplicateKindAppConfig = `resources:
  - kind: AWS::S3::Bucket
    port:
      entity:
        mappings:
          identifier: .detail.bucket.name
  - kind: AWS::S3::Bucket
    port:
      entity:
        mappings:
          identifier: .detail.bucket.arn
`

const runWebhookMappings = `[
  {"blueprint": "awsLambdaFunction", "itemsToParse": ".detail", "entity": {"identifier": ".functionName"}}
]`

func writeRunFixtures(t *testing.T, appConfig string) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		desired.BlueprintsFile:      runBlueprints,
		desired.AppConfigFile:       appConfig,
		desired.WebhookMappingsFile: runWebhookMappings,
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}
	return dir
}

func testRunOptions() RunOptions {
	return RunOptions{
		ClientID:           "client",
		ClientSecret:       "secret",
		IntegrationID:      "aws-serverless",
		IntegrationType:    "aws-serverless",
		IntegrationVersion: "1.0.0",
		IngestBaseURL:      "https://ingest.example.io",
	}
}

func newTestRunner(f *fakePlatform, dir string) *Runner {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	return NewRunner(f, desired.NewLoader(dir, logger), nil, nil, nil, logger)
}

func TestRunFreshInstall(t *testing.T) {
	f := newFakePlatform()
	r := newTestRunner(f, writeRunFixtures(t, runAppConfig))

	result, err := r.Run(context.Background(), testRunOptions())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if result.RunID == "" {
		t.Error("every run must get an identifier")
	}
	if result.Outcome != OutcomeCreated {
		t.Errorf("expected outcome %s, got %s", OutcomeCreated, result.Outcome)
	}
	if result.WebhookURL != "https://ingest.example.io/a1b2c3d4e5" {
		t.Errorf("unexpected webhook URL: %s", result.WebhookURL)
	}
	if !result.MappingsApplied {
		t.Error("expected the webhook event mappings to be applied")
	}
	if counts := result.BlueprintCounts(); counts[BlueprintCreated] != 2 {
		t.Errorf("expected 2 created blueprints, got %v", counts)
	}
	if result.DriftEntries != 0 {
		t.Errorf("a fresh install must leave no drift, got %d entries", result.DriftEntries)
	}
	if result.CompletedAt.Before(result.StartedAt) {
		t.Error("the result must be time-bounded")
	}

	// The stage order is fixed: token exchange, blueprint pass, webhook
	// resolution, integration reconciliation, drift check.
	wantCalls := []string{
		"auth.token",
		"blueprint.get",
		"blueprint.create",
		"blueprint.get",
		"blueprint.create",
		"webhook.get",
		"webhook.create",
		"webhook.apply_mappings",
		"integration.get",
		"integration.create",
		"integration.get",
	}
	if !reflect.DeepEqual(f.calls, wantCalls) {
		t.Errorf("expected calls %v, got %v", wantCalls, f.calls)
	}

	if want := []string{"awsLambdaFunction", "awsS3Bucket"}; !reflect.DeepEqual(f.blueprintCreates, want) {
		t.Errorf("expected blueprint creations %v, got %v", want, f.blueprintCreates)
	}
	if want := []string{"aws_ingest"}; !reflect.DeepEqual(f.mappingTargets, want) {
		t.Errorf("expected mapping targets %v, got %v", want, f.mappingTargets)
	}

	req := f.creates[0]
	if req.InstallationID != "aws-serverless" || req.InstallationAppType != "aws-serverless" || req.Version != "1.0.0" {
		t.Errorf("unexpected integration creation request: %+v", req)
	}
	if req.Config["deleteDependentEntities"] != true {
		t.Errorf("the creation must carry the full mapping document, got %v", req.Config)
	}
}

func TestRunSecondRunIsIdempotent(t *testing.T) {
	f := newFakePlatform()
	dir := writeRunFixtures(t, runAppConfig)
	r := newTestRunner(f, dir)

	if _, err := r.Run(context.Background(), testRunOptions()); err != nil {
		t.Fatalf("first run returned error: %v", err)
	}
	f.calls = nil

	result, err := r.Run(context.Background(), testRunOptions())
	if err != nil {
		t.Fatalf("second run returned error: %v", err)
	}

	if result.Outcome != OutcomeUpdated {
		t.Errorf("expected outcome %s, got %s", OutcomeUpdated, result.Outcome)
	}
	if counts := result.BlueprintCounts(); counts[BlueprintExists] != 2 || counts[BlueprintCreated] != 0 {
		t.Errorf("the second pass must find both blueprints, got %v", counts)
	}
	if result.DriftEntries != 0 {
		t.Errorf("converged state must show no drift, got %d entries", result.DriftEntries)
	}

	// Everything already exists, so the second run reads, updates the
	// integration, and re-applies the event mappings. Nothing is created.
	wantCalls := []string{
		"auth.token",
		"blueprint.get",
		"blueprint.get",
		"webhook.get",
		"webhook.apply_mappings",
		"integration.get",
		"integration.update",
		"integration.get",
	}
	if !reflect.DeepEqual(f.calls, wantCalls) {
		t.Errorf("expected calls %v, got %v", wantCalls, f.calls)
	}
}

func TestRunDryRunWritesNothing(t *testing.T) {
	f := newFakePlatform()
	r := newTestRunner(f, writeRunFixtures(t, runAppConfig))

	opts := testRunOptions()
	opts.DryRun = true

	result, err := r.Run(context.Background(), opts)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	// A dry run authenticates, passes the gate, and previews the drift.
	// The single integration fetch is the preview's read.
	wantCalls := []string{"auth.token", "integration.get"}
	if !reflect.DeepEqual(f.calls, wantCalls) {
		t.Errorf("expected calls %v, got %v", wantCalls, f.calls)
	}

	if !result.DryRun {
		t.Error("the result must be flagged as a dry run")
	}
	if result.Outcome != "" {
		t.Errorf("a dry run has no reconciliation outcome, got %s", result.Outcome)
	}
	if result.DriftEntries != 2 {
		t.Errorf("expected both kinds missing from the empty live config, got %d entries", result.DriftEntries)
	}
}

func TestRunPolicyGateBlocksBeforeWrites(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	engine, err := policy.NewEngine(logger)
	if err != nil {
		t.Fatalf("NewEngine returned error: %v", err)
	}

	f := newFakePlatform()
	dir := writeRunFixtures(t, duplicateKindAppConfig)
	r := NewRunner(f, desired.NewLoader(dir, logger), engine, nil, nil, logger)

	_, err = r.Run(context.Background(), testRunOptions())
	if err == nil {
		t.Fatal("expected the policy gate to deny the run")
	}

	var rerr *Error
	if !errors.As(err, &rerr) {
		t.Fatalf("expected a classified error, got %T", err)
	}
	if rerr.Code != ErrCodePolicyDenied {
		t.Errorf("expected code %s, got %s", ErrCodePolicyDenied, rerr.Code)
	}

	// The gate sits right after the token exchange; nothing may be
	// written once it denies.
	wantCalls := []string{"auth.token"}
	if !reflect.DeepEqual(f.calls, wantCalls) {
		t.Errorf("expected calls %v, got %v", wantCalls, f.calls)
	}
}

func TestRunPolicyGateAllowsCompliantConfiguration(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	engine, err := policy.NewEngine(logger)
	if err != nil {
		t.Fatalf("NewEngine returned error: %v", err)
	}

	f := newFakePlatform()
	dir := writeRunFixtures(t, runAppConfig)
	r := NewRunner(f, desired.NewLoader(dir, logger), engine, nil, nil, logger)

	result, err := r.Run(context.Background(), testRunOptions())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if result.Outcome != OutcomeCreated {
		t.Errorf("expected outcome %s, got %s", OutcomeCreated, result.Outcome)
	}
}

func TestRunWebhookMappingFailuresAreNonFatal(t *testing.T) {
	f := newFakePlatform()
	f.mappingErr = &platform.APIError{
		StatusCode: http.StatusInternalServerError,
		Method:     http.MethodPost,
		Path:       "/webhooks/aws_ingest/mapping",
	}
	r := newTestRunner(f, writeRunFixtures(t, runAppConfig))

	result, err := r.Run(context.Background(), testRunOptions())
	if err != nil {
		t.Fatalf("a failed event mapping must not fail the run, got: %v", err)
	}

	if result.MappingsApplied {
		t.Error("failed mappings must not be reported as applied")
	}
	if result.Outcome != OutcomeCreated {
		t.Errorf("the run must continue to the integration, got outcome %s", result.Outcome)
	}
}

func TestRunSkipWebhookMappings(t *testing.T) {
	f := newFakePlatform()
	r := newTestRunner(f, writeRunFixtures(t, runAppConfig))

	opts := testRunOptions()
	opts.SkipWebhookMappings = true

	result, err := r.Run(context.Background(), opts)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if result.MappingsApplied {
		t.Error("skipped mappings must not be reported as applied")
	}
	for _, call := range f.calls {
		if call == "webhook.apply_mappings" {
			t.Fatalf("no mapping call may happen with the skip set, got %v", f.calls)
		}
	}
}

func TestRunBlueprintFailureDoesNotAbortTheRun(t *testing.T) {
	f := newFakePlatform()
	f.blueprintCreateErr = map[string]error{
		"awsS3Bucket": &platform.APIError{
			StatusCode: http.StatusUnprocessableEntity,
			Method:     http.MethodPost,
			Path:       "/blueprints",
		},
	}
	r := newTestRunner(f, writeRunFixtures(t, runAppConfig))

	result, err := r.Run(context.Background(), testRunOptions())
	if err != nil {
		t.Fatalf("a blueprint failure must not fail the run, got: %v", err)
	}

	counts := result.BlueprintCounts()
	if counts[BlueprintCreated] != 1 || counts[BlueprintFailed] != 1 {
		t.Errorf("expected one created and one failed blueprint, got %v", counts)
	}
	if result.Outcome != OutcomeCreated {
		t.Errorf("the run must continue past the failed blueprint, got outcome %s", result.Outcome)
	}
}

func TestRunRejectsIncompleteOptions(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*RunOptions)
	}{
		{"missing integration", func(o *RunOptions) { o.IntegrationID = "" }},
		{"missing credentials", func(o *RunOptions) { o.ClientSecret = "" }},
		{"missing ingest base", func(o *RunOptions) { o.IngestBaseURL = "" }},
	}

	for _, tc := range cases {
		f := newFakePlatform()
		r := newTestRunner(f, writeRunFixtures(t, runAppConfig))

		opts := testRunOptions()
		tc.mutate(&opts)

		result, err := r.Run(context.Background(), opts)
		if err == nil {
			t.Fatalf("%s: expected an error", tc.name)
		}
		if !IsSetup(err) {
			t.Errorf("%s: expected a setup-class error, got %v", tc.name, err)
		}
		if len(f.calls) != 0 {
			t.Errorf("%s: no remote call may happen, got %v", tc.name, f.calls)
		}
		if result.Err == nil {
			t.Errorf("%s: the result must carry the failure", tc.name)
		}
	}
}

func TestRunAuthFailureStopsTheRun(t *testing.T) {
	f := newFakePlatform()
	f.authErr = &platform.APIError{
		StatusCode: http.StatusUnauthorized,
		Method:     http.MethodPost,
		Path:       "/auth/access_token",
	}
	r := newTestRunner(f, writeRunFixtures(t, runAppConfig))

	_, err := r.Run(context.Background(), testRunOptions())
	if err == nil {
		t.Fatal("expected an error when the token exchange fails")
	}
	if !IsAuth(err) {
		t.Errorf("expected an auth-class error, got %v", err)
	}

	var rerr *Error
	if !errors.As(err, &rerr) {
		t.Fatalf("expected a classified error, got %T", err)
	}
	if rerr.Code != ErrCodeTokenExchange {
		t.Errorf("expected code %s, got %s", ErrCodeTokenExchange, rerr.Code)
	}

	wantCalls := []string{"auth.token"}
	if !reflect.DeepEqual(f.calls, wantCalls) {
		t.Errorf("expected calls %v, got %v", wantCalls, f.calls)
	}
}

func TestRunWebhookFailureStopsBeforeIntegration(t *testing.T) {
	f := newFakePlatform()
	f.webhookCreateErr = &platform.APIError{
		StatusCode: http.StatusInternalServerError,
		Method:     http.MethodPost,
		Path:       "/webhooks",
	}
	r := newTestRunner(f, writeRunFixtures(t, runAppConfig))

	_, err := r.Run(context.Background(), testRunOptions())
	if err == nil {
		t.Fatal("expected an error when the webhook creation fails")
	}

	var rerr *Error
	if !errors.As(err, &rerr) {
		t.Fatalf("expected a classified error, got %T", err)
	}
	if rerr.Code != ErrCodeWebhookCreate {
		t.Errorf("expected code %s, got %s", ErrCodeWebhookCreate, rerr.Code)
	}

	for _, call := range f.calls {
		if call == "integration.get" || call == "integration.create" {
			t.Fatalf("the integration stage may not run after a webhook failure, got %v", f.calls)
		}
	}
}

func TestRunDriftFetchFailureAfterInstallIsNonFatal(t *testing.T) {
	f := newFakePlatform()
	f.integrationGetErr = &platform.APIError{
		StatusCode: http.StatusInternalServerError,
		Method:     http.MethodGet,
		Path:       "/integration/aws-serverless",
	}
	f.integrationGetErrFrom = 2
	r := newTestRunner(f, writeRunFixtures(t, runAppConfig))

	result, err := r.Run(context.Background(), testRunOptions())
	if err != nil {
		t.Fatalf("a failed post-run drift read must not fail the run, got: %v", err)
	}
	if result.Outcome != OutcomeCreated {
		t.Errorf("expected outcome %s, got %s", OutcomeCreated, result.Outcome)
	}
	if result.DriftEntries != 0 {
		t.Errorf("a skipped drift check must report no entries, got %d", result.DriftEntries)
	}
}

func TestRunDryRunDriftFetchFailureIsFatal(t *testing.T) {
	f := newFakePlatform()
	f.integrationGetErr = &platform.APIError{
		StatusCode: http.StatusInternalServerError,
		Method:     http.MethodGet,
		Path:       "/integration/aws-serverless",
	}
	r := newTestRunner(f, writeRunFixtures(t, runAppConfig))

	opts := testRunOptions()
	opts.DryRun = true

	// The drift preview is all a dry run delivers, so its fetch failing
	// fails the run.
	_, err := r.Run(context.Background(), opts)
	if err == nil {
		t.Fatal("expected an error when the dry-run preview fetch fails")
	}
	if !IsTransport(err) {
		t.Errorf("expected a transport-class error, got %v", err)
	}
}

func TestRunRecordsHistory(t *testing.T) {
	store := newRunHistoryStore(t)

	cfg := telemetry.DefaultConfig()
	cfg.Logging.Level = "error"
	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		t.Fatalf("NewTelemetry returned error: %v", err)
	}
	defer func() { _ = tel.Shutdown(context.Background()) }()

	logger := zerolog.New(nil).Level(zerolog.Disabled)
	f := newFakePlatform()
	dir := writeRunFixtures(t, runAppConfig)
	r := NewRunner(f, desired.NewLoader(dir, logger), nil, store, tel, logger)

	result, err := r.Run(context.Background(), testRunOptions())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	run, err := store.GetRun(context.Background(), result.RunID)
	if err != nil {
		t.Fatalf("GetRun returned error: %v", err)
	}
	if run.Status != stores.RunStatusCompleted {
		t.Errorf("expected status %s, got %s", stores.RunStatusCompleted, run.Status)
	}
	if run.Outcome != string(OutcomeCreated) {
		t.Errorf("expected recorded outcome %s, got %s", OutcomeCreated, run.Outcome)
	}
	if run.WebhookURL != result.WebhookURL {
		t.Errorf("expected recorded webhook URL %s, got %s", result.WebhookURL, run.WebhookURL)
	}
	if run.CompletedAt == nil {
		t.Error("a finished run must carry its completion time")
	}

	// Published run events are mirrored into the store as they happen.
	events, err := store.ListEvents(context.Background(), result.RunID, 100, 0)
	if err != nil {
		t.Fatalf("ListEvents returned error: %v", err)
	}
	if len(events) == 0 {
		t.Fatal("expected mirrored run events in the history store")
	}
	for _, event := range events {
		if event.RunID != result.RunID {
			t.Errorf("event %d belongs to run %s, want %s", event.ID, event.RunID, result.RunID)
		}
	}
}

func TestRunDryRunRecordsDriftInHistory(t *testing.T) {
	store := newRunHistoryStore(t)

	logger := zerolog.New(nil).Level(zerolog.Disabled)
	f := newFakePlatform()
	dir := writeRunFixtures(t, runAppConfig)
	r := NewRunner(f, desired.NewLoader(dir, logger), nil, store, nil, logger)

	opts := testRunOptions()
	opts.DryRun = true

	result, err := r.Run(context.Background(), opts)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	run, err := store.GetRun(context.Background(), result.RunID)
	if err != nil {
		t.Fatalf("GetRun returned error: %v", err)
	}
	if !run.DryRun {
		t.Error("the recorded run must be flagged as a dry run")
	}
	if run.Outcome != "dry_run" {
		t.Errorf("expected recorded outcome dry_run, got %s", run.Outcome)
	}
	if run.DriftEntries != 2 {
		t.Errorf("expected 2 recorded drift entries, got %d", run.DriftEntries)
	}

	entries, err := store.ListDriftEntries(context.Background(), result.RunID)
	if err != nil {
		t.Fatalf("ListDriftEntries returned error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 drift rows, got %d", len(entries))
	}
	for _, entry := range entries {
		if entry.EntryType != string(diff.MissingInLive) {
			t.Errorf("expected entry type %s, got %s", diff.MissingInLive, entry.EntryType)
		}
	}
}

func newRunHistoryStore(t *testing.T) *stores.SQLiteStore {
	t.Helper()

	store, err := stores.NewSQLiteStore(stores.Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("NewSQLiteStore returned error: %v", err)
	}
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func TestLiveConfigMissingIntegrationIsEmpty(t *testing.T) {
	f := newFakePlatform()

	cfg, err := LiveConfig(context.Background(), f, "aws-serverless")
	if err != nil {
		t.Fatalf("LiveConfig returned error: %v", err)
	}
	if len(cfg.Resources) != 0 {
		t.Errorf("a missing integration must read as an empty configuration, got %+v", cfg.Resources)
	}
}

func TestLiveConfigUnwrapsEnvelope(t *testing.T) {
	f := newFakePlatform()
	f.integrations["aws-serverless"] = map[string]interface{}{
		"integration": map[string]interface{}{
			"config": map[string]interface{}{
				"resources": []interface{}{
					map[string]interface{}{"kind": "AWS::S3::Bucket"},
				},
			},
		},
	}

	cfg, err := LiveConfig(context.Background(), f, "aws-serverless")
	if err != nil {
		t.Fatalf("LiveConfig returned error: %v", err)
	}
	if want := []string{"AWS::S3::Bucket"}; !reflect.DeepEqual(cfg.Kinds(), want) {
		t.Errorf("expected kinds %v, got %v", want, cfg.Kinds())
	}
}

func TestLiveConfigFetchFailure(t *testing.T) {
	f := newFakePlatform()
	f.integrationGetErr = &platform.APIError{
		StatusCode: http.StatusInternalServerError,
		Method:     http.MethodGet,
		Path:       "/integration/aws-serverless",
	}

	_, err := LiveConfig(context.Background(), f, "aws-serverless")
	if err == nil {
		t.Fatal("expected an error when the fetch fails")
	}
	if !IsTransport(err) {
		t.Errorf("expected a transport-class error, got %v", err)
	}
}
