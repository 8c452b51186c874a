package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/portside/portside/pkg/desired"
	"github.com/portside/portside/pkg/diff"
	"github.com/portside/portside/pkg/platform"
	"github.com/portside/portside/pkg/policy"
	"github.com/portside/portside/pkg/stores"
	"github.com/portside/portside/pkg/telemetry"
)

// Stage names, in run order.
const (
	StageAuth        = "auth"
	StagePolicy      = "policy"
	StageBlueprints  = "blueprints"
	StageWebhook     = "webhook"
	StageIntegration = "integration"
	StageDrift       = "drift"
)

// RunOptions carries everything one reconciliation run needs beyond the
// desired state itself.
type RunOptions struct {
	// ClientID and ClientSecret are the platform credentials exchanged
	// for a bearer token.
	ClientID     string
	ClientSecret string

	// IntegrationID is the integration (installation) identifier.
	IntegrationID string

	// IntegrationType is the installation app type used when creating.
	IntegrationType string

	// IntegrationVersion is the version string used when creating.
	IntegrationVersion string

	// WebhookRef is the webhook reference in any of its shapes: absent,
	// identifier, bare key, partial or full URL.
	WebhookRef string

	// IngestBaseURL is the event-ingestion base URL webhook URLs are
	// built on.
	IngestBaseURL string

	// VerifyWrites opts in to post-update verification and the bounded
	// escalation that ends in one delete-and-recreate. The policy gate
	// warns about the destructive step whenever this is set on a live
	// run.
	VerifyWrites bool

	// DryRun stops the run after the policy gate and a drift preview,
	// before any remote write.
	DryRun bool

	// SkipWebhookMappings leaves webhook-mappings.json unapplied even
	// when present.
	SkipWebhookMappings bool
}

// validate checks the options a run cannot start without.
func (o RunOptions) validate() error {
	switch {
	case o.IntegrationID == "":
		return NewSetupError("integration identifier is required", nil).
			WithHint("pass --integration with the installation identifier")
	case o.ClientID == "" || o.ClientSecret == "":
		return NewSetupError("platform credentials are required", nil).
			WithHint("set PORTSIDE_CLIENT_ID and PORTSIDE_CLIENT_SECRET or pass --client-id and --client-secret")
	case o.IngestBaseURL == "":
		return NewSetupError("ingest base URL is required", nil).
			WithHint("pass --ingest-url with the event ingestion base URL")
	}
	return nil
}

// Runner drives one full reconciliation run through its strictly
// sequential stages: token exchange, policy gate, blueprint pass,
// webhook resolution, integration reconciliation, drift check. The
// history store is advisory: the runner writes to it and never reads
// it, so every reconciliation decision comes from the live platform.
type Runner struct {
	api      PlatformAPI
	loader   *desired.Loader
	policies *policy.Engine
	history  stores.Store
	tel      *telemetry.Telemetry
	logger   zerolog.Logger
}

// NewRunner creates a runner. The policy engine, history store, and
// telemetry bundle may each be nil, disabling the policy gate, run
// history, and run events respectively. When both the store and the
// event publisher are present, published run events are mirrored into
// the store.
func NewRunner(
	api PlatformAPI,
	loader *desired.Loader,
	policies *policy.Engine,
	history stores.Store,
	tel *telemetry.Telemetry,
	logger zerolog.Logger,
) *Runner {
	r := &Runner{
		api:      api,
		loader:   loader,
		policies: policies,
		history:  history,
		tel:      tel,
		logger:   logger.With().Str("component", "runner").Logger(),
	}

	if r.history != nil && r.tel != nil && r.tel.Events != nil {
		r.tel.Events.Subscribe(r.persistEvent, nil)
	}

	return r
}

// Run executes one reconciliation run. The returned result is always
// populated as far as the run got; err is non-nil exactly when the run
// failed.
func (r *Runner) Run(ctx context.Context, opts RunOptions) (*RunResult, error) {
	result := &RunResult{
		RunID:         uuid.New().String(),
		IntegrationID: opts.IntegrationID,
		DryRun:        opts.DryRun,
		StartedAt:     time.Now(),
	}

	if err := opts.validate(); err != nil {
		result.CompletedAt = time.Now()
		result.Err = err
		return result, err
	}

	r.logger.Info().
		Str("run_id", result.RunID).
		Str("integration", opts.IntegrationID).
		Bool("dry_run", opts.DryRun).
		Msg("Starting reconciliation run")

	// The history row must exist before the first published event so
	// the event mirror has something to attach to.
	r.recordRunStart(ctx, result, opts)

	command := "install"
	if opts.DryRun {
		command = "dry-run"
	}
	if r.tel != nil {
		ctx = r.tel.WithContext(ctx)
	}
	ctx = telemetry.WithRunContext(ctx, result.RunID, command, opts.IntegrationID)

	err := r.run(ctx, opts, result)

	result.CompletedAt = time.Now()
	result.Err = err

	label := string(result.Outcome)
	if label == "" {
		if err != nil {
			label = string(OutcomeFailed)
		} else {
			label = "dry_run"
		}
	}

	r.recordRunEnd(ctx, result, label, err)
	telemetry.EndRunContext(ctx, result.RunID, label, result.Duration(), err)

	r.logger.Info().
		Str("run_id", result.RunID).
		Str("outcome", label).
		Dur("duration", result.Duration()).
		Msg("Reconciliation run finished")

	return result, err
}

// run is the stage pipeline. Stages after the policy gate write
// remotely; a dry run diverts to the drift preview instead.
func (r *Runner) run(ctx context.Context, opts RunOptions, result *RunResult) error {
	st, err := r.loader.Load()
	if err != nil {
		return NewSetupError("failed to load desired state", err).
			WithCode(ErrCodeDesiredState).
			WithHint("check the resources directory passed with --resources")
	}

	if err := r.stage(ctx, result.RunID, StageAuth, func(sctx context.Context) error {
		return r.authenticate(sctx, opts)
	}); err != nil {
		return err
	}

	if err := r.stage(ctx, result.RunID, StagePolicy, func(sctx context.Context) error {
		return r.policyGate(sctx, st, opts, result)
	}); err != nil {
		return err
	}

	if opts.DryRun {
		r.logger.Info().Str("run_id", result.RunID).Msg("Dry run: skipping all remote writes")
		return r.stage(ctx, result.RunID, StageDrift, func(sctx context.Context) error {
			return r.driftCheck(sctx, st, opts, result)
		})
	}

	// Blueprint failures are isolated per item; the pass never fails
	// the run.
	_ = r.stage(ctx, result.RunID, StageBlueprints, func(sctx context.Context) error {
		r.ensureBlueprints(sctx, st, result)
		return nil
	})

	if err := r.stage(ctx, result.RunID, StageWebhook, func(sctx context.Context) error {
		return r.resolveWebhook(sctx, st, opts, result)
	}); err != nil {
		return err
	}

	if err := r.stage(ctx, result.RunID, StageIntegration, func(sctx context.Context) error {
		return r.reconcileIntegration(sctx, st, opts, result)
	}); err != nil {
		return err
	}

	return r.stage(ctx, result.RunID, StageDrift, func(sctx context.Context) error {
		return r.driftCheck(sctx, st, opts, result)
	})
}

// stage runs one sequential run stage under its telemetry span.
func (r *Runner) stage(ctx context.Context, runID, name string, fn func(context.Context) error) error {
	sctx := telemetry.WithStageContext(ctx, runID, name)
	err := fn(sctx)
	telemetry.EndStageContext(sctx, runID, name, err)
	return err
}

func (r *Runner) authenticate(ctx context.Context, opts RunOptions) error {
	if err := r.api.Authenticate(ctx, opts.ClientID, opts.ClientSecret); err != nil {
		return NewAuthError("token exchange failed", err).
			WithCode(ErrCodeTokenExchange).
			WithOperation("auth.token").
			WithHint("check that the client ID and secret are current platform credentials")
	}
	r.logger.Info().Msg("Authenticated against the platform")
	return nil
}

// policyGate evaluates the pre-run policies over the desired state
// summary and the run options. Blocking violations abort the run
// before any remote mutation; advisory ones are logged and recorded.
func (r *Runner) policyGate(ctx context.Context, st *desired.State, opts RunOptions, result *RunResult) error {
	if r.policies == nil {
		return nil
	}

	input := &policy.Input{
		Desired: policy.Summarize(st),
		Context: &policy.Context{
			Operation:     "install",
			ForceRecreate: opts.VerifyWrites,
			DryRun:        opts.DryRun,
			Timestamp:     time.Now(),
		},
	}

	res, err := r.policies.Evaluate(ctx, input)
	if err != nil {
		return NewSetupError("policy evaluation failed", err).
			WithOperation("policy.evaluate")
	}

	for _, warning := range res.Warnings {
		r.logger.Warn().Str("run_id", result.RunID).Msg(warning)
	}

	for _, v := range res.Violations {
		evt := r.logger.Warn()
		if v.Severity.Blocks() {
			evt = r.logger.Error()
		}
		evt.Str("policy", v.Policy).
			Str("severity", string(v.Severity)).
			Str("subject", v.Subject).
			Msg(v.Message)

		if r.tel != nil {
			r.tel.Metrics.RecordPolicyViolation(string(v.Severity))
			_ = r.tel.Events.PublishPolicyViolation(result.RunID, v.Policy, string(v.Severity), v.Message)
		}
	}

	if !res.Allowed {
		blocking := res.Blocking()
		return NewSetupError(fmt.Sprintf("policy gate denied the run (%d blocking violation(s))", len(blocking)), nil).
			WithCode(ErrCodePolicyDenied).
			WithOperation("policy.evaluate").
			WithHint(blocking[0].Message)
	}

	return nil
}

func (r *Runner) ensureBlueprints(ctx context.Context, st *desired.State, result *RunResult) {
	ensurer := NewBlueprintEnsurer(r.api, r.logger, r.metrics())
	result.Blueprints = ensurer.Ensure(ctx, st.Blueprints)

	if r.tel != nil {
		for _, b := range result.Blueprints {
			_ = r.tel.Events.PublishBlueprintEnsured(result.RunID, b.Identifier, string(b.Action))
		}
	}
}

func (r *Runner) resolveWebhook(ctx context.Context, st *desired.State, opts RunOptions, result *RunResult) error {
	resolver := NewWebhookResolver(r.api, opts.IngestBaseURL, r.logger)
	url, err := resolver.ResolveOrCreate(ctx, opts.WebhookRef)
	if err != nil {
		return err
	}
	result.WebhookURL = url

	if r.tel != nil {
		_ = r.tel.Events.PublishWebhookResolved(result.RunID, NormalizeWebhookIdentifier(opts.WebhookRef), url)
	}

	if opts.SkipWebhookMappings || len(st.WebhookMappings) == 0 {
		return nil
	}

	// Event mappings are a convenience on top of the webhook; the
	// webhook stays usable without them, so failures only warn.
	target := webhookMappingTarget(opts.WebhookRef)
	applied := 0
	for i, mapping := range st.WebhookMappings {
		if err := r.api.ApplyWebhookMappings(ctx, target, mapping); err != nil {
			r.logger.Warn().Err(err).
				Int("mapping", i).
				Str("webhook", target).
				Msg("Failed to apply webhook event mapping")
			continue
		}
		applied++
	}
	result.MappingsApplied = applied == len(st.WebhookMappings)

	r.logger.Info().
		Int("applied", applied).
		Int("total", len(st.WebhookMappings)).
		Str("webhook", target).
		Msg("Webhook event mappings applied")
	return nil
}

// webhookMappingTarget picks the identifier event mappings are attached
// to. URL references keep only their trailing segment; everything else
// normalizes the usual way.
func webhookMappingTarget(ref string) string {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		trimmed := strings.TrimRight(strings.SplitN(ref, "?", 2)[0], "/")
		return trimmed[strings.LastIndex(trimmed, "/")+1:]
	}
	return NormalizeWebhookIdentifier(ref)
}

func (r *Runner) reconcileIntegration(ctx context.Context, st *desired.State, opts RunOptions, result *RunResult) error {
	reconciler := NewIntegrationReconciler(r.api, r.logger, r.metrics())

	recResult, err := reconciler.Reconcile(ctx, ReconcileRequest{
		IntegrationID: opts.IntegrationID,
		AppType:       opts.IntegrationType,
		Version:       opts.IntegrationVersion,
		Config:        st.AppConfig,
		VerifyWrites:  opts.VerifyWrites,
	})

	result.Outcome = recResult.Outcome
	result.Verified = recResult.Verified
	result.Recreated = recResult.Recreated
	return err
}

// driftCheck diffs the live configuration against the local one. On a
// dry run the preview is the deliverable, so fetch failures are fatal;
// after a successful install they only cost the confirmation.
func (r *Runner) driftCheck(ctx context.Context, st *desired.State, opts RunOptions, result *RunResult) error {
	live, err := LiveConfig(ctx, r.api, opts.IntegrationID)
	if err != nil {
		if opts.DryRun {
			return err
		}
		r.logger.Warn().Err(err).Msg("Skipping post-run drift check, live fetch failed")
		return nil
	}

	entries := diff.Diff(live, st.Config)
	result.DriftEntries = len(entries)

	if r.tel != nil {
		for entryType, count := range countByType(entries) {
			r.tel.Metrics.RecordDriftEntries(string(entryType), count)
		}
		if len(entries) > 0 {
			_ = r.tel.Events.PublishDriftDetected(result.RunID, opts.IntegrationID, len(entries))
		}
	}

	r.recordDriftEntries(ctx, result.RunID, entries)

	if len(entries) == 0 {
		r.logger.Info().Msg("Live mappings match local configuration")
	} else {
		r.logger.Warn().Int("entries", len(entries)).Msg("Drift between local and live configuration")
	}
	return nil
}

// LiveConfig reads an integration's live configuration for diffing
// against the local one. A missing integration diffs as an empty
// configuration rather than failing.
func LiveConfig(ctx context.Context, api IntegrationAPI, integrationID string) (desired.IntegrationConfig, error) {
	doc, err := api.GetIntegration(ctx, integrationID)
	if err != nil {
		if platform.IsNotFound(err) {
			return desired.IntegrationConfig{}, nil
		}
		return desired.IntegrationConfig{}, NewTransportError("failed to fetch live integration configuration", err).
			WithResource(integrationID).
			WithOperation("integration.get")
	}

	config, _ := platform.UnwrapIntegration(doc)["config"].(map[string]interface{})
	return desired.FromDocument(config), nil
}

func countByType(entries []diff.Entry) map[diff.EntryType]int {
	counts := make(map[diff.EntryType]int, len(entries))
	for _, e := range entries {
		counts[e.Type]++
	}
	return counts
}

// metrics returns the shared collector, nil when telemetry is off.
func (r *Runner) metrics() *telemetry.Metrics {
	if r.tel == nil {
		return nil
	}
	return r.tel.Metrics
}

// recordRunStart writes the history row for a starting run. History is
// advisory, so store failures only warn.
func (r *Runner) recordRunStart(ctx context.Context, result *RunResult, opts RunOptions) {
	if r.history == nil {
		return
	}

	metadata, err := json.Marshal(map[string]interface{}{
		"webhook_ref":           opts.WebhookRef,
		"resources_dir":         r.loader.Dir(),
		"verify_writes":         opts.VerifyWrites,
		"skip_webhook_mappings": opts.SkipWebhookMappings,
	})
	if err != nil {
		metadata = []byte("{}")
	}

	now := time.Now()
	run := &stores.Run{
		ID:            result.RunID,
		IntegrationID: result.IntegrationID,
		Status:        stores.RunStatusRunning,
		DryRun:        result.DryRun,
		StartedAt:     result.StartedAt,
		Metadata:      string(metadata),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := r.history.CreateRun(ctx, run); err != nil {
		r.logger.Warn().Err(err).Msg("Failed to record run start in history store")
	}
}

// recordRunEnd completes the history row with the run's result.
func (r *Runner) recordRunEnd(ctx context.Context, result *RunResult, outcome string, runErr error) {
	if r.history == nil {
		return
	}

	update := &stores.RunUpdate{
		Status:       stores.RunStatusCompleted,
		Outcome:      outcome,
		WebhookURL:   result.WebhookURL,
		Verified:     result.Verified,
		Recreated:    result.Recreated,
		DriftEntries: result.DriftEntries,
	}
	if runErr != nil {
		update.Status = stores.RunStatusFailed
		msg := runErr.Error()
		update.Error = &msg
	}

	if err := r.history.CompleteRun(ctx, result.RunID, update); err != nil {
		r.logger.Warn().Err(err).Msg("Failed to record run completion in history store")
	}
}

// recordDriftEntries mirrors a computed diff into the history store.
func (r *Runner) recordDriftEntries(ctx context.Context, runID string, entries []diff.Entry) {
	if r.history == nil || len(entries) == 0 {
		return
	}

	now := time.Now()
	records := make([]*stores.DriftEntry, 0, len(entries))
	for _, e := range entries {
		records = append(records, &stores.DriftEntry{
			RunID:      runID,
			EntryType:  string(e.Type),
			Kind:       e.Kind,
			Key:        e.Key,
			Live:       jsonPayload(e.Live),
			Local:      jsonPayload(e.Local),
			DetectedAt: now,
		})
	}

	if err := r.history.InsertDriftEntries(ctx, records); err != nil {
		r.logger.Warn().Err(err).Msg("Failed to record drift entries in history store")
	}
}

// persistEvent mirrors published run events into the history store.
func (r *Runner) persistEvent(event telemetry.Event) {
	if event.RunID == "" {
		return
	}

	level := stores.EventLevel(event.Level)
	if level == "" {
		level = stores.EventLevelInfo
	}

	record := &stores.RunEvent{
		RunID:     event.RunID,
		Stage:     event.Stage,
		Level:     level,
		Message:   event.Message,
		Timestamp: event.Timestamp,
	}
	if len(event.Data) > 0 {
		if data, err := json.Marshal(event.Data); err == nil {
			details := string(data)
			record.Details = &details
		}
	}

	if err := r.history.AppendEvent(context.Background(), record); err != nil {
		r.logger.Debug().Err(err).Str("run_id", event.RunID).Msg("Failed to persist run event")
	}
}

// jsonPayload renders a diff payload for history storage, nil for
// absent payloads.
func jsonPayload(v interface{}) *string {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	s := string(data)
	return &s
}
