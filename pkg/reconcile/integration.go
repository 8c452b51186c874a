package reconcile

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/portside/portside/pkg/platform"
	"github.com/portside/portside/pkg/telemetry"
)

// readOnlyFields are server-managed integration document fields that
// must not be echoed back in an update.
var readOnlyFields = []string{"createdAt", "updatedAt", "ok"}

// ReconcileRequest describes one integration reconciliation.
type ReconcileRequest struct {
	// IntegrationID is the integration (installation) identifier.
	IntegrationID string

	// AppType is the installation app type used when creating.
	AppType string

	// Version is the integration version string used when creating.
	Version string

	// Config is the full desired configuration document.
	Config map[string]interface{}

	// VerifyWrites opts in to post-update verification and, when the
	// live configuration stays empty, the bounded escalation ending in
	// one delete-and-recreate. Callers must ensure nothing references
	// the integration before enabling this.
	VerifyWrites bool
}

// IntegrationReconciler drives the integration's live configuration
// toward the desired one through an explicit state machine:
// create when absent, merge-and-update when present, then optional
// verify / subresource retry / single recreate escalation.
type IntegrationReconciler struct {
	api     IntegrationAPI
	logger  zerolog.Logger
	metrics *telemetry.Metrics
}

// NewIntegrationReconciler creates an integration reconciler. The
// metrics collector may be nil.
func NewIntegrationReconciler(api IntegrationAPI, logger zerolog.Logger, metrics *telemetry.Metrics) *IntegrationReconciler {
	return &IntegrationReconciler{
		api:     api,
		logger:  logger.With().Str("component", "integration").Logger(),
		metrics: metrics,
	}
}

// Reconcile runs the state machine for one integration. The returned
// result always carries the terminal outcome and the visited states;
// err is non-nil exactly when the outcome is OutcomeFailed.
func (r *IntegrationReconciler) Reconcile(ctx context.Context, req ReconcileRequest) (*ReconcileResult, error) {
	result := &ReconcileResult{IntegrationID: req.IntegrationID}

	r.logger.Info().Str("integration", req.IntegrationID).Msg("Reconciling integration")

	live, err := r.api.GetIntegration(ctx, req.IntegrationID)
	if err != nil {
		if platform.IsNotFound(err) {
			result.visit(StateAbsent)
			r.logger.Info().Str("integration", req.IntegrationID).Msg("Integration not found, creating")
			return r.create(ctx, req, result, OutcomeCreated)
		}
		return r.fail(result, NewTransportError("failed to fetch integration", err).
			WithResource(req.IntegrationID).
			WithOperation("integration.get"))
	}

	result.visit(StatePresent)
	r.logger.Info().Str("integration", req.IntegrationID).Msg("Integration exists, updating config")

	if err := r.api.UpdateIntegration(ctx, req.IntegrationID, mergeDesiredConfig(live, req.Config)); err != nil {
		return r.fail(result, NewTransportError("failed to update integration", err).
			WithCode(ErrCodeIntegrationUpdate).
			WithResource(req.IntegrationID).
			WithOperation("integration.update"))
	}
	result.visit(StateUpdated)

	if !req.VerifyWrites {
		return r.finish(result, OutcomeUpdated), nil
	}

	if r.verifyConfigPresent(ctx, req.IntegrationID) {
		result.Verified = true
		return r.finish(result, OutcomeUpdatedAndVerified), nil
	}
	result.visit(StateVerificationFailed)
	r.recordVerification("failed")
	r.logger.Warn().Str("integration", req.IntegrationID).Msg("Live config still empty after update, patching config subresource")

	// First escalation: patch the config subresource directly. A
	// transport failure here is non-fatal; the re-verification decides
	// what happens next.
	r.recordEscalation("subresource_patch")
	if err := r.api.UpdateIntegrationConfig(ctx, req.IntegrationID, req.Config); err != nil {
		r.logger.Warn().Err(err).Str("integration", req.IntegrationID).Msg("Config subresource patch failed")
	}
	result.visit(StateSubresourceRetried)

	if r.verifyConfigPresent(ctx, req.IntegrationID) {
		result.Verified = true
		r.logger.Info().Str("integration", req.IntegrationID).Msg("Config present after subresource patch")
		return r.finish(result, OutcomeUpdatedAndVerified), nil
	}
	r.recordVerification("failed")
	r.logger.Warn().Str("integration", req.IntegrationID).Msg("Config still empty, recreating integration")

	// Final escalation, at most once per run: delete and recreate with
	// the desired configuration attached.
	result.visit(StateRecreateAttempted)
	r.recordEscalation("recreate")
	if err := r.api.DeleteIntegration(ctx, req.IntegrationID); err != nil {
		return r.fail(result, NewTransportError("failed to delete integration for recreation", err).
			WithCode(ErrCodeIntegrationDelete).
			WithResource(req.IntegrationID).
			WithOperation("integration.delete"))
	}

	result.Recreated = true
	return r.create(ctx, req, result, OutcomeUpdatedUnverifiedRecreated)
}

// create posts a new integration and finishes with the given outcome.
// Creation is trusted; it is never verified.
func (r *IntegrationReconciler) create(ctx context.Context, req ReconcileRequest, result *ReconcileResult, outcome Outcome) (*ReconcileResult, error) {
	createReq := platform.NewIntegrationCreateRequest(req.IntegrationID, req.AppType, req.Version, req.Config)
	if err := r.api.CreateIntegration(ctx, createReq); err != nil {
		return r.fail(result, NewTransportError("failed to create integration", err).
			WithCode(ErrCodeIntegrationCreate).
			WithResource(req.IntegrationID).
			WithOperation("integration.create"))
	}

	r.logger.Info().Str("integration", req.IntegrationID).Msg("Created integration")
	return r.finish(result, outcome), nil
}

// verifyConfigPresent re-fetches the integration and reports whether
// its live configuration carries resource mappings. Any fetch problem
// counts as unverified.
func (r *IntegrationReconciler) verifyConfigPresent(ctx context.Context, identifier string) bool {
	doc, err := r.api.GetIntegration(ctx, identifier)
	if err != nil {
		return false
	}

	config, ok := platform.UnwrapIntegration(doc)["config"].(map[string]interface{})
	if !ok {
		return false
	}

	switch resources := config["resources"].(type) {
	case []interface{}:
		return len(resources) > 0
	case map[string]interface{}:
		return len(resources) > 0
	default:
		return false
	}
}

func (r *IntegrationReconciler) finish(result *ReconcileResult, outcome Outcome) *ReconcileResult {
	result.Outcome = outcome
	if result.Verified {
		r.recordVerification("verified")
	}
	if r.metrics != nil {
		r.metrics.RecordReconcileOutcome(string(outcome))
	}
	r.logger.Info().
		Str("integration", result.IntegrationID).
		Str("outcome", string(outcome)).
		Bool("verified", result.Verified).
		Bool("recreated", result.Recreated).
		Msg("Integration reconciliation finished")
	return result
}

func (r *IntegrationReconciler) fail(result *ReconcileResult, rerr *Error) (*ReconcileResult, error) {
	result.Outcome = OutcomeFailed
	result.Err = rerr
	if r.metrics != nil {
		r.metrics.RecordReconcileOutcome(string(OutcomeFailed))
		r.metrics.RecordError(string(rerr.Class))
	}
	r.logger.Error().Err(rerr).Str("integration", result.IntegrationID).Msg("Integration reconciliation failed")
	return result, rerr
}

func (r *IntegrationReconciler) recordVerification(outcome string) {
	if r.metrics != nil {
		r.metrics.RecordVerification(outcome)
	}
}

func (r *IntegrationReconciler) recordEscalation(step string) {
	if r.metrics != nil {
		r.metrics.RecordEscalation(step)
	}
}

// mergeDesiredConfig copies the live integration document, unwrapping
// an "integration" envelope if present, installs the desired config,
// and strips server-managed fields.
func mergeDesiredConfig(live map[string]interface{}, config map[string]interface{}) map[string]interface{} {
	doc := platform.UnwrapIntegration(live)
	patch := make(map[string]interface{}, len(doc)+1)
	for k, v := range doc {
		patch[k] = v
	}
	patch["config"] = config
	for _, field := range readOnlyFields {
		delete(patch, field)
	}
	return patch
}

// visit appends a state to the result's visit trail.
func (res *ReconcileResult) visit(s State) {
	res.States = append(res.States, s)
}
