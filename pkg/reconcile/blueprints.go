package reconcile

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/portside/portside/pkg/platform"
	"github.com/portside/portside/pkg/telemetry"
)

// BlueprintEnsurer makes sure every desired blueprint exists remotely.
// Blueprints are opaque documents; the ensurer only reads the
// identifier and creates whatever is missing.
type BlueprintEnsurer struct {
	api     BlueprintAPI
	logger  zerolog.Logger
	metrics *telemetry.Metrics
}

// NewBlueprintEnsurer creates a blueprint ensurer. The metrics
// collector may be nil.
func NewBlueprintEnsurer(api BlueprintAPI, logger zerolog.Logger, metrics *telemetry.Metrics) *BlueprintEnsurer {
	return &BlueprintEnsurer{
		api:     api,
		logger:  logger.With().Str("component", "blueprints").Logger(),
		metrics: metrics,
	}
}

// Ensure folds over the desired blueprints and returns one result per
// item, in input order. Individual failures are recorded on their item
// and never abort the batch.
func (e *BlueprintEnsurer) Ensure(ctx context.Context, blueprints []map[string]interface{}) []BlueprintResult {
	results := make([]BlueprintResult, 0, len(blueprints))
	for _, doc := range blueprints {
		result := e.ensureOne(ctx, doc)
		results = append(results, result)
		if e.metrics != nil {
			e.metrics.RecordBlueprintResult(string(result.Action))
		}
	}
	return results
}

func (e *BlueprintEnsurer) ensureOne(ctx context.Context, doc map[string]interface{}) BlueprintResult {
	identifier, _ := doc["identifier"].(string)
	if identifier == "" {
		e.logger.Warn().Msg("Skipping blueprint without identifier")
		return BlueprintResult{Action: BlueprintSkipped}
	}

	e.logger.Info().Str("blueprint", identifier).Msg("Ensuring blueprint exists")

	if _, err := e.api.GetBlueprint(ctx, identifier); err == nil {
		e.logger.Info().Str("blueprint", identifier).Msg("Blueprint already exists")
		return BlueprintResult{Identifier: identifier, Action: BlueprintExists}
	} else if !platform.IsNotFound(err) {
		e.logger.Warn().Err(err).Str("blueprint", identifier).Msg("Unexpected result checking blueprint, attempting creation")
	}

	if err := e.api.CreateBlueprint(ctx, doc); err != nil {
		e.logger.Error().Err(err).Str("blueprint", identifier).Msg("Failed to create blueprint")
		return BlueprintResult{
			Identifier: identifier,
			Action:     BlueprintFailed,
			Err: NewTransportError("failed to create blueprint", err).
				WithCode(ErrCodeBlueprintCreate).
				WithResource(identifier).
				WithOperation("blueprint.create"),
		}
	}

	e.logger.Info().Str("blueprint", identifier).Msg("Created blueprint")
	return BlueprintResult{Identifier: identifier, Action: BlueprintCreated}
}
