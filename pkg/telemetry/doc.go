// Package telemetry provides observability instrumentation for portside.
//
// The telemetry package integrates structured logging (zerolog), distributed
// tracing (OpenTelemetry), metrics (Prometheus), and event publishing into a
// unified system for monitoring and debugging reconciliation runs.
//
// # Architecture
//
// The telemetry system is built on four pillars:
//
//  1. Structured Logging - Context-aware logging with zerolog
//  2. Distributed Tracing - OpenTelemetry traces with OTLP/stdout exporters
//  3. Metrics Collection - Prometheus metrics for run and API behavior
//  4. Event Publishing - Run event stream for audit and the history store
//
// # Usage
//
// Initialize telemetry at application startup:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceName = "portside"
//	cfg.ServiceVersion = "1.0.0"
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
//	ctx = tel.WithContext(ctx)
//
// # Structured Logging
//
// The logger provides component-specific logging with automatic context
// propagation:
//
//	logger := tel.Logger.NewComponentLogger("reconcile")
//	logger = logger.WithRunID("run-123").WithIntegrationID("aws-serverless")
//	logger.Info("Starting integration reconciliation")
//	logger.WithError(err).Error("Update failed")
//
// # Tracing
//
// One span per run, one child span per sequential stage:
//
//	ctx, span := tel.Tracer.StartRunSpan(ctx, runID, integrationID)
//	defer span.End()
//
//	ctx, stageSpan := tel.Tracer.StartStageSpan(ctx, "blueprints")
//	defer stageSpan.End()
//
// The remote API client wires otelhttp into its transport, so every platform
// request becomes a child span of the active stage.
//
// # Metrics
//
// Key metrics exposed (namespace "portside"):
//
//   - portside_runs_started_total{command}
//   - portside_runs_completed_total{outcome}
//   - portside_run_duration_seconds{outcome}
//   - portside_api_requests_total{resource,operation,status}
//   - portside_api_request_duration_seconds{resource,operation}
//   - portside_blueprint_results_total{action}
//   - portside_reconcile_outcomes_total{outcome}
//   - portside_verification_checks_total{result}
//   - portside_escalations_total{step}
//   - portside_drift_entries_total{entry_type}
//   - portside_policy_violations_total{severity}
//   - portside_errors_by_class_total{class}
//
// The metrics listener is disabled by default; long installs can expose it
// with MetricsConfig.Enabled.
//
// # Event Publishing
//
// Events default to synchronous delivery so subscriber side effects (the
// SQLite history store, console reporters) happen in stage order:
//
//	tel.Events.Subscribe(func(event telemetry.Event) {
//	    store.AppendEvent(ctx, toStoreEvent(event))
//	}, telemetry.FilterByRunID(runID))
//
//	tel.Events.PublishStageStarted(runID, "webhook")
//	tel.Events.PublishDriftDetected(runID, integrationID, len(entries))
//
// # Graceful Shutdown
//
// Always shut down telemetry to flush pending spans and events:
//
//	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
//	defer cancel()
//	if err := tel.Shutdown(ctx); err != nil {
//	    log.Printf("telemetry shutdown error: %v", err)
//	}
//
// Never log sensitive data: client secrets and bearer tokens must not reach
// any of the four pillars.
package telemetry
