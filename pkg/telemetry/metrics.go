package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for portside reconciliation runs.
type Metrics struct {
	config MetricsConfig

	// Run metrics
	runsStarted   *prometheus.CounterVec
	runsCompleted *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec

	// Remote API metrics
	apiRequests        *prometheus.CounterVec
	apiRequestDuration *prometheus.HistogramVec

	// Blueprint pass metrics
	blueprintResults *prometheus.CounterVec

	// Reconciler metrics
	reconcileOutcomes  *prometheus.CounterVec
	verificationChecks *prometheus.CounterVec
	escalations        *prometheus.CounterVec

	// Drift metrics
	driftEntries *prometheus.CounterVec

	// Policy metrics
	policyViolations *prometheus.CounterVec

	// Error metrics
	errorsByClass *prometheus.CounterVec

	// System metrics
	activeRuns prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	// Create a new registry
	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		// Run metrics
		runsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_started_total",
				Help:      "Total number of reconciliation runs started",
			},
			[]string{"command"},
		),
		runsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_completed_total",
				Help:      "Total number of reconciliation runs completed",
			},
			[]string{"outcome"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of reconciliation runs in seconds",
				Buckets:   buckets,
			},
			[]string{"outcome"},
		),

		// Remote API metrics
		apiRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_requests_total",
				Help:      "Total number of remote platform API requests",
			},
			[]string{"resource", "operation", "status"},
		),
		apiRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "api_request_duration_seconds",
				Help:      "Duration of remote platform API requests in seconds",
				Buckets:   buckets,
			},
			[]string{"resource", "operation"},
		),

		// Blueprint pass metrics
		blueprintResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "blueprint_results_total",
				Help:      "Total number of blueprint pass results by action",
			},
			[]string{"action"},
		),

		// Reconciler metrics
		reconcileOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reconcile_outcomes_total",
				Help:      "Total number of integration reconciliation outcomes",
			},
			[]string{"outcome"},
		),
		verificationChecks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "verification_checks_total",
				Help:      "Total number of post-write verification checks",
			},
			[]string{"result"},
		),
		escalations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "escalations_total",
				Help:      "Total number of reconciler escalation steps taken",
			},
			[]string{"step"},
		),

		// Drift metrics
		driftEntries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "drift_entries_total",
				Help:      "Total number of drift entries reported",
			},
			[]string{"entry_type"},
		),

		// Policy metrics
		policyViolations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "policy_violations_total",
				Help:      "Total number of policy violations found before runs",
			},
			[]string{"severity"},
		),

		// Error metrics
		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_class_total",
				Help:      "Total number of errors by error class",
			},
			[]string{"class"},
		),

		// System metrics
		activeRuns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_runs",
				Help:      "Current number of active runs",
			},
		),
	}

	// Register all metrics
	registry.MustRegister(
		m.runsStarted,
		m.runsCompleted,
		m.runDuration,
		m.apiRequests,
		m.apiRequestDuration,
		m.blueprintResults,
		m.reconcileOutcomes,
		m.verificationChecks,
		m.escalations,
		m.driftEntries,
		m.policyViolations,
		m.errorsByClass,
		m.activeRuns,
	)

	return m, nil
}

// Run Metrics

// RecordRunStarted increments the counter for started runs.
func (m *Metrics) RecordRunStarted(command string) {
	if m.runsStarted == nil {
		return
	}
	m.runsStarted.WithLabelValues(command).Inc()
	m.activeRuns.Inc()
}

// RecordRunCompleted records a completed run with its outcome and duration.
func (m *Metrics) RecordRunCompleted(outcome string, duration time.Duration) {
	if m.runsCompleted == nil {
		return
	}
	m.runsCompleted.WithLabelValues(outcome).Inc()
	m.runDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	m.activeRuns.Dec()
}

// Remote API Metrics

// RecordAPIRequest records one remote platform API call.
func (m *Metrics) RecordAPIRequest(resource, operation, status string, duration time.Duration) {
	if m.apiRequests == nil {
		return
	}
	m.apiRequests.WithLabelValues(resource, operation, status).Inc()
	m.apiRequestDuration.WithLabelValues(resource, operation).Observe(duration.Seconds())
}

// Blueprint Metrics

// RecordBlueprintResult records one per-blueprint result from the ensure pass
// (skipped, exists, created, failed).
func (m *Metrics) RecordBlueprintResult(action string) {
	if m.blueprintResults == nil {
		return
	}
	m.blueprintResults.WithLabelValues(action).Inc()
}

// Reconciler Metrics

// RecordReconcileOutcome records the terminal outcome of one integration
// reconciliation.
func (m *Metrics) RecordReconcileOutcome(outcome string) {
	if m.reconcileOutcomes == nil {
		return
	}
	m.reconcileOutcomes.WithLabelValues(outcome).Inc()
}

// RecordVerification records a post-write verification check result
// (verified, unverified).
func (m *Metrics) RecordVerification(result string) {
	if m.verificationChecks == nil {
		return
	}
	m.verificationChecks.WithLabelValues(result).Inc()
}

// RecordEscalation records an escalation step taken by the reconciler
// (subresource_patch, recreate).
func (m *Metrics) RecordEscalation(step string) {
	if m.escalations == nil {
		return
	}
	m.escalations.WithLabelValues(step).Inc()
}

// Drift Metrics

// RecordDriftEntries adds drift entries of the given type to the counter.
func (m *Metrics) RecordDriftEntries(entryType string, count int) {
	if m.driftEntries == nil {
		return
	}
	m.driftEntries.WithLabelValues(entryType).Add(float64(count))
}

// Policy Metrics

// RecordPolicyViolation records a policy violation by severity.
func (m *Metrics) RecordPolicyViolation(severity string) {
	if m.policyViolations == nil {
		return
	}
	m.policyViolations.WithLabelValues(severity).Inc()
}

// Error Metrics

// RecordError records an error by class.
func (m *Metrics) RecordError(errorClass string) {
	if m.errorsByClass == nil {
		return
	}
	m.errorsByClass.WithLabelValues(errorClass).Inc()
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration is a helper to time an operation and record it.
func (t *Timer) ObserveDuration(observer prometheus.Observer) {
	observer.Observe(t.Duration().Seconds())
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server to expose metrics.
func (m *Metrics) StartMetricsServer() error {
	if !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			// Log error but don't fail the application
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()

	return nil
}
