package stores

import (
	"context"
	"time"
)

// RunStatus represents the status of a reconciliation run
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// EventLevel represents the severity level of a run event
type EventLevel string

const (
	EventLevelDebug   EventLevel = "debug"
	EventLevelInfo    EventLevel = "info"
	EventLevelWarning EventLevel = "warning"
	EventLevelError   EventLevel = "error"
)

// Run represents one reconciliation run as recorded in history
type Run struct {
	ID            string     `json:"id"`
	IntegrationID string     `json:"integration_id"`
	Status        RunStatus  `json:"status"`
	Outcome       string     `json:"outcome,omitempty"`
	WebhookURL    string     `json:"webhook_url,omitempty"`
	DryRun        bool       `json:"dry_run"`
	Verified      bool       `json:"verified"`
	Recreated     bool       `json:"recreated"`
	DriftEntries  int        `json:"drift_entries"`
	StartedAt     time.Time  `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	Error         *string    `json:"error,omitempty"`
	Metadata      string     `json:"metadata"` // JSON blob
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// RunUpdate carries the result fields written when a run finishes
type RunUpdate struct {
	Status       RunStatus `json:"status"`
	Outcome      string    `json:"outcome"`
	WebhookURL   string    `json:"webhook_url"`
	Verified     bool      `json:"verified"`
	Recreated    bool      `json:"recreated"`
	DriftEntries int       `json:"drift_entries"`
	Error        *string   `json:"error,omitempty"`
}

// RunEvent represents one stage event within a run, append-only
type RunEvent struct {
	ID        int64      `json:"id"`
	RunID     string     `json:"run_id"`
	Stage     string     `json:"stage,omitempty"` // e.g. "blueprints", "webhook", "integration"
	Level     EventLevel `json:"level"`
	Message   string     `json:"message"`
	Details   *string    `json:"details,omitempty"` // JSON blob
	Timestamp time.Time  `json:"timestamp"`
}

// DriftEntry represents one recorded difference between the live and
// local configurations
type DriftEntry struct {
	ID         int64     `json:"id"`
	RunID      string    `json:"run_id"`
	EntryType  string    `json:"entry_type"`
	Kind       string    `json:"kind"`
	Key        string    `json:"key,omitempty"`
	Live       *string   `json:"live,omitempty"`
	Local      *string   `json:"local,omitempty"`
	DetectedAt time.Time `json:"detected_at"`
}

// Store defines the run-history persistence layer. It is advisory
// only: the engine never reads it to make reconciliation decisions,
// the remote platform stays the single source of truth.
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Run operations
	CreateRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	CompleteRun(ctx context.Context, id string, update *RunUpdate) error
	ListRuns(ctx context.Context, limit, offset int) ([]*Run, error)
	DeleteRun(ctx context.Context, id string) error

	// Event operations
	AppendEvent(ctx context.Context, event *RunEvent) error
	ListEvents(ctx context.Context, runID string, limit, offset int) ([]*RunEvent, error)

	// Drift operations
	InsertDriftEntries(ctx context.Context, entries []*DriftEntry) error
	ListDriftEntries(ctx context.Context, runID string) ([]*DriftEntry, error)

	// Utility
	HealthCheck(ctx context.Context) error
}
