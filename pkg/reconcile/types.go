package reconcile

import (
	"encoding/json"
	"fmt"
	"time"
)

// Outcome represents the terminal category of an integration
// reconciliation.
type Outcome string

const (
	// OutcomeCreated indicates the integration was absent and has been
	// created with the desired configuration. Creation is trusted and
	// never verified.
	OutcomeCreated Outcome = "created"

	// OutcomeUpdated indicates the existing integration was patched
	// with the desired configuration. Without the verification opt-in
	// the update result stands as-is.
	OutcomeUpdated Outcome = "updated"

	// OutcomeUpdatedAndVerified indicates the update went through and a
	// re-fetch confirmed the live configuration carries resource
	// mappings.
	OutcomeUpdatedAndVerified Outcome = "updated_and_verified"

	// OutcomeUpdatedUnverifiedRecreated indicates verification kept
	// failing and the integration was deleted and recreated with the
	// desired configuration.
	OutcomeUpdatedUnverifiedRecreated Outcome = "updated_unverified_recreated"

	// OutcomeFailed indicates reconciliation terminated without the
	// desired configuration known to be in place.
	OutcomeFailed Outcome = "failed"
)

// Succeeded returns true if the outcome left the desired configuration
// in place remotely (or trusted to be, for fresh creations).
func (o Outcome) Succeeded() bool {
	return o != OutcomeFailed && o != ""
}

// Validate checks if the outcome is valid.
func (o Outcome) Validate() error {
	switch o {
	case OutcomeCreated, OutcomeUpdated, OutcomeUpdatedAndVerified,
		OutcomeUpdatedUnverifiedRecreated, OutcomeFailed:
		return nil
	default:
		return fmt.Errorf("invalid outcome: %s", o)
	}
}

// MarshalJSON implements custom JSON marshaling for type-safe enum serialization.
func (o Outcome) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(o))
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (o *Outcome) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*o = Outcome(str)
	return o.Validate()
}

// State represents a position in the integration reconciliation state
// machine. States are recorded in visit order so a run's path through
// the machine can be logged and asserted on.
type State string

const (
	// StateAbsent indicates the integration did not exist remotely.
	StateAbsent State = "absent"

	// StatePresent indicates the integration exists remotely.
	StatePresent State = "present"

	// StateUpdated indicates the desired configuration was patched onto
	// the live integration document.
	StateUpdated State = "updated"

	// StateVerificationFailed indicates a post-update fetch found the
	// live configuration without resource mappings.
	StateVerificationFailed State = "verification_failed"

	// StateSubresourceRetried indicates the configuration subresource
	// was patched directly after a failed verification.
	StateSubresourceRetried State = "subresource_retried"

	// StateRecreateAttempted indicates the integration was deleted and
	// recreated as the final escalation step.
	StateRecreateAttempted State = "recreate_attempted"
)

// Validate checks if the state is valid.
func (s State) Validate() error {
	switch s {
	case StateAbsent, StatePresent, StateUpdated, StateVerificationFailed,
		StateSubresourceRetried, StateRecreateAttempted:
		return nil
	default:
		return fmt.Errorf("invalid state: %s", s)
	}
}

// BlueprintAction represents what the blueprint pass did for one
// desired blueprint.
type BlueprintAction string

const (
	// BlueprintSkipped indicates the blueprint carried no identifier
	// and was not sent anywhere.
	BlueprintSkipped BlueprintAction = "skipped"

	// BlueprintExists indicates the blueprint was already present
	// remotely.
	BlueprintExists BlueprintAction = "exists"

	// BlueprintCreated indicates the blueprint was created.
	BlueprintCreated BlueprintAction = "created"

	// BlueprintFailed indicates creation was attempted and rejected.
	BlueprintFailed BlueprintAction = "failed"
)

// Validate checks if the blueprint action is valid.
func (a BlueprintAction) Validate() error {
	switch a {
	case BlueprintSkipped, BlueprintExists, BlueprintCreated, BlueprintFailed:
		return nil
	default:
		return fmt.Errorf("invalid blueprint action: %s", a)
	}
}

// BlueprintResult is the per-item outcome of the blueprint pass.
// Failures are recorded here and never abort the batch.
type BlueprintResult struct {
	// Identifier is the blueprint identifier, empty for skipped items.
	Identifier string `json:"identifier,omitempty"`

	// Action is what the pass did for this blueprint.
	Action BlueprintAction `json:"action"`

	// Err is the creation failure, when Action is BlueprintFailed.
	Err error `json:"-"`
}

// ReconcileResult captures how the integration reconciler terminated
// and the path it took through the state machine.
type ReconcileResult struct {
	// IntegrationID is the reconciled integration identifier.
	IntegrationID string `json:"integration_id"`

	// Outcome is the terminal category.
	Outcome Outcome `json:"outcome"`

	// States is the visit-ordered list of machine states.
	States []State `json:"states"`

	// Verified is true when a post-write fetch confirmed resource
	// mappings in the live configuration.
	Verified bool `json:"verified"`

	// Recreated is true when the delete-and-recreate escalation ran.
	Recreated bool `json:"recreated"`

	// Err is the classified failure when Outcome is OutcomeFailed.
	Err error `json:"-"`
}

// RunResult is the progressive summary of one full reconciliation run.
type RunResult struct {
	// RunID uniquely identifies the run.
	RunID string `json:"run_id"`

	// IntegrationID is the integration the run targeted.
	IntegrationID string `json:"integration_id"`

	// Outcome is the integration reconciliation outcome; it is the
	// run's authoritative success signal.
	Outcome Outcome `json:"outcome"`

	// WebhookURL is the resolved ingestion URL.
	WebhookURL string `json:"webhook_url,omitempty"`

	// Blueprints holds the per-item results of the blueprint pass.
	Blueprints []BlueprintResult `json:"blueprints,omitempty"`

	// MappingsApplied is true when webhook event mappings were
	// attached to the resolved webhook.
	MappingsApplied bool `json:"mappings_applied,omitempty"`

	// Verified mirrors the reconciler result: a post-write fetch
	// confirmed resource mappings in the live configuration.
	Verified bool `json:"verified,omitempty"`

	// Recreated mirrors the reconciler result: the delete-and-recreate
	// escalation ran.
	Recreated bool `json:"recreated,omitempty"`

	// DriftEntries is the post-run local-vs-live diff, when requested.
	DriftEntries int `json:"drift_entries"`

	// DryRun is true when the run stopped before any remote write.
	DryRun bool `json:"dry_run,omitempty"`

	// StartedAt and CompletedAt bound the run.
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`

	// Err is the run-level failure, if any.
	Err error `json:"-"`
}

// BlueprintCounts tallies the blueprint pass by action.
func (r *RunResult) BlueprintCounts() map[BlueprintAction]int {
	counts := make(map[BlueprintAction]int, 4)
	for _, b := range r.Blueprints {
		counts[b.Action]++
	}
	return counts
}

// Duration returns how long the run took.
func (r *RunResult) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}
