package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event represents a telemetry event emitted during a reconciliation run.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type is the event type.
	Type string `json:"type"`

	// Source identifies where the event originated.
	Source string `json:"source"`

	// RunID is the associated run ID, if applicable.
	RunID string `json:"run_id,omitempty"`

	// Stage is the run stage the event belongs to, if applicable.
	Stage string `json:"stage,omitempty"`

	// ResourceID is the associated remote resource identifier
	// (blueprint, webhook, or integration), if applicable.
	ResourceID string `json:"resource_id,omitempty"`

	// Message is a human-readable event message.
	Message string `json:"message"`

	// Level is the event severity level (info, warning, error).
	Level string `json:"level"`

	// Data contains additional event-specific data.
	Data map[string]interface{} `json:"data,omitempty"`
}

// EventType constants for common event types.
const (
	EventTypeRunStarted       = "run.started"
	EventTypeRunCompleted     = "run.completed"
	EventTypeRunFailed        = "run.failed"
	EventTypeStageStarted     = "stage.started"
	EventTypeStageCompleted   = "stage.completed"
	EventTypeBlueprintEnsured = "blueprint.ensured"
	EventTypeWebhookResolved  = "webhook.resolved"
	EventTypeDriftDetected    = "drift.detected"
	EventTypePolicyViolation  = "policy.violation"
	EventTypeError            = "error"
)

// EventLevel constants for event severity.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// EventSubscriber is a function that handles events.
type EventSubscriber func(event Event)

// EventFilter determines if an event should be processed.
type EventFilter func(event Event) bool

// EventPublisher manages event publishing and subscriptions.
type EventPublisher struct {
	config      EventsConfig
	buffer      chan Event
	subscribers []subscriberEntry
	filters     []EventFilter
	wg          sync.WaitGroup
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
}

type subscriberEntry struct {
	subscriber EventSubscriber
	filter     EventFilter
}

// NewEventPublisher creates a new event publisher with the given configuration.
func NewEventPublisher(cfg EventsConfig) (*EventPublisher, error) {
	if !cfg.Enabled {
		return &EventPublisher{config: cfg}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())

	ep := &EventPublisher{
		config:      cfg,
		subscribers: make([]subscriberEntry, 0),
		filters:     make([]EventFilter, 0),
		ctx:         ctx,
		cancel:      cancel,
	}

	// Start the event processing goroutine only for async delivery;
	// synchronous delivery hands events to subscribers inline, which keeps
	// event order aligned with the strictly sequential run stages.
	if cfg.EnableAsync {
		ep.buffer = make(chan Event, cfg.BufferSize)
		ep.wg.Add(1)
		go ep.processEvents()
	}

	return ep, nil
}

// Publish publishes an event to all subscribers.
func (ep *EventPublisher) Publish(event Event) error {
	if !ep.config.Enabled {
		return nil
	}

	// Set ID and timestamp if not already set
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	// Apply global filters
	ep.mu.RLock()
	for _, filter := range ep.filters {
		if !filter(event) {
			ep.mu.RUnlock()
			return nil // Event filtered out
		}
	}
	ep.mu.RUnlock()

	// Send to buffer if async, otherwise process immediately
	if ep.config.EnableAsync {
		select {
		case ep.buffer <- event:
			return nil
		case <-ep.ctx.Done():
			return fmt.Errorf("event publisher stopped")
		default:
			// Buffer full, drop event
			return fmt.Errorf("event buffer full, event dropped")
		}
	}

	// Synchronous publishing
	ep.deliverEvent(event)
	return nil
}

// PublishRunStarted publishes a run started event.
func (ep *EventPublisher) PublishRunStarted(runID, command, integrationID string) error {
	return ep.Publish(Event{
		Type:       EventTypeRunStarted,
		Source:     "runner",
		RunID:      runID,
		ResourceID: integrationID,
		Message:    fmt.Sprintf("Run %s started (%s)", runID, command),
		Level:      EventLevelInfo,
		Data: map[string]interface{}{
			"command": command,
		},
	})
}

// PublishRunCompleted publishes a run completed event.
func (ep *EventPublisher) PublishRunCompleted(runID, outcome string, duration time.Duration) error {
	return ep.Publish(Event{
		Type:    EventTypeRunCompleted,
		Source:  "runner",
		RunID:   runID,
		Message: fmt.Sprintf("Run %s completed with outcome: %s", runID, outcome),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"outcome":  outcome,
			"duration": duration.Seconds(),
		},
	})
}

// PublishRunFailed publishes a run failed event.
func (ep *EventPublisher) PublishRunFailed(runID, reason string) error {
	return ep.Publish(Event{
		Type:    EventTypeRunFailed,
		Source:  "runner",
		RunID:   runID,
		Message: fmt.Sprintf("Run %s failed: %s", runID, reason),
		Level:   EventLevelError,
		Data: map[string]interface{}{
			"reason": reason,
		},
	})
}

// PublishStageStarted publishes a stage started event.
func (ep *EventPublisher) PublishStageStarted(runID, stage string) error {
	return ep.Publish(Event{
		Type:    EventTypeStageStarted,
		Source:  "runner",
		RunID:   runID,
		Stage:   stage,
		Message: fmt.Sprintf("Stage %s started", stage),
		Level:   EventLevelInfo,
	})
}

// PublishStageCompleted publishes a stage completed event.
func (ep *EventPublisher) PublishStageCompleted(runID, stage string, duration time.Duration) error {
	return ep.Publish(Event{
		Type:    EventTypeStageCompleted,
		Source:  "runner",
		RunID:   runID,
		Stage:   stage,
		Message: fmt.Sprintf("Stage %s completed", stage),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"duration": duration.Seconds(),
		},
	})
}

// PublishBlueprintEnsured publishes a per-blueprint result from the ensure pass.
func (ep *EventPublisher) PublishBlueprintEnsured(runID, identifier, action string) error {
	return ep.Publish(Event{
		Type:       EventTypeBlueprintEnsured,
		Source:     "blueprints",
		RunID:      runID,
		Stage:      "blueprints",
		ResourceID: identifier,
		Message:    fmt.Sprintf("Blueprint %s: %s", identifier, action),
		Level:      EventLevelInfo,
		Data: map[string]interface{}{
			"action": action,
		},
	})
}

// PublishWebhookResolved publishes the resolved webhook URL.
func (ep *EventPublisher) PublishWebhookResolved(runID, identifier, url string) error {
	return ep.Publish(Event{
		Type:       EventTypeWebhookResolved,
		Source:     "webhook",
		RunID:      runID,
		Stage:      "webhook",
		ResourceID: identifier,
		Message:    fmt.Sprintf("Webhook resolved to %s", url),
		Level:      EventLevelInfo,
		Data: map[string]interface{}{
			"url": url,
		},
	})
}

// PublishDriftDetected publishes a drift detected event.
func (ep *EventPublisher) PublishDriftDetected(runID, integrationID string, entryCount int) error {
	return ep.Publish(Event{
		Type:       EventTypeDriftDetected,
		Source:     "drift",
		RunID:      runID,
		Stage:      "drift",
		ResourceID: integrationID,
		Message:    fmt.Sprintf("Drift detected on integration %s (%d entries)", integrationID, entryCount),
		Level:      EventLevelWarning,
		Data: map[string]interface{}{
			"entry_count": entryCount,
		},
	})
}

// PublishPolicyViolation publishes a policy violation event.
func (ep *EventPublisher) PublishPolicyViolation(runID, policyName, severity, reason string) error {
	level := EventLevelWarning
	if severity == "error" {
		level = EventLevelError
	}
	return ep.Publish(Event{
		Type:    EventTypePolicyViolation,
		Source:  "policy",
		RunID:   runID,
		Stage:   "policy",
		Message: fmt.Sprintf("Policy violation: %s - %s", policyName, reason),
		Level:   level,
		Data: map[string]interface{}{
			"policy":   policyName,
			"severity": severity,
			"reason":   reason,
		},
	})
}

// Subscribe adds a new event subscriber.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.subscribers = append(ep.subscribers, subscriberEntry{
		subscriber: subscriber,
		filter:     filter,
	})
}

// AddFilter adds a global event filter.
func (ep *EventPublisher) AddFilter(filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.filters = append(ep.filters, filter)
}

// processEvents processes events from the buffer asynchronously.
func (ep *EventPublisher) processEvents() {
	defer ep.wg.Done()

	for {
		select {
		case event := <-ep.buffer:
			ep.deliverEvent(event)

		case <-ep.ctx.Done():
			// Drain remaining events before shutting down
			for {
				select {
				case event := <-ep.buffer:
					ep.deliverEvent(event)
				default:
					return
				}
			}
		}
	}
}

// deliverEvent delivers an event to all subscribers.
func (ep *EventPublisher) deliverEvent(event Event) {
	ep.mu.RLock()
	defer ep.mu.RUnlock()

	for _, entry := range ep.subscribers {
		// Apply subscriber-specific filter
		if entry.filter != nil && !entry.filter(event) {
			continue
		}

		entry.subscriber(event)
	}
}

// Shutdown gracefully shuts down the event publisher.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	if !ep.config.Enabled || ep.cancel == nil {
		return nil
	}

	// Signal shutdown
	ep.cancel()

	// Wait for processing to complete with timeout
	done := make(chan struct{})
	go func() {
		ep.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event publisher shutdown timeout")
	}
}

// Common event filters.

// FilterByLevel creates a filter that only allows events of a specific level or higher.
func FilterByLevel(minLevel string) EventFilter {
	levels := map[string]int{
		EventLevelInfo:    0,
		EventLevelWarning: 1,
		EventLevelError:   2,
	}

	minLevelValue := levels[minLevel]

	return func(event Event) bool {
		return levels[event.Level] >= minLevelValue
	}
}

// FilterByType creates a filter that only allows events of specific types.
func FilterByType(types ...string) EventFilter {
	typeSet := make(map[string]bool)
	for _, t := range types {
		typeSet[t] = true
	}

	return func(event Event) bool {
		return typeSet[event.Type]
	}
}

// FilterByRunID creates a filter that only allows events for a specific run.
func FilterByRunID(runID string) EventFilter {
	return func(event Event) bool {
		return event.RunID == runID
	}
}

// FilterByStage creates a filter that only allows events for a specific stage.
func FilterByStage(stage string) EventFilter {
	return func(event Event) bool {
		return event.Stage == stage
	}
}
