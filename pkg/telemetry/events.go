package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is a lifecycle notification delivered to subscribers.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type is the event type.
	Type string `json:"type"`

	// Source identifies where the event originated.
	Source string `json:"source"`

	// InvocationID is the associated invocation, if any.
	InvocationID string `json:"invocation_id,omitempty"`

	// Step is the associated orchestration step, if any.
	Step string `json:"step,omitempty"`

	// Message is a human-readable event message.
	Message string `json:"message"`

	// Level is the event severity level (info, warning, error).
	Level string `json:"level"`

	// Data contains additional event-specific data.
	Data map[string]interface{} `json:"data,omitempty"`
}

// Event types.
const (
	EventTypeInvocationStarted   = "invocation.started"
	EventTypeInvocationCompleted = "invocation.completed"
	EventTypeInvocationFailed    = "invocation.failed"
	EventTypeStepStarted         = "step.started"
	EventTypeStepCompleted       = "step.completed"
	EventTypeStepFailed          = "step.failed"
	EventTypePolicyViolation     = "policy.violation"
)

// Event severity levels.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// EventSubscriber is a function that handles events.
type EventSubscriber func(event Event)

// EventFilter determines if an event should be processed.
type EventFilter func(event Event) bool

// EventPublisher fans events out to subscribers, either inline or from a
// background goroutine.
type EventPublisher struct {
	config      EventsConfig
	buffer      chan Event
	subscribers []subscriberEntry
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
	if cfg.BufferSize <= 0 {
		return nil, fmt.Errorf("event buffer size must be positive, got: %d", cfg.BufferSize)
	}

	ctx, cancel := context.WithCancel(context.Background())
	ep := &EventPublisher{
		config: cfg,
		buffer: make(chan Event, cfg.BufferSize),
		ctx:    ctx,
		cancel: cancel,
	}

	if cfg.EnableAsync {
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

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if ep.config.EnableAsync {
		select {
		case <-ep.ctx.Done():
			return fmt.Errorf("event publisher stopped")
		default:
		}
		select {
		case ep.buffer <- event:
			return nil
		default:
			return fmt.Errorf("event buffer full, event dropped")
		}
	}

	ep.deliverEvent(event)
	return nil
}

// PublishInvocationStarted publishes an invocation started event.
func (ep *EventPublisher) PublishInvocationStarted(invocationID, eventType, applicationID string) error {
	return ep.Publish(Event{
		Type:         EventTypeInvocationStarted,
		Source:       "orchestrator",
		InvocationID: invocationID,
		Message:      fmt.Sprintf("%s started for application %s", eventType, applicationID),
		Level:        EventLevelInfo,
		Data: map[string]interface{}{
			"event_type":     eventType,
			"application_id": applicationID,
		},
	})
}

// PublishInvocationCompleted publishes an invocation completed event.
func (ep *EventPublisher) PublishInvocationCompleted(invocationID, eventType, phase string, duration time.Duration) error {
	return ep.Publish(Event{
		Type:         EventTypeInvocationCompleted,
		Source:       "orchestrator",
		InvocationID: invocationID,
		Message:      fmt.Sprintf("%s finished in phase %s", eventType, phase),
		Level:        EventLevelInfo,
		Data: map[string]interface{}{
			"event_type": eventType,
			"phase":      phase,
			"duration":   duration.Seconds(),
		},
	})
}

// PublishInvocationFailed publishes an invocation failed event.
func (ep *EventPublisher) PublishInvocationFailed(invocationID, eventType, reason string) error {
	return ep.Publish(Event{
		Type:         EventTypeInvocationFailed,
		Source:       "orchestrator",
		InvocationID: invocationID,
		Message:      fmt.Sprintf("%s failed: %s", eventType, reason),
		Level:        EventLevelError,
		Data: map[string]interface{}{
			"event_type": eventType,
			"reason":     reason,
		},
	})
}

// PublishStepStarted publishes a step started event.
func (ep *EventPublisher) PublishStepStarted(invocationID, step, resourceKind string) error {
	return ep.Publish(Event{
		Type:         EventTypeStepStarted,
		Source:       "orchestrator",
		InvocationID: invocationID,
		Step:         step,
		Message:      fmt.Sprintf("Step %s started", step),
		Level:        EventLevelInfo,
		Data: map[string]interface{}{
			"resource_kind": resourceKind,
		},
	})
}

// PublishStepCompleted publishes a step completed event. A step that
// tolerated an absent resource is reported at warning level.
func (ep *EventPublisher) PublishStepCompleted(invocationID, step, status string, duration time.Duration) error {
	level := EventLevelInfo
	if status == "tolerated" {
		level = EventLevelWarning
	}
	return ep.Publish(Event{
		Type:         EventTypeStepCompleted,
		Source:       "orchestrator",
		InvocationID: invocationID,
		Step:         step,
		Message:      fmt.Sprintf("Step %s %s", step, status),
		Level:        level,
		Data: map[string]interface{}{
			"status":   status,
			"duration": duration.Seconds(),
		},
	})
}

// PublishStepFailed publishes a step failed event.
func (ep *EventPublisher) PublishStepFailed(invocationID, step, errorMsg string) error {
	return ep.Publish(Event{
		Type:         EventTypeStepFailed,
		Source:       "orchestrator",
		InvocationID: invocationID,
		Step:         step,
		Message:      fmt.Sprintf("Step %s failed: %s", step, errorMsg),
		Level:        EventLevelError,
		Data: map[string]interface{}{
			"error": errorMsg,
		},
	})
}

// PublishPolicyViolation publishes a policy violation event.
func (ep *EventPublisher) PublishPolicyViolation(policyName, rule, message, severity string) error {
	level := EventLevelWarning
	if severity == "error" {
		level = EventLevelError
	}
	return ep.Publish(Event{
		Type:    EventTypePolicyViolation,
		Source:  "policy",
		Message: fmt.Sprintf("Policy %s violated: %s", policyName, message),
		Level:   level,
		Data: map[string]interface{}{
			"policy":   policyName,
			"rule":     rule,
			"severity": severity,
		},
	})
}

// Subscribe registers a subscriber for events. filter may be nil.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) {
	if !ep.config.Enabled {
		return
	}
	ep.mu.Lock()
	defer ep.mu.Unlock()
	ep.subscribers = append(ep.subscribers, subscriberEntry{
		subscriber: subscriber,
		filter:     filter,
	})
}

// processEvents delivers buffered events until shutdown, then drains
// whatever remains.
func (ep *EventPublisher) processEvents() {
	defer ep.wg.Done()
	for {
		select {
		case event := <-ep.buffer:
			ep.deliverEvent(event)
		case <-ep.ctx.Done():
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

// deliverEvent calls each matching subscriber in registration order.
func (ep *EventPublisher) deliverEvent(event Event) {
	ep.mu.RLock()
	subs := make([]subscriberEntry, len(ep.subscribers))
	copy(subs, ep.subscribers)
	ep.mu.RUnlock()

	for _, entry := range subs {
		if entry.filter != nil && !entry.filter(event) {
			continue
		}
		entry.subscriber(event)
	}
}

// Shutdown stops the publisher and waits for buffered events to be
// delivered or ctx to expire.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	if !ep.config.Enabled || ep.cancel == nil {
		return nil
	}
	ep.cancel()

	done := make(chan struct{})
	go func() {
		ep.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event publisher shutdown: %w", ctx.Err())
	}
}

// FilterByLevel accepts events at or above minLevel.
func FilterByLevel(minLevel string) EventFilter {
	levels := map[string]int{
		EventLevelInfo:    0,
		EventLevelWarning: 1,
		EventLevelError:   2,
	}
	min := levels[minLevel]
	return func(event Event) bool {
		return levels[event.Level] >= min
	}
}

// FilterByType accepts events of the given types.
func FilterByType(types ...string) EventFilter {
	allowed := make(map[string]bool, len(types))
	for _, t := range types {
		allowed[t] = true
	}
	return func(event Event) bool {
		return allowed[event.Type]
	}
}

// FilterByInvocationID accepts events of one invocation.
func FilterByInvocationID(invocationID string) EventFilter {
	return func(event Event) bool {
		return event.InvocationID == invocationID
	}
}
