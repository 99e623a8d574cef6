package engine

import (
	"fmt"
)

// EventType is the lifecycle event delivered by the provisioning framework.
type EventType string

const (
	// EventCreate brings the resource set into existence.
	EventCreate EventType = "Create"

	// EventUpdate is accepted and acknowledged without reconciliation.
	EventUpdate EventType = "Update"

	// EventDelete tears the resource set down.
	EventDelete EventType = "Delete"
)

// Validate checks if the event type is valid.
func (t EventType) Validate() error {
	switch t {
	case EventCreate, EventUpdate, EventDelete:
		return nil
	default:
		return NewValidationError(fmt.Sprintf("invalid lifecycle event type: %q", string(t)), nil)
	}
}

// Phase is the state of a single orchestrator invocation.
type Phase string

const (
	// PhaseIdle is the state before any step has run.
	PhaseIdle Phase = "idle"

	// PhaseCreating indicates the create sequence is running.
	PhaseCreating Phase = "creating"

	// PhaseCreated indicates every create step succeeded.
	PhaseCreated Phase = "created"

	// PhaseDeleting indicates the delete sequence is running.
	PhaseDeleting Phase = "deleting"

	// PhaseDeleted indicates every delete step succeeded or was tolerated.
	PhaseDeleted Phase = "deleted"

	// PhaseUpdated indicates an update event was acknowledged.
	PhaseUpdated Phase = "updated"

	// PhaseFailed indicates a fatal error ended the invocation.
	PhaseFailed Phase = "failed"
)

// IsTerminal returns true if no further transition is possible.
func (p Phase) IsTerminal() bool {
	return p == PhaseCreated || p == PhaseDeleted || p == PhaseUpdated || p == PhaseFailed
}

// allowedTransitions is the fixed invocation state machine.
var allowedTransitions = map[Phase][]Phase{
	PhaseIdle:     {PhaseCreating, PhaseDeleting, PhaseUpdated},
	PhaseCreating: {PhaseCreated, PhaseFailed},
	PhaseDeleting: {PhaseDeleted, PhaseFailed},
}

// CanTransition returns true if moving from p to next is allowed.
func (p Phase) CanTransition(next Phase) bool {
	for _, allowed := range allowedTransitions[p] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ResourceKind identifies one of the managed resource kinds.
type ResourceKind string

const (
	// ResourceStream is the Kinesis data stream.
	ResourceStream ResourceKind = "stream"

	// ResourceRole is the IAM role assumed by Pinpoint.
	ResourceRole ResourceKind = "role"

	// ResourcePolicy is the IAM access policy attached to the role.
	ResourcePolicy ResourceKind = "policy"

	// ResourceSubscription is the Pinpoint event stream binding.
	ResourceSubscription ResourceKind = "subscription"
)

// Validate checks if the resource kind is valid.
func (k ResourceKind) Validate() error {
	switch k {
	case ResourceStream, ResourceRole, ResourcePolicy, ResourceSubscription:
		return nil
	default:
		return fmt.Errorf("invalid resource kind: %s", k)
	}
}

// StepStatus is the outcome of a single orchestration step.
type StepStatus string

const (
	// StepSucceeded indicates the step completed.
	StepSucceeded StepStatus = "succeeded"

	// StepTolerated indicates the step hit a tolerated condition (an absent
	// resource during delete, or a swallowed detach failure).
	StepTolerated StepStatus = "tolerated"

	// StepFailed indicates the step ended the invocation.
	StepFailed StepStatus = "failed"
)
