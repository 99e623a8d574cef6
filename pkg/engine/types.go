package engine

import (
	"time"
)

// Output keys returned to the provisioning framework.
const (
	OutputStreamArn       = "StreamArn"
	OutputPinpointRoleArn = "PinpointRoleArn"
)

// LifecycleEvent is a single Create, Update or Delete request.
type LifecycleEvent struct {
	// Type is the lifecycle event type.
	Type EventType `json:"event_type"`

	// ApplicationID is the opaque Pinpoint application identifier.
	ApplicationID string `json:"application_id"`

	// RequestID correlates the invocation with the framework's request, if known.
	RequestID string `json:"request_id,omitempty"`
}

// StreamHandle is the durable identity of a created stream.
type StreamHandle struct {
	// Name is the derived stream name.
	Name string `json:"name"`

	// ARN is the provider-assigned stream ARN.
	ARN string `json:"arn"`
}

// RoleHandle is the durable identity of the created role and its policy.
type RoleHandle struct {
	// Name is the derived role name.
	Name string `json:"name"`

	// ARN is the provider-assigned role ARN.
	ARN string `json:"arn"`

	// PolicyName is the derived policy name.
	PolicyName string `json:"policy_name"`

	// PolicyARN is the provider-assigned policy ARN.
	PolicyARN string `json:"policy_arn"`
}

// Outputs is the data handed back to the framework after a successful Create.
type Outputs struct {
	StreamArn       string `json:"StreamArn"`
	PinpointRoleArn string `json:"PinpointRoleArn"`
}

// Map returns the outputs keyed by their framework output names. Empty
// values are omitted.
func (o Outputs) Map() map[string]interface{} {
	m := make(map[string]interface{}, 2)
	if o.StreamArn != "" {
		m[OutputStreamArn] = o.StreamArn
	}
	if o.PinpointRoleArn != "" {
		m[OutputPinpointRoleArn] = o.PinpointRoleArn
	}
	return m
}

// StepResult records the outcome of one orchestration step.
type StepResult struct {
	// Name is the step name (e.g. "stream.create").
	Name string `json:"name"`

	// Resource is the kind of resource the step acts on.
	Resource ResourceKind `json:"resource"`

	// Status is the step outcome.
	Status StepStatus `json:"status"`

	// StartedAt is when the step began.
	StartedAt time.Time `json:"started_at"`

	// Duration is how long the step took.
	Duration time.Duration `json:"duration"`

	// Err is the error returned by the step, if any. Tolerated steps may
	// carry the swallowed error here.
	Err error `json:"-"`
}

// Result is the outcome of one orchestrator invocation.
type Result struct {
	// InvocationID uniquely identifies the invocation.
	InvocationID string `json:"invocation_id"`

	// Event is the lifecycle event that was handled.
	Event LifecycleEvent `json:"event"`

	// Phase is the terminal phase the invocation reached.
	Phase Phase `json:"phase"`

	// Outputs holds the accumulated outputs. Only populated on Create.
	Outputs Outputs `json:"outputs"`

	// Steps lists every step that ran, in order.
	Steps []StepResult `json:"steps"`

	// StartedAt is when the invocation began.
	StartedAt time.Time `json:"started_at"`

	// CompletedAt is when the invocation reached its terminal phase.
	CompletedAt time.Time `json:"completed_at"`
}
