package engine

import (
	"context"
	"time"
)

// StreamService is the stream provider (Kinesis).
type StreamService interface {
	// CreateStream issues the creation call. It does not wait for the
	// stream to become active.
	CreateStream(ctx context.Context, name string, shardCount int32) error

	// DescribeStream returns the stream's durable identity and status.
	DescribeStream(ctx context.Context, name string) (*StreamDescription, error)

	// DeleteStream deletes the stream. enforceConsumerDeletion removes
	// registered consumers along with it.
	DeleteStream(ctx context.Context, name string, enforceConsumerDeletion bool) error
}

// StreamDescription is what the stream provider reports about a stream.
type StreamDescription struct {
	Name   string `json:"name"`
	ARN    string `json:"arn"`
	Status string `json:"status"`
}

// IdentityService is the identity provider (IAM plus account lookup).
type IdentityService interface {
	// CreateRole creates a role with the given trust document and returns its ARN.
	CreateRole(ctx context.Context, name, trustDocument string) (string, error)

	// CreatePolicy creates a managed policy and returns its ARN.
	CreatePolicy(ctx context.Context, name, document string) (string, error)

	// AttachRolePolicy attaches a managed policy to a role.
	AttachRolePolicy(ctx context.Context, roleName, policyARN string) error

	// DetachRolePolicy detaches a managed policy from a role.
	DetachRolePolicy(ctx context.Context, roleName, policyARN string) error

	// DeletePolicy deletes a managed policy.
	DeletePolicy(ctx context.Context, policyARN string) error

	// DeleteRole deletes a role.
	DeleteRole(ctx context.Context, roleName string) error

	// AccountID returns the account that owns the caller's credentials.
	AccountID(ctx context.Context) (string, error)
}

// SubscriptionService is the managed event-subscription provider (Pinpoint).
type SubscriptionService interface {
	// PutEventStream binds the application's events to the stream via the role.
	PutEventStream(ctx context.Context, applicationID, streamARN, roleARN string) error

	// DeleteEventStream removes the application's event stream binding.
	DeleteEventStream(ctx context.Context, applicationID string) error
}

// ReadinessProbe reports whether a freshly created resource is observable.
//
// Ready returns (true, nil) once the resource is usable and (false, nil)
// while it exists but is still settling. A not-found error means the
// resource is not visible yet; any other error is fatal to the wait.
type ReadinessProbe interface {
	Ready(ctx context.Context, kind ResourceKind, key string) (bool, error)
}

// WaitPolicy blocks the caller until resources are ready.
type WaitPolicy interface {
	// AwaitReady polls until the resource identified by kind and key is
	// ready, failing with a timeout error once timeout elapses.
	AwaitReady(ctx context.Context, kind ResourceKind, key string, timeout time.Duration) error

	// Settle waits out cross-service propagation lag that no probe can
	// observe.
	Settle(ctx context.Context) error
}

// DocumentCheck is the input to a DocumentGuard.
type DocumentCheck struct {
	ApplicationID string         `json:"application_id"`
	RoleName      string         `json:"role_name"`
	PolicyName    string         `json:"policy_name"`
	StreamARN     string         `json:"stream_arn"`
	Trust         PolicyDocument `json:"trust"`
	Access        PolicyDocument `json:"access"`
}

// DocumentGuard vets generated IAM documents before they reach the provider.
type DocumentGuard interface {
	CheckDocuments(ctx context.Context, check DocumentCheck) error
}

// Journal records invocation history. Journal failures never change the
// outcome of an invocation.
type Journal interface {
	// BeginInvocation records that an invocation started.
	BeginInvocation(ctx context.Context, result *Result) error

	// RecordStep records a completed step.
	RecordStep(ctx context.Context, invocationID string, step StepResult) error

	// CompleteInvocation records the terminal phase and outputs.
	CompleteInvocation(ctx context.Context, result *Result, err error) error
}
