// Package aws adapts the AWS SDK clients to the engine's provider
// interfaces. Each API interface below wraps exactly one SDK method so tests
// can inject fakes per call.
package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/kinesis"
	"github.com/aws/aws-sdk-go-v2/service/pinpoint"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// ---------------------------------------------------------------------------
// Kinesis
// ---------------------------------------------------------------------------

// CreateStreamAPI creates a data stream.
type CreateStreamAPI interface {
	CreateStream(ctx context.Context, params *kinesis.CreateStreamInput, optFns ...func(*kinesis.Options)) (*kinesis.CreateStreamOutput, error)
}

// DescribeStreamSummaryAPI reads a stream's status and ARN.
type DescribeStreamSummaryAPI interface {
	DescribeStreamSummary(ctx context.Context, params *kinesis.DescribeStreamSummaryInput, optFns ...func(*kinesis.Options)) (*kinesis.DescribeStreamSummaryOutput, error)
}

// DeleteStreamAPI deletes a data stream.
type DeleteStreamAPI interface {
	DeleteStream(ctx context.Context, params *kinesis.DeleteStreamInput, optFns ...func(*kinesis.Options)) (*kinesis.DeleteStreamOutput, error)
}

// KinesisAPI is the subset of the Kinesis client used by StreamService.
type KinesisAPI interface {
	CreateStreamAPI
	DescribeStreamSummaryAPI
	DeleteStreamAPI
}

// ---------------------------------------------------------------------------
// IAM
// ---------------------------------------------------------------------------

// CreateRoleAPI creates a role with a trust document.
type CreateRoleAPI interface {
	CreateRole(ctx context.Context, params *iam.CreateRoleInput, optFns ...func(*iam.Options)) (*iam.CreateRoleOutput, error)
}

// GetRoleAPI reads a role. Used as the role readiness probe.
type GetRoleAPI interface {
	GetRole(ctx context.Context, params *iam.GetRoleInput, optFns ...func(*iam.Options)) (*iam.GetRoleOutput, error)
}

// CreatePolicyAPI creates a managed policy.
type CreatePolicyAPI interface {
	CreatePolicy(ctx context.Context, params *iam.CreatePolicyInput, optFns ...func(*iam.Options)) (*iam.CreatePolicyOutput, error)
}

// GetPolicyAPI reads a managed policy. Used as the policy readiness probe.
type GetPolicyAPI interface {
	GetPolicy(ctx context.Context, params *iam.GetPolicyInput, optFns ...func(*iam.Options)) (*iam.GetPolicyOutput, error)
}

// AttachRolePolicyAPI attaches a managed policy to a role.
type AttachRolePolicyAPI interface {
	AttachRolePolicy(ctx context.Context, params *iam.AttachRolePolicyInput, optFns ...func(*iam.Options)) (*iam.AttachRolePolicyOutput, error)
}

// DetachRolePolicyAPI detaches a managed policy from a role.
type DetachRolePolicyAPI interface {
	DetachRolePolicy(ctx context.Context, params *iam.DetachRolePolicyInput, optFns ...func(*iam.Options)) (*iam.DetachRolePolicyOutput, error)
}

// DeletePolicyAPI deletes a managed policy.
type DeletePolicyAPI interface {
	DeletePolicy(ctx context.Context, params *iam.DeletePolicyInput, optFns ...func(*iam.Options)) (*iam.DeletePolicyOutput, error)
}

// DeleteRoleAPI deletes a role.
type DeleteRoleAPI interface {
	DeleteRole(ctx context.Context, params *iam.DeleteRoleInput, optFns ...func(*iam.Options)) (*iam.DeleteRoleOutput, error)
}

// IAMAPI is the subset of the IAM client used by IdentityService.
type IAMAPI interface {
	CreateRoleAPI
	GetRoleAPI
	CreatePolicyAPI
	GetPolicyAPI
	AttachRolePolicyAPI
	DetachRolePolicyAPI
	DeletePolicyAPI
	DeleteRoleAPI
}

// ---------------------------------------------------------------------------
// STS
// ---------------------------------------------------------------------------

// GetCallerIdentityAPI resolves the calling account.
type GetCallerIdentityAPI interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// ---------------------------------------------------------------------------
// Pinpoint
// ---------------------------------------------------------------------------

// PutEventStreamAPI binds an application's events to a stream.
type PutEventStreamAPI interface {
	PutEventStream(ctx context.Context, params *pinpoint.PutEventStreamInput, optFns ...func(*pinpoint.Options)) (*pinpoint.PutEventStreamOutput, error)
}

// DeleteEventStreamAPI removes an application's event stream binding.
type DeleteEventStreamAPI interface {
	DeleteEventStream(ctx context.Context, params *pinpoint.DeleteEventStreamInput, optFns ...func(*pinpoint.Options)) (*pinpoint.DeleteEventStreamOutput, error)
}

// PinpointAPI is the subset of the Pinpoint client used by
// SubscriptionService.
type PinpointAPI interface {
	PutEventStreamAPI
	DeleteEventStreamAPI
}

// ---------------------------------------------------------------------------
// Compile-time interface satisfaction checks
// ---------------------------------------------------------------------------

var (
	_ KinesisAPI           = (*kinesis.Client)(nil)
	_ IAMAPI               = (*iam.Client)(nil)
	_ GetCallerIdentityAPI = (*sts.Client)(nil)
	_ PinpointAPI          = (*pinpoint.Client)(nil)
)
