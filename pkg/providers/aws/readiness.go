package aws

import (
	"context"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/kinesis/types"

	"github.com/openfroyo/pinpoint-eventstream/pkg/engine"
	"github.com/openfroyo/pinpoint-eventstream/pkg/telemetry"
)

// ReadinessProbe implements engine.ReadinessProbe. Streams are ready once
// ACTIVE; roles and policies once they can be read back.
type ReadinessProbe struct {
	streams *StreamService
	iam     IAMAPI
}

var _ engine.ReadinessProbe = (*ReadinessProbe)(nil)

// NewReadinessProbe creates a ReadinessProbe.
func NewReadinessProbe(streams *StreamService, iamClient IAMAPI) *ReadinessProbe {
	return &ReadinessProbe{streams: streams, iam: iamClient}
}

// Ready reports whether the resource is usable. key is the stream name,
// the role name, or the policy ARN.
func (p *ReadinessProbe) Ready(ctx context.Context, kind engine.ResourceKind, key string) (bool, error) {
	switch kind {
	case engine.ResourceStream:
		desc, err := p.streams.DescribeStream(ctx, key)
		if err != nil {
			return false, err
		}
		return desc.Status == string(types.StreamStatusActive), nil

	case engine.ResourceRole:
		err := telemetry.RecordProviderOperation(ctx, serviceIAM, "GetRole", func(ctx context.Context) error {
			_, err := p.iam.GetRole(ctx, &iam.GetRoleInput{RoleName: awssdk.String(key)})
			return classify(serviceIAM, "GetRole", key, err)
		})
		return err == nil, err

	case engine.ResourcePolicy:
		err := telemetry.RecordProviderOperation(ctx, serviceIAM, "GetPolicy", func(ctx context.Context) error {
			_, err := p.iam.GetPolicy(ctx, &iam.GetPolicyInput{PolicyArn: awssdk.String(key)})
			return classify(serviceIAM, "GetPolicy", key, err)
		})
		return err == nil, err

	default:
		return false, engine.NewValidationError(fmt.Sprintf("no readiness probe for %s", kind), nil).WithResource(key)
	}
}

// Provider bundles the adapters built from one set of clients.
type Provider struct {
	Streams       *StreamService
	Identity      *IdentityService
	Subscriptions *SubscriptionService
	Probe         *ReadinessProbe
}

// NewProvider builds every adapter from clients.
func NewProvider(clients *Clients, description string) *Provider {
	streams := NewStreamService(clients.Kinesis)
	return &Provider{
		Streams:       streams,
		Identity:      NewIdentityService(clients.IAM, clients.STS, description),
		Subscriptions: NewSubscriptionService(clients.Pinpoint),
		Probe:         NewReadinessProbe(streams, clients.IAM),
	}
}
