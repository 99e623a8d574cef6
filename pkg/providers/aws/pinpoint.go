package aws

import (
	"context"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/pinpoint"
	"github.com/aws/aws-sdk-go-v2/service/pinpoint/types"

	"github.com/openfroyo/pinpoint-eventstream/pkg/engine"
	"github.com/openfroyo/pinpoint-eventstream/pkg/telemetry"
)

const servicePinpoint = "pinpoint"

// SubscriptionService implements engine.SubscriptionService on Pinpoint.
type SubscriptionService struct {
	client PinpointAPI
}

var _ engine.SubscriptionService = (*SubscriptionService)(nil)

// NewSubscriptionService creates a SubscriptionService.
func NewSubscriptionService(client PinpointAPI) *SubscriptionService {
	return &SubscriptionService{client: client}
}

// PutEventStream binds applicationID to streamARN through roleARN.
func (s *SubscriptionService) PutEventStream(ctx context.Context, applicationID, streamARN, roleARN string) error {
	return telemetry.RecordProviderOperation(ctx, servicePinpoint, "PutEventStream", func(ctx context.Context) error {
		_, err := s.client.PutEventStream(ctx, &pinpoint.PutEventStreamInput{
			ApplicationId: awssdk.String(applicationID),
			WriteEventStream: &types.WriteEventStream{
				DestinationStreamArn: awssdk.String(streamARN),
				RoleArn:              awssdk.String(roleARN),
			},
		})
		return classify(servicePinpoint, "PutEventStream", applicationID, err)
	})
}

// DeleteEventStream removes the binding for applicationID.
func (s *SubscriptionService) DeleteEventStream(ctx context.Context, applicationID string) error {
	return telemetry.RecordProviderOperation(ctx, servicePinpoint, "DeleteEventStream", func(ctx context.Context) error {
		_, err := s.client.DeleteEventStream(ctx, &pinpoint.DeleteEventStreamInput{
			ApplicationId: awssdk.String(applicationID),
		})
		return classify(servicePinpoint, "DeleteEventStream", applicationID, err)
	})
}
