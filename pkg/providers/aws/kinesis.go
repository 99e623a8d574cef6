package aws

import (
	"context"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kinesis"
	"github.com/aws/aws-sdk-go-v2/service/kinesis/types"

	"github.com/openfroyo/pinpoint-eventstream/pkg/engine"
	"github.com/openfroyo/pinpoint-eventstream/pkg/telemetry"
)

const serviceKinesis = "kinesis"

// StreamService implements engine.StreamService on Kinesis.
type StreamService struct {
	client KinesisAPI
}

var _ engine.StreamService = (*StreamService)(nil)

// NewStreamService creates a StreamService.
func NewStreamService(client KinesisAPI) *StreamService {
	return &StreamService{client: client}
}

// CreateStream issues CreateStream in provisioned mode.
func (s *StreamService) CreateStream(ctx context.Context, name string, shardCount int32) error {
	return telemetry.RecordProviderOperation(ctx, serviceKinesis, "CreateStream", func(ctx context.Context) error {
		_, err := s.client.CreateStream(ctx, &kinesis.CreateStreamInput{
			StreamName: awssdk.String(name),
			ShardCount: awssdk.Int32(shardCount),
			StreamModeDetails: &types.StreamModeDetails{
				StreamMode: types.StreamModeProvisioned,
			},
		})
		return classify(serviceKinesis, "CreateStream", name, err)
	})
}

// DescribeStream reads the stream summary.
func (s *StreamService) DescribeStream(ctx context.Context, name string) (*engine.StreamDescription, error) {
	var desc *engine.StreamDescription
	err := telemetry.RecordProviderOperation(ctx, serviceKinesis, "DescribeStreamSummary", func(ctx context.Context) error {
		out, err := s.client.DescribeStreamSummary(ctx, &kinesis.DescribeStreamSummaryInput{
			StreamName: awssdk.String(name),
		})
		if err != nil {
			return classify(serviceKinesis, "DescribeStreamSummary", name, err)
		}
		if out.StreamDescriptionSummary == nil {
			return engine.NewUnavailableError("empty stream description", nil).WithResource(name)
		}
		desc = &engine.StreamDescription{
			Name:   name,
			ARN:    awssdk.ToString(out.StreamDescriptionSummary.StreamARN),
			Status: string(out.StreamDescriptionSummary.StreamStatus),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return desc, nil
}

// DeleteStream issues DeleteStream.
func (s *StreamService) DeleteStream(ctx context.Context, name string, enforceConsumerDeletion bool) error {
	return telemetry.RecordProviderOperation(ctx, serviceKinesis, "DeleteStream", func(ctx context.Context) error {
		_, err := s.client.DeleteStream(ctx, &kinesis.DeleteStreamInput{
			StreamName:              awssdk.String(name),
			EnforceConsumerDeletion: awssdk.Bool(enforceConsumerDeletion),
		})
		return classify(serviceKinesis, "DeleteStream", name, err)
	})
}
