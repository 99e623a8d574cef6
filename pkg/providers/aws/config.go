package aws

import (
	"context"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/kinesis"
	"github.com/aws/aws-sdk-go-v2/service/pinpoint"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// Config selects the account and region the adapters talk to.
type Config struct {
	// Region is required; it is never inferred from the environment here.
	Region string

	// Profile selects a shared config profile. Empty uses the default chain.
	Profile string

	// Endpoint overrides every service endpoint, for LocalStack and similar.
	Endpoint string

	// AccessKeyID and SecretAccessKey, when both set, replace the default
	// credential chain.
	AccessKeyID     string
	SecretAccessKey string
}

// Clients holds one SDK client per service.
type Clients struct {
	Kinesis  KinesisAPI
	IAM      IAMAPI
	STS      GetCallerIdentityAPI
	Pinpoint PinpointAPI
}

// LoadClients resolves credentials and builds the SDK clients.
func LoadClients(ctx context.Context, cfg Config) (*Clients, error) {
	if cfg.Region == "" {
		return nil, fmt.Errorf("aws region is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.Profile))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewClients(awsCfg, cfg.Endpoint), nil
}

// NewClients builds the SDK clients from an already resolved config.
func NewClients(awsCfg awssdk.Config, endpoint string) *Clients {
	if endpoint == "" {
		return &Clients{
			Kinesis:  kinesis.NewFromConfig(awsCfg),
			IAM:      iam.NewFromConfig(awsCfg),
			STS:      sts.NewFromConfig(awsCfg),
			Pinpoint: pinpoint.NewFromConfig(awsCfg),
		}
	}

	base := awssdk.String(endpoint)
	return &Clients{
		Kinesis: kinesis.NewFromConfig(awsCfg, func(o *kinesis.Options) {
			o.BaseEndpoint = base
		}),
		IAM: iam.NewFromConfig(awsCfg, func(o *iam.Options) {
			o.BaseEndpoint = base
		}),
		STS: sts.NewFromConfig(awsCfg, func(o *sts.Options) {
			o.BaseEndpoint = base
		}),
		Pinpoint: pinpoint.NewFromConfig(awsCfg, func(o *pinpoint.Options) {
			o.BaseEndpoint = base
		}),
	}
}
