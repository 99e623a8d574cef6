package aws

import (
	"context"
	"sync"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/openfroyo/pinpoint-eventstream/pkg/engine"
	"github.com/openfroyo/pinpoint-eventstream/pkg/telemetry"
)

const (
	serviceIAM = "iam"
	serviceSTS = "sts"
)

// IdentityService implements engine.IdentityService on IAM and STS.
type IdentityService struct {
	iam         IAMAPI
	sts         GetCallerIdentityAPI
	description string

	mu        sync.Mutex
	accountID string
}

var _ engine.IdentityService = (*IdentityService)(nil)

// NewIdentityService creates an IdentityService. description is set on
// created roles and policies and may be empty.
func NewIdentityService(iamClient IAMAPI, stsClient GetCallerIdentityAPI, description string) *IdentityService {
	return &IdentityService{
		iam:         iamClient,
		sts:         stsClient,
		description: description,
	}
}

// CreateRole creates a role and returns its ARN.
func (s *IdentityService) CreateRole(ctx context.Context, name, trustDocument string) (string, error) {
	var arn string
	err := telemetry.RecordProviderOperation(ctx, serviceIAM, "CreateRole", func(ctx context.Context) error {
		in := &iam.CreateRoleInput{
			RoleName:                 awssdk.String(name),
			AssumeRolePolicyDocument: awssdk.String(trustDocument),
		}
		if s.description != "" {
			in.Description = awssdk.String(s.description)
		}
		out, err := s.iam.CreateRole(ctx, in)
		if err != nil {
			return classify(serviceIAM, "CreateRole", name, err)
		}
		if out.Role == nil || out.Role.Arn == nil {
			return engine.NewUnavailableError("create role returned no ARN", nil).WithResource(name)
		}
		arn = *out.Role.Arn
		return nil
	})
	return arn, err
}

// CreatePolicy creates a managed policy and returns its ARN.
func (s *IdentityService) CreatePolicy(ctx context.Context, name, document string) (string, error) {
	var arn string
	err := telemetry.RecordProviderOperation(ctx, serviceIAM, "CreatePolicy", func(ctx context.Context) error {
		in := &iam.CreatePolicyInput{
			PolicyName:     awssdk.String(name),
			PolicyDocument: awssdk.String(document),
		}
		if s.description != "" {
			in.Description = awssdk.String(s.description)
		}
		out, err := s.iam.CreatePolicy(ctx, in)
		if err != nil {
			return classify(serviceIAM, "CreatePolicy", name, err)
		}
		if out.Policy == nil || out.Policy.Arn == nil {
			return engine.NewUnavailableError("create policy returned no ARN", nil).WithResource(name)
		}
		arn = *out.Policy.Arn
		return nil
	})
	return arn, err
}

// AttachRolePolicy attaches policyARN to roleName.
func (s *IdentityService) AttachRolePolicy(ctx context.Context, roleName, policyARN string) error {
	return telemetry.RecordProviderOperation(ctx, serviceIAM, "AttachRolePolicy", func(ctx context.Context) error {
		_, err := s.iam.AttachRolePolicy(ctx, &iam.AttachRolePolicyInput{
			RoleName:  awssdk.String(roleName),
			PolicyArn: awssdk.String(policyARN),
		})
		return classify(serviceIAM, "AttachRolePolicy", roleName, err)
	})
}

// DetachRolePolicy detaches policyARN from roleName.
func (s *IdentityService) DetachRolePolicy(ctx context.Context, roleName, policyARN string) error {
	return telemetry.RecordProviderOperation(ctx, serviceIAM, "DetachRolePolicy", func(ctx context.Context) error {
		_, err := s.iam.DetachRolePolicy(ctx, &iam.DetachRolePolicyInput{
			RoleName:  awssdk.String(roleName),
			PolicyArn: awssdk.String(policyARN),
		})
		return classify(serviceIAM, "DetachRolePolicy", roleName, err)
	})
}

// DeletePolicy deletes the managed policy.
func (s *IdentityService) DeletePolicy(ctx context.Context, policyARN string) error {
	return telemetry.RecordProviderOperation(ctx, serviceIAM, "DeletePolicy", func(ctx context.Context) error {
		_, err := s.iam.DeletePolicy(ctx, &iam.DeletePolicyInput{
			PolicyArn: awssdk.String(policyARN),
		})
		return classify(serviceIAM, "DeletePolicy", policyARN, err)
	})
}

// DeleteRole deletes the role.
func (s *IdentityService) DeleteRole(ctx context.Context, roleName string) error {
	return telemetry.RecordProviderOperation(ctx, serviceIAM, "DeleteRole", func(ctx context.Context) error {
		_, err := s.iam.DeleteRole(ctx, &iam.DeleteRoleInput{
			RoleName: awssdk.String(roleName),
		})
		return classify(serviceIAM, "DeleteRole", roleName, err)
	})
}

// AccountID resolves the caller's account once and caches it.
func (s *IdentityService) AccountID(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.accountID != "" {
		return s.accountID, nil
	}

	err := telemetry.RecordProviderOperation(ctx, serviceSTS, "GetCallerIdentity", func(ctx context.Context) error {
		out, err := s.sts.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
		if err != nil {
			return classify(serviceSTS, "GetCallerIdentity", "", err)
		}
		if awssdk.ToString(out.Account) == "" {
			return engine.NewUnavailableError("caller identity has no account", nil)
		}
		s.accountID = *out.Account
		return nil
	})
	if err != nil {
		return "", err
	}
	return s.accountID, nil
}
