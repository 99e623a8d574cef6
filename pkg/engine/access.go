package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// AccessConfig configures an AccessManager.
type AccessConfig struct {
	// Partition is the ARN partition ("aws", "aws-cn", "aws-us-gov").
	Partition string

	// ServicePrincipal is the service allowed to assume the role.
	ServicePrincipal string

	// RoleWaitTimeout bounds the wait for the new role.
	RoleWaitTimeout time.Duration

	// PolicyWaitTimeout bounds the wait for the new policy.
	PolicyWaitTimeout time.Duration
}

// AccessManager creates and destroys the role, its policy, and the
// attachment between them.
type AccessManager struct {
	identity IdentityService
	waiter   WaitPolicy
	guard    DocumentGuard
	config   AccessConfig
	logger   zerolog.Logger
}

// NewAccessManager creates an access manager. guard may be nil.
func NewAccessManager(identity IdentityService, waiter WaitPolicy, guard DocumentGuard, cfg AccessConfig, logger zerolog.Logger) *AccessManager {
	if cfg.Partition == "" {
		cfg.Partition = "aws"
	}
	if cfg.ServicePrincipal == "" {
		cfg.ServicePrincipal = DefaultServicePrincipal
	}
	return &AccessManager{
		identity: identity,
		waiter:   waiter,
		guard:    guard,
		config:   cfg,
		logger:   logger.With().Str("component", "access-manager").Logger(),
	}
}

// Documents returns the trust and access documents for applicationID and
// stream without contacting any provider.
func (m *AccessManager) Documents(applicationID string, stream StreamHandle) DocumentCheck {
	names := NamesFor(applicationID)
	return DocumentCheck{
		ApplicationID: applicationID,
		RoleName:      names.Role,
		PolicyName:    names.Policy,
		StreamARN:     stream.ARN,
		Trust:         TrustDocument(m.config.ServicePrincipal),
		Access:        StreamAccessDocument(stream.ARN),
	}
}

// CreateRole creates the role and policy and attaches them. Any failure is
// returned as-is; resources created before the failure are left in place
// for Delete to clean up.
func (m *AccessManager) CreateRole(ctx context.Context, applicationID string, stream StreamHandle) (RoleHandle, error) {
	docs := m.Documents(applicationID, stream)
	m.logger.Info().Str("stream_arn", stream.ARN).Str("role", docs.RoleName).Msg("Creating role")

	if m.guard != nil {
		if err := m.guard.CheckDocuments(ctx, docs); err != nil {
			return RoleHandle{}, err
		}
	}

	trust, err := docs.Trust.JSON()
	if err != nil {
		return RoleHandle{}, err
	}
	access, err := docs.Access.JSON()
	if err != nil {
		return RoleHandle{}, err
	}

	roleARN, err := m.identity.CreateRole(ctx, docs.RoleName, trust)
	if err != nil {
		return RoleHandle{}, fmt.Errorf("create role %s: %w", docs.RoleName, err)
	}
	if err := m.waiter.AwaitReady(ctx, ResourceRole, docs.RoleName, m.config.RoleWaitTimeout); err != nil {
		return RoleHandle{}, err
	}
	m.logger.Info().Str("role", docs.RoleName).Str("role_arn", roleARN).Msg("Created role")

	policyARN, err := m.identity.CreatePolicy(ctx, docs.PolicyName, access)
	if err != nil {
		return RoleHandle{}, fmt.Errorf("create policy %s: %w", docs.PolicyName, err)
	}
	if err := m.waiter.AwaitReady(ctx, ResourcePolicy, policyARN, m.config.PolicyWaitTimeout); err != nil {
		return RoleHandle{}, err
	}
	m.logger.Info().Str("policy", docs.PolicyName).Str("policy_arn", policyARN).Msg("Created policy")

	if err := m.identity.AttachRolePolicy(ctx, docs.RoleName, policyARN); err != nil {
		return RoleHandle{}, fmt.Errorf("attach policy %s to role %s: %w", policyARN, docs.RoleName, err)
	}

	return RoleHandle{
		Name:       docs.RoleName,
		ARN:        roleARN,
		PolicyName: docs.PolicyName,
		PolicyARN:  policyARN,
	}, nil
}

// DeleteRole detaches the policy, deletes it, then deletes the role.
// Absence is tolerated per call: a missing attachment does not stop the
// policy or role deletion. Any other error stops the sequence.
func (m *AccessManager) DeleteRole(ctx context.Context, applicationID string) (StepStatus, error) {
	names := NamesFor(applicationID)

	accountID, err := m.identity.AccountID(ctx)
	if err != nil {
		return StepFailed, fmt.Errorf("resolve account id: %w", err)
	}
	policyARN := PolicyARN(m.config.Partition, accountID, names.Policy)

	status := StepSucceeded
	calls := []struct {
		what string
		run  func() error
	}{
		{"detach policy " + policyARN + " from role " + names.Role, func() error {
			return m.identity.DetachRolePolicy(ctx, names.Role, policyARN)
		}},
		{"delete policy " + policyARN, func() error {
			return m.identity.DeletePolicy(ctx, policyARN)
		}},
		{"delete role " + names.Role, func() error {
			return m.identity.DeleteRole(ctx, names.Role)
		}},
	}

	for _, call := range calls {
		err := call.run()
		switch {
		case err == nil:
			m.logger.Debug().Msg(call.what)
		case IsNotFound(err):
			m.logger.Warn().Err(err).Msgf("%s: not found, skipping", call.what)
			status = StepTolerated
		default:
			return StepFailed, fmt.Errorf("%s: %w", call.what, err)
		}
	}

	m.logger.Info().Str("role", names.Role).Str("policy", names.Policy).Msg("Deleted role and policy")
	return status, nil
}
