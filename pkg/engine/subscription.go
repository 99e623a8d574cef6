package engine

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// SubscriptionManager binds and unbinds the application's event stream.
type SubscriptionManager struct {
	subscriptions SubscriptionService
	logger        zerolog.Logger
}

// NewSubscriptionManager creates a subscription manager.
func NewSubscriptionManager(subscriptions SubscriptionService, logger zerolog.Logger) *SubscriptionManager {
	return &SubscriptionManager{
		subscriptions: subscriptions,
		logger:        logger.With().Str("component", "subscription-manager").Logger(),
	}
}

// Attach binds applicationID to stream through role. The provider applies
// the binding synchronously, so there is no wait.
func (m *SubscriptionManager) Attach(ctx context.Context, applicationID string, stream StreamHandle, role RoleHandle) error {
	m.logger.Info().
		Str("application_id", applicationID).
		Str("stream_arn", stream.ARN).
		Str("role_arn", role.ARN).
		Msg("Creating event stream")

	if err := m.subscriptions.PutEventStream(ctx, applicationID, stream.ARN, role.ARN); err != nil {
		return fmt.Errorf("put event stream for %s: %w", applicationID, err)
	}
	return nil
}

// Detach removes the binding. It never fails the teardown: a dangling
// binding is cheaper than orphaned streams and roles, so every error is
// logged and handed back alongside StepTolerated for reporting only.
func (m *SubscriptionManager) Detach(ctx context.Context, applicationID string) (StepStatus, error) {
	err := m.subscriptions.DeleteEventStream(ctx, applicationID)
	switch {
	case err == nil:
		m.logger.Info().Str("application_id", applicationID).Msg("Deleted event stream")
		return StepSucceeded, nil
	case IsNotFound(err):
		m.logger.Info().Err(err).Str("application_id", applicationID).Msg("Event stream not found, skipping")
		return StepTolerated, err
	default:
		m.logger.Warn().Err(err).Str("application_id", applicationID).Msg("Failed to delete event stream, continuing teardown")
		return StepTolerated, err
	}
}
