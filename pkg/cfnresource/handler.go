package cfnresource

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-lambda-go/cfn"
	"github.com/rs/zerolog"

	"github.com/openfroyo/pinpoint-eventstream/pkg/engine"
)

// PropertyApplicationID is the resource property naming the Pinpoint application.
const PropertyApplicationID = "ApplicationId"

// DefaultResponseReserve is the time kept back from the Lambda deadline so
// a FAILED response can still be sent when a wait runs long.
const DefaultResponseReserve = 5 * time.Second

// Orchestrator runs one lifecycle event.
type Orchestrator interface {
	Handle(ctx context.Context, event engine.LifecycleEvent) (*engine.Result, error)
}

// Handler adapts CloudFormation custom resource events to the orchestrator.
type Handler struct {
	orchestrator Orchestrator
	logger       zerolog.Logger
	reserve      time.Duration
}

// Option configures a Handler.
type Option func(*Handler)

// WithResponseReserve overrides DefaultResponseReserve. Zero disables it.
func WithResponseReserve(d time.Duration) Option {
	return func(h *Handler) {
		h.reserve = d
	}
}

// NewHandler creates a handler.
func NewHandler(orchestrator Orchestrator, logger zerolog.Logger, opts ...Option) *Handler {
	h := &Handler{
		orchestrator: orchestrator,
		logger:       logger.With().Str("component", "cfn-handler").Logger(),
		reserve:      DefaultResponseReserve,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// LambdaHandler returns the function to pass to lambda.Start. It sends the
// response to CloudFormation's pre-signed URL.
func (h *Handler) LambdaHandler() cfn.CustomResourceLambdaFunction {
	return cfn.LambdaWrap(h.Handle)
}

// Handle runs event and returns the physical resource ID and response data.
// The physical ID is returned on failure too, since CloudFormation rejects
// responses without one.
func (h *Handler) Handle(ctx context.Context, event cfn.Event) (string, map[string]interface{}, error) {
	appID := ApplicationID(event.ResourceProperties)
	physicalID := PhysicalResourceID(event, appID)

	logger := h.logger.With().
		Str("request_type", string(event.RequestType)).
		Str("request_id", event.RequestID).
		Str("logical_resource_id", event.LogicalResourceID).
		Str("application_id", appID).
		Logger()

	eventType, err := EventType(event.RequestType)
	if err != nil {
		logger.Error().Err(err).Msg("Rejecting custom resource request")
		return physicalID, nil, err
	}

	ctx, cancel := h.withReserve(ctx)
	defer cancel()

	logger.Info().Str("physical_resource_id", physicalID).Msg("Handling custom resource request")

	result, err := h.orchestrator.Handle(ctx, engine.LifecycleEvent{
		Type:          eventType,
		ApplicationID: appID,
		RequestID:     event.RequestID,
	})
	if err != nil {
		logger.Error().Err(err).Str("kind", string(engine.KindOf(err))).Msg("Custom resource request failed")
		return physicalID, nil, err
	}

	logger.Info().
		Str("phase", string(result.Phase)).
		Str("invocation_id", result.InvocationID).
		Msg("Custom resource request succeeded")

	if eventType != engine.EventCreate {
		return physicalID, nil, nil
	}
	return physicalID, result.Outputs.Map(), nil
}

func (h *Handler) withReserve(ctx context.Context) (context.Context, context.CancelFunc) {
	deadline, ok := ctx.Deadline()
	if !ok || h.reserve <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithDeadline(ctx, deadline.Add(-h.reserve))
}

// EventType maps a CloudFormation request type to a lifecycle event type.
func EventType(rt cfn.RequestType) (engine.EventType, error) {
	switch rt {
	case cfn.RequestCreate:
		return engine.EventCreate, nil
	case cfn.RequestUpdate:
		return engine.EventUpdate, nil
	case cfn.RequestDelete:
		return engine.EventDelete, nil
	default:
		return "", engine.NewValidationError(fmt.Sprintf("unsupported request type %q", string(rt)), nil)
	}
}

// ApplicationID reads the ApplicationId property. Missing or non-string
// values yield "", which the orchestrator rejects on Create and treats as
// nothing-to-delete on Delete.
func ApplicationID(props map[string]interface{}) string {
	v, ok := props[PropertyApplicationID].(string)
	if !ok {
		return ""
	}
	return v
}

// PhysicalResourceID keeps the ID CloudFormation already assigned, so an
// Update never looks like a replacement. On Create it is the derived
// stream name, falling back to the request ID when the application ID is
// unusable.
func PhysicalResourceID(event cfn.Event, applicationID string) string {
	if event.PhysicalResourceID != "" {
		return event.PhysicalResourceID
	}
	if engine.ValidateApplicationID(applicationID) == nil {
		return engine.StreamName(applicationID)
	}
	return event.RequestID
}
