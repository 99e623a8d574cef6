package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/openfroyo/pinpoint-eventstream/pkg/telemetry"
)

// Step names, in create order followed by delete order.
const (
	StepStreamCreate       = "stream.create"
	StepRoleCreate         = "role.create"
	StepSettle             = "settle"
	StepSubscriptionAttach = "subscription.attach"
	StepSubscriptionDetach = "subscription.detach"
	StepStreamDelete       = "stream.delete"
	StepRoleDelete         = "role.delete"
)

// Orchestrator sequences the managers for each lifecycle event.
//
// It keeps no state between invocations. Two invocations for the same
// application identifier are not coordinated; the invoking framework is
// expected to serialize them.
type Orchestrator struct {
	streams       *StreamManager
	access        *AccessManager
	subscriptions *SubscriptionManager
	waiter        WaitPolicy
	journal       Journal
	logger        zerolog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithJournal records every invocation in j.
func WithJournal(j Journal) Option {
	return func(o *Orchestrator) {
		o.journal = j
	}
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(streams *StreamManager, access *AccessManager, subscriptions *SubscriptionManager, waiter WaitPolicy, logger zerolog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		streams:       streams,
		access:        access,
		subscriptions: subscriptions,
		waiter:        waiter,
		logger:        logger.With().Str("component", "orchestrator").Logger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Handle dispatches event to OnCreate, OnUpdate or OnDelete.
func (o *Orchestrator) Handle(ctx context.Context, event LifecycleEvent) (*Result, error) {
	if err := event.Type.Validate(); err != nil {
		return nil, err
	}
	switch event.Type {
	case EventCreate:
		return o.create(ctx, event)
	case EventUpdate:
		return o.OnUpdate(ctx, event)
	default:
		return o.delete(ctx, event)
	}
}

// OnCreate provisions the stream, the role and policy, and the
// subscription, in that order. The first failure aborts the sequence and
// is returned; resources created before it are not removed.
func (o *Orchestrator) OnCreate(ctx context.Context, applicationID string) (*Result, error) {
	return o.create(ctx, LifecycleEvent{Type: EventCreate, ApplicationID: applicationID})
}

// OnUpdate acknowledges an update without touching any resource.
func (o *Orchestrator) OnUpdate(ctx context.Context, event LifecycleEvent) (*Result, error) {
	event.Type = EventUpdate
	inv, ctx := o.begin(ctx, event)
	inv.logger.Info().Msg("Update requested, nothing to reconcile")
	return inv.finish(ctx, PhaseUpdated, nil)
}

// OnDelete removes the subscription, the stream, then the role and
// policy. Absent resources are tolerated at every step; only a
// non-tolerated provider error stops the sequence.
func (o *Orchestrator) OnDelete(ctx context.Context, applicationID string) (*Result, error) {
	return o.delete(ctx, LifecycleEvent{Type: EventDelete, ApplicationID: applicationID})
}

func (o *Orchestrator) create(ctx context.Context, event LifecycleEvent) (*Result, error) {
	inv, ctx := o.begin(ctx, event)
	appID := event.ApplicationID

	if err := inv.transition(PhaseCreating); err != nil {
		return inv.finish(ctx, PhaseFailed, err)
	}
	if err := ValidateApplicationID(appID); err != nil {
		return inv.finish(ctx, PhaseFailed, err)
	}

	var stream StreamHandle
	err := inv.step(ctx, StepStreamCreate, ResourceStream, func(ctx context.Context) (StepStatus, error) {
		h, err := o.streams.CreateStream(ctx, appID)
		if err != nil {
			return StepFailed, err
		}
		stream = h
		return StepSucceeded, nil
	})
	if err != nil {
		return inv.finish(ctx, PhaseFailed, err)
	}
	inv.result.Outputs.StreamArn = stream.ARN

	var role RoleHandle
	err = inv.step(ctx, StepRoleCreate, ResourceRole, func(ctx context.Context) (StepStatus, error) {
		h, err := o.access.CreateRole(ctx, appID, stream)
		if err != nil {
			return StepFailed, err
		}
		role = h
		return StepSucceeded, nil
	})
	if err != nil {
		return inv.finish(ctx, PhaseFailed, err)
	}
	inv.result.Outputs.PinpointRoleArn = role.ARN

	err = inv.step(ctx, StepSettle, ResourceRole, func(ctx context.Context) (StepStatus, error) {
		if err := o.waiter.Settle(ctx); err != nil {
			return StepFailed, err
		}
		return StepSucceeded, nil
	})
	if err != nil {
		return inv.finish(ctx, PhaseFailed, err)
	}

	err = inv.step(ctx, StepSubscriptionAttach, ResourceSubscription, func(ctx context.Context) (StepStatus, error) {
		if err := o.subscriptions.Attach(ctx, appID, stream, role); err != nil {
			return StepFailed, err
		}
		return StepSucceeded, nil
	})
	if err != nil {
		return inv.finish(ctx, PhaseFailed, err)
	}

	return inv.finish(ctx, PhaseCreated, nil)
}

func (o *Orchestrator) delete(ctx context.Context, event LifecycleEvent) (*Result, error) {
	inv, ctx := o.begin(ctx, event)
	appID := event.ApplicationID

	if err := inv.transition(PhaseDeleting); err != nil {
		return inv.finish(ctx, PhaseFailed, err)
	}
	// Create rejects such identifiers before any provider call, so there
	// is nothing to remove.
	if err := ValidateApplicationID(appID); err != nil {
		inv.logger.Warn().Err(err).Msg("Invalid application id, no resources can exist")
		return inv.finish(ctx, PhaseDeleted, nil)
	}

	steps := []struct {
		name string
		kind ResourceKind
		run  func(ctx context.Context) (StepStatus, error)
	}{
		{StepSubscriptionDetach, ResourceSubscription, func(ctx context.Context) (StepStatus, error) {
			return o.subscriptions.Detach(ctx, appID)
		}},
		{StepStreamDelete, ResourceStream, func(ctx context.Context) (StepStatus, error) {
			return o.streams.DeleteStream(ctx, appID)
		}},
		{StepRoleDelete, ResourceRole, func(ctx context.Context) (StepStatus, error) {
			return o.access.DeleteRole(ctx, appID)
		}},
	}

	for _, s := range steps {
		if err := inv.step(ctx, s.name, s.kind, s.run); err != nil {
			return inv.finish(ctx, PhaseFailed, err)
		}
	}

	inv.logger.Info().Msg("Delete complete")
	return inv.finish(ctx, PhaseDeleted, nil)
}

// invocation tracks one pass through the state machine.
type invocation struct {
	o      *Orchestrator
	result *Result
	logger zerolog.Logger
}

func (o *Orchestrator) begin(ctx context.Context, event LifecycleEvent) (*invocation, context.Context) {
	inv := &invocation{
		o: o,
		result: &Result{
			InvocationID: uuid.NewString(),
			Event:        event,
			Phase:        PhaseIdle,
			StartedAt:    time.Now(),
		},
	}
	inv.logger = o.logger.With().
		Str("invocation_id", inv.result.InvocationID).
		Str("event_type", string(event.Type)).
		Str("application_id", event.ApplicationID).
		Logger()

	inv.logger.Info().Msgf("%s: %s", event.Type, event.ApplicationID)
	ctx = telemetry.WithInvocationContext(ctx, inv.result.InvocationID, string(event.Type), event.ApplicationID)

	if o.journal != nil {
		if err := o.journal.BeginInvocation(ctx, inv.result); err != nil {
			inv.logger.Warn().Err(err).Msg("Failed to journal invocation start")
		}
	}
	return inv, ctx
}

func (inv *invocation) transition(next Phase) error {
	current := inv.result.Phase
	if !current.CanTransition(next) {
		return fmt.Errorf("illegal phase transition %s -> %s", current, next)
	}
	inv.result.Phase = next
	return nil
}

// step runs fn as a named step. The returned error is non-nil only when fn
// reports StepFailed.
func (inv *invocation) step(ctx context.Context, name string, kind ResourceKind, fn func(ctx context.Context) (StepStatus, error)) error {
	stepCtx := telemetry.WithStepContext(ctx, inv.result.InvocationID, name, string(kind))
	started := time.Now()

	status, err := fn(stepCtx)
	if status == "" {
		status = StepSucceeded
		if err != nil {
			status = StepFailed
		}
	}

	res := StepResult{
		Name:      name,
		Resource:  kind,
		Status:    status,
		StartedAt: started,
		Duration:  time.Since(started),
		Err:       err,
	}
	inv.result.Steps = append(inv.result.Steps, res)

	var failure error
	if status == StepFailed {
		failure = err
	}
	telemetry.EndStepContext(stepCtx, inv.result.InvocationID, name, string(kind), string(status), failure)

	if inv.o.journal != nil {
		if jerr := inv.o.journal.RecordStep(ctx, inv.result.InvocationID, res); jerr != nil {
			inv.logger.Warn().Err(jerr).Str("step", name).Msg("Failed to journal step")
		}
	}

	ev := inv.logger.Debug()
	if status == StepFailed {
		ev = inv.logger.Error().Err(err)
	}
	ev.Str("step", name).Str("status", string(status)).Dur("duration", res.Duration).Msg("Step finished")

	return failure
}

func (inv *invocation) finish(ctx context.Context, phase Phase, err error) (*Result, error) {
	if err != nil {
		phase = PhaseFailed
	}
	if inv.result.Phase != phase && inv.transition(phase) != nil {
		// Only reachable from idle; record the terminal phase regardless.
		inv.result.Phase = phase
	}
	inv.result.CompletedAt = time.Now()

	if err != nil {
		inv.logger.Error().Err(err).Str("phase", string(phase)).Msg("Invocation failed")
	} else {
		inv.logger.Info().Str("phase", string(phase)).Msg("Invocation finished")
	}

	telemetry.EndInvocationContext(ctx, inv.result.InvocationID, string(inv.result.Event.Type), string(phase), err)

	if inv.o.journal != nil {
		if jerr := inv.o.journal.CompleteInvocation(ctx, inv.result, err); jerr != nil {
			inv.logger.Warn().Err(jerr).Msg("Failed to journal invocation result")
		}
	}
	return inv.result, err
}
