package telemetry

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/trace"
)

// Telemetry combines logging, tracing, metrics and events.
type Telemetry struct {
	Logger  *Logger
	Tracer  *Tracer
	Metrics *Metrics
	Events  *EventPublisher
	Config  *Config
}

// telemetryContextKey is the context key for telemetry instances.
type telemetryContextKey struct{}

// NewTelemetry creates a new telemetry instance from configuration.
func NewTelemetry(cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	tracer, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)
	if err != nil {
		return nil, err
	}

	metrics, err := NewMetrics(cfg.Metrics)
	if err != nil {
		return nil, err
	}

	events, err := NewEventPublisher(cfg.Events)
	if err != nil {
		return nil, err
	}

	return &Telemetry{
		Logger:  logger,
		Tracer:  tracer,
		Metrics: metrics,
		Events:  events,
		Config:  cfg,
	}, nil
}

// WithContext adds the telemetry instance to the context.
func (t *Telemetry) WithContext(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, telemetryContextKey{}, t)
	return t.Logger.WithContext(ctx)
}

// FromTelemetryContext retrieves the telemetry instance from the context.
// If no telemetry is found, it returns nil.
func FromTelemetryContext(ctx context.Context) *Telemetry {
	if t, ok := ctx.Value(telemetryContextKey{}).(*Telemetry); ok {
		return t
	}
	return nil
}

// Shutdown drains events and flushes the tracer.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if err := t.Events.Shutdown(ctx); err != nil {
		return err
	}
	return t.Tracer.Shutdown(ctx)
}

// Flush forces all pending spans to be exported.
func (t *Telemetry) Flush(ctx context.Context) error {
	return t.Tracer.ForceFlush(ctx)
}

type invocationSpanKey struct{}
type invocationTimerKey struct{}
type stepSpanKey struct{}
type stepTimerKey struct{}

// WithInvocationContext opens the span, metrics and start event of one
// lifecycle invocation. It returns ctx unchanged when no Telemetry is
// attached.
func WithInvocationContext(ctx context.Context, invocationID, eventType, applicationID string) context.Context {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return ctx
	}

	spanCtx, span := tel.Tracer.StartInvocationSpan(ctx, invocationID, eventType, applicationID)

	logger := tel.Logger.WithInvocationID(invocationID).WithApplicationID(applicationID)
	spanCtx = logger.WithContext(spanCtx)

	tel.Metrics.RecordInvocationStarted(eventType)
	_ = tel.Events.PublishInvocationStarted(invocationID, eventType, applicationID)

	spanCtx = context.WithValue(spanCtx, invocationSpanKey{}, span)
	return context.WithValue(spanCtx, invocationTimerKey{}, NewTimer())
}

// EndInvocationContext closes what WithInvocationContext opened.
func EndInvocationContext(ctx context.Context, invocationID, eventType, phase string, err error) {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return
	}

	if span, ok := ctx.Value(invocationSpanKey{}).(trace.Span); ok {
		span.SetAttributes(AttrPhase.String(phase))
		if err != nil {
			span.SetAttributes(AttrErrorKind.String(errorKind(err)))
			RecordError(span, err)
		} else {
			RecordSuccess(span)
		}
		span.End()
	}

	var timer *Timer
	if t, ok := ctx.Value(invocationTimerKey{}).(*Timer); ok {
		timer = t
	} else {
		timer = NewTimer()
	}
	duration := timer.Duration()

	tel.Metrics.RecordInvocationCompleted(eventType, phase, duration)
	if err != nil {
		tel.Metrics.RecordError(errorKind(err))
		_ = tel.Events.PublishInvocationFailed(invocationID, eventType, err.Error())
		return
	}
	_ = tel.Events.PublishInvocationCompleted(invocationID, eventType, phase, duration)
}

// WithStepContext opens the span and start event of one orchestration step.
func WithStepContext(ctx context.Context, invocationID, step, resourceKind string) context.Context {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return ctx
	}

	spanCtx, span := tel.Tracer.StartStepSpan(ctx, invocationID, step, resourceKind)

	logger := tel.Logger.WithInvocationID(invocationID).WithStep(step, resourceKind)
	spanCtx = logger.WithContext(spanCtx)

	_ = tel.Events.PublishStepStarted(invocationID, step, resourceKind)

	spanCtx = context.WithValue(spanCtx, stepSpanKey{}, span)
	return context.WithValue(spanCtx, stepTimerKey{}, NewTimer())
}

// EndStepContext closes what WithStepContext opened. err is non-nil only
// for a failed step.
func EndStepContext(ctx context.Context, invocationID, step, resourceKind, status string, err error) {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return
	}

	if span, ok := ctx.Value(stepSpanKey{}).(trace.Span); ok {
		span.SetAttributes(AttrStepStatus.String(status))
		if err != nil {
			RecordError(span, err)
		} else {
			RecordSuccess(span)
		}
		span.End()
	}

	var timer *Timer
	if t, ok := ctx.Value(stepTimerKey{}).(*Timer); ok {
		timer = t
	} else {
		timer = NewTimer()
	}
	duration := timer.Duration()

	tel.Metrics.RecordStep(step, resourceKind, status, duration)
	if err != nil {
		_ = tel.Events.PublishStepFailed(invocationID, step, err.Error())
		return
	}
	_ = tel.Events.PublishStepCompleted(invocationID, step, status, duration)
}

// RecordProviderOperation runs fn inside a provider span and records its
// call count, latency and failure.
func RecordProviderOperation(ctx context.Context, service, operation string, fn func(ctx context.Context) error) error {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return fn(ctx)
	}

	spanCtx, span := tel.Tracer.StartProviderSpan(ctx, service, operation)
	defer span.End()

	timer := NewTimer()
	err := fn(spanCtx)

	tel.Metrics.RecordProviderCall(service, operation, timer.Duration())
	if err != nil {
		tel.Metrics.RecordProviderError(service, operation)
		RecordError(span, err)
	} else {
		RecordSuccess(span)
	}
	return err
}

// kindedError is implemented by errors that carry a classification.
type kindedError interface {
	KindName() string
}

func errorKind(err error) string {
	var k kindedError
	if errors.As(err, &k) {
		return k.KindName()
	}
	return "unknown"
}
