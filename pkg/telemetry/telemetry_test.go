package telemetry

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type kindError struct{ kind string }

func (e kindError) Error() string    { return "boom" }
func (e kindError) KindName() string { return e.kind }

func newTestTelemetry(t *testing.T) (*Telemetry, *tracetest.SpanRecorder, *bytes.Buffer) {
	t.Helper()

	cfg := DefaultConfig()
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	metrics, err := NewMetrics(cfg.Metrics)
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}
	events, err := NewEventPublisher(cfg.Events)
	if err != nil {
		t.Fatalf("NewEventPublisher() error = %v", err)
	}

	var buf bytes.Buffer
	return &Telemetry{
		Logger:  NewLoggerWithWriter(cfg.Logging, &buf),
		Tracer:  NewTracerWithProvider(provider, cfg.ServiceName, cfg.Tracing),
		Metrics: metrics,
		Events:  events,
		Config:  cfg,
	}, recorder, &buf
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default", func(*Config) {}, false},
		{"lambda", func(c *Config) { *c = *LambdaConfig() }, false},
		{"cli", func(c *Config) { *c = *CLIConfig() }, false},
		{"empty service name", func(c *Config) { c.ServiceName = "" }, true},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, true},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, true},
		{"bad exporter", func(c *Config) { c.Tracing.Enabled = true; c.Tracing.Exporter = "jaeger" }, true},
		{"otlp without endpoint", func(c *Config) { c.Tracing.Enabled = true; c.Tracing.Exporter = "otlp" }, true},
		{"sampling out of range", func(c *Config) { c.Tracing.SamplingRate = 1.5 }, true},
		{"zero buffer", func(c *Config) { c.Events.BufferSize = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestInvocationContextRecordsSpansAndMetrics(t *testing.T) {
	tel, recorder, _ := newTestTelemetry(t)
	ctx := tel.WithContext(context.Background())

	ctx = WithInvocationContext(ctx, "inv-1", "Create", "app123")
	stepCtx := WithStepContext(ctx, "inv-1", "stream.create", "stream")
	err := RecordProviderOperation(stepCtx, "kinesis", "CreateStream", func(context.Context) error {
		return nil
	})
	if err != nil {
		t.Fatalf("RecordProviderOperation() error = %v", err)
	}
	EndStepContext(stepCtx, "inv-1", "stream.create", "stream", "succeeded", nil)
	EndInvocationContext(ctx, "inv-1", "Create", "created", nil)

	spans := recorder.Ended()
	if len(spans) != 3 {
		t.Fatalf("expected 3 ended spans, got %d", len(spans))
	}
	wantNames := []string{"provider.kinesis.CreateStream", "step.stream.create", "invocation.Create"}
	for i, want := range wantNames {
		if spans[i].Name() != want {
			t.Errorf("span %d name = %q, want %q", i, spans[i].Name(), want)
		}
	}
	root := spans[2]
	if spans[1].Parent().SpanID() != root.SpanContext().SpanID() {
		t.Error("step span is not a child of the invocation span")
	}
	if spans[0].Parent().SpanID() != spans[1].SpanContext().SpanID() {
		t.Error("provider span is not a child of the step span")
	}

	m := tel.Metrics
	if got := testutil.ToFloat64(m.invocationsStarted.WithLabelValues("Create")); got != 1 {
		t.Errorf("invocations started = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.invocationsCompleted.WithLabelValues("Create", "created")); got != 1 {
		t.Errorf("invocations completed = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.activeInvocations); got != 0 {
		t.Errorf("active invocations = %v, want 0", got)
	}
	if got := testutil.ToFloat64(m.stepsExecuted.WithLabelValues("stream.create", "succeeded")); got != 1 {
		t.Errorf("steps executed = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.providerCalls.WithLabelValues("kinesis", "CreateStream")); got != 1 {
		t.Errorf("provider calls = %v, want 1", got)
	}
}

func TestEndInvocationContextRecordsErrorKind(t *testing.T) {
	tel, recorder, _ := newTestTelemetry(t)
	ctx := tel.WithContext(context.Background())

	ctx = WithInvocationContext(ctx, "inv-2", "Create", "app123")
	EndInvocationContext(ctx, "inv-2", "Create", "failed", kindError{kind: "timeout"})

	if got := testutil.ToFloat64(tel.Metrics.errorsByKind.WithLabelValues("timeout")); got != 1 {
		t.Errorf("errors by kind = %v, want 1", got)
	}

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Status().Code != codes.Error {
		t.Errorf("span status = %v, want Error", spans[0].Status().Code)
	}
}

func TestRecordProviderOperationError(t *testing.T) {
	tel, _, _ := newTestTelemetry(t)
	ctx := tel.WithContext(context.Background())

	want := errors.New("throttled")
	err := RecordProviderOperation(ctx, "iam", "CreateRole", func(context.Context) error {
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("RecordProviderOperation() error = %v, want %v", err, want)
	}
	if got := testutil.ToFloat64(tel.Metrics.providerErrors.WithLabelValues("iam", "CreateRole")); got != 1 {
		t.Errorf("provider errors = %v, want 1", got)
	}
}

func TestHelpersWithoutTelemetry(t *testing.T) {
	ctx := context.Background()

	if got := WithInvocationContext(ctx, "inv", "Delete", "app"); got != ctx {
		t.Error("WithInvocationContext should return ctx unchanged")
	}
	if got := WithStepContext(ctx, "inv", "settle", "role"); got != ctx {
		t.Error("WithStepContext should return ctx unchanged")
	}
	EndStepContext(ctx, "inv", "settle", "role", "succeeded", nil)
	EndInvocationContext(ctx, "inv", "Delete", "deleted", nil)

	called := false
	err := RecordProviderOperation(ctx, "pinpoint", "PutEventStream", func(context.Context) error {
		called = true
		return nil
	})
	if err != nil || !called {
		t.Errorf("RecordProviderOperation() called=%v err=%v", called, err)
	}
}

func TestDisabledMetricsAreNoOps(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}
	m.RecordInvocationStarted("Create")
	m.RecordInvocationCompleted("Create", "created", time.Second)
	m.RecordStep("settle", "role", "succeeded", time.Second)
	m.RecordProviderCall("sts", "GetCallerIdentity", time.Second)
	m.RecordProviderError("sts", "GetCallerIdentity")
	m.RecordError("unavailable")
	if m.Registry() != nil {
		t.Error("disabled metrics should have no registry")
	}
	if err := m.WriteTextfile(t.TempDir() + "/x.prom"); err != nil {
		t.Errorf("WriteTextfile() error = %v", err)
	}
}

func TestEventPublisherSyncOrderingAndFilters(t *testing.T) {
	ep, err := NewEventPublisher(EventsConfig{Enabled: true, BufferSize: 8})
	if err != nil {
		t.Fatalf("NewEventPublisher() error = %v", err)
	}

	var got []string
	ep.Subscribe(func(e Event) { got = append(got, e.Step) }, FilterByType(EventTypeStepCompleted))

	var warnings int
	ep.Subscribe(func(Event) { warnings++ }, FilterByLevel(EventLevelWarning))

	_ = ep.PublishStepStarted("inv", "subscription.detach", "subscription")
	_ = ep.PublishStepCompleted("inv", "subscription.detach", "tolerated", time.Millisecond)
	_ = ep.PublishStepCompleted("inv", "stream.delete", "succeeded", time.Millisecond)
	_ = ep.PublishStepFailed("inv", "role.delete", "access denied")

	if strings.Join(got, ",") != "subscription.detach,stream.delete" {
		t.Errorf("completed steps = %v", got)
	}
	if warnings != 2 {
		t.Errorf("warning-or-above events = %d, want 2", warnings)
	}
}

func TestEventPublisherAsyncDrainsOnShutdown(t *testing.T) {
	ep, err := NewEventPublisher(EventsConfig{Enabled: true, BufferSize: 16, EnableAsync: true})
	if err != nil {
		t.Fatalf("NewEventPublisher() error = %v", err)
	}

	var mu sync.Mutex
	count := 0
	ep.Subscribe(func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	}, FilterByInvocationID("inv-a"))

	for i := 0; i < 5; i++ {
		if err := ep.PublishInvocationStarted("inv-a", "Create", "app"); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}
	_ = ep.PublishInvocationStarted("inv-b", "Create", "app")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ep.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if count != 5 {
		t.Errorf("delivered = %d, want 5", count)
	}
	if err := ep.PublishInvocationStarted("inv-a", "Create", "app"); err == nil {
		t.Error("expected error publishing after shutdown")
	}
}

func TestLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(LoggingConfig{Level: "info", Format: "json"}, &buf)

	logger.NewComponentLogger("orchestrator").
		WithInvocationID("inv-9").
		WithApplicationID("app123").
		WithStep("role.create", "role").
		Info("Created role")

	out := buf.String()
	for _, want := range []string{`"component":"orchestrator"`, `"invocation_id":"inv-9"`, `"application_id":"app123"`, `"step":"role.create"`, `"resource_kind":"role"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log output %s missing %s", out, want)
		}
	}

	buf.Reset()
	logger.Debug("hidden")
	if buf.Len() != 0 {
		t.Errorf("debug message written at info level: %s", buf.String())
	}
}
