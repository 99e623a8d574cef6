// Package telemetry provides observability for lifecycle invocations.
//
// It combines structured logging (zerolog), distributed tracing
// (OpenTelemetry), metrics (Prometheus) and an in-process event publisher.
//
// # Usage
//
// Build a Telemetry at startup and attach it to the context passed to the
// orchestrator:
//
//	tel, err := telemetry.NewTelemetry(telemetry.LambdaConfig())
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	ctx = tel.WithContext(ctx)
//
// The orchestrator brackets every invocation and step with the context
// helpers:
//
//	ctx = telemetry.WithInvocationContext(ctx, invocationID, "Create", appID)
//	defer telemetry.EndInvocationContext(ctx, invocationID, "Create", phase, err)
//
//	stepCtx := telemetry.WithStepContext(ctx, invocationID, "stream.create", "stream")
//	telemetry.EndStepContext(stepCtx, invocationID, "stream.create", "stream", "succeeded", nil)
//
// Provider adapters wrap each cloud API call:
//
//	err := telemetry.RecordProviderOperation(ctx, "kinesis", "CreateStream", func(ctx context.Context) error {
//	    _, err := client.CreateStream(ctx, input)
//	    return err
//	})
//
// All helpers are no-ops when the context carries no Telemetry.
//
// # Events
//
// Subscribers receive invocation and step events in order when EnableAsync
// is false:
//
//	tel.Events.Subscribe(func(e telemetry.Event) {
//	    fmt.Println(e.Message)
//	}, telemetry.FilterByType(telemetry.EventTypeStepCompleted))
//
// # Metrics
//
// Metrics live in a private registry. Serve it with StartMetricsServer or
// dump it with WriteTextfile when the process is short-lived.
package telemetry
