package commands

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/pinpoint-eventstream/pkg/engine"
	"github.com/openfroyo/pinpoint-eventstream/pkg/telemetry"
)

func newCreateCommand() *cobra.Command {
	return newLifecycleCommand(engine.EventCreate, &cobra.Command{
		Use:   "create",
		Short: "Create the stream, role and event stream for an application",
		Long: `Create provisions, in order:
  1. the Kinesis stream, waiting until it is ACTIVE
  2. the IAM role and policy, waiting until both are visible
  3. a fixed settle delay for IAM propagation
  4. the Pinpoint event stream

The first failure stops the sequence. Resources created before it are left
in place; run delete to remove them.`,
		Example: `  # Create resources for an application
  eventstreamctl create --app-id 4f1c2b9e

  # Against LocalStack with a shorter settle delay
  EVENTSTREAM_ENDPOINT=http://localhost:4566 EVENTSTREAM_SETTLE_DELAY=1s \
    eventstreamctl create --app-id app123`,
	})
}

func newUpdateCommand() *cobra.Command {
	return newLifecycleCommand(engine.EventUpdate, &cobra.Command{
		Use:   "update",
		Short: "Acknowledge an update (no resources change)",
		Long: `Update succeeds without calling AWS. Changing the application ID
is a replacement in CloudFormation terms: create the new set, then delete
the old one.`,
		Example: `  eventstreamctl update --app-id 4f1c2b9e`,
	})
}

func newDeleteCommand() *cobra.Command {
	return newLifecycleCommand(engine.EventDelete, &cobra.Command{
		Use:   "delete",
		Short: "Delete the event stream, stream, role and policy",
		Long: `Delete removes, in order:
  1. the Pinpoint event stream
  2. the Kinesis stream, with its consumers
  3. the policy (detached first) and the role

Resources that are already gone are skipped, so delete can be re-run after
a partial create or a partial delete.`,
		Example: `  eventstreamctl delete --app-id 4f1c2b9e`,
	})
}

// newLifecycleCommand adds the shared flags and run function to cmd.
func newLifecycleCommand(eventType engine.EventType, cmd *cobra.Command) *cobra.Command {
	var (
		appID     string
		requestID string
		timeout   time.Duration
	)

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		return runLifecycle(ctx, cmd.OutOrStdout(), engine.LifecycleEvent{
			Type:          eventType,
			ApplicationID: appID,
			RequestID:     requestID,
		})
	}

	cmd.Flags().StringVar(&appID, "app-id", "", "Pinpoint application ID (required)")
	cmd.Flags().StringVar(&requestID, "request-id", "", "correlation ID recorded in the journal")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "abort after this long (0 waits for the configured timeouts)")
	_ = cmd.MarkFlagRequired("app-id")

	return cmd
}

func runLifecycle(ctx context.Context, out io.Writer, event engine.LifecycleEvent) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(context.Background()); err != nil {
			log.Warn().Err(err).Msg("Shutdown incomplete")
		}
	}()

	rt.Telemetry.Metrics.StartMetricsServer(ctx, rt.Telemetry.Logger.Zerolog())
	if !jsonOutput {
		rt.Telemetry.Events.Subscribe(progressPrinter(out), telemetry.FilterByType(
			telemetry.EventTypeStepCompleted,
			telemetry.EventTypeStepFailed,
			telemetry.EventTypePolicyViolation,
		))
	}

	result, runErr := rt.Handle(ctx, event)
	if result != nil {
		if jsonOutput {
			if err := printJSON(out, result); err != nil {
				return err
			}
		} else {
			printResult(out, result)
		}
	}
	return runErr
}

// progressPrinter reports step outcomes as they happen.
func progressPrinter(out io.Writer) telemetry.EventSubscriber {
	return func(event telemetry.Event) {
		switch event.Type {
		case telemetry.EventTypeStepCompleted:
			fmt.Fprintf(out, "  %-22s %v\n", event.Step, event.Data["status"])
		case telemetry.EventTypeStepFailed:
			fmt.Fprintf(out, "  %-22s failed: %v\n", event.Step, event.Data["error"])
		default:
			fmt.Fprintf(out, "  guardrail: %s\n", event.Message)
		}
	}
}

func printResult(out io.Writer, result *engine.Result) {
	fmt.Fprintf(out, "%s %s: %s (%s)\n",
		result.Event.Type,
		result.Event.ApplicationID,
		result.Phase,
		result.CompletedAt.Sub(result.StartedAt).Round(time.Millisecond),
	)
	if result.Outputs.StreamArn != "" {
		fmt.Fprintf(out, "  %s: %s\n", engine.OutputStreamArn, result.Outputs.StreamArn)
	}
	if result.Outputs.PinpointRoleArn != "" {
		fmt.Fprintf(out, "  %s: %s\n", engine.OutputPinpointRoleArn, result.Outputs.PinpointRoleArn)
	}
}
