package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/openfroyo/pinpoint-eventstream/pkg/bootstrap"
	"github.com/openfroyo/pinpoint-eventstream/pkg/config"
	"github.com/openfroyo/pinpoint-eventstream/pkg/telemetry"
)

var (
	// Global flags
	configPath string
	verbose    bool
	jsonOutput bool

	// version is reported as the telemetry service version.
	version = "dev"
)

// Execute runs the root command
func Execute(ctx context.Context, ver, commit, buildDate string) error {
	version = ver
	rootCmd := newRootCommand(ver, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "eventstreamctl",
		Short: "Operate Pinpoint event-stream resources outside CloudFormation",
		Long: `eventstreamctl drives the same orchestrator as the
Custom::PinpointEventStream Lambda function, from a terminal.

For an application ID it manages:
  - the Kinesis stream event-stream-<id>
  - the IAM role pinpoint-service-<id>-role and its policy
  - the Pinpoint event stream that publishes to the Kinesis stream`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path (yaml, json or cue)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newCreateCommand())
	rootCmd.AddCommand(newUpdateCommand())
	rootCmd.AddCommand(newDeleteCommand())
	rootCmd.AddCommand(newNamesCommand())
	rootCmd.AddCommand(newRenderPolicyCommand())
	rootCmd.AddCommand(newGuardCommand())
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newConfigCommand())

	return rootCmd
}

// loadConfig reads --config plus the environment.
func loadConfig() (*config.Config, error) {
	loader, err := config.NewLoader(nil)
	if err != nil {
		return nil, err
	}
	return loader.Load(configPath)
}

// newRuntime wires the orchestrator for commands that talk to AWS. Logs go
// to stderr in console format unless --json is set; --verbose lowers the
// level to debug.
func newRuntime(ctx context.Context, cfg *config.Config) (*bootstrap.Runtime, error) {
	if !jsonOutput {
		cfg.Telemetry.LogFormat = "console"
	}
	if verbose {
		cfg.Telemetry.LogLevel = "debug"
	}
	return bootstrap.New(ctx, cfg, bootstrap.Options{
		Telemetry: telemetry.CLIConfig(),
		Version:   version,
	})
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
