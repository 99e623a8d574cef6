// Command eventstream-resource is the Lambda function behind the
// Custom::PinpointEventStream CloudFormation resource.
package main

import (
	"context"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openfroyo/pinpoint-eventstream/pkg/bootstrap"
	"github.com/openfroyo/pinpoint-eventstream/pkg/cfnresource"
	"github.com/openfroyo/pinpoint-eventstream/pkg/config"
	"github.com/openfroyo/pinpoint-eventstream/pkg/telemetry"
)

// Version information (set via ldflags during build)
var (
	Version = "dev"
	Commit  = "unknown"
)

// configEnv names an optional configuration file bundled with the function.
const configEnv = "EVENTSTREAM_CONFIG"

func main() {
	setupLogging()

	ctx := context.Background()
	rt, err := setup(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize")
	}

	handler := cfnresource.NewHandler(rt, rt.Telemetry.Logger.Zerolog())
	log.Info().
		Str("version", Version).
		Str("commit", Commit).
		Str("region", rt.Config.Region).
		Msg("Event stream resource ready")

	lambda.StartWithOptions(handler.LambdaHandler(), lambda.WithEnableSIGTERM(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := rt.Close(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Shutdown incomplete")
		}
	}))
}

func setup(ctx context.Context) (*bootstrap.Runtime, error) {
	loader, err := config.NewLoader(nil)
	if err != nil {
		return nil, err
	}
	cfg, err := loader.Load(os.Getenv(configEnv))
	if err != nil {
		return nil, err
	}
	return bootstrap.New(ctx, cfg, bootstrap.Options{
		Telemetry: telemetry.LambdaConfig(),
		Version:   Version,
	})
}

// setupLogging configures the global logger used before the runtime's own
// logger exists. Lambda collects stdout, so it stays JSON.
func setupLogging() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
