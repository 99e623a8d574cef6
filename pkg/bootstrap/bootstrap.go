// Package bootstrap assembles the orchestrator and its collaborators from a
// loaded configuration. Both binaries build their runtime through it.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/openfroyo/pinpoint-eventstream/pkg/config"
	"github.com/openfroyo/pinpoint-eventstream/pkg/engine"
	"github.com/openfroyo/pinpoint-eventstream/pkg/policy"
	awsprovider "github.com/openfroyo/pinpoint-eventstream/pkg/providers/aws"
	"github.com/openfroyo/pinpoint-eventstream/pkg/stores"
	"github.com/openfroyo/pinpoint-eventstream/pkg/telemetry"
)

// RoleDescription is set on every role the orchestrator creates.
const RoleDescription = "Allows Pinpoint to publish application events to Kinesis"

// Options tune how a Runtime is built.
type Options struct {
	// Telemetry is the base telemetry configuration that the operator
	// settings are overlaid on. Defaults to telemetry.DefaultConfig.
	Telemetry *telemetry.Config

	// Version is reported as the telemetry service version.
	Version string

	// Clients replaces the SDK clients resolved from the configuration.
	Clients *awsprovider.Clients
}

// Runtime is a fully wired orchestrator.
type Runtime struct {
	Config       *config.Config
	Telemetry    *telemetry.Telemetry
	Provider     *awsprovider.Provider
	Guard        *policy.Engine
	Journal      *stores.SQLiteStore
	Orchestrator *engine.Orchestrator

	logger zerolog.Logger
}

// New builds a Runtime. Guardrails and the journal are only created when
// enabled in cfg. The caller owns the Runtime and must Close it.
func New(ctx context.Context, cfg *config.Config, opts Options) (*Runtime, error) {
	base := opts.Telemetry
	if base == nil {
		base = telemetry.DefaultConfig()
	}
	telCfg := cfg.TelemetryConfig(base)
	if opts.Version != "" {
		telCfg.ServiceVersion = opts.Version
	}

	tel, err := telemetry.NewTelemetry(telCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	rt := &Runtime{
		Config:    cfg,
		Telemetry: tel,
		logger:    tel.Logger.NewComponentLogger("bootstrap").Zerolog(),
	}
	if err := rt.wire(ctx, opts.Clients); err != nil {
		_ = rt.Close(ctx)
		return nil, err
	}
	return rt, nil
}

func (r *Runtime) wire(ctx context.Context, clients *awsprovider.Clients) error {
	cfg := r.Config
	logger := r.Telemetry.Logger.Zerolog()

	if clients == nil {
		var err error
		clients, err = awsprovider.LoadClients(ctx, cfg.AWS())
		if err != nil {
			return err
		}
	}
	r.Provider = awsprovider.NewProvider(clients, RoleDescription)

	var guard engine.DocumentGuard
	if cfg.Guardrails.Enabled {
		g, err := NewGuard(ctx, cfg, logger, "")
		if err != nil {
			return err
		}
		r.Guard = g
		guard = g
	}

	var orchOpts []engine.Option
	if cfg.Journal.Enabled {
		j, err := stores.Open(ctx, stores.Config{Path: cfg.Journal.Path})
		if err != nil {
			return fmt.Errorf("failed to open journal: %w", err)
		}
		r.Journal = j
		orchOpts = append(orchOpts, engine.WithJournal(j))
	}

	waiter := engine.NewPollingWaitPolicy(r.Provider.Probe, cfg.EngineWait(), logger)
	streams := engine.NewStreamManager(r.Provider.Streams, waiter, cfg.ShardCount, cfg.Wait.StreamTimeout.Std(), logger)
	access := engine.NewAccessManager(r.Provider.Identity, waiter, guard, cfg.EngineAccess(), logger)
	subscriptions := engine.NewSubscriptionManager(r.Provider.Subscriptions, logger)

	r.Orchestrator = engine.NewOrchestrator(streams, access, subscriptions, waiter, logger, orchOpts...)

	r.logger.Debug().
		Str("region", cfg.Region).
		Bool("guardrails", cfg.Guardrails.Enabled).
		Bool("journal", cfg.Journal.Enabled).
		Msg("Runtime wired")
	return nil
}

// Handle runs event with telemetry attached to ctx, then flushes
// telemetry. It satisfies cfnresource.Orchestrator.
func (r *Runtime) Handle(ctx context.Context, event engine.LifecycleEvent) (*engine.Result, error) {
	result, err := r.Orchestrator.Handle(r.Telemetry.WithContext(ctx), event)
	r.flush(ctx)
	return result, err
}

// flush pushes buffered spans and writes the metrics textfile. Failures
// are logged and never change the invocation outcome.
func (r *Runtime) flush(ctx context.Context) {
	if err := r.Telemetry.Flush(ctx); err != nil {
		r.logger.Warn().Err(err).Msg("Failed to flush telemetry")
	}
	if path := r.Config.Telemetry.MetricsTextfile; path != "" {
		if err := r.Telemetry.Metrics.WriteTextfile(path); err != nil {
			r.logger.Warn().Err(err).Str("path", path).Msg("Failed to write metrics textfile")
		}
	}
}

// Close releases the journal and shuts telemetry down.
func (r *Runtime) Close(ctx context.Context) error {
	var errs []error
	if r.Journal != nil {
		if err := r.Journal.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close journal: %w", err))
		}
	}
	if r.Telemetry != nil {
		if err := r.Telemetry.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown telemetry: %w", err))
		}
	}
	return errors.Join(errs...)
}

// NewGuard builds the guardrail engine described by cfg: the built-in
// rules, custom policies from PolicyDir, minus the disabled ones. Every
// name in Disable must match a loaded policy. A non-empty policyDir
// replaces cfg.Guardrails.PolicyDir.
func NewGuard(ctx context.Context, cfg *config.Config, logger zerolog.Logger, policyDir string) (*policy.Engine, error) {
	dir := cfg.Guardrails.PolicyDir
	if policyDir != "" {
		dir = policyDir
	}

	g, err := policy.NewEngine(logger,
		policy.WithServicePrincipal(cfg.ServicePrincipal),
		policy.WithDisabled(cfg.Guardrails.Disable...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize guardrails: %w", err)
	}
	if dir != "" {
		if err := g.LoadPolicies(ctx, []string{dir}); err != nil {
			return nil, fmt.Errorf("failed to load guardrail policies: %w", err)
		}
	}
	for _, name := range cfg.Guardrails.Disable {
		if _, err := g.GetPolicy(name); err != nil {
			return nil, fmt.Errorf("guardrails.disable: %w", err)
		}
	}
	return g, nil
}
