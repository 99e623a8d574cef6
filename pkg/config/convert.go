package config

import (
	"github.com/openfroyo/pinpoint-eventstream/pkg/engine"
	awsprovider "github.com/openfroyo/pinpoint-eventstream/pkg/providers/aws"
	"github.com/openfroyo/pinpoint-eventstream/pkg/telemetry"
)

// EngineWait returns the polling settings for engine.NewPollingWaitPolicy.
func (c *Config) EngineWait() engine.WaitConfig {
	return engine.WaitConfig{
		InitialInterval: c.Wait.InitialInterval.Std(),
		MaxInterval:     c.Wait.MaxInterval.Std(),
		Multiplier:      c.Wait.Multiplier,
		SettleDelay:     c.Wait.SettleDelay.Std(),
	}
}

// EngineAccess returns the settings for engine.NewAccessManager.
func (c *Config) EngineAccess() engine.AccessConfig {
	return engine.AccessConfig{
		Partition:         c.Partition,
		ServicePrincipal:  c.ServicePrincipal,
		RoleWaitTimeout:   c.Wait.RoleTimeout.Std(),
		PolicyWaitTimeout: c.Wait.PolicyTimeout.Std(),
	}
}

// AWS returns the settings for awsprovider.LoadClients.
func (c *Config) AWS() awsprovider.Config {
	return awsprovider.Config{
		Region:   c.Region,
		Profile:  c.Profile,
		Endpoint: c.Endpoint,
	}
}

// TelemetryConfig overlays the operator settings on base.
func (c *Config) TelemetryConfig(base *telemetry.Config) *telemetry.Config {
	out := *base
	out.Logging.Level = c.Telemetry.LogLevel
	out.Logging.Format = c.Telemetry.LogFormat

	out.Tracing.Exporter = c.Telemetry.TracingExporter
	out.Tracing.Enabled = c.Telemetry.TracingExporter != "none"
	out.Tracing.Endpoint = c.Telemetry.TracingEndpoint
	out.Tracing.Insecure = c.Telemetry.TracingInsecure

	out.Metrics.ListenAddress = c.Telemetry.MetricsAddress
	return &out
}
