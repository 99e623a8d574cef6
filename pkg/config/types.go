package config

import (
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete runtime configuration.
type Config struct {
	// Region is the AWS region all resources are created in.
	Region string `yaml:"region" json:"region" validate:"required"`

	// Partition is the ARN partition used to derive the policy ARN.
	Partition string `yaml:"partition" json:"partition" validate:"required,oneof=aws aws-cn aws-us-gov"`

	// Profile selects a shared AWS config profile.
	Profile string `yaml:"profile,omitempty" json:"profile,omitempty"`

	// Endpoint overrides every AWS service endpoint.
	Endpoint string `yaml:"endpoint,omitempty" json:"endpoint,omitempty" validate:"omitempty,url"`

	// ServicePrincipal is the service allowed to assume the role.
	ServicePrincipal string `yaml:"service_principal" json:"service_principal" validate:"required,hostname"`

	// ShardCount is the number of shards for new streams.
	ShardCount int32 `yaml:"shard_count" json:"shard_count" validate:"gte=1,lte=500"`

	// Wait configures readiness polling and the settle delay.
	Wait WaitConfig `yaml:"wait" json:"wait"`

	// Guardrails configures document checks before IAM calls.
	Guardrails GuardrailsConfig `yaml:"guardrails" json:"guardrails"`

	// Journal configures the invocation history store.
	Journal JournalConfig `yaml:"journal" json:"journal"`

	// Telemetry configures logging, tracing and metrics.
	Telemetry TelemetryConfig `yaml:"telemetry" json:"telemetry"`
}

// WaitConfig configures readiness polling.
type WaitConfig struct {
	InitialInterval Duration `yaml:"initial_interval" json:"initial_interval" validate:"gt=0"`
	MaxInterval     Duration `yaml:"max_interval" json:"max_interval" validate:"gtefield=InitialInterval"`
	Multiplier      float64  `yaml:"multiplier" json:"multiplier" validate:"gte=1"`
	SettleDelay     Duration `yaml:"settle_delay" json:"settle_delay" validate:"gte=0"`
	StreamTimeout   Duration `yaml:"stream_timeout" json:"stream_timeout" validate:"gt=0"`
	RoleTimeout     Duration `yaml:"role_timeout" json:"role_timeout" validate:"gt=0"`
	PolicyTimeout   Duration `yaml:"policy_timeout" json:"policy_timeout" validate:"gt=0"`
}

// GuardrailsConfig configures the document guard.
type GuardrailsConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`

	// PolicyDir holds extra .rego files loaded next to the built-in rules.
	PolicyDir string `yaml:"policy_dir,omitempty" json:"policy_dir,omitempty" validate:"omitempty,dir"`

	// Disable names policies, built-in or custom, that are loaded but not
	// evaluated.
	Disable []string `yaml:"disable,omitempty" json:"disable,omitempty" validate:"dive,required"`
}

// JournalConfig configures the invocation journal.
type JournalConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Path is the SQLite database file, or ":memory:".
	Path string `yaml:"path,omitempty" json:"path,omitempty" validate:"required_if=Enabled true"`
}

// TelemetryConfig is the subset of telemetry settings exposed to operators.
type TelemetryConfig struct {
	LogLevel        string `yaml:"log_level" json:"log_level" validate:"oneof=trace debug info warn error"`
	LogFormat       string `yaml:"log_format" json:"log_format" validate:"oneof=json console"`
	TracingExporter string `yaml:"tracing_exporter" json:"tracing_exporter" validate:"oneof=none stdout otlp"`
	TracingEndpoint string `yaml:"tracing_endpoint,omitempty" json:"tracing_endpoint,omitempty" validate:"required_if=TracingExporter otlp"`
	TracingInsecure bool   `yaml:"tracing_insecure,omitempty" json:"tracing_insecure,omitempty"`
	MetricsAddress  string `yaml:"metrics_address,omitempty" json:"metrics_address,omitempty" validate:"omitempty,hostname_port"`
	MetricsTextfile string `yaml:"metrics_textfile,omitempty" json:"metrics_textfile,omitempty"`
}

// ValidationError is one configuration problem with its location, if known.
type ValidationError struct {
	// File is the source file path.
	File string `json:"file,omitempty"`

	// Line is the line number (1-indexed).
	Line int `json:"line,omitempty"`

	// Column is the column number (1-indexed).
	Column int `json:"column,omitempty"`

	// Path is the field path (e.g., "wait.settle_delay").
	Path string `json:"path,omitempty"`

	// Message is the error message.
	Message string `json:"message"`
}

func (e ValidationError) String() string {
	switch {
	case e.File != "" && e.Line > 0:
		return fmt.Sprintf("%s:%d:%d: %s", e.File, e.Line, e.Column, e.Message)
	case e.Path != "":
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	default:
		return e.Message
	}
}

// ValidationErrors is returned when a configuration is rejected.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 1 {
		return "invalid configuration: " + v[0].String()
	}
	msg := fmt.Sprintf("invalid configuration (%d problems):", len(v))
	for _, e := range v {
		msg += "\n  " + e.String()
	}
	return msg
}

// Duration is a time.Duration written as a Go duration string ("15s") in
// configuration files.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts a duration string or a number of nanoseconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return d.parse(s)
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid duration %s", data)
	}
	*d = Duration(n)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	return d.parse(s)
}

func (d *Duration) parse(s string) error {
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}
