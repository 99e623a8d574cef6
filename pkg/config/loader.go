package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Default returns the built-in configuration. Region is left empty and
// must be supplied.
func Default() *Config {
	return &Config{
		Partition:        "aws",
		ServicePrincipal: "pinpoint.amazonaws.com",
		ShardCount:       1,
		Wait: WaitConfig{
			InitialInterval: Duration(time.Second),
			MaxInterval:     Duration(10 * time.Second),
			Multiplier:      1.5,
			SettleDelay:     Duration(15 * time.Second),
			StreamTimeout:   Duration(180 * time.Second),
			RoleTimeout:     Duration(40 * time.Second),
			PolicyTimeout:   Duration(20 * time.Second),
		},
		Journal: JournalConfig{
			Path: "eventstream.db",
		},
		Telemetry: TelemetryConfig{
			LogLevel:        "info",
			LogFormat:       "json",
			TracingExporter: "none",
		},
	}
}

// LookupFunc reads an environment variable.
type LookupFunc func(key string) (string, bool)

// Loader reads configuration files and environment overrides.
type Loader struct {
	cue      *cue.Context
	schema   cue.Value
	validate *validator.Validate
	lookup   LookupFunc
}

// NewLoader creates a Loader. lookup defaults to os.LookupEnv when nil.
func NewLoader(lookup LookupFunc) (*Loader, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	ctx := cuecontext.New()
	schema := ctx.CompileString(configSchema, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("failed to compile config schema: %w", err)
	}

	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return yamlName(fld.Tag.Get("yaml"))
	})

	return &Loader{
		cue:      ctx,
		schema:   schema.LookupPath(cue.ParsePath("#Config")),
		validate: v,
		lookup:   lookup,
	}, nil
}

// Load builds the configuration: defaults, then the file at path (if
// any), then environment overrides. The result is validated.
func (l *Loader) Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := l.decode(cfg, path, data); err != nil {
			return nil, err
		}
	}

	if err := l.applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := l.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadBytes is Load for in-memory content. format is yaml, json or cue.
func (l *Loader) LoadBytes(format string, data []byte) (*Config, error) {
	cfg := Default()
	if err := l.decode(cfg, "inline."+format, data); err != nil {
		return nil, err
	}
	if err := l.applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := l.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *Loader) decode(cfg *Config, name string, data []byte) error {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse %s: %w", name, err)
		}
		return nil
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse %s: %w", name, err)
		}
		return nil
	case ".cue":
		return l.decodeCUE(cfg, name, data)
	default:
		return fmt.Errorf("unsupported config format %q (want .yaml, .yml, .json or .cue)", filepath.Ext(name))
	}
}

// decodeCUE checks the file against the closed #Config schema, then
// decodes it over cfg through its JSON form.
func (l *Loader) decodeCUE(cfg *Config, name string, data []byte) error {
	val := l.cue.CompileBytes(data, cue.Filename(name))
	if err := val.Err(); err != nil {
		return convertCUEErrors(err)
	}

	unified := l.schema.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return convertCUEErrors(err)
	}

	raw, err := unified.MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to export %s: %w", name, err)
	}
	if err := json.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("failed to decode %s: %w", name, err)
	}
	return nil
}

// applyEnv applies environment overrides. AWS_REGION is honoured when
// EVENTSTREAM_REGION is unset.
func (l *Loader) applyEnv(cfg *Config) error {
	str := func(key string, dst *string) {
		if v, ok := l.lookup(key); ok && v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *Duration) error {
		v, ok := l.lookup(key)
		if !ok || v == "" {
			return nil
		}
		if err := dst.parse(v); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		return nil
	}
	boolean := func(key string, dst *bool) error {
		v, ok := l.lookup(key)
		if !ok || v == "" {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = b
		return nil
	}

	str("AWS_REGION", &cfg.Region)
	str("EVENTSTREAM_REGION", &cfg.Region)
	str("EVENTSTREAM_PARTITION", &cfg.Partition)
	str("EVENTSTREAM_PROFILE", &cfg.Profile)
	str("EVENTSTREAM_ENDPOINT", &cfg.Endpoint)
	str("EVENTSTREAM_SERVICE_PRINCIPAL", &cfg.ServicePrincipal)

	if v, ok := l.lookup("EVENTSTREAM_SHARD_COUNT"); ok && v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			return fmt.Errorf("EVENTSTREAM_SHARD_COUNT: %w", err)
		}
		cfg.ShardCount = int32(n)
	}

	var errs []error
	errs = append(errs,
		dur("EVENTSTREAM_SETTLE_DELAY", &cfg.Wait.SettleDelay),
		dur("EVENTSTREAM_STREAM_TIMEOUT", &cfg.Wait.StreamTimeout),
		dur("EVENTSTREAM_ROLE_TIMEOUT", &cfg.Wait.RoleTimeout),
		dur("EVENTSTREAM_POLICY_TIMEOUT", &cfg.Wait.PolicyTimeout),
		boolean("EVENTSTREAM_GUARDRAILS", &cfg.Guardrails.Enabled),
	)
	str("EVENTSTREAM_POLICY_DIR", &cfg.Guardrails.PolicyDir)

	if v, ok := l.lookup("EVENTSTREAM_JOURNAL_PATH"); ok && v != "" {
		cfg.Journal.Enabled = true
		cfg.Journal.Path = v
	}

	str("LOG_LEVEL", &cfg.Telemetry.LogLevel)
	str("EVENTSTREAM_LOG_FORMAT", &cfg.Telemetry.LogFormat)
	str("EVENTSTREAM_TRACING_EXPORTER", &cfg.Telemetry.TracingExporter)
	str("OTEL_EXPORTER_OTLP_ENDPOINT", &cfg.Telemetry.TracingEndpoint)
	str("EVENTSTREAM_METRICS_ADDRESS", &cfg.Telemetry.MetricsAddress)
	str("EVENTSTREAM_METRICS_TEXTFILE", &cfg.Telemetry.MetricsTextfile)

	return errors.Join(errs...)
}

// Validate checks cfg with the struct's validate tags.
func (l *Loader) Validate(cfg *Config) error {
	err := l.validate.Struct(cfg)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("failed to validate config: %w", err)
	}

	out := make(ValidationErrors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, ValidationError{
			Path:    fieldPath(fe.Namespace()),
			Message: describeTag(fe),
		})
	}
	return out
}

// convertCUEErrors converts CUE errors to ValidationErrors.
func convertCUEErrors(err error) error {
	var out ValidationErrors
	for _, e := range cueerrors.Errors(err) {
		ve := ValidationError{
			Path:    strings.Join(e.Path(), "."),
			Message: cueerrors.Details(e, nil),
		}
		if pos := cueerrors.Positions(e); len(pos) > 0 {
			ve.File = pos[0].Filename()
			ve.Line = pos[0].Line()
			ve.Column = pos[0].Column()
		}
		out = append(out, ve)
	}
	if len(out) == 0 {
		return err
	}
	return out
}

// fieldPath turns "Config.wait.settle_delay" into "wait.settle_delay".
func fieldPath(namespace string) string {
	if i := strings.IndexByte(namespace, '.'); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "required_if":
		return fmt.Sprintf("is required when %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %q", fe.Param(), fmt.Sprint(fe.Value()))
	case "gt", "gte", "lte":
		return fmt.Sprintf("must satisfy %s=%s, got %v", fe.Tag(), fe.Param(), fe.Value())
	case "gtefield":
		return fmt.Sprintf("must be at least %s", fe.Param())
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}

func yamlName(tag string) string {
	name, _, _ := strings.Cut(tag, ",")
	if name == "" || name == "-" {
		return ""
	}
	return name
}
