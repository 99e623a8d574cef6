package telemetry

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is a zerolog logger carrying the invocation fields every line of
// a lifecycle run should have.
type Logger struct {
	zlog   zerolog.Logger
	config LoggingConfig
}

type loggerContextKey struct{}

// NewLogger opens cfg.Output and builds a Logger on it. Output is stdout,
// stderr or a file path that is appended to.
func NewLogger(cfg LoggingConfig) (*Logger, error) {
	var w io.Writer
	switch strings.ToLower(cfg.Output) {
	case "", "stdout":
		w = os.Stdout
	case "stderr":
		w = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log output %s: %w", cfg.Output, err)
		}
		w = f
	}
	return NewLoggerWithWriter(cfg, w), nil
}

// NewLoggerWithWriter builds a Logger on w. Lambda logs are JSON lines;
// the console format is meant for eventstreamctl.
func NewLoggerWithWriter(cfg LoggingConfig, w io.Writer) *Logger {
	zerolog.TimeFieldFormat = timeFieldFormat(cfg.TimeFormat)

	if cfg.Format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}

	zctx := zerolog.New(w).Level(parseLogLevel(cfg.Level)).With().Timestamp()
	if cfg.EnableCaller {
		zctx = zctx.Caller()
	}
	return &Logger{zlog: zctx.Logger(), config: cfg}
}

// Zerolog returns the underlying zerolog.Logger.
func (l *Logger) Zerolog() zerolog.Logger {
	return l.zlog
}

func (l *Logger) derive(zlog zerolog.Logger) *Logger {
	return &Logger{zlog: zlog, config: l.config}
}

// NewComponentLogger tags every line with component.
func (l *Logger) NewComponentLogger(component string) *Logger {
	return l.derive(l.zlog.With().Str("component", component).Logger())
}

// WithContext stores the logger in ctx. The zerolog logger is stored too,
// so zerolog.Ctx(ctx) works for code that only knows zerolog.
func (l *Logger) WithContext(ctx context.Context) context.Context {
	ctx = l.zlog.WithContext(ctx)
	return context.WithValue(ctx, loggerContextKey{}, l)
}

// FromContext returns the logger stored in ctx, or a JSON logger on
// stdout when there is none.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerContextKey{}).(*Logger); ok {
		return l
	}
	return &Logger{zlog: zerolog.New(os.Stdout).With().Timestamp().Logger()}
}

// WithField adds one field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.derive(l.zlog.With().Interface(key, value).Logger())
}

// WithInvocationID adds the invocation_id field.
func (l *Logger) WithInvocationID(invocationID string) *Logger {
	return l.derive(l.zlog.With().Str("invocation_id", invocationID).Logger())
}

// WithApplicationID adds the application_id field.
func (l *Logger) WithApplicationID(applicationID string) *Logger {
	return l.derive(l.zlog.With().Str("application_id", applicationID).Logger())
}

// WithStep adds the step and resource_kind fields.
func (l *Logger) WithStep(step, resourceKind string) *Logger {
	return l.derive(l.zlog.With().Str("step", step).Str("resource_kind", resourceKind).Logger())
}

// WithError attaches err.
func (l *Logger) WithError(err error) *Logger {
	return l.derive(l.zlog.With().Err(err).Logger())
}

func (l *Logger) Debug(msg string) { l.zlog.Debug().Msg(msg) }
func (l *Logger) Info(msg string)  { l.zlog.Info().Msg(msg) }
func (l *Logger) Warn(msg string)  { l.zlog.Warn().Msg(msg) }
func (l *Logger) Error(msg string) { l.zlog.Error().Msg(msg) }

// parseLogLevel maps a configured level onto zerolog, defaulting to info.
func parseLogLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

func timeFieldFormat(format string) string {
	switch format {
	case "unix":
		return zerolog.TimeFormatUnix
	case "unixms":
		return zerolog.TimeFormatUnixMs
	default:
		return time.RFC3339
	}
}
