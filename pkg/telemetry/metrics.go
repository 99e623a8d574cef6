package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Metrics provides Prometheus metrics for lifecycle invocations.
type Metrics struct {
	config MetricsConfig

	// Invocation metrics
	invocationsStarted   *prometheus.CounterVec
	invocationsCompleted *prometheus.CounterVec
	invocationDuration   *prometheus.HistogramVec
	activeInvocations    prometheus.Gauge

	// Step metrics
	stepsExecuted *prometheus.CounterVec
	stepDuration  *prometheus.HistogramVec

	// Provider metrics
	providerCalls    *prometheus.CounterVec
	providerDuration *prometheus.HistogramVec
	providerErrors   *prometheus.CounterVec

	// Error metrics
	errorsByKind *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		invocationsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invocations_started_total",
				Help:      "Total number of lifecycle invocations started",
			},
			[]string{"event_type"},
		),
		invocationsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invocations_completed_total",
				Help:      "Total number of lifecycle invocations completed",
			},
			[]string{"event_type", "phase"},
		),
		invocationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "invocation_duration_seconds",
				Help:      "Duration of lifecycle invocations in seconds",
				Buckets:   buckets,
			},
			[]string{"event_type", "phase"},
		),
		activeInvocations: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_invocations",
				Help:      "Current number of running invocations",
			},
		),

		stepsExecuted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "steps_executed_total",
				Help:      "Total number of orchestration steps executed",
			},
			[]string{"step", "status"},
		),
		stepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "step_duration_seconds",
				Help:      "Duration of orchestration steps in seconds",
				Buckets:   buckets,
			},
			[]string{"step", "resource_kind"},
		),

		providerCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_calls_total",
				Help:      "Total number of cloud API calls",
			},
			[]string{"service", "operation"},
		),
		providerDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provider_call_duration_seconds",
				Help:      "Duration of cloud API calls in seconds",
				Buckets:   buckets,
			},
			[]string{"service", "operation"},
		),
		providerErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_errors_total",
				Help:      "Total number of failed cloud API calls",
			},
			[]string{"service", "operation"},
		),

		errorsByKind: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_kind_total",
				Help:      "Total number of invocation errors by kind",
			},
			[]string{"kind"},
		),
	}

	registry.MustRegister(
		m.invocationsStarted,
		m.invocationsCompleted,
		m.invocationDuration,
		m.activeInvocations,
		m.stepsExecuted,
		m.stepDuration,
		m.providerCalls,
		m.providerDuration,
		m.providerErrors,
		m.errorsByKind,
	)

	return m, nil
}

// Registry returns the underlying registry, or nil when metrics are disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordInvocationStarted increments the counter for started invocations.
func (m *Metrics) RecordInvocationStarted(eventType string) {
	if m.invocationsStarted == nil {
		return
	}
	m.invocationsStarted.WithLabelValues(eventType).Inc()
	m.activeInvocations.Inc()
}

// RecordInvocationCompleted records a finished invocation with its terminal
// phase and duration.
func (m *Metrics) RecordInvocationCompleted(eventType, phase string, duration time.Duration) {
	if m.invocationsCompleted == nil {
		return
	}
	m.invocationsCompleted.WithLabelValues(eventType, phase).Inc()
	m.invocationDuration.WithLabelValues(eventType, phase).Observe(duration.Seconds())
	m.activeInvocations.Dec()
}

// RecordStep records the execution of one orchestration step.
func (m *Metrics) RecordStep(step, resourceKind, status string, duration time.Duration) {
	if m.stepsExecuted == nil {
		return
	}
	m.stepsExecuted.WithLabelValues(step, status).Inc()
	m.stepDuration.WithLabelValues(step, resourceKind).Observe(duration.Seconds())
}

// RecordProviderCall records a cloud API call with its duration.
func (m *Metrics) RecordProviderCall(service, operation string, duration time.Duration) {
	if m.providerCalls == nil {
		return
	}
	m.providerCalls.WithLabelValues(service, operation).Inc()
	m.providerDuration.WithLabelValues(service, operation).Observe(duration.Seconds())
}

// RecordProviderError records a failed cloud API call.
func (m *Metrics) RecordProviderError(service, operation string) {
	if m.providerErrors == nil {
		return
	}
	m.providerErrors.WithLabelValues(service, operation).Inc()
}

// RecordError records an invocation error by kind.
func (m *Metrics) RecordError(kind string) {
	if m.errorsByKind == nil {
		return
	}
	m.errorsByKind.WithLabelValues(kind).Inc()
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// WriteTextfile writes the current metric values to path in the text
// exposition format, for node_exporter's textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m.registry == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}

// StartMetricsServer serves metrics on the configured address until ctx is
// done. It is a no-op when metrics are disabled or no address is set.
func (m *Metrics) StartMetricsServer(ctx context.Context, logger zerolog.Logger) {
	if !m.config.Enabled || m.config.ListenAddress == "" {
		return
	}

	path := m.config.Path
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Str("address", m.config.ListenAddress).Msg("Metrics server stopped")
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
}
