package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// WaitConfig configures a PollingWaitPolicy.
type WaitConfig struct {
	// InitialInterval is the delay after the first unsuccessful probe.
	InitialInterval time.Duration

	// MaxInterval caps the delay between probes.
	MaxInterval time.Duration

	// Multiplier grows the delay after each unsuccessful probe.
	Multiplier float64

	// SettleDelay is the fixed delay imposed by Settle.
	SettleDelay time.Duration
}

// DefaultWaitConfig returns the production wait configuration.
func DefaultWaitConfig() WaitConfig {
	return WaitConfig{
		InitialInterval: 1 * time.Second,
		MaxInterval:     10 * time.Second,
		Multiplier:      1.5,
		SettleDelay:     15 * time.Second,
	}
}

// PollingWaitPolicy polls a ReadinessProbe with bounded exponential backoff.
//
// Settle is a plain fixed delay: Pinpoint validates the role it is handed
// against its own view of IAM, which lags behind what GetRole reports, and
// no provider call exposes that view. Replace it with a probe if one
// becomes available.
type PollingWaitPolicy struct {
	probe  ReadinessProbe
	config WaitConfig
	logger zerolog.Logger
}

// NewPollingWaitPolicy creates a wait policy backed by probe.
func NewPollingWaitPolicy(probe ReadinessProbe, cfg WaitConfig, logger zerolog.Logger) *PollingWaitPolicy {
	if cfg.Multiplier < 1 {
		cfg.Multiplier = 1
	}
	if cfg.MaxInterval < cfg.InitialInterval {
		cfg.MaxInterval = cfg.InitialInterval
	}
	return &PollingWaitPolicy{
		probe:  probe,
		config: cfg,
		logger: logger.With().Str("component", "wait-policy").Logger(),
	}
}

// AwaitReady implements WaitPolicy.
func (w *PollingWaitPolicy) AwaitReady(ctx context.Context, kind ResourceKind, key string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	interval := w.config.InitialInterval

	for attempt := 1; ; attempt++ {
		ready, err := w.probe.Ready(ctx, kind, key)
		if err != nil && !IsNotFound(err) {
			return fmt.Errorf("waiting for %s %q: %w", kind, key, err)
		}
		if err == nil && ready {
			w.logger.Debug().
				Str("resource_kind", string(kind)).
				Str("resource", key).
				Int("attempts", attempt).
				Msg("Resource ready")
			return nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return NewTimeoutError(
				fmt.Sprintf("%s not ready after %s (%d attempts)", kind, timeout, attempt), err).
				WithResource(key).
				WithOperation("await_" + string(kind))
		}

		w.logger.Trace().
			Str("resource_kind", string(kind)).
			Str("resource", key).
			Int("attempt", attempt).
			Dur("next_poll", interval).
			Msg("Resource not ready yet")

		if err := sleepContext(ctx, min(interval, remaining)); err != nil {
			return NewTimeoutError(fmt.Sprintf("wait for %s interrupted", kind), err).WithResource(key)
		}
		interval = w.nextInterval(interval)
	}
}

// Settle implements WaitPolicy.
func (w *PollingWaitPolicy) Settle(ctx context.Context) error {
	if w.config.SettleDelay <= 0 {
		return nil
	}
	w.logger.Debug().Dur("delay", w.config.SettleDelay).Msg("Waiting for cross-service propagation")
	if err := sleepContext(ctx, w.config.SettleDelay); err != nil {
		return NewTimeoutError("settle delay interrupted", err)
	}
	return nil
}

func (w *PollingWaitPolicy) nextInterval(current time.Duration) time.Duration {
	next := time.Duration(float64(current) * w.config.Multiplier)
	if next > w.config.MaxInterval {
		return w.config.MaxInterval
	}
	return next
}

// sleepContext blocks for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
