package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// scriptedProbe answers Ready from a script, repeating the last answer.
type scriptedProbe struct {
	mu      sync.Mutex
	answers []probeAnswer
	calls   int
}

type probeAnswer struct {
	ready bool
	err   error
}

func (p *scriptedProbe) Ready(_ context.Context, _ ResourceKind, _ string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := p.calls
	if i >= len(p.answers) {
		i = len(p.answers) - 1
	}
	p.calls++
	return p.answers[i].ready, p.answers[i].err
}

func fastWaitConfig() WaitConfig {
	return WaitConfig{
		InitialInterval: time.Millisecond,
		MaxInterval:     4 * time.Millisecond,
		Multiplier:      2,
	}
}

func TestAwaitReady(t *testing.T) {
	notFound := NewNotFoundError("no such stream", nil)

	tests := []struct {
		name      string
		answers   []probeAnswer
		wantCalls int
	}{
		{"ready immediately", []probeAnswer{{ready: true}}, 1},
		{"settling then ready", []probeAnswer{{}, {}, {ready: true}}, 3},
		{"not visible then ready", []probeAnswer{{err: notFound}, {err: notFound}, {ready: true}}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			probe := &scriptedProbe{answers: tt.answers}
			w := NewPollingWaitPolicy(probe, fastWaitConfig(), testLogger)

			if err := w.AwaitReady(context.Background(), ResourceStream, "event-stream-app123", time.Second); err != nil {
				t.Fatalf("AwaitReady() error = %v", err)
			}
			if probe.calls != tt.wantCalls {
				t.Errorf("probe called %d times, want %d", probe.calls, tt.wantCalls)
			}
		})
	}
}

func TestAwaitReadyTimeout(t *testing.T) {
	probe := &scriptedProbe{answers: []probeAnswer{{ready: false}}}
	w := NewPollingWaitPolicy(probe, fastWaitConfig(), testLogger)

	start := time.Now()
	err := w.AwaitReady(context.Background(), ResourceRole, "pinpoint-service-app123-role", 30*time.Millisecond)
	if !IsTimeout(err) {
		t.Fatalf("AwaitReady() error = %v, want timeout", err)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("gave up after %s, before the timeout", elapsed)
	}
	if probe.calls < 2 {
		t.Errorf("probe called %d times, want several", probe.calls)
	}

	var e *Error
	if !errors.As(err, &e) || e.Resource != "pinpoint-service-app123-role" {
		t.Errorf("error = %#v, want resource set", err)
	}
}

func TestAwaitReadyTimeoutWhileNotFound(t *testing.T) {
	probe := &scriptedProbe{answers: []probeAnswer{{err: NewNotFoundError("no such role", nil)}}}
	w := NewPollingWaitPolicy(probe, fastWaitConfig(), testLogger)

	err := w.AwaitReady(context.Background(), ResourceRole, "r", 10*time.Millisecond)
	if !IsTimeout(err) {
		t.Fatalf("AwaitReady() error = %v, want timeout", err)
	}
}

func TestAwaitReadyFatalProbeError(t *testing.T) {
	denied := NewUnavailableError("access denied", nil)
	probe := &scriptedProbe{answers: []probeAnswer{{err: denied}}}
	w := NewPollingWaitPolicy(probe, fastWaitConfig(), testLogger)

	err := w.AwaitReady(context.Background(), ResourcePolicy, "arn", time.Second)
	if !errors.Is(err, denied) {
		t.Fatalf("AwaitReady() error = %v, want %v", err, denied)
	}
	if IsTimeout(err) {
		t.Error("a fatal probe error must not be reported as a timeout")
	}
	if probe.calls != 1 {
		t.Errorf("probe called %d times, want 1", probe.calls)
	}
}

func TestAwaitReadyCancelled(t *testing.T) {
	probe := &scriptedProbe{answers: []probeAnswer{{ready: false}}}
	cfg := fastWaitConfig()
	cfg.InitialInterval = time.Hour
	cfg.MaxInterval = time.Hour
	w := NewPollingWaitPolicy(probe, cfg, testLogger)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)

	err := w.AwaitReady(ctx, ResourceStream, "s", time.Hour)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("AwaitReady() error = %v, want context.Canceled", err)
	}
	if !IsTimeout(err) {
		t.Errorf("AwaitReady() error kind = %s, want timeout", KindOf(err))
	}
}

func TestSettle(t *testing.T) {
	w := NewPollingWaitPolicy(nil, WaitConfig{SettleDelay: 20 * time.Millisecond}, testLogger)

	start := time.Now()
	if err := w.Settle(context.Background()); err != nil {
		t.Fatalf("Settle() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("Settle returned after %s, want at least 20ms", elapsed)
	}
}

func TestSettleDisabled(t *testing.T) {
	w := NewPollingWaitPolicy(nil, WaitConfig{}, testLogger)
	if err := w.Settle(context.Background()); err != nil {
		t.Fatalf("Settle() error = %v", err)
	}
}

func TestSettleCancelled(t *testing.T) {
	w := NewPollingWaitPolicy(nil, WaitConfig{SettleDelay: time.Hour}, testLogger)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := w.Settle(ctx)
	if !IsTimeout(err) || !errors.Is(err, context.Canceled) {
		t.Fatalf("Settle() error = %v, want interrupted timeout", err)
	}
}

func TestNextInterval(t *testing.T) {
	w := NewPollingWaitPolicy(nil, WaitConfig{
		InitialInterval: time.Second,
		MaxInterval:     10 * time.Second,
		Multiplier:      1.5,
	}, testLogger)

	tests := []struct {
		current time.Duration
		want    time.Duration
	}{
		{time.Second, 1500 * time.Millisecond},
		{4 * time.Second, 6 * time.Second},
		{8 * time.Second, 10 * time.Second},
		{10 * time.Second, 10 * time.Second},
	}
	for _, tt := range tests {
		if got := w.nextInterval(tt.current); got != tt.want {
			t.Errorf("nextInterval(%s) = %s, want %s", tt.current, got, tt.want)
		}
	}
}

func TestNewPollingWaitPolicyNormalizes(t *testing.T) {
	w := NewPollingWaitPolicy(nil, WaitConfig{
		InitialInterval: 2 * time.Second,
		MaxInterval:     time.Second,
		Multiplier:      0.5,
	}, testLogger)

	if w.config.Multiplier != 1 {
		t.Errorf("Multiplier = %v, want 1", w.config.Multiplier)
	}
	if w.config.MaxInterval != 2*time.Second {
		t.Errorf("MaxInterval = %s, want 2s", w.config.MaxInterval)
	}
}

func TestDefaultWaitConfig(t *testing.T) {
	cfg := DefaultWaitConfig()
	if cfg.SettleDelay != 15*time.Second {
		t.Errorf("SettleDelay = %s, want 15s", cfg.SettleDelay)
	}
}
