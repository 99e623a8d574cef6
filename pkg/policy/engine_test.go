package policy

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/openfroyo/pinpoint-eventstream/pkg/engine"
	"github.com/openfroyo/pinpoint-eventstream/pkg/telemetry"
	"github.com/rs/zerolog"
)

const testStreamARN = "arn:aws:kinesis:us-east-1:123456789012:stream/event-stream-app123"

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	eng, err := NewEngine(zerolog.New(nil).Level(zerolog.Disabled), opts...)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	return eng
}

func generatedCheck() engine.DocumentCheck {
	names := engine.NamesFor("app123")
	return engine.DocumentCheck{
		ApplicationID: "app123",
		RoleName:      names.Role,
		PolicyName:    names.Policy,
		StreamARN:     testStreamARN,
		Trust:         engine.TrustDocument(engine.DefaultServicePrincipal),
		Access:        engine.StreamAccessDocument(testStreamARN),
	}
}

func TestNewEngine(t *testing.T) {
	eng := newTestEngine(t)

	policies := eng.ListPolicies()
	expected := []string{"no-wildcards", "stream-scope", "trust-principal"}
	if len(policies) != len(expected) {
		t.Fatalf("Expected %d built-in policies, got %d", len(expected), len(policies))
	}
	for i, name := range expected {
		if policies[i].Name != name {
			t.Errorf("policies[%d] = %s, want %s", i, policies[i].Name, name)
		}
	}
}

func TestGeneratedDocumentsPass(t *testing.T) {
	eng := newTestEngine(t)

	result, err := eng.Evaluate(context.Background(), generatedCheck())
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !result.Allowed {
		t.Fatalf("generated documents rejected: %+v", result.Violations)
	}
	if len(result.Warnings) != 0 {
		t.Errorf("unexpected warnings: %+v", result.Warnings)
	}
	if len(result.EvaluatedPolicies) != 3 {
		t.Errorf("EvaluatedPolicies = %v", result.EvaluatedPolicies)
	}

	if err := eng.CheckDocuments(context.Background(), generatedCheck()); err != nil {
		t.Errorf("CheckDocuments() error = %v", err)
	}
}

func TestCheckDocumentsRejects(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*engine.DocumentCheck)
		wantRule string
	}{
		{
			name: "foreign principal",
			mutate: func(c *engine.DocumentCheck) {
				c.Trust = engine.TrustDocument("ec2.amazonaws.com")
			},
			wantRule: "trust-principal",
		},
		{
			name: "missing principal",
			mutate: func(c *engine.DocumentCheck) {
				c.Trust.Statement[0].Principal = nil
			},
			wantRule: "trust-principal-required",
		},
		{
			name: "extra trust action",
			mutate: func(c *engine.DocumentCheck) {
				c.Trust.Statement[0].Action = append(c.Trust.Statement[0].Action, "sts:TagSession")
			},
			wantRule: "trust-action",
		},
		{
			name: "extra kinesis action",
			mutate: func(c *engine.DocumentCheck) {
				c.Access.Statement[0].Action = append(c.Access.Statement[0].Action, "kinesis:DeleteStream")
			},
			wantRule: "access-action",
		},
		{
			name: "wildcard action",
			mutate: func(c *engine.DocumentCheck) {
				c.Access.Statement[0].Action = []string{"kinesis:*"}
			},
			wantRule: "wildcard-action",
		},
		{
			name: "wildcard resource",
			mutate: func(c *engine.DocumentCheck) {
				c.Access.Statement[1].Resource = []string{"*"}
			},
			wantRule: "wildcard-resource",
		},
		{
			name: "other stream",
			mutate: func(c *engine.DocumentCheck) {
				c.Access.Statement[0].Resource = []string{"arn:aws:kinesis:us-east-1:123456789012:stream/other"}
			},
			wantRule: "access-resource",
		},
		{
			name: "no resource",
			mutate: func(c *engine.DocumentCheck) {
				c.Access.Statement[0].Resource = nil
			},
			wantRule: "access-resource-required",
		},
		{
			name: "empty stream ARN",
			mutate: func(c *engine.DocumentCheck) {
				c.StreamARN = ""
			},
			wantRule: "stream-arn-required",
		},
	}

	eng := newTestEngine(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check := generatedCheck()
			tt.mutate(&check)

			result, err := eng.Evaluate(context.Background(), check)
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			if result.Allowed {
				t.Fatal("expected documents to be rejected")
			}
			found := false
			for _, v := range result.Violations {
				if v.Rule == tt.wantRule {
					found = true
				}
			}
			if !found {
				t.Errorf("violations %+v do not include rule %s", result.Violations, tt.wantRule)
			}

			err = eng.CheckDocuments(context.Background(), check)
			if !engine.IsValidation(err) {
				t.Errorf("CheckDocuments() error = %v, want validation error", err)
			}
		})
	}
}

func TestEffectIsAWarning(t *testing.T) {
	eng := newTestEngine(t)

	check := generatedCheck()
	check.Access.Statement[0].Effect = "Deny"

	result, err := eng.Evaluate(context.Background(), check)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !result.Allowed {
		t.Errorf("a Deny statement should not block: %+v", result.Violations)
	}
	if len(result.Warnings) != 1 || result.Warnings[0].Rule != "access-effect" {
		t.Errorf("Warnings = %+v", result.Warnings)
	}
}

func TestWithServicePrincipal(t *testing.T) {
	eng := newTestEngine(t, WithServicePrincipal("pinpoint.amazonaws.com.cn"))

	check := generatedCheck()
	check.Trust = engine.TrustDocument("pinpoint.amazonaws.com.cn")
	if err := eng.CheckDocuments(context.Background(), check); err != nil {
		t.Errorf("configured principal rejected: %v", err)
	}

	if err := eng.CheckDocuments(context.Background(), generatedCheck()); err == nil {
		t.Error("default principal should be rejected when another is configured")
	}
}

func TestEnableDisablePolicy(t *testing.T) {
	eng := newTestEngine(t)

	check := generatedCheck()
	check.Trust = engine.TrustDocument("ec2.amazonaws.com")

	if err := eng.DisablePolicy("trust-principal"); err != nil {
		t.Fatalf("DisablePolicy() error = %v", err)
	}
	if err := eng.CheckDocuments(context.Background(), check); err != nil {
		t.Errorf("disabled policy still enforced: %v", err)
	}

	if err := eng.EnablePolicy("trust-principal"); err != nil {
		t.Fatalf("EnablePolicy() error = %v", err)
	}
	if err := eng.CheckDocuments(context.Background(), check); err == nil {
		t.Error("re-enabled policy not enforced")
	}

	if err := eng.DisablePolicy("nonexistent"); err == nil {
		t.Error("expected error for unknown policy")
	}
}

func TestWithDisabledSurvivesReload(t *testing.T) {
	eng := newTestEngine(t, WithDisabled("trust-principal"))

	check := generatedCheck()
	check.Trust = engine.TrustDocument("ec2.amazonaws.com")

	if err := eng.CheckDocuments(context.Background(), check); err != nil {
		t.Fatalf("disabled policy enforced: %v", err)
	}
	if err := eng.ReloadPolicies(context.Background(), nil); err != nil {
		t.Fatalf("ReloadPolicies() error = %v", err)
	}
	if err := eng.CheckDocuments(context.Background(), check); err != nil {
		t.Errorf("disabled policy enforced after reload: %v", err)
	}
}

func TestCustomPolicy(t *testing.T) {
	eng := newTestEngine(t)

	custom := Policy{
		Name:     "pinned-account",
		Severity: SeverityError,
		Enabled:  true,
		Rego: `package eventstream.custom.account

import rego.v1

deny contains msg if {
	not startswith(input.stream_arn, "arn:aws:kinesis:us-east-1:999999999999:")
	msg := "stream must live in the shared account"
}
`,
	}
	if err := eng.AddPolicies(context.Background(), []Policy{custom}); err != nil {
		t.Fatalf("AddPolicies() error = %v", err)
	}

	err := eng.CheckDocuments(context.Background(), generatedCheck())
	if err == nil || !strings.Contains(err.Error(), "shared account") {
		t.Errorf("CheckDocuments() error = %v, want custom violation", err)
	}

	if err := eng.ReloadPolicies(context.Background(), nil); err != nil {
		t.Fatalf("ReloadPolicies() error = %v", err)
	}
	if _, err := eng.GetPolicy("pinned-account"); err == nil {
		t.Error("custom policy survived reload")
	}
	if err := eng.CheckDocuments(context.Background(), generatedCheck()); err != nil {
		t.Errorf("CheckDocuments() after reload error = %v", err)
	}
}

func TestAddPolicies_InvalidRego(t *testing.T) {
	eng := newTestEngine(t)

	err := eng.AddPolicies(context.Background(), []Policy{{Name: "broken", Rego: "package broken\ndeny contains"}})
	if err == nil {
		t.Error("expected compile error")
	}
}

type recordingSubscriber struct {
	mu     sync.Mutex
	events []telemetry.Event
}

func (r *recordingSubscriber) OnEvent(e telemetry.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func TestCheckDocumentsPublishesViolations(t *testing.T) {
	cfg := telemetry.DefaultConfig()
	cfg.Metrics.Enabled = false
	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		t.Fatalf("NewTelemetry() error = %v", err)
	}

	sub := &recordingSubscriber{}
	tel.Events.Subscribe(sub.OnEvent, telemetry.FilterByType(telemetry.EventTypePolicyViolation))
	ctx := tel.WithContext(context.Background())

	check := generatedCheck()
	check.Access.Statement[0].Action = []string{"kinesis:*"}

	if err := newTestEngine(t).CheckDocuments(ctx, check); err == nil {
		t.Fatal("expected rejection")
	}

	sub.mu.Lock()
	defer sub.mu.Unlock()
	if len(sub.events) == 0 {
		t.Fatal("no policy violation events published")
	}
	if sub.events[0].Data["policy"] != "no-wildcards" {
		t.Errorf("event data = %+v", sub.events[0].Data)
	}
}
