package policy

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
	"github.com/open-policy-agent/opa/storage"
	"github.com/open-policy-agent/opa/storage/inmem"
	"github.com/openfroyo/pinpoint-eventstream/pkg/engine"
	"github.com/openfroyo/pinpoint-eventstream/pkg/telemetry"
	"github.com/rs/zerolog"
)

// Engine evaluates generated IAM documents against Rego guardrails. It
// implements engine.DocumentGuard.
type Engine struct {
	mu              sync.RWMutex
	policies        map[string]*compiledPolicy
	store           storage.Store
	logger          zerolog.Logger
	builtinPolicies []Policy
	disabled        map[string]bool
}

var _ engine.DocumentGuard = (*Engine)(nil)

// compiledPolicy represents a compiled Rego policy.
type compiledPolicy struct {
	policy   *Policy
	module   *ast.Module
	query    rego.PreparedEvalQuery
	compiled time.Time
}

// Option configures an Engine.
type Option func(*engineOptions)

type engineOptions struct {
	servicePrincipal string
	disabled         []string
}

// WithServicePrincipal sets the principal the trust document must name.
func WithServicePrincipal(principal string) Option {
	return func(o *engineOptions) {
		o.servicePrincipal = principal
	}
}

// WithDisabled keeps the named policies loaded but skips them during
// evaluation. The setting survives ReloadPolicies.
func WithDisabled(names ...string) Option {
	return func(o *engineOptions) {
		o.disabled = append(o.disabled, names...)
	}
}

// NewEngine creates a new policy engine with the built-in guardrails loaded.
func NewEngine(logger zerolog.Logger, opts ...Option) (*Engine, error) {
	o := engineOptions{servicePrincipal: engine.DefaultServicePrincipal}
	for _, opt := range opts {
		opt(&o)
	}

	store := inmem.NewFromObject(map[string]interface{}{
		"config": map[string]interface{}{
			"service_principal": o.servicePrincipal,
		},
	})

	e := &Engine{
		policies:        make(map[string]*compiledPolicy),
		store:           store,
		logger:          logger.With().Str("component", "policy-engine").Logger(),
		builtinPolicies: GetBuiltinPolicies(),
		disabled:        make(map[string]bool, len(o.disabled)),
	}
	for _, name := range o.disabled {
		e.disabled[name] = true
	}

	if err := e.loadBuiltinPolicies(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to load built-in policies: %w", err)
	}

	return e, nil
}

// CheckDocuments evaluates check and returns a validation error listing
// every blocking violation. Violations are published as policy events when
// telemetry is attached to ctx.
func (e *Engine) CheckDocuments(ctx context.Context, check engine.DocumentCheck) error {
	result, err := e.Evaluate(ctx, check)
	if err != nil {
		return engine.NewValidationError("guardrail evaluation failed", err).
			WithResource(check.RoleName).
			WithOperation("policy:CheckDocuments")
	}

	publishViolations(ctx, result)

	if result.Allowed {
		return nil
	}

	messages := make([]string, 0, len(result.Violations))
	for _, v := range result.Violations {
		messages = append(messages, fmt.Sprintf("%s: %s", v.Policy, v.Message))
	}
	return engine.NewValidationError(
		fmt.Sprintf("documents rejected by guardrails: %s", strings.Join(messages, "; ")), nil).
		WithResource(check.RoleName).
		WithOperation("policy:CheckDocuments")
}

// Evaluate runs every enabled policy against check. A policy that fails to
// evaluate fails the whole evaluation.
func (e *Engine) Evaluate(ctx context.Context, check engine.DocumentCheck) (*Result, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	startTime := time.Now()
	input := NewInput(check)

	result := &Result{
		Allowed:           true,
		EvaluatedPolicies: make([]string, 0, len(e.policies)),
	}

	for _, name := range e.sortedNames() {
		cp := e.policies[name]
		if !cp.policy.Enabled {
			continue
		}

		violations, err := e.evaluatePolicy(ctx, cp, input)
		if err != nil {
			e.logger.Error().Err(err).
				Str("policy", cp.policy.Name).
				Str("role", check.RoleName).
				Msg("Policy evaluation failed")
			return nil, fmt.Errorf("policy %s: %w", cp.policy.Name, err)
		}

		result.EvaluatedPolicies = append(result.EvaluatedPolicies, cp.policy.Name)
		for _, v := range violations {
			if v.Severity.Blocking() {
				result.Violations = append(result.Violations, v)
				result.Allowed = false
			} else {
				result.Warnings = append(result.Warnings, v)
			}
		}
	}

	result.EvaluatedAt = time.Now()
	result.Duration = time.Since(startTime)

	e.logger.Debug().
		Str("application_id", check.ApplicationID).
		Bool("allowed", result.Allowed).
		Int("violations", len(result.Violations)).
		Int("warnings", len(result.Warnings)).
		Dur("duration", result.Duration).
		Msg("Document evaluation completed")

	return result, nil
}

// LoadPolicies loads policy files and adds them alongside the built-ins.
func (e *Engine) LoadPolicies(ctx context.Context, paths []string) error {
	loader := NewLoader(e.logger)
	policies, err := loader.LoadFromPaths(ctx, paths)
	if err != nil {
		return fmt.Errorf("failed to load policies: %w", err)
	}
	return e.AddPolicies(ctx, policies)
}

// AddPolicies compiles and stores policies, replacing any with the same name.
func (e *Engine) AddPolicies(ctx context.Context, policies []Policy) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range policies {
		if err := e.compileAndStorePolicy(ctx, &policies[i]); err != nil {
			e.logger.Error().Err(err).
				Str("policy", policies[i].Name).
				Msg("Failed to compile policy")
			return fmt.Errorf("failed to compile policy %s: %w", policies[i].Name, err)
		}
	}

	e.logger.Info().
		Int("count", len(policies)).
		Msg("Policies loaded successfully")

	return nil
}

// ReloadPolicies drops every loaded policy and recompiles the built-ins
// plus custom.
func (e *Engine) ReloadPolicies(ctx context.Context, custom []Policy) error {
	e.mu.Lock()
	e.policies = make(map[string]*compiledPolicy)
	err := e.loadBuiltinPolicies(ctx)
	e.mu.Unlock()
	if err != nil {
		return err
	}
	return e.AddPolicies(ctx, custom)
}

// evaluatePolicy evaluates a single compiled policy.
func (e *Engine) evaluatePolicy(ctx context.Context, cp *compiledPolicy, input *Input) ([]Violation, error) {
	results, err := cp.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("policy evaluation error: %w", err)
	}

	var violations []Violation
	for _, result := range results {
		if len(result.Expressions) == 0 {
			continue
		}
		denySet, ok := result.Expressions[0].Value.([]interface{})
		if !ok {
			continue
		}
		for _, d := range denySet {
			violations = append(violations, createViolation(cp.policy, d))
		}
	}

	return violations, nil
}

// createViolation creates a Violation from a deny set member.
func createViolation(policy *Policy, result interface{}) Violation {
	violation := Violation{
		Policy:   policy.Name,
		Severity: policy.Severity,
	}

	switch v := result.(type) {
	case string:
		violation.Message = v
	case map[string]interface{}:
		if msg, ok := v["message"].(string); ok {
			violation.Message = msg
		}
		if rule, ok := v["rule"].(string); ok {
			violation.Rule = rule
		}
		if doc, ok := v["document"].(string); ok {
			violation.Document = doc
		}
		if sev, ok := v["severity"].(string); ok {
			violation.Severity = Severity(sev)
		}
	default:
		violation.Message = fmt.Sprintf("%v", result)
	}

	return violation
}

// compileAndStorePolicy compiles a policy and stores it. The prepared
// query selects the module's deny set.
func (e *Engine) compileAndStorePolicy(ctx context.Context, policy *Policy) error {
	module, err := ast.ParseModule(policy.Name, policy.Rego)
	if err != nil {
		return fmt.Errorf("failed to parse policy: %w", err)
	}
	if module == nil {
		return fmt.Errorf("policy %s is empty", policy.Name)
	}

	query := module.Package.Path.String() + ".deny"

	r := rego.New(
		rego.Module(policy.Name, policy.Rego),
		rego.Store(e.store),
		rego.Query(query),
	)

	prepared, err := r.PrepareForEval(ctx)
	if err != nil {
		return fmt.Errorf("failed to prepare query: %w", err)
	}

	if e.disabled[policy.Name] {
		policy.Enabled = false
	}

	e.policies[policy.Name] = &compiledPolicy{
		policy:   policy,
		module:   module,
		query:    prepared,
		compiled: time.Now(),
	}

	e.logger.Debug().
		Str("policy", policy.Name).
		Str("query", query).
		Msg("Policy compiled successfully")

	return nil
}

// loadBuiltinPolicies loads the built-in policies. The caller holds mu.
func (e *Engine) loadBuiltinPolicies(ctx context.Context) error {
	for i := range e.builtinPolicies {
		p := e.builtinPolicies[i]
		if err := e.compileAndStorePolicy(ctx, &p); err != nil {
			return fmt.Errorf("failed to compile built-in policy %s: %w", p.Name, err)
		}
	}

	e.logger.Debug().
		Int("count", len(e.builtinPolicies)).
		Msg("Built-in policies loaded")

	return nil
}

func (e *Engine) sortedNames() []string {
	names := make([]string, 0, len(e.policies))
	for name := range e.policies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetPolicy returns a policy by name.
func (e *Engine) GetPolicy(name string) (*Policy, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	cp, exists := e.policies[name]
	if !exists {
		return nil, fmt.Errorf("policy not found: %s", name)
	}

	return cp.policy, nil
}

// ListPolicies returns all loaded policies ordered by name.
func (e *Engine) ListPolicies() []Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	policies := make([]Policy, 0, len(e.policies))
	for _, name := range e.sortedNames() {
		policies = append(policies, *e.policies[name].policy)
	}

	return policies
}

// EnablePolicy enables a policy by name.
func (e *Engine) EnablePolicy(name string) error {
	return e.setEnabled(name, true)
}

// DisablePolicy disables a policy by name.
func (e *Engine) DisablePolicy(name string) error {
	return e.setEnabled(name, false)
}

func (e *Engine) setEnabled(name string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cp, exists := e.policies[name]
	if !exists {
		return fmt.Errorf("policy not found: %s", name)
	}

	cp.policy.Enabled = enabled
	e.logger.Info().Str("policy", name).Bool("enabled", enabled).Msg("Policy toggled")

	return nil
}

// publishViolations reports findings through the telemetry in ctx, if any.
func publishViolations(ctx context.Context, result *Result) {
	tel := telemetry.FromTelemetryContext(ctx)
	if tel == nil || tel.Events == nil {
		return
	}

	report := func(v Violation) {
		if err := tel.Events.PublishPolicyViolation(v.Policy, v.Rule, v.Message, string(v.Severity)); err != nil {
			tel.Logger.WithError(err).Warn("failed to publish policy violation")
		}
	}
	for _, v := range result.Violations {
		report(v)
	}
	for _, v := range result.Warnings {
		report(v)
	}
}
