package policy

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/rs/zerolog"

	"github.com/xcsettings/xcsettings/pkg/buildsettings"
	"github.com/xcsettings/xcsettings/pkg/telemetry"
)

// Engine evaluates Rego policies against build settings.
type Engine struct {
	mu       sync.RWMutex
	policies map[string]*compiledPolicy
	logger   zerolog.Logger
	metrics  *telemetry.Metrics
	failOn   Severity
	builtins bool
}

// compiledPolicy represents a compiled Rego policy.
type compiledPolicy struct {
	policy *Policy
	query  rego.PreparedEvalQuery
}

// Option configures an Engine.
type Option func(*Engine)

// WithMetrics records violations on m.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithFailOn sets the lowest severity that fails a Result. The default is
// SeverityError.
func WithFailOn(s Severity) Option {
	return func(e *Engine) { e.failOn = s }
}

// WithoutBuiltins starts the engine with no built-in policies.
func WithoutBuiltins() Option {
	return func(e *Engine) { e.builtins = false }
}

// NewEngine creates a new policy engine.
func NewEngine(logger zerolog.Logger, opts ...Option) (*Engine, error) {
	e := &Engine{
		policies: make(map[string]*compiledPolicy),
		logger:   logger.With().Str("component", "policy-engine").Logger(),
		failOn:   SeverityError,
		builtins: true,
	}
	for _, opt := range opts {
		opt(e)
	}
	if _, err := ParseSeverity(string(e.failOn)); err != nil {
		return nil, fmt.Errorf("invalid fail-on severity: %w", err)
	}

	if e.builtins {
		if err := e.loadBuiltinPolicies(context.Background()); err != nil {
			return nil, fmt.Errorf("failed to load built-in policies: %w", err)
		}
	}

	return e, nil
}

// Evaluate evaluates the enabled policies against one target.
func (e *Engine) Evaluate(ctx context.Context, settings *buildsettings.BuildSettings) (*Result, error) {
	return e.EvaluateAll(ctx, []*buildsettings.BuildSettings{settings})
}

// EvaluateAll evaluates the enabled policies against every target in order.
func (e *Engine) EvaluateAll(ctx context.Context, all []*buildsettings.BuildSettings) (*Result, error) {
	startTime := time.Now()
	enabled := e.enabledPolicies()

	result := &Result{
		Passed:            true,
		FailOn:            e.failOn,
		EvaluatedPolicies: make([]string, 0, len(enabled)),
		Targets:           len(all),
	}
	for _, cp := range enabled {
		result.EvaluatedPolicies = append(result.EvaluatedPolicies, cp.policy.Name)
	}

	for _, settings := range all {
		input := NewInput(settings)
		for _, cp := range enabled {
			violations, err := e.evaluatePolicy(ctx, cp, input)
			if err != nil {
				return nil, fmt.Errorf("policy %s on target %s: %w", cp.policy.Name, settings.Target, err)
			}
			for _, v := range violations {
				e.metrics.RecordPolicyViolation(v.Policy, string(v.Severity))
				if v.Severity.AtLeast(e.failOn) {
					result.Passed = false
				}
			}
			result.Violations = append(result.Violations, violations...)
		}
	}

	result.Duration = time.Since(startTime)
	e.logger.Debug().
		Int("targets", result.Targets).
		Int("policies", len(enabled)).
		Int("violations", len(result.Violations)).
		Bool("passed", result.Passed).
		Dur("duration", result.Duration).
		Msg("Policies evaluated")

	return result, nil
}

func (e *Engine) enabledPolicies() []*compiledPolicy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	enabled := make([]*compiledPolicy, 0, len(e.policies))
	for _, cp := range e.policies {
		if cp.policy.Enabled {
			enabled = append(enabled, cp)
		}
	}
	slices.SortFunc(enabled, func(a, b *compiledPolicy) int {
		return cmp.Compare(a.policy.Name, b.policy.Name)
	})
	return enabled
}

// evaluatePolicy evaluates a single compiled policy.
func (e *Engine) evaluatePolicy(ctx context.Context, cp *compiledPolicy, input Input) ([]Violation, error) {
	results, err := cp.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("policy evaluation error: %w", err)
	}

	var violations []Violation
	for _, result := range results {
		if len(result.Expressions) == 0 {
			continue
		}
		denySet, ok := result.Expressions[0].Value.([]any)
		if !ok {
			continue
		}
		for _, d := range denySet {
			violations = append(violations, e.createViolation(cp.policy, d, input))
		}
	}

	sort.SliceStable(violations, func(i, j int) bool {
		if violations[i].Message != violations[j].Message {
			return violations[i].Message < violations[j].Message
		}
		return violations[i].Key < violations[j].Key
	})
	return violations, nil
}

// createViolation creates a Violation from one element of a deny set.
func (e *Engine) createViolation(policy *Policy, result any, input Input) Violation {
	violation := Violation{
		Policy:   policy.Name,
		Target:   input.Target,
		Severity: policy.Severity,
	}

	switch v := result.(type) {
	case string:
		violation.Message = v
	case map[string]any:
		if msg, ok := v["message"].(string); ok {
			violation.Message = msg
		}
		if sev, ok := v["severity"].(string); ok {
			if parsed, err := ParseSeverity(sev); err == nil {
				violation.Severity = parsed
			} else {
				e.logger.Warn().Str("policy", policy.Name).Str("severity", sev).Msg("Ignoring unknown severity")
			}
		}
		if key, ok := v["key"].(string); ok {
			violation.Key = key
		}
	default:
		violation.Message = fmt.Sprintf("%v", result)
	}

	return violation
}

// AddPolicy compiles a policy and stores it, replacing any policy of the
// same name.
func (e *Engine) AddPolicy(ctx context.Context, policy Policy) error {
	cp, err := compilePolicy(ctx, &policy)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.policies[policy.Name] = cp
	e.mu.Unlock()

	e.logger.Debug().
		Str("policy", policy.Name).
		Msg("Policy compiled successfully")
	return nil
}

// compilePolicy parses the module and prepares a query for its deny set.
func compilePolicy(ctx context.Context, policy *Policy) (*compiledPolicy, error) {
	if policy.Name == "" {
		return nil, fmt.Errorf("policy has no name")
	}
	if policy.Severity == "" {
		policy.Severity = SeverityWarning
	}
	if _, err := ParseSeverity(string(policy.Severity)); err != nil {
		return nil, fmt.Errorf("policy %s: %w", policy.Name, err)
	}

	module, err := ast.ParseModule(policy.Name, policy.Rego)
	if err != nil {
		return nil, fmt.Errorf("failed to parse policy %s: %w", policy.Name, err)
	}

	r := rego.New(
		rego.Module(policy.Name, policy.Rego),
		rego.Query(module.Package.Path.String()+".deny"),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare policy %s: %w", policy.Name, err)
	}

	return &compiledPolicy{policy: policy, query: query}, nil
}

// LoadPolicies loads policy files and directories and adds every policy
// found. It returns the number of policies added.
func (e *Engine) LoadPolicies(ctx context.Context, paths []string) (int, error) {
	loader := NewLoader(e.logger)
	policies, err := loader.LoadFromPaths(ctx, paths)
	if err != nil {
		return 0, fmt.Errorf("failed to load policies: %w", err)
	}

	for _, p := range policies {
		if err := e.AddPolicy(ctx, p); err != nil {
			e.logger.Error().Err(err).
				Str("policy", p.Name).
				Msg("Failed to compile policy")
			return 0, err
		}
	}

	e.logger.Info().
		Int("count", len(policies)).
		Msg("Policies loaded successfully")

	return len(policies), nil
}

// ReplaceLoaded swaps every file-backed policy for policies. Built-ins are
// kept. Nothing changes if any policy fails to compile.
func (e *Engine) ReplaceLoaded(ctx context.Context, policies []Policy) error {
	compiled := make(map[string]*compiledPolicy, len(policies))
	for _, p := range policies {
		cp, err := compilePolicy(ctx, &p)
		if err != nil {
			return err
		}
		compiled[p.Name] = cp
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for name, cp := range e.policies {
		if cp.policy.Source != "" {
			delete(e.policies, name)
		}
	}
	for name, cp := range compiled {
		e.policies[name] = cp
	}
	return nil
}

// Watch reloads file-backed policies when files under paths change, until
// ctx is done.
func (e *Engine) Watch(ctx context.Context, paths []string) error {
	loader := NewLoader(e.logger)
	return loader.Watch(ctx, paths, func(policies []Policy) error {
		return e.ReplaceLoaded(ctx, policies)
	})
}

// loadBuiltinPolicies loads the built-in policies.
func (e *Engine) loadBuiltinPolicies(ctx context.Context) error {
	builtins := GetBuiltinPolicies()
	for _, p := range builtins {
		if err := e.AddPolicy(ctx, p); err != nil {
			return err
		}
	}

	e.logger.Debug().
		Int("count", len(builtins)).
		Msg("Built-in policies loaded")

	return nil
}

// GetPolicy returns a policy by name.
func (e *Engine) GetPolicy(name string) (*Policy, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	cp, exists := e.policies[name]
	if !exists {
		return nil, fmt.Errorf("policy not found: %s", name)
	}

	p := *cp.policy
	return &p, nil
}

// ListPolicies returns all loaded policies sorted by name.
func (e *Engine) ListPolicies() []Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	policies := make([]Policy, 0, len(e.policies))
	for _, cp := range e.policies {
		policies = append(policies, *cp.policy)
	}
	slices.SortFunc(policies, func(a, b Policy) int {
		return cmp.Compare(a.Name, b.Name)
	})

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
	e.logger.Info().Str("policy", name).Bool("enabled", enabled).Msg("Policy state changed")

	return nil
}
