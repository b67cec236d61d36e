package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
	"github.com/rs/zerolog"

	"github.com/openfroyo/mongorecipe/pkg/engine"
	"github.com/openfroyo/mongorecipe/pkg/telemetry"
)

// Engine evaluates Rego policies against resource graphs.
type Engine struct {
	mu       sync.RWMutex
	policies map[string]*compiledPolicy
	logger   zerolog.Logger
	metrics  *telemetry.Metrics
	loader   *Loader
}

// compiledPolicy represents a compiled Rego policy.
type compiledPolicy struct {
	policy   *Policy
	module   *ast.Module
	query    rego.PreparedEvalQuery
	compiled time.Time
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithMetrics records violations on m.
func WithMetrics(m *telemetry.Metrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// NewEngine creates a new policy engine with the built-in policies loaded.
func NewEngine(logger zerolog.Logger, opts ...EngineOption) (*Engine, error) {
	e := &Engine{
		policies: make(map[string]*compiledPolicy),
		logger:   logger.With().Str("component", "policy-engine").Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.loader = NewLoader(e.logger)

	if err := e.loadBuiltinPolicies(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to load built-in policies: %w", err)
	}

	return e, nil
}

// NewInput flattens a graph into the policy input document. Edge endpoints
// are resolved through aliases so they match declaration IDs.
func NewInput(g *engine.Graph, pctx *PolicyContext) *PolicyInput {
	input := &PolicyInput{
		Declarations: make([]InputDeclaration, 0, g.Len()),
		Edges:        make([]InputEdge, 0),
		Anchors:      make([]string, 0),
		Context:      pctx,
	}

	for _, d := range g.Declarations() {
		input.Declarations = append(input.Declarations, InputDeclaration{
			ID:         d.Key().String(),
			Kind:       string(d.Kind),
			Name:       d.Name,
			Attributes: d.Attributes,
		})
	}

	resolve := func(k engine.Key) string {
		if r, ok := g.Resolve(k); ok {
			return r.String()
		}
		return k.String()
	}
	for _, edge := range g.Edges() {
		input.Edges = append(input.Edges, InputEdge{
			From: resolve(edge.From),
			To:   resolve(edge.To),
			Type: string(edge.Type),
		})
	}

	for _, a := range g.Anchors() {
		input.Anchors = append(input.Anchors, a.String())
	}

	return input
}

// EvaluateGraph evaluates every enabled policy against g.
func (e *Engine) EvaluateGraph(ctx context.Context, g *engine.Graph, pctx *PolicyContext) (*PolicyResult, error) {
	if pctx == nil {
		pctx = &PolicyContext{Operation: "validate"}
	}
	if pctx.Timestamp.IsZero() {
		pctx.Timestamp = time.Now()
	}
	return e.Evaluate(ctx, NewInput(g, pctx))
}

// Evaluate evaluates every enabled policy against input. A policy that fails
// to evaluate is reported as a warning and does not block.
func (e *Engine) Evaluate(ctx context.Context, input *PolicyInput) (*PolicyResult, error) {
	startTime := time.Now()

	doc, err := toDocument(input)
	if err != nil {
		return nil, fmt.Errorf("failed to encode policy input: %w", err)
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	var allViolations []PolicyViolation
	var warnings []string
	evaluatedPolicies := make([]string, 0, len(e.policies))

	for _, name := range e.sortedNames() {
		cp := e.policies[name]
		if !cp.policy.Enabled {
			continue
		}

		evaluatedPolicies = append(evaluatedPolicies, name)

		violations, err := e.evaluatePolicy(ctx, cp, doc)
		if err != nil {
			e.logger.Error().Err(err).
				Str("policy", name).
				Msg("Policy evaluation failed")
			warnings = append(warnings, fmt.Sprintf("Policy %s evaluation failed: %v", name, err))
			continue
		}

		allViolations = append(allViolations, violations...)
	}

	allowed := true
	for i := range allViolations {
		e.metrics.RecordPolicyViolation(allViolations[i].Policy, string(allViolations[i].Severity))
		if allViolations[i].Severity.Blocking() {
			allowed = false
		}
	}

	duration := time.Since(startTime)
	e.logger.Debug().
		Int("declarations", len(input.Declarations)).
		Int("violations", len(allViolations)).
		Dur("duration", duration).
		Msg("Graph policy evaluation completed")

	return &PolicyResult{
		Allowed:           allowed,
		Violations:        allViolations,
		Warnings:          warnings,
		EvaluatedAt:       time.Now(),
		EvaluatedPolicies: evaluatedPolicies,
		Duration:          duration,
		Context:           input.Context,
	}, nil
}

// toDocument converts the input to plain JSON values for Rego.
func toDocument(input *PolicyInput) (interface{}, error) {
	data, err := json.Marshal(input)
	if err != nil {
		return nil, err
	}
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// evaluatePolicy evaluates a single compiled policy.
func (e *Engine) evaluatePolicy(ctx context.Context, cp *compiledPolicy, doc interface{}) ([]PolicyViolation, error) {
	results, err := cp.query.Eval(ctx, rego.EvalInput(doc))
	if err != nil {
		return nil, fmt.Errorf("policy evaluation error: %w", err)
	}

	var violations []PolicyViolation
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

// createViolation creates a PolicyViolation from a deny entry. Entries are
// either plain strings or objects with message, severity, resource and
// remediation keys; any other keys land in Details.
func createViolation(policy *Policy, result interface{}) PolicyViolation {
	violation := PolicyViolation{
		Policy:     policy.Name,
		Severity:   policy.Severity,
		DetectedAt: time.Now(),
	}

	switch v := result.(type) {
	case string:
		violation.Message = v
	case map[string]interface{}:
		for key, val := range v {
			s, isString := val.(string)
			switch {
			case key == "message" && isString:
				violation.Message = s
			case key == "severity" && isString:
				violation.Severity = Severity(s)
			case key == "resource" && isString:
				violation.Resource = s
			case key == "remediation" && isString:
				violation.Remediation = s
			default:
				if violation.Details == nil {
					violation.Details = make(map[string]interface{})
				}
				violation.Details[key] = val
			}
		}
	default:
		violation.Message = fmt.Sprintf("%v", result)
	}

	return violation
}

// compile parses a policy and prepares its deny query.
func compile(ctx context.Context, policy *Policy) (*compiledPolicy, error) {
	module, err := ast.ParseModule(policy.Name, policy.Rego)
	if err != nil {
		return nil, fmt.Errorf("failed to parse policy: %w", err)
	}

	query, err := rego.New(
		rego.Module(policy.Name, policy.Rego),
		rego.Query(module.Package.Path.String()+".deny"),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare query: %w", err)
	}

	return &compiledPolicy{
		policy:   policy,
		module:   module,
		query:    query,
		compiled: time.Now(),
	}, nil
}

func compileAll(ctx context.Context, policies []Policy) (map[string]*compiledPolicy, error) {
	out := make(map[string]*compiledPolicy, len(policies))
	for i := range policies {
		p := policies[i]
		cp, err := compile(ctx, &p)
		if err != nil {
			return nil, fmt.Errorf("failed to compile policy %s: %w", p.Name, err)
		}
		out[p.Name] = cp
	}
	return out, nil
}

// LoadPolicies loads policy files and adds them to the engine. Nothing is
// added if any policy fails to compile.
func (e *Engine) LoadPolicies(ctx context.Context, paths []string) error {
	policies, err := e.loader.LoadFromPaths(ctx, paths)
	if err != nil {
		return fmt.Errorf("failed to load policies: %w", err)
	}

	compiled, err := compileAll(ctx, policies)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for name, cp := range compiled {
		if existing, ok := e.policies[name]; ok && existing.policy.Builtin {
			return fmt.Errorf("policy %s shadows a built-in policy", name)
		}
		e.policies[name] = cp
	}

	e.logger.Info().
		Int("count", len(policies)).
		Msg("Policies loaded successfully")

	return nil
}

// ReplacePolicies swaps every non built-in policy for the given set.
func (e *Engine) ReplacePolicies(ctx context.Context, policies []Policy) error {
	compiled, err := compileAll(ctx, policies)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for name, cp := range e.policies {
		if !cp.policy.Builtin {
			delete(e.policies, name)
		}
	}
	for name, cp := range compiled {
		if _, ok := e.policies[name]; ok {
			e.logger.Warn().Str("policy", name).Msg("Skipping policy that shadows a built-in")
			continue
		}
		e.policies[name] = cp
	}

	return nil
}

// Watch reloads user policies from paths whenever a policy file changes.
func (e *Engine) Watch(ctx context.Context, paths []string) error {
	return e.loader.Watch(ctx, paths, func(policies []Policy) error {
		return e.ReplacePolicies(ctx, policies)
	})
}

// loadBuiltinPolicies loads the built-in policies.
func (e *Engine) loadBuiltinPolicies(ctx context.Context) error {
	builtins := GetBuiltinPolicies()
	compiled, err := compileAll(ctx, builtins)
	if err != nil {
		return err
	}

	e.mu.Lock()
	for name, cp := range compiled {
		e.policies[name] = cp
	}
	e.mu.Unlock()

	e.logger.Debug().
		Int("count", len(builtins)).
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

// ListPolicies returns all loaded policies sorted by name.
func (e *Engine) ListPolicies() []Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	policies := make([]Policy, 0, len(e.policies))
	for _, name := range e.sortedNames() {
		policies = append(policies, *e.policies[name].policy)
	}

	return policies
}

// ReloadPolicies drops user policies and restores the built-in set.
func (e *Engine) ReloadPolicies(ctx context.Context) error {
	e.mu.Lock()
	e.policies = make(map[string]*compiledPolicy)
	e.mu.Unlock()

	e.loader.ClearCache()
	return e.loadBuiltinPolicies(ctx)
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

// Close stops any running watch.
func (e *Engine) Close() error {
	return e.loader.StopWatching()
}
