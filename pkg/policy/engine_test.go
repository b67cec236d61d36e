package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/openfroyo/mongorecipe/pkg/engine"
	"github.com/openfroyo/mongorecipe/pkg/recipe"
	"github.com/openfroyo/mongorecipe/pkg/telemetry"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	eng, err := NewEngine(zerolog.New(nil).Level(zerolog.Disabled))
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	return eng
}

func violationsOf(result *PolicyResult, policy string) []PolicyViolation {
	var out []PolicyViolation
	for _, v := range result.Violations {
		if v.Policy == policy {
			out = append(out, v)
		}
	}
	return out
}

func TestNewEngine(t *testing.T) {
	eng := newTestEngine(t)

	policies := eng.ListPolicies()
	expected := []string{
		"config-notifies-service",
		"exec-guard",
		"pinned-packages",
		"service-hook",
		"superseded-package-isolation",
	}
	if len(policies) != len(expected) {
		t.Fatalf("Expected %d built-in policies, got %d", len(expected), len(policies))
	}
	for i, name := range expected {
		if policies[i].Name != name {
			t.Errorf("ListPolicies()[%d] = %s, want %s", i, policies[i].Name, name)
		}
		if !policies[i].Builtin || !policies[i].Enabled {
			t.Errorf("Policy %s should be an enabled built-in", name)
		}
	}
}

func TestEvaluateGraph_RecipeGraphsPass(t *testing.T) {
	eng := newTestEngine(t)
	version := "3.2.10"

	tests := []struct {
		name      string
		facts     engine.StaticFacts
		overrides recipe.Overrides
	}{
		{
			name:      "3.2 on precise",
			facts:     engine.StaticFacts{ID: "Ubuntu", Release: "12.04", Codename: "precise", Arch: "amd64"},
			overrides: recipe.Overrides{Version: &version},
		},
		{
			name:  "default repository on lucid",
			facts: engine.StaticFacts{ID: "Ubuntu", Release: "10.04", Codename: "lucid", Arch: "amd64"},
		},
		{
			name:  "legacy tarball",
			facts: engine.StaticFacts{ID: "Ubuntu", Release: "8.10", Codename: "intrepid", Arch: "i386"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := recipe.New(tt.facts).Run(context.Background(), tt.overrides)
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}

			result, err := eng.EvaluateGraph(context.Background(), res.Graph, &PolicyContext{
				RunID:    res.ID,
				Strategy: res.Strategy.String(),
			})
			if err != nil {
				t.Fatalf("EvaluateGraph() error = %v", err)
			}
			if !result.Allowed || len(result.Violations) != 0 {
				t.Errorf("Expected a clean graph, got %+v", result.Violations)
			}
			if len(result.Warnings) != 0 {
				t.Errorf("Unexpected evaluation warnings: %v", result.Warnings)
			}
			if len(result.EvaluatedPolicies) != 5 {
				t.Errorf("Expected 5 evaluated policies, got %v", result.EvaluatedPolicies)
			}
		})
	}
}

func TestEvaluateGraph_Violations(t *testing.T) {
	eng := newTestEngine(t)
	hook := engine.ExecKey("rake tasks")
	svc := engine.ServiceKey("mongod")

	tests := []struct {
		name        string
		build       func(g *engine.Graph)
		policy      string
		wantAllowed bool
		wantCount   int
	}{
		{
			name: "unguarded exec",
			build: func(g *engine.Graph) {
				g.Exec("apt-get update", engine.Attributes{Command: "apt-get update"})
			},
			policy:      "exec-guard",
			wantAllowed: false,
			wantCount:   1,
		},
		{
			name: "service not before hook",
			build: func(g *engine.Graph) {
				g.Anchor(hook)
				g.Service("mongod", engine.Attributes{Ensure: engine.EnsureRunning})
			},
			policy:      "service-hook",
			wantAllowed: true,
			wantCount:   1,
		},
		{
			name: "stopped service is not checked",
			build: func(g *engine.Graph) {
				g.Anchor(hook)
				g.Service("mongod", engine.Attributes{})
			},
			policy:      "service-hook",
			wantAllowed: true,
		},
		{
			name: "removed package ordered before installed package",
			build: func(g *engine.Graph) {
				old := g.Package("mongodb-10gen", engine.Attributes{Ensure: engine.EnsureAbsent})
				g.Package("mongodb-org", engine.Attributes{Ensure: engine.EnsureInstalled, Version: "3.2.10"})
				g.Before(old, engine.PackageKey("mongodb-org"))
			},
			policy:      "superseded-package-isolation",
			wantAllowed: false,
			wantCount:   1,
		},
		{
			name: "edge through alias is resolved",
			build: func(g *engine.Graph) {
				g.Package("mongodb-org", engine.Attributes{Ensure: engine.EnsureInstalled, Version: "3.2.10", Alias: "mongodb"})
				old := g.Package("mongodb18-10gen", engine.Attributes{Ensure: engine.EnsureAbsent})
				g.Require(old, engine.PackageKey("mongodb"))
			},
			policy:      "superseded-package-isolation",
			wantAllowed: false,
			wantCount:   1,
		},
		{
			name: "config without notify",
			build: func(g *engine.Graph) {
				conf := g.File("/etc/mongod.conf", engine.Attributes{Ensure: engine.EnsurePresent})
				g.Service("mongod", engine.Attributes{})
				g.Before(conf, svc)
			},
			policy:      "config-notifies-service",
			wantAllowed: true,
			wantCount:   1,
		},
		{
			name: "upstart job is exempt",
			build: func(g *engine.Graph) {
				job := g.File("/etc/init/mongod.conf", engine.Attributes{Ensure: engine.EnsurePresent})
				g.Service("mongod", engine.Attributes{})
				g.Before(job, svc)
			},
			policy:      "config-notifies-service",
			wantAllowed: true,
		},
		{
			name: "unpinned repository package",
			build: func(g *engine.Graph) {
				update := g.Exec("apt-get update", engine.Attributes{Unless: "true"})
				pkg := g.Package("mongodb-org", engine.Attributes{Ensure: engine.EnsureInstalled})
				g.Require(pkg, update)
			},
			policy:      "pinned-packages",
			wantAllowed: true,
			wantCount:   1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := engine.NewGraph()
			tt.build(g)

			result, err := eng.EvaluateGraph(context.Background(), g, nil)
			if err != nil {
				t.Fatalf("EvaluateGraph() error = %v", err)
			}
			if result.Allowed != tt.wantAllowed {
				t.Errorf("Expected allowed=%v, got %v (%+v)", tt.wantAllowed, result.Allowed, result.Violations)
			}
			got := violationsOf(result, tt.policy)
			if len(got) != tt.wantCount {
				t.Fatalf("Expected %d %s violations, got %+v", tt.wantCount, tt.policy, result.Violations)
			}
			if len(got) > 0 && (got[0].Resource == "" || got[0].Message == "") {
				t.Errorf("Violation should name a resource and carry a message: %+v", got[0])
			}
		})
	}
}

func TestEnableDisablePolicy(t *testing.T) {
	eng := newTestEngine(t)
	g := engine.NewGraph()
	g.Exec("apt-get update", engine.Attributes{Command: "apt-get update"})

	if err := eng.DisablePolicy("exec-guard"); err != nil {
		t.Fatalf("DisablePolicy() error = %v", err)
	}
	result, err := eng.EvaluateGraph(context.Background(), g, nil)
	if err != nil {
		t.Fatalf("EvaluateGraph() error = %v", err)
	}
	if !result.Allowed {
		t.Errorf("Disabled policy should not block: %+v", result.Violations)
	}

	if err := eng.EnablePolicy("exec-guard"); err != nil {
		t.Fatalf("EnablePolicy() error = %v", err)
	}
	result, err = eng.EvaluateGraph(context.Background(), g, nil)
	if err != nil {
		t.Fatalf("EvaluateGraph() error = %v", err)
	}
	if result.Allowed {
		t.Error("Re-enabled policy should block")
	}

	if err := eng.DisablePolicy("nonexistent"); err == nil {
		t.Error("Expected error for unknown policy")
	}
}

func TestLoadPolicies_UserPolicy(t *testing.T) {
	eng := newTestEngine(t)
	dir := t.TempDir()

	rego := `# Services must use the base provider
# severity: error
package custom.provider

import rego.v1

deny contains violation if {
	some d in input.declarations
	d.kind == "service"
	object.get(d.attributes, "provider", "") != "base"
	violation := {"message": "service without base provider", "resource": d.id, "strategy": input.context.strategy}
}
`
	if err := os.WriteFile(filepath.Join(dir, "service-provider.rego"), []byte(rego), 0o644); err != nil {
		t.Fatalf("Failed to write policy: %v", err)
	}

	if err := eng.LoadPolicies(context.Background(), []string{dir}); err != nil {
		t.Fatalf("LoadPolicies() error = %v", err)
	}

	p, err := eng.GetPolicy("service-provider")
	if err != nil {
		t.Fatalf("GetPolicy() error = %v", err)
	}
	if p.Severity != SeverityError || p.Description != "Services must use the base provider" {
		t.Errorf("Unexpected policy header: %+v", p)
	}

	g := engine.NewGraph()
	g.Service("mongodb", engine.Attributes{})
	result, err := eng.EvaluateGraph(context.Background(), g, &PolicyContext{Strategy: "legacy-tarball"})
	if err != nil {
		t.Fatalf("EvaluateGraph() error = %v", err)
	}
	got := violationsOf(result, "service-provider")
	if len(got) != 1 || result.Allowed {
		t.Fatalf("Expected one blocking violation, got %+v", result.Violations)
	}
	if got[0].Details["strategy"] != "legacy-tarball" {
		t.Errorf("Extra keys should land in details, got %v", got[0].Details)
	}

	if err := eng.ReloadPolicies(context.Background()); err != nil {
		t.Fatalf("ReloadPolicies() error = %v", err)
	}
	if _, err := eng.GetPolicy("service-provider"); err == nil {
		t.Error("Reload should drop user policies")
	}
}

func TestLoadPolicies_Errors(t *testing.T) {
	eng := newTestEngine(t)
	dir := t.TempDir()

	shadow := filepath.Join(dir, "exec-guard.rego")
	if err := os.WriteFile(shadow, []byte("package shadow\n\ndeny[msg] { false; msg := \"x\" }\n"), 0o644); err != nil {
		t.Fatalf("Failed to write policy: %v", err)
	}
	if err := eng.LoadPolicies(context.Background(), []string{shadow}); err == nil {
		t.Error("Expected error when shadowing a built-in")
	}

	broken := filepath.Join(dir, "broken.rego")
	if err := os.WriteFile(broken, []byte("package broken\n\ndeny contains"), 0o644); err != nil {
		t.Fatalf("Failed to write policy: %v", err)
	}
	if err := eng.LoadPolicies(context.Background(), []string{broken}); err == nil {
		t.Error("Expected compile error")
	}
	if _, err := eng.GetPolicy("broken"); err == nil {
		t.Error("Broken policy should not be registered")
	}
}

func TestReplacePolicies(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	first := []Policy{{Name: "first", Rego: "package first\n\ndeny[msg] { false; msg := \"x\" }", Severity: SeverityWarning, Enabled: true}}
	second := []Policy{{Name: "second", Rego: "package second\n\ndeny[msg] { false; msg := \"x\" }", Severity: SeverityWarning, Enabled: true}}

	if err := eng.ReplacePolicies(ctx, first); err != nil {
		t.Fatalf("ReplacePolicies() error = %v", err)
	}
	if err := eng.ReplacePolicies(ctx, second); err != nil {
		t.Fatalf("ReplacePolicies() error = %v", err)
	}

	if _, err := eng.GetPolicy("first"); err == nil {
		t.Error("First set should be replaced")
	}
	if _, err := eng.GetPolicy("second"); err != nil {
		t.Errorf("Second set should be present: %v", err)
	}
	if _, err := eng.GetPolicy("exec-guard"); err != nil {
		t.Errorf("Built-ins should survive replacement: %v", err)
	}
}

func TestEvaluate_RecordsViolationMetrics(t *testing.T) {
	metrics, err := telemetry.NewMetrics(telemetry.MetricsConfig{Enabled: true, Namespace: "mongorecipe"})
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}
	eng, err := NewEngine(zerolog.New(nil).Level(zerolog.Disabled), WithMetrics(metrics))
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	g := engine.NewGraph()
	g.Exec("a", engine.Attributes{Command: "true"})
	g.Exec("b", engine.Attributes{Command: "true"})

	result, err := eng.EvaluateGraph(context.Background(), g, nil)
	if err != nil {
		t.Fatalf("EvaluateGraph() error = %v", err)
	}

	summary := result.Summary()
	if summary.TotalViolations != 2 || summary.ViolationsBySeverity[SeverityError] != 2 {
		t.Errorf("Unexpected summary: %+v", summary)
	}
}

func TestNewInput(t *testing.T) {
	g := engine.NewGraph()
	hook := g.Anchor(engine.ExecKey("rake tasks"))
	g.Package("mongodb-org", engine.Attributes{Ensure: engine.EnsureInstalled, Alias: "mongodb"})
	conf := g.File("/etc/mongod.conf", engine.Attributes{Ensure: engine.EnsurePresent})
	g.Require(conf, engine.PackageKey("mongodb"))
	g.Before(conf, hook)

	input := NewInput(g, nil)
	if len(input.Declarations) != 2 {
		t.Fatalf("Expected 2 declarations, got %d", len(input.Declarations))
	}
	if input.Declarations[1].ID != "File[/etc/mongod.conf]" {
		t.Errorf("Unexpected ID %s", input.Declarations[1].ID)
	}
	if len(input.Anchors) != 1 || input.Anchors[0] != "Exec[rake tasks]" {
		t.Errorf("Unexpected anchors %v", input.Anchors)
	}
	if len(input.Edges) != 2 || input.Edges[0].From != "Package[mongodb-org]" {
		t.Errorf("Alias should resolve to the package, got %+v", input.Edges)
	}
}
