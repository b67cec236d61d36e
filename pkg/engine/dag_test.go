package engine

import (
	"errors"
	"strings"
	"testing"
)

func guardedExec(cmd string) Attributes {
	return Attributes{Command: cmd, Unless: "test -f /tmp/done"}
}

func TestDAGBuilder_Build_EmptyGraph(t *testing.T) {
	builder := NewDAGBuilder()
	graph, err := builder.Build(NewGraph())

	if err != nil {
		t.Fatalf("Expected no error for empty graph, got: %v", err)
	}

	if len(graph.Nodes) != 0 {
		t.Errorf("Expected 0 nodes, got %d", len(graph.Nodes))
	}

	if graph.Depth != 0 {
		t.Errorf("Expected depth 0, got %d", graph.Depth)
	}
}

func TestDAGBuilder_Build_LinearDependencies(t *testing.T) {
	g := NewGraph()
	dir := g.Directory("/opt/local", Attributes{})
	pkg := g.Package("wget", Attributes{Ensure: EnsureInstalled})
	install := g.Exec("install", Attributes{Command: "true", Creates: "/opt/local/bin"})
	svc := g.Service("mongodb", Attributes{Ensure: EnsureRunning})
	g.Require(pkg, dir)
	g.Require(install, pkg)
	g.Require(svc, install)

	builder := NewDAGBuilder()
	graph, err := builder.Build(g)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if graph.Depth != 4 {
		t.Errorf("Expected depth 4, got %d", graph.Depth)
	}

	for i, key := range []Key{dir, pkg, install, svc} {
		if got := graph.Nodes[key.String()].Level; got != i {
			t.Errorf("%s should be at level %d, got %d", key, i, got)
		}
	}

	if len(graph.Edges) != 3 {
		t.Errorf("Expected 3 edges, got %d", len(graph.Edges))
	}

	if err := builder.ValidateGraph(graph); err != nil {
		t.Errorf("ValidateGraph() error = %v", err)
	}
}

func TestDAGBuilder_Build_ParallelLevelsAreSorted(t *testing.T) {
	g := NewGraph()
	g.Directory("/var/log/mongodb", Attributes{})
	g.Directory("/data", Attributes{})
	g.Directory("/data/db", Attributes{})

	graph, err := NewDAGBuilder().Build(g)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if graph.Depth != 1 {
		t.Fatalf("Expected depth 1, got %d", graph.Depth)
	}

	want := []string{"Directory[/data]", "Directory[/data/db]", "Directory[/var/log/mongodb]"}
	for i, id := range want {
		if graph.Levels[0][i] != id {
			t.Errorf("Levels[0][%d] = %s, want %s", i, graph.Levels[0][i], id)
		}
	}

	if len(graph.Roots) != 3 {
		t.Errorf("Expected 3 roots, got %d", len(graph.Roots))
	}
}

func TestKey_Less(t *testing.T) {
	tests := []struct {
		a, b Key
		want bool
	}{
		{DirectoryKey("/data"), DirectoryKey("/data/db"), true},
		{DirectoryKey("/data/db"), DirectoryKey("/data"), false},
		{DirectoryKey("/var/log"), ExecKey("apt-get update"), true},
		{PackageKey("mongodb-org"), PackageKey("mongodb-org-server"), true},
		{ServiceKey("mongod"), FileKey("/etc/mongod.conf"), false},
		{FileKey("/etc/mongod.conf"), FileKey("/etc/mongod.conf"), false},
	}

	for _, tt := range tests {
		if got := tt.a.Less(tt.b); got != tt.want {
			t.Errorf("%s.Less(%s) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestDAGBuilder_Build_BeforeAndNotifyOrderLikeRequire(t *testing.T) {
	g := NewGraph()
	conf := g.File("/etc/mongodb.conf", Attributes{Ensure: EnsurePresent})
	svc := g.Service("mongodb", Attributes{Ensure: EnsureRunning})
	g.Before(conf, svc)
	g.Notify(conf, svc)

	graph, err := NewDAGBuilder().Build(g)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if graph.Nodes[conf.String()].Level != 0 || graph.Nodes[svc.String()].Level != 1 {
		t.Errorf("config file must precede the service")
	}

	// Both typed edges are kept; the adjacency is not duplicated.
	if len(graph.Edges) != 2 {
		t.Errorf("Expected 2 edges, got %d", len(graph.Edges))
	}
	if len(graph.Nodes[svc.String()].Dependencies) != 1 {
		t.Errorf("Expected 1 distinct predecessor, got %v", graph.Nodes[svc.String()].Dependencies)
	}
}

func TestDAGBuilder_DetectCycles(t *testing.T) {
	g := NewGraph()
	a := g.File("/a", Attributes{})
	b := g.File("/b", Attributes{})
	c := g.File("/c", Attributes{})
	g.Require(a, c)
	g.Require(b, a)
	g.Require(c, b)

	_, err := NewDAGBuilder().Build(g)
	if err == nil {
		t.Fatal("Expected error for circular dependency, got nil")
	}

	if !errors.Is(err, ErrCycle) {
		t.Errorf("Expected ErrCycle, got %v", err)
	}

	if !strings.Contains(err.Error(), "->") {
		t.Errorf("Expected the cycle path in %q", err.Error())
	}
}

func TestDAGBuilder_SelfDependency(t *testing.T) {
	g := NewGraph()
	a := g.File("/a", Attributes{})
	g.Before(a, a)

	if _, err := NewDAGBuilder().Build(g); !errors.Is(err, ErrCycle) {
		t.Fatalf("Expected ErrCycle, got %v", err)
	}
}

func TestDAGBuilder_DanglingReference(t *testing.T) {
	g := NewGraph()
	svc := g.Service("mongodb", Attributes{})
	g.Require(svc, PackageKey("missing"))

	_, err := NewDAGBuilder().Build(g)
	if !errors.Is(err, ErrDanglingReference) {
		t.Fatalf("Expected ErrDanglingReference, got %v", err)
	}

	var ee *EngineError
	if !errors.As(err, &ee) || ee.Resource != "Package[missing]" {
		t.Errorf("Expected resource Package[missing], got %+v", ee)
	}
}

func TestDAGBuilder_ResolvesAliasesAndAnchors(t *testing.T) {
	g := NewGraph()
	hook := g.Anchor(ExecKey("rake tasks"))
	pkg := g.Package("mongodb-org", Attributes{Ensure: EnsureInstalled, Alias: "mongodb"})
	conf := g.File("/etc/mongod.conf", Attributes{})
	svc := g.Service("mongod", Attributes{})
	g.Require(conf, PackageKey("mongodb"))
	g.Require(svc, pkg, conf)
	g.Before(svc, hook)

	graph, err := NewDAGBuilder().Build(g)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if graph.Edges[0].From != "Package[mongodb-org]" {
		t.Errorf("Expected alias resolved to Package[mongodb-org], got %s", graph.Edges[0].From)
	}

	node := graph.Nodes[hook.String()]
	if node == nil || !node.Anchor {
		t.Fatalf("Expected anchor node for %s", hook)
	}
	if node.Level != graph.Depth-1 {
		t.Errorf("Expected anchor at last level, got %d of %d", node.Level, graph.Depth)
	}
}

func TestDAGBuilder_RejectsUnguardedExec(t *testing.T) {
	tests := []struct {
		name    string
		attrs   Attributes
		wantErr bool
	}{
		{"creates", Attributes{Command: "x", Creates: "/x"}, false},
		{"unless", guardedExec("x"), false},
		{"none", Attributes{Command: "x"}, true},
		{"blank", Attributes{Command: "x", Unless: "  "}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGraph()
			g.Exec("cmd", tt.attrs)
			_, err := NewDAGBuilder().Build(g)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Build() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, ErrMissingGuard) {
				t.Errorf("Expected ErrMissingGuard, got %v", err)
			}
		})
	}
}

func TestDAGBuilder_SurfacesConstructionErrors(t *testing.T) {
	g := NewGraph()
	g.Package("mongodb-10gen", Attributes{Alias: "mongodb"})
	g.Package("mongodb-org", Attributes{Alias: "mongodb"})

	_, err := NewDAGBuilder().Build(g)
	if !errors.Is(err, ErrAliasConflict) {
		t.Fatalf("Expected ErrAliasConflict, got %v", err)
	}
	if !IsConflict(err) {
		t.Errorf("Expected conflict class")
	}
}

func TestDAGBuilder_ToDOT(t *testing.T) {
	g := NewGraph()
	hook := g.Anchor(ExecKey("rake tasks"))
	conf := g.File("/etc/mongodb.conf", Attributes{})
	svc := g.Service("mongodb", Attributes{})
	g.Notify(conf, svc)
	g.Before(svc, hook)

	builder := NewDAGBuilder()
	if _, err := builder.Build(g); err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	dot := builder.ToDOT()
	for _, want := range []string{
		"digraph ResourceGraph",
		`"File[/etc/mongodb.conf]" -> "Service[mongodb]" [style=dashed, color=blue]`,
		`"Service[mongodb]" -> "Exec[rake tasks]" [style=dotted, color=gray]`,
		"shape=ellipse",
	} {
		if !strings.Contains(dot, want) {
			t.Errorf("DOT output missing %q:\n%s", want, dot)
		}
	}
}
