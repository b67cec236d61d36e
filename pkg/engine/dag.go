package engine

import (
	"fmt"
	"sort"
	"strings"
)

// DAGBuilder validates a Graph and arranges it into topological levels.
// Resources in the same level have no ordering between them.
type DAGBuilder struct {
	// nodes maps node IDs to their keys
	nodes map[string]Key

	// anchors holds the node IDs of caller-owned steps
	anchors map[string]bool

	// adjacencyList maps node IDs to their successors
	adjacencyList map[string][]string

	// reverseAdjacencyList maps node IDs to their predecessors
	reverseAdjacencyList map[string][]string

	// inDegree tracks the number of distinct predecessors for each node
	inDegree map[string]int

	// edges holds resolved edges in declaration order
	edges []GraphEdge

	// levels maps execution level to node IDs at that level
	levels [][]string
}

// NewDAGBuilder creates a new DAG builder.
func NewDAGBuilder() *DAGBuilder {
	return &DAGBuilder{
		nodes:                make(map[string]Key),
		anchors:              make(map[string]bool),
		adjacencyList:        make(map[string][]string),
		reverseAdjacencyList: make(map[string][]string),
		inDegree:             make(map[string]int),
		edges:                make([]GraphEdge, 0),
		levels:               make([][]string, 0),
	}
}

// Build validates g and returns its execution graph.
// It rejects construction errors, unguarded execs, edges that name
// nothing, and cycles.
func (b *DAGBuilder) Build(g *Graph) (*ExecutionGraph, error) {
	if err := g.Err(); err != nil {
		return nil, err
	}

	if err := b.checkGuards(g); err != nil {
		return nil, err
	}

	if err := b.initialize(g); err != nil {
		return nil, err
	}

	if len(b.nodes) == 0 {
		return &ExecutionGraph{
			Nodes:  make(map[string]*GraphNode),
			Edges:  make([]GraphEdge, 0),
			Roots:  make([]string, 0),
			Levels: make([][]string, 0),
			Depth:  0,
		}, nil
	}

	if err := b.detectCycles(); err != nil {
		return nil, err
	}

	if err := b.computeLevels(); err != nil {
		return nil, err
	}

	return b.buildExecutionGraph(), nil
}

// checkGuards rejects execs that would run on every convergence.
func (b *DAGBuilder) checkGuards(g *Graph) error {
	for _, d := range g.Declarations() {
		if d.Kind == KindExec && !d.Attributes.Guarded() {
			return NewPermanentError(
				fmt.Sprintf("exec %q has neither creates nor unless", d.Name), nil,
			).WithCode(ErrCodeMissingGuard).WithResource(d.Key().String())
		}
	}
	return nil
}

// initialize indexes nodes and resolves every edge endpoint.
func (b *DAGBuilder) initialize(g *Graph) error {
	for _, d := range g.Declarations() {
		b.addNode(d.Key(), false)
	}
	for _, k := range g.Anchors() {
		b.addNode(k, true)
	}

	for _, edge := range g.Edges() {
		from, ok := g.Resolve(edge.From)
		if !ok {
			return danglingError(edge, edge.From)
		}
		to, ok := g.Resolve(edge.To)
		if !ok {
			return danglingError(edge, edge.To)
		}

		fromID, toID := from.String(), to.String()
		b.edges = append(b.edges, GraphEdge{From: fromID, To: toID, Type: edge.Type})

		if containsString(b.adjacencyList[fromID], toID) {
			continue
		}
		b.adjacencyList[fromID] = append(b.adjacencyList[fromID], toID)
		b.reverseAdjacencyList[toID] = append(b.reverseAdjacencyList[toID], fromID)
		b.inDegree[toID]++
	}

	return nil
}

func (b *DAGBuilder) addNode(k Key, anchor bool) {
	id := k.String()
	b.nodes[id] = k
	if anchor {
		b.anchors[id] = true
	}
	b.adjacencyList[id] = make([]string, 0)
	b.reverseAdjacencyList[id] = make([]string, 0)
	b.inDegree[id] = 0
}

func danglingError(edge Edge, missing Key) error {
	return NewPermanentError(
		fmt.Sprintf("edge %s references %s, which is neither declared nor an anchor", edge, missing), nil,
	).WithCode(ErrCodeDanglingReference).WithResource(missing.String())
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// detectCycles uses depth-first search to detect circular dependencies.
func (b *DAGBuilder) detectCycles() error {
	visited := make(map[string]bool)
	recStack := make(map[string]bool)

	for _, id := range b.sortedIDs() {
		if visited[id] {
			continue
		}
		if cycle := b.detectCyclesUtil(id, visited, recStack, nil); cycle != nil {
			return NewPermanentError(
				fmt.Sprintf("circular dependency detected: %s", formatCycle(cycle)), nil,
			).WithCode(ErrCodeCycle).WithDetail("cycle", cycle)
		}
	}

	return nil
}

// detectCyclesUtil returns the cycle path reachable from nodeID, or nil.
func (b *DAGBuilder) detectCyclesUtil(
	nodeID string,
	visited map[string]bool,
	recStack map[string]bool,
	path []string,
) []string {
	visited[nodeID] = true
	recStack[nodeID] = true
	path = append(path, nodeID)

	for _, succ := range b.adjacencyList[nodeID] {
		if !visited[succ] {
			if cycle := b.detectCyclesUtil(succ, visited, recStack, path); cycle != nil {
				return cycle
			}
		} else if recStack[succ] {
			for i, id := range path {
				if id == succ {
					cycle := make([]string, 0, len(path)-i+1)
					cycle = append(cycle, path[i:]...)
					return append(cycle, succ)
				}
			}
		}
	}

	recStack[nodeID] = false
	return nil
}

// computeLevels assigns levels with Kahn's algorithm. Each level is sorted.
func (b *DAGBuilder) computeLevels() error {
	inDegreeCopy := make(map[string]int, len(b.inDegree))
	for id, degree := range b.inDegree {
		inDegreeCopy[id] = degree
	}

	currentLevel := make([]string, 0)
	for id, degree := range inDegreeCopy {
		if degree == 0 {
			currentLevel = append(currentLevel, id)
		}
	}

	processedCount := 0
	for len(currentLevel) > 0 {
		b.sortIDs(currentLevel)
		b.levels = append(b.levels, currentLevel)
		processedCount += len(currentLevel)

		nextLevel := make([]string, 0)
		for _, nodeID := range currentLevel {
			for _, succ := range b.adjacencyList[nodeID] {
				inDegreeCopy[succ]--
				if inDegreeCopy[succ] == 0 {
					nextLevel = append(nextLevel, succ)
				}
			}
		}
		currentLevel = nextLevel
	}

	if processedCount != len(b.nodes) {
		return NewPermanentError("failed to level all resources - possible cycle", nil).
			WithCode(ErrCodeInternal)
	}

	return nil
}

// buildExecutionGraph creates the final ExecutionGraph structure.
func (b *DAGBuilder) buildExecutionGraph() *ExecutionGraph {
	graph := &ExecutionGraph{
		Nodes:  make(map[string]*GraphNode, len(b.nodes)),
		Edges:  b.edges,
		Roots:  make([]string, 0),
		Levels: b.levels,
		Depth:  len(b.levels),
	}

	for level, ids := range b.levels {
		for _, id := range ids {
			graph.Nodes[id] = &GraphNode{
				ID:           id,
				Key:          b.nodes[id],
				Anchor:       b.anchors[id],
				Level:        level,
				Dependencies: b.reverseAdjacencyList[id],
				Dependents:   b.adjacencyList[id],
			}
			if level == 0 {
				graph.Roots = append(graph.Roots, id)
			}
		}
	}

	return graph
}

func (b *DAGBuilder) sortedIDs() []string {
	ids := make([]string, 0, len(b.nodes))
	for id := range b.nodes {
		ids = append(ids, id)
	}
	b.sortIDs(ids)
	return ids
}

// sortIDs orders node IDs by key, so "/data" precedes "/data/db".
func (b *DAGBuilder) sortIDs(ids []string) {
	sort.Slice(ids, func(i, j int) bool {
		return b.nodes[ids[i]].Less(b.nodes[ids[j]])
	})
}

// GetLevels returns the computed levels.
func (b *DAGBuilder) GetLevels() [][]string {
	return b.levels
}

// ToDOT generates a DOT representation of the built graph for Graphviz.
func (b *DAGBuilder) ToDOT() string {
	var sb strings.Builder

	sb.WriteString("digraph ResourceGraph {\n")
	sb.WriteString("  rankdir=TB;\n")
	sb.WriteString("  node [shape=box, style=rounded];\n\n")

	for level, ids := range b.levels {
		sb.WriteString(fmt.Sprintf("  subgraph cluster_level_%d {\n", level))
		sb.WriteString(fmt.Sprintf("    label=\"Level %d\";\n", level))
		sb.WriteString("    style=dashed;\n")

		for _, id := range ids {
			key := b.nodes[id]
			color := getKindColor(key.Kind)
			shape := "box"
			if b.anchors[id] {
				color = "white"
				shape = "ellipse"
			}
			sb.WriteString(fmt.Sprintf("    %q [label=%q, shape=%s, fillcolor=%q, style=\"filled,rounded\"];\n",
				id, key.Name, shape, color))
		}

		sb.WriteString("  }\n\n")
	}

	for _, edge := range b.edges {
		sb.WriteString(fmt.Sprintf("  %q -> %q [%s];\n", edge.From, edge.To, getDependencyStyle(edge.Type)))
	}

	sb.WriteString("}\n")
	return sb.String()
}

// formatCycle formats a cycle path for error messages.
func formatCycle(cycle []string) string {
	return strings.Join(cycle, " -> ")
}

// getKindColor returns a fill color per resource kind.
func getKindColor(kind ResourceKind) string {
	switch kind {
	case KindDirectory:
		return "khaki"
	case KindFile:
		return "lightblue"
	case KindPackage:
		return "lightgreen"
	case KindExec:
		return "lightsalmon"
	case KindService:
		return "plum"
	default:
		return "white"
	}
}

// getDependencyStyle returns a DOT style string for dependency types.
func getDependencyStyle(depType DependencyType) string {
	switch depType {
	case DependencyRequire:
		return "style=solid, color=black"
	case DependencyNotify:
		return "style=dashed, color=blue"
	case DependencyBefore:
		return "style=dotted, color=gray"
	default:
		return "style=solid, color=black"
	}
}

// ValidateGraph performs consistency checks on a built graph.
func (b *DAGBuilder) ValidateGraph(graph *ExecutionGraph) error {
	if len(graph.Nodes) != len(b.nodes) {
		return NewPermanentError("graph node count mismatch", nil).
			WithCode(ErrCodeInternal)
	}

	for _, edge := range graph.Edges {
		if _, exists := graph.Nodes[edge.From]; !exists {
			return NewPermanentError(fmt.Sprintf("edge references non-existent node: %s", edge.From), nil).
				WithCode(ErrCodeInternal)
		}
		if _, exists := graph.Nodes[edge.To]; !exists {
			return NewPermanentError(fmt.Sprintf("edge references non-existent node: %s", edge.To), nil).
				WithCode(ErrCodeInternal)
		}
		if graph.Nodes[edge.From].Level >= graph.Nodes[edge.To].Level {
			return NewPermanentError(fmt.Sprintf("edge %s -> %s is not forward", edge.From, edge.To), nil).
				WithCode(ErrCodeInternal)
		}
	}

	for _, rootID := range graph.Roots {
		if len(graph.Nodes[rootID].Dependencies) > 0 {
			return NewPermanentError(fmt.Sprintf("root node %s has dependencies", rootID), nil).
				WithCode(ErrCodeInternal)
		}
	}

	return nil
}
