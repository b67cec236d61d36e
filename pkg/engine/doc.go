// Package engine provides the resource model shared by the MongoDB recipe:
// resource kinds and keys, declarations, the Graph that collects them, and
// the DAGBuilder that validates and levels a graph for a convergence engine.
//
// # Declarations
//
// A Graph is built through upserting calls keyed by (kind, name):
//
//	g := engine.NewGraph()
//	list := g.File("/etc/apt/sources.list.d/mongodb.list", engine.Attributes{Ensure: engine.EnsurePresent})
//	update := g.Exec("apt-get update", engine.Attributes{Command: "apt-get update", Unless: "..."})
//	g.Require(update, list)
//
// Declaring the same key twice merges attributes and keeps the first
// position. A package may carry an alias, after which edges can name it by
// the alias. Anchors are steps owned by the caller; edges may point at them
// without a declaration.
//
// # Edges
//
// Require is recorded on the successor, Before and Notify on the
// predecessor. Graph.Edges normalizes all three so From is applied first.
//
// # Validation
//
// DAGBuilder.Build rejects, in order: construction errors (alias
// collisions, edges on undeclared resources), execs with neither creates
// nor unless, edge endpoints that resolve to nothing, and cycles. A valid
// graph is returned with nodes grouped into sorted levels.
//
// # Error Classification
//
// All errors are *EngineError values carrying a class and a code. The
// exported sentinels (ErrUnsupportedPlatform, ErrDanglingReference, ...)
// match with errors.Is by class and code.
//
// # Facts
//
// FactProvider is the only view the recipe has of the target host.
// StaticFacts implements it from fixed values or from a facts file.
package engine
