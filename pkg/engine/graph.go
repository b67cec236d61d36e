package engine

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Graph collects resource declarations and the edges between them.
// Declaring an existing key updates it in place, so callers may declare
// the same resource from several code paths.
type Graph struct {
	decls   map[Key]*Declaration
	order   []Key
	aliases map[Key]Key
	anchors map[Key]struct{}

	anchorOrder []Key
	errs        []error
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		decls:   make(map[Key]*Declaration),
		order:   make([]Key, 0),
		aliases: make(map[Key]Key),
		anchors: make(map[Key]struct{}),
	}
}

// Declare inserts or updates a declaration and returns its key.
// On update, non-zero attributes replace the stored ones.
func (g *Graph) Declare(kind ResourceKind, name string, attrs Attributes) Key {
	key := Key{Kind: kind, Name: name}
	if !kind.Valid() || name == "" {
		g.errs = append(g.errs, NewPermanentError(
			fmt.Sprintf("invalid declaration %s", key), nil,
		).WithCode(ErrCodeValidation).WithResource(key.String()))
		return key
	}

	if target, ok := g.aliases[key]; ok && target != key {
		g.errs = append(g.errs, NewConflictError(
			fmt.Sprintf("%s collides with alias of %s", key, target), nil,
		).WithCode(ErrCodeConflict).WithResource(key.String()))
	}

	decl, exists := g.decls[key]
	if !exists {
		decl = &Declaration{Kind: kind, Name: name}
		g.decls[key] = decl
		g.order = append(g.order, key)
	}
	decl.Attributes.merge(attrs)

	if attrs.Alias != "" {
		g.registerAlias(key, attrs.Alias)
	}
	return key
}

func (g *Graph) registerAlias(key Key, alias string) {
	aliasKey := Key{Kind: key.Kind, Name: alias}
	if aliasKey == key {
		return
	}
	if owner, ok := g.aliases[aliasKey]; ok && owner != key {
		g.errs = append(g.errs, NewConflictError(
			fmt.Sprintf("alias %q claimed by %s and %s", alias, owner, key), nil,
		).WithCode(ErrCodeConflict).WithResource(key.String()))
		return
	}
	if _, ok := g.decls[aliasKey]; ok {
		g.errs = append(g.errs, NewConflictError(
			fmt.Sprintf("alias %q of %s collides with a declared resource", alias, key), nil,
		).WithCode(ErrCodeConflict).WithResource(key.String()))
		return
	}
	g.aliases[aliasKey] = key
}

// Directory declares a directory. Ensure defaults to directory.
func (g *Graph) Directory(path string, attrs Attributes) Key {
	if attrs.Ensure == "" {
		attrs.Ensure = EnsureDirectory
	}
	return g.Declare(KindDirectory, path, attrs)
}

// File declares a file.
func (g *Graph) File(path string, attrs Attributes) Key {
	return g.Declare(KindFile, path, attrs)
}

// Package declares a package.
func (g *Graph) Package(name string, attrs Attributes) Key {
	return g.Declare(KindPackage, name, attrs)
}

// Exec declares a command. Guards are checked when the graph is built.
func (g *Graph) Exec(name string, attrs Attributes) Key {
	return g.Declare(KindExec, name, attrs)
}

// Service declares a service.
func (g *Graph) Service(name string, attrs Attributes) Key {
	return g.Declare(KindService, name, attrs)
}

// Anchor registers a step owned by the caller. Anchors may be referenced
// by edges without being declared.
func (g *Graph) Anchor(key Key) Key {
	if _, ok := g.anchors[key]; !ok {
		g.anchors[key] = struct{}{}
		g.anchorOrder = append(g.anchorOrder, key)
	}
	return key
}

// Require records that k needs every key in deps applied first.
func (g *Graph) Require(k Key, deps ...Key) {
	if d := g.mustGet(k, "require"); d != nil {
		d.Requires = appendUnique(d.Requires, deps...)
	}
}

// Before records that k must be applied before every key in succs.
func (g *Graph) Before(k Key, succs ...Key) {
	if d := g.mustGet(k, "before"); d != nil {
		d.Before = appendUnique(d.Before, succs...)
	}
}

// Notify records that k precedes and refreshes every key in succs.
func (g *Graph) Notify(k Key, succs ...Key) {
	if d := g.mustGet(k, "notify"); d != nil {
		d.Notifies = appendUnique(d.Notifies, succs...)
	}
}

func (g *Graph) mustGet(k Key, rel string) *Declaration {
	d, ok := g.decls[k]
	if !ok {
		g.errs = append(g.errs, NewPermanentError(
			fmt.Sprintf("%s edge declared on undeclared resource %s", rel, k), nil,
		).WithCode(ErrCodeDanglingReference).WithResource(k.String()))
		return nil
	}
	return d
}

func appendUnique(dst []Key, keys ...Key) []Key {
	for _, k := range keys {
		dup := false
		for _, existing := range dst {
			if existing == k {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, k)
		}
	}
	return dst
}

// Resolve maps a key to the key of the declaration or anchor it names,
// following aliases.
func (g *Graph) Resolve(k Key) (Key, bool) {
	if _, ok := g.decls[k]; ok {
		return k, true
	}
	if target, ok := g.aliases[k]; ok {
		return target, true
	}
	if _, ok := g.anchors[k]; ok {
		return k, true
	}
	return Key{}, false
}

// Get returns the declaration for k, following aliases.
func (g *Graph) Get(k Key) (*Declaration, bool) {
	resolved, ok := g.Resolve(k)
	if !ok {
		return nil, false
	}
	d, ok := g.decls[resolved]
	return d, ok
}

// IsAnchor reports whether k is a registered anchor.
func (g *Graph) IsAnchor(k Key) bool {
	_, ok := g.anchors[k]
	return ok
}

// Declarations returns declarations in first-declaration order.
func (g *Graph) Declarations() []*Declaration {
	out := make([]*Declaration, 0, len(g.order))
	for _, k := range g.order {
		out = append(out, g.decls[k])
	}
	return out
}

// Anchors returns anchors in registration order.
func (g *Graph) Anchors() []Key {
	out := make([]Key, len(g.anchorOrder))
	copy(out, g.anchorOrder)
	return out
}

// Len returns the number of declarations.
func (g *Graph) Len() int {
	return len(g.order)
}

// Edges returns every edge in declaration order, normalized so that From
// precedes To. Endpoints are reported as written, before alias resolution.
func (g *Graph) Edges() []Edge {
	edges := make([]Edge, 0)
	for _, k := range g.order {
		d := g.decls[k]
		for _, dep := range d.Requires {
			edges = append(edges, Edge{From: dep, To: k, Type: DependencyRequire})
		}
		for _, succ := range d.Before {
			edges = append(edges, Edge{From: k, To: succ, Type: DependencyBefore})
		}
		for _, succ := range d.Notifies {
			edges = append(edges, Edge{From: k, To: succ, Type: DependencyNotify})
		}
	}
	return edges
}

// Err returns the construction errors recorded so far, joined.
func (g *Graph) Err() error {
	return errors.Join(g.errs...)
}

// MarshalJSON implements json.Marshaler.
func (g *Graph) MarshalJSON() ([]byte, error) {
	return json.Marshal(g.Document())
}

// MarshalYAML implements yaml.Marshaler.
func (g *Graph) MarshalYAML() (interface{}, error) {
	return g.Document(), nil
}

// GraphDocument is the serializable form of a Graph.
type GraphDocument struct {
	Declarations []*Declaration `json:"declarations" yaml:"declarations"`
	Edges        []Edge         `json:"edges" yaml:"edges"`
	Anchors      []Key          `json:"anchors" yaml:"anchors"`
}

// Document returns the serializable form of the graph.
func (g *Graph) Document() GraphDocument {
	return GraphDocument{
		Declarations: g.Declarations(),
		Edges:        g.Edges(),
		Anchors:      g.Anchors(),
	}
}
