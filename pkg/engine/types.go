package engine

import (
	"fmt"
	"strings"
)

// ResourceKind identifies the category of a declared resource.
type ResourceKind string

const (
	// KindDirectory is a filesystem directory.
	KindDirectory ResourceKind = "directory"

	// KindFile is a regular file or a symlink.
	KindFile ResourceKind = "file"

	// KindPackage is an OS package.
	KindPackage ResourceKind = "package"

	// KindExec is a guarded shell command.
	KindExec ResourceKind = "exec"

	// KindService is a supervised daemon.
	KindService ResourceKind = "service"
)

// Title returns the capitalized kind used when printing keys.
func (k ResourceKind) Title() string {
	if k == "" {
		return ""
	}
	return strings.ToUpper(string(k[:1])) + string(k[1:])
}

// Valid reports whether k is one of the known kinds.
func (k ResourceKind) Valid() bool {
	switch k {
	case KindDirectory, KindFile, KindPackage, KindExec, KindService:
		return true
	}
	return false
}

// Key identifies a resource. Declarations are unique by key.
type Key struct {
	Kind ResourceKind `json:"kind" yaml:"kind"`
	Name string       `json:"name" yaml:"name"`
}

// String renders the key as Kind[name], e.g. Package[mongodb-org].
func (k Key) String() string {
	return fmt.Sprintf("%s[%s]", k.Kind.Title(), k.Name)
}

// Less orders keys by kind, then by name.
func (k Key) Less(o Key) bool {
	if k.Kind != o.Kind {
		return k.Kind < o.Kind
	}
	return k.Name < o.Name
}

// IsZero reports whether the key is unset.
func (k Key) IsZero() bool {
	return k.Kind == "" && k.Name == ""
}

// DirectoryKey returns the key of a directory resource.
func DirectoryKey(path string) Key { return Key{Kind: KindDirectory, Name: path} }

// FileKey returns the key of a file resource.
func FileKey(path string) Key { return Key{Kind: KindFile, Name: path} }

// PackageKey returns the key of a package resource.
func PackageKey(name string) Key { return Key{Kind: KindPackage, Name: name} }

// ExecKey returns the key of an exec resource.
func ExecKey(name string) Key { return Key{Kind: KindExec, Name: name} }

// ServiceKey returns the key of a service resource.
func ServiceKey(name string) Key { return Key{Kind: KindService, Name: name} }

// ParseKey parses the Kind[name] form produced by Key.String.
func ParseKey(s string) (Key, error) {
	open := strings.IndexByte(s, '[')
	if open <= 0 || !strings.HasSuffix(s, "]") {
		return Key{}, fmt.Errorf("invalid resource key %q: expected Kind[name]", s)
	}
	kind := ResourceKind(strings.ToLower(s[:open]))
	if !kind.Valid() {
		return Key{}, fmt.Errorf("invalid resource key %q: unknown kind %q", s, s[:open])
	}
	name := s[open+1 : len(s)-1]
	if name == "" {
		return Key{}, fmt.Errorf("invalid resource key %q: empty name", s)
	}
	return Key{Kind: kind, Name: name}, nil
}

// EnsureState is the desired state of a resource.
type EnsureState string

const (
	EnsureDirectory EnsureState = "directory"
	EnsurePresent   EnsureState = "present"
	EnsureAbsent    EnsureState = "absent"
	EnsureInstalled EnsureState = "installed"
	EnsureRunning   EnsureState = "running"
	EnsureLink      EnsureState = "link"
)

// Attributes carries the desired-state fields of a declaration.
// Only fields relevant to the declaration's kind are set.
type Attributes struct {
	Ensure EnsureState `json:"ensure,omitempty" yaml:"ensure,omitempty"`

	// File and directory fields.
	Mode     string `json:"mode,omitempty" yaml:"mode,omitempty"`
	Content  string `json:"content,omitempty" yaml:"content,omitempty"`
	Source   string `json:"source,omitempty" yaml:"source,omitempty"`
	Checksum string `json:"checksum,omitempty" yaml:"checksum,omitempty"`
	Target   string `json:"target,omitempty" yaml:"target,omitempty"`

	// Package fields. Version pins the package when set.
	Version string `json:"version,omitempty" yaml:"version,omitempty"`
	Alias   string `json:"alias,omitempty" yaml:"alias,omitempty"`

	// Exec fields. Creates and Unless are the idempotency guards.
	Command string `json:"command,omitempty" yaml:"command,omitempty"`
	Cwd     string `json:"cwd,omitempty" yaml:"cwd,omitempty"`
	Creates string `json:"creates,omitempty" yaml:"creates,omitempty"`
	Unless  string `json:"unless,omitempty" yaml:"unless,omitempty"`

	// Service fields.
	Enable   bool   `json:"enable,omitempty" yaml:"enable,omitempty"`
	Provider string `json:"provider,omitempty" yaml:"provider,omitempty"`
	Start    string `json:"start,omitempty" yaml:"start,omitempty"`
	Stop     string `json:"stop,omitempty" yaml:"stop,omitempty"`
	Restart  string `json:"restart,omitempty" yaml:"restart,omitempty"`
	Status   string `json:"status,omitempty" yaml:"status,omitempty"`
}

// Guarded reports whether an exec carrying these attributes is idempotent.
func (a Attributes) Guarded() bool {
	return strings.TrimSpace(a.Creates) != "" || strings.TrimSpace(a.Unless) != ""
}

// merge overlays every non-zero field of o onto a.
func (a *Attributes) merge(o Attributes) {
	set := func(dst *string, src string) {
		if src != "" {
			*dst = src
		}
	}
	if o.Ensure != "" {
		a.Ensure = o.Ensure
	}
	set(&a.Mode, o.Mode)
	set(&a.Content, o.Content)
	set(&a.Source, o.Source)
	set(&a.Checksum, o.Checksum)
	set(&a.Target, o.Target)
	set(&a.Version, o.Version)
	set(&a.Alias, o.Alias)
	set(&a.Command, o.Command)
	set(&a.Cwd, o.Cwd)
	set(&a.Creates, o.Creates)
	set(&a.Unless, o.Unless)
	if o.Enable {
		a.Enable = true
	}
	set(&a.Provider, o.Provider)
	set(&a.Start, o.Start)
	set(&a.Stop, o.Stop)
	set(&a.Restart, o.Restart)
	set(&a.Status, o.Status)
}

// Declaration is one desired-state resource together with its outgoing
// relationships. Requires lists predecessors; Before and Notifies list successors.
type Declaration struct {
	Kind       ResourceKind `json:"kind" yaml:"kind"`
	Name       string       `json:"name" yaml:"name"`
	Attributes Attributes   `json:"attributes" yaml:"attributes"`
	Requires   []Key        `json:"requires,omitempty" yaml:"requires,omitempty"`
	Before     []Key        `json:"before,omitempty" yaml:"before,omitempty"`
	Notifies   []Key        `json:"notifies,omitempty" yaml:"notifies,omitempty"`
}

// Key returns the declaration's identity.
func (d *Declaration) Key() Key {
	return Key{Kind: d.Kind, Name: d.Name}
}

// DependencyType represents the type of an ordering edge.
type DependencyType string

const (
	// DependencyRequire is declared on the successor: it needs the predecessor applied first.
	DependencyRequire DependencyType = "require"

	// DependencyBefore is declared on the predecessor: it must be applied first.
	DependencyBefore DependencyType = "before"

	// DependencyNotify orders like before and also triggers a refresh of the successor on change.
	DependencyNotify DependencyType = "notify"
)

// Edge is an ordering relationship. From is always applied before To.
type Edge struct {
	From Key            `json:"from" yaml:"from"`
	To   Key            `json:"to" yaml:"to"`
	Type DependencyType `json:"type" yaml:"type"`
}

// String renders the edge for logs and error messages.
func (e Edge) String() string {
	return fmt.Sprintf("%s -%s-> %s", e.From, e.Type, e.To)
}

// ExecutionGraph is a validated, leveled view of a Graph.
type ExecutionGraph struct {
	// Nodes maps key strings to their graph nodes.
	Nodes map[string]*GraphNode `json:"nodes" yaml:"nodes"`

	// Edges lists all resolved edges in declaration order.
	Edges []GraphEdge `json:"edges" yaml:"edges"`

	// Roots are the nodes with no predecessors.
	Roots []string `json:"roots" yaml:"roots"`

	// Levels groups nodes that have no ordering between them.
	Levels [][]string `json:"levels" yaml:"levels"`

	// Depth is the number of levels.
	Depth int `json:"depth" yaml:"depth"`
}

// GraphNode is one node of an ExecutionGraph.
type GraphNode struct {
	ID string `json:"id" yaml:"id"`
	Key Key   `json:"key" yaml:"key"`

	// Anchor is set for caller-owned steps that are referenced but not declared.
	Anchor bool `json:"anchor,omitempty" yaml:"anchor,omitempty"`

	Level        int      `json:"level" yaml:"level"`
	Dependencies []string `json:"dependencies" yaml:"dependencies"`
	Dependents   []string `json:"dependents" yaml:"dependents"`
}

// GraphEdge is a resolved edge between two node IDs.
type GraphEdge struct {
	From string         `json:"from" yaml:"from"`
	To   string         `json:"to" yaml:"to"`
	Type DependencyType `json:"type" yaml:"type"`
}
