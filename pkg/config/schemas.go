package config

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// SchemaRegistry manages CUE schemas for validation.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a new schema registry with built-in schemas.
func NewSchemaRegistry() *SchemaRegistry {
	return newSchemaRegistry(cuecontext.New())
}

func newSchemaRegistry(ctx *cue.Context) *SchemaRegistry {
	sr := &SchemaRegistry{
		ctx:     ctx,
		schemas: make(map[string]cue.Value),
	}
	sr.registerBuiltInSchemas()
	return sr
}

// builtinDefinitions maps schema names onto definitions in builtinSchema.
var builtinDefinitions = map[string]string{
	"recipe":  "#Recipe",
	"hook":    "#Hook",
	"facts":   "#Facts",
	"options": "#Options",
	"policy":  "#Policy",
}

// registerBuiltInSchemas compiles the built-in schema once and registers
// each definition under its short name.
func (sr *SchemaRegistry) registerBuiltInSchemas() {
	val := sr.ctx.CompileString(builtinSchema, cue.Filename("builtin.cue"))
	if err := val.Err(); err != nil {
		panic(fmt.Sprintf("built-in schema does not compile: %v", err))
	}

	sr.mu.Lock()
	defer sr.mu.Unlock()
	for name, def := range builtinDefinitions {
		sr.schemas[name] = val.LookupPath(cue.ParsePath(def))
	}
}

// RegisterSchema compiles a CUE schema and registers it under name.
func (sr *SchemaRegistry) RegisterSchema(name, schema string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(schema)
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	sr.schemas[name] = val
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// Apply unifies val with the named schema and checks the result is concrete.
// The unified value carries the schema defaults.
func (sr *SchemaRegistry) Apply(schemaName string, val cue.Value) (cue.Value, error) {
	schema, ok := sr.GetSchema(schemaName)
	if !ok {
		return cue.Value{}, fmt.Errorf("schema %s not found", schemaName)
	}

	unified := schema.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return cue.Value{}, err
	}
	return unified, nil
}

// ValidateAgainstSchema validates Go data against a named schema.
func (sr *SchemaRegistry) ValidateAgainstSchema(ctx context.Context, schemaName string, data interface{}) error {
	dataVal := sr.ctx.Encode(data)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	if _, err := sr.Apply(schemaName, dataVal); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// ListSchemas returns all registered schema names, sorted.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateHook validates a hook against the hook schema.
func (sr *SchemaRegistry) ValidateHook(ctx context.Context, hook HookConfig) error {
	return sr.ValidateAgainstSchema(ctx, "hook", hook)
}

// ValidatePolicy validates a policy block against the policy schema.
func (sr *SchemaRegistry) ValidatePolicy(ctx context.Context, policy PolicyConfig) error {
	return sr.ValidateAgainstSchema(ctx, "policy", policy)
}

const builtinSchema = `
// Hook names the caller-owned step the service is ordered before.
#Hook: {
	kind: *"exec" | "directory" | "file" | "package" | "service"
	name: string & !=""
}

// Facts describes the target host with facter names.
#Facts: {
	lsbdistid:        string & !=""
	lsbdistrelease:   string & =~"^[0-9]+\\.[0-9]+"
	lsbdistcodename?: string
	architecture?:    string
	hostname?:        string
}

// Options are matched loosely by the recipe, so only the common keys are typed.
#Options: {
	version?:   string
	dbpath?:    string & =~"^/"
	logpath?:   string & =~"^/"
	port?:      int & >0 & <65536
	bind_ip?:   string
	verbose?:   bool
	loglevel?:  int & >=0 & <=5
	journal?:   bool
	auth?:      bool
	[string]: _
}

#Policy: {
	enabled:       bool | *true
	paths?:        [...string]
	on_violation?: "warn" | "fail"
}

#Recipe: {
	name:        string & =~"^[a-zA-Z0-9_.-]+$"
	hook?:       #Hook
	facts?:      #Facts
	facts_file?: string
	options?:    #Options
	script?:     string
	templates?:  string
	policy?:     #Policy
	history?: {
		path: string & !=""
	}
}
`
