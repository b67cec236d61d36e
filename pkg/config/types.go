package config

import (
	"time"

	"github.com/openfroyo/mongorecipe/pkg/engine"
)

// RecipeConfig is the decoded "recipe" block of a recipe file.
type RecipeConfig struct {
	// Name identifies the recipe in history and logs.
	Name string `json:"name" validate:"required"`

	// Hook is the caller-owned step the service is ordered before.
	Hook *HookConfig `json:"hook,omitempty"`

	// Facts describes the target host inline.
	Facts *engine.StaticFacts `json:"facts,omitempty" validate:"omitempty"`

	// FactsFile points at a YAML or JSON facts document. Relative paths
	// are resolved against the recipe file.
	FactsFile string `json:"facts_file,omitempty"`

	// Options are the caller overrides, keyed loosely.
	Options map[string]interface{} `json:"options,omitempty"`

	// Script is a Starlark file whose "options" global is layered over Options.
	Script string `json:"script,omitempty"`

	// Templates is a directory of replacement templates.
	Templates string `json:"templates,omitempty"`

	// Policy configures graph policy checks.
	Policy *PolicyConfig `json:"policy,omitempty"`

	// History configures the run history database.
	History *HistoryConfig `json:"history,omitempty"`
}

// HookConfig names the downstream step.
type HookConfig struct {
	Kind string `json:"kind" validate:"required,oneof=directory file package exec service"`
	Name string `json:"name" validate:"required"`
}

// Key returns the engine key of the hook.
func (h HookConfig) Key() engine.Key {
	return engine.Key{Kind: engine.ResourceKind(h.Kind), Name: h.Name}
}

// PolicyConfig configures policy enforcement.
type PolicyConfig struct {
	// Enabled indicates if policy enforcement is enabled.
	Enabled bool `json:"enabled"`

	// Paths lists policy files or directories.
	Paths []string `json:"paths,omitempty"`

	// OnViolation specifies the action on an error-severity violation (warn, fail).
	OnViolation string `json:"on_violation,omitempty" validate:"omitempty,oneof=warn fail"`
}

// HistoryConfig configures the run history store.
type HistoryConfig struct {
	Path string `json:"path" validate:"required"`
}

// ParsedConfig represents the fully parsed configuration from CUE.
type ParsedConfig struct {
	// Recipe is the decoded recipe block.
	Recipe RecipeConfig `json:"recipe"`

	// SourceFiles are the CUE files that were parsed.
	SourceFiles []string `json:"source_files"`

	// ParsedAt is when the configuration was parsed.
	ParsedAt time.Time `json:"parsed_at"`

	// Errors lists any validation errors.
	Errors []ValidationError `json:"errors,omitempty"`
}

// ValidationError represents a validation error with location information.
type ValidationError struct {
	// File is the source file path.
	File string `json:"file,omitempty"`

	// Line is the line number (1-indexed).
	Line int `json:"line,omitempty"`

	// Column is the column number (1-indexed).
	Column int `json:"column,omitempty"`

	// Path is the CUE path to the error (e.g., "recipe.hook.kind").
	Path string `json:"path,omitempty"`

	// Message is the error message.
	Message string `json:"message"`

	// Severity is the error severity (error, warning, info).
	Severity string `json:"severity" validate:"required,oneof=error warning info"`
}

// StarlarkResult represents the result of Starlark execution.
type StarlarkResult struct {
	// Output is the output data from Starlark.
	Output map[string]interface{} `json:"output,omitempty"`

	// ExecutionTime is how long the script took to execute.
	ExecutionTime time.Duration `json:"execution_time"`

	// Error is any error that occurred.
	Error string `json:"error,omitempty"`
}

// HookKey returns the configured hook, or the zero key when none is set.
func (rc *RecipeConfig) HookKey() engine.Key {
	if rc.Hook == nil {
		return engine.Key{}
	}
	return rc.Hook.Key()
}
