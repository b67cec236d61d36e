package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"github.com/go-playground/validator/v10"

	"github.com/openfroyo/mongorecipe/pkg/engine"
	"github.com/openfroyo/mongorecipe/pkg/recipe"
)

// CUEParser parses and validates recipe files written in CUE.
type CUEParser struct {
	ctx               *cue.Context
	schemaRegistry    *SchemaRegistry
	starlarkEvaluator *StarlarkEvaluator
	validator         *validator.Validate
}

// NewCUEParser creates a new CUE parser.
func NewCUEParser() *CUEParser {
	ctx := cuecontext.New()
	return &CUEParser{
		ctx:               ctx,
		schemaRegistry:    newSchemaRegistry(ctx),
		starlarkEvaluator: NewStarlarkEvaluator(30 * time.Second),
		validator:         validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Load parses sources and returns the recipe block, failing on any
// validation error.
func (cp *CUEParser) Load(ctx context.Context, sources []string) (*ParsedConfig, error) {
	parsed, err := cp.Parse(ctx, sources)
	if err != nil {
		return nil, err
	}
	if len(parsed.Errors) > 0 {
		return nil, errorsToEngineError(parsed.Errors)
	}
	return parsed, nil
}

// Parse parses CUE configuration from the given sources. Schema and
// decoding problems are reported in ParsedConfig.Errors; only I/O
// failures are returned as errors.
func (cp *CUEParser) Parse(ctx context.Context, sources []string) (*ParsedConfig, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("no sources provided")
	}

	var cueValue cue.Value
	var sourceFiles []string
	var parseErrors []ValidationError

	for _, source := range sources {
		info, err := os.Stat(source)
		if err != nil {
			return nil, fmt.Errorf("failed to stat source %s: %w", source, err)
		}

		var val cue.Value
		if info.IsDir() {
			var files []string
			var errs []ValidationError
			val, files, errs = cp.loadDirectory(source)
			parseErrors = append(parseErrors, errs...)
			sourceFiles = append(sourceFiles, files...)
		} else {
			var errs []ValidationError
			val, errs = cp.loadFile(source)
			parseErrors = append(parseErrors, errs...)
			sourceFiles = append(sourceFiles, source)
		}

		if val.Exists() {
			if cueValue.Exists() {
				cueValue = cueValue.Unify(val)
			} else {
				cueValue = val
			}
		}
	}

	if len(parseErrors) > 0 {
		return &ParsedConfig{
			SourceFiles: sourceFiles,
			ParsedAt:    time.Now(),
			Errors:      parseErrors,
		}, nil
	}

	if err := cueValue.Err(); err != nil {
		return &ParsedConfig{
			SourceFiles: sourceFiles,
			ParsedAt:    time.Now(),
			Errors:      cp.convertCUEErrors(err),
		}, nil
	}

	return cp.extractConfig(cueValue, sourceFiles), nil
}

// ParseInline parses inline CUE content.
func (cp *CUEParser) ParseInline(ctx context.Context, content string) (*ParsedConfig, error) {
	val := cp.ctx.CompileString(content, cue.Filename("inline"))
	if err := val.Err(); err != nil {
		return &ParsedConfig{
			SourceFiles: []string{"inline"},
			ParsedAt:    time.Now(),
			Errors:      cp.convertCUEErrors(err),
		}, nil
	}

	return cp.extractConfig(val, []string{"inline"}), nil
}

// loadDirectory loads a directory as a CUE package.
func (cp *CUEParser) loadDirectory(dir string) (cue.Value, []string, []ValidationError) {
	buildInstances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(buildInstances) == 0 {
		return cue.Value{}, nil, []ValidationError{{
			File:     dir,
			Message:  "no CUE files found",
			Severity: "error",
		}}
	}

	inst := buildInstances[0]
	if inst.Err != nil {
		return cue.Value{}, nil, cp.convertCUEErrors(inst.Err)
	}

	val := cp.ctx.BuildInstance(inst)
	if err := val.Err(); err != nil {
		return cue.Value{}, nil, cp.convertCUEErrors(err)
	}

	var files []string
	for _, file := range inst.Files {
		if file.Filename != "" {
			files = append(files, file.Filename)
		}
	}

	return val, files, nil
}

// loadFile loads a single CUE file.
func (cp *CUEParser) loadFile(path string) (cue.Value, []ValidationError) {
	content, err := os.ReadFile(path)
	if err != nil {
		return cue.Value{}, []ValidationError{{
			File:     path,
			Message:  fmt.Sprintf("failed to read file: %v", err),
			Severity: "error",
		}}
	}

	val := cp.ctx.CompileString(string(content), cue.Filename(path))
	if err := val.Err(); err != nil {
		return cue.Value{}, cp.convertCUEErrors(err)
	}

	return val, nil
}

// extractConfig checks the recipe block against the schema and decodes it.
func (cp *CUEParser) extractConfig(val cue.Value, sourceFiles []string) *ParsedConfig {
	parsedConfig := &ParsedConfig{
		SourceFiles: sourceFiles,
		ParsedAt:    time.Now(),
	}

	recipeVal := val.LookupPath(cue.ParsePath("recipe"))
	if !recipeVal.Exists() {
		parsedConfig.Errors = append(parsedConfig.Errors, ValidationError{
			Path:     "recipe",
			Message:  "recipe block is required",
			Severity: "error",
		})
		return parsedConfig
	}

	unified, err := cp.schemaRegistry.Apply("recipe", recipeVal)
	if err != nil {
		parsedConfig.Errors = append(parsedConfig.Errors, cp.convertCUEErrors(err)...)
		return parsedConfig
	}

	var rc RecipeConfig
	if err := unified.Decode(&rc); err != nil {
		parsedConfig.Errors = append(parsedConfig.Errors, ValidationError{
			Path:     "recipe",
			Message:  fmt.Sprintf("failed to decode recipe: %v", err),
			Severity: "error",
		})
		return parsedConfig
	}

	if err := cp.validator.Struct(rc); err != nil {
		parsedConfig.Errors = append(parsedConfig.Errors, ValidationError{
			Path:     "recipe",
			Message:  fmt.Sprintf("validation failed: %v", err),
			Severity: "error",
		})
		return parsedConfig
	}

	if rc.Facts != nil && rc.FactsFile != "" {
		parsedConfig.Errors = append(parsedConfig.Errors, ValidationError{
			Path:     "recipe.facts_file",
			Message:  "facts and facts_file are mutually exclusive",
			Severity: "error",
		})
		return parsedConfig
	}

	if len(sourceFiles) > 0 && sourceFiles[0] != "inline" {
		base := filepath.Dir(sourceFiles[0])
		rc.FactsFile = resolvePath(base, rc.FactsFile)
		rc.Script = resolvePath(base, rc.Script)
		rc.Templates = resolvePath(base, rc.Templates)
		if rc.Policy != nil {
			for i, p := range rc.Policy.Paths {
				rc.Policy.Paths[i] = resolvePath(base, p)
			}
		}
	}

	parsedConfig.Recipe = rc
	return parsedConfig
}

func resolvePath(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// convertCUEErrors converts CUE errors to ValidationError slice.
func (cp *CUEParser) convertCUEErrors(err error) []ValidationError {
	var validationErrors []ValidationError

	for _, e := range errors.Errors(err) {
		pos := errors.Positions(e)
		var file string
		var line, column int

		if len(pos) > 0 {
			file = pos[0].Filename()
			line = pos[0].Line()
			column = pos[0].Column()
		}

		validationErrors = append(validationErrors, ValidationError{
			File:     file,
			Line:     line,
			Column:   column,
			Path:     strings.Join(e.Path(), "."),
			Message:  errors.Details(e, nil),
			Severity: "error",
		})
	}

	return validationErrors
}

func errorsToEngineError(errs []ValidationError) error {
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		loc := e.Path
		if e.File != "" {
			loc = fmt.Sprintf("%s:%d:%d", e.File, e.Line, e.Column)
		}
		if loc != "" {
			msgs = append(msgs, loc+": "+e.Message)
		} else {
			msgs = append(msgs, e.Message)
		}
	}
	return engine.NewPermanentError("invalid recipe file: "+strings.Join(msgs, "; "), nil).
		WithCode(engine.ErrCodeValidation).
		WithDetail("errors", errs)
}

// ResolveFacts returns the inline facts or loads the facts file.
func (cp *CUEParser) ResolveFacts(rc *RecipeConfig) (*engine.StaticFacts, error) {
	switch {
	case rc.Facts != nil:
		facts := *rc.Facts
		return &facts, nil
	case rc.FactsFile != "":
		return engine.LoadFactsFile(rc.FactsFile)
	default:
		return nil, engine.NewPermanentError("recipe has neither facts nor facts_file", nil).
			WithCode(engine.ErrCodeValidation)
	}
}

// ResolveOverrides parses the recipe options and, when a script is set,
// layers the script's "options" global over them. The script sees the
// host facts as "facts" and the file options as "options".
func (cp *CUEParser) ResolveOverrides(ctx context.Context, rc *RecipeConfig, facts engine.StaticFacts) (recipe.Overrides, error) {
	base, err := recipe.ParseOverrides(rc.Options)
	if err != nil {
		return recipe.Overrides{}, err
	}
	if rc.Script == "" {
		return base, nil
	}

	script, err := os.ReadFile(rc.Script)
	if err != nil {
		return recipe.Overrides{}, fmt.Errorf("failed to read script %s: %w", rc.Script, err)
	}

	options := rc.Options
	if options == nil {
		options = map[string]interface{}{}
	}
	output, err := cp.EvaluateStarlark(ctx, string(script), map[string]interface{}{
		"facts":   factsToMap(facts),
		"options": options,
	})
	if err != nil {
		return recipe.Overrides{}, err
	}

	raw, ok := output["options"].(map[string]interface{})
	if !ok {
		return recipe.Overrides{}, engine.NewPermanentError(
			fmt.Sprintf("script %s must leave a dict named options", rc.Script), nil,
		).WithCode(engine.ErrCodeValidation)
	}

	scripted, err := recipe.ParseOverrides(raw)
	if err != nil {
		return recipe.Overrides{}, err
	}
	return base.Merge(scripted), nil
}

func factsToMap(f engine.StaticFacts) map[string]interface{} {
	return map[string]interface{}{
		"lsbdistid":       f.ID,
		"lsbdistrelease":  f.Release,
		"lsbdistcodename": f.Codename,
		"architecture":    f.Arch,
		"hostname":        f.Hostname,
	}
}

// EvaluateStarlark executes a Starlark script and returns its globals.
func (cp *CUEParser) EvaluateStarlark(ctx context.Context, script string, input map[string]interface{}) (map[string]interface{}, error) {
	result, err := cp.starlarkEvaluator.Evaluate(ctx, script, input)
	if err != nil {
		return nil, err
	}

	if result.Error != "" {
		return nil, fmt.Errorf("starlark error: %s", result.Error)
	}

	return result.Output, nil
}

// GetSchemaRegistry returns the schema registry.
func (cp *CUEParser) GetSchemaRegistry() *SchemaRegistry {
	return cp.schemaRegistry
}

// ExportJSON exports a parsed recipe as indented JSON.
func (cp *CUEParser) ExportJSON(pc *ParsedConfig) ([]byte, error) {
	return json.MarshalIndent(pc.Recipe, "", "  ")
}

// LoadFromDirectory lists the CUE files under dir.
func (cp *CUEParser) LoadFromDirectory(dir string) ([]string, error) {
	var files []string

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if !info.IsDir() && strings.HasSuffix(path, ".cue") {
			files = append(files, path)
		}

		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}

	return files, nil
}
