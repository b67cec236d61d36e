package commands

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/openfroyo/mongorecipe/pkg/config"
	"github.com/openfroyo/mongorecipe/pkg/engine"
	"github.com/openfroyo/mongorecipe/pkg/policy"
	"github.com/openfroyo/mongorecipe/pkg/recipe"
	"github.com/openfroyo/mongorecipe/pkg/stores"
	"github.com/openfroyo/mongorecipe/pkg/telemetry"
)

// recipeFlags are the inputs shared by every command that runs a recipe.
type recipeFlags struct {
	file   string
	facts  string
	script string
	sets   []string
}

func (f *recipeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.file, "file", "f", "", "recipe file or directory")
	cmd.Flags().StringVar(&f.facts, "facts", "", "facts file replacing the recipe's facts")
	cmd.Flags().StringVar(&f.script, "script", "", "Starlark script replacing the recipe's script")
	cmd.Flags().StringArrayVar(&f.sets, "set", nil, "option override as key=value (repeatable)")
}

func (f *recipeFlags) path() string {
	if f.file != "" {
		return f.file
	}
	return configPath
}

// loadedRecipe is a parsed recipe file with its facts and overrides resolved.
type loadedRecipe struct {
	Config    config.RecipeConfig
	Sources   []string
	Facts     engine.StaticFacts
	Overrides recipe.Overrides
}

func loadRecipe(ctx context.Context, f *recipeFlags) (*loadedRecipe, error) {
	path := f.path()
	if path == "" {
		return nil, fmt.Errorf("no recipe file given (use -f or --config)")
	}

	parser := config.NewCUEParser()
	parsed, err := parser.Load(ctx, []string{path})
	if err != nil {
		return nil, err
	}

	rc := parsed.Recipe
	if f.facts != "" {
		rc.Facts = nil
		rc.FactsFile = f.facts
	}
	if f.script != "" {
		rc.Script = f.script
	}

	facts, err := parser.ResolveFacts(&rc)
	if err != nil {
		return nil, err
	}

	overrides, err := parser.ResolveOverrides(ctx, &rc, *facts)
	if err != nil {
		return nil, err
	}

	if len(f.sets) > 0 {
		set, err := parseSets(f.sets)
		if err != nil {
			return nil, err
		}
		overrides = overrides.Merge(set)
	}

	return &loadedRecipe{
		Config:    rc,
		Sources:   parsed.SourceFiles,
		Facts:     *facts,
		Overrides: overrides,
	}, nil
}

// parseSets turns key=value flags into overrides. Values stay strings;
// option parsing converts numbers and booleans.
func parseSets(sets []string) (recipe.Overrides, error) {
	raw := make(map[string]any, len(sets))
	for _, s := range sets {
		key, value, ok := strings.Cut(s, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return recipe.Overrides{}, fmt.Errorf("invalid --set %q: expected key=value", s)
		}
		raw[key] = value
	}
	return recipe.ParseOverrides(raw)
}

// newRecipe builds a recipe honoring the configured hook and templates.
func newRecipe(lr *loadedRecipe) *recipe.Recipe {
	b := recipe.NewBuilder()
	b.Hook = lr.Config.HookKey()
	if lr.Config.Templates != "" {
		b.Renderer = recipe.NewTemplateRenderer(recipe.OverlayFS{
			Dir:  os.DirFS(lr.Config.Templates),
			Base: recipe.DefaultTemplates(),
		})
	}
	return recipe.New(lr.Facts, recipe.WithBuilder(b))
}

// newTelemetry returns console telemetry. Metrics are collected only when
// metricsAddr is set.
func newTelemetry(metricsAddr string) (*telemetry.Telemetry, error) {
	cfg := telemetry.DefaultConfig()
	cfg.ServiceVersion = buildVersion
	if verbose {
		cfg.Logging.Level = "debug"
	}
	cfg.Metrics.Enabled = metricsAddr != ""
	if metricsAddr != "" {
		cfg.Metrics.ListenAddress = metricsAddr
	}
	return telemetry.NewTelemetry(cfg)
}

// newPolicyEngine returns an engine with the built-ins plus the policies under paths.
func newPolicyEngine(ctx context.Context, tel *telemetry.Telemetry, paths []string) (*policy.Engine, error) {
	eng, err := policy.NewEngine(tel.Logger.Zerolog(), policy.WithMetrics(tel.Metrics))
	if err != nil {
		return nil, err
	}
	if len(paths) > 0 {
		if err := eng.LoadPolicies(ctx, paths); err != nil {
			_ = eng.Close()
			return nil, err
		}
	}
	return eng, nil
}

func evaluateResult(ctx context.Context, eng *policy.Engine, res *recipe.Result, operation string) (*policy.PolicyResult, error) {
	return eng.EvaluateGraph(ctx, res.Graph, &policy.PolicyContext{
		RunID:     res.ID,
		Strategy:  res.Strategy.String(),
		Version:   res.Options.Version,
		Distro:    res.Facts.ID,
		Release:   res.Facts.Release,
		Operation: operation,
	})
}

// policyPaths merges the recipe's policy paths with extra ones.
func policyPaths(rc config.RecipeConfig, extra []string) []string {
	var paths []string
	if rc.Policy != nil {
		paths = append(paths, rc.Policy.Paths...)
	}
	return append(paths, extra...)
}

// blocks reports whether result should fail the command under rc.
func blocks(rc config.RecipeConfig, result *policy.PolicyResult) bool {
	if result == nil || result.Allowed {
		return false
	}
	return rc.Policy == nil || rc.Policy.OnViolation != "warn"
}

// historyPath picks the flag value over the recipe's history block.
func historyPath(flag string, rc config.RecipeConfig) string {
	if flag != "" {
		return flag
	}
	if rc.History != nil {
		return rc.History.Path
	}
	return ""
}

func openStore(ctx context.Context, path string) (*stores.SQLiteStore, error) {
	store, err := stores.NewSQLiteStore(stores.Config{Path: path})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

// recordRun stores the outcome of one run. A nil res means runErr happened.
func recordRun(ctx context.Context, dbPath string, lr *loadedRecipe, res *recipe.Result, runErr error,
	result *policy.PolicyResult, startedAt time.Time) (*stores.Run, error) {
	store, err := openStore(ctx, dbPath)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	var run *stores.Run
	var violations []stores.Violation
	if runErr != nil || res == nil {
		if runErr == nil {
			runErr = fmt.Errorf("recipe produced no result")
		}
		run = stores.FailedRun(uuid.New().String(), lr.Config.Name, lr.Facts, runErr, startedAt)
	} else {
		run, err = stores.RunFromResult(lr.Config.Name, res, startedAt)
		if err != nil {
			return nil, err
		}
		violations = stores.ApplyPolicy(run, result)
	}

	if err := store.SaveRun(ctx, run, violations); err != nil {
		return nil, err
	}
	return run, nil
}
