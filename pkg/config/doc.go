// Package config loads recipe files written in CUE and evaluates optional
// Starlark override scripts.
//
// # Overview
//
// A recipe file carries a single top-level recipe block. The block names the
// recipe, the node facts (inline or from a YAML/JSON facts file), option
// overrides, an optional Starlark script, a template overlay directory and the
// policy settings used when the graph is validated.
//
//	recipe: {
//		name: "trusty-mongo"
//		hook: {kind: "exec", name: "rake tasks"}
//		facts_file: "facts.yaml"
//		options: {
//			version: "3.2.10"
//			"journal-enabled?": false
//		}
//		script: "overrides.star"
//		policy: paths: ["policies"]
//	}
//
// Relative paths are resolved against the directory of the first source file.
//
// # Components
//
// CUEParser: Loads files, directories and inline content, unifies them and
// checks the recipe block against the built-in #Recipe schema before decoding
// it into RecipeConfig.
//
// SchemaRegistry: Holds the built-in schemas (recipe, hook, facts, options,
// policy) and any registered custom schemas.
//
// StarlarkEvaluator: Runs override scripts with a timeout. Scripts see the
// node facts as facts and the file options as options, and must assign a
// global options dict. The builtins version_line, version_cmp and
// normalize_arch are predeclared.
//
// # Usage Example
//
//	parser := config.NewCUEParser()
//	parsed, err := parser.Load(ctx, []string{"recipe.cue"})
//	if err != nil {
//	    return err
//	}
//
//	facts, err := parser.ResolveFacts(&parsed.Recipe)
//	if err != nil {
//	    return err
//	}
//
//	overrides, err := parser.ResolveOverrides(ctx, &parsed.Recipe, *facts)
//	if err != nil {
//	    return err
//	}
//
//	result, err := recipe.New(facts).Run(ctx, overrides)
package config
