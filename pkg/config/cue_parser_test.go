package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/openfroyo/mongorecipe/pkg/engine"
)

const trustyRecipe = `
recipe: {
	name: "trusty-mongo"
	hook: {name: "rake tasks"}
	facts: {
		lsbdistid:       "Ubuntu"
		lsbdistrelease:  "14.04"
		lsbdistcodename: "trusty"
		architecture:    "amd64"
	}
	options: {
		version:           "3.2.10"
		port:              27018
		"journal-enabled?": false
	}
}
`

func TestCUEParser_ParseInline(t *testing.T) {
	parser := NewCUEParser()
	ctx := context.Background()

	tests := []struct {
		name      string
		content   string
		wantErr   bool
		checkFunc func(*testing.T, *ParsedConfig)
	}{
		{
			name:    "complete recipe",
			content: trustyRecipe,
			checkFunc: func(t *testing.T, pc *ParsedConfig) {
				rc := pc.Recipe
				if rc.Name != "trusty-mongo" {
					t.Errorf("expected name 'trusty-mongo', got %s", rc.Name)
				}
				if rc.HookKey() != engine.ExecKey("rake tasks") {
					t.Errorf("hook kind should default to exec, got %s", rc.HookKey())
				}
				if rc.Facts == nil || rc.Facts.Release != "14.04" || rc.Facts.Codename != "trusty" {
					t.Errorf("unexpected facts: %+v", rc.Facts)
				}
				if rc.Options["version"] != "3.2.10" {
					t.Errorf("unexpected options: %v", rc.Options)
				}
			},
		},
		{
			name:    "invalid CUE syntax",
			content: "recipe: {\n\tname: \"x\"\n\tinvalid syntax here\n}\n",
			wantErr: true,
		},
		{
			name:    "missing recipe block",
			content: `other: {name: "x"}`,
			wantErr: true,
		},
		{
			name:    "missing name",
			content: `recipe: {script: "overrides.star"}`,
			wantErr: true,
		},
		{
			name:    "unknown field",
			content: `recipe: {name: "x", replicas: 3}`,
			wantErr: true,
		},
		{
			name:    "unsupported hook kind",
			content: `recipe: {name: "x", hook: {kind: "cron", name: "nightly"}}`,
			wantErr: true,
		},
		{
			name:    "port out of range",
			content: `recipe: {name: "x", options: {port: 70000}}`,
			wantErr: true,
		},
		{
			name:    "release must look like a release",
			content: `recipe: {name: "x", facts: {lsbdistid: "Ubuntu", lsbdistrelease: "trusty"}}`,
			wantErr: true,
		},
		{
			name:    "facts and facts_file together",
			content: `recipe: {name: "x", facts_file: "facts.yaml", facts: {lsbdistid: "Ubuntu", lsbdistrelease: "14.04"}}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pc, err := parser.ParseInline(ctx, tt.content)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if tt.wantErr {
				if len(pc.Errors) == 0 {
					t.Errorf("expected validation errors, got recipe %+v", pc.Recipe)
				}
				return
			}

			if len(pc.Errors) > 0 {
				t.Fatalf("unexpected errors: %v", pc.Errors)
			}
			if tt.checkFunc != nil {
				tt.checkFunc(t, pc)
			}
		})
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func TestCUEParser_LoadResolvesRelativePaths(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "recipe.cue"), `
recipe: {
	name:       "precise"
	facts_file: "facts.yaml"
	script:     "overrides.star"
	templates:  "templates"
	policy: paths: ["policies"]
}
`)

	parser := NewCUEParser()
	pc, err := parser.Load(context.Background(), []string{filepath.Join(dir, "recipe.cue")})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	rc := pc.Recipe
	if rc.FactsFile != filepath.Join(dir, "facts.yaml") {
		t.Errorf("facts_file = %s", rc.FactsFile)
	}
	if rc.Script != filepath.Join(dir, "overrides.star") {
		t.Errorf("script = %s", rc.Script)
	}
	if rc.Templates != filepath.Join(dir, "templates") {
		t.Errorf("templates = %s", rc.Templates)
	}
	if rc.Policy == nil || !rc.Policy.Enabled || rc.Policy.Paths[0] != filepath.Join(dir, "policies") {
		t.Errorf("policy = %+v", rc.Policy)
	}
}

func TestCUEParser_LoadDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "recipe.cue"), `
package mongo

recipe: name: "split"
`)
	writeFile(t, filepath.Join(dir, "facts.cue"), `
package mongo

recipe: facts: {lsbdistid: "Ubuntu", lsbdistrelease: "12.04"}
`)

	parser := NewCUEParser()
	pc, err := parser.Load(context.Background(), []string{dir})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if pc.Recipe.Name != "split" || pc.Recipe.Facts == nil || pc.Recipe.Facts.Release != "12.04" {
		t.Errorf("unexpected recipe: %+v", pc.Recipe)
	}
	if len(pc.SourceFiles) != 2 {
		t.Errorf("expected 2 source files, got %v", pc.SourceFiles)
	}

	files, err := parser.LoadFromDirectory(dir)
	if err != nil || len(files) != 2 {
		t.Errorf("LoadFromDirectory() = %v, %v", files, err)
	}
}

func TestCUEParser_LoadReportsValidationError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "recipe.cue")
	writeFile(t, path, `recipe: {name: "bad name!"}`)

	_, err := NewCUEParser().Load(context.Background(), []string{path})
	if err == nil {
		t.Fatal("expected error")
	}
	if engine.CodeOf(err) != engine.ErrCodeValidation {
		t.Errorf("code = %s, want %s", engine.CodeOf(err), engine.ErrCodeValidation)
	}
}

func TestCUEParser_ParseMissingSource(t *testing.T) {
	parser := NewCUEParser()
	if _, err := parser.Parse(context.Background(), nil); err == nil {
		t.Error("expected error for no sources")
	}
	if _, err := parser.Parse(context.Background(), []string{"/nonexistent/recipe.cue"}); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestCUEParser_ResolveFacts(t *testing.T) {
	parser := NewCUEParser()
	dir := t.TempDir()
	factsPath := filepath.Join(dir, "facts.yaml")
	writeFile(t, factsPath, "lsbdistid: Ubuntu\nlsbdistrelease: 12.04\narchitecture: i386\n")

	facts, err := parser.ResolveFacts(&RecipeConfig{Name: "x", FactsFile: factsPath})
	if err != nil {
		t.Fatalf("ResolveFacts() error = %v", err)
	}
	if facts.Release != "12.04" || facts.Arch != "i386" {
		t.Errorf("unexpected facts: %+v", facts)
	}

	if _, err := parser.ResolveFacts(&RecipeConfig{Name: "x"}); err == nil {
		t.Error("expected error without facts")
	}
}

func TestCUEParser_ResolveOverrides(t *testing.T) {
	parser := NewCUEParser()
	ctx := context.Background()
	dir := t.TempDir()
	facts := engine.StaticFacts{ID: "Ubuntu", Release: "14.04", Codename: "trusty", Arch: "amd64"}

	t.Run("options only", func(t *testing.T) {
		o, err := parser.ResolveOverrides(ctx, &RecipeConfig{
			Name:    "x",
			Options: map[string]interface{}{"version": "2.4.5", "port": 27018},
		}, facts)
		if err != nil {
			t.Fatalf("ResolveOverrides() error = %v", err)
		}
		if o.RequestedVersion() != "2.4.5" || o.Port == nil || *o.Port != 27018 {
			t.Errorf("unexpected overrides: %+v", o)
		}
	})

	t.Run("script layers over options", func(t *testing.T) {
		script := filepath.Join(dir, "overrides.star")
		writeFile(t, script, `
def version_for(f):
    if f["lsbdistrelease"] == "14.04":
        return "3.2.10"
    return "2.4.5"

options = {"version": version_for(facts), "bind_ip": "0.0.0.0"}
`)
		o, err := parser.ResolveOverrides(ctx, &RecipeConfig{
			Name:    "x",
			Options: map[string]interface{}{"version": "2.4.5", "port": 27018},
			Script:  script,
		}, facts)
		if err != nil {
			t.Fatalf("ResolveOverrides() error = %v", err)
		}
		if o.RequestedVersion() != "3.2.10" {
			t.Errorf("script version should win, got %s", o.RequestedVersion())
		}
		if o.Port == nil || *o.Port != 27018 {
			t.Error("file option port should survive")
		}
		if o.BindIP == nil || *o.BindIP != "0.0.0.0" {
			t.Error("script bind_ip should be set")
		}
	})

	t.Run("script without options global", func(t *testing.T) {
		script := filepath.Join(dir, "empty.star")
		writeFile(t, script, "unused = 1\n")
		_, err := parser.ResolveOverrides(ctx, &RecipeConfig{Name: "x", Script: script}, facts)
		if engine.CodeOf(err) != engine.ErrCodeValidation {
			t.Errorf("expected validation error, got %v", err)
		}
	})

	t.Run("unknown option", func(t *testing.T) {
		_, err := parser.ResolveOverrides(ctx, &RecipeConfig{
			Name:    "x",
			Options: map[string]interface{}{"replset": "rs0"},
		}, facts)
		if err == nil {
			t.Error("expected error for unknown option")
		}
	})
}

func TestCUEParser_ExportJSON(t *testing.T) {
	parser := NewCUEParser()
	pc, err := parser.ParseInline(context.Background(), trustyRecipe)
	if err != nil || len(pc.Errors) > 0 {
		t.Fatalf("ParseInline() = %v, %v", err, pc.Errors)
	}
	out, err := parser.ExportJSON(pc)
	if err != nil {
		t.Fatalf("ExportJSON() error = %v", err)
	}
	if len(out) == 0 || out[0] != '{' {
		t.Errorf("unexpected JSON: %s", out)
	}
}
