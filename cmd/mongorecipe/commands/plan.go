package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/mongorecipe/pkg/policy"
	"github.com/openfroyo/mongorecipe/pkg/recipe"
)

func newPlanCommand() *cobra.Command {
	var (
		rf       recipeFlags
		format   string
		outFile  string
		recordDB string
	)

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Build the resource graph for a host",
		Long: `Plan loads a recipe file, resolves facts and options, selects the install
strategy and prints the resulting resource graph.

When the recipe enables policies the graph is checked before it is printed.
With --record (or a history block in the recipe) the run is stored.`,
		Example: `  # Print the graph as JSON
  mongorecipe plan -f recipe.cue

  # Request a version and render Graphviz
  mongorecipe plan -f recipe.cue --set version=3.2.0 --format dot --out graph.dot

  # Record the run
  mongorecipe plan -f recipe.cue --record runs.db`,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch format {
			case "json", "yaml", "dot":
			default:
				return fmt.Errorf("unknown format %q (json, yaml, dot)", format)
			}

			ctx := cmd.Context()
			lr, err := loadRecipe(ctx, &rf)
			if err != nil {
				return err
			}

			tel, err := newTelemetry("")
			if err != nil {
				return err
			}
			defer tel.Shutdown(ctx)
			ctx = tel.WithContext(ctx)

			startedAt := time.Now()
			res, runErr := newRecipe(lr).Run(ctx, lr.Overrides)

			var result *policy.PolicyResult
			if runErr == nil && lr.Config.Policy != nil && lr.Config.Policy.Enabled {
				eng, err := newPolicyEngine(ctx, tel, policyPaths(lr.Config, nil))
				if err != nil {
					return err
				}
				result, err = evaluateResult(ctx, eng, res, "plan")
				_ = eng.Close()
				if err != nil {
					return err
				}
				printViolations(cmd.ErrOrStderr(), result)
			}

			if db := historyPath(recordDB, lr.Config); db != "" {
				run, err := recordRun(ctx, db, lr, res, runErr, result, startedAt)
				if err != nil {
					return fmt.Errorf("failed to record run: %w", err)
				}
				log.Info().Str("run_id", run.ID).Str("status", string(run.Status)).Msg("Run recorded")
			}

			if runErr != nil {
				return runErr
			}
			if blocks(lr.Config, result) {
				return fmt.Errorf("graph rejected by policy: %d violation(s)", len(result.Violations))
			}

			out := cmd.OutOrStdout()
			if outFile != "" {
				f, err := os.Create(outFile)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", outFile, err)
				}
				defer f.Close()
				out = f
			}

			if err := writeResult(out, res, format); err != nil {
				return err
			}

			log.Info().
				Str("strategy", res.Strategy.String()).
				Str("version", res.Options.Version).
				Int("declarations", res.Graph.Len()).
				Int("depth", res.Execution.Depth).
				Msg("Plan complete")
			return nil
		},
	}

	rf.register(cmd)
	cmd.Flags().StringVar(&format, "format", "json", "output format (json, yaml, dot)")
	cmd.Flags().StringVarP(&outFile, "out", "o", "", "write the plan to a file")
	cmd.Flags().StringVar(&recordDB, "record", "", "history database to record the run in")

	return cmd
}

func writeResult(w io.Writer, res *recipe.Result, format string) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(res); err != nil {
			return fmt.Errorf("failed to encode plan: %w", err)
		}
		return enc.Close()
	case "dot":
		_, err := io.WriteString(w, res.DOT())
		return err
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
}

func printViolations(w io.Writer, result *policy.PolicyResult) {
	for _, v := range result.Violations {
		resource := v.Resource
		if resource == "" {
			resource = "-"
		}
		fmt.Fprintf(w, "[%s] %s %s: %s\n", v.Severity, v.Policy, resource, v.Message)
	}
	for _, warning := range result.Warnings {
		fmt.Fprintf(w, "[warning] %s\n", warning)
	}
}
