package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/mongorecipe/pkg/policy"
)

// validateReport is the JSON form of a validate run.
type validateReport struct {
	RunID      string                   `json:"run_id"`
	Strategy   string                   `json:"strategy"`
	Allowed    bool                     `json:"allowed"`
	Violations []policy.PolicyViolation `json:"violations"`
	Warnings   []string                 `json:"warnings,omitempty"`
	Summary    *policy.PolicySummary    `json:"summary"`
}

func newValidateCommand() *cobra.Command {
	var (
		rf         recipeFlags
		policyDirs []string
		listOnly   bool
		disabled   []string
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a recipe's resource graph against policies",
		Long: `Validate builds the resource graph of a recipe and evaluates the built-in
policies plus any loaded from the recipe's policy block or --policy.

The command fails when an error or critical violation is found, regardless
of the recipe's on_violation setting.`,
		Example: `  # Check against the built-in policies
  mongorecipe validate -f recipe.cue

  # Add site policies
  mongorecipe validate -f recipe.cue --policy ./policies

  # List the loaded policies
  mongorecipe validate --list --policy ./policies`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			tel, err := newTelemetry("")
			if err != nil {
				return err
			}
			defer tel.Shutdown(ctx)
			ctx = tel.WithContext(ctx)

			if listOnly {
				eng, err := newPolicyEngine(ctx, tel, policyDirs)
				if err != nil {
					return err
				}
				defer eng.Close()
				for _, p := range eng.ListPolicies() {
					fmt.Fprintf(cmd.OutOrStdout(), "%-32s %-8s %s\n", p.Name, p.Severity, p.Description)
				}
				return nil
			}

			lr, err := loadRecipe(ctx, &rf)
			if err != nil {
				return err
			}

			eng, err := newPolicyEngine(ctx, tel, policyPaths(lr.Config, policyDirs))
			if err != nil {
				return err
			}
			defer eng.Close()

			for _, name := range disabled {
				if err := eng.DisablePolicy(name); err != nil {
					return err
				}
			}

			res, err := newRecipe(lr).Run(ctx, lr.Overrides)
			if err != nil {
				return err
			}

			result, err := evaluateResult(ctx, eng, res, "validate")
			if err != nil {
				return err
			}

			if jsonOutput {
				if err := writeJSON(cmd.OutOrStdout(), validateReport{
					RunID:      res.ID,
					Strategy:   res.Strategy.String(),
					Allowed:    result.Allowed,
					Violations: result.Violations,
					Warnings:   result.Warnings,
					Summary:    result.Summary(),
				}); err != nil {
					return err
				}
			} else {
				printViolations(cmd.OutOrStdout(), result)
				summary := result.Summary()
				fmt.Fprintf(cmd.OutOrStdout(), "%d policies, %d violation(s), strategy %s\n",
					summary.TotalPolicies, summary.TotalViolations, res.Strategy)
			}

			if !result.Allowed {
				return fmt.Errorf("graph rejected by policy")
			}
			log.Debug().Str("run_id", res.ID).Msg("Graph passed policy checks")
			return nil
		},
	}

	rf.register(cmd)
	cmd.Flags().StringArrayVar(&policyDirs, "policy", nil, "policy file or directory (repeatable)")
	cmd.Flags().StringArrayVar(&disabled, "disable", nil, "policy to skip (repeatable)")
	cmd.Flags().BoolVar(&listOnly, "list", false, "list loaded policies and exit")

	return cmd
}
