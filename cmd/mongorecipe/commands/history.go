package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/mongorecipe/pkg/stores"
)

func newHistoryCommand() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect recorded recipe runs",
		Long:  `History lists, shows and prunes the runs recorded by plan and watch.`,
	}

	cmd.PersistentFlags().StringVar(&dbPath, "db", "mongorecipe.db", "history database path")

	cmd.AddCommand(newHistoryListCommand(&dbPath))
	cmd.AddCommand(newHistoryShowCommand(&dbPath))
	cmd.AddCommand(newHistoryPruneCommand(&dbPath))

	return cmd
}

func newHistoryListCommand(dbPath *string) *cobra.Command {
	var (
		filter stores.RunFilter
		status string
		limit  int
		offset int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded runs, newest first",
		Example: `  mongorecipe history list --db runs.db
  mongorecipe history list --db runs.db --status rejected --limit 5`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := openStore(ctx, *dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			filter.Status = stores.RunStatus(status)
			runs, err := store.ListRuns(ctx, filter, limit, offset)
			if err != nil {
				return err
			}

			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), runs)
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"ID", "Recipe", "Status", "Strategy", "Version", "Host", "Started"})
			for _, r := range runs {
				t.AppendRow(table.Row{
					r.ID, r.RecipeName, r.Status, dash(r.Strategy), dash(r.Version),
					r.DistroID + " " + r.DistroRelease, r.StartedAt.Local().Format(time.RFC3339),
				})
			}
			t.Render()
			return nil
		},
	}

	cmd.Flags().StringVar(&filter.RecipeName, "recipe", "", "only runs of this recipe")
	cmd.Flags().StringVar(&filter.Strategy, "strategy", "", "only runs with this strategy")
	cmd.Flags().StringVar(&status, "status", "", "only runs with this status (completed, failed, rejected)")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "runs to skip")

	return cmd
}

// runDetail is a run with its violations.
type runDetail struct {
	*stores.Run
	Violations []*stores.Violation `json:"violations"`
}

func newHistoryShowCommand(dbPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one recorded run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := openStore(ctx, *dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			run, err := store.GetRun(ctx, args[0])
			if err != nil {
				return err
			}
			violations, err := store.ListViolations(ctx, run.ID)
			if err != nil {
				return err
			}

			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), runDetail{Run: run, Violations: violations})
			}
			printRun(cmd.OutOrStdout(), run, violations)
			return nil
		},
	}
}

func newHistoryPruneCommand(dbPath *string) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:     "prune",
		Short:   "Delete runs older than a duration",
		Example: `  mongorecipe history prune --db runs.db --older-than 720h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}

			ctx := cmd.Context()
			store, err := openStore(ctx, *dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := store.PruneRuns(ctx, time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			log.Info().Int64("runs", n).Msg("Pruned run history")
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "age of the runs to delete")
	return cmd
}

func printRun(w io.Writer, run *stores.Run, violations []*stores.Violation) {
	fmt.Fprintf(w, "Run:       %s\n", run.ID)
	fmt.Fprintf(w, "Recipe:    %s\n", run.RecipeName)
	fmt.Fprintf(w, "Status:    %s\n", run.Status)
	fmt.Fprintf(w, "Strategy:  %s\n", dash(run.Strategy))
	fmt.Fprintf(w, "Version:   %s\n", dash(run.Version))
	fmt.Fprintf(w, "Host:      %s %s %s\n", run.DistroID, run.DistroRelease, run.Architecture)
	fmt.Fprintf(w, "Graph:     %d declarations, %d edges, depth %d\n", run.Declarations, run.Edges, run.Depth)
	fmt.Fprintf(w, "Started:   %s\n", run.StartedAt.Local().Format(time.RFC3339))
	if run.ErrorCode != nil {
		fmt.Fprintf(w, "Error:     [%s] %s\n", *run.ErrorCode, *run.Error)
	} else if run.Error != nil {
		fmt.Fprintf(w, "Error:     %s\n", *run.Error)
	}
	for _, v := range violations {
		fmt.Fprintf(w, "  [%s] %s %s: %s\n", v.Severity, v.Policy, dash(v.Resource), v.Message)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
