package commands

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/openfroyo/mongorecipe/pkg/engine"
	"github.com/openfroyo/mongorecipe/pkg/recipe"
)

// strategyRow is one line of strategy output.
type strategyRow struct {
	Distro      string   `json:"distro"`
	Release     string   `json:"release"`
	Version     string   `json:"version,omitempty"`
	Strategy    string   `json:"strategy,omitempty"`
	Implemented bool     `json:"implemented"`
	Packages    []string `json:"packages,omitempty"`
	Superseded  []string `json:"superseded,omitempty"`
	Error       string   `json:"error,omitempty"`
}

func newStrategyCommand() *cobra.Command {
	var (
		distro  string
		release string
		version string
	)

	cmd := &cobra.Command{
		Use:   "strategy",
		Short: "Show which install strategy a host would get",
		Long: `Strategy resolves the install strategy for a distribution, release and
requested version without building a graph. Without --release every
supported release is listed.`,
		Example: `  # Strategy for Ubuntu 14.04 with 3.2
  mongorecipe strategy --release 14.04 --version 3.2.0

  # Matrix for every supported release
  mongorecipe strategy --version 1.8.5 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			releases := []string{release}
			if release == "" {
				releases = recipe.SupportedReleases()
			}

			rows := make([]strategyRow, 0, len(releases))
			for _, r := range releases {
				rows = append(rows, resolveStrategy(distro, r, version))
			}

			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), rows)
			}
			printStrategies(cmd.OutOrStdout(), rows)

			if release != "" && rows[0].Error != "" {
				return fmt.Errorf("%s", rows[0].Error)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&distro, "distro", recipe.SupportedDistro, "distribution id")
	cmd.Flags().StringVar(&release, "release", "", "distribution release, e.g. 12.04")
	cmd.Flags().StringVar(&version, "version", "", "requested MongoDB version")

	return cmd
}

func resolveStrategy(distro, release, version string) strategyRow {
	row := strategyRow{Distro: distro, Release: release, Version: version}

	s, err := recipe.SelectStrategy(distro, release, version)
	if s != "" {
		row.Strategy = s.String()
		row.Implemented = s.Implemented()
	}
	if err != nil {
		var ee *engine.EngineError
		if errors.As(err, &ee) {
			if name, ok := ee.Details["strategy"].(string); ok {
				row.Strategy = name
			}
		}
		row.Error = err.Error()
		return row
	}

	if p, ok := recipe.ProfileFor(s); ok {
		row.Packages = p.Packages
		row.Superseded = p.Superseded
	}
	return row
}

func printStrategies(w io.Writer, rows []strategyRow) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Release", "Strategy", "Packages", "Note"})
	for _, r := range rows {
		packages := "-"
		if len(r.Packages) > 0 {
			packages = strings.Join(r.Packages, " ")
		}
		t.AppendRow(table.Row{r.Release, dash(r.Strategy), packages, r.Error})
	}
	t.Render()
}
