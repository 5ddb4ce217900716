package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/shopflow/internal/cli/output"
	"github.com/leapstack-labs/shopflow/internal/engine"
	"github.com/leapstack-labs/shopflow/pkg/core"
)

// NewLoadCommand creates the load command.
func NewLoadCommand() *cobra.Command {
	var only []string

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load source CSV files into the raw schema",
		Long: `Bulk-load every source declared in models/sources.yml into the raw schema
using the warehouse's native loader. All columns are loaded as text; typing
happens in the silver layer.`,
		Example: `  shopflow load
  shopflow load --only orders,payments`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			if _, err := discover(cc); err != nil {
				return err
			}

			res, err := cc.Engine.LoadSources(cmd.Context(), engine.LoadOptions{Only: splitSelectors(only)})
			if err != nil {
				return err
			}
			renderLoads(cc.Renderer, res.Run, res.Loads)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&only, "only", nil, "Load only these sources (comma-separated)")

	return cmd
}

func renderLoads(r *output.Renderer, run *core.Run, loads []*core.SourceLoad) {
	if r.EffectiveMode() == output.ModeJSON {
		out := output.LoadOutput{Loads: loadOutputs(loads)}
		if run != nil {
			out.RunID = run.ID
		}
		_ = r.JSON(out)
		return
	}

	r.Header(2, "Sources")
	rows := make([][]string, 0, len(loads))
	var total int64
	for _, l := range loads {
		rows = append(rows, []string{l.Source, l.Table, strconv.FormatInt(l.Rows, 10), output.FormatDuration(time.Duration(l.DurationMS) * time.Millisecond)})
		total += l.Rows
	}
	r.Table([]string{"source", "table", "rows", "duration"}, rows)
	r.Println("")
	r.Success(fmt.Sprintf("Loaded %s (%d rows)", output.Plural(len(loads), "source"), total))
}

func loadOutputs(loads []*core.SourceLoad) []output.SourceLoadOutput {
	out := make([]output.SourceLoadOutput, 0, len(loads))
	for _, l := range loads {
		out = append(out, output.SourceLoadOutput{
			Source:     l.Source,
			Table:      l.Table,
			File:       l.FilePath,
			Rows:       l.Rows,
			DurationMS: l.DurationMS,
		})
	}
	return out
}
