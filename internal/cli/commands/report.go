package commands

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/shopflow/internal/cli/output"
	"github.com/leapstack-labs/shopflow/internal/engine"
	"github.com/leapstack-labs/shopflow/pkg/core"
)

// NewReportCommand creates the report command.
func NewReportCommand() *cobra.Command {
	var (
		list     bool
		showSQL  bool
		barWidth int
	)

	cmd := &cobra.Command{
		Use:   "report [names...]",
		Short: "Run dashboard reports",
		Long: `Run the report queries in reports/ and render them as tables.
Reports declared with chart: bar also get a bar chart.

With no names every report runs, in their declared order.`,
		Example: `  shopflow report
  shopflow report revenue_by_channel funnel
  shopflow report -o json`,
		ValidArgsFunction: completeReports,
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			if list {
				reports, err := cc.Engine.ListReports()
				if err != nil {
					return err
				}
				renderReportList(cc.Renderer, reports)
				return nil
			}

			if _, err := discover(cc); err != nil {
				return err
			}
			results, err := cc.Engine.Reports(cmd.Context(), args)
			renderReports(cc.Renderer, results, showSQL, barWidth)
			return err
		},
	}

	cmd.Flags().BoolVar(&list, "list", false, "List reports without running them")
	cmd.Flags().BoolVar(&showSQL, "sql", false, "Print each report's compiled SQL")
	cmd.Flags().IntVar(&barWidth, "bar-width", 40, "Width of the longest bar in bar charts")

	return cmd
}

func renderReportList(r *output.Renderer, reports []*core.Report) {
	if r.EffectiveMode() == output.ModeJSON {
		out := make([]map[string]any, 0, len(reports))
		for _, rep := range reports {
			out = append(out, map[string]any{
				"name": rep.Name, "title": rep.Title, "chart": rep.Chart, "description": rep.Description,
			})
		}
		_ = r.JSON(out)
		return
	}
	rows := make([][]string, 0, len(reports))
	for _, rep := range reports {
		rows = append(rows, []string{rep.Name, rep.Title, rep.Chart})
	}
	r.Table([]string{"name", "title", "chart"}, rows)
}

func renderReports(r *output.Renderer, results []*engine.ReportResult, showSQL bool, barWidth int) {
	if r.EffectiveMode() == output.ModeJSON {
		out := make([]output.ReportOutput, 0, len(results))
		for _, res := range results {
			out = append(out, output.ReportOutput{
				Name:       res.Report.Name,
				Title:      res.Report.Title,
				Chart:      res.Report.Chart,
				Columns:    res.Columns,
				Rows:       nonNilRows(res.Rows),
				DurationMS: res.Duration.Milliseconds(),
			})
		}
		_ = r.JSON(out)
		return
	}

	for _, res := range results {
		r.Header(2, res.Report.Title)
		if res.Report.Description != "" {
			r.Muted(res.Report.Description)
			r.Println("")
		}
		if showSQL {
			r.Println("```sql")
			r.Println(res.SQL)
			r.Println("```")
			r.Println("")
		}

		if labels, values := res.Series(); len(values) > 0 {
			names := make([]string, len(labels))
			for i, l := range labels {
				names[i] = output.FormatValue(l)
			}
			r.BarChart(names, values, barWidth)
		}
		r.Table(res.Columns, output.ValueRows(res.Rows))
		r.Println("")
		r.Muted(output.Plural(len(res.Rows), "row") + " in " + output.FormatDuration(res.Duration))
		r.Println("")
	}
}

// nonNilRows keeps empty results encoding as [] rather than null.
func nonNilRows(rows [][]any) [][]any {
	if rows == nil {
		return [][]any{}
	}
	return rows
}

func completeReports(cmd *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	cc, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	defer cleanup()

	reports, err := cc.Engine.ListReports()
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	var names []string
	for _, rep := range reports {
		if strings.HasPrefix(rep.Name, toComplete) {
			names = append(names, rep.Name)
		}
	}
	return names, cobra.ShellCompDirectiveNoFileComp
}
