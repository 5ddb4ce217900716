package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/shopflow/internal/cli/output"
	"github.com/leapstack-labs/shopflow/pkg/core"
)

// NewRunsCommand creates the runs command.
func NewRunsCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "Show run history",
		Long: `Show recent runs from the state store. With a run id, show the models,
source loads and data tests recorded for that run.`,
		Example: `  shopflow runs
  shopflow runs --limit 50 -o json
  shopflow runs 3f6c1e0a-...`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			if len(args) == 1 {
				return showRun(cc, args[0])
			}

			runs, err := cc.Engine.Store().ListRuns(limit)
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}
			renderRuns(cc.Renderer, runs)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show")

	return cmd
}

func historyEntry(run *core.Run) output.RunHistoryEntry {
	return output.RunHistoryEntry{
		ID:          run.ID,
		Environment: run.Environment,
		Kind:        string(run.Kind),
		Status:      string(run.Status),
		StartedAt:   run.StartedAt,
		CompletedAt: run.CompletedAt,
		Error:       run.Error,
	}
}

func renderRuns(r *output.Renderer, runs []*core.Run) {
	if r.EffectiveMode() == output.ModeJSON {
		out := make([]output.RunHistoryEntry, 0, len(runs))
		for _, run := range runs {
			out = append(out, historyEntry(run))
		}
		_ = r.JSON(out)
		return
	}

	if len(runs) == 0 {
		r.Muted("No runs recorded yet")
		return
	}
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, []string{
			run.ID, string(run.Kind), run.Environment, string(run.Status),
			run.StartedAt.Local().Format(time.DateTime), runDuration(run), run.Error,
		})
	}
	r.Table([]string{"id", "kind", "env", "status", "started", "duration", "error"}, rows)
}

func runDuration(run *core.Run) string {
	if run.CompletedAt == nil {
		return ""
	}
	return output.FormatDuration(run.CompletedAt.Sub(run.StartedAt))
}

func showRun(cc *CommandContext, id string) error {
	store := cc.Engine.Store()
	run, err := store.GetRun(id)
	if err != nil {
		return err
	}

	modelRuns, err := store.GetModelRunsForRun(id)
	if err != nil {
		return fmt.Errorf("failed to get model runs: %w", err)
	}
	loads, err := store.GetSourceLoadsForRun(id)
	if err != nil {
		return fmt.Errorf("failed to get source loads: %w", err)
	}
	tests, err := store.GetTestResultsForRun(id)
	if err != nil {
		return fmt.Errorf("failed to get test results: %w", err)
	}

	models := make([]output.ModelResultOutput, 0, len(modelRuns))
	for _, mr := range modelRuns {
		path := mr.ModelID
		materialized := ""
		if m, err := store.GetModelByID(mr.ModelID); err == nil && m != nil && m.Model != nil {
			path, materialized = m.Path, m.Materialized
		}
		models = append(models, output.ModelResultOutput{
			Path:         path,
			Materialized: materialized,
			Status:       string(mr.Status),
			Rows:         mr.RowsAffected,
			DurationMS:   mr.RenderMS + mr.ExecutionMS,
			Error:        mr.Error,
		})
	}

	r := cc.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(map[string]any{
			"run":    historyEntry(run),
			"loads":  loadOutputs(loads),
			"models": models,
			"tests":  testOutputs(tests),
		})
	}

	r.Header(1, "Run "+run.ID)
	r.KeyValue("Kind", string(run.Kind))
	r.KeyValue("Environment", run.Environment)
	r.KeyValue("Status", string(run.Status))
	r.KeyValue("Started", run.StartedAt.Local().Format(time.DateTime))
	if d := runDuration(run); d != "" {
		r.KeyValue("Duration", d)
	}
	if run.Error != "" {
		r.KeyValue("Error", run.Error)
	}
	r.Println("")

	if len(loads) > 0 {
		r.Header(2, "Source loads")
		rows := make([][]string, 0, len(loads))
		for _, l := range loads {
			rows = append(rows, []string{l.Source, l.Table, strconv.FormatInt(l.Rows, 10)})
		}
		r.Table([]string{"source", "table", "rows"}, rows)
		r.Println("")
	}
	if len(models) > 0 {
		r.Header(2, "Models")
		rows := make([][]string, 0, len(models))
		for _, m := range models {
			rows = append(rows, []string{m.Path, m.Status, strconv.FormatInt(m.Rows, 10),
				output.FormatDuration(time.Duration(m.DurationMS) * time.Millisecond), m.Error})
		}
		r.Table([]string{"model", "status", "rows", "duration", "error"}, rows)
		r.Println("")
	}
	if len(tests) > 0 {
		r.Header(2, "Data tests")
		rows := make([][]string, 0, len(tests))
		for _, t := range tests {
			rows = append(rows, []string{t.TestName, string(t.Status), strconv.FormatInt(t.Failures, 10)})
		}
		r.Table([]string{"test", "status", "failures"}, rows)
	}
	return nil
}
