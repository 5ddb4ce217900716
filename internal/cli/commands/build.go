package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/shopflow/internal/cli/output"
	"github.com/leapstack-labs/shopflow/internal/engine"
)

// NewBuildCommand creates the build command.
func NewBuildCommand() *cobra.Command {
	var opts engine.BuildOptions
	var selectors []string

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Load sources, run models and test them",
		Long: `Run the whole pipeline as one recorded run: load every source CSV into the
raw schema, execute the selected models, then run their data tests.

Warn-severity test failures are reported but do not fail the build.`,
		Example: `  shopflow build
  shopflow build --skip-load -s layer:gold
  shopflow build --full-refresh --threads 8`,
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

			opts.Select = splitSelectors(selectors)
			res, err := runBuild(cmd, cc, opts)
			if res != nil {
				renderBuild(cc.Renderer, res)
			}
			return err
		},
	}

	cmd.Flags().StringSliceVarP(&selectors, "select", "s", nil, "Models to build (name, path, layer:x, tag:x, +name, name+)")
	cmd.Flags().BoolVar(&opts.FullRefresh, "full-refresh", false, "Rebuild incremental models from scratch")
	cmd.Flags().IntVar(&opts.Threads, "threads", 0, "Concurrency per level (default: config threads)")
	cmd.Flags().BoolVar(&opts.SkipLoad, "skip-load", false, "Reuse the data already in the raw schema")
	cmd.Flags().BoolVar(&opts.FailFast, "fail-fast", false, "Stop at the first failing error-severity test")

	_ = cmd.RegisterFlagCompletionFunc("select", completeModels)

	return cmd
}

func runBuild(cmd *cobra.Command, cc *CommandContext, opts engine.BuildOptions) (*engine.BuildResult, error) {
	r := cc.Renderer
	if r.EffectiveMode() != output.ModeJSON {
		opts.OnModel = func(m *engine.ModelResult) {
			detail := "[" + m.Materialized + "]"
			if m.Error != "" {
				detail += " " + m.Error
			}
			r.StatusLine(m.Path, string(m.Status), detail)
		}
		r.Header(2, "Models")
	}
	return cc.Engine.Build(cmd.Context(), opts)
}

func renderBuild(r *output.Renderer, res *engine.BuildResult) {
	if r.EffectiveMode() == output.ModeJSON {
		out := output.BuildOutput{
			Loads:  loadOutputs(res.Loads),
			Models: modelOutputs(res.Models),
		}
		if res.Run != nil {
			out.RunID = res.Run.ID
			out.Status = string(res.Run.Status)
		}
		if res.Tests != nil {
			out.Tests = testSummaryOutput(res.Tests)
		}
		_ = r.JSON(out)
		return
	}

	r.Println("")
	if len(res.Loads) > 0 {
		renderLoads(r, nil, res.Loads)
		r.Println("")
	}
	if res.Tests != nil {
		renderTestSummary(r, res.Tests)
		r.Println("")
	}
	if res.Run != nil {
		msg := fmt.Sprintf("Build %s (run %s)", res.Run.Status, res.Run.ID)
		if res.Run.Error != "" {
			r.Error(msg + ": " + res.Run.Error)
			return
		}
		r.Success(msg)
	}
}
