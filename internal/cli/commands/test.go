package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/shopflow/internal/cli/output"
	"github.com/leapstack-labs/shopflow/internal/engine"
	"github.com/leapstack-labs/shopflow/pkg/core"
)

// NewTestCommand creates the test command.
func NewTestCommand() *cobra.Command {
	var (
		selectors []string
		failFast  bool
		threads   int
		compile   bool
	)

	cmd := &cobra.Command{
		Use:   "test",
		Short: "Run data tests",
		Long: `Compile every declared data test to SQL and run it against the warehouse.

Each test counts failing rows: unique, not_null, accepted_values,
relationships and expression. A test with severity warn only warns.
The command exits non-zero when any error-severity test fails.

Source tests run only when no --select is given.`,
		Example: `  shopflow test
  shopflow test -s layer:silver --fail-fast
  shopflow test --compile -s slv_orders`,
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

			if compile {
				return renderCompiledTests(cc, splitSelectors(selectors))
			}

			summary, err := cc.Engine.Test(cmd.Context(), engine.TestOptions{
				Select:   splitSelectors(selectors),
				FailFast: failFast,
				Threads:  threads,
			})
			if summary == nil {
				return err
			}
			renderTestSummary(cc.Renderer, summary)
			return err
		},
	}

	cmd.Flags().StringSliceVarP(&selectors, "select", "s", nil, "Test only the selected models")
	cmd.Flags().BoolVar(&failFast, "fail-fast", false, "Stop at the first failing error-severity test")
	cmd.Flags().IntVar(&threads, "threads", 0, "Tests to run concurrently (default: config threads)")
	cmd.Flags().BoolVar(&compile, "compile", false, "Print the compiled test SQL without running it")

	_ = cmd.RegisterFlagCompletionFunc("select", completeModels)

	return cmd
}

func renderCompiledTests(cc *CommandContext, selectors []string) error {
	tests, err := cc.Engine.CompileTests(selectors)
	if err != nil {
		return err
	}
	r := cc.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		out := make([]map[string]string, 0, len(tests))
		for _, t := range tests {
			out = append(out, map[string]string{
				"name": t.Name, "kind": string(t.Kind), "target": t.Target,
				"severity": string(t.Severity), "sql": t.SQL,
			})
		}
		return r.JSON(out)
	}
	for _, t := range tests {
		r.Header(3, t.Name)
		r.Println("```sql")
		r.Println(t.SQL)
		r.Println("```")
		r.Println("")
	}
	return nil
}

func testOutputs(results []*core.TestResult) []output.TestResultOutput {
	out := make([]output.TestResultOutput, 0, len(results))
	for _, t := range results {
		out = append(out, output.TestResultOutput{
			Name:     t.TestName,
			Kind:     string(t.Kind),
			Target:   t.Target,
			Column:   t.Column,
			Severity: string(t.Severity),
			Status:   string(t.Status),
			Failures: t.Failures,
			Error:    t.Error,
		})
	}
	return out
}

func testSummaryOutput(s *engine.TestSummary) *output.TestSummaryOutput {
	out := &output.TestSummaryOutput{
		Passed:  s.Passed,
		Failed:  s.Failed,
		Warned:  s.Warned,
		Errored: s.Errored,
		Results: testOutputs(s.Results),
	}
	if s.Run != nil {
		out.RunID = s.Run.ID
	}
	return out
}

func renderTestSummary(r *output.Renderer, s *engine.TestSummary) {
	if r.EffectiveMode() == output.ModeJSON {
		_ = r.JSON(testSummaryOutput(s))
		return
	}

	r.Header(2, "Data tests")
	rows := make([][]string, 0, len(s.Results))
	for _, t := range s.Results {
		detail := t.Error
		if detail == "" && t.Failures > 0 {
			detail = output.Plural(int(t.Failures), "failing row")
		}
		rows = append(rows, []string{t.TestName, t.Target, string(t.Severity), string(t.Status), strconv.FormatInt(t.Failures, 10), detail})
	}
	r.Table([]string{"test", "target", "severity", "status", "failures", "detail"}, rows)
	r.Println("")

	line := fmt.Sprintf("%d passed, %d failed, %d warned, %d errored in %s",
		s.Passed, s.Failed, s.Warned, s.Errored, output.FormatDuration(s.Duration))
	switch {
	case !s.OK():
		r.Error("Tests failed: " + line)
	case s.Warned > 0:
		r.Warning(line)
	default:
		r.Success("All tests passed: " + line)
	}
}
