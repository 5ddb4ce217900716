package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/shopflow/internal/cli/output"
	"github.com/leapstack-labs/shopflow/internal/dag"
)

// GraphQuerier provides read-only access to DAG structure.
type GraphQuerier interface {
	GetParents(string) []string
	GetChildren(string) []string
	NodeCount() int
	EdgeCount() int
}

// NewDAGCommand creates the dag command.
func NewDAGCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "dag",
		Short: "Show the dependency graph",
		Long: `Display the model dependency graph grouped by execution level. Models in
the same level have no dependencies on each other and may run in parallel.

Edges that run against the medallion order (a silver model reading gold,
or a bronze model reading another model) are listed as warnings.`,
		Example: `  shopflow dag
  shopflow dag -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDAG(cmd)
		},
	}
}

func runDAG(cmd *cobra.Command) error {
	cc, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	if _, err := discover(cc); err != nil {
		return err
	}

	graph := cc.Engine.Graph()
	levels, err := graph.GetExecutionLevels()
	if err != nil {
		return fmt.Errorf("failed to get execution levels: %w", err)
	}
	violations := graph.LayerViolations()

	r := cc.Renderer
	switch r.EffectiveMode() {
	case output.ModeJSON:
		return r.JSON(dagOutput(graph, levels, violations))
	case output.ModeMarkdown:
		dagMarkdown(r, graph, levels, violations)
	default:
		dagText(r, graph, levels, violations)
	}
	return nil
}

func dagText(r *output.Renderer, graph GraphQuerier, levels [][]string, violations []dag.LayerViolation) {
	styles := r.Styles()

	r.Header(1, "Dependency Graph")
	for i, level := range levels {
		r.Println(styles.Header2.Render(fmt.Sprintf("Level %d:", i)))
		for _, model := range level {
			r.Printf("  %s\n", styles.ModelPath.Render(model))
			if deps := graph.GetParents(model); len(deps) > 0 {
				r.Printf("    %s %s\n", styles.Muted.Render("depends on:"), strings.Join(deps, ", "))
			}
			if children := graph.GetChildren(model); len(children) > 0 {
				r.Printf("    %s %s\n", styles.Muted.Render("used by:"), strings.Join(children, ", "))
			}
		}
		r.Println("")
	}

	for _, v := range violations {
		r.Warning(v.String())
	}
	r.Muted(fmt.Sprintf("Total: %s, %d dependencies, %d levels",
		output.Plural(graph.NodeCount(), "model"), graph.EdgeCount(), len(levels)))
}

func dagMarkdown(r *output.Renderer, graph GraphQuerier, levels [][]string, violations []dag.LayerViolation) {
	r.Println(output.FormatHeader(1, "Dependency Graph"))
	r.Println("")

	for i, level := range levels {
		r.Println(output.FormatHeader(2, fmt.Sprintf("Level %d", i)))
		for _, model := range level {
			r.Printf("- %s\n", model)
			if deps := graph.GetParents(model); len(deps) > 0 {
				r.Printf("  - depends on: %s\n", strings.Join(deps, ", "))
			}
			if children := graph.GetChildren(model); len(children) > 0 {
				r.Printf("  - used by: %s\n", strings.Join(children, ", "))
			}
		}
		r.Println("")
	}

	if len(violations) > 0 {
		r.Println(output.FormatHeader(2, "Layer warnings"))
		for _, v := range violations {
			r.Printf("- `%s` reads `%s`: %s\n", v.Child, v.Parent, v.Reason)
		}
		r.Println("")
	}

	r.Println(output.FormatHeader(2, "Summary"))
	r.Println(output.FormatKeyValue("Total Models", fmt.Sprintf("%d", graph.NodeCount())))
	r.Println(output.FormatKeyValue("Total Dependencies", fmt.Sprintf("%d", graph.EdgeCount())))
	r.Println(output.FormatKeyValue("Levels", fmt.Sprintf("%d", len(levels))))
}

func dagOutput(graph *dag.Graph, levels [][]string, violations []dag.LayerViolation) output.DAGOutput {
	out := output.DAGOutput{
		Levels: levels,
		Edges:  []output.DAGEdge{},
		Stats: output.DAGStatistics{
			Models: graph.NodeCount(),
			Edges:  graph.EdgeCount(),
			Levels: len(levels),
		},
	}
	for _, level := range levels {
		for _, id := range level {
			for _, child := range graph.GetChildren(id) {
				out.Edges = append(out.Edges, output.DAGEdge{From: id, To: child})
			}
		}
	}
	for _, v := range violations {
		out.Warnings = append(out.Warnings, output.DAGWarning{Model: v.Child, Depends: v.Parent, Message: v.Reason})
	}
	return out
}
