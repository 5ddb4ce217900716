package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/shopflow/internal/cli/output"
	"github.com/leapstack-labs/shopflow/internal/engine"
)

// NewListCommand creates the list command.
func NewListCommand() *cobra.Command {
	var layer string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List models and sources",
		Long: `List every discovered model in execution order with its layer,
materialization, dependencies and number of data tests, followed by the
declared sources.`,
		Example: `  shopflow list
  shopflow list --layer gold
  shopflow list -o json`,
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
			out, err := listOutput(cc.Engine, layer)
			if err != nil {
				return err
			}

			r := cc.Renderer
			switch r.EffectiveMode() {
			case output.ModeJSON:
				return r.JSON(out)
			case output.ModeMarkdown:
				listMarkdown(r, out)
			default:
				listText(r, out)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&layer, "layer", "", "Only list models of this layer (bronze, silver, gold)")

	return cmd
}

// listOutput collects models in topological order.
func listOutput(eng *engine.Engine, layer string) (output.ListOutput, error) {
	graph := eng.Graph()
	sorted, err := graph.TopologicalSort()
	if err != nil {
		return output.ListOutput{}, fmt.Errorf("failed to sort models: %w", err)
	}

	testCounts := map[string]int{}
	if tests, err := eng.CompileTests(nil); err == nil {
		for _, t := range tests {
			testCounts[t.Target]++
		}
	}

	out := output.ListOutput{Models: []output.ModelInfo{}, Sources: []string{}}
	for _, node := range sorted {
		m := node.Model
		if m == nil || (layer != "" && string(m.Layer) != layer) {
			continue
		}
		deps := graph.GetParents(node.ID)
		if deps == nil {
			deps = []string{}
		}
		out.Models = append(out.Models, output.ModelInfo{
			Path:         m.Path,
			Name:         m.Name,
			Layer:        string(m.Layer),
			Materialized: m.Materialized,
			UniqueKey:    m.UniqueKey,
			Description:  m.Description,
			Tags:         m.Tags,
			DependsOn:    deps,
			Sources:      m.Sources,
			Tests:        testCounts[m.Path],
		})
	}
	for _, s := range eng.Sources() {
		out.Sources = append(out.Sources, s.Name)
	}
	return out, nil
}

func listText(r *output.Renderer, out output.ListOutput) {
	r.Header(1, fmt.Sprintf("Models (%d total)", len(out.Models)))
	for i, m := range out.Models {
		deps := append(append([]string{}, m.DependsOn...), prefixAll("source.", m.Sources)...)
		r.ModelLine(i+1, m.Path, m.Materialized, deps)
	}
	r.Println("")
	r.Header(2, fmt.Sprintf("Sources (%d)", len(out.Sources)))
	r.Println("  " + strings.Join(out.Sources, ", "))
}

func listMarkdown(r *output.Renderer, out output.ListOutput) {
	r.Header(1, fmt.Sprintf("Models (%d total)", len(out.Models)))

	rows := make([][]string, 0, len(out.Models))
	for _, m := range out.Models {
		upstream := append(append([]string{}, m.DependsOn...), prefixAll("source.", m.Sources)...)
		rows = append(rows, []string{
			m.Path, m.Layer, m.Materialized, strings.Join(upstream, ", "), strconv.Itoa(m.Tests),
		})
	}
	r.Table([]string{"model", "layer", "materialized", "depends on", "tests"}, rows)
	r.Println("")

	r.Header(2, "Sources")
	for _, s := range out.Sources {
		r.Printf("- %s\n", s)
	}
}

func prefixAll(prefix string, values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = prefix + v
	}
	return out
}
