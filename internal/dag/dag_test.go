package dag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/shopflow/pkg/core"
)

func m(layer core.Layer, name string, tags ...string) *core.Model {
	return &core.Model{Path: string(layer) + "." + name, Name: name, Layer: layer, Tags: tags}
}

// pipeline builds:
//
//	bronze.brz_orders -> silver.slv_orders -> gold.fct_orders
//	bronze.brz_customers -> silver.slv_customers -> gold.fct_orders
//	silver.slv_customers -> gold.dim_customers
func pipeline(t *testing.T) *Graph {
	t.Helper()
	g := NewGraph()
	for _, model := range []*core.Model{
		m(core.LayerBronze, "brz_orders"),
		m(core.LayerBronze, "brz_customers"),
		m(core.LayerSilver, "slv_orders", "finance"),
		m(core.LayerSilver, "slv_customers"),
		m(core.LayerGold, "fct_orders", "finance"),
		m(core.LayerGold, "dim_customers"),
	} {
		g.AddNode(model.Path, model)
	}
	edges := [][2]string{
		{"bronze.brz_orders", "silver.slv_orders"},
		{"bronze.brz_customers", "silver.slv_customers"},
		{"silver.slv_orders", "gold.fct_orders"},
		{"silver.slv_customers", "gold.fct_orders"},
		{"silver.slv_customers", "gold.dim_customers"},
	}
	for _, e := range edges {
		require.NoError(t, g.AddEdge(e[0], e[1]))
	}
	return g
}

func TestGraph_AddEdge(t *testing.T) {
	g := NewGraph()
	g.AddNode("a", nil)
	g.AddNode("b", nil)

	require.NoError(t, g.AddEdge("a", "b"))
	require.NoError(t, g.AddEdge("a", "b"))
	assert.Equal(t, 1, g.EdgeCount())

	require.Error(t, g.AddEdge("a", "missing"))
	require.Error(t, g.AddEdge("missing", "a"))
	require.ErrorContains(t, g.AddEdge("a", "a"), "self-loop")
}

func TestGraph_ParentsAndChildren(t *testing.T) {
	g := pipeline(t)
	assert.Equal(t, []string{"silver.slv_customers", "silver.slv_orders"}, g.GetParents("gold.fct_orders"))
	assert.Equal(t, []string{"gold.dim_customers", "gold.fct_orders"}, g.GetChildren("silver.slv_customers"))
	assert.Equal(t, []string{"bronze.brz_customers", "bronze.brz_orders"}, g.GetRoots())
	assert.Equal(t, []string{"gold.dim_customers", "gold.fct_orders"}, g.GetLeaves())
	assert.Equal(t, 6, g.NodeCount())
}

func TestGraph_HasCycle(t *testing.T) {
	g := pipeline(t)
	hasCycle, _ := g.HasCycle()
	assert.False(t, hasCycle)

	g2 := NewGraph()
	for _, id := range []string{"a", "b", "c"} {
		g2.AddNode(id, nil)
	}
	require.NoError(t, g2.AddEdge("a", "b"))
	require.NoError(t, g2.AddEdge("b", "c"))
	require.NoError(t, g2.AddEdge("c", "a"))

	hasCycle, path := g2.HasCycle()
	require.True(t, hasCycle)
	assert.Equal(t, []string{"a", "b", "c", "a"}, path)

	_, err := g2.TopologicalSort()
	var ce *CycleError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "dependency cycle detected: a -> b -> c -> a", ce.Error())

	_, err = g2.GetExecutionLevels()
	require.ErrorAs(t, err, &ce)
}

func TestGraph_TopologicalSort(t *testing.T) {
	g := pipeline(t)
	nodes, err := g.TopologicalSort()
	require.NoError(t, err)

	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	assert.Equal(t, []string{
		"bronze.brz_customers",
		"bronze.brz_orders",
		"silver.slv_customers",
		"gold.dim_customers",
		"silver.slv_orders",
		"gold.fct_orders",
	}, ids)

	again, err := g.TopologicalSort()
	require.NoError(t, err)
	assert.Equal(t, nodes, again)
}

func TestGraph_GetExecutionLevels(t *testing.T) {
	g := pipeline(t)
	levels, err := g.GetExecutionLevels()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"bronze.brz_customers", "bronze.brz_orders"},
		{"silver.slv_customers", "silver.slv_orders"},
		{"gold.dim_customers", "gold.fct_orders"},
	}, levels)

	empty, err := NewGraph().GetExecutionLevels()
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestGraph_UpstreamDownstream(t *testing.T) {
	g := pipeline(t)
	assert.Equal(t, []string{
		"bronze.brz_customers", "bronze.brz_orders", "silver.slv_customers", "silver.slv_orders",
	}, g.GetUpstreamNodes("gold.fct_orders"))
	assert.Equal(t, []string{"gold.dim_customers", "gold.fct_orders"}, g.GetDownstreamNodes("silver.slv_customers"))
	assert.Equal(t, []string{
		"bronze.brz_orders", "gold.fct_orders", "silver.slv_orders",
	}, g.GetAffectedNodes([]string{"bronze.brz_orders", "missing"}))
}

func TestGraph_Subgraph(t *testing.T) {
	g := pipeline(t)
	sub := g.Subgraph([]string{"silver.slv_orders", "gold.fct_orders", "missing"})
	assert.Equal(t, 2, sub.NodeCount())
	assert.Equal(t, 1, sub.EdgeCount())
	n, ok := sub.GetNode("gold.fct_orders")
	require.True(t, ok)
	assert.Equal(t, "fct_orders", n.Model.Name)
}

func TestGraph_Select(t *testing.T) {
	g := pipeline(t)

	tests := []struct {
		name     string
		patterns []string
		want     []string
		wantErr  string
	}{
		{name: "all", patterns: nil, want: g.IDs()},
		{name: "by name", patterns: []string{"slv_orders"}, want: []string{"silver.slv_orders"}},
		{name: "by path", patterns: []string{"gold.fct_orders"}, want: []string{"gold.fct_orders"}},
		{
			name:     "upstream",
			patterns: []string{"+dim_customers"},
			want:     []string{"bronze.brz_customers", "gold.dim_customers", "silver.slv_customers"},
		},
		{
			name:     "downstream",
			patterns: []string{"slv_customers+"},
			want:     []string{"gold.dim_customers", "gold.fct_orders", "silver.slv_customers"},
		},
		{name: "layer", patterns: []string{"layer:bronze"}, want: []string{"bronze.brz_customers", "bronze.brz_orders"}},
		{name: "tag", patterns: []string{"tag:finance"}, want: []string{"gold.fct_orders", "silver.slv_orders"}},
		{
			name:     "union",
			patterns: []string{"brz_orders", "dim_customers"},
			want:     []string{"bronze.brz_orders", "gold.dim_customers"},
		},
		{name: "no match", patterns: []string{"fct_refunds"}, wantErr: "matched no models"},
		{name: "bad layer", patterns: []string{"layer:platinum"}, wantErr: "invalid layer"},
		{name: "empty", patterns: []string{"+"}, wantErr: "empty selector"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := g.Select(tt.patterns)
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGraph_LayerViolations(t *testing.T) {
	g := pipeline(t)
	assert.Empty(t, g.LayerViolations())

	g.AddNode("silver.slv_payments", m(core.LayerSilver, "slv_payments"))
	g.AddNode("bronze.brz_payments", m(core.LayerBronze, "brz_payments"))
	require.NoError(t, g.AddEdge("gold.dim_customers", "silver.slv_payments"))
	require.NoError(t, g.AddEdge("bronze.brz_orders", "bronze.brz_payments"))

	violations := g.LayerViolations()
	require.Len(t, violations, 2)
	assert.Equal(t, "bronze.brz_payments", violations[0].Child)
	assert.Contains(t, violations[0].Reason, "only read sources")
	assert.Equal(t, "gold.dim_customers -> silver.slv_payments: silver model reads from gold", violations[1].String())
}
