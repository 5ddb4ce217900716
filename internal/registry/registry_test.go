package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/shopflow/pkg/core"
)

func model(layer core.Layer, name string, refs ...string) *core.Model {
	return &core.Model{Path: string(layer) + "." + name, Name: name, Layer: layer, Refs: refs}
}

func newRegistry(t *testing.T, models ...*core.Model) *ModelRegistry {
	t.Helper()
	r := NewModelRegistry()
	for _, m := range models {
		require.NoError(t, r.Register(m))
	}
	r.RegisterSource(&core.Source{Name: "orders"})
	r.RegisterSource(&core.Source{Name: "customers"})
	return r
}

func TestModelRegistry_Resolve(t *testing.T) {
	r := newRegistry(t,
		model(core.LayerSilver, "slv_orders"),
		model(core.LayerGold, "fct_orders"),
		model(core.LayerSilver, "orders"),
		model(core.LayerGold, "orders"),
	)

	tests := []struct {
		name     string
		input    string
		wantPath string
		check    func(t *testing.T, err error)
	}{
		{name: "by name", input: "slv_orders", wantPath: "silver.slv_orders"},
		{name: "by path", input: "gold.fct_orders", wantPath: "gold.fct_orders"},
		{name: "ambiguous name resolves by path", input: "gold.orders", wantPath: "gold.orders"},
		{
			name:  "ambiguous",
			input: "orders",
			check: func(t *testing.T, err error) {
				var amb *AmbiguousModelError
				require.ErrorAs(t, err, &amb)
				assert.Equal(t, []string{"gold.orders", "silver.orders"}, amb.Paths)
			},
		},
		{
			name:  "not found with suggestion",
			input: "slv_order",
			check: func(t *testing.T, err error) {
				var nf *ModelNotFoundError
				require.ErrorAs(t, err, &nf)
				assert.Equal(t, []string{"slv_orders"}, nf.Suggestions)
				assert.Contains(t, err.Error(), "did you mean slv_orders")
			},
		},
		{
			name:  "not found without suggestion",
			input: "dim_weather",
			check: func(t *testing.T, err error) {
				var nf *ModelNotFoundError
				require.ErrorAs(t, err, &nf)
				assert.Empty(t, nf.Suggestions)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := r.Resolve(tt.input)
			if tt.check != nil {
				require.Error(t, err)
				tt.check(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantPath, m.Path)
		})
	}
}

func TestModelRegistry_RegisterDuplicatePath(t *testing.T) {
	r := NewModelRegistry()
	require.NoError(t, r.Register(model(core.LayerSilver, "slv_orders")))
	require.Error(t, r.Register(model(core.LayerSilver, "slv_orders")))
	assert.Equal(t, 1, r.Count())
}

func TestModelRegistry_ResolveDependencies(t *testing.T) {
	fct := model(core.LayerGold, "fct_orders", "slv_orders", "silver.slv_customers", "slv_orders")
	fct.Sources = []string{"orders"}
	r := newRegistry(t,
		model(core.LayerSilver, "slv_orders"),
		model(core.LayerSilver, "slv_customers"),
		fct,
	)

	deps, sources, err := r.ResolveDependencies(fct)
	require.NoError(t, err)
	assert.Equal(t, []string{"silver.slv_customers", "silver.slv_orders"}, deps)
	assert.Equal(t, []string{"orders"}, sources)

	bad := model(core.LayerGold, "fct_bad", "fct_bad", "nope")
	bad.Sources = []string{"refunds"}
	require.NoError(t, r.Register(bad))
	_, _, err = r.ResolveDependencies(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "references itself")
	assert.Contains(t, err.Error(), `model "nope" not found`)
	assert.Contains(t, err.Error(), `unknown source "refunds"`)
}

func TestModelRegistry_Listing(t *testing.T) {
	r := newRegistry(t, model(core.LayerGold, "fct_orders"), model(core.LayerBronze, "brz_orders"))

	models := r.AllModels()
	require.Len(t, models, 2)
	assert.Equal(t, "bronze.brz_orders", models[0].Path)

	sources := r.AllSources()
	require.Len(t, sources, 2)
	assert.Equal(t, "customers", sources[0].Name)
	assert.True(t, r.HasSource("orders"))
	_, ok := r.Source("refunds")
	assert.False(t, ok)
}

func TestLevenshtein(t *testing.T) {
	assert.Equal(t, 0, levenshtein("abc", "abc"))
	assert.Equal(t, 3, levenshtein("", "abc"))
	assert.Equal(t, 1, levenshtein("slv_order", "slv_orders"))
	assert.Equal(t, 3, levenshtein("kitten", "sitting"))
}
