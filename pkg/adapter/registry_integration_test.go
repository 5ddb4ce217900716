package adapter_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/shopflow/pkg/adapter"
	"github.com/leapstack-labs/shopflow/pkg/core"
	"github.com/leapstack-labs/shopflow/pkg/dialect"

	// Import adapter packages to ensure adapters are registered via init()
	_ "github.com/leapstack-labs/shopflow/pkg/adapters/duckdb"
	_ "github.com/leapstack-labs/shopflow/pkg/adapters/mysql"
	_ "github.com/leapstack-labs/shopflow/pkg/adapters/postgres"
	_ "github.com/leapstack-labs/shopflow/pkg/adapters/snowflake"
)

func TestAdaptersSelfRegister(t *testing.T) {
	for _, name := range []string{"duckdb", "postgres", "snowflake", "mysql"} {
		t.Run(name, func(t *testing.T) {
			assert.True(t, adapter.IsRegistered(name))

			adp, err := adapter.NewAdapter(core.AdapterConfig{Type: name}, nil)
			require.NoError(t, err)
			require.NotNil(t, adp)
			assert.Equal(t, name, adp.Dialect().Name)

			d, ok := dialect.Get(name)
			require.True(t, ok, "dialect %s should be registered", name)
			assert.Same(t, d, adp.Dialect())
		})
	}
}

func TestNewAdapter_BigQueryUnsupported(t *testing.T) {
	_, err := adapter.NewAdapter(core.AdapterConfig{Type: "bigquery"}, nil)
	require.Error(t, err)

	var unknownErr *adapter.UnknownAdapterError
	require.ErrorAs(t, err, &unknownErr)
	assert.Equal(t, []string{"duckdb", "mysql", "postgres", "snowflake"}, filterKnown(unknownErr.Available))
}

// filterKnown drops adapters registered by other tests in this binary.
func filterKnown(names []string) []string {
	known := map[string]bool{"duckdb": true, "mysql": true, "postgres": true, "snowflake": true}
	var out []string
	for _, n := range names {
		if known[n] {
			out = append(out, n)
		}
	}
	return out
}
