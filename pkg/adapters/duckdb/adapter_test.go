package duckdb

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/shopflow/pkg/adapter"
	"github.com/leapstack-labs/shopflow/pkg/core"
)

func connect(t *testing.T) *Adapter {
	t.Helper()
	adp := New(nil)
	require.NoError(t, adp.Connect(context.Background(), core.AdapterConfig{Path: ":memory:"}))
	t.Cleanup(func() { _ = adp.Close() })
	return adp
}

func TestAdapter_Connect(t *testing.T) {
	tests := []struct {
		name      string
		setupPath func(t *testing.T) string
		params    map[string]any
		verify    func(t *testing.T, path string)
	}{
		{
			name:      "in-memory",
			setupPath: func(_ *testing.T) string { return ":memory:" },
		},
		{
			name: "file-based",
			setupPath: func(t *testing.T) string {
				return filepath.Join(t.TempDir(), "warehouse.duckdb")
			},
			verify: func(t *testing.T, path string) {
				_, err := os.Stat(path)
				assert.False(t, os.IsNotExist(err), "database file was not created")
			},
		},
		{
			name:      "with settings",
			setupPath: func(_ *testing.T) string { return "" },
			params:    map[string]any{"settings": map[string]any{"threads": 2}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			adp := New(nil)

			dbPath := tt.setupPath(t)
			require.NoError(t, adp.Connect(ctx, core.AdapterConfig{Path: dbPath, Params: tt.params}))
			defer func() { _ = adp.Close() }()

			if tt.verify != nil {
				tt.verify(t, dbPath)
			}
		})
	}
}

func TestAdapter_NotConnected(t *testing.T) {
	ctx := context.Background()
	adp := New(nil)

	assert.ErrorIs(t, adp.Exec(ctx, "SELECT 1"), adapter.ErrNotConnected)
	_, err := adp.LoadCSV(ctx, "raw.orders", "orders.csv")
	assert.ErrorIs(t, err, adapter.ErrNotConnected)
	_, err = adp.RelationType(ctx, "raw", "orders")
	assert.ErrorIs(t, err, adapter.ErrNotConnected)
}

func TestAdapter_LoadCSV(t *testing.T) {
	ctx := context.Background()
	adp := connect(t)

	csvPath := filepath.Join(t.TempDir(), "orders.csv")
	content := "order_id,order_total,order_date\n" +
		"o-1,\"$1,234.50\",2024-01-05 10:00:00\n" +
		"o-2, 12.5 ,01/06/2024 09:30\n" +
		"o-3,N/A,2024-01-07T08:00:00Z\n"
	require.NoError(t, os.WriteFile(csvPath, []byte(content), 0o600))

	require.NoError(t, adp.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS raw"))
	n, err := adp.LoadCSV(ctx, "raw.orders", csvPath)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	meta, err := adp.GetTableMetadata(ctx, "raw.orders")
	require.NoError(t, err)
	require.Len(t, meta.Columns, 3)
	for _, col := range meta.Columns {
		assert.Equal(t, "VARCHAR", col.Type, "column %s should stay text", col.Name)
	}

	// Reloading replaces the table instead of appending.
	n, err = adp.LoadCSV(ctx, "raw.orders", csvPath)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestAdapter_DialectSnippetsExecute(t *testing.T) {
	ctx := context.Background()
	adp := connect(t)
	d := adp.Dialect()

	query := "SELECT CAST(" + d.ToNumeric("'$1,234.50'") + " AS DOUBLE), " +
		d.ToNumeric("'N/A'") + " IS NULL, " +
		"CAST(" + d.ToTimestamp("'01/06/2024 09:30'") + " AS VARCHAR), " +
		"CAST(" + d.ToTimestamp("'2024-01-07T08:00:00Z'") + " AS VARCHAR)"

	rows, err := adp.Query(ctx, query)
	require.NoError(t, err)
	defer func() { _ = rows.Close() }()

	require.True(t, rows.Next())
	var amount float64
	var isNull bool
	var ts1, ts2 string
	require.NoError(t, rows.Scan(&amount, &isNull, &ts1, &ts2))
	assert.InDelta(t, 1234.50, amount, 0.001)
	assert.True(t, isNull)
	assert.Equal(t, "2024-01-06 09:30:00", ts1)
	assert.Equal(t, "2024-01-07 08:00:00", ts2)
}

func TestAdapter_RelationType(t *testing.T) {
	ctx := context.Background()
	adp := connect(t)

	require.NoError(t, adp.Exec(ctx, "CREATE SCHEMA gold"))
	require.NoError(t, adp.Exec(ctx, "CREATE TABLE gold.t AS SELECT 1 AS id"))
	require.NoError(t, adp.Exec(ctx, "CREATE VIEW gold.v AS SELECT * FROM gold.t"))

	tests := []struct {
		name string
		want adapter.RelationType
	}{
		{"t", adapter.RelationTable},
		{"v", adapter.RelationView},
		{"missing", adapter.RelationNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := adp.RelationType(ctx, "gold", tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
