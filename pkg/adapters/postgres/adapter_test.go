package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/leapstack-labs/shopflow/pkg/adapter"
	"github.com/leapstack-labs/shopflow/pkg/core"
)

func TestBuildPostgresDSN(t *testing.T) {
	tests := []struct {
		name     string
		config   core.AdapterConfig
		expected string
	}{
		{
			name: "basic connection",
			config: core.AdapterConfig{
				Host:     "localhost",
				Port:     5432,
				Database: "shop",
				Username: "etl",
				Password: "pass",
			},
			expected: "host=localhost port=5432 dbname=shop sslmode=disable user=etl password=pass",
		},
		{
			name: "with custom sslmode and extra options",
			config: core.AdapterConfig{
				Host:     "prod.example.com",
				Database: "warehouse",
				Username: "admin",
				Options:  map[string]string{"sslmode": "require", "application_name": "shopflow"},
			},
			expected: "host=prod.example.com port=5432 dbname=warehouse sslmode=require user=admin application_name=shopflow",
		},
		{
			name:     "defaults",
			config:   core.AdapterConfig{Database: "mydb"},
			expected: "host=localhost port=5432 dbname=mydb sslmode=disable",
		},
		{
			name: "quoted password",
			config: core.AdapterConfig{
				Database: "mydb",
				Password: "it's secret",
			},
			expected: `host=localhost port=5432 dbname=mydb sslmode=disable password='it\'s secret'`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, buildPostgresDSN(tt.config))
		})
	}
}

func TestAdapter_NotConnected(t *testing.T) {
	ctx := context.Background()
	adp := New(nil)

	_, err := adp.LoadCSV(ctx, "raw.orders", "orders.csv")
	assert.ErrorIs(t, err, adapter.ErrNotConnected)
	assert.ErrorIs(t, adp.Exec(ctx, "SELECT 1"), adapter.ErrNotConnected)
}

func TestAdapter_Dialect(t *testing.T) {
	d := New(nil).Dialect()
	assert.Equal(t, "postgres", d.Name)
	assert.Equal(t, "$1", d.FormatPlaceholder(1))
	assert.False(t, d.ReplaceView)
}
