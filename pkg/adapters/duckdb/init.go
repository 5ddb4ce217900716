// Package duckdb provides the DuckDB warehouse adapter, the default local target.
//
// Import this package with a blank identifier to register the adapter:
//
//	import _ "github.com/leapstack-labs/shopflow/pkg/adapters/duckdb"
package duckdb

import (
	"log/slog"

	"github.com/leapstack-labs/shopflow/pkg/adapter"

	// Import dialect to ensure it's registered
	_ "github.com/leapstack-labs/shopflow/pkg/adapters/duckdb/dialect"
)

func init() {
	adapter.Register("duckdb", func(logger *slog.Logger) adapter.Adapter { return New(logger) })
}
