// Package postgres provides the PostgreSQL warehouse adapter.
//
// Import this package with a blank identifier to register the adapter:
//
//	import _ "github.com/leapstack-labs/shopflow/pkg/adapters/postgres"
package postgres

import (
	"log/slog"

	"github.com/leapstack-labs/shopflow/pkg/adapter"

	// Import dialect to ensure it's registered
	_ "github.com/leapstack-labs/shopflow/pkg/adapters/postgres/dialect"
)

func init() {
	adapter.Register("postgres", func(logger *slog.Logger) adapter.Adapter { return New(logger) })
}
