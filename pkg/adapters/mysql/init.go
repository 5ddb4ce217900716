// Package mysql provides the MySQL warehouse adapter.
//
// Import this package with a blank identifier to register the adapter:
//
//	import _ "github.com/leapstack-labs/shopflow/pkg/adapters/mysql"
package mysql

import (
	"log/slog"

	"github.com/leapstack-labs/shopflow/pkg/adapter"

	// Import dialect to ensure it's registered
	_ "github.com/leapstack-labs/shopflow/pkg/adapters/mysql/dialect"
)

func init() {
	adapter.Register("mysql", func(logger *slog.Logger) adapter.Adapter { return New(logger) })
}
