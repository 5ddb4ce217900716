// Package snowflake provides the Snowflake warehouse adapter.
//
// Import this package with a blank identifier to register the adapter:
//
//	import _ "github.com/leapstack-labs/shopflow/pkg/adapters/snowflake"
package snowflake

import (
	"log/slog"

	"github.com/leapstack-labs/shopflow/pkg/adapter"

	// Import dialect to ensure it's registered
	_ "github.com/leapstack-labs/shopflow/pkg/adapters/snowflake/dialect"
)

func init() {
	adapter.Register("snowflake", func(logger *slog.Logger) adapter.Adapter { return New(logger) })
}
