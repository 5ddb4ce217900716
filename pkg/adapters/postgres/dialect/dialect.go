// Package dialect provides the PostgreSQL SQL dialect definition.
// This package has no database driver dependencies.
package dialect

import (
	"github.com/leapstack-labs/shopflow/pkg/dialect"
)

func init() {
	dialect.Register(Postgres)
}

// Postgres is the PostgreSQL dialect configuration. The standard snippets
// already target PostgreSQL, so only connection-level settings differ.
var Postgres = dialect.NewDialect("postgres").
	DefaultSchema("public").
	PlaceholderStyle(dialect.PlaceholderDollar).
	TextType("TEXT").
	StringCast("TEXT").
	ReplaceView(false). // CREATE OR REPLACE VIEW fails when columns change
	Build()
