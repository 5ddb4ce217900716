// Package dialect provides the DuckDB SQL dialect definition.
// This package has no database driver dependencies, so templates can be
// rendered for DuckDB without opening a connection.
package dialect

import (
	"fmt"
	"time"

	"github.com/leapstack-labs/shopflow/pkg/dialect"
)

func init() {
	dialect.Register(DuckDB)
}

// strptime patterns for every timestamp layout the generator writes.
var duckdbTimestampFormats = []string{
	"%Y-%m-%d %H:%M:%S",
	"%Y-%m-%dT%H:%M:%SZ",
	"%m/%d/%Y %H:%M",
	"%Y-%m-%d",
}

// DuckDB is the DuckDB dialect configuration.
var DuckDB = dialect.NewDialect("duckdb").
	DefaultSchema("main").
	PlaceholderStyle(dialect.PlaceholderQuestion).
	ToNumeric(func(expr string) string {
		return fmt.Sprintf("TRY_CAST(%s AS DECIMAL(12,2))", dialect.StripMoney(expr))
	}).
	ToInteger(func(expr string) string {
		return fmt.Sprintf("TRY_CAST(TRIM(%s) AS INTEGER)", expr)
	}).
	ToTimestamp(func(expr string) string {
		args := ""
		for i, f := range duckdbTimestampFormats {
			if i > 0 {
				args += ", "
			}
			args += fmt.Sprintf("TRY_STRPTIME(TRIM(%s), '%s')", expr, f)
		}
		return "COALESCE(" + args + ")"
	}).
	MinutesBetween(func(from, to string) string {
		return fmt.Sprintf("DATE_DIFF('minute', %s, %s)", from, to)
	}).
	DateSpine(func(start, end time.Time) string {
		return fmt.Sprintf(
			"SELECT CAST(generate_series AS DATE) AS date_day FROM generate_series(TIMESTAMP '%s', TIMESTAMP '%s', INTERVAL 1 DAY)",
			start.Format(time.DateOnly), end.Format(time.DateOnly),
		)
	}).
	Build()
