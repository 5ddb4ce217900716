// Package dialect provides the Snowflake SQL dialect definition.
// This package has no database driver dependencies.
package dialect

import (
	"fmt"
	"strings"
	"time"

	"github.com/leapstack-labs/shopflow/pkg/dialect"
)

func init() {
	dialect.Register(Snowflake)
}

var snowflakeTimestampFormats = []string{
	"YYYY-MM-DD HH24:MI:SS",
	`YYYY-MM-DD"T"HH24:MI:SS"Z"`,
	"MM/DD/YYYY HH24:MI",
	"YYYY-MM-DD",
}

// Snowflake is the Snowflake dialect configuration.
var Snowflake = dialect.NewDialect("snowflake").
	DefaultSchema("PUBLIC").
	PlaceholderStyle(dialect.PlaceholderQuestion).
	ToNumeric(func(expr string) string {
		return fmt.Sprintf("TRY_TO_DECIMAL(%s, 12, 2)", dialect.StripMoney(expr))
	}).
	ToInteger(func(expr string) string {
		return fmt.Sprintf("TRY_TO_NUMBER(TRIM(%s))", expr)
	}).
	ToTimestamp(func(expr string) string {
		parts := make([]string, len(snowflakeTimestampFormats))
		for i, f := range snowflakeTimestampFormats {
			parts[i] = fmt.Sprintf("TRY_TO_TIMESTAMP_NTZ(TRIM(%s), '%s')", expr, f)
		}
		return "COALESCE(" + strings.Join(parts, ", ") + ")"
	}).
	MinutesBetween(func(from, to string) string {
		return fmt.Sprintf("DATEDIFF('minute', %s, %s)", from, to)
	}).
	AddHours(func(expr string, hours int) string {
		return fmt.Sprintf("DATEADD('hour', %d, %s)", hours, expr)
	}).
	DateSpine(func(start, end time.Time) string {
		return fmt.Sprintf(
			"SELECT DATEADD('day', ROW_NUMBER() OVER (ORDER BY SEQ4()) - 1, DATE '%s') AS date_day FROM TABLE(GENERATOR(ROWCOUNT => %d))",
			start.Format(time.DateOnly), dialect.DaysInclusive(start, end),
		)
	}).
	Build()
