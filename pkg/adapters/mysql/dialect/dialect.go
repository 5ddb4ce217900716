// Package dialect provides the MySQL SQL dialect definition.
// This package has no database driver dependencies.
package dialect

import (
	"fmt"
	"strings"
	"time"

	"github.com/leapstack-labs/shopflow/pkg/dialect"
)

func init() {
	dialect.Register(MySQL)
}

var mysqlTimestampFormats = []string{
	"%Y-%m-%d %H:%i:%s",
	"%Y-%m-%dT%H:%i:%sZ",
	"%m/%d/%Y %H:%i",
	"%Y-%m-%d",
}

// MySQL is the MySQL dialect configuration. A MySQL schema is a database.
var MySQL = dialect.NewDialect("mysql").
	DefaultSchema("shopflow").
	PlaceholderStyle(dialect.PlaceholderQuestion).
	Quote("`").
	TextType("TEXT").
	StringCast("CHAR").
	ToNumeric(func(expr string) string {
		cleaned := dialect.StripMoney(expr)
		return fmt.Sprintf("CASE WHEN %s REGEXP '^-?[0-9]+([.][0-9]+)?$' THEN CAST(%s AS DECIMAL(12,2)) END", cleaned, cleaned)
	}).
	ToInteger(func(expr string) string {
		return fmt.Sprintf("CASE WHEN TRIM(%s) REGEXP '^-?[0-9]+$' THEN CAST(TRIM(%s) AS SIGNED) END", expr, expr)
	}).
	ToTimestamp(func(expr string) string {
		x := "TRIM(" + expr + ")"
		// STR_TO_DATE accepts trailing input, so each layout is guarded by length.
		lengths := []int{19, 20, 16, 10}
		var b strings.Builder
		b.WriteString("CASE")
		for i, f := range mysqlTimestampFormats {
			fmt.Fprintf(&b, " WHEN CHAR_LENGTH(%s) = %d AND STR_TO_DATE(%s, '%s') IS NOT NULL THEN STR_TO_DATE(%s, '%s')", x, lengths[i], x, f, x, f)
		}
		b.WriteString(" END")
		return b.String()
	}).
	MinutesBetween(func(from, to string) string {
		return fmt.Sprintf("TIMESTAMPDIFF(MINUTE, %s, %s)", from, to)
	}).
	AddHours(func(expr string, hours int) string {
		return fmt.Sprintf("DATE_ADD(%s, INTERVAL %d HOUR)", expr, hours)
	}).
	DayOfWeek(func(expr string) string {
		return fmt.Sprintf("(DAYOFWEEK(%s) - 1)", expr)
	}).
	DateSpine(func(start, end time.Time) string {
		return fmt.Sprintf(
			"WITH RECURSIVE spine AS (SELECT DATE '%s' AS date_day UNION ALL SELECT date_day + INTERVAL 1 DAY FROM spine WHERE date_day < DATE '%s') SELECT date_day FROM spine",
			start.Format(time.DateOnly), end.Format(time.DateOnly),
		)
	}).
	Build()
