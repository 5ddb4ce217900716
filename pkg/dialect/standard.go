package dialect

import (
	"fmt"
	"strings"
	"time"
)

// stripMoney removes currency symbols, thousands separators and padding.
func stripMoney(expr string) string {
	return "REPLACE(REPLACE(TRIM(" + expr + "), '$', ''), ',', '')"
}

// StripMoney exposes the money cleanup expression for dialect packages.
func StripMoney(expr string) string {
	return stripMoney(expr)
}

// The standard snippets target PostgreSQL-compatible engines that lack
// TRY_CAST and rely on regular-expression guards instead.

func standardToNumeric(expr string) string {
	cleaned := stripMoney(expr)
	return fmt.Sprintf("CASE WHEN %s ~ '^-?[0-9]+(\\.[0-9]+)?$' THEN CAST(%s AS NUMERIC(12,2)) END", cleaned, cleaned)
}

func standardToInteger(expr string) string {
	return fmt.Sprintf("CASE WHEN TRIM(%s) ~ '^-?[0-9]+$' THEN CAST(TRIM(%s) AS INTEGER) END", expr, expr)
}

func standardToTimestamp(expr string) string {
	x := "TRIM(" + expr + ")"
	var b strings.Builder
	b.WriteString("CASE")
	fmt.Fprintf(&b, " WHEN %s ~ '^\\d{4}-\\d{2}-\\d{2} \\d{2}:\\d{2}:\\d{2}$' THEN CAST(TO_TIMESTAMP(%s, 'YYYY-MM-DD HH24:MI:SS') AS TIMESTAMP)", x, x)
	fmt.Fprintf(&b, " WHEN %s ~ '^\\d{4}-\\d{2}-\\d{2}T\\d{2}:\\d{2}:\\d{2}Z$' THEN CAST(TO_TIMESTAMP(%s, 'YYYY-MM-DD\"T\"HH24:MI:SS\"Z\"') AS TIMESTAMP)", x, x)
	fmt.Fprintf(&b, " WHEN %s ~ '^\\d{2}/\\d{2}/\\d{4} \\d{2}:\\d{2}$' THEN CAST(TO_TIMESTAMP(%s, 'MM/DD/YYYY HH24:MI') AS TIMESTAMP)", x, x)
	fmt.Fprintf(&b, " WHEN %s ~ '^\\d{4}-\\d{2}-\\d{2}$' THEN CAST(TO_TIMESTAMP(%s, 'YYYY-MM-DD') AS TIMESTAMP)", x, x)
	b.WriteString(" END")
	return b.String()
}

func standardMinutesBetween(from, to string) string {
	return fmt.Sprintf("CAST(FLOOR(EXTRACT(EPOCH FROM (%s - %s)) / 60) AS INTEGER)", to, from)
}

func standardAddHours(expr string, hours int) string {
	return fmt.Sprintf("(%s + INTERVAL '%d hours')", expr, hours)
}

func standardDayOfWeek(expr string) string {
	return fmt.Sprintf("CAST(EXTRACT(DOW FROM %s) AS INTEGER)", expr)
}

func standardDateSpine(start, end time.Time) string {
	return fmt.Sprintf(
		"SELECT CAST(d AS DATE) AS date_day FROM generate_series(DATE '%s', DATE '%s', INTERVAL '1 day') AS d",
		start.Format(time.DateOnly), end.Format(time.DateOnly),
	)
}

// DaysInclusive returns the number of days in [start, end].
func DaysInclusive(start, end time.Time) int {
	return int(end.Sub(start).Hours()/24) + 1
}
