// Package dialect provides per-warehouse SQL fragments.
//
// The pipeline keeps its transformation logic in SQL model files. Those files
// stay portable by calling template helpers (to_numeric, to_timestamp,
// date_spine, ...) that expand to the snippets defined here. Concrete
// dialects are registered from pkg/adapters/*/dialect packages.
package dialect

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// PlaceholderStyle defines how query parameters are formatted.
type PlaceholderStyle int

const (
	// PlaceholderQuestion uses ? for all parameters (DuckDB, MySQL, Snowflake).
	PlaceholderQuestion PlaceholderStyle = iota
	// PlaceholderDollar uses $1, $2, etc. for parameters (PostgreSQL).
	PlaceholderDollar
)

// SpineFunc renders a query returning one row per day in [start, end] as date_day.
type SpineFunc func(start, end time.Time) string

// Dialect represents a SQL dialect configuration.
type Dialect struct {
	Name string

	// Database-specific settings
	DefaultSchema string           // "main" for DuckDB, "public" for Postgres
	Placeholder   PlaceholderStyle // How to format query parameters
	Quote         string           // Identifier quote character
	TextType      string           // Column type used for raw CSV columns
	StringCast    string           // Target type for CAST(x AS ...) to text
	ReplaceView   bool             // CREATE OR REPLACE VIEW is safe when columns change

	toNumeric   func(expr string) string
	toInteger   func(expr string) string
	toTimestamp func(expr string) string
	minutesDiff func(from, to string) string
	addHours    func(expr string, hours int) string
	dayOfWeek   func(expr string) string
	dateSpine   SpineFunc
}

// FormatPlaceholder returns a placeholder for the given parameter index (1-based).
func (d *Dialect) FormatPlaceholder(index int) string {
	switch d.Placeholder {
	case PlaceholderDollar:
		return "$" + strconv.Itoa(index)
	default:
		return "?"
	}
}

// QuoteIdentifier quotes an identifier using the dialect's quote character.
func (d *Dialect) QuoteIdentifier(name string) string {
	escaped := strings.ReplaceAll(name, d.Quote, d.Quote+d.Quote)
	return d.Quote + escaped + d.Quote
}

// Relation returns schema.name without quoting.
func (d *Dialect) Relation(schema, name string) string {
	if schema == "" {
		return name
	}
	return schema + "." + name
}

// ToNumeric parses a dirty money string (currency symbols, thousands
// separators, padding) into DECIMAL(12,2). Unparseable values become NULL.
func (d *Dialect) ToNumeric(expr string) string {
	return d.toNumeric(expr)
}

// ToInteger parses a padded integer string. Unparseable values become NULL.
func (d *Dialect) ToInteger(expr string) string {
	return d.toInteger(expr)
}

// ToTimestamp parses every timestamp layout the generator emits.
// Unparseable values become NULL.
func (d *Dialect) ToTimestamp(expr string) string {
	return d.toTimestamp(expr)
}

// CleanString trims and lowercases a string.
func (d *Dialect) CleanString(expr string) string {
	return "LOWER(TRIM(" + expr + "))"
}

// Hash builds a surrogate key from one or more expressions.
func (d *Dialect) Hash(exprs ...string) string {
	parts := make([]string, len(exprs))
	for i, e := range exprs {
		parts[i] = "COALESCE(CAST(" + e + " AS " + d.StringCast + "), '')"
	}
	return "MD5(CONCAT_WS('|', " + strings.Join(parts, ", ") + "))"
}

// MinutesBetween returns the number of whole minutes from one timestamp to another.
func (d *Dialect) MinutesBetween(from, to string) string {
	return d.minutesDiff(from, to)
}

// AddHours shifts a timestamp by a (possibly negative) number of hours.
func (d *Dialect) AddHours(expr string, hours int) string {
	return d.addHours(expr, hours)
}

// DayOfWeek returns the weekday of a date, 0 for Sunday through 6 for Saturday.
func (d *Dialect) DayOfWeek(expr string) string {
	return d.dayOfWeek(expr)
}

// DateSpine renders a query producing one date_day row per day between
// start and end (inclusive). Dates use the 2006-01-02 layout.
func (d *Dialect) DateSpine(start, end string) (string, error) {
	s, err := time.Parse(time.DateOnly, start)
	if err != nil {
		return "", fmt.Errorf("date_spine: invalid start date %q: %w", start, err)
	}
	e, err := time.Parse(time.DateOnly, end)
	if err != nil {
		return "", fmt.Errorf("date_spine: invalid end date %q: %w", end, err)
	}
	if e.Before(s) {
		return "", fmt.Errorf("date_spine: end date %s is before start date %s", end, start)
	}
	return d.dateSpine(s, e), nil
}

// CreateSchema returns DDL creating schema if it does not exist.
func (d *Dialect) CreateSchema(schema string) string {
	return "CREATE SCHEMA IF NOT EXISTS " + schema
}

// CreateTableAs returns DDL materializing query as a table.
func (d *Dialect) CreateTableAs(relation, query string) string {
	return "CREATE TABLE " + relation + " AS\n" + query
}

// DropTable returns DDL dropping relation if it is a table.
func (d *Dialect) DropTable(relation string) string {
	return "DROP TABLE IF EXISTS " + relation
}

// DropView returns DDL dropping relation if it is a view.
func (d *Dialect) DropView(relation string) string {
	return "DROP VIEW IF EXISTS " + relation
}

// CreateView returns DDL creating or replacing a view.
func (d *Dialect) CreateView(relation, query string) string {
	if d.ReplaceView {
		return "CREATE OR REPLACE VIEW " + relation + " AS\n" + query
	}
	return "CREATE VIEW " + relation + " AS\n" + query
}

// Builder provides a fluent API for constructing dialects.
type Builder struct {
	dialect *Dialect
}

// NewDialect creates a new dialect builder with ANSI defaults.
func NewDialect(name string) *Builder {
	return &Builder{
		dialect: &Dialect{
			Name:          name,
			DefaultSchema: "public",
			Quote:         `"`,
			TextType:      "VARCHAR",
			StringCast:    "VARCHAR",
			ReplaceView:   true,
			toNumeric:     standardToNumeric,
			toInteger:     standardToInteger,
			toTimestamp:   standardToTimestamp,
			minutesDiff:   standardMinutesBetween,
			addHours:      standardAddHours,
			dayOfWeek:     standardDayOfWeek,
			dateSpine:     standardDateSpine,
		},
	}
}

// DefaultSchema sets the default schema name.
func (b *Builder) DefaultSchema(schema string) *Builder {
	b.dialect.DefaultSchema = schema
	return b
}

// PlaceholderStyle sets the placeholder style for query parameters.
func (b *Builder) PlaceholderStyle(style PlaceholderStyle) *Builder {
	b.dialect.Placeholder = style
	return b
}

// Quote sets the identifier quote character.
func (b *Builder) Quote(q string) *Builder {
	b.dialect.Quote = q
	return b
}

// TextType sets the column type for raw text columns.
func (b *Builder) TextType(t string) *Builder {
	b.dialect.TextType = t
	return b
}

// StringCast sets the type used when casting values to text.
func (b *Builder) StringCast(t string) *Builder {
	b.dialect.StringCast = t
	return b
}

// ReplaceView controls whether CREATE OR REPLACE VIEW is used.
func (b *Builder) ReplaceView(ok bool) *Builder {
	b.dialect.ReplaceView = ok
	return b
}

// ToNumeric overrides the money parsing snippet.
func (b *Builder) ToNumeric(fn func(expr string) string) *Builder {
	b.dialect.toNumeric = fn
	return b
}

// ToInteger overrides the integer parsing snippet.
func (b *Builder) ToInteger(fn func(expr string) string) *Builder {
	b.dialect.toInteger = fn
	return b
}

// ToTimestamp overrides the timestamp parsing snippet.
func (b *Builder) ToTimestamp(fn func(expr string) string) *Builder {
	b.dialect.toTimestamp = fn
	return b
}

// MinutesBetween overrides the minute difference snippet.
func (b *Builder) MinutesBetween(fn func(from, to string) string) *Builder {
	b.dialect.minutesDiff = fn
	return b
}

// AddHours overrides the interval arithmetic snippet.
func (b *Builder) AddHours(fn func(expr string, hours int) string) *Builder {
	b.dialect.addHours = fn
	return b
}

// DayOfWeek overrides the weekday snippet.
func (b *Builder) DayOfWeek(fn func(expr string) string) *Builder {
	b.dialect.dayOfWeek = fn
	return b
}

// DateSpine overrides the date spine query.
func (b *Builder) DateSpine(fn SpineFunc) *Builder {
	b.dialect.dateSpine = fn
	return b
}

// Build returns the constructed dialect.
func (b *Builder) Build() *Dialect {
	return b.dialect
}
