package generate

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Timestamp layouts written to CSV. TimestampLayout is the clean layout;
// the others appear as mixed_dates noise.
const (
	TimestampLayout = "2006-01-02 15:04:05"
	RFC3339Layout   = "2006-01-02T15:04:05Z"
	USLayout        = "01/02/2006 15:04"
	DateLayout      = "2006-01-02"
)

var noisyLayouts = []string{RFC3339Layout, USLayout, DateLayout}

type fieldKind uint8

const (
	kindText fieldKind = iota
	kindInt
	kindMoney
	kindTime
	kindDate
	kindEmail
	kindEnum
	kindBool
)

// field is one typed cell before noise and formatting.
type field struct {
	kind  fieldKind
	text  string
	num   int64
	money decimal.Decimal
	at    time.Time
	null  bool
}

func textField(s string) field           { return field{kind: kindText, text: s} }
func intField(n int64) field             { return field{kind: kindInt, num: n} }
func moneyField(d decimal.Decimal) field { return field{kind: kindMoney, money: d} }
func timeField(t time.Time) field        { return field{kind: kindTime, at: t} }
func dateField(t time.Time) field        { return field{kind: kindDate, at: t} }
func emailField(s string) field          { return field{kind: kindEmail, text: s} }
func enumField(s string) field           { return field{kind: kindEnum, text: s} }
func boolField(b bool) field             { return field{kind: kindBool, text: strconv.FormatBool(b)} }
func nullField() field                   { return field{kind: kindText, null: true} }

// format renders the field using layout for timestamps.
func (f field) format(layout string) string {
	if f.null {
		return ""
	}
	switch f.kind {
	case kindInt:
		return strconv.FormatInt(f.num, 10)
	case kindMoney:
		return f.money.StringFixed(2)
	case kindTime:
		return f.at.UTC().Format(layout)
	case kindDate:
		return f.at.UTC().Format(DateLayout)
	default:
		return f.text
	}
}

// record is one row of typed fields, in table column order.
type record []field
