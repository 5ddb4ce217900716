package generate

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/shopspring/decimal"
)

// NoiseKind names one kind of injected data-quality problem.
type NoiseKind string

// Noise kinds.
const (
	NoiseDuplicateRows    NoiseKind = "duplicate_rows"
	NoiseMalformedAmounts NoiseKind = "malformed_amounts"
	NoiseMixedDates       NoiseKind = "mixed_dates"
	NoiseDirtyStrings     NoiseKind = "dirty_strings"
	NoiseOrphans          NoiseKind = "orphans"
)

// NoiseKinds lists every noise kind in application order.
var NoiseKinds = []NoiseKind{
	NoiseDuplicateRows,
	NoiseMalformedAmounts,
	NoiseMixedDates,
	NoiseDirtyStrings,
	NoiseOrphans,
}

var titleCase = cases.Title(language.English)

// renderTable formats records into CSV rows, injecting row-level noise.
// Rolls happen only for kinds that apply to the row, in a fixed order, so
// output stays deterministic for a seed.
func (g *generator) renderTable(spec tableSpec, records []record) *Table {
	t := &Table{
		Name:    spec.name,
		Key:     spec.key,
		Columns: spec.columns,
		Rows:    make([][]string, 0, len(records)),
	}

	for _, rec := range records {
		rec = append(record(nil), rec...)

		if idx := indexesOf(rec, kindMoney); len(idx) > 0 && g.roll() {
			i := idx[g.rng.IntN(len(idx))]
			rec[i] = textField(g.malformAmount(rec[i].money))
			g.noise[NoiseMalformedAmounts]++
		}

		layout := TimestampLayout
		if len(indexesOf(rec, kindTime)) > 0 && g.roll() {
			layout = noisyLayouts[g.rng.IntN(len(noisyLayouts))]
			g.noise[NoiseMixedDates]++
		}

		if dirty := append(indexesOf(rec, kindEmail), indexesOf(rec, kindEnum)...); len(dirty) > 0 && g.roll() {
			for _, i := range dirty {
				rec[i] = textField(g.dirty(rec[i]))
			}
			g.noise[NoiseDirtyStrings]++
		}

		row := make([]string, len(rec))
		for i, f := range rec {
			row[i] = f.format(layout)
		}
		t.Rows = append(t.Rows, row)

		if spec.duplicates && g.roll() {
			t.Rows = append(t.Rows, append([]string(nil), row...))
			g.noise[NoiseDuplicateRows]++
		}
	}
	return t
}

func (g *generator) roll() bool {
	return g.cfg.NoiseRate > 0 && g.rng.Float64() < g.cfg.NoiseRate
}

// malformAmount renders an amount the way a careless export would.
func (g *generator) malformAmount(d decimal.Decimal) string {
	switch g.rng.IntN(4) {
	case 0:
		return "$" + thousands(d)
	case 1:
		return " " + d.StringFixed(2) + " "
	case 2:
		return "N/A"
	default:
		return ""
	}
}

func (g *generator) dirty(f field) string {
	if f.kind == kindEmail {
		return "  " + strings.ToUpper(f.text) + " "
	}
	if g.rng.IntN(2) == 0 {
		return strings.ToUpper(f.text)
	}
	return " " + titleCase.String(f.text)
}

// thousands formats d with two decimals and comma grouping: 1,234.50.
func thousands(d decimal.Decimal) string {
	s := d.StringFixed(2)
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	intPart, frac, _ := strings.Cut(s, ".")
	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return sign + b.String() + "." + frac
}

func indexesOf(rec record, kind fieldKind) []int {
	var idx []int
	for i, f := range rec {
		if f.kind == kind && !f.null {
			idx = append(idx, i)
		}
	}
	return idx
}
