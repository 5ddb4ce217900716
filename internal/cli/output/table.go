package output

import (
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Table writes rows under headers. Text mode draws a box table and markdown
// mode writes a pipe table. JSON mode writes nothing, callers encode their
// own structures.
func (r *Renderer) Table(headers []string, rows [][]string) {
	mode := r.EffectiveMode()
	if mode == ModeJSON {
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(r.out)

	header := make(table.Row, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	t.AppendHeader(header)

	for _, row := range rows {
		tr := make(table.Row, len(row))
		for i, cell := range row {
			tr[i] = cell
		}
		t.AppendRow(tr)
	}

	if mode == ModeMarkdown {
		t.RenderMarkdown()
		r.Println()
		return
	}

	t.SetStyle(table.StyleLight)
	t.Style().Format.Header = text.FormatDefault
	t.Render()
}

// ValueRows converts query rows to display strings.
func ValueRows(rows [][]any) [][]string {
	out := make([][]string, len(rows))
	for i, row := range rows {
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = FormatValue(v)
		}
		out[i] = cells
	}
	return out
}

// BarChart writes a horizontal bar chart of label/value pairs in text mode.
// In markdown mode the bars are drawn inside a code fence.
func (r *Renderer) BarChart(labels []string, values []float64, width int) {
	mode := r.EffectiveMode()
	if mode == ModeJSON || len(labels) == 0 {
		return
	}
	if width <= 0 {
		width = 40
	}

	maxVal, labelWidth := 0.0, 0
	for i, v := range values {
		maxVal = max(maxVal, v)
		labelWidth = max(labelWidth, len(labels[i]))
	}

	if mode == ModeMarkdown {
		r.Println("```")
	}
	for i, label := range labels {
		n := 0
		if maxVal > 0 && values[i] > 0 {
			n = max(1, int(values[i]/maxVal*float64(width)))
		}
		bar := strings.Repeat("#", n)
		if mode == ModeText {
			bar = r.styles.Bar.Render(bar)
		}
		r.Printf("%-*s %s %s\n", labelWidth, label, bar, FormatValue(values[i]))
	}
	if mode == ModeMarkdown {
		r.Println("```")
		r.Println()
	}
}
