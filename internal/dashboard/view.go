package dashboard

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/leapstack-labs/shopflow/internal/engine"
	"github.com/leapstack-labs/shopflow/pkg/core"
)

//go:embed templates/*.html
var templateFS embed.FS

type pages struct {
	index  *template.Template
	report *template.Template
	runs   *template.Template
}

var funcs = template.FuncMap{
	"cell": formatCell,
	"ms":   func(d time.Duration) int64 { return d.Milliseconds() },
	"when": func(t time.Time) string { return t.Local().Format(time.DateTime) },
}

func mustParsePages() *pages {
	parse := func(name string) *template.Template {
		return template.Must(template.New("layout.html").Funcs(funcs).
			ParseFS(templateFS, "templates/layout.html", "templates/"+name))
	}
	return &pages{
		index:  parse("index.html"),
		report: parse("report.html"),
		runs:   parse("runs.html"),
	}
}

func (p *pages) render(w io.Writer, t *template.Template, data any) error {
	return t.ExecuteTemplate(w, "layout.html", data)
}

type layoutData struct {
	Title   string
	Refresh int
}

type indexData struct {
	layoutData
	Reports []*core.Report
	Runs    bool
}

type reportData struct {
	layoutData
	Result *engine.ReportResult
	Bars   []bar
	XIndex int
	YIndex int
}

type runsData struct {
	layoutData
	Runs []*core.Run
}

// bar is one row of a bar chart; Width is a percentage of the widest bar.
type bar struct {
	Label string
	Value string
	Width float64
}

// chartBars builds bar widths from the X and Y columns of a bar report.
func chartBars(res *engine.ReportResult) []bar {
	labels, values := res.Series()
	if len(values) == 0 {
		return nil
	}

	maxVal := 0.0
	for _, v := range values {
		maxVal = math.Max(maxVal, math.Abs(v))
	}
	bars := make([]bar, len(values))
	for i, v := range values {
		bars[i] = bar{Label: formatCell(labels[i]), Value: formatCell(v)}
		if maxVal > 0 {
			bars[i].Width = math.Round(math.Abs(v)/maxVal*1000) / 10
		}
	}
	return bars
}

func formatCell(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case float64:
		if val == math.Trunc(val) && math.Abs(val) < 1e15 {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', 2, 64)
	case time.Time:
		if val.Hour() == 0 && val.Minute() == 0 && val.Second() == 0 {
			return val.Format(time.DateOnly)
		}
		return val.Format(time.DateTime)
	default:
		return fmt.Sprint(val)
	}
}
