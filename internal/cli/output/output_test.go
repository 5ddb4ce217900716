package output

import (
	"bytes"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ansi = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

func newRenderer(mode OutputMode, isTTY bool) (*Renderer, *bytes.Buffer, *bytes.Buffer) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	return NewRendererWithTTY(out, errOut, isTTY, mode), out, errOut
}

func TestMode(t *testing.T) {
	tests := []struct {
		in   string
		want OutputMode
	}{
		{"", ModeAuto},
		{"auto", ModeAuto},
		{"TEXT", ModeText},
		{"md", ModeMarkdown},
		{"markdown", ModeMarkdown},
		{"json", ModeJSON},
		{"yaml", ModeAuto},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Mode(tt.in))
		})
	}

	assert.True(t, ValidMode("json"))
	assert.False(t, ValidMode("yaml"))
}

func TestEffectiveMode(t *testing.T) {
	tests := []struct {
		name  string
		mode  OutputMode
		isTTY bool
		want  OutputMode
	}{
		{"auto on tty", ModeAuto, true, ModeText},
		{"auto piped", ModeAuto, false, ModeMarkdown},
		{"explicit text piped", ModeText, false, ModeText},
		{"json on tty", ModeJSON, true, ModeJSON},
		{"empty defaults to auto", "", false, ModeMarkdown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _, _ := newRenderer(tt.mode, tt.isTTY)
			assert.Equal(t, tt.want, r.EffectiveMode())
		})
	}
}

func TestRenderer_Markdown(t *testing.T) {
	r, out, errOut := newRenderer(ModeMarkdown, false)

	r.Header(1, "Run")
	r.KeyValue("Target", "duckdb")
	r.StatusLine("silver.slv_orders", "success", "120 rows")
	r.Success("done")
	r.Error("boom")

	got := out.String()
	assert.Contains(t, got, "# Run\n")
	assert.Contains(t, got, "- **Target:** duckdb")
	assert.Contains(t, got, "- `silver.slv_orders` **success** 120 rows")
	assert.Contains(t, got, "done")
	assert.Equal(t, "boom\n", errOut.String())
	assert.False(t, ansi.MatchString(got))
}

func TestRenderer_JSONSuppressesText(t *testing.T) {
	r, out, _ := newRenderer(ModeJSON, true)

	r.Header(1, "ignored")
	r.StatusLine("m", "success", "")
	r.Success("ignored")
	r.Table([]string{"a"}, [][]string{{"1"}})
	require.NoError(t, r.JSON(map[string]int{"models": 3}))

	var decoded map[string]int
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	assert.Equal(t, 3, decoded["models"])
}

func TestRenderer_JSONLine(t *testing.T) {
	r, out, _ := newRenderer(ModeJSON, false)

	require.NoError(t, r.JSONLine(RunEvent{Event: "model_done", Model: "gold.gld_revenue", Status: "success"}))
	require.NoError(t, r.JSONLine(RunEvent{Event: "run_end", Succeeded: 1}))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"model":"gold.gld_revenue"`)
	assert.NotContains(t, lines[1], `"model"`)
}

func TestRenderer_Table(t *testing.T) {
	t.Run("markdown", func(t *testing.T) {
		r, out, _ := newRenderer(ModeMarkdown, false)
		r.Table([]string{"channel", "revenue"}, [][]string{{"email", "10"}, {"a|b", "2"}})

		got := out.String()
		assert.Contains(t, got, "| channel | revenue |")
		assert.Contains(t, got, "| email | 10 |")
		assert.Contains(t, got, `a\|b`)
	})

	t.Run("text", func(t *testing.T) {
		r, out, _ := newRenderer(ModeText, false)
		r.Table([]string{"channel"}, [][]string{{"email"}})

		got := out.String()
		assert.Contains(t, got, "channel")
		assert.Contains(t, got, "email")
		assert.Contains(t, got, "┌")
	})
}

func TestRenderer_BarChart(t *testing.T) {
	r, out, _ := newRenderer(ModeMarkdown, false)
	r.BarChart([]string{"email", "organic"}, []float64{50, 100}, 10)

	got := out.String()
	assert.Contains(t, got, "email   ##### 50")
	assert.Contains(t, got, "organic ########## 100")
	assert.Equal(t, 2, strings.Count(got, "```"))
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, "NULL"},
		{"whole float", 42.0, "42"},
		{"fraction", 1200.5, "1200.50"},
		{"date", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), "2024-03-01"},
		{"timestamp", time.Date(2024, 3, 1, 13, 5, 0, 0, time.UTC), "2024-03-01 13:05:00"},
		{"int", int64(7), "7"},
		{"string", "x", "x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatValue(tt.in))
		})
	}
}

func TestFormatHelpers(t *testing.T) {
	assert.Equal(t, "## Models", FormatHeader(2, "Models"))
	assert.Equal(t, "###### deep", FormatHeader(9, "deep"))
	assert.Equal(t, "- **Rows:** 3", FormatKeyValue("Rows", "3"))
	assert.Equal(t, "1 model", Plural(1, "model"))
	assert.Equal(t, "2 tests", Plural(2, "test"))
}
