package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/leapstack-labs/shopflow/pkg/core"
)

func TestReportResult_Series(t *testing.T) {
	bar := &core.Report{Name: "revenue", Chart: core.ChartBar, X: "channel", Y: "revenue"}

	tests := []struct {
		name       string
		result     *ReportResult
		wantLabels []any
		wantValues []float64
	}{
		{
			name: "mixed numeric types",
			result: &ReportResult{
				Report:  bar,
				Columns: []string{"channel", "revenue"},
				Rows: [][]any{
					{"web", int64(120)},
					{"app", 80.5},
					{"email", "12.25"},
				},
			},
			wantLabels: []any{"web", "app", "email"},
			wantValues: []float64{120, 80.5, 12.25},
		},
		{
			name: "column names match case-insensitively",
			result: &ReportResult{
				Report:  bar,
				Columns: []string{"CHANNEL", "Revenue"},
				Rows:    [][]any{{"web", int32(3)}},
			},
			wantLabels: []any{"web"},
			wantValues: []float64{3},
		},
		{
			name: "non-numeric values are skipped",
			result: &ReportResult{
				Report:  bar,
				Columns: []string{"channel", "revenue"},
				Rows:    [][]any{{"web", nil}, {"app", "n/a"}, {"email", 7}},
			},
			wantLabels: []any{"email"},
			wantValues: []float64{7},
		},
		{
			name: "missing y column",
			result: &ReportResult{
				Report:  bar,
				Columns: []string{"channel", "orders"},
				Rows:    [][]any{{"web", 1}},
			},
		},
		{
			name: "table chart",
			result: &ReportResult{
				Report:  &core.Report{Name: "daily", Chart: core.ChartTable},
				Columns: []string{"channel", "revenue"},
				Rows:    [][]any{{"web", 1}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			labels, values := tt.result.Series()
			assert.Equal(t, tt.wantLabels, labels)
			assert.Equal(t, tt.wantValues, values)
		})
	}
}
