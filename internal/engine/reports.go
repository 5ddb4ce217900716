package engine

import (
	"context"
	"fmt"
	"math/big"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/leapstack-labs/shopflow/internal/loader"
	"github.com/leapstack-labs/shopflow/internal/template"
	"github.com/leapstack-labs/shopflow/pkg/core"
)

// QueryResult holds the rows of an ad hoc query.
type QueryResult struct {
	Columns []string
	Rows    [][]any
}

// ReportResult is one executed report.
type ReportResult struct {
	Report   *core.Report
	Columns  []string
	Rows     [][]any
	Duration time.Duration
	SQL      string
}

// Series returns the X cells and numeric Y values of a bar chart report.
// Rows whose Y value is not numeric are left out. Non-bar reports and
// reports whose X or Y column is missing yield no points.
func (r *ReportResult) Series() (labels []any, values []float64) {
	if r.Report == nil || r.Report.Chart != core.ChartBar {
		return nil, nil
	}
	xi, yi := columnIndex(r.Columns, r.Report.X), columnIndex(r.Columns, r.Report.Y)
	if xi < 0 || yi < 0 {
		return nil, nil
	}
	for _, row := range r.Rows {
		v, ok := toFloat(row[yi])
		if !ok {
			continue
		}
		labels = append(labels, row[xi])
		values = append(values, v)
	}
	return labels, values
}

func columnIndex(columns []string, name string) int {
	for i, c := range columns {
		if strings.EqualFold(c, name) {
			return i
		}
	}
	return -1
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case int:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// ListReports parses the report files without running them.
func (e *Engine) ListReports() ([]*core.Report, error) {
	return loader.LoadReports(e.reportsDir)
}

// Reports renders and runs the named reports, or every report when names
// is empty. Results keep report order.
func (e *Engine) Reports(ctx context.Context, names []string) ([]*ReportResult, error) {
	if err := e.ensureDiscovered(); err != nil {
		return nil, err
	}
	reports, err := e.ListReports()
	if err != nil {
		return nil, err
	}
	selected, err := selectReports(reports, names)
	if err != nil {
		return nil, err
	}
	if err := e.ensureDBConnected(ctx); err != nil {
		return nil, err
	}

	results := make([]*ReportResult, 0, len(selected))
	for _, r := range selected {
		res, err := e.runReport(ctx, r)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

func (e *Engine) runReport(ctx context.Context, r *core.Report) (*ReportResult, error) {
	rendered, err := template.Render(r.Name, r.SQL, &template.Context{
		Dialect:  e.dialect,
		Target:   e.target,
		Vars:     e.vars,
		Resolver: e.registry,
	})
	if err != nil {
		return nil, err
	}

	start := time.Now()
	qr, err := e.Query(ctx, rendered.SQL)
	if err != nil {
		return nil, fmt.Errorf("report %s: %w", r.Name, err)
	}
	e.logger.Debug("report executed", "report", r.Name, "rows", len(qr.Rows))

	return &ReportResult{
		Report:   r,
		Columns:  qr.Columns,
		Rows:     qr.Rows,
		Duration: time.Since(start),
		SQL:      rendered.SQL,
	}, nil
}

func selectReports(reports []*core.Report, names []string) ([]*core.Report, error) {
	if len(names) == 0 {
		return reports, nil
	}

	byName := make(map[string]*core.Report, len(reports))
	available := make([]string, 0, len(reports))
	for _, r := range reports {
		byName[r.Name] = r
		available = append(available, r.Name)
	}

	selected := make([]*core.Report, 0, len(names))
	for _, name := range names {
		r, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("report %q not found (available: %s)", name, strings.Join(available, ", "))
		}
		selected = append(selected, r)
	}
	return selected, nil
}

// Query passes SQL straight to the warehouse.
func (e *Engine) Query(ctx context.Context, sql string) (*QueryResult, error) {
	if err := e.ensureDBConnected(ctx); err != nil {
		return nil, err
	}
	rows, err := e.db.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	result := &QueryResult{Columns: cols}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range values {
			values[i] = normalizeValue(v)
		}
		result.Rows = append(result.Rows, values)
	}
	return result, rows.Err()
}

// normalizeValue converts driver-specific values into plain Go values that
// render and encode predictably.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case nil, bool, string, int64, int32, int, float64, float32, time.Time:
		return val
	case []byte:
		return string(val)
	case *big.Int:
		if val.IsInt64() {
			return val.Int64()
		}
		return val.String()
	case interface{ Float64() float64 }:
		return val.Float64()
	case fmt.Stringer:
		return val.String()
	}

	// Decimal types often implement their accessors on the pointer.
	ptr := reflect.New(reflect.TypeOf(v))
	ptr.Elem().Set(reflect.ValueOf(v))
	switch p := ptr.Interface().(type) {
	case interface{ Float64() float64 }:
		return p.Float64()
	case fmt.Stringer:
		return p.String()
	}
	return fmt.Sprint(v)
}

// Describe returns column metadata for a warehouse table.
func (e *Engine) Describe(ctx context.Context, table string) (*core.TableMetadata, error) {
	if err := e.ensureDBConnected(ctx); err != nil {
		return nil, err
	}
	return e.db.GetTableMetadata(ctx, table)
}

// RenderModel resolves a model by name or path and returns its compiled SQL
// as a full run would execute it.
func (e *Engine) RenderModel(name string) (string, error) {
	if err := e.ensureDiscovered(); err != nil {
		return "", err
	}
	m, err := e.registry.Resolve(name)
	if err != nil {
		return "", err
	}
	rendered, err := template.RenderModel(m, &template.Context{
		Dialect:  e.dialect,
		Target:   e.target,
		Vars:     e.vars,
		Resolver: e.registry,
	})
	if err != nil {
		return "", err
	}
	return rendered.SQL, nil
}
