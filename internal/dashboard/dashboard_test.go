package dashboard

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/shopflow/internal/engine"
	"github.com/leapstack-labs/shopflow/internal/testutil"
	"github.com/leapstack-labs/shopflow/pkg/core"
)

type fakeReports struct {
	reports []*core.Report
	results map[string]*engine.ReportResult
	err     error
}

func (f *fakeReports) ListReports() ([]*core.Report, error) {
	return f.reports, nil
}

func (f *fakeReports) Reports(_ context.Context, names []string) ([]*engine.ReportResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []*engine.ReportResult
	for _, n := range names {
		out = append(out, f.results[n])
	}
	return out, nil
}

type fakeRuns []*core.Run

func (f fakeRuns) ListRuns(int) ([]*core.Run, error) { return f, nil }

func newFake() *fakeReports {
	revenue := &core.Report{Name: "revenue_by_channel", Title: "Revenue by channel", Chart: core.ChartBar, X: "channel", Y: "revenue"}
	cohorts := &core.Report{Name: "cohorts", Title: "Cohorts <monthly>", Chart: core.ChartTable}
	return &fakeReports{
		reports: []*core.Report{revenue, cohorts},
		results: map[string]*engine.ReportResult{
			"revenue_by_channel": {
				Report:   revenue,
				Columns:  []string{"channel", "revenue"},
				Rows:     [][]any{{"email", 50.0}, {"organic", 200.0}, {"paid", nil}},
				Duration: 3 * time.Millisecond,
			},
			"cohorts": {
				Report:  cohorts,
				Columns: []string{"month", "customers"},
				Rows:    [][]any{{time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), int64(12)}},
			},
		},
	}
}

func newTestServer(t *testing.T, reports ReportRunner, runs RunLister) http.Handler {
	t.Helper()
	return New(reports, Config{Port: 0, Runs: runs, Logger: testutil.NewTestLogger(t)}).Handler()
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestRoutes(t *testing.T) {
	h := newTestServer(t, newFake(), fakeRuns{
		{ID: "run-1", Kind: core.RunKindBuild, Environment: "dev", Status: core.RunStatusFailed, Error: "1 model(s) failed"},
	})

	tests := []struct {
		name        string
		path        string
		status      int
		contentType string
		contains    []string
	}{
		{
			name:        "health",
			path:        "/healthz",
			status:      http.StatusOK,
			contentType: "text/plain",
			contains:    []string{"ok"},
		},
		{
			name:        "index lists reports",
			path:        "/",
			status:      http.StatusOK,
			contentType: "text/html",
			contains:    []string{`href="/reports/revenue_by_channel"`, "Revenue by channel", "Cohorts &lt;monthly&gt;"},
		},
		{
			name:        "bar report",
			path:        "/reports/revenue_by_channel",
			status:      http.StatusOK,
			contentType: "text/html",
			contains:    []string{`class="bar" style="width: 25%"`, `style="width: 100%"`, "<td>organic</td>", "<td>200</td>"},
		},
		{
			name:        "table report",
			path:        "/reports/cohorts",
			status:      http.StatusOK,
			contentType: "text/html",
			contains:    []string{"<td>2024-01-01</td>", "<td>12</td>"},
		},
		{
			name:   "unknown report",
			path:   "/reports/nope",
			status: http.StatusNotFound,
		},
		{
			name:        "runs page",
			path:        "/runs",
			status:      http.StatusOK,
			contentType: "text/html",
			contains:    []string{"run-1", `class="status-failed"`, "1 model(s) failed"},
		},
		{
			name:        "api unknown report",
			path:        "/api/reports/nope",
			status:      http.StatusNotFound,
			contentType: "application/json",
			contains:    []string{`"error"`},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, h, tt.path)
			assert.Equal(t, tt.status, rec.Code)
			if tt.contentType != "" {
				assert.Contains(t, rec.Header().Get("Content-Type"), tt.contentType)
			}
			for _, want := range tt.contains {
				assert.Contains(t, rec.Body.String(), want)
			}
		})
	}
}

func TestAPIReport(t *testing.T) {
	h := newTestServer(t, newFake(), nil)

	rec := get(t, h, "/api/reports/revenue_by_channel")
	require.Equal(t, http.StatusOK, rec.Code)

	var body reportJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "revenue_by_channel", body.Name)
	assert.Equal(t, []string{"channel", "revenue"}, body.Columns)
	require.Len(t, body.Rows, 3)
	assert.Equal(t, "email", body.Rows[0][0])
	assert.InDelta(t, 50.0, body.Rows[0][1], 0.001)
	assert.Equal(t, int64(3), body.DurationMS)

	rec = get(t, h, "/api/reports")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []reportJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 2)
	assert.Empty(t, list[0].Rows)
}

func TestReportError(t *testing.T) {
	fake := newFake()
	fake.err = errors.New("catalog error: table gold.gld_revenue does not exist")
	h := newTestServer(t, fake, nil)

	rec := get(t, h, "/reports/revenue_by_channel")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "does not exist")

	rec = get(t, h, "/api/reports/revenue_by_channel")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
}

func TestRunsPageDisabledWithoutStore(t *testing.T) {
	h := newTestServer(t, newFake(), nil)
	assert.Equal(t, http.StatusNotFound, get(t, h, "/runs").Code)
}

func TestChartBars(t *testing.T) {
	res := newFake().results["revenue_by_channel"]
	bars := chartBars(res)

	require.Len(t, bars, 2, "rows with non-numeric values are skipped")
	assert.Equal(t, bar{Label: "email", Value: "50", Width: 25}, bars[0])
	assert.Equal(t, bar{Label: "organic", Value: "200", Width: 100}, bars[1])

	assert.Nil(t, chartBars(newFake().results["cohorts"]))
}

func TestServe_GracefulShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := New(newFake(), Config{Logger: testutil.NewTestLogger(t)})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/healthz"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url) //nolint:noctx // test
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestLayoutRefresh(t *testing.T) {
	h := New(newFake(), Config{Refresh: 30 * time.Second}).Handler()
	body := get(t, h, "/reports/cohorts").Body.String()
	assert.True(t, strings.Contains(body, `http-equiv="refresh" content="30"`))
}
