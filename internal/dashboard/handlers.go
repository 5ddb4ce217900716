package dashboard

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"

	"github.com/leapstack-labs/shopflow/internal/engine"
	"github.com/leapstack-labs/shopflow/pkg/core"
)

const recentRuns = 25

var errReportNotFound = errors.New("report not found")

// reportJSON is the API form of a report result.
type reportJSON struct {
	Name        string   `json:"name"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Chart       string   `json:"chart"`
	X           string   `json:"x,omitempty"`
	Y           string   `json:"y,omitempty"`
	Columns     []string `json:"columns,omitempty"`
	Rows        [][]any  `json:"rows,omitempty"`
	DurationMS  int64    `json:"duration_ms,omitempty"`
}

func (s *Server) layout(title string) layoutData {
	return layoutData{Title: title, Refresh: int(s.refresh.Seconds())}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	reports, err := s.reports.ListReports()
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	s.html(w, r, s.pages.index, indexData{
		layoutData: layoutData{Title: "Reports"},
		Reports:    reports,
		Runs:       s.runs != nil,
	})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	res, err := s.runReport(r)
	if err != nil {
		s.reportError(w, r, err)
		return
	}
	s.html(w, r, s.pages.report, reportData{
		layoutData: s.layout(res.Report.Title),
		Result:     res,
		Bars:       chartBars(res),
	})
}

func (s *Server) handleAPIReports(w http.ResponseWriter, r *http.Request) {
	reports, err := s.reports.ListReports()
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	out := make([]reportJSON, 0, len(reports))
	for _, rep := range reports {
		out = append(out, reportJSON{
			Name:        rep.Name,
			Title:       rep.Title,
			Description: rep.Description,
			Chart:       rep.Chart,
			X:           rep.X,
			Y:           rep.Y,
		})
	}
	s.json(w, http.StatusOK, out)
}

func (s *Server) handleAPIReport(w http.ResponseWriter, r *http.Request) {
	res, err := s.runReport(r)
	if err != nil {
		if errors.Is(err, errReportNotFound) {
			s.json(w, http.StatusNotFound, map[string]string{"error": err.Error()})
			return
		}
		s.logger.Error("report failed", "path", r.URL.Path, "error", err, "request_id", middleware.GetReqID(r.Context()))
		s.json(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	rep := res.Report
	s.json(w, http.StatusOK, reportJSON{
		Name:        rep.Name,
		Title:       rep.Title,
		Description: rep.Description,
		Chart:       rep.Chart,
		X:           rep.X,
		Y:           rep.Y,
		Columns:     res.Columns,
		Rows:        res.Rows,
		DurationMS:  res.Duration.Milliseconds(),
	})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.runs.ListRuns(recentRuns)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	s.html(w, r, s.pages.runs, runsData{layoutData: s.layout("Runs"), Runs: runs})
}

// runReport executes the report named in the URL.
func (s *Server) runReport(r *http.Request) (*engine.ReportResult, error) {
	name := chi.URLParam(r, "name")

	reports, err := s.reports.ListReports()
	if err != nil {
		return nil, err
	}
	if !slices.ContainsFunc(reports, func(rep *core.Report) bool { return rep.Name == name }) {
		return nil, fmt.Errorf("%w: %s", errReportNotFound, name)
	}

	results, err := s.reports.Reports(r.Context(), []string{name})
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("%w: %s", errReportNotFound, name)
	}
	return results[0], nil
}

func (s *Server) reportError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, errReportNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	s.serverError(w, r, err)
}

func (s *Server) serverError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("request failed", "path", r.URL.Path, "error", err, "request_id", middleware.GetReqID(r.Context()))
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func (s *Server) html(w http.ResponseWriter, r *http.Request, page *template.Template, data any) {
	var buf bytes.Buffer
	if err := s.pages.render(&buf, page, data); err != nil {
		s.serverError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

func (s *Server) json(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
