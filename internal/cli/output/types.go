package output

import "time"

// RunEvent is one line of the `run --json` event stream.
type RunEvent struct {
	Event      string    `json:"event"` // run_start, model_done, run_end
	Timestamp  time.Time `json:"timestamp"`
	RunID      string    `json:"run_id,omitempty"`
	Model      string    `json:"model,omitempty"`
	Status     string    `json:"status,omitempty"`
	Rows       int64     `json:"rows,omitempty"`
	DurationMS int64     `json:"duration_ms,omitempty"`
	Error      string    `json:"error,omitempty"`
	Succeeded  int       `json:"succeeded,omitempty"`
	Failed     int       `json:"failed,omitempty"`
	Skipped    int       `json:"skipped,omitempty"`
}

// ModelResultOutput is one model of a run summary.
type ModelResultOutput struct {
	Path         string `json:"path"`
	Materialized string `json:"materialized"`
	Status       string `json:"status"`
	Rows         int64  `json:"rows"`
	DurationMS   int64  `json:"duration_ms"`
	Error        string `json:"error,omitempty"`
}

// SourceLoadOutput is one loaded source.
type SourceLoadOutput struct {
	Source     string `json:"source"`
	Table      string `json:"table"`
	File       string `json:"file"`
	Rows       int64  `json:"rows"`
	DurationMS int64  `json:"duration_ms"`
}

// TestResultOutput is one data test outcome.
type TestResultOutput struct {
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	Target   string `json:"target"`
	Column   string `json:"column,omitempty"`
	Severity string `json:"severity"`
	Status   string `json:"status"`
	Failures int64  `json:"failures"`
	Error    string `json:"error,omitempty"`
}

// TestSummaryOutput is the JSON form of `shopflow test`.
type TestSummaryOutput struct {
	RunID   string             `json:"run_id"`
	Passed  int                `json:"passed"`
	Failed  int                `json:"failed"`
	Warned  int                `json:"warned"`
	Errored int                `json:"errored"`
	Results []TestResultOutput `json:"results"`
}

// BuildOutput is the JSON form of `shopflow build`.
type BuildOutput struct {
	RunID  string              `json:"run_id"`
	Status string              `json:"status"`
	Loads  []SourceLoadOutput  `json:"loads"`
	Models []ModelResultOutput `json:"models"`
	Tests  *TestSummaryOutput  `json:"tests,omitempty"`
}

// LoadOutput is the JSON form of `shopflow load`.
type LoadOutput struct {
	RunID string             `json:"run_id"`
	Loads []SourceLoadOutput `json:"loads"`
}

// ModelInfo describes a model in `shopflow list`.
type ModelInfo struct {
	Path         string   `json:"path"`
	Name         string   `json:"name"`
	Layer        string   `json:"layer"`
	Materialized string   `json:"materialized"`
	UniqueKey    string   `json:"unique_key,omitempty"`
	Description  string   `json:"description,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	DependsOn    []string `json:"depends_on"`
	Sources      []string `json:"sources,omitempty"`
	Tests        int      `json:"tests"`
}

// ListOutput is the JSON form of `shopflow list`.
type ListOutput struct {
	Models  []ModelInfo `json:"models"`
	Sources []string    `json:"sources"`
}

// DAGOutput is the JSON form of `shopflow dag`.
type DAGOutput struct {
	Levels   [][]string    `json:"levels"`
	Edges    []DAGEdge     `json:"edges"`
	Warnings []DAGWarning  `json:"warnings,omitempty"`
	Stats    DAGStatistics `json:"stats"`
}

// DAGEdge is a dependency edge, parent feeds child.
type DAGEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// DAGWarning is a layer-order violation.
type DAGWarning struct {
	Model   string `json:"model"`
	Depends string `json:"depends_on"`
	Message string `json:"message"`
}

// DAGStatistics summarises the graph.
type DAGStatistics struct {
	Models int `json:"models"`
	Edges  int `json:"edges"`
	Levels int `json:"levels"`
}

// ReportOutput is one report result.
type ReportOutput struct {
	Name       string   `json:"name"`
	Title      string   `json:"title"`
	Chart      string   `json:"chart"`
	Columns    []string `json:"columns"`
	Rows       [][]any  `json:"rows"`
	DurationMS int64    `json:"duration_ms"`
}

// QueryOutput is the JSON form of a one-shot query.
type QueryOutput struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
	Count   int      `json:"count"`
}

// RunHistoryEntry is one row of `shopflow runs`.
type RunHistoryEntry struct {
	ID          string     `json:"id"`
	Environment string     `json:"environment"`
	Kind        string     `json:"kind"`
	Status      string     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// GenerateOutput is the JSON form of `shopflow generate`.
type GenerateOutput struct {
	Seed        uint64           `json:"seed"`
	Sink        string           `json:"sink"`
	Target      string           `json:"target"`
	Tables      []GeneratedTable `json:"tables"`
	Noise       map[string]int   `json:"noise"`
	SCDVersions int              `json:"scd_versions"`
}

// GeneratedTable is one written table.
type GeneratedTable struct {
	Name     string `json:"name"`
	Location string `json:"location"`
	Rows     int    `json:"rows"`
	SHA256   string `json:"sha256"`
}
