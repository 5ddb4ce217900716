package core

import "time"

// Store defines the interface for run-history and model-state persistence.
type Store interface {
	Open(path string) error
	Close() error
	InitSchema() error

	// Run operations
	CreateRun(env string, kind RunKind) (*Run, error)
	GetRun(id string) (*Run, error)
	CompleteRun(id string, status RunStatus, errMsg string) error
	GetLatestRun(env string) (*Run, error)
	ListRuns(limit int) ([]*Run, error)

	// Model operations
	RegisterModel(model *PersistedModel) error
	GetModelByID(id string) (*PersistedModel, error)
	GetModelByPath(path string) (*PersistedModel, error)
	UpdateModelHash(id string, contentHash string) error
	ListModels() ([]*PersistedModel, error)

	// Dependency operations
	SetDependencies(modelID string, parentIDs []string) error
	GetDependencies(modelID string) ([]string, error)
	GetDependents(modelID string) ([]string, error)

	// Model run operations
	RecordModelRun(modelRun *ModelRun) error
	UpdateModelRun(id string, status ModelRunStatus, rowsAffected int64, errMsg string) error
	GetModelRunsForRun(runID string) ([]*ModelRun, error)

	// Test result operations
	RecordTestResult(result *TestResult) error
	GetTestResultsForRun(runID string) ([]*TestResult, error)

	// Source load operations
	RecordSourceLoad(load *SourceLoad) error
	GetSourceLoadsForRun(runID string) ([]*SourceLoad, error)
}

// RunKind is the pipeline stage a run executed.
type RunKind string

// Run kinds.
const (
	RunKindRun   RunKind = "run"
	RunKindTest  RunKind = "test"
	RunKindLoad  RunKind = "load"
	RunKindBuild RunKind = "build"
)

// RunStatus represents the status of a pipeline run.
type RunStatus string

// Run status constants.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Run represents a pipeline execution session.
type Run struct {
	ID          string
	Environment string
	Kind        RunKind
	Status      RunStatus
	StartedAt   time.Time
	CompletedAt *time.Time
	Error       string
}

// ModelRunStatus represents the status of an individual model execution.
type ModelRunStatus string

// Model run status constants.
const (
	ModelRunStatusPending ModelRunStatus = "pending"
	ModelRunStatusRunning ModelRunStatus = "running"
	ModelRunStatusSuccess ModelRunStatus = "success"
	ModelRunStatusFailed  ModelRunStatus = "failed"
	ModelRunStatusSkipped ModelRunStatus = "skipped"
)

// PersistedModel represents a model stored in the state database.
type PersistedModel struct {
	*Model             // Embed core identity
	ID          string // Database primary key
	ContentHash string // For change detection
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ModelRun represents a single execution of a model within a run.
type ModelRun struct {
	ID           string
	RunID        string
	ModelID      string
	Status       ModelRunStatus
	RowsAffected int64
	StartedAt    time.Time
	CompletedAt  *time.Time
	Error        string
	RenderMS     int64
	ExecutionMS  int64
}

// TestResult is the persisted outcome of one data test.
type TestResult struct {
	ID         string
	RunID      string
	TestName   string
	Kind       TestKind
	Target     string
	Column     string
	Severity   TestSeverity
	Status     TestStatus
	Failures   int64
	SQL        string
	Error      string
	ExecutedAt time.Time
	DurationMS int64
}

// SourceLoad records one CSV loaded into the raw schema.
type SourceLoad struct {
	ID         string
	RunID      string
	Source     string
	Table      string
	FilePath   string
	Rows       int64
	LoadedAt   time.Time
	DurationMS int64
}
