// Package engine orchestrates the pipeline: it discovers models, loads raw
// sources into the warehouse, executes models in dependency order, runs
// data tests and report queries, and records everything in the state store.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/leapstack-labs/shopflow/internal/dag"
	"github.com/leapstack-labs/shopflow/internal/registry"
	"github.com/leapstack-labs/shopflow/internal/state"
	"github.com/leapstack-labs/shopflow/pkg/adapter"
	"github.com/leapstack-labs/shopflow/pkg/core"
	"github.com/leapstack-labs/shopflow/pkg/dialect"
)

// Engine orchestrates the execution of SQL models.
type Engine struct {
	// Warehouse adapter (lazy initialized)
	db          adapter.Adapter
	dbConnected bool
	dbMu        sync.Mutex

	// dialect is resolved from the target type; no connection needed.
	dialect *dialect.Dialect

	logger *slog.Logger
	store  core.Store

	modelsDir   string
	dataDir     string
	reportsDir  string
	environment string
	target      *core.TargetConfig
	vars        map[string]any
	threads     int

	schemaMu sync.Mutex
	schemas  map[string]bool

	discovered bool
	graph      *dag.Graph
	models     map[string]*core.Model
	modelIDs   map[string]string
	registry   *registry.ModelRegistry
}

// Config holds engine configuration.
type Config struct {
	// ModelsDir contains <layer>/<model>.sql files and sources.yml.
	ModelsDir string
	// DataDir contains the CSV files referenced by sources.
	DataDir string
	// ReportsDir contains report queries.
	ReportsDir string
	// StatePath is the path to the SQLite state database.
	StatePath string
	// Environment is the current environment (dev, ci, prod).
	Environment string
	// Target is the warehouse to run against.
	Target *core.TargetConfig
	// Vars are exposed to templates through var.
	Vars map[string]any
	// Threads bounds concurrent model and test execution (default 1).
	Threads int
	// Logger is the structured logger (optional, uses discard if nil).
	Logger *slog.Logger
}

// New creates an engine. The state store is opened and migrated
// immediately; the warehouse connects on first use.
func New(cfg Config) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	target := cfg.Target
	if target == nil {
		target = &core.TargetConfig{Type: "duckdb"}
	}
	if target.Type == "" {
		target.Type = "duckdb"
	}
	if !adapter.IsRegistered(target.Type) {
		return nil, &adapter.UnknownAdapterError{Type: target.Type, Available: adapter.ListAdapters()}
	}
	d, ok := dialect.Get(target.Type)
	if !ok {
		return nil, fmt.Errorf("dialect %q not found for target type %q", target.Type, target.Type)
	}

	env := cfg.Environment
	if env == "" {
		env = "dev"
	}
	threads := cfg.Threads
	if threads < 1 {
		threads = 1
	}

	logger.Debug("initializing engine", "models_dir", cfg.ModelsDir, "environment", env, "target", target.Type)

	statePath := cfg.StatePath
	if statePath == "" {
		statePath = ":memory:"
	}
	store := state.NewSQLiteStore()
	if err := store.Open(statePath); err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}
	if err := store.InitSchema(); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize state schema: %w", err)
	}

	return &Engine{
		dialect:     d,
		logger:      logger,
		store:       store,
		modelsDir:   cfg.ModelsDir,
		dataDir:     cfg.DataDir,
		reportsDir:  cfg.ReportsDir,
		environment: env,
		target:      target,
		vars:        cfg.Vars,
		threads:     threads,
		schemas:     make(map[string]bool),
		graph:       dag.NewGraph(),
		models:      make(map[string]*core.Model),
		modelIDs:    make(map[string]string),
		registry:    registry.NewModelRegistry(),
	}, nil
}

// ensureDBConnected lazily connects to the warehouse.
func (e *Engine) ensureDBConnected(ctx context.Context) error {
	e.dbMu.Lock()
	defer e.dbMu.Unlock()

	if e.dbConnected {
		return nil
	}

	cfg := e.target.AdapterConfig()
	e.logger.Debug("connecting to warehouse", "adapter_type", cfg.Type)

	db, err := adapter.NewAdapter(cfg, e.logger)
	if err != nil {
		return fmt.Errorf("failed to create warehouse adapter: %w", err)
	}
	if err := db.Connect(ctx, cfg); err != nil {
		return fmt.Errorf("failed to connect to warehouse: %w", err)
	}

	e.db = db
	e.dialect = db.Dialect()
	e.dbConnected = true
	e.logger.Debug("warehouse connected", "dialect", e.dialect.Name)
	return nil
}

// ensureSchema creates schema once per connection.
func (e *Engine) ensureSchema(ctx context.Context, schema string) error {
	e.schemaMu.Lock()
	defer e.schemaMu.Unlock()

	if e.schemas[schema] {
		return nil
	}
	if err := e.db.Exec(ctx, e.dialect.CreateSchema(schema)); err != nil {
		return fmt.Errorf("failed to create schema %s: %w", schema, err)
	}
	e.schemas[schema] = true
	return nil
}

// completeRun finalizes a run, logging rather than returning store errors
// so the caller's error is preserved.
func (e *Engine) completeRun(run *core.Run, runErr error) *core.Run {
	status, msg := core.RunStatusCompleted, ""
	switch {
	case errors.Is(runErr, context.Canceled):
		status, msg = core.RunStatusCancelled, runErr.Error()
	case runErr != nil:
		status, msg = core.RunStatusFailed, runErr.Error()
	}
	if err := e.store.CompleteRun(run.ID, status, msg); err != nil {
		e.logger.Warn("failed to complete run", "run_id", run.ID, "error", err)
		return run
	}
	if updated, err := e.store.GetRun(run.ID); err == nil {
		return updated
	}
	return run
}

// Close releases the warehouse connection and the state store.
func (e *Engine) Close() error {
	e.logger.Debug("closing engine")

	var errs []error
	if e.db != nil {
		if err := e.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close warehouse: %w", err))
		}
	}
	if e.store != nil {
		if err := e.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close state store: %w", err))
		}
	}
	return errors.Join(errs...)
}

// --- Getters ---

// Graph returns the dependency graph of the last discovery.
func (e *Engine) Graph() *dag.Graph {
	return e.graph
}

// Models returns discovered models ordered by path.
func (e *Engine) Models() []*core.Model {
	models := make([]*core.Model, 0, len(e.models))
	for _, m := range e.models {
		models = append(models, m)
	}
	sort.Slice(models, func(i, j int) bool { return models[i].Path < models[j].Path })
	return models
}

// Sources returns declared sources ordered by name.
func (e *Engine) Sources() []*core.Source {
	return e.registry.AllSources()
}

// Store returns the state store.
func (e *Engine) Store() core.Store {
	return e.store
}

// Dialect returns the SQL dialect of the target.
func (e *Engine) Dialect() *dialect.Dialect {
	return e.dialect
}

// Target returns the warehouse target.
func (e *Engine) Target() *core.TargetConfig {
	return e.target
}

// Environment returns the environment runs are recorded under.
func (e *Engine) Environment() string {
	return e.environment
}
