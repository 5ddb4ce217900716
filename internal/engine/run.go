package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/shopflow/internal/dag"
	"github.com/leapstack-labs/shopflow/internal/template"
	"github.com/leapstack-labs/shopflow/pkg/adapter"
	"github.com/leapstack-labs/shopflow/pkg/core"
)

// RunOptions controls which models execute and how.
type RunOptions struct {
	// Select holds selectors (name, path, layer:x, tag:x, +name, name+).
	// Empty selects every model.
	Select []string
	// Downstream adds every model downstream of the selection.
	Downstream bool
	// FullRefresh rebuilds incremental models from scratch.
	FullRefresh bool
	// Threads bounds concurrency within a level; 0 uses the engine default.
	Threads int
	// OnModel, when set, is called once per executed or skipped model as
	// soon as its outcome is known. Calls are serialized.
	OnModel func(*ModelResult)
}

// ModelResult is the outcome of one model within a run.
type ModelResult struct {
	Path         string
	Materialized string
	Status       core.ModelRunStatus
	Rows         int64
	Duration     time.Duration
	Error        string
}

// RunResult is the outcome of Run.
type RunResult struct {
	Run    *core.Run
	Models []*ModelResult
}

// Count returns how many models finished with status.
func (r *RunResult) Count(status core.ModelRunStatus) int {
	n := 0
	for _, m := range r.Models {
		if m.Status == status {
			n++
		}
	}
	return n
}

// ModelError is a failure of a single model.
type ModelError struct {
	Path string
	Err  error
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("model %s: %v", e.Path, e.Err)
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

// plannedModel is a model that rendered successfully in phase 1.
type plannedModel struct {
	model       *core.Model
	sql         string
	incremental bool
	runID       string // model_runs row
	result      *ModelResult
}

// Run executes the selected models in dependency order.
func (e *Engine) Run(ctx context.Context, opts RunOptions) (*RunResult, error) {
	if err := e.ensureDiscovered(); err != nil {
		return nil, err
	}
	if err := e.ensureDBConnected(ctx); err != nil {
		return nil, err
	}

	run, err := e.store.CreateRun(e.environment, core.RunKindRun)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	e.logger.Info("starting run", "run_id", run.ID, "environment", e.environment)

	models, runErr := e.runModels(ctx, run.ID, opts)
	return &RunResult{Run: e.completeRun(run, runErr), Models: models}, runErr
}

func (e *Engine) runModels(ctx context.Context, runID string, opts RunOptions) ([]*ModelResult, error) {
	graph, err := e.selection(opts.Select, opts.Downstream)
	if err != nil {
		return nil, err
	}
	levels, err := graph.GetExecutionLevels()
	if err != nil {
		return nil, err
	}

	plan, results, err := e.renderPhase(ctx, runID, graph, levels, opts.FullRefresh)
	if err != nil {
		return results, err
	}

	threads := opts.Threads
	if threads < 1 {
		threads = e.threads
	}
	return results, e.executePhase(ctx, graph, levels, plan, threads, notifier(opts.OnModel))
}

// notifier serializes calls to fn. A nil fn yields a no-op.
func notifier(fn func(*ModelResult)) func(*ModelResult) {
	if fn == nil {
		return func(*ModelResult) {}
	}
	var mu sync.Mutex
	return func(r *ModelResult) {
		mu.Lock()
		defer mu.Unlock()
		fn(r)
	}
}

// selection returns the subgraph of the models chosen by selectors.
func (e *Engine) selection(selectors []string, downstream bool) (*dag.Graph, error) {
	ids, err := e.graph.Select(selectors)
	if err != nil {
		return nil, err
	}
	if downstream {
		ids = e.graph.GetAffectedNodes(ids)
	}
	return e.graph.Subgraph(ids), nil
}

// renderPhase renders every selected model before anything executes. The
// first render error aborts the run: the failing model is recorded as
// failed and the rest as skipped.
func (e *Engine) renderPhase(
	ctx context.Context, runID string, graph *dag.Graph, levels [][]string, fullRefresh bool,
) (map[string]*plannedModel, []*ModelResult, error) {
	plan := make(map[string]*plannedModel, graph.NodeCount())
	var results []*ModelResult
	var renderErr error

	for _, level := range levels {
		for _, id := range level {
			node, _ := graph.GetNode(id)
			m := node.Model
			result := &ModelResult{Path: m.Path, Materialized: m.Materialized, Status: core.ModelRunStatusPending}
			results = append(results, result)

			if renderErr != nil {
				result.Status = core.ModelRunStatusSkipped
				result.Error = "run aborted by render error"
				continue
			}

			start := time.Now()
			sql, incremental, err := e.renderForRun(ctx, m, fullRefresh)
			renderMS := time.Since(start).Milliseconds()
			if err != nil {
				result.Status = core.ModelRunStatusFailed
				result.Error = err.Error()
				renderErr = &ModelError{Path: m.Path, Err: err}
				e.logger.Error("model render failed", "model", m.Path, "error", err)
				continue
			}

			plan[id] = &plannedModel{model: m, sql: sql, incremental: incremental, result: result}
			plan[id].result.Duration = time.Duration(renderMS) * time.Millisecond
			if err := e.recordPending(runID, plan[id], renderMS); err != nil {
				return nil, results, err
			}
		}
	}

	if renderErr != nil {
		e.recordAborted(runID, results, plan)
		return nil, results, renderErr
	}
	return plan, results, nil
}

// renderForRun renders a model with ref/source resolution and decides
// whether it runs incrementally.
func (e *Engine) renderForRun(ctx context.Context, m *core.Model, fullRefresh bool) (string, bool, error) {
	incremental := false
	if m.Materialized == core.MaterializationIncremental && !fullRefresh {
		rt, err := e.db.RelationType(ctx, e.target.LayerSchema(m.Layer), m.Name)
		if err != nil {
			return "", false, fmt.Errorf("failed to inspect %s: %w", m.Path, err)
		}
		incremental = rt == adapter.RelationTable
	}

	rendered, err := template.RenderModel(m, &template.Context{
		Dialect:     e.dialect,
		Target:      e.target,
		Vars:        e.vars,
		Resolver:    e.registry,
		Incremental: incremental,
	})
	if err != nil {
		return "", false, err
	}
	return rendered.SQL, incremental, nil
}

func (e *Engine) recordPending(runID string, p *plannedModel, renderMS int64) error {
	modelID, err := e.modelID(p.model)
	if err != nil {
		return err
	}
	mr := &core.ModelRun{
		RunID:    runID,
		ModelID:  modelID,
		Status:   core.ModelRunStatusPending,
		RenderMS: renderMS,
	}
	if err := e.store.RecordModelRun(mr); err != nil {
		return fmt.Errorf("failed to record model run for %s: %w", p.model.Path, err)
	}
	p.runID = mr.ID
	return nil
}

// recordAborted persists the outcome of a run that stopped during rendering.
func (e *Engine) recordAborted(runID string, results []*ModelResult, plan map[string]*plannedModel) {
	for _, r := range results {
		if p, ok := plan[r.Path]; ok && p.runID != "" {
			r.Status = core.ModelRunStatusSkipped
			r.Error = "run aborted by render error"
			e.finishModelRun(p.runID, core.ModelRunStatusSkipped, 0, "run aborted by render error")
			continue
		}
		m, ok := e.models[r.Path]
		if !ok {
			continue
		}
		modelID, err := e.modelID(m)
		if err != nil {
			e.logger.Warn("failed to register model", "model", r.Path, "error", err)
			continue
		}
		mr := &core.ModelRun{RunID: runID, ModelID: modelID, Status: r.Status, Error: r.Error}
		if err := e.store.RecordModelRun(mr); err != nil {
			e.logger.Warn("failed to record model run", "model", r.Path, "error", err)
			continue
		}
		e.finishModelRun(mr.ID, r.Status, 0, r.Error)
	}
}

// executePhase runs the plan level by level. Within a level at most
// threads models execute at once. Models downstream of a failure are skipped.
func (e *Engine) executePhase(
	ctx context.Context, graph *dag.Graph, levels [][]string, plan map[string]*plannedModel, threads int,
	notify func(*ModelResult),
) error {
	var (
		mu     sync.Mutex
		broken = make(map[string]string) // path -> reason
		errs   []error
	)

	for i, level := range levels {
		e.logger.Debug("executing level", "level", i, "models", len(level), "threads", threads)

		var g errgroup.Group
		g.SetLimit(threads)

		for _, id := range level {
			p := plan[id]

			mu.Lock()
			reason := upstreamFailure(graph.GetParents(id), broken)
			if reason == "" && ctx.Err() != nil {
				reason = "run cancelled"
			}
			if reason != "" {
				broken[id] = reason
				mu.Unlock()
				p.result.Status = core.ModelRunStatusSkipped
				p.result.Error = reason
				e.finishModelRun(p.runID, core.ModelRunStatusSkipped, 0, reason)
				e.logger.Warn("model skipped", "model", id, "reason", reason)
				notify(p.result)
				continue
			}
			mu.Unlock()

			g.Go(func() error {
				err := e.executeModel(ctx, p)
				if err != nil {
					mu.Lock()
					broken[id] = "upstream model " + id + " failed"
					errs = append(errs, err)
					mu.Unlock()
				}
				notify(p.result)
				return nil
			})
		}
		_ = g.Wait()
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if len(errs) > 0 {
		return fmt.Errorf("%d model(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}

// upstreamFailure returns the skip reason of the first broken parent.
func upstreamFailure(parents []string, broken map[string]string) string {
	for _, parent := range parents {
		if reason, ok := broken[parent]; ok {
			if reason == "run cancelled" {
				return reason
			}
			return "upstream model " + parent + " did not complete"
		}
	}
	return ""
}

func (e *Engine) executeModel(ctx context.Context, p *plannedModel) error {
	m := p.model
	start := time.Now()
	e.logger.Debug("executing model", "model", m.Path, "materialized", m.Materialized, "incremental", p.incremental)

	rows, err := e.materialize(ctx, m, p.sql, p.incremental)
	p.result.Duration += time.Since(start)

	if err != nil {
		p.result.Status = core.ModelRunStatusFailed
		p.result.Error = err.Error()
		e.finishModelRun(p.runID, core.ModelRunStatusFailed, 0, err.Error())
		e.logger.Error("model failed", "model", m.Path, "error", err)
		return &ModelError{Path: m.Path, Err: err}
	}

	p.result.Status = core.ModelRunStatusSuccess
	p.result.Rows = rows
	e.finishModelRun(p.runID, core.ModelRunStatusSuccess, rows, "")
	e.logger.Info("model completed", "model", m.Path, "rows", rows, "duration_ms", p.result.Duration.Milliseconds())
	return nil
}

func (e *Engine) finishModelRun(id string, status core.ModelRunStatus, rows int64, errMsg string) {
	if id == "" {
		return
	}
	if err := e.store.UpdateModelRun(id, status, rows, errMsg); err != nil {
		e.logger.Warn("failed to update model run", "id", id, "error", err)
	}
}
