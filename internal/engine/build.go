package engine

import (
	"context"
	"fmt"

	"github.com/leapstack-labs/shopflow/pkg/core"
)

// BuildOptions controls a full load, run and test pass.
type BuildOptions struct {
	Select      []string
	FullRefresh bool
	Threads     int
	// SkipLoad reuses whatever is already in the raw schema.
	SkipLoad bool
	FailFast bool
	// OnModel is passed through to the model phase.
	OnModel func(*ModelResult)
}

// BuildResult is the outcome of Build.
type BuildResult struct {
	Run    *core.Run
	Loads  []*core.SourceLoad
	Models []*ModelResult
	Tests  *TestSummary
}

// Build loads sources, executes models and runs data tests as one run.
// Warn-severity test failures do not fail the build.
func (e *Engine) Build(ctx context.Context, opts BuildOptions) (*BuildResult, error) {
	if err := e.ensureDiscovered(); err != nil {
		return nil, err
	}
	if err := e.ensureDBConnected(ctx); err != nil {
		return nil, err
	}

	run, err := e.store.CreateRun(e.environment, core.RunKindBuild)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	e.logger.Info("starting build", "run_id", run.ID, "environment", e.environment)

	result := &BuildResult{}
	buildErr := e.build(ctx, run.ID, opts, result)
	result.Run = e.completeRun(run, buildErr)
	return result, buildErr
}

func (e *Engine) build(ctx context.Context, runID string, opts BuildOptions, result *BuildResult) error {
	if !opts.SkipLoad {
		loads, err := e.loadSources(ctx, runID, LoadOptions{})
		result.Loads = loads
		if err != nil {
			return fmt.Errorf("load: %w", err)
		}
	}

	models, err := e.runModels(ctx, runID, RunOptions{
		Select:      opts.Select,
		FullRefresh: opts.FullRefresh,
		Threads:     opts.Threads,
		OnModel:     opts.OnModel,
	})
	result.Models = models
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	tests, err := e.runTests(ctx, runID, TestOptions{
		Select:   opts.Select,
		FailFast: opts.FailFast,
		Threads:  opts.Threads,
	})
	if err != nil {
		return fmt.Errorf("test: %w", err)
	}
	result.Tests = tests
	return tests.Err()
}
