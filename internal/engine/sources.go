package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/leapstack-labs/shopflow/internal/template"
	"github.com/leapstack-labs/shopflow/pkg/adapter"
	"github.com/leapstack-labs/shopflow/pkg/core"
)

// LoadOptions selects which sources to load.
type LoadOptions struct {
	// Only limits loading to the named sources. Empty loads all.
	Only []string
}

// LoadResult is the outcome of loading sources.
type LoadResult struct {
	Run   *core.Run
	Loads []*core.SourceLoad
}

// MissingSourceFileError reports a declared source whose CSV file is absent.
type MissingSourceFileError struct {
	Source string
	Path   string
}

func (e *MissingSourceFileError) Error() string {
	return fmt.Sprintf("source %s: file %s not found (run `shopflow generate` first)", e.Source, e.Path)
}

// LoadSources bulk-loads every declared source CSV into the raw schema.
func (e *Engine) LoadSources(ctx context.Context, opts LoadOptions) (*LoadResult, error) {
	if err := e.ensureDiscovered(); err != nil {
		return nil, err
	}
	if err := e.ensureDBConnected(ctx); err != nil {
		return nil, err
	}

	run, err := e.store.CreateRun(e.environment, core.RunKindLoad)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	loads, loadErr := e.loadSources(ctx, run.ID, opts)
	return &LoadResult{Run: e.completeRun(run, loadErr), Loads: loads}, loadErr
}

func (e *Engine) loadSources(ctx context.Context, runID string, opts LoadOptions) ([]*core.SourceLoad, error) {
	sources, err := e.selectSources(opts.Only)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		e.logger.Warn("no sources declared", "file", filepath.Join(e.modelsDir, "sources.yml"))
		return nil, nil
	}

	// Check every file up front so a partial load never replaces good data.
	var missing []error
	for _, src := range sources {
		path := e.sourcePath(src)
		if _, err := os.Stat(path); err != nil {
			missing = append(missing, &MissingSourceFileError{Source: src.Name, Path: path})
		}
	}
	if len(missing) > 0 {
		return nil, errors.Join(missing...)
	}

	if err := e.ensureSchema(ctx, e.target.RawSchema()); err != nil {
		return nil, err
	}

	loads := make([]*core.SourceLoad, 0, len(sources))
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return loads, err
		}
		load, err := e.loadSource(ctx, runID, src)
		if err != nil {
			return loads, err
		}
		loads = append(loads, load)
	}
	return loads, nil
}

func (e *Engine) loadSource(ctx context.Context, runID string, src *core.Source) (*core.SourceLoad, error) {
	path := e.sourcePath(src)
	table := template.SourceRelation(e.target, src.Name)

	if len(src.Columns) > 0 {
		if err := checkSourceColumns(src, path); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	rows, err := e.db.LoadCSV(ctx, table, path)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", src.Name, err)
	}

	load := &core.SourceLoad{
		RunID:      runID,
		Source:     src.Name,
		Table:      table,
		FilePath:   path,
		Rows:       rows,
		LoadedAt:   time.Now().UTC(),
		DurationMS: time.Since(start).Milliseconds(),
	}
	if err := e.store.RecordSourceLoad(load); err != nil {
		return nil, fmt.Errorf("failed to record load of %s: %w", src.Name, err)
	}

	e.logger.Info("source loaded", "source", src.Name, "table", table, "rows", rows, "duration_ms", load.DurationMS)
	return load, nil
}

func (e *Engine) sourcePath(src *core.Source) string {
	if filepath.IsAbs(src.File) {
		return src.File
	}
	return filepath.Join(e.dataDir, src.File)
}

func (e *Engine) selectSources(only []string) ([]*core.Source, error) {
	all := e.registry.AllSources()
	if len(only) == 0 {
		return all, nil
	}

	var selected []*core.Source
	for _, name := range only {
		src, ok := e.registry.Source(name)
		if !ok {
			return nil, fmt.Errorf("unknown source %q", name)
		}
		selected = append(selected, src)
	}
	return selected, nil
}

// checkSourceColumns verifies that the CSV header carries every declared column.
func checkSourceColumns(src *core.Source, path string) error {
	info, err := adapter.InspectCSV(path)
	if err != nil {
		return fmt.Errorf("source %s: %w", src.Name, err)
	}

	have := make(map[string]bool, len(info.Header))
	for _, h := range info.Header {
		have[adapter.SanitizeIdentifier(h)] = true
	}

	var absent []string
	for _, col := range src.Columns {
		if !have[adapter.SanitizeIdentifier(col)] {
			absent = append(absent, col)
		}
	}
	if len(absent) > 0 {
		return fmt.Errorf("source %s: %s is missing columns: %s", src.Name, path, strings.Join(absent, ", "))
	}
	return nil
}
