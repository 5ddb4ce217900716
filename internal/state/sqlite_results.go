package state

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/leapstack-labs/shopflow/pkg/core"
)

// RecordModelRun records a model execution within a run.
func (s *SQLiteStore) RecordModelRun(modelRun *core.ModelRun) error {
	if s.db == nil {
		return ErrNotOpened
	}

	if modelRun.ID == "" {
		modelRun.ID = generateID()
	}
	if modelRun.StartedAt.IsZero() {
		modelRun.StartedAt = time.Now().UTC()
	}
	if modelRun.Status == "" {
		modelRun.Status = core.ModelRunStatusPending
	}

	var completedAt sql.NullString
	if modelRun.CompletedAt != nil {
		completedAt = sql.NullString{String: formatTime(*modelRun.CompletedAt), Valid: true}
	}

	_, err := s.db.ExecContext(ctx(), `
		INSERT INTO model_runs (id, run_id, model_id, status, rows_affected, started_at,
			completed_at, error, render_ms, execution_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		modelRun.ID, modelRun.RunID, modelRun.ModelID, string(modelRun.Status), modelRun.RowsAffected,
		formatTime(modelRun.StartedAt), completedAt, nullableString(modelRun.Error),
		modelRun.RenderMS, modelRun.ExecutionMS,
	)
	if err != nil {
		return fmt.Errorf("failed to record model run: %w", err)
	}
	return nil
}

// UpdateModelRun finalizes a model run. Execution time is measured from
// the recorded start.
func (s *SQLiteStore) UpdateModelRun(id string, status core.ModelRunStatus, rowsAffected int64, errMsg string) error {
	if s.db == nil {
		return ErrNotOpened
	}

	var startedAt string
	if err := s.db.QueryRowContext(ctx(), `SELECT started_at FROM model_runs WHERE id = ?`, id).Scan(&startedAt); err != nil {
		return fmt.Errorf("model run not found: %s: %w", id, err)
	}
	started, err := parseTime(startedAt)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx(), `
		UPDATE model_runs SET status = ?, rows_affected = ?, completed_at = ?, error = ?,
			execution_ms = MAX(execution_ms, ?)
		WHERE id = ?`,
		string(status), rowsAffected, formatTime(now), nullableString(errMsg),
		now.Sub(started).Milliseconds(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update model run: %w", err)
	}
	return nil
}

// GetModelRunsForRun retrieves all model runs recorded for a run.
func (s *SQLiteStore) GetModelRunsForRun(runID string) ([]*core.ModelRun, error) {
	if s.db == nil {
		return nil, ErrNotOpened
	}

	rows, err := s.db.QueryContext(ctx(), `
		SELECT id, run_id, model_id, status, rows_affected, started_at, completed_at, error,
			render_ms, execution_ms
		FROM model_runs WHERE run_id = ? ORDER BY started_at, id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get model runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*core.ModelRun
	for rows.Next() {
		mr := &core.ModelRun{}
		var status, startedAt string
		var completedAt, errMsg sql.NullString
		if err := rows.Scan(&mr.ID, &mr.RunID, &mr.ModelID, &status, &mr.RowsAffected, &startedAt,
			&completedAt, &errMsg, &mr.RenderMS, &mr.ExecutionMS); err != nil {
			return nil, fmt.Errorf("failed to scan model run: %w", err)
		}
		mr.Status = core.ModelRunStatus(status)
		mr.Error = errMsg.String
		if mr.StartedAt, err = parseTime(startedAt); err != nil {
			return nil, err
		}
		if mr.CompletedAt, err = parseNullTime(completedAt); err != nil {
			return nil, err
		}
		runs = append(runs, mr)
	}
	return runs, rows.Err()
}

// RecordTestResult stores the outcome of one data test.
func (s *SQLiteStore) RecordTestResult(result *core.TestResult) error {
	if s.db == nil {
		return ErrNotOpened
	}
	if result.ID == "" {
		result.ID = generateID()
	}
	if result.ExecutedAt.IsZero() {
		result.ExecutedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx(), `
		INSERT INTO test_results (id, run_id, test_name, kind, target, column_name, severity,
			status, failures, sql, error, executed_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		result.ID, result.RunID, result.TestName, string(result.Kind), result.Target,
		nullableString(result.Column), string(result.Severity), string(result.Status), result.Failures,
		nullableString(result.SQL), nullableString(result.Error), formatTime(result.ExecutedAt),
		result.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("failed to record test result %s: %w", result.TestName, err)
	}
	return nil
}

// GetTestResultsForRun lists test results of a run ordered by test name.
func (s *SQLiteStore) GetTestResultsForRun(runID string) ([]*core.TestResult, error) {
	if s.db == nil {
		return nil, ErrNotOpened
	}

	rows, err := s.db.QueryContext(ctx(), `
		SELECT id, run_id, test_name, kind, target, column_name, severity, status, failures,
			sql, error, executed_at, duration_ms
		FROM test_results WHERE run_id = ? ORDER BY test_name`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get test results: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []*core.TestResult
	for rows.Next() {
		r := &core.TestResult{}
		var kind, severity, status, executedAt string
		var column, sqlText, errMsg sql.NullString
		if err := rows.Scan(&r.ID, &r.RunID, &r.TestName, &kind, &r.Target, &column, &severity,
			&status, &r.Failures, &sqlText, &errMsg, &executedAt, &r.DurationMS); err != nil {
			return nil, fmt.Errorf("failed to scan test result: %w", err)
		}
		r.Kind = core.TestKind(kind)
		r.Severity = core.TestSeverity(severity)
		r.Status = core.TestStatus(status)
		r.Column = column.String
		r.SQL = sqlText.String
		r.Error = errMsg.String
		if r.ExecutedAt, err = parseTime(executedAt); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// RecordSourceLoad stores one raw table load.
func (s *SQLiteStore) RecordSourceLoad(load *core.SourceLoad) error {
	if s.db == nil {
		return ErrNotOpened
	}
	if load.ID == "" {
		load.ID = generateID()
	}
	if load.LoadedAt.IsZero() {
		load.LoadedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx(), `
		INSERT INTO source_loads (id, run_id, source, table_name, file_path, row_count, loaded_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		load.ID, load.RunID, load.Source, load.Table, load.FilePath, load.Rows,
		formatTime(load.LoadedAt), load.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("failed to record source load %s: %w", load.Source, err)
	}
	return nil
}

// GetSourceLoadsForRun lists the loads of a run ordered by source name.
func (s *SQLiteStore) GetSourceLoadsForRun(runID string) ([]*core.SourceLoad, error) {
	if s.db == nil {
		return nil, ErrNotOpened
	}

	rows, err := s.db.QueryContext(ctx(), `
		SELECT id, run_id, source, table_name, file_path, row_count, loaded_at, duration_ms
		FROM source_loads WHERE run_id = ? ORDER BY source`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get source loads: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var loads []*core.SourceLoad
	for rows.Next() {
		l := &core.SourceLoad{}
		var loadedAt string
		if err := rows.Scan(&l.ID, &l.RunID, &l.Source, &l.Table, &l.FilePath, &l.Rows,
			&loadedAt, &l.DurationMS); err != nil {
			return nil, fmt.Errorf("failed to scan source load: %w", err)
		}
		if l.LoadedAt, err = parseTime(loadedAt); err != nil {
			return nil, err
		}
		loads = append(loads, l)
	}
	return loads, rows.Err()
}
