package state

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/shopflow/pkg/core"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store := NewSQLiteStore()
	require.NoError(t, store.Open(":memory:"))
	require.NoError(t, store.InitSchema())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func registerModel(t *testing.T, store *SQLiteStore, path string) *core.PersistedModel {
	t.Helper()
	m := &core.PersistedModel{
		Model:       &core.Model{Path: path, Name: path[len("silver."):], Layer: core.LayerSilver},
		ContentHash: "hash-" + path,
	}
	require.NoError(t, store.RegisterModel(m))
	return m
}

func TestSQLiteStore_NotOpened(t *testing.T) {
	store := NewSQLiteStore()

	_, err := store.CreateRun("dev", core.RunKindRun)
	require.ErrorIs(t, err, ErrNotOpened)
	require.ErrorIs(t, store.InitSchema(), ErrNotOpened)
	_, err = store.ListModels()
	require.ErrorIs(t, err, ErrNotOpened)
	require.NoError(t, store.Close())
}

func TestSQLiteStore_InitSchema(t *testing.T) {
	store := setupTestStore(t)

	tables := []string{"runs", "models", "dependencies", "model_runs", "test_results", "source_loads"}
	for _, table := range tables {
		rows, err := store.db.Query("SELECT 1 FROM " + table + " LIMIT 1")
		require.NoError(t, err, "table %s should exist", table)
		_ = rows.Close()
	}

	version, err := store.GetMigrationVersion()
	require.NoError(t, err)
	assert.Equal(t, int64(2), version)

	// Migrating twice is a no-op.
	require.NoError(t, store.InitSchema())
}

func TestSQLiteStore_FileDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	store := NewSQLiteStore()
	require.NoError(t, store.Open(path))
	require.NoError(t, store.InitSchema())
	run, err := store.CreateRun("dev", core.RunKindLoad)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened := NewSQLiteStore()
	require.NoError(t, reopened.Open(path))
	defer func() { _ = reopened.Close() }()
	require.NoError(t, reopened.InitSchema())

	got, err := reopened.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, core.RunKindLoad, got.Kind)
}

func TestSQLiteStore_RunLifecycle(t *testing.T) {
	tests := []struct {
		name   string
		status core.RunStatus
		errMsg string
	}{
		{name: "completed", status: core.RunStatusCompleted},
		{name: "failed", status: core.RunStatusFailed, errMsg: "model silver.slv_orders failed"},
		{name: "cancelled", status: core.RunStatusCancelled, errMsg: "context canceled"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := setupTestStore(t)

			run, err := store.CreateRun("dev", core.RunKindBuild)
			require.NoError(t, err)
			assert.NotEmpty(t, run.ID)
			assert.Equal(t, core.RunStatusRunning, run.Status)
			assert.Nil(t, run.CompletedAt)

			require.NoError(t, store.CompleteRun(run.ID, tt.status, tt.errMsg))

			got, err := store.GetRun(run.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.status, got.Status)
			assert.Equal(t, tt.errMsg, got.Error)
			assert.Equal(t, core.RunKindBuild, got.Kind)
			require.NotNil(t, got.CompletedAt)
			assert.False(t, got.CompletedAt.Before(got.StartedAt))
		})
	}
}

func TestSQLiteStore_RunLookups(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.GetRun("missing")
	require.Error(t, err)
	require.Error(t, store.CompleteRun("missing", core.RunStatusCompleted, ""))

	latest, err := store.GetLatestRun("prod")
	require.NoError(t, err)
	assert.Nil(t, latest)

	first, err := store.CreateRun("dev", "")
	require.NoError(t, err)
	assert.Equal(t, core.RunKindRun, first.Kind)
	time.Sleep(2 * time.Millisecond)
	second, err := store.CreateRun("dev", core.RunKindTest)
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, err = store.CreateRun("prod", core.RunKindRun)
	require.NoError(t, err)

	latest, err = store.GetLatestRun("dev")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, second.ID, latest.ID)

	runs, err := store.ListRuns(2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "prod", runs[0].Environment)
	assert.Equal(t, second.ID, runs[1].ID)

	all, err := store.ListRuns(0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestSQLiteStore_RegisterModel(t *testing.T) {
	store := setupTestStore(t)

	m := &core.PersistedModel{
		Model: &core.Model{
			Path:         "gold.fct_orders",
			Name:         "fct_orders",
			Layer:        core.LayerGold,
			Materialized: core.MaterializationIncremental,
			UniqueKey:    "order_id",
			Owner:        "analytics",
			Description:  "One row per order",
			Tags:         []string{"finance", "daily"},
			Meta:         map[string]any{"grain": "order"},
		},
		ContentHash: "abc",
	}
	require.NoError(t, store.RegisterModel(m))
	require.NotEmpty(t, m.ID)

	got, err := store.GetModelByPath("gold.fct_orders")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, m.ID, got.ID)
	assert.Equal(t, core.LayerGold, got.Layer)
	assert.Equal(t, core.MaterializationIncremental, got.Materialized)
	assert.Equal(t, "order_id", got.UniqueKey)
	assert.Equal(t, []string{"finance", "daily"}, got.Tags)
	assert.Equal(t, "order", got.Meta["grain"])

	// Re-registering keeps the ID and updates fields.
	again := &core.PersistedModel{
		Model:       &core.Model{Path: "gold.fct_orders", Name: "fct_orders", Layer: core.LayerGold},
		ContentHash: "def",
	}
	require.NoError(t, store.RegisterModel(again))
	assert.Equal(t, m.ID, again.ID)
	assert.Equal(t, core.MaterializationTable, again.Materialized)

	byID, err := store.GetModelByID(m.ID)
	require.NoError(t, err)
	assert.Equal(t, "def", byID.ContentHash)
	assert.Empty(t, byID.Tags)

	require.NoError(t, store.UpdateModelHash(m.ID, "ghi"))
	byID, err = store.GetModelByID(m.ID)
	require.NoError(t, err)
	assert.Equal(t, "ghi", byID.ContentHash)

	missing, err := store.GetModelByPath("gold.nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = store.GetModelByID("nope")
	require.Error(t, err)
}

func TestSQLiteStore_ListModels(t *testing.T) {
	store := setupTestStore(t)
	registerModel(t, store, "silver.slv_orders")
	registerModel(t, store, "silver.slv_customers")

	models, err := store.ListModels()
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.Equal(t, "silver.slv_customers", models[0].Path)
	assert.Equal(t, "slv_orders", models[1].Name)
}

func TestSQLiteStore_Dependencies(t *testing.T) {
	store := setupTestStore(t)
	orders := registerModel(t, store, "silver.slv_orders")
	customers := registerModel(t, store, "silver.slv_customers")
	sessions := registerModel(t, store, "silver.slv_sessions")

	require.NoError(t, store.SetDependencies(sessions.ID, []string{orders.ID, customers.ID, orders.ID}))

	deps, err := store.GetDependencies(sessions.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{orders.ID, customers.ID}, deps)

	dependents, err := store.GetDependents(orders.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{sessions.ID}, dependents)

	// Replacing drops old edges.
	require.NoError(t, store.SetDependencies(sessions.ID, []string{customers.ID}))
	dependents, err = store.GetDependents(orders.ID)
	require.NoError(t, err)
	assert.Empty(t, dependents)
}

func TestSQLiteStore_ModelRuns(t *testing.T) {
	store := setupTestStore(t)
	model := registerModel(t, store, "silver.slv_orders")
	run, err := store.CreateRun("dev", core.RunKindRun)
	require.NoError(t, err)

	mr := &core.ModelRun{RunID: run.ID, ModelID: model.ID, Status: core.ModelRunStatusRunning, RenderMS: 3}
	require.NoError(t, store.RecordModelRun(mr))
	require.NotEmpty(t, mr.ID)

	require.NoError(t, store.UpdateModelRun(mr.ID, core.ModelRunStatusSuccess, 42, ""))

	skipped := &core.ModelRun{RunID: run.ID, ModelID: model.ID, Status: core.ModelRunStatusSkipped, Error: "upstream failed"}
	require.NoError(t, store.RecordModelRun(skipped))

	runs, err := store.GetModelRunsForRun(run.ID)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	byID := map[string]*core.ModelRun{}
	for _, r := range runs {
		byID[r.ID] = r
	}
	assert.Equal(t, core.ModelRunStatusSuccess, byID[mr.ID].Status)
	assert.Equal(t, int64(42), byID[mr.ID].RowsAffected)
	assert.Equal(t, int64(3), byID[mr.ID].RenderMS)
	assert.NotNil(t, byID[mr.ID].CompletedAt)
	assert.Equal(t, "upstream failed", byID[skipped.ID].Error)

	require.Error(t, store.UpdateModelRun("missing", core.ModelRunStatusFailed, 0, "x"))
}

func TestSQLiteStore_TestResultsAndLoads(t *testing.T) {
	store := setupTestStore(t)
	run, err := store.CreateRun("dev", core.RunKindBuild)
	require.NoError(t, err)

	results := []*core.TestResult{
		{RunID: run.ID, TestName: "unique_slv_orders_order_id", Kind: core.TestUnique, Target: "silver.slv_orders",
			Column: "order_id", Severity: core.SeverityError, Status: core.TestStatusPass, SQL: "SELECT 1"},
		{RunID: run.ID, TestName: "accepted_values_slv_orders_status", Kind: core.TestAcceptedValues, Target: "silver.slv_orders",
			Column: "status", Severity: core.SeverityWarn, Status: core.TestStatusWarn, Failures: 7},
	}
	for _, r := range results {
		require.NoError(t, store.RecordTestResult(r))
	}

	got, err := store.GetTestResultsForRun(run.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "accepted_values_slv_orders_status", got[0].TestName)
	assert.Equal(t, int64(7), got[0].Failures)
	assert.Equal(t, core.TestStatusWarn, got[0].Status)
	assert.Equal(t, "SELECT 1", got[1].SQL)

	load := &core.SourceLoad{RunID: run.ID, Source: "orders", Table: "raw.orders", FilePath: "/data/orders.csv", Rows: 120, DurationMS: 8}
	require.NoError(t, store.RecordSourceLoad(load))

	loads, err := store.GetSourceLoadsForRun(run.ID)
	require.NoError(t, err)
	require.Len(t, loads, 1)
	assert.Equal(t, int64(120), loads[0].Rows)
	assert.Equal(t, "raw.orders", loads[0].Table)
}
