package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/shopflow/internal/cli/config"
	"github.com/leapstack-labs/shopflow/internal/cli/output"
	"github.com/leapstack-labs/shopflow/internal/cli/testutil"
)

// runCLI executes the root command against the project in dir.
func runCLI(t *testing.T, dir string, args ...string) (string, string, error) {
	t.Helper()
	config.ResetConfig()
	t.Cleanup(config.ResetConfig)

	cmd := NewRootCmd()
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(append([]string{"--config", filepath.Join(dir, "shopflow.yaml")}, args...))

	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestRootCommand_Subcommands(t *testing.T) {
	cmd := NewRootCmd()
	names := make(map[string]bool)
	for _, c := range cmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{
		"init", "generate", "load", "run", "test", "build", "report", "serve",
		"dag", "list", "runs", "render", "query", "schedule", "version", "completion",
	} {
		assert.True(t, names[want], "missing subcommand %q", want)
	}
}

func TestBuildEndToEnd(t *testing.T) {
	dir := testutil.SetupTestProject(t)

	stdout, _, err := runCLI(t, dir, "build", "-o", "json")
	require.NoError(t, err)

	var out output.BuildOutput
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	assert.Equal(t, "completed", out.Status)
	assert.NotEmpty(t, out.RunID)
	require.Len(t, out.Loads, 1)
	assert.Equal(t, int64(3), out.Loads[0].Rows)
	assert.Len(t, out.Models, 3)
	for _, m := range out.Models {
		assert.Equal(t, "success", m.Status, m.Path)
	}
	require.NotNil(t, out.Tests)
	assert.Equal(t, 2, out.Tests.Passed)
	assert.Zero(t, out.Tests.Failed)

	// The report reads the built gold model.
	stdout, _, err = runCLI(t, dir, "report", "-o", "json")
	require.NoError(t, err)
	var reports []output.ReportOutput
	require.NoError(t, json.Unmarshal([]byte(stdout), &reports))
	require.Len(t, reports, 1)
	assert.Equal(t, "customers_by_country", reports[0].Name)
	assert.Len(t, reports[0].Rows, 2)

	stdout, _, err = runCLI(t, dir, "runs", "-o", "json")
	require.NoError(t, err)
	assert.Contains(t, stdout, out.RunID)
}

// TestReferenceProjectBuild scaffolds the reference project, generates a
// small noisy dataset and builds it twice; the second build takes the
// incremental path of slv_orders.
func TestReferenceProjectBuild(t *testing.T) {
	if testing.Short() {
		t.Skip("builds the full reference project")
	}
	dir := filepath.Join(t.TempDir(), "shop")

	_, _, err := runCLI(t, dir, "init", dir)
	require.NoError(t, err)

	_, _, err = runCLI(t, dir, "generate", "-o", "json",
		"--seed", "7",
		"--customers", "40",
		"--products", "15",
		"--orders", "150",
		"--sessions", "200",
		"--days", "30",
		"--noise-rate", "0.1",
	)
	require.NoError(t, err)

	for i, args := range [][]string{{"build"}, {"build", "--skip-load"}} {
		stdout, stderr, err := runCLI(t, dir, append(args, "-o", "json")...)
		require.NoError(t, err, "build %d: %s", i+1, stderr)

		var out output.BuildOutput
		require.NoError(t, json.Unmarshal([]byte(stdout), &out))
		assert.Equal(t, "completed", out.Status, "build %d", i+1)
		for _, m := range out.Models {
			assert.Equal(t, "success", m.Status, "build %d: %s %s", i+1, m.Path, m.Error)
		}
		require.NotNil(t, out.Tests)
		assert.Zero(t, out.Tests.Failed, "build %d", i+1)
		assert.Zero(t, out.Tests.Errored, "build %d", i+1)
		for _, r := range out.Tests.Results {
			if r.Severity == "error" {
				assert.Equal(t, "pass", r.Status, "build %d: %s", i+1, r.Name)
			}
		}
	}

	stdout, _, err := runCLI(t, dir, "report", "-o", "json")
	require.NoError(t, err)
	var reports []output.ReportOutput
	require.NoError(t, json.Unmarshal([]byte(stdout), &reports))
	require.Len(t, reports, 5)
	for _, rep := range reports {
		assert.NotEmpty(t, rep.Rows, rep.Name)
	}

	// Malformed amounts are repaired from the order total.
	stdout, _, err = runCLI(t, dir, "query", "-f", "json",
		"SELECT COUNT(*) AS missing FROM silver.slv_payments p JOIN silver.slv_orders o ON o.order_id = p.order_id WHERE p.amount IS NULL AND o.order_total IS NOT NULL")
	require.NoError(t, err)
	var missing output.QueryOutput
	require.NoError(t, json.Unmarshal([]byte(stdout), &missing))
	require.Len(t, missing.Rows, 1)
	assert.EqualValues(t, 0, missing.Rows[0][0])
}

func TestListJSON(t *testing.T) {
	dir := testutil.SetupTestProject(t)

	stdout, _, err := runCLI(t, dir, "list", "-o", "json")
	require.NoError(t, err)

	var out output.ListOutput
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	require.Len(t, out.Models, 3)
	assert.Equal(t, []string{"customers"}, out.Sources)

	byName := make(map[string]output.ModelInfo)
	for _, m := range out.Models {
		byName[m.Name] = m
	}
	assert.Equal(t, "bronze", byName["brz_customers"].Layer)
	assert.Equal(t, "view", byName["brz_customers"].Materialized)
	assert.Equal(t, 2, byName["slv_customers"].Tests)
}

func TestRenderJSON(t *testing.T) {
	dir := testutil.SetupTestProject(t)

	stdout, _, err := runCLI(t, dir, "render", "slv_customers", "-o", "json")
	require.NoError(t, err)

	var out map[string]string
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	assert.Equal(t, "slv_customers", out["model"])
	assert.Contains(t, out["sql"], "brz_customers")
	assert.NotContains(t, out["sql"], "{{")
}

func TestDAGJSON(t *testing.T) {
	dir := testutil.SetupTestProject(t)

	stdout, _, err := runCLI(t, dir, "dag", "-o", "json")
	require.NoError(t, err)

	var out output.DAGOutput
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	assert.Equal(t, 3, out.Stats.Models)
	assert.Equal(t, 2, out.Stats.Edges)
	assert.Equal(t, 3, out.Stats.Levels)
	assert.Empty(t, out.Warnings)
}

func TestUnknownTarget(t *testing.T) {
	dir := testutil.SetupTestProject(t)

	_, _, err := runCLI(t, dir, "--target", "nope", "list")
	require.Error(t, err)
}
