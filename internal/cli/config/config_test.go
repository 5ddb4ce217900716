package config

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/shopflow/pkg/adapter"
	_ "github.com/leapstack-labs/shopflow/pkg/adapters/duckdb"
	_ "github.com/leapstack-labs/shopflow/pkg/adapters/postgres"
)

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("env", DefaultEnv, "")
	fs.String("models-dir", DefaultModelsDir, "")
	fs.String("data-dir", DefaultDataDir, "")
	fs.String("reports-dir", DefaultReportsDir, "")
	fs.String("state", DefaultStateFile, "")
	fs.BoolP("verbose", "v", false, "")
	fs.StringP("output", "o", DefaultOutput, "")
	fs.String("log-format", DefaultLogFormat, "")
	fs.Int("threads", DefaultThreads, "")
	fs.StringSlice("select", nil, "")
	require.NoError(t, fs.Parse(args))
	return fs
}

// projectDir creates a temp project, makes it the working directory and
// returns its resolved path.
func projectDir(t *testing.T, yaml string) string {
	t.Helper()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	if yaml != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "shopflow.yaml"), []byte(yaml), 0o600))
	}
	t.Chdir(dir)
	t.Cleanup(ResetConfig)
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	dir := projectDir(t, "")

	cfg, err := Load("", "", nil)
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.ProjectRoot)
	assert.Equal(t, filepath.Join(dir, "models"), cfg.ModelsDir)
	assert.Equal(t, filepath.Join(dir, "data"), cfg.DataDir)
	assert.Equal(t, filepath.Join(dir, "reports"), cfg.ReportsDir)
	assert.Equal(t, filepath.Join(dir, ".shopflow", "state.db"), cfg.StatePath)
	assert.Equal(t, "dev", cfg.Environment)
	assert.Equal(t, 1, cfg.Threads)
	assert.Equal(t, "auto", cfg.OutputFormat)
	assert.Equal(t, "duckdb", cfg.Target.Type)
	assert.Equal(t, "main", cfg.Target.Schema)
	assert.Equal(t, filepath.Join(dir, ".shopflow", "warehouse.duckdb"), cfg.Target.Database)
	assert.Equal(t, uint64(42), cfg.Generate.Seed)
	assert.Equal(t, "csv", cfg.Generate.Sink)
	assert.Equal(t, 8484, cfg.Serve.Port)
	assert.Empty(t, GetConfigFileUsed())
	assert.Same(t, cfg, GetCurrentConfig())
}

func TestLoad_Precedence(t *testing.T) {
	projectDir(t, `
models_dir: sql
threads: 2
output: markdown
generate:
  orders: 50
schedule:
  every: 30m
`)

	t.Run("file over defaults", func(t *testing.T) {
		cfg, err := Load("", "", nil)
		require.NoError(t, err)
		assert.Equal(t, 2, cfg.Threads)
		assert.Equal(t, "markdown", cfg.OutputFormat)
		assert.Equal(t, 50, cfg.Generate.Orders)
		assert.Equal(t, 500, cfg.Generate.Customers)
		assert.Equal(t, 30*time.Minute, cfg.Schedule.Every)
		assert.Equal(t, "sql", filepath.Base(cfg.ModelsDir))
		assert.Equal(t, "shopflow.yaml", filepath.Base(GetConfigFileUsed()))
	})

	t.Run("env over file", func(t *testing.T) {
		t.Setenv("SHOPFLOW_THREADS", "3")
		t.Setenv("SHOPFLOW_GENERATE__ORDERS", "75")
		cfg, err := Load("", "", nil)
		require.NoError(t, err)
		assert.Equal(t, 3, cfg.Threads)
		assert.Equal(t, 75, cfg.Generate.Orders)
	})

	t.Run("changed flags over env", func(t *testing.T) {
		t.Setenv("SHOPFLOW_THREADS", "3")
		cfg, err := Load("", "", newFlags(t, "--threads", "8", "-o", "json", "--select", "gold"))
		require.NoError(t, err)
		assert.Equal(t, 8, cfg.Threads)
		assert.Equal(t, "json", cfg.OutputFormat)
	})

	t.Run("unchanged flags keep file values", func(t *testing.T) {
		cfg, err := Load("", "", newFlags(t))
		require.NoError(t, err)
		assert.Equal(t, 2, cfg.Threads)
		assert.Equal(t, "markdown", cfg.OutputFormat)
	})
}

func TestLoad_Environments(t *testing.T) {
	projectDir(t, `
vars:
  currency: USD
  lookback_days: 3
target:
  type: duckdb
  database: dev.duckdb
environments:
  prod:
    threads: 4
    vars:
      lookback_days: 30
    target:
      type: postgres
      host: ${SHOPFLOW_TEST_PG_HOST}
      password: ${SHOPFLOW_TEST_PG_PASSWORD}
      schema_prefix: prod_
  ci:
    target:
      database: ":memory:"
`)
	t.Setenv("SHOPFLOW_TEST_PG_HOST", "db.internal")
	t.Setenv("SHOPFLOW_TEST_PG_PASSWORD", "s3cret")

	t.Run("active environment", func(t *testing.T) {
		cfg, err := Load("", "", newFlags(t, "--env", "prod"))
		require.NoError(t, err)

		assert.Equal(t, "prod", cfg.Environment)
		assert.Equal(t, 4, cfg.Threads)
		assert.Equal(t, "USD", cfg.Vars["currency"])
		assert.EqualValues(t, 30, cfg.Vars["lookback_days"])
		assert.Equal(t, "postgres", cfg.Target.Type)
		assert.Equal(t, "db.internal", cfg.Target.Host)
		assert.Equal(t, "s3cret", cfg.Target.Password)
		assert.Equal(t, 5432, cfg.Target.Port)
		assert.Equal(t, "public", cfg.Target.Schema)
		assert.Equal(t, "prod_", cfg.Target.SchemaPrefix)
		assert.Equal(t, "prod_silver", cfg.Target.LayerSchema("silver"))
	})

	t.Run("target override keeps environment", func(t *testing.T) {
		cfg, err := Load("", "ci", nil)
		require.NoError(t, err)

		assert.Equal(t, "dev", cfg.Environment)
		assert.Equal(t, 1, cfg.Threads)
		assert.Equal(t, ":memory:", cfg.Target.Database)
	})

	t.Run("unknown target", func(t *testing.T) {
		_, err := Load("", "staging", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `unknown target "staging"`)
		assert.Contains(t, err.Error(), "ci, prod")
	})
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"unknown adapter", "target:\n  type: bigquery\n", `unknown adapter type "bigquery"`},
		{"postgres without host", "target:\n  type: postgres\n", "target.host is required"},
		{"bad output", "output: html\n", `invalid output "html"`},
		{"bad log format", "log_format: xml\n", `invalid log_format "xml"`},
		{"zero threads", "threads: 0\n", "threads must be >= 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			projectDir(t, tt.yaml)
			_, err := Load("", "", nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("unknown adapter is typed", func(t *testing.T) {
		projectDir(t, "target:\n  type: bigquery\n")
		_, err := Load("", "", nil)
		var unknown *adapter.UnknownAdapterError
		require.True(t, errors.As(err, &unknown))
		assert.Contains(t, unknown.Available, "duckdb")
	})
}

func TestLoad_ProjectRoot(t *testing.T) {
	t.Run("upward search", func(t *testing.T) {
		dir := projectDir(t, "threads: 5\n")
		nested := filepath.Join(dir, "models", "silver")
		require.NoError(t, os.MkdirAll(nested, 0o750))
		t.Chdir(nested)

		cfg, err := Load("", "", nil)
		require.NoError(t, err)
		assert.Equal(t, dir, cfg.ProjectRoot)
		assert.Equal(t, 5, cfg.Threads)
		assert.Equal(t, filepath.Join(dir, "models"), cfg.ModelsDir)
	})

	t.Run("explicit config file", func(t *testing.T) {
		dir := projectDir(t, "")
		other := filepath.Join(dir, "elsewhere")
		require.NoError(t, os.MkdirAll(other, 0o750))
		cfgPath := filepath.Join(other, "custom.yaml")
		require.NoError(t, os.WriteFile(cfgPath, []byte("reports_dir: dash\n"), 0o600))

		cfg, err := Load(cfgPath, "", nil)
		require.NoError(t, err)
		assert.Equal(t, other, cfg.ProjectRoot)
		assert.Equal(t, filepath.Join(other, "dash"), cfg.ReportsDir)
	})

	t.Run("models-dir flag anchors the project", func(t *testing.T) {
		dir := projectDir(t, "")
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "proj", "models"), 0o750))

		cfg, err := Load("", "", newFlags(t, "--models-dir", "proj/models"))
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "proj"), cfg.ProjectRoot)
		assert.Equal(t, filepath.Join(dir, "proj", "models"), cfg.ModelsDir)
		assert.Equal(t, filepath.Join(dir, "proj", "data"), cfg.DataDir)
	})
}

func TestMergeTargetConfig(t *testing.T) {
	base := &TargetConfig{
		Type:    "duckdb",
		Schema:  "main",
		Options: map[string]string{"a": "1"},
		Params:  map[string]any{"threads": 2},
	}
	override := &TargetConfig{
		SchemaPrefix: "ci_",
		Options:      map[string]string{"b": "2"},
	}

	merged := MergeTargetConfig(base, override)

	assert.Equal(t, "duckdb", merged.Type)
	assert.Equal(t, "ci_", merged.SchemaPrefix)
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, merged.Options)
	assert.Equal(t, map[string]string{"a": "1"}, base.Options, "base must not be modified")
	assert.Empty(t, base.SchemaPrefix)

	assert.Same(t, override, MergeTargetConfig(nil, override))
	assert.Same(t, base, MergeTargetConfig(base, nil))
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("SHOPFLOW_TEST_USER", "loader")

	tests := []struct {
		in   string
		want string
	}{
		{"${SHOPFLOW_TEST_USER}", "loader"},
		{"user-${SHOPFLOW_TEST_USER}-x", "user-loader-x"},
		{"${SHOPFLOW_TEST_UNSET}", "${SHOPFLOW_TEST_UNSET}"},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, expandEnvVars(tt.in))
		})
	}
}

func TestGetLogger(t *testing.T) {
	assert.NotNil(t, GetLogger(context.Background()))

	logger := slog.New(slog.DiscardHandler)
	ctx := context.WithValue(context.Background(), LoggerKey(), logger)
	assert.Same(t, logger, GetLogger(ctx))
}
