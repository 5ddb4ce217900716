package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/leapstack-labs/shopflow/pkg/adapter"
	ddialect "github.com/leapstack-labs/shopflow/pkg/adapters/duckdb/dialect"
	"github.com/leapstack-labs/shopflow/pkg/core"
	"github.com/leapstack-labs/shopflow/pkg/dialect"

	_ "github.com/marcboeker/go-duckdb" // duckdb driver
)

// Adapter implements the adapter.Adapter interface for DuckDB.
type Adapter struct {
	adapter.BaseSQLAdapter
	params *Params
}

// New creates a new DuckDB adapter instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Adapter {
	return &Adapter{BaseSQLAdapter: adapter.NewBase(logger), params: &Params{}}
}

// Dialect returns the DuckDB dialect.
func (a *Adapter) Dialect() *dialect.Dialect {
	return ddialect.DuckDB
}

// Connect establishes a connection to DuckDB.
// Use ":memory:" (or an empty path) for an in-memory database.
func (a *Adapter) Connect(ctx context.Context, cfg core.AdapterConfig) error {
	params, err := parseParams(cfg.Params)
	if err != nil {
		return err
	}

	path := cfg.Path
	if path == "" {
		path = ":memory:"
	}

	a.Logger.Debug("connecting to duckdb", slog.String("path", path))

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return fmt.Errorf("failed to open duckdb connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping duckdb: %w", err)
	}

	a.DB = db
	a.Cfg = cfg
	a.params = params

	if err := a.applyParams(ctx); err != nil {
		_ = db.Close()
		a.DB = nil
		return err
	}
	return nil
}

// applyParams installs extensions and applies session settings.
func (a *Adapter) applyParams(ctx context.Context) error {
	for _, ext := range a.params.Extensions {
		a.Logger.Debug("loading duckdb extension", slog.String("extension", ext))
		for _, stmt := range []string{"INSTALL " + ext, "LOAD " + ext} {
			if err := a.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("failed to load extension %s: %w", ext, err)
			}
		}
	}

	keys := make([]string, 0, len(a.params.Settings))
	for k := range a.params.Settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		stmt := fmt.Sprintf("SET %s = '%s'", k, escapeLiteral(a.params.Settings[k]))
		if err := a.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply setting %s: %w", k, err)
		}
	}
	return nil
}

// GetTableMetadata retrieves metadata for a specified table.
func (a *Adapter) GetTableMetadata(ctx context.Context, table string) (*core.TableMetadata, error) {
	return a.GetTableMetadataCommon(ctx, table, a.Dialect())
}

// RelationType reports whether schema.name is a table, a view, or absent.
func (a *Adapter) RelationType(ctx context.Context, schema, name string) (adapter.RelationType, error) {
	return a.RelationTypeCommon(ctx, schema, name, a.Dialect())
}

// LoadCSV replaces table with the CSV contents using read_csv. Every column
// is read as VARCHAR so malformed values survive into the bronze layer.
func (a *Adapter) LoadCSV(ctx context.Context, table string, filePath string) (int64, error) {
	if a.DB == nil {
		return 0, adapter.ErrNotConnected
	}

	path := filePath
	if !strings.Contains(filePath, "://") {
		abs, err := filepath.Abs(filePath)
		if err != nil {
			return 0, fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = abs
	}

	query := buildLoadSQL(table, path, a.params.CSV)
	a.Logger.Debug("loading csv", slog.String("table", table), slog.String("file", path))

	if err := a.Exec(ctx, query); err != nil {
		return 0, fmt.Errorf("failed to load CSV: %w", err)
	}
	return a.CountRows(ctx, table)
}

// buildLoadSQL renders the CREATE OR REPLACE TABLE ... read_csv statement.
func buildLoadSQL(table, path string, opts map[string]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE OR REPLACE TABLE %s AS SELECT * FROM read_csv('%s', header=true, all_varchar=true", table, escapeLiteral(path))

	keys := make([]string, 0, len(opts))
	for k := range opts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, ", %s='%s'", k, escapeLiteral(opts[k]))
	}
	b.WriteString(")")
	return b.String()
}

func escapeLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// Ensure Adapter implements adapter.Adapter interface
var _ adapter.Adapter = (*Adapter)(nil)
