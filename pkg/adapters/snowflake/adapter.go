package snowflake

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/snowflakedb/gosnowflake"

	"github.com/leapstack-labs/shopflow/pkg/adapter"
	sfdialect "github.com/leapstack-labs/shopflow/pkg/adapters/snowflake/dialect"
	"github.com/leapstack-labs/shopflow/pkg/core"
	"github.com/leapstack-labs/shopflow/pkg/dialect"
)

// Connection pool settings.
const (
	maxOpenConns    = 10
	maxIdleConns    = 5
	connMaxLifetime = 10 * time.Minute
)

// Adapter implements the adapter.Adapter interface for Snowflake.
type Adapter struct {
	adapter.BaseSQLAdapter
}

// New creates a new Snowflake adapter instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Adapter {
	return &Adapter{BaseSQLAdapter: adapter.NewBase(logger)}
}

// Dialect returns the Snowflake dialect.
func (a *Adapter) Dialect() *dialect.Dialect {
	return sfdialect.Snowflake
}

// Connect establishes a connection to Snowflake.
func (a *Adapter) Connect(ctx context.Context, cfg core.AdapterConfig) error {
	dsn, err := buildDSN(cfg)
	if err != nil {
		return err
	}

	a.Logger.Debug("connecting to snowflake",
		slog.String("account", cfg.Account),
		slog.String("warehouse", cfg.Warehouse),
		slog.String("database", cfg.Database))

	db, err := sql.Open("snowflake", dsn)
	if err != nil {
		return fmt.Errorf("failed to open snowflake connection: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		if strings.Contains(strings.ToLower(err.Error()), "authentication") {
			return fmt.Errorf("snowflake authentication failed for user %s: %w", cfg.Username, err)
		}
		return fmt.Errorf("failed to ping snowflake: %w", err)
	}

	a.DB = db
	a.Cfg = cfg
	return nil
}

// buildDSN validates the target and renders it with the driver's DSN builder.
func buildDSN(cfg core.AdapterConfig) (string, error) {
	var missing []string
	if cfg.Account == "" {
		missing = append(missing, "account")
	}
	if cfg.Username == "" {
		missing = append(missing, "user")
	}
	if cfg.Database == "" {
		missing = append(missing, "database")
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("snowflake target is missing required fields: %s", strings.Join(missing, ", "))
	}

	sfCfg := &gosnowflake.Config{
		Account:   cfg.Account,
		User:      cfg.Username,
		Password:  cfg.Password,
		Database:  cfg.Database,
		Schema:    cfg.Schema,
		Warehouse: cfg.Warehouse,
		Role:      cfg.Role,
	}
	if len(cfg.Options) > 0 {
		sfCfg.Params = make(map[string]*string, len(cfg.Options))
		for k, v := range cfg.Options {
			sfCfg.Params[k] = &v
		}
	}

	dsn, err := gosnowflake.DSN(sfCfg)
	if err != nil {
		return "", fmt.Errorf("invalid snowflake configuration: %w", err)
	}
	return dsn, nil
}

// GetTableMetadata retrieves metadata for a specified table.
func (a *Adapter) GetTableMetadata(ctx context.Context, table string) (*core.TableMetadata, error) {
	return a.GetTableMetadataCommon(ctx, table, a.Dialect())
}

// RelationType reports whether schema.name is a table, a view, or absent.
func (a *Adapter) RelationType(ctx context.Context, schema, name string) (adapter.RelationType, error) {
	return a.RelationTypeCommon(ctx, schema, name, a.Dialect())
}

// LoadCSV stages the file in the table's internal stage with PUT and loads it
// with COPY INTO. All columns are created as VARCHAR.
func (a *Adapter) LoadCSV(ctx context.Context, table string, filePath string) (int64, error) {
	if a.DB == nil {
		return 0, adapter.ErrNotConnected
	}

	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return 0, fmt.Errorf("failed to get absolute path: %w", err)
	}

	info, err := adapter.InspectCSV(absPath)
	if err != nil {
		return 0, err
	}

	for _, stmt := range loadStatements(table, absPath, info.Header, a.Dialect()) {
		a.Logger.Debug("snowflake load step", slog.String("sql", stmt))
		if err := a.Exec(ctx, stmt); err != nil {
			return 0, fmt.Errorf("failed to load CSV into %s: %w", table, err)
		}
	}

	n, err := a.CountRows(ctx, table)
	if err != nil {
		return 0, err
	}
	if n != info.Rows {
		return n, fmt.Errorf("loaded %d rows into %s but file has %d", n, table, info.Rows)
	}
	return n, nil
}

// loadStatements returns the CREATE, PUT and COPY statements for one CSV.
func loadStatements(table, absPath string, header []string, d *dialect.Dialect) []string {
	stage := tableStage(table)
	// Quoted identifiers are case-sensitive in Snowflake, so columns stay
	// unquoted and resolve the same way model SQL references them.
	unquoted := func(s string) string { return s }
	return []string{
		fmt.Sprintf("CREATE OR REPLACE TABLE %s (%s)", table, adapter.TextColumns(header, d.TextType, unquoted)),
		fmt.Sprintf("PUT 'file://%s' %s AUTO_COMPRESS=TRUE OVERWRITE=TRUE", filepath.ToSlash(absPath), stage),
		fmt.Sprintf("COPY INTO %s FROM %s FILE_FORMAT = (TYPE = CSV SKIP_HEADER = 1 FIELD_OPTIONALLY_ENCLOSED_BY = '\"') PURGE = TRUE", table, stage),
	}
}

// tableStage returns the internal stage reference for a table: raw.orders -> @raw.%orders.
func tableStage(table string) string {
	if i := strings.LastIndex(table, "."); i >= 0 {
		return "@" + table[:i+1] + "%" + table[i+1:]
	}
	return "@%" + table
}

// Ensure Adapter implements adapter.Adapter interface
var _ adapter.Adapter = (*Adapter)(nil)
