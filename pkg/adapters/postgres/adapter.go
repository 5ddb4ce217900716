package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/leapstack-labs/shopflow/pkg/adapter"
	pgdialect "github.com/leapstack-labs/shopflow/pkg/adapters/postgres/dialect"
	"github.com/leapstack-labs/shopflow/pkg/core"
	"github.com/leapstack-labs/shopflow/pkg/dialect"
)

// Adapter implements the adapter.Adapter interface for PostgreSQL.
type Adapter struct {
	adapter.BaseSQLAdapter
}

// New creates a new PostgreSQL adapter instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Adapter {
	return &Adapter{BaseSQLAdapter: adapter.NewBase(logger)}
}

// Dialect returns the PostgreSQL dialect.
func (a *Adapter) Dialect() *dialect.Dialect {
	return pgdialect.Postgres
}

// Connect establishes a connection to PostgreSQL.
func (a *Adapter) Connect(ctx context.Context, cfg core.AdapterConfig) error {
	dsn := buildPostgresDSN(cfg)

	a.Logger.Debug("connecting to postgres", slog.String("host", cfg.Host), slog.String("database", cfg.Database))

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("failed to open postgres connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping postgres: %w", err)
	}

	a.DB = db
	a.Cfg = cfg
	return nil
}

// buildPostgresDSN constructs a keyword/value PostgreSQL connection string.
func buildPostgresDSN(cfg core.AdapterConfig) string {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}

	port := cfg.Port
	if port == 0 {
		port = 5432
	}

	sslmode := "disable"
	if mode, ok := cfg.Options["sslmode"]; ok {
		sslmode = mode
	}

	parts := []string{
		"host=" + dsnValue(host),
		fmt.Sprintf("port=%d", port),
		"dbname=" + dsnValue(cfg.Database),
		"sslmode=" + dsnValue(sslmode),
	}
	if cfg.Username != "" {
		parts = append(parts, "user="+dsnValue(cfg.Username))
	}
	if cfg.Password != "" {
		parts = append(parts, "password="+dsnValue(cfg.Password))
	}

	keys := make([]string, 0, len(cfg.Options))
	for k := range cfg.Options {
		if k != "sslmode" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, k+"="+dsnValue(cfg.Options[k]))
	}

	return strings.Join(parts, " ")
}

// dsnValue quotes a keyword/value DSN value when it contains spaces or quotes.
func dsnValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// GetTableMetadata retrieves metadata for a specified table.
func (a *Adapter) GetTableMetadata(ctx context.Context, table string) (*core.TableMetadata, error) {
	return a.GetTableMetadataCommon(ctx, table, a.Dialect())
}

// RelationType reports whether schema.name is a table, a view, or absent.
func (a *Adapter) RelationType(ctx context.Context, schema, name string) (adapter.RelationType, error) {
	return a.RelationTypeCommon(ctx, schema, name, a.Dialect())
}

// LoadCSV loads data from a CSV file into a table using COPY FROM STDIN.
// All columns are created as TEXT.
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

	if err := a.createTextTable(ctx, table, info.Header); err != nil {
		return 0, fmt.Errorf("failed to create table: %w", err)
	}

	n, err := a.copyFromCSV(ctx, table, absPath)
	if err != nil {
		return 0, fmt.Errorf("failed to copy data: %w", err)
	}
	return n, nil
}

// createTextTable drops and recreates a table with all TEXT columns.
func (a *Adapter) createTextTable(ctx context.Context, table string, columns []string) error {
	d := a.Dialect()
	if _, err := a.DB.ExecContext(ctx, d.DropTable(table)); err != nil {
		return err
	}
	createSQL := fmt.Sprintf("CREATE TABLE %s (%s)", table, adapter.TextColumns(columns, d.TextType, d.QuoteIdentifier))
	_, err := a.DB.ExecContext(ctx, createSQL)
	return err
}

// copyFromCSV streams the file through PostgreSQL COPY on a raw pgx connection.
func (a *Adapter) copyFromCSV(ctx context.Context, table, path string) (int64, error) {
	file, err := os.Open(path) //nolint:gosec // path comes from the project's sources file
	if err != nil {
		return 0, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer func() { _ = file.Close() }()

	conn, err := a.DB.Conn(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	var rows int64
	err = conn.Raw(func(driverConn any) error {
		pgxConn, ok := driverConn.(*stdlib.Conn)
		if !ok {
			return fmt.Errorf("unexpected driver connection %T", driverConn)
		}
		copySQL := fmt.Sprintf("COPY %s FROM STDIN WITH (FORMAT csv, HEADER true)", table)
		tag, err := pgxConn.Conn().PgConn().CopyFrom(ctx, file, copySQL)
		if err != nil {
			return err
		}
		rows = tag.RowsAffected()
		return nil
	})
	return rows, err
}

// Ensure Adapter implements adapter.Adapter interface
var _ adapter.Adapter = (*Adapter)(nil)
