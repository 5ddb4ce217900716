package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-sql-driver/mysql"

	"github.com/leapstack-labs/shopflow/pkg/adapter"
	mydialect "github.com/leapstack-labs/shopflow/pkg/adapters/mysql/dialect"
	"github.com/leapstack-labs/shopflow/pkg/core"
	"github.com/leapstack-labs/shopflow/pkg/dialect"
)

// Adapter implements the adapter.Adapter interface for MySQL.
// MySQL has no schemas below a database, so each layer schema is a database.
type Adapter struct {
	adapter.BaseSQLAdapter
}

// New creates a new MySQL adapter instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Adapter {
	return &Adapter{BaseSQLAdapter: adapter.NewBase(logger)}
}

// Dialect returns the MySQL dialect.
func (a *Adapter) Dialect() *dialect.Dialect {
	return mydialect.MySQL
}

// Connect establishes a connection to MySQL.
func (a *Adapter) Connect(ctx context.Context, cfg core.AdapterConfig) error {
	dsn := buildDSN(cfg)

	a.Logger.Debug("connecting to mysql", slog.String("host", cfg.Host), slog.String("database", cfg.Database))

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return fmt.Errorf("failed to open mysql connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping mysql: %w", err)
	}

	a.DB = db
	a.Cfg = cfg
	return nil
}

// buildDSN renders the target with the driver's Config.FormatDSN.
func buildDSN(cfg core.AdapterConfig) string {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = 3306
	}

	mc := mysql.NewConfig()
	mc.User = cfg.Username
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(host, strconv.Itoa(port))
	mc.DBName = cfg.Database
	mc.ParseTime = true
	if len(cfg.Options) > 0 {
		mc.Params = make(map[string]string, len(cfg.Options))
		for k, v := range cfg.Options {
			mc.Params[k] = v
		}
	}
	return mc.FormatDSN()
}

// GetTableMetadata retrieves metadata for a specified table.
func (a *Adapter) GetTableMetadata(ctx context.Context, table string) (*core.TableMetadata, error) {
	return a.GetTableMetadataCommon(ctx, table, a.Dialect())
}

// RelationType reports whether schema.name is a table, a view, or absent.
func (a *Adapter) RelationType(ctx context.Context, schema, name string) (adapter.RelationType, error) {
	return a.RelationTypeCommon(ctx, schema, name, a.Dialect())
}

// LoadCSV streams the file through LOAD DATA LOCAL INFILE using a registered
// reader handler, so the server never needs filesystem access to the file.
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

	d := a.Dialect()
	if err := a.Exec(ctx, d.DropTable(table)); err != nil {
		return 0, err
	}
	createSQL := fmt.Sprintf("CREATE TABLE %s (%s)", table, adapter.TextColumns(info.Header, d.TextType, d.QuoteIdentifier))
	if err := a.Exec(ctx, createSQL); err != nil {
		return 0, fmt.Errorf("failed to create table: %w", err)
	}

	handler := "shopflow_" + table
	mysql.RegisterReaderHandler(handler, func() io.Reader {
		f, err := os.Open(absPath) //nolint:gosec // path comes from the project's sources file
		if err != nil {
			return errReader{err: err}
		}
		return f
	})
	defer mysql.DeregisterReaderHandler(handler)

	res, err := a.DB.ExecContext(ctx, loadDataSQL(handler, table))
	if err != nil {
		return 0, fmt.Errorf("failed to load CSV into %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read loaded row count: %w", err)
	}
	return n, nil
}

// loadDataSQL renders the LOAD DATA statement for a registered reader.
func loadDataSQL(handler, table string) string {
	return fmt.Sprintf(
		"LOAD DATA LOCAL INFILE 'Reader::%s' INTO TABLE %s "+
			"FIELDS TERMINATED BY ',' OPTIONALLY ENCLOSED BY '\"' ESCAPED BY '' "+
			"LINES TERMINATED BY '\\n' IGNORE 1 LINES",
		handler, table)
}

// errReader surfaces a file open failure through the driver's read path.
type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }

// Ensure Adapter implements adapter.Adapter interface
var _ adapter.Adapter = (*Adapter)(nil)
