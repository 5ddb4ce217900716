// Package adapter provides the warehouse adapter contract for the shopflow
// pipeline.
//
// Every adapter knows how to connect, run SQL, bulk-load a CSV file into a
// text-typed raw table and describe its SQL dialect. Concrete adapter
// implementations live in pkg/adapters/ subdirectories and register
// themselves in init().
package adapter

import (
	"context"

	"github.com/leapstack-labs/shopflow/pkg/core"
	"github.com/leapstack-labs/shopflow/pkg/dialect"
)

// RelationType describes what kind of relation exists under a name.
type RelationType string

// Relation types returned by RelationType. RelationNone means nothing exists.
const (
	RelationNone  RelationType = ""
	RelationTable RelationType = "table"
	RelationView  RelationType = "view"
)

// Adapter defines the interface that all warehouse adapters must implement.
type Adapter interface {
	// Connect establishes a connection to the warehouse using the provided config.
	Connect(ctx context.Context, cfg core.AdapterConfig) error

	// Close closes the connection and releases resources.
	Close() error

	// Exec executes a SQL statement that doesn't return rows.
	Exec(ctx context.Context, sql string) error

	// Query executes a SQL statement that returns rows.
	// The caller must close the returned rows.
	Query(ctx context.Context, sql string) (*core.Rows, error)

	// GetTableMetadata retrieves column metadata and row count for schema.table.
	GetTableMetadata(ctx context.Context, table string) (*core.TableMetadata, error)

	// RelationType reports whether schema.name is a table, a view or absent.
	RelationType(ctx context.Context, schema, name string) (RelationType, error)

	// LoadCSV replaces table with the contents of a CSV file. Every column
	// is created as text; typing happens in the silver layer. It returns the
	// number of data rows loaded.
	LoadCSV(ctx context.Context, table string, filePath string) (int64, error)

	// Dialect returns the SQL dialect used to render models for this warehouse.
	Dialect() *dialect.Dialect
}

// TableExists reports whether schema.name exists as a table or a view.
func TableExists(ctx context.Context, a Adapter, schema, name string) (bool, error) {
	rt, err := a.RelationType(ctx, schema, name)
	if err != nil {
		return false, err
	}
	return rt != RelationNone, nil
}
