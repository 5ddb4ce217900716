package core

import (
	"database/sql"
)

// AdapterConfig holds configuration for connecting to a warehouse.
type AdapterConfig struct {
	Type      string
	Path      string
	Host      string
	Port      int
	Database  string
	Username  string
	Password  string
	Schema    string
	Account   string
	Warehouse string
	Role      string
	Options   map[string]string
	Params    map[string]any
}

// Column represents a column in a warehouse table.
type Column struct {
	Name     string
	Type     string
	Nullable bool
	Position int
}

// TableMetadata holds metadata about a warehouse table.
type TableMetadata struct {
	Schema   string
	Name     string
	Columns  []Column
	RowCount int64
}

// Rows wraps sql.Rows to provide a consistent interface.
type Rows struct {
	*sql.Rows
}
