package core

// TargetConfig holds warehouse target configuration.
type TargetConfig struct {
	Type string `koanf:"type"` // duckdb, postgres, snowflake, mysql

	// File-based databases (DuckDB)
	Database string `koanf:"database"` // file path or database name

	// Network databases
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`

	// Schema is the default schema of the connection.
	Schema string `koanf:"schema"`

	// SchemaPrefix is prepended to every layer schema (dev_ -> dev_silver).
	SchemaPrefix string `koanf:"schema_prefix"`

	// Snowflake-specific
	Account   string `koanf:"account"`
	Warehouse string `koanf:"warehouse"`
	Role      string `koanf:"role"`

	// Additional driver-specific options
	Options map[string]string `koanf:"options"`

	// Params holds adapter-specific configuration (e.g. DuckDB extensions and settings)
	Params map[string]any `koanf:"params"`
}

// AdapterConfig converts the target into the connection settings an adapter needs.
func (t *TargetConfig) AdapterConfig() AdapterConfig {
	return AdapterConfig{
		Type:      t.Type,
		Path:      t.Database,
		Host:      t.Host,
		Port:      t.Port,
		Database:  t.Database,
		Username:  t.User,
		Password:  t.Password,
		Schema:    t.Schema,
		Account:   t.Account,
		Warehouse: t.Warehouse,
		Role:      t.Role,
		Options:   t.Options,
		Params:    t.Params,
	}
}

// LayerSchema returns the schema name for a layer under this target.
func (t *TargetConfig) LayerSchema(layer Layer) string {
	if t == nil {
		return string(layer)
	}
	return t.SchemaPrefix + string(layer)
}

// RawSchema returns the schema sources are loaded into.
func (t *TargetConfig) RawSchema() string {
	if t == nil {
		return RawSchema
	}
	return t.SchemaPrefix + RawSchema
}
