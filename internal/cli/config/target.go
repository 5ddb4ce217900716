package config

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/leapstack-labs/shopflow/pkg/adapter"
	"github.com/leapstack-labs/shopflow/pkg/dialect"
)

// DefaultSchemaForType returns the registered dialect's default schema,
// or "main" for unknown types.
func DefaultSchemaForType(dbType string) string {
	if d, ok := dialect.Get(dbType); ok && d.DefaultSchema != "" {
		return d.DefaultSchema
	}
	return "main"
}

// ApplyTargetDefaults fills type-dependent defaults.
func ApplyTargetDefaults(t *TargetConfig) {
	if t == nil {
		return
	}
	t.Type = strings.ToLower(t.Type)
	if t.Schema == "" {
		t.Schema = DefaultSchemaForType(t.Type)
	}

	switch t.Type {
	case "postgres":
		if t.Port == 0 {
			t.Port = 5432
		}
	case "mysql":
		if t.Port == 0 {
			t.Port = 3306
		}
	case "duckdb":
		if t.Database == "" {
			t.Database = DefaultDatabase
		}
	}
}

// ValidateTarget checks that the target names a registered adapter and
// carries the connection fields that adapter needs.
func ValidateTarget(t *TargetConfig) error {
	if t == nil || t.Type == "" {
		return fmt.Errorf("target type is required")
	}
	if !adapter.IsRegistered(strings.ToLower(t.Type)) {
		return &adapter.UnknownAdapterError{
			Type:      t.Type,
			Available: adapter.ListAdapters(),
		}
	}

	switch strings.ToLower(t.Type) {
	case "postgres", "mysql":
		if t.Host == "" {
			return fmt.Errorf("target.host is required for %s", t.Type)
		}
	case "snowflake":
		if t.Account == "" {
			return fmt.Errorf("target.account is required for snowflake")
		}
	}
	return nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR} with the variable's value. Unset variables
// are left as written so the failure surfaces at connect time.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if val, ok := os.LookupEnv(match[2 : len(match)-1]); ok {
			return val
		}
		return match
	})
}

func expandTargetEnvVars(t *TargetConfig) {
	if t == nil {
		return
	}
	t.Password = expandEnvVars(t.Password)
	t.User = expandEnvVars(t.User)
	t.Host = expandEnvVars(t.Host)
	t.Database = expandEnvVars(t.Database)
	t.Account = expandEnvVars(t.Account)
	t.Warehouse = expandEnvVars(t.Warehouse)
	t.Role = expandEnvVars(t.Role)
	for k, v := range t.Options {
		t.Options[k] = expandEnvVars(v)
	}
}

// MergeTargetConfig overlays the non-zero fields of override on base.
// Neither argument is modified.
func MergeTargetConfig(base, override *TargetConfig) *TargetConfig {
	if base == nil {
		return override
	}
	if override == nil {
		return base
	}

	merged := *base
	merged.Options = maps.Clone(base.Options)
	merged.Params = maps.Clone(base.Params)
	if merged.Options == nil {
		merged.Options = make(map[string]string)
	}
	if merged.Params == nil {
		merged.Params = make(map[string]any)
	}

	overlay := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	overlay(&merged.Type, override.Type)
	overlay(&merged.Database, override.Database)
	overlay(&merged.Host, override.Host)
	overlay(&merged.User, override.User)
	overlay(&merged.Password, override.Password)
	overlay(&merged.Schema, override.Schema)
	overlay(&merged.SchemaPrefix, override.SchemaPrefix)
	overlay(&merged.Account, override.Account)
	overlay(&merged.Warehouse, override.Warehouse)
	overlay(&merged.Role, override.Role)
	if override.Port != 0 {
		merged.Port = override.Port
	}
	maps.Copy(merged.Options, override.Options)
	maps.Copy(merged.Params, override.Params)

	return &merged
}

// FindProjectRoot walks up from startDir, at most maxUpwardSearchLevels
// directories, looking for a shopflow config file. It returns "" when none
// is found.
func FindProjectRoot(startDir string) string {
	dir := startDir
	for range maxUpwardSearchLevels {
		if configFileIn(dir) != "" {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

func configFileIn(dir string) string {
	for _, name := range ConfigFileNames {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
