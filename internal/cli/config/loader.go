package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/leapstack-labs/shopflow/internal/cli/output"
	"github.com/leapstack-labs/shopflow/internal/generate"
	"github.com/spf13/pflag"
)

type loggerKey struct{}

// maxUpwardSearchLevels limits how far up the tree the config search goes.
const maxUpwardSearchLevels = 10

// EnvPrefix prefixes every environment variable the loader reads.
// A double underscore separates nested keys: SHOPFLOW_TARGET__HOST.
const EnvPrefix = "SHOPFLOW_"

// flagKeys maps global flag names to config keys. Flags not listed here
// belong to a single command and are read by that command directly.
var flagKeys = map[string]string{
	"env":         "environment",
	"models-dir":  "models_dir",
	"data-dir":    "data_dir",
	"reports-dir": "reports_dir",
	"state":       "state_path",
	"verbose":     "verbose",
	"output":      "output",
	"log-format":  "log_format",
	"threads":     "threads",
}

// pathFlags are resolved against the working directory rather than the
// project root, since the user typed them relative to where they stand.
var pathFlags = []string{"models-dir", "data-dir", "reports-dir", "state"}

var (
	configFileUsed string
	currentConfig  *Config
)

// Load resolves configuration. targetEnv, when set, selects which
// environments.<name> section supplies the warehouse target without
// changing the active environment. flags may be nil.
func Load(cfgFile, targetEnv string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	projectRoot := inferProjectRoot(cfgFile, flags)

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if cfgFile == "" {
		cfgFile = configFileIn(projectRoot)
	}
	configFileUsed = cfgFile
	if cfgFile != "" {
		if err := k.Load(file.Provider(cfgFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", cfgFile, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(key, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.ProjectRoot = projectRoot

	if err := cfg.applyEnvironment(targetEnv); err != nil {
		return nil, err
	}

	ApplyTargetDefaults(cfg.Target)
	expandTargetEnvVars(cfg.Target)
	cfg.resolvePaths(flags)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	currentConfig = &cfg
	return &cfg, nil
}

func defaults() map[string]any {
	g := generate.DefaultConfig()
	return map[string]any{
		"models_dir":                  DefaultModelsDir,
		"data_dir":                    DefaultDataDir,
		"reports_dir":                 DefaultReportsDir,
		"state_path":                  DefaultStateFile,
		"environment":                 DefaultEnv,
		"verbose":                     false,
		"output":                      DefaultOutput,
		"log_format":                  DefaultLogFormat,
		"threads":                     DefaultThreads,
		"target.type":                 "duckdb",
		"generate.seed":               g.Seed,
		"generate.customers":          g.Customers,
		"generate.products":           g.Products,
		"generate.orders":             g.Orders,
		"generate.sessions":           g.Sessions,
		"generate.days":               g.Days,
		"generate.start_date":         g.StartDate.Format("2006-01-02"),
		"generate.noise_rate":         g.NoiseRate,
		"generate.sink":               DefaultSink,
		"generate.kafka.topic_prefix": "shopflow.raw.",
		"serve.host":                  "127.0.0.1",
		"serve.port":                  DefaultServePort,
	}
}

// applyEnvironment merges the environments.<name> overrides. The active
// environment contributes vars, threads and data dir; targetEnv (or the
// active environment when empty) contributes the target.
func (c *Config) applyEnvironment(targetEnv string) error {
	if targetEnv != "" {
		if _, ok := c.Environments[targetEnv]; !ok {
			return fmt.Errorf("unknown target %q (defined environments: %s)", targetEnv, c.environmentNames())
		}
	}

	if envCfg, ok := c.Environments[c.Environment]; ok {
		if len(envCfg.Vars) > 0 {
			vars := maps.Clone(c.Vars)
			if vars == nil {
				vars = make(map[string]any, len(envCfg.Vars))
			}
			maps.Copy(vars, envCfg.Vars)
			c.Vars = vars
		}
		if envCfg.Threads > 0 {
			c.Threads = envCfg.Threads
		}
		if envCfg.DataDir != "" {
			c.DataDir = envCfg.DataDir
		}
	}

	name := targetEnv
	if name == "" {
		name = c.Environment
	}
	if envCfg, ok := c.Environments[name]; ok && envCfg.Target != nil {
		c.Target = MergeTargetConfig(c.Target, envCfg.Target)
	}
	if c.Target == nil {
		c.Target = &TargetConfig{Type: "duckdb"}
	}
	return nil
}

func (c *Config) environmentNames() string {
	names := slices.Sorted(maps.Keys(c.Environments))
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ", ")
}

func (c *Config) resolvePaths(flags *pflag.FlagSet) {
	fromFlag := func(name string) (string, bool) {
		if flags == nil || !flags.Changed(name) {
			return "", false
		}
		v, err := flags.GetString(name)
		if err != nil || v == "" {
			return "", false
		}
		if abs, err := filepath.Abs(v); err == nil {
			return abs, true
		}
		return v, true
	}

	targets := map[string]*string{
		"models-dir":  &c.ModelsDir,
		"data-dir":    &c.DataDir,
		"reports-dir": &c.ReportsDir,
		"state":       &c.StatePath,
	}
	for _, name := range pathFlags {
		dst := targets[name]
		if v, ok := fromFlag(name); ok {
			*dst = v
			continue
		}
		*dst = resolvePathRelativeTo(*dst, c.ProjectRoot)
	}

	if c.Target != nil && c.Target.Type == "duckdb" && c.Target.Database != ":memory:" {
		c.Target.Database = resolvePathRelativeTo(c.Target.Database, c.ProjectRoot)
	}
}

// inferProjectRoot picks the directory relative paths resolve against:
// the explicit config file's directory, the parent of a --models-dir named
// "models" (or holding a config file), the nearest ancestor with a config
// file, and finally the working directory.
func inferProjectRoot(cfgFile string, flags *pflag.FlagSet) string {
	if cfgFile != "" {
		if abs, err := filepath.Abs(cfgFile); err == nil {
			return filepath.Dir(abs)
		}
	}

	if flags != nil && flags.Changed("models-dir") {
		if v, _ := flags.GetString("models-dir"); v != "" {
			if abs, err := filepath.Abs(v); err == nil {
				parent := filepath.Dir(abs)
				if configFileIn(parent) != "" || filepath.Base(abs) == DefaultModelsDir {
					return parent
				}
			}
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}
	if root := FindProjectRoot(cwd); root != "" {
		return root
	}
	return cwd
}

func resolvePathRelativeTo(path, baseDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

// Validate checks the resolved configuration.
func (c *Config) Validate() error {
	var errs []error
	if c.ModelsDir == "" {
		errs = append(errs, errors.New("models_dir is required"))
	}
	if c.Threads < 1 {
		errs = append(errs, fmt.Errorf("threads must be >= 1, got %d", c.Threads))
	}
	if !output.ValidMode(c.OutputFormat) {
		errs = append(errs, fmt.Errorf("invalid output %q (must be one of: %s)", c.OutputFormat, strings.Join(output.Modes, ", ")))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("invalid log_format %q (must be text or json)", c.LogFormat))
	}
	if err := ValidateTarget(c.Target); err != nil {
		errs = append(errs, fmt.Errorf("invalid target configuration: %w", err))
	}
	return errors.Join(errs...)
}

// ValidateDirectories checks that the models directory exists.
func (c *Config) ValidateDirectories() error {
	if _, err := os.Stat(c.ModelsDir); os.IsNotExist(err) {
		return fmt.Errorf("models directory does not exist: %s\nHint: run `shopflow init` or pass --models-dir", c.ModelsDir)
	}
	return nil
}

// ResetConfig clears loader state between tests.
func ResetConfig() {
	configFileUsed = ""
	currentConfig = nil
}

// GetConfigFileUsed returns the config file the last Load read, if any.
func GetConfigFileUsed() string {
	return configFileUsed
}

// GetCurrentConfig returns the configuration from the last Load.
func GetCurrentConfig() *Config {
	return currentConfig
}

// LoggerKey returns the context key under which the root command stores
// its logger.
func LoggerKey() any {
	return loggerKey{}
}

// GetLogger returns the logger stored in ctx, or a discarding logger.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.New(slog.DiscardHandler)
}
