// Package commands implements the shopflow subcommands.
package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/shopflow/internal/cli/config"
	"github.com/leapstack-labs/shopflow/internal/cli/output"
	"github.com/leapstack-labs/shopflow/internal/engine"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Engine   *engine.Engine
	Renderer *output.Renderer
}

// NewCommandContext creates a CommandContext with an engine. The returned
// cleanup closes the engine and must be called.
func NewCommandContext(cmd *cobra.Command) (*CommandContext, func(), error) {
	cc, err := NewCommandContextWithoutEngine(cmd)
	if err != nil {
		return nil, nil, err
	}

	eng, err := createEngine(cc.Cfg, cc.Logger)
	if err != nil {
		return nil, nil, err
	}
	cc.Engine = eng

	cleanup := func() {
		if err := eng.Close(); err != nil {
			cc.Logger.Warn("failed to close engine", "error", err)
		}
	}
	return cc, cleanup, nil
}

// NewCommandContextWithoutEngine creates a CommandContext for commands that
// never touch the warehouse or state store.
func NewCommandContextWithoutEngine(cmd *cobra.Command) (*CommandContext, error) {
	cfg, err := getConfig(cmd)
	if err != nil {
		return nil, err
	}
	return &CommandContext{
		Cfg:      cfg,
		Logger:   config.GetLogger(cmd.Context()),
		Renderer: output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.OutputFormat)),
	}, nil
}

// getConfig returns the configuration loaded by the root command, loading
// it from the command's flags when the command runs standalone.
func getConfig(cmd *cobra.Command) (*config.Config, error) {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg, nil
	}
	return config.Load("", "", cmd.Flags())
}

func createEngine(cfg *config.Config, logger *slog.Logger) (*engine.Engine, error) {
	dirs := []string{filepath.Dir(cfg.StatePath)}
	if cfg.Target != nil && cfg.Target.Type == "duckdb" && cfg.Target.Database != "" && cfg.Target.Database != ":memory:" {
		dirs = append(dirs, filepath.Dir(cfg.Target.Database))
	}
	for _, dir := range dirs {
		if dir == "." || dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return engine.New(engine.Config{
		ModelsDir:   cfg.ModelsDir,
		DataDir:     cfg.DataDir,
		ReportsDir:  cfg.ReportsDir,
		StatePath:   cfg.StatePath,
		Environment: cfg.Environment,
		Target:      cfg.Target,
		Vars:        cfg.Vars,
		Threads:     cfg.Threads,
		Logger:      logger,
	})
}

// discover runs model discovery and reports per-file problems and layer
// warnings. Files that fail to parse are left out; only a dependency cycle
// or a missing models directory is fatal.
func discover(cc *CommandContext) (*engine.DiscoveryResult, error) {
	if err := cc.Cfg.ValidateDirectories(); err != nil {
		return nil, err
	}
	res, err := cc.Engine.Discover(engine.DiscoveryOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to discover models: %w", err)
	}
	for _, derr := range res.Errors {
		if cc.Renderer.EffectiveMode() == output.ModeJSON {
			cc.Logger.Warn("discovery problem", "error", derr)
			continue
		}
		cc.Renderer.Warning(derr.Error())
	}
	for _, w := range res.Warnings {
		cc.Logger.Warn("layer order violation", "parent", w.Parent, "child", w.Child, "reason", w.Reason)
	}
	return res, nil
}

// splitSelectors accepts repeated and comma-separated --select values.
func splitSelectors(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// completeModels completes model names for --select from the models
// directory. Discovery problems are ignored.
func completeModels(cmd *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	cc, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	defer cleanup()

	if _, err := cc.Engine.Discover(engine.DiscoveryOptions{SkipPersist: true}); err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	var names []string
	for _, m := range cc.Engine.Models() {
		if strings.HasPrefix(m.Name, toComplete) {
			names = append(names, m.Name)
		}
	}
	return names, cobra.ShellCompDirectiveNoFileComp
}
