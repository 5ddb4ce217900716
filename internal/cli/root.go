// Package cli provides the shopflow command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/shopflow/internal/cli/commands"
	"github.com/leapstack-labs/shopflow/internal/cli/config"
	"github.com/leapstack-labs/shopflow/internal/cli/output"
	"github.com/leapstack-labs/shopflow/internal/engine"

	// Register warehouse adapters.
	_ "github.com/leapstack-labs/shopflow/pkg/adapters/duckdb"
	_ "github.com/leapstack-labs/shopflow/pkg/adapters/mysql"
	_ "github.com/leapstack-labs/shopflow/pkg/adapters/postgres"
	_ "github.com/leapstack-labs/shopflow/pkg/adapters/snowflake"
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// skipConfig lists commands that run without loading configuration.
var skipConfig = map[string]bool{
	"help":       true,
	"completion": true,
	"__complete": true,
	"version":    true,
	"init":       true,
}

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	var (
		cfgFile    string
		targetFlag string
	)

	rootCmd := &cobra.Command{
		Use:   "shopflow",
		Short: "shopflow - e-commerce analytics pipeline",
		Long: `shopflow generates synthetic e-commerce data, loads it into a warehouse
and transforms it through bronze, silver and gold SQL models into a star
schema with data tests and analytical reports.

Every transformation lives in SQL files inside the project directory;
shopflow renders them, orders them by dependency and executes them.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if skipConfig[cmd.Name()] {
				return nil
			}

			cfg, err := config.Load(cfgFile, targetFlag, cmd.Flags())
			if err != nil {
				return err
			}

			logger := NewLogger(cmd.ErrOrStderr(), cfg)
			ctx := context.WithValue(cmd.Context(), config.LoggerKey(), logger)
			cmd.SetContext(ctx)

			if file := config.GetConfigFileUsed(); file != "" {
				logger.Debug("using config file", "path", file)
			}
			logger.Debug("configuration loaded",
				"environment", cfg.Environment,
				"target", cfg.Target.Type,
				"project_root", cfg.ProjectRoot,
			)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
`)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: shopflow.yaml in the project root)")
	pf.StringVarP(&targetFlag, "target", "t", "", "Use the target of environments.<name> (e.g. ci, prod)")
	pf.String("env", config.DefaultEnv, "Environment name recorded with each run")
	pf.String("models-dir", config.DefaultModelsDir, "Path to models directory")
	pf.String("data-dir", config.DefaultDataDir, "Path to generated CSV data")
	pf.String("reports-dir", config.DefaultReportsDir, "Path to report queries")
	pf.String("state", config.DefaultStateFile, "Path to state database")
	pf.BoolP("verbose", "v", false, "Verbose output")
	pf.StringP("output", "o", config.DefaultOutput, "Output format (auto|text|markdown|json)")
	pf.String("log-format", config.DefaultLogFormat, "Log format (text|json)")

	_ = rootCmd.RegisterFlagCompletionFunc("output", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return output.Modes, cobra.ShellCompDirectiveNoFileComp
	})
	_ = rootCmd.RegisterFlagCompletionFunc("log-format", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"text", "json"}, cobra.ShellCompDirectiveNoFileComp
	})
	_ = rootCmd.RegisterFlagCompletionFunc("target", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"dev", "ci", "prod"}, cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.AddCommand(
		commands.NewInitCommand(),
		commands.NewGenerateCommand(),
		commands.NewLoadCommand(),
		commands.NewRunCommand(),
		commands.NewTestCommand(),
		commands.NewBuildCommand(),
		commands.NewReportCommand(),
		commands.NewServeCommand(),
		commands.NewDAGCommand(),
		commands.NewListCommand(),
		commands.NewRunsCommand(),
		commands.NewRenderCommand(),
		commands.NewQueryCommand(),
		commands.NewScheduleCommand(),
		commands.NewVersionCommand(Version, GitCommit, BuildDate),
		NewCompletionCommand(),
	)

	return rootCmd
}

// NewLogger builds the process logger. Logs go to w (stderr) so stdout
// stays clean for rendered output.
func NewLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch {
	case cfg.Verbose:
		level = slog.LevelDebug
	case output.Mode(cfg.OutputFormat) == output.ModeJSON:
		level = slog.LevelWarn
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Execute runs the root command and prints any error.
func Execute() error {
	rootCmd := NewRootCmd()
	err := rootCmd.Execute()
	if err == nil {
		return nil
	}

	// Test failures were already reported in the summary.
	var testErr *engine.TestFailuresError
	if !errors.As(err, &testErr) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return err
}

// NewCompletionCommand creates the completion command.
func NewCompletionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for shopflow.

Bash:
  $ source <(shopflow completion bash)

Zsh:
  $ shopflow completion zsh > "${fpath[1]}/_shopflow"

Fish:
  $ shopflow completion fish | source

PowerShell:
  PS> shopflow completion powershell | Out-String | Invoke-Expression
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			}
			return nil
		},
	}
}
