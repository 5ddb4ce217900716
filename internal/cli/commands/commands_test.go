package commands

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandDefinitions(t *testing.T) {
	tests := []struct {
		name  string
		cmd   *cobra.Command
		use   string
		flags []string
	}{
		{"init", NewInitCommand(), "init [directory]", []string{"force"}},
		{"generate", NewGenerateCommand(), "generate", []string{"seed", "customers", "products", "orders", "sessions", "days", "start-date", "noise-rate", "out", "sink", "brokers", "topic-prefix"}},
		{"load", NewLoadCommand(), "load", []string{"only"}},
		{"run", NewRunCommand(), "run", []string{"select", "downstream", "full-refresh", "threads", "json", "watch"}},
		{"test", NewTestCommand(), "test", []string{"select", "fail-fast", "threads", "compile"}},
		{"build", NewBuildCommand(), "build", []string{"select", "full-refresh", "threads", "skip-load", "fail-fast"}},
		{"report", NewReportCommand(), "report [names...]", []string{"list", "sql", "bar-width"}},
		{"serve", NewServeCommand(), "serve", []string{"host", "port", "refresh"}},
		{"dag", NewDAGCommand(), "dag", nil},
		{"list", NewListCommand(), "list", []string{"layer"}},
		{"runs", NewRunsCommand(), "runs [run-id]", []string{"limit"}},
		{"render", NewRenderCommand(), "render <model>", nil},
		{"query", NewQueryCommand(), "query [SQL]", []string{"format", "input"}},
		{"schedule", NewScheduleCommand(), "schedule", []string{"every", "cron", "timezone", "run-now", "select", "skip-load"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.use, tt.cmd.Use)
			assert.NotEmpty(t, tt.cmd.Short, "Short should not be empty")
			for _, flag := range tt.flags {
				assert.NotNil(t, tt.cmd.Flags().Lookup(flag), "flag %q should exist", flag)
			}
		})
	}
}

func TestNewRunCommand_Alias(t *testing.T) {
	cmd := NewRunCommand()
	require.NotEmpty(t, cmd.Aliases)
	assert.Equal(t, "transform", cmd.Aliases[0])

	assert.Equal(t, "s", cmd.Flags().Lookup("select").Shorthand)
	assert.Equal(t, "w", cmd.Flags().Lookup("watch").Shorthand)
}

func TestListTemplateFiles(t *testing.T) {
	files, err := listTemplateFiles()
	require.NoError(t, err)

	for _, want := range []string{
		"shopflow.yaml",
		".gitignore",
		"models/sources.yml",
		"models/bronze/brz_orders.sql",
		"models/silver/slv_customers.sql",
		"models/silver/slv_events.sql",
		"models/gold/fct_orders.sql",
		"models/gold/dim_date.sql",
		"reports/revenue_by_channel.sql",
	} {
		assert.Contains(t, files, want)
	}
	assert.NotContains(t, files, "gitignore")
}

func TestGroupTemplateFiles(t *testing.T) {
	groups := groupTemplateFiles([]string{
		"shopflow.yaml",
		".gitignore",
		"models/sources.yml",
		"models/gold/fct_orders.sql",
		"reports/funnel.sql",
		"data/README.md",
	})

	assert.Equal(t, []string{"shopflow.yaml", ".gitignore"}, groups["config"])
	assert.Equal(t, []string{"models/sources.yml", "models/gold/fct_orders.sql"}, groups["models"])
	assert.Equal(t, []string{"reports/funnel.sql"}, groups["reports"])
	assert.Equal(t, []string{"data/README.md"}, groups["data"])
}

func TestSplitSelectors(t *testing.T) {
	assert.Equal(t, []string{"slv_orders", "layer:gold", "+fct_orders"},
		splitSelectors([]string{"slv_orders, layer:gold", "", "+fct_orders"}))
	assert.Empty(t, splitSelectors(nil))
}
