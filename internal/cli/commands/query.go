package commands

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/shopflow/internal/cli/output"
	"github.com/leapstack-labs/shopflow/internal/engine"
)

// tablesQuery lists warehouse relations; information_schema is available
// on every supported warehouse.
const tablesQuery = `SELECT table_schema, table_name, table_type
FROM information_schema.tables
WHERE table_schema NOT IN ('information_schema', 'pg_catalog', 'INFORMATION_SCHEMA')
ORDER BY table_schema, table_name`

// QueryOptions holds options for the query command.
type QueryOptions struct {
	Format string
	Input  string
}

// NewQueryCommand creates the query command.
func NewQueryCommand() *cobra.Command {
	opts := &QueryOptions{}

	cmd := &cobra.Command{
		Use:   "query [SQL]",
		Short: "Query the warehouse",
		Long: `Run SQL directly against the warehouse target.

SQL is taken from the arguments, from --input, or from stdin when it is
piped. Without any of these an interactive REPL starts, with history,
table completion and dot-commands (.tables, .schema <table>, .help, .quit).`,
		Example: `  # One-shot query
  shopflow query "SELECT * FROM gold.gld_revenue_by_channel"

  # From a file, as CSV
  shopflow query --input adhoc.sql --format csv > out.csv

  # Interactive
  shopflow query`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Format, "format", "f", "", "Output format: table, json, csv, markdown (default: --output)")
	cmd.Flags().StringVarP(&opts.Input, "input", "i", "", "Read SQL from file")

	_ = cmd.RegisterFlagCompletionFunc("format", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"table", "json", "csv", "markdown"}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func runQuery(cmd *cobra.Command, args []string, opts *QueryOptions) error {
	cc, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	var query string
	switch {
	case len(args) > 0:
		query = strings.Join(args, " ")
	case opts.Input != "":
		content, err := os.ReadFile(opts.Input)
		if err != nil {
			return fmt.Errorf("failed to read file: %w", err)
		}
		query = string(content)
	case !isTerminal(cmd.InOrStdin()):
		content, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
		query = string(content)
	default:
		return runQueryREPL(cmd, cc, opts)
	}

	// Reports and models may reference each other by name; the engine
	// resolves nothing here, the SQL goes to the warehouse unchanged.
	query = strings.TrimSuffix(strings.TrimSpace(query), ";")
	if query == "" {
		return fmt.Errorf("empty query")
	}
	return executeAndRender(cmd.Context(), cc, query, opts.Format)
}

func executeAndRender(ctx context.Context, cc *CommandContext, query, format string) error {
	res, err := cc.Engine.Query(ctx, query)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}
	return renderQueryResult(cc.Renderer, res, format)
}

// renderQueryResult writes a result in the requested format. An empty
// format follows the renderer's mode.
func renderQueryResult(r *output.Renderer, res *engine.QueryResult, format string) error {
	rows := res.Rows
	if rows == nil {
		rows = [][]any{}
	}

	mode := r.EffectiveMode()
	switch strings.ToLower(format) {
	case "":
	case "json":
		mode = output.ModeJSON
	case "csv":
		return renderCSV(r.Writer(), res.Columns, rows)
	case "md", "markdown":
		mode = output.ModeMarkdown
	case "table", "text":
		mode = output.ModeText
	default:
		return fmt.Errorf("unknown format %q (must be table, json, csv or markdown)", format)
	}

	if mode == output.ModeJSON {
		return r.JSON(output.QueryOutput{Columns: res.Columns, Rows: rows, Count: len(rows)})
	}
	tr := output.NewRendererWithTTY(r.Writer(), r.ErrWriter(), r.IsTTY(), mode)
	tr.Table(res.Columns, output.ValueRows(rows))
	tr.Muted(fmt.Sprintf("(%s)", output.Plural(len(rows), "row")))
	return nil
}

func renderCSV(w io.Writer, cols []string, rows [][]any) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(cols); err != nil {
		return err
	}
	for _, row := range rows {
		record := make([]string, len(row))
		for i, v := range row {
			if v != nil {
				record[i] = output.FormatValue(v)
			}
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// isTerminal reports whether r is an interactive terminal.
func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
