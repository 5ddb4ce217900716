package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/shopflow/internal/cli/output"
)

const (
	replPrompt      = "shopflow> "
	replContinue    = "     ...> "
	replHistoryFile = "query_history"
)

func runQueryREPL(cmd *cobra.Command, cc *CommandContext, opts *QueryOptions) error {
	ctx := cmd.Context()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          replPrompt,
		HistoryFile:     filepath.Join(filepath.Dir(cc.Cfg.StatePath), replHistoryFile),
		AutoComplete:    newTableCompleter(ctx, cc),
		InterruptPrompt: "^C",
		EOFPrompt:       ".quit",
		Stdout:          cmd.OutOrStdout(),
		Stderr:          cmd.ErrOrStderr(),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize REPL: %w", err)
	}
	defer func() { _ = rl.Close() }()

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "shopflow query REPL (target: %s)\n", cc.Cfg.Target.Type)
	_, _ = fmt.Fprintln(out, "Type .help for commands, .quit to exit")
	_, _ = fmt.Fprintln(out)

	var buf strings.Builder
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			buf.Reset()
			rl.SetPrompt(replPrompt)
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if buf.Len() == 0 && strings.HasPrefix(line, ".") {
			if quit := handleDotCommand(ctx, cmd, cc, line, opts.Format); quit {
				return nil
			}
			continue
		}

		buf.WriteString(line)
		if !strings.HasSuffix(line, ";") {
			buf.WriteString("\n")
			rl.SetPrompt(replContinue)
			continue
		}
		rl.SetPrompt(replPrompt)

		query := strings.TrimSuffix(buf.String(), ";")
		buf.Reset()

		if err := executeAndRender(ctx, cc, query, opts.Format); err != nil {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		}
		_, _ = fmt.Fprintln(out)
	}
}

// handleDotCommand runs a REPL dot-command and reports whether the REPL
// should exit.
func handleDotCommand(ctx context.Context, cmd *cobra.Command, cc *CommandContext, line, format string) bool {
	parts := strings.Fields(line)
	errOut := cmd.ErrOrStderr()

	switch strings.ToLower(parts[0]) {
	case ".quit", ".exit":
		return true

	case ".help":
		printREPLHelp(cmd.OutOrStdout())

	case ".tables":
		if err := executeAndRender(ctx, cc, tablesQuery, format); err != nil {
			_, _ = fmt.Fprintf(errOut, "Error: %v\n", err)
		}

	case ".schema":
		if len(parts) < 2 {
			_, _ = fmt.Fprintln(errOut, "Usage: .schema <table>")
			return false
		}
		if err := showSchema(ctx, cc, parts[1]); err != nil {
			_, _ = fmt.Fprintf(errOut, "Error: %v\n", err)
		}

	case ".clear":
		_, _ = fmt.Fprint(cmd.OutOrStdout(), "\033[H\033[2J")

	default:
		_, _ = fmt.Fprintf(errOut, "Unknown command: %s (type .help for commands)\n", parts[0])
	}
	return false
}

func showSchema(ctx context.Context, cc *CommandContext, table string) error {
	meta, err := cc.Engine.Describe(ctx, table)
	if err != nil {
		return err
	}
	rows := make([][]string, 0, len(meta.Columns))
	for _, c := range meta.Columns {
		rows = append(rows, []string{strconv.Itoa(c.Position), c.Name, c.Type, strconv.FormatBool(c.Nullable)})
	}
	r := cc.Renderer
	r.Header(3, meta.Schema+"."+meta.Name)
	r.Table([]string{"#", "column", "type", "nullable"}, rows)
	r.Muted(output.Plural(int(meta.RowCount), "row"))
	return nil
}

func printREPLHelp(w io.Writer) {
	help := `
Commands:
  .help           Show this help message
  .tables         List warehouse tables and views
  .schema <name>  Show columns of a table (schema.table)
  .clear          Clear the screen
  .quit / .exit   Exit the REPL

Tips:
  - SQL statements end with a semicolon (;) and may span lines
  - Use arrow keys to navigate history
  - Tab completes dot-commands and table names
`
	_, _ = fmt.Fprintln(w, help)
}

// newTableCompleter completes dot-commands and schema-qualified relation
// names. A warehouse that cannot be listed only gets dot-commands.
func newTableCompleter(ctx context.Context, cc *CommandContext) *readline.PrefixCompleter {
	var items []readline.PrefixCompleterInterface
	for _, c := range []string{".help", ".tables", ".clear", ".quit", ".exit"} {
		items = append(items, readline.PcItem(c))
	}

	var schemaItems []readline.PrefixCompleterInterface
	if res, err := cc.Engine.Query(ctx, tablesQuery); err == nil {
		for _, row := range res.Rows {
			name := output.FormatValue(row[0]) + "." + output.FormatValue(row[1])
			items = append(items, readline.PcItem(name))
			schemaItems = append(schemaItems, readline.PcItem(name))
		}
	}
	items = append(items, readline.PcItem(".schema", schemaItems...))

	return readline.NewPrefixCompleter(items...)
}
