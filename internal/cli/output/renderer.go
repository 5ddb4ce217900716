package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/goccy/go-json"
	"golang.org/x/term"
)

// Renderer writes command output in the selected mode.
type Renderer struct {
	out    io.Writer
	errOut io.Writer
	mode   OutputMode
	isTTY  bool
	styles *Styles
}

// NewRenderer creates a renderer, detecting whether out is a terminal.
func NewRenderer(out, errOut io.Writer, mode OutputMode) *Renderer {
	return NewRendererWithTTY(out, errOut, isTerminal(out), mode)
}

// NewRendererWithTTY creates a renderer with an explicit TTY state.
func NewRendererWithTTY(out, errOut io.Writer, isTTY bool, mode OutputMode) *Renderer {
	if mode == "" {
		mode = ModeAuto
	}
	r := &Renderer{
		out:    out,
		errOut: errOut,
		mode:   mode,
		isTTY:  isTTY,
	}
	r.styles = NewStyles(out, isTTY && r.EffectiveMode() == ModeText)
	return r
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd())) //nolint:gosec // fd fits in int
}

// Mode returns the requested mode.
func (r *Renderer) Mode() OutputMode { return r.mode }

// EffectiveMode resolves auto to text on a terminal and markdown otherwise.
func (r *Renderer) EffectiveMode() OutputMode {
	if r.mode != ModeAuto {
		return r.mode
	}
	if r.isTTY {
		return ModeText
	}
	return ModeMarkdown
}

// IsTTY reports whether stdout is a terminal.
func (r *Renderer) IsTTY() bool { return r.isTTY }

// Styles returns the text-mode styles.
func (r *Renderer) Styles() *Styles { return r.styles }

// Writer returns the stdout writer.
func (r *Renderer) Writer() io.Writer { return r.out }

// ErrWriter returns the stderr writer.
func (r *Renderer) ErrWriter() io.Writer { return r.errOut }

// Println writes a line to stdout.
func (r *Renderer) Println(a ...any) {
	_, _ = fmt.Fprintln(r.out, a...)
}

// Printf writes formatted text to stdout.
func (r *Renderer) Printf(format string, a ...any) {
	_, _ = fmt.Fprintf(r.out, format, a...)
}

// Header writes a section header. Level 1 is the page title.
func (r *Renderer) Header(level int, text string) {
	switch r.EffectiveMode() {
	case ModeJSON:
		return
	case ModeMarkdown:
		r.Println(FormatHeader(level, text))
		r.Println()
	default:
		if level <= 1 {
			r.Println(r.styles.Header1.Render(text))
		} else {
			r.Println(r.styles.Header2.Render(text))
		}
	}
}

// KeyValue writes a labelled value.
func (r *Renderer) KeyValue(key, value string) {
	switch r.EffectiveMode() {
	case ModeJSON:
		return
	case ModeMarkdown:
		r.Println(FormatKeyValue(key, value))
	default:
		r.Printf("%s %s\n", r.styles.Muted.Render(key+":"), value)
	}
}

// StatusLine writes "name  status  detail" with the status coloured.
func (r *Renderer) StatusLine(name, status, detail string) {
	switch r.EffectiveMode() {
	case ModeJSON:
		return
	case ModeMarkdown:
		line := fmt.Sprintf("- `%s` **%s**", name, status)
		if detail != "" {
			line += " " + detail
		}
		r.Println(line)
	default:
		line := fmt.Sprintf("  %-9s %s", r.styles.StatusStyle(status).Render(statusIcon(status)), r.styles.ModelPath.Render(name))
		if detail != "" {
			line += " " + r.styles.Muted.Render(detail)
		}
		r.Println(line)
	}
}

func statusIcon(status string) string {
	switch status {
	case "success", "pass", "completed":
		return "OK " + status
	case "failed", "fail", "error":
		return "ERR " + status
	case "skipped", "warn", "cancelled":
		return "-- " + status
	default:
		return status
	}
}

// ModelLine writes one numbered entry of a model listing.
func (r *Renderer) ModelLine(index int, path, materialized string, deps []string) {
	switch r.EffectiveMode() {
	case ModeJSON:
		return
	case ModeMarkdown:
		line := fmt.Sprintf("%d. `%s` (%s)", index, path, materialized)
		if len(deps) > 0 {
			line += " <- " + strings.Join(deps, ", ")
		}
		r.Println(line)
	default:
		line := fmt.Sprintf("%3d. %s %s", index, r.styles.ModelPath.Render(path), r.styles.Muted.Render("["+materialized+"]"))
		if len(deps) > 0 {
			line += r.styles.Muted.Render(" <- " + strings.Join(deps, ", "))
		}
		r.Println(line)
	}
}

// Success writes a success message.
func (r *Renderer) Success(msg string) { r.message(r.styles.Success.Render, msg) }

// Warning writes a warning message.
func (r *Renderer) Warning(msg string) { r.message(r.styles.Warning.Render, "warning: "+msg) }

// Muted writes secondary information.
func (r *Renderer) Muted(msg string) { r.message(r.styles.Muted.Render, msg) }

// Info writes an informational message.
func (r *Renderer) Info(msg string) { r.message(r.styles.Info.Render, msg) }

// Error writes an error message to stderr in every mode.
func (r *Renderer) Error(msg string) {
	if r.EffectiveMode() == ModeText {
		msg = r.styles.Error.Render(msg)
	}
	_, _ = fmt.Fprintln(r.errOut, msg)
}

func (r *Renderer) message(style func(...string) string, msg string) {
	switch r.EffectiveMode() {
	case ModeJSON:
		return
	case ModeMarkdown:
		r.Println(msg)
	default:
		r.Println(style(msg))
	}
}

// JSON writes v as indented JSON.
func (r *Renderer) JSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	_, err = fmt.Fprintln(r.out, string(data))
	return err
}

// JSONLine writes v as a single line of JSON, for event streams.
func (r *Renderer) JSONLine(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	_, err = fmt.Fprintln(r.out, string(data))
	return err
}
