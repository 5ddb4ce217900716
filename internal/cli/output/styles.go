package output

import (
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Styles holds the lipgloss styles used in text mode.
type Styles struct {
	Header1   lipgloss.Style
	Header2   lipgloss.Style
	ModelPath lipgloss.Style
	Bold      lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Error     lipgloss.Style
	Warning   lipgloss.Style
	Info      lipgloss.Style
	Bar       lipgloss.Style
}

// NewStyles builds styles bound to w. When color is false every style
// renders plain text.
func NewStyles(w io.Writer, color bool) *Styles {
	lr := lipgloss.NewRenderer(w)
	if color {
		lr.SetColorProfile(termenv.NewOutput(w).EnvColorProfile())
	} else {
		lr.SetColorProfile(termenv.Ascii)
	}

	return &Styles{
		Header1:   lr.NewStyle().Bold(true).Foreground(lipgloss.Color("63")),
		Header2:   lr.NewStyle().Bold(true),
		ModelPath: lr.NewStyle().Foreground(lipgloss.Color("39")),
		Bold:      lr.NewStyle().Bold(true),
		Muted:     lr.NewStyle().Faint(true),
		Success:   lr.NewStyle().Foreground(lipgloss.Color("42")),
		Error:     lr.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		Warning:   lr.NewStyle().Foreground(lipgloss.Color("214")),
		Info:      lr.NewStyle().Foreground(lipgloss.Color("45")),
		Bar:       lr.NewStyle().Foreground(lipgloss.Color("63")),
	}
}

// StatusStyle returns the style for a status word.
func (s *Styles) StatusStyle(status string) lipgloss.Style {
	switch status {
	case "success", "pass", "completed":
		return s.Success
	case "failed", "fail", "error":
		return s.Error
	case "skipped", "warn", "cancelled":
		return s.Warning
	default:
		return s.Muted
	}
}
