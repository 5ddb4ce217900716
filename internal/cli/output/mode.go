// Package output renders command results for terminals, markdown consumers
// (agents, CI logs) and JSON pipelines.
package output

import "strings"

// OutputMode selects how results are rendered.
type OutputMode string //nolint:revive // output.OutputMode reads better at call sites than output.Mode

// Output modes.
const (
	// ModeAuto renders text on a terminal and markdown otherwise.
	ModeAuto     OutputMode = "auto"
	ModeText     OutputMode = "text"
	ModeMarkdown OutputMode = "markdown"
	ModeJSON     OutputMode = "json"
)

// Modes lists the accepted --output values.
var Modes = []string{string(ModeAuto), string(ModeText), string(ModeMarkdown), string(ModeJSON)}

// Mode parses an --output value. Unknown or empty values mean auto.
func Mode(s string) OutputMode {
	switch OutputMode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeText:
		return ModeText
	case ModeMarkdown, "md":
		return ModeMarkdown
	case ModeJSON:
		return ModeJSON
	default:
		return ModeAuto
	}
}

// ValidMode reports whether s is an accepted --output value.
func ValidMode(s string) bool {
	if s == "" || s == "md" {
		return true
	}
	for _, m := range Modes {
		if strings.EqualFold(s, m) {
			return true
		}
	}
	return false
}
