// Package loader parses the project files the pipeline is built from: SQL
// model files with YAML frontmatter, the sources file and report files.
package loader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/shopflow/pkg/core"
)

// frontmatterPattern matches a leading /*--- ... ---*/ block.
var frontmatterPattern = regexp.MustCompile(`(?s)^\s*/\*---\s*\n(.*?)\s*---\*/`)

// splitFrontmatter separates the YAML block from the SQL body.
func splitFrontmatter(content string) (yamlText, body string, found bool) {
	matches := frontmatterPattern.FindStringSubmatch(content)
	if len(matches) < 2 {
		return "", strings.TrimSpace(content), false
	}
	body = strings.TrimSpace(content[len(matches[0]):])
	return matches[1], body, true
}

// decodeStrict decodes yamlText into out. Top-level keys outside known
// produce an UnknownFieldError; nested unknown keys are parse errors.
func decodeStrict(path, yamlText string, known []string, out any) error {
	if strings.TrimSpace(yamlText) == "" {
		return nil
	}

	var raw map[string]any
	if err := yaml.Unmarshal([]byte(yamlText), &raw); err != nil {
		return &FrontmatterParseError{Path: path, Err: err}
	}
	allowed := make(map[string]bool, len(known))
	for _, k := range known {
		allowed[k] = true
	}
	unknown := make([]string, 0)
	for field := range raw {
		if !allowed[field] {
			unknown = append(unknown, field)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return &UnknownFieldError{Path: path, Field: unknown[0], Valid: known}
	}

	dec := yaml.NewDecoder(bytes.NewReader([]byte(yamlText)))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return &FrontmatterParseError{Path: path, Err: err}
	}
	return nil
}

// ModelConfig is the frontmatter of a model file.
type ModelConfig struct {
	Name         string         `yaml:"name"`
	Description  string         `yaml:"description"`
	Materialized string         `yaml:"materialized"`
	UniqueKey    string         `yaml:"unique_key"`
	Layer        string         `yaml:"layer"`
	Owner        string         `yaml:"owner"`
	Tags         []string       `yaml:"tags"`
	Tests        []testYAML     `yaml:"tests"`
	Meta         map[string]any `yaml:"meta"`
}

var modelFields = []string{
	"name", "description", "materialized", "unique_key", "layer",
	"owner", "tags", "tests", "meta",
}

// stringList accepts either a scalar or a sequence.
type stringList []string

func (s *stringList) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		*s = []string{n.Value}
		return nil
	case yaml.SequenceNode:
		var v []string
		if err := n.Decode(&v); err != nil {
			return err
		}
		*s = v
		return nil
	default:
		return fmt.Errorf("line %d: expected a column name or a list of column names", n.Line)
	}
}

type testYAML struct {
	Unique         stringList          `yaml:"unique"`
	NotNull        stringList          `yaml:"not_null"`
	AcceptedValues *acceptedValuesYAML `yaml:"accepted_values"`
	Relationships  *relationshipsYAML  `yaml:"relationships"`
	Expression     string              `yaml:"expression"`
	Severity       string              `yaml:"severity"`
}

type acceptedValuesYAML struct {
	Column string   `yaml:"column"`
	Values []string `yaml:"values"`
}

type relationshipsYAML struct {
	Column string `yaml:"column"`
	To     string `yaml:"to"`
	Field  string `yaml:"field"`
}

// convertTests validates test entries and converts them to core types.
func convertTests(entries []testYAML) ([]core.TestConfig, error) {
	tests := make([]core.TestConfig, 0, len(entries))
	for i, t := range entries {
		kinds := 0
		tc := core.TestConfig{
			Unique:     t.Unique,
			NotNull:    t.NotNull,
			Expression: strings.TrimSpace(t.Expression),
		}
		if len(t.Unique) > 0 {
			kinds++
		}
		if len(t.NotNull) > 0 {
			kinds++
		}
		if t.AcceptedValues != nil {
			kinds++
			if t.AcceptedValues.Column == "" || len(t.AcceptedValues.Values) == 0 {
				return nil, fmt.Errorf("tests[%d]: accepted_values needs column and values", i)
			}
			tc.AcceptedValues = &core.AcceptedValuesConfig{
				Column: t.AcceptedValues.Column,
				Values: t.AcceptedValues.Values,
			}
		}
		if t.Relationships != nil {
			kinds++
			r := t.Relationships
			if r.Column == "" || r.To == "" {
				return nil, fmt.Errorf("tests[%d]: relationships needs column and to", i)
			}
			if r.Field == "" {
				r.Field = r.Column
			}
			tc.Relationships = &core.RelationshipsConfig{Column: r.Column, To: r.To, Field: r.Field}
		}
		if tc.Expression != "" {
			kinds++
		}
		if kinds != 1 {
			return nil, fmt.Errorf("tests[%d]: expected exactly one of unique, not_null, accepted_values, relationships, expression", i)
		}

		switch core.TestSeverity(t.Severity) {
		case "":
			tc.Severity = core.SeverityError
		case core.SeverityError, core.SeverityWarn:
			tc.Severity = core.TestSeverity(t.Severity)
		default:
			return nil, fmt.Errorf("tests[%d]: invalid severity %q (must be error or warn)", i, t.Severity)
		}
		tests = append(tests, tc)
	}
	return tests, nil
}

// FrontmatterParseError represents a malformed frontmatter or project file.
type FrontmatterParseError struct {
	Path string
	Err  error
}

func (e *FrontmatterParseError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %v", e.Path, e.Err)
	}
	return e.Err.Error()
}

func (e *FrontmatterParseError) Unwrap() error {
	return e.Err
}

// UnknownFieldError represents an unknown top-level frontmatter field.
type UnknownFieldError struct {
	Path  string
	Field string
	Valid []string
}

func (e *UnknownFieldError) Error() string {
	msg := fmt.Sprintf("unknown field %q in frontmatter (valid fields: %s); use \"meta\" for custom fields",
		e.Field, strings.Join(e.Valid, ", "))
	if e.Path != "" {
		return e.Path + ": " + msg
	}
	return msg
}
