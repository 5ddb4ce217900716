// Package testutil provides helpers for CLI tests.
package testutil

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/leapstack-labs/shopflow/internal/cli/output"
)

// ProjectFiles is a minimal project: one source, a model per layer and a
// report. Paths are relative to the project root.
func ProjectFiles() map[string]string {
	return map[string]string{
		"shopflow.yaml": `target:
  type: duckdb
  database: warehouse.duckdb
`,
		"data/customers.csv": `customer_id,email,country
1, Alice@Example.com ,us
2,bob@example.com,DE
3,carol@example.com,us
`,
		"models/sources.yml": `sources:
  - name: customers
    columns: [customer_id, email, country]
`,
		"models/bronze/brz_customers.sql": `/*---
materialized: view
---*/
SELECT * FROM {{ source "customers" }}`,
		"models/silver/slv_customers.sql": `/*---
tests:
  - unique: customer_id
  - not_null: email
---*/
SELECT
  {{ to_integer "customer_id" }} AS customer_id,
  {{ clean_string "email" }} AS email,
  UPPER(TRIM(country)) AS country
FROM {{ ref "brz_customers" }}`,
		"models/gold/gld_customers_by_country.sql": `SELECT country, COUNT(*) AS customers
FROM {{ ref "slv_customers" }}
GROUP BY country`,
		"reports/customers_by_country.sql": `/*---
title: Customers by country
chart: bar
x: country
y: customers
---*/
SELECT country, customers FROM {{ ref "gld_customers_by_country" }} ORDER BY country`,
	}
}

// SetupTestProject writes ProjectFiles into a temp dir and returns it.
func SetupTestProject(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	for rel, content := range ProjectFiles() {
		path := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			t.Fatalf("failed to create directory for %s: %v", rel, err)
		}
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatalf("failed to write %s: %v", rel, err)
		}
	}
	return dir
}

// TestRenderer wraps a Renderer whose output is captured in buffers.
type TestRenderer struct {
	*output.Renderer
	Out    *bytes.Buffer
	ErrOut *bytes.Buffer
}

// NewTestRenderer creates a renderer with the given mode and TTY state.
func NewTestRenderer(mode output.OutputMode, isTTY bool) *TestRenderer {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	return &TestRenderer{
		Renderer: output.NewRendererWithTTY(out, errOut, isTTY, mode),
		Out:      out,
		ErrOut:   errOut,
	}
}

// NewTestRendererMarkdown creates a markdown renderer.
func NewTestRendererMarkdown() *TestRenderer {
	return NewTestRenderer(output.ModeMarkdown, false)
}

// NewTestRendererText creates a text renderer on a simulated terminal.
func NewTestRendererText() *TestRenderer {
	return NewTestRenderer(output.ModeText, true)
}

// NewTestRendererJSON creates a JSON renderer.
func NewTestRendererJSON() *TestRenderer {
	return NewTestRenderer(output.ModeJSON, false)
}

// Output returns captured stdout.
func (tr *TestRenderer) Output() string {
	return tr.Out.String()
}

// ErrorOutput returns captured stderr.
func (tr *TestRenderer) ErrorOutput() string {
	return tr.ErrOut.String()
}

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// AssertNoANSI fails the test if s contains ANSI escape codes.
func AssertNoANSI(t *testing.T, s string) {
	t.Helper()
	if ansiPattern.MatchString(s) {
		t.Errorf("string contains ANSI escape codes: %q", s)
	}
}

// AssertValidMarkdown checks for balanced code fences and empty headers.
func AssertValidMarkdown(t *testing.T, md string) {
	t.Helper()

	if n := strings.Count(md, "```"); n%2 != 0 {
		t.Errorf("unbalanced code fences in markdown: found %d occurrences", n)
	}
	for i, line := range strings.Split(md, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") && strings.TrimLeft(trimmed, "# ") == "" {
			t.Errorf("empty header at line %d: %q", i+1, line)
		}
	}
}
