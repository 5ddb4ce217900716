// Package template renders model and report SQL.
//
// Files are Go text/template documents. The function map exposes ref,
// source, this, var and is_incremental, plus the warehouse helpers from
// pkg/dialect (to_numeric, to_timestamp, hash, date_spine, ...). Every ref
// and source call is recorded so discovery can derive dependencies from
// the same render that execution performs.
package template

import (
	"fmt"
	"sort"
	"strings"
	"text/template"

	"github.com/leapstack-labs/shopflow/pkg/core"
	"github.com/leapstack-labs/shopflow/pkg/dialect"
)

// Resolver looks up models and sources by name.
type Resolver interface {
	ResolveRef(name string) (*core.Model, error)
	HasSource(name string) bool
}

// Context holds everything a render needs.
type Context struct {
	// Model being rendered; nil for reports and ad hoc SQL.
	Model   *core.Model
	Dialect *dialect.Dialect
	Target  *core.TargetConfig
	Vars    map[string]any
	// Resolver validates ref and source calls. When nil, ref renders the
	// bare model name and nothing is validated (dependency recording).
	Resolver Resolver
	// Incremental is the value of is_incremental.
	Incremental bool
}

// Result is rendered SQL plus the dependencies observed while rendering.
type Result struct {
	SQL     string
	Refs    []string
	Sources []string
}

// RenderError wraps a parse or execution failure of one file.
type RenderError struct {
	Name string
	Err  error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %s: %v", e.Name, e.Err)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

// ModelRelation returns the qualified relation a model materializes to.
func ModelRelation(target *core.TargetConfig, m *core.Model) string {
	return target.LayerSchema(m.Layer) + "." + m.Name
}

// SourceRelation returns the raw table a source is loaded into.
func SourceRelation(target *core.TargetConfig, name string) string {
	return target.RawSchema() + "." + name
}

// Render executes sql as a template named name.
func Render(name, sql string, c *Context) (*Result, error) {
	if c.Dialect == nil {
		return nil, &RenderError{Name: name, Err: dialect.ErrDialectRequired}
	}

	rec := &recorder{ctx: c, refs: map[string]bool{}, sources: map[string]bool{}}
	tmpl, err := template.New(name).
		Option("missingkey=error").
		Funcs(rec.funcs()).
		Parse(sql)
	if err != nil {
		return nil, &RenderError{Name: name, Err: err}
	}

	var sb strings.Builder
	if err := tmpl.Execute(&sb, nil); err != nil {
		return nil, &RenderError{Name: name, Err: err}
	}

	return &Result{
		SQL:     strings.TrimSpace(sb.String()),
		Refs:    sortedKeys(rec.refs),
		Sources: sortedKeys(rec.sources),
	}, nil
}

// RenderModel renders a model's SQL body.
func RenderModel(m *core.Model, c *Context) (*Result, error) {
	mc := *c
	mc.Model = m
	return Render(m.Path, m.SQL, &mc)
}

type recorder struct {
	ctx     *Context
	refs    map[string]bool
	sources map[string]bool
}

func (r *recorder) funcs() template.FuncMap {
	d := r.ctx.Dialect
	return template.FuncMap{
		"ref":            r.ref,
		"source":         r.source,
		"this":           r.this,
		"var":            r.variable,
		"is_incremental": func() bool { return r.ctx.Incremental },

		"to_numeric":             d.ToNumeric,
		"to_integer":             d.ToInteger,
		"to_timestamp":           d.ToTimestamp,
		"clean_string":           d.CleanString,
		"hash":                   d.Hash,
		"date_spine":             d.DateSpine,
		"timestamp_diff_minutes": d.MinutesBetween,
		"add_hours":              d.AddHours,
		"day_of_week":            d.DayOfWeek,
		"quote":                  d.QuoteIdentifier,
	}
}

func (r *recorder) ref(name string) (string, error) {
	r.refs[name] = true
	if r.ctx.Resolver == nil {
		return name, nil
	}
	m, err := r.ctx.Resolver.ResolveRef(name)
	if err != nil {
		return "", err
	}
	return ModelRelation(r.ctx.Target, m), nil
}

func (r *recorder) source(name string) (string, error) {
	r.sources[name] = true
	if r.ctx.Resolver != nil && !r.ctx.Resolver.HasSource(name) {
		return "", fmt.Errorf("unknown source %q (declare it in models/sources.yml)", name)
	}
	return SourceRelation(r.ctx.Target, name), nil
}

func (r *recorder) this() (string, error) {
	if r.ctx.Model == nil {
		return "", fmt.Errorf("this is only available inside a model")
	}
	return ModelRelation(r.ctx.Target, r.ctx.Model), nil
}

func (r *recorder) variable(key string) (any, error) {
	v, ok := r.ctx.Vars[key]
	if !ok {
		return nil, fmt.Errorf("undefined var %q", key)
	}
	return v, nil
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
