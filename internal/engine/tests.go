package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/shopflow/internal/template"
	"github.com/leapstack-labs/shopflow/pkg/core"
)

// TestOptions controls which data tests run.
type TestOptions struct {
	// Select limits tests to the selected models. Source tests run only
	// when Select is empty.
	Select []string
	// FailFast runs tests one at a time and stops at the first
	// error-severity failure.
	FailFast bool
	// Threads bounds concurrent tests; 0 uses the engine default.
	Threads int
}

// TestSummary aggregates the outcome of a test run.
type TestSummary struct {
	Run      *core.Run
	Results  []*core.TestResult
	Passed   int
	Failed   int
	Warned   int
	Errored  int
	Duration time.Duration
}

// OK reports whether no error-severity test failed or errored.
func (s *TestSummary) OK() bool {
	return s.Failed == 0 && s.Errored == 0
}

// Err returns a TestFailuresError when the summary is not OK.
func (s *TestSummary) Err() error {
	if s.OK() {
		return nil
	}
	return &TestFailuresError{Failed: s.Failed, Errored: s.Errored}
}

func (s *TestSummary) add(r *core.TestResult) {
	s.Results = append(s.Results, r)
	switch r.Status {
	case core.TestStatusPass:
		s.Passed++
	case core.TestStatusFail:
		s.Failed++
	case core.TestStatusWarn:
		s.Warned++
	case core.TestStatusError:
		s.Errored++
	}
}

// TestFailuresError is returned when error-severity data tests fail.
type TestFailuresError struct {
	Failed  int
	Errored int
}

func (e *TestFailuresError) Error() string {
	if e.Errored == 0 {
		return fmt.Sprintf("%d data test(s) failed", e.Failed)
	}
	return fmt.Sprintf("%d data test(s) failed, %d errored", e.Failed, e.Errored)
}

// compiledTest is a data test plus any error hit while compiling it.
type compiledTest struct {
	core.DataTest
	err error
}

// Test compiles and runs the declared data tests.
func (e *Engine) Test(ctx context.Context, opts TestOptions) (*TestSummary, error) {
	if err := e.ensureDiscovered(); err != nil {
		return nil, err
	}
	if err := e.ensureDBConnected(ctx); err != nil {
		return nil, err
	}

	run, err := e.store.CreateRun(e.environment, core.RunKindTest)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	summary, err := e.runTests(ctx, run.ID, opts)
	if err != nil {
		e.completeRun(run, err)
		return nil, err
	}
	summary.Run = e.completeRun(run, summary.Err())
	return summary, summary.Err()
}

// CompileTests returns the SQL of every selected data test without running it.
func (e *Engine) CompileTests(selectors []string) ([]core.DataTest, error) {
	if err := e.ensureDiscovered(); err != nil {
		return nil, err
	}
	compiled, err := e.compileSelected(selectors)
	if err != nil {
		return nil, err
	}
	tests := make([]core.DataTest, 0, len(compiled))
	for _, t := range compiled {
		if t.err != nil {
			return nil, fmt.Errorf("test %s: %w", t.Name, t.err)
		}
		tests = append(tests, t.DataTest)
	}
	return tests, nil
}

func (e *Engine) runTests(ctx context.Context, runID string, opts TestOptions) (*TestSummary, error) {
	start := time.Now()
	tests, err := e.compileSelected(opts.Select)
	if err != nil {
		return nil, err
	}

	summary := &TestSummary{}
	if opts.FailFast {
		for _, t := range tests {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			r := e.executeTest(ctx, runID, t)
			summary.add(r)
			if r.Status == core.TestStatusFail || r.Status == core.TestStatusError {
				break
			}
		}
	} else {
		threads := opts.Threads
		if threads < 1 {
			threads = e.threads
		}

		var (
			mu      sync.Mutex
			results []*core.TestResult
			g       errgroup.Group
		)
		g.SetLimit(threads)
		for _, t := range tests {
			g.Go(func() error {
				r := e.executeTest(ctx, runID, t)
				mu.Lock()
				results = append(results, r)
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		sort.Slice(results, func(i, j int) bool { return results[i].TestName < results[j].TestName })
		for _, r := range results {
			summary.add(r)
		}
	}

	summary.Duration = time.Since(start)
	e.logger.Info("data tests complete",
		"passed", summary.Passed, "failed", summary.Failed,
		"warned", summary.Warned, "errored", summary.Errored)
	return summary, nil
}

// executeTest runs one test and persists its result.
func (e *Engine) executeTest(ctx context.Context, runID string, t compiledTest) *core.TestResult {
	start := time.Now()
	r := &core.TestResult{
		RunID:    runID,
		TestName: t.Name,
		Kind:     t.Kind,
		Target:   t.Target,
		Column:   t.Column,
		Severity: t.Severity,
		SQL:      t.SQL,
	}

	switch {
	case t.err != nil:
		r.Status = core.TestStatusError
		r.Error = t.err.Error()
	default:
		failures, err := e.scalarInt(ctx, t.SQL)
		switch {
		case err != nil:
			r.Status = core.TestStatusError
			r.Error = err.Error()
		case failures == 0:
			r.Status = core.TestStatusPass
		case t.Severity == core.SeverityWarn:
			r.Status = core.TestStatusWarn
		default:
			r.Status = core.TestStatusFail
		}
		r.Failures = failures
	}

	r.DurationMS = time.Since(start).Milliseconds()
	r.ExecutedAt = time.Now().UTC()
	if err := e.store.RecordTestResult(r); err != nil {
		e.logger.Warn("failed to record test result", "test", t.Name, "error", err)
	}

	switch r.Status {
	case core.TestStatusPass:
		e.logger.Debug("test passed", "test", t.Name)
	case core.TestStatusWarn:
		e.logger.Warn("test warning", "test", t.Name, "failures", r.Failures)
	default:
		e.logger.Error("test failed", "test", t.Name, "status", r.Status, "failures", r.Failures, "error", r.Error)
	}
	return r
}

// compileSelected compiles the tests of the selected models, plus source
// tests when nothing is selected.
func (e *Engine) compileSelected(selectors []string) ([]compiledTest, error) {
	ids, err := e.graph.Select(selectors)
	if err != nil {
		return nil, err
	}

	c := &testCompiler{engine: e, names: make(map[string]int)}
	if len(selectors) == 0 {
		for _, src := range e.registry.AllSources() {
			c.compile("source."+src.Name, src.Name, template.SourceRelation(e.target, src.Name), src.Tests)
		}
	}
	for _, id := range ids {
		m := e.models[id]
		c.compile(m.Path, m.Name, template.ModelRelation(e.target, m), m.Tests)
	}

	sort.Slice(c.tests, func(i, j int) bool { return c.tests[i].Name < c.tests[j].Name })
	return c.tests, nil
}

type testCompiler struct {
	engine *Engine
	names  map[string]int
	tests  []compiledTest
}

func (c *testCompiler) compile(target, short, relation string, configs []core.TestConfig) {
	exprIndex := 0
	for _, tc := range configs {
		severity := tc.Severity
		if severity == "" {
			severity = core.SeverityError
		}
		base := core.DataTest{Target: target, Relation: relation, Severity: severity}

		switch {
		case len(tc.Unique) > 0:
			t := base
			t.Kind = core.TestUnique
			t.Column = strings.Join(tc.Unique, ", ")
			t.Name = c.name("unique", short, strings.Join(tc.Unique, "__"))
			t.SQL = uniqueSQL(relation, tc.Unique)
			c.add(t, nil)

		case len(tc.NotNull) > 0:
			for _, col := range tc.NotNull {
				t := base
				t.Kind = core.TestNotNull
				t.Column = col
				t.Name = c.name("not_null", short, col)
				t.SQL = fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s IS NULL", relation, col)
				c.add(t, nil)
			}

		case tc.AcceptedValues != nil:
			av := tc.AcceptedValues
			t := base
			t.Kind = core.TestAcceptedValues
			t.Column = av.Column
			t.Name = c.name("accepted_values", short, av.Column)
			literals := make([]string, len(av.Values))
			for i, v := range av.Values {
				literals[i] = quoteLiteral(v)
			}
			t.SQL = fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s IS NOT NULL AND %s NOT IN (%s)",
				relation, av.Column, av.Column, strings.Join(literals, ", "))
			c.add(t, nil)

		case tc.Relationships != nil:
			rel := tc.Relationships
			t := base
			t.Kind = core.TestRelationships
			t.Column = rel.Column
			field := rel.Field
			if field == "" {
				field = rel.Column
			}
			parent, toName, err := c.engine.relationFor(rel.To)
			t.Name = c.name("relationships", short, rel.Column+"__"+toName)
			if err == nil {
				t.SQL = fmt.Sprintf(
					"SELECT COUNT(*) FROM %s child LEFT JOIN %s parent ON child.%s = parent.%s WHERE child.%s IS NOT NULL AND parent.%s IS NULL",
					relation, parent, rel.Column, field, rel.Column, field)
			}
			c.add(t, err)

		case tc.Expression != "":
			exprIndex++
			t := base
			t.Kind = core.TestExpression
			t.Name = c.name("expression", short, fmt.Sprint(exprIndex))
			t.SQL = fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE NOT (%s)", relation, tc.Expression)
			c.add(t, nil)
		}
	}
}

func (c *testCompiler) add(t core.DataTest, err error) {
	c.tests = append(c.tests, compiledTest{DataTest: t, err: err})
}

// name builds kind_target_suffix, numbering repeats.
func (c *testCompiler) name(kind, short, suffix string) string {
	name := kind + "_" + short + "_" + adapterSafe(suffix)
	c.names[name]++
	if n := c.names[name]; n > 1 {
		return fmt.Sprintf("%s_%d", name, n)
	}
	return name
}

// relationFor resolves the target of a relationships test: a model name
// or path, or "source.<name>".
func (e *Engine) relationFor(to string) (relation, short string, err error) {
	if name, ok := strings.CutPrefix(to, "source."); ok {
		if !e.registry.HasSource(name) {
			return "", name, fmt.Errorf("unknown source %q", name)
		}
		return template.SourceRelation(e.target, name), name, nil
	}
	m, err := e.registry.Resolve(to)
	if err != nil {
		return "", to, err
	}
	return template.ModelRelation(e.target, m), m.Name, nil
}

func uniqueSQL(relation string, cols []string) string {
	list := strings.Join(cols, ", ")
	notNull := make([]string, len(cols))
	for i, col := range cols {
		notNull[i] = col + " IS NOT NULL"
	}
	return fmt.Sprintf(
		"SELECT COUNT(*) FROM (SELECT %s FROM %s WHERE %s GROUP BY %s HAVING COUNT(*) > 1) dupes",
		list, relation, strings.Join(notNull, " AND "), list)
}

func quoteLiteral(v string) string {
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}

func adapterSafe(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		}
		return '_'
	}, s)
}
