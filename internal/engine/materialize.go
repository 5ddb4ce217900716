package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/leapstack-labs/shopflow/internal/template"
	"github.com/leapstack-labs/shopflow/pkg/adapter"
	"github.com/leapstack-labs/shopflow/pkg/core"
)

// materialize executes rendered SQL for a model according to its
// materialization and returns the number of rows in the result.
func (e *Engine) materialize(ctx context.Context, m *core.Model, sql string, incremental bool) (int64, error) {
	schema := e.target.LayerSchema(m.Layer)
	if err := e.ensureSchema(ctx, schema); err != nil {
		return 0, err
	}

	existing, err := e.db.RelationType(ctx, schema, m.Name)
	if err != nil {
		return 0, fmt.Errorf("failed to inspect %s.%s: %w", schema, m.Name, err)
	}

	switch m.Materialized {
	case core.MaterializationView:
		return 0, e.executeView(ctx, m, sql, existing)
	case core.MaterializationIncremental:
		if incremental && existing == adapter.RelationTable {
			return e.executeIncremental(ctx, m, sql)
		}
		return e.executeTable(ctx, m, sql, existing)
	default:
		return e.executeTable(ctx, m, sql, existing)
	}
}

// dropExisting removes whatever relation currently lives under the model's name.
func (e *Engine) dropExisting(ctx context.Context, rel string, existing adapter.RelationType) error {
	switch existing {
	case adapter.RelationTable:
		return e.db.Exec(ctx, e.dialect.DropTable(rel))
	case adapter.RelationView:
		return e.db.Exec(ctx, e.dialect.DropView(rel))
	}
	return nil
}

func (e *Engine) executeTable(ctx context.Context, m *core.Model, sql string, existing adapter.RelationType) (int64, error) {
	rel := template.ModelRelation(e.target, m)

	if err := e.dropExisting(ctx, rel, existing); err != nil {
		return 0, fmt.Errorf("failed to drop %s: %w", rel, err)
	}
	if err := e.db.Exec(ctx, e.dialect.CreateTableAs(rel, sql)); err != nil {
		return 0, fmt.Errorf("failed to create table %s: %w", rel, err)
	}
	return e.countRows(ctx, rel)
}

func (e *Engine) executeView(ctx context.Context, m *core.Model, sql string, existing adapter.RelationType) error {
	rel := template.ModelRelation(e.target, m)

	// A table of the same name must go first; views are replaced in place
	// where the dialect allows it.
	if existing == adapter.RelationTable || (existing == adapter.RelationView && !e.dialect.ReplaceView) {
		if err := e.dropExisting(ctx, rel, existing); err != nil {
			return fmt.Errorf("failed to drop %s: %w", rel, err)
		}
	}
	if err := e.db.Exec(ctx, e.dialect.CreateView(rel, sql)); err != nil {
		return fmt.Errorf("failed to create view %s: %w", rel, err)
	}
	return nil
}

// executeIncremental merges new rows into an existing table: rows whose
// unique key appears in the new batch are deleted, then the batch is inserted.
func (e *Engine) executeIncremental(ctx context.Context, m *core.Model, sql string) (int64, error) {
	rel := template.ModelRelation(e.target, m)
	tmp := rel + "__tmp"

	if err := e.db.Exec(ctx, e.dialect.DropTable(tmp)); err != nil {
		return 0, fmt.Errorf("failed to drop staging table %s: %w", tmp, err)
	}
	if err := e.db.Exec(ctx, e.dialect.CreateTableAs(tmp, sql)); err != nil {
		return 0, fmt.Errorf("failed to create staging table %s: %w", tmp, err)
	}
	defer func() {
		if err := e.db.Exec(context.WithoutCancel(ctx), e.dialect.DropTable(tmp)); err != nil {
			e.logger.Warn("failed to drop staging table", "table", tmp, "error", err)
		}
	}()

	key := uniqueKeyExpr(m.UniqueKey)
	deleteSQL := fmt.Sprintf("DELETE FROM %s WHERE %s IN (SELECT %s FROM %s)",
		rel, key.match, key.list, tmp)
	if err := e.db.Exec(ctx, deleteSQL); err != nil {
		return 0, fmt.Errorf("failed to delete changed rows from %s: %w", rel, err)
	}

	insertSQL := fmt.Sprintf("INSERT INTO %s SELECT * FROM %s", rel, tmp)
	if err := e.db.Exec(ctx, insertSQL); err != nil {
		return 0, fmt.Errorf("failed to insert into %s: %w", rel, err)
	}

	return e.countRows(ctx, tmp)
}

type keyExpr struct {
	match string // left-hand side of IN
	list  string // select list of the subquery
}

// uniqueKeyExpr turns "a" or "a, b" into the operands of a key IN (...) match.
func uniqueKeyExpr(uniqueKey string) keyExpr {
	parts := strings.Split(uniqueKey, ",")
	cols := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			cols = append(cols, p)
		}
	}
	list := strings.Join(cols, ", ")
	if len(cols) == 1 {
		return keyExpr{match: list, list: list}
	}
	return keyExpr{match: "(" + list + ")", list: list}
}

// countRows returns SELECT COUNT(*) for a relation.
func (e *Engine) countRows(ctx context.Context, rel string) (int64, error) {
	return e.scalarInt(ctx, "SELECT COUNT(*) FROM "+rel)
}

// scalarInt runs a query returning a single integer.
func (e *Engine) scalarInt(ctx context.Context, query string) (int64, error) {
	rows, err := e.db.Query(ctx, query)
	if err != nil {
		return 0, err
	}
	defer func() { _ = rows.Close() }()

	var n int64
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return 0, err
		}
	}
	return n, rows.Err()
}
