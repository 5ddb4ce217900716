package state

import (
	"fmt"
)

// SetDependencies sets the parent dependencies for a model.
// This replaces any existing dependencies.
func (s *SQLiteStore) SetDependencies(modelID string, parentIDs []string) error {
	if s.db == nil {
		return ErrNotOpened
	}

	tx, err := s.db.BeginTx(ctx(), nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx(), `DELETE FROM dependencies WHERE model_id = ?`, modelID); err != nil {
		return fmt.Errorf("failed to delete existing dependencies: %w", err)
	}

	for _, parentID := range parentIDs {
		if _, err := tx.ExecContext(ctx(),
			`INSERT OR IGNORE INTO dependencies (model_id, parent_id) VALUES (?, ?)`,
			modelID, parentID,
		); err != nil {
			return fmt.Errorf("failed to insert dependency: %w", err)
		}
	}

	return tx.Commit()
}

// GetDependencies retrieves the parent IDs for a model.
func (s *SQLiteStore) GetDependencies(modelID string) ([]string, error) {
	if s.db == nil {
		return nil, ErrNotOpened
	}
	return s.queryIDs(`SELECT parent_id FROM dependencies WHERE model_id = ? ORDER BY parent_id`, modelID)
}

// GetDependents retrieves the IDs of models that depend on the given model.
func (s *SQLiteStore) GetDependents(modelID string) ([]string, error) {
	if s.db == nil {
		return nil, ErrNotOpened
	}
	return s.queryIDs(`SELECT model_id FROM dependencies WHERE parent_id = ? ORDER BY model_id`, modelID)
}

func (s *SQLiteStore) queryIDs(query string, arg string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx(), query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query dependencies: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
