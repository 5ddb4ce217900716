package state

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/leapstack-labs/shopflow/pkg/core"
)

const modelColumns = `id, path, name, layer, materialized, unique_key, file_path, owner,
	description, content_hash, tags, meta, created_at, updated_at`

// RegisterModel registers a new model or updates an existing one.
// The model is matched on Path; an existing row keeps its ID and CreatedAt.
func (s *SQLiteStore) RegisterModel(model *core.PersistedModel) error {
	if s.db == nil {
		return ErrNotOpened
	}

	if model.Model == nil {
		model.Model = &core.Model{}
	}
	if model.Materialized == "" {
		model.Materialized = core.MaterializationTable
	}

	tagsJSON, err := serializeJSON(model.Tags)
	if err != nil {
		return fmt.Errorf("failed to serialize tags: %w", err)
	}
	metaJSON, err := serializeJSON(model.Meta)
	if err != nil {
		return fmt.Errorf("failed to serialize meta: %w", err)
	}

	now := time.Now().UTC()

	existing, err := s.GetModelByPath(model.Path)
	if err != nil {
		return fmt.Errorf("failed to check existing model: %w", err)
	}

	if existing != nil {
		model.ID = existing.ID
		model.CreatedAt = existing.CreatedAt
		model.UpdatedAt = now

		_, err = s.db.ExecContext(ctx(), `
			UPDATE models SET name = ?, layer = ?, materialized = ?, unique_key = ?, file_path = ?,
				owner = ?, description = ?, content_hash = ?, tags = ?, meta = ?, updated_at = ?
			WHERE id = ?`,
			model.Name, string(model.Layer), model.Materialized, nullableString(model.UniqueKey),
			nullableString(model.FilePath), nullableString(model.Owner), nullableString(model.Description),
			model.ContentHash, tagsJSON, metaJSON, formatTime(now), model.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to update model %s: %w", model.Path, err)
		}
		return nil
	}

	if model.ID == "" {
		model.ID = generateID()
	}
	model.CreatedAt = now
	model.UpdatedAt = now

	_, err = s.db.ExecContext(ctx(), `
		INSERT INTO models (`+modelColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		model.ID, model.Path, model.Name, string(model.Layer), model.Materialized,
		nullableString(model.UniqueKey), nullableString(model.FilePath), nullableString(model.Owner),
		nullableString(model.Description), model.ContentHash, tagsJSON, metaJSON,
		formatTime(now), formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("failed to insert model %s: %w", model.Path, err)
	}
	return nil
}

// GetModelByID retrieves a model by ID.
func (s *SQLiteStore) GetModelByID(id string) (*core.PersistedModel, error) {
	if s.db == nil {
		return nil, ErrNotOpened
	}

	row := s.db.QueryRowContext(ctx(), `SELECT `+modelColumns+` FROM models WHERE id = ?`, id)
	model, err := scanModel(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("model not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get model: %w", err)
	}
	return model, nil
}

// GetModelByPath retrieves a model by its path. It returns nil, nil when
// the model has never been registered.
func (s *SQLiteStore) GetModelByPath(path string) (*core.PersistedModel, error) {
	if s.db == nil {
		return nil, ErrNotOpened
	}

	row := s.db.QueryRowContext(ctx(), `SELECT `+modelColumns+` FROM models WHERE path = ?`, path)
	model, err := scanModel(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get model: %w", err)
	}
	return model, nil
}

// UpdateModelHash updates the content hash of a model.
func (s *SQLiteStore) UpdateModelHash(id string, contentHash string) error {
	if s.db == nil {
		return ErrNotOpened
	}

	_, err := s.db.ExecContext(ctx(),
		`UPDATE models SET content_hash = ?, updated_at = ? WHERE id = ?`,
		contentHash, formatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update model hash: %w", err)
	}
	return nil
}

// ListModels retrieves all registered models ordered by path.
func (s *SQLiteStore) ListModels() ([]*core.PersistedModel, error) {
	if s.db == nil {
		return nil, ErrNotOpened
	}

	rows, err := s.db.QueryContext(ctx(), `SELECT `+modelColumns+` FROM models ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var models []*core.PersistedModel
	for rows.Next() {
		model, err := scanModel(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan model: %w", err)
		}
		models = append(models, model)
	}
	return models, rows.Err()
}

func scanModel(r rowScanner) (*core.PersistedModel, error) {
	m := &core.PersistedModel{Model: &core.Model{}}
	var layer, createdAt, updatedAt string
	var uniqueKey, filePath, owner, description, tags, meta sql.NullString

	err := r.Scan(&m.ID, &m.Path, &m.Name, &layer, &m.Materialized, &uniqueKey, &filePath, &owner,
		&description, &m.ContentHash, &tags, &meta, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	m.Layer = core.Layer(layer)
	m.UniqueKey = uniqueKey.String
	m.FilePath = filePath.String
	m.Owner = owner.String
	m.Description = description.String

	if err := deserializeJSON(tags, &m.Tags); err != nil {
		return nil, fmt.Errorf("failed to decode tags for %s: %w", m.Path, err)
	}
	if err := deserializeJSON(meta, &m.Meta); err != nil {
		return nil, fmt.Errorf("failed to decode meta for %s: %w", m.Path, err)
	}

	if m.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if m.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return m, nil
}
