package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openprep/testprep-backend/internal/model"
)

// TestRepository handles test definition data access.
type TestRepository struct {
	pool *pgxpool.Pool
}

// NewTestRepository creates a new TestRepository.
func NewTestRepository(pool *pgxpool.Pool) *TestRepository {
	return &TestRepository{pool: pool}
}

// GetByID retrieves a test definition by its UUID. Sections are stored
// as a JSONB document alongside the scalar columns.
func (r *TestRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.TestDefinition, error) {
	def := &model.TestDefinition{}
	var sections []byte
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, duration_minutes, sections, status, created_at, updated_at
		 FROM tests WHERE id = $1`, id,
	).Scan(&def.ID, &def.Title, &def.DurationMinutes, &sections,
		&def.Status, &def.CreatedAt, &def.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(sections, &def.Sections); err != nil {
		return nil, fmt.Errorf("decode sections for test %s: %w", id, err)
	}
	return def, nil
}

// ListPublished retrieves all tests currently open for attempts.
func (r *TestRepository) ListPublished(ctx context.Context) ([]model.TestDefinition, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, title, duration_minutes, sections, status, created_at, updated_at
		 FROM tests WHERE status = $1
		 ORDER BY created_at DESC`, model.TestStatusPublished)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var defs []model.TestDefinition
	for rows.Next() {
		var def model.TestDefinition
		var sections []byte
		if err := rows.Scan(&def.ID, &def.Title, &def.DurationMinutes, &sections,
			&def.Status, &def.CreatedAt, &def.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(sections, &def.Sections); err != nil {
			return nil, fmt.Errorf("decode sections for test %s: %w", def.ID, err)
		}
		defs = append(defs, def)
	}
	return defs, rows.Err()
}

// Create inserts a new test definition. The definition must pass
// Validate before it is stored.
func (r *TestRepository) Create(ctx context.Context, def *model.TestDefinition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	sections, err := json.Marshal(def.Sections)
	if err != nil {
		return err
	}
	if def.ID == uuid.Nil {
		def.ID = uuid.New()
	}
	return r.pool.QueryRow(ctx,
		`INSERT INTO tests (id, title, duration_minutes, sections, status)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at, updated_at`,
		def.ID, def.Title, def.DurationMinutes, sections, def.Status,
	).Scan(&def.CreatedAt, &def.UpdatedAt)
}

// UpdateStatus moves a test between draft, published and archived.
func (r *TestRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.TestStatus) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE tests SET status = $1, updated_at = NOW() WHERE id = $2`,
		status, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("test %s not found", id)
	}
	return nil
}
