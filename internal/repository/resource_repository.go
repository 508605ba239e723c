package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/unishare/unishare-api/internal/models"
)

const resourceViewColumns = `r.id, r.title, r.description, r.kind, r.resource_type,
       s.code AS subject_code, s.name AS subject_name,
       y.start_year, y.end_year,
       u.id AS unit_id, u.unit_number, u.title AS unit_title,
       r.external_url, r.contributor_id, c.full_name AS contributor_name, r.created_at`

const resourceViewJoins = ` FROM resources r
	JOIN subjects s ON s.id = r.subject_id
	LEFT JOIN subject_offerings o ON o.id = r.offering_id
	LEFT JOIN academic_years y ON y.id = o.academic_year_id
	LEFT JOIN units u ON u.id = r.unit_id
	JOIN users c ON c.id = r.contributor_id`

// ResourceRepository handles resource row persistence.
type ResourceRepository struct {
	q sqlx.ExtContext
}

// NewResourceRepository constructs the repository.
func NewResourceRepository(db *sqlx.DB) *ResourceRepository {
	return &ResourceRepository{q: db}
}

// WithTx returns a copy of the repository bound to the given transaction.
func (r *ResourceRepository) WithTx(tx *sqlx.Tx) *ResourceRepository {
	return &ResourceRepository{q: tx}
}

// Create inserts a new resource row.
func (r *ResourceRepository) Create(ctx context.Context, res *models.Resource) error {
	if res.ID == "" {
		res.ID = uuid.NewString()
	}
	if res.CreatedAt.IsZero() {
		res.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO resources
	(id, title, description, kind, resource_type, subject_id, offering_id, unit_id, storage_path, external_url, contributor_id, is_deleted, created_at)
	VALUES (:id, :title, :description, :kind, :resource_type, :subject_id, :offering_id, :unit_id, :storage_path, :external_url, :contributor_id, :is_deleted, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.q, query, res); err != nil {
		return fmt.Errorf("create resource: %w", err)
	}
	return nil
}

// CreateTx inserts a new resource row inside the given transaction. A nil
// tx falls back to the pooled connection.
func (r *ResourceRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, res *models.Resource) error {
	if tx != nil {
		return r.WithTx(tx).Create(ctx, res)
	}
	return r.Create(ctx, res)
}

// GetByID retrieves one resource row, including soft-deleted ones; callers
// decide how a set deletion flag maps to their endpoint semantics.
func (r *ResourceRepository) GetByID(ctx context.Context, id string) (*models.Resource, error) {
	const query = `SELECT id, title, description, kind, resource_type, subject_id, offering_id, unit_id,
       storage_path, external_url, contributor_id, is_deleted, created_at
	FROM resources WHERE id = $1`
	var res models.Resource
	if err := sqlx.GetContext(ctx, r.q, &res, query, id); err != nil {
		return nil, err
	}
	return &res, nil
}

// List returns all non-deleted resources joined with display fields,
// newest first.
func (r *ResourceRepository) List(ctx context.Context) ([]models.ResourceView, error) {
	query := `SELECT ` + resourceViewColumns + resourceViewJoins +
		` WHERE r.is_deleted = FALSE ORDER BY r.created_at DESC`
	var rows []models.ResourceView
	if err := sqlx.SelectContext(ctx, r.q, &rows, query); err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	return rows, nil
}

// Latest returns the newest non-deleted resources capped at limit.
func (r *ResourceRepository) Latest(ctx context.Context, limit int) ([]models.ResourceView, error) {
	query := `SELECT ` + resourceViewColumns + resourceViewJoins +
		` WHERE r.is_deleted = FALSE ORDER BY r.created_at DESC LIMIT $1`
	var rows []models.ResourceView
	if err := sqlx.SelectContext(ctx, r.q, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("list latest resources: %w", err)
	}
	return rows, nil
}

// UpdateTitleDescription patches the two mutable fields. Nil fields keep
// their stored value. Returns sql.ErrNoRows when the row is absent or
// soft-deleted.
func (r *ResourceRepository) UpdateTitleDescription(ctx context.Context, id string, title, description *string) error {
	const query = `UPDATE resources
	SET title = COALESCE($2, title), description = COALESCE($3, description)
	WHERE id = $1 AND is_deleted = FALSE`
	res, err := r.q.ExecContext(ctx, query, id, title, description)
	if err != nil {
		return fmt.Errorf("update resource: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check resource update rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SoftDelete marks a resource as deleted. Returns sql.ErrNoRows when the
// row is absent or already deleted.
func (r *ResourceRepository) SoftDelete(ctx context.Context, id string) error {
	const query = `UPDATE resources SET is_deleted = TRUE WHERE id = $1 AND is_deleted = FALSE`
	res, err := r.q.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("soft delete resource: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check resource delete rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
