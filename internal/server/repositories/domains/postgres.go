package domains

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/tmssession/internal/common"
	"github.com/dmitrijs2005/tmssession/internal/dbx"
	"github.com/dmitrijs2005/tmssession/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, d *models.Domain) error {
	query := `INSERT INTO domains (id, label, base_url, created_at) VALUES ($1, $2, $3, $4)`
	_, err := r.db.ExecContext(ctx, query, d.ID, d.Label, d.BaseURL, d.CreatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return fmt.Errorf("%w: domain with base url %s already exists", common.ErrConflict, d.BaseURL)
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Domain, error) {
	var d models.Domain
	err := r.db.QueryRowContext(ctx, `SELECT id, label, base_url, created_at FROM domains WHERE id = $1`, id).
		Scan(&d.ID, &d.Label, &d.BaseURL, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) || dbx.IsInvalidText(err) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &d, nil
}

// EnsureByBaseURL is idempotent under concurrency: the insert is a no-op when
// another transaction already owns the base url, and the select then reads it.
func (r *PostgresRepository) EnsureByBaseURL(ctx context.Context, d *models.Domain) (*models.Domain, error) {
	insert := `INSERT INTO domains (id, label, base_url, created_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (base_url) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, insert, d.ID, d.Label, d.BaseURL, d.CreatedAt); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	var out models.Domain
	err := r.db.QueryRowContext(ctx, `SELECT id, label, base_url, created_at FROM domains WHERE base_url = $1`, d.BaseURL).
		Scan(&out.ID, &out.Label, &out.BaseURL, &out.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &out, nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]*models.Domain, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, label, base_url, created_at FROM domains ORDER BY label`)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Domain
	for rows.Next() {
		var d models.Domain
		if err := rows.Scan(&d.ID, &d.Label, &d.BaseURL, &d.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Delete removes the domain. A domain still referenced by sessions yields
// common.ErrDomainInUse.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM domains WHERE id = $1`, id)
	if err != nil {
		if dbx.IsForeignKeyViolation(err) {
			return common.ErrDomainInUse
		}
		if dbx.IsInvalidText(err) {
			return common.ErrorNotFound
		}
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}
