package proxies

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

func (r *PostgresRepository) Create(ctx context.Context, p *models.Proxy) error {
	query := `INSERT INTO proxies (id, name, host, port, active, created_at) VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := r.db.ExecContext(ctx, query, p.ID, p.Name, p.Host, p.Port, p.Active, p.CreatedAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) one(ctx context.Context, query string, args ...any) (*models.Proxy, error) {
	var p models.Proxy
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&p.ID, &p.Name, &p.Host, &p.Port, &p.Active, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) || dbx.IsInvalidText(err) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &p, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Proxy, error) {
	return r.one(ctx, `SELECT id, name, host, port, active, created_at FROM proxies WHERE id = $1`, id)
}

func (r *PostgresRepository) FirstActive(ctx context.Context) (*models.Proxy, error) {
	return r.one(ctx, `SELECT id, name, host, port, active, created_at FROM proxies
		WHERE active ORDER BY created_at ASC, id ASC LIMIT 1`)
}
