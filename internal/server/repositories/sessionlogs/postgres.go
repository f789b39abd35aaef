package sessionlogs

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/tmssession/internal/common"
	"github.com/dmitrijs2005/tmssession/internal/dbx"
	"github.com/dmitrijs2005/tmssession/internal/server/models"
)

const defaultLimit = 100

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Append inserts l. Rows are never updated afterwards.
func (r *PostgresRepository) Append(ctx context.Context, l *models.SessionLog) error {
	var ctxJSON *string
	if len(l.Context) > 0 {
		b, err := json.Marshal(l.Context)
		if err != nil {
			return fmt.Errorf("marshal log context: %w", err)
		}
		s := string(b)
		ctxJSON = &s
	}

	query := `INSERT INTO tms_session_logs (id, session_id, level, message, context, created_at)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6)`
	_, err := r.db.ExecContext(ctx, query, l.ID, l.SessionID, string(l.Level), l.Message, ctxJSON, l.CreatedAt)
	if err != nil {
		if dbx.IsForeignKeyViolation(err) || dbx.IsInvalidText(err) {
			return common.ErrorNotFound
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// ListBySession returns the newest entries first.
func (r *PostgresRepository) ListBySession(ctx context.Context, sessionID string, limit int) ([]*models.SessionLog, error) {
	if limit <= 0 {
		limit = defaultLimit
	}

	query := `SELECT id, session_id, level, message, context, created_at FROM tms_session_logs
		WHERE session_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.SessionLog
	for rows.Next() {
		var (
			item  models.SessionLog
			level string
			raw   sql.NullString
		)
		if err := rows.Scan(&item.ID, &item.SessionID, &level, &item.Message, &raw, &item.CreatedAt); err != nil {
			return nil, err
		}
		item.Level = models.LogLevel(level)
		if raw.Valid && raw.String != "" {
			if err := json.Unmarshal([]byte(raw.String), &item.Context); err != nil {
				return nil, fmt.Errorf("decode log context: %w", err)
			}
		}
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
