// Package sessionlogs stores the append-only per-session event log.
package sessionlogs

import (
	"context"

	"github.com/dmitrijs2005/tmssession/internal/server/models"
)

type Repository interface {
	Append(ctx context.Context, l *models.SessionLog) error
	ListBySession(ctx context.Context, sessionID string, limit int) ([]*models.SessionLog, error)
}
