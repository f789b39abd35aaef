// Package sessions persists TMS session records.
package sessions

import (
	"context"
	"time"

	"github.com/dmitrijs2005/tmssession/internal/server/models"
)

// Repository is the session record store. Every bundle transition is a single
// guarded UPDATE; when the guard does not match, common.ErrNoRowsUpdated is
// returned and the caller decides what went wrong.
type Repository interface {
	Create(ctx context.Context, s *models.Session) error
	GetByID(ctx context.Context, id string) (*models.Session, error)
	GetByName(ctx context.Context, name string) (*models.Session, error)
	List(ctx context.Context) ([]*models.Session, error)
	Update(ctx context.Context, id string, upd models.SessionUpdate, now time.Time) (*models.Session, error)
	Delete(ctx context.Context, id string) error
	CountByDomain(ctx context.Context, domainID string) (int64, error)

	BeginUpload(ctx context.Context, id, bundleKey string, now time.Time) (*models.Session, error)
	CompleteUpload(ctx context.Context, id string, checksum, encryption *string, now time.Time) (*models.Session, error)
	Promote(ctx context.Context, id string, notes *string, now time.Time) (*models.Session, error)
	SetStatus(ctx context.Context, id string, status models.SessionStatus, now time.Time) (*models.Session, error)
}
