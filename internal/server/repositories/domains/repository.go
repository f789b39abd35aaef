// Package domains persists target platforms sessions log into.
package domains

import (
	"context"

	"github.com/dmitrijs2005/tmssession/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, d *models.Domain) error
	GetByID(ctx context.Context, id string) (*models.Domain, error)
	// EnsureByBaseURL returns the domain with d.BaseURL, inserting d when absent.
	EnsureByBaseURL(ctx context.Context, d *models.Domain) (*models.Domain, error)
	List(ctx context.Context) ([]*models.Domain, error)
	Delete(ctx context.Context, id string) error
}
