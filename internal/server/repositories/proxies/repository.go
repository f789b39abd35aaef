// Package proxies reads the egress proxy pool.
package proxies

import (
	"context"

	"github.com/dmitrijs2005/tmssession/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, p *models.Proxy) error
	GetByID(ctx context.Context, id string) (*models.Proxy, error)
	// FirstActive returns the oldest active proxy or common.ErrorNotFound.
	FirstActive(ctx context.Context) (*models.Proxy, error)
}
