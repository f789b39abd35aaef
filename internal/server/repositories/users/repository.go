package users

import (
	"context"

	"github.com/dmitrijs2005/tmssession/internal/server/models"
)

// Repository reads the user directory owned by the auth boundary. Sessions
// only reference users; they never create them.
type Repository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	CountActive(ctx context.Context) (int64, error)
}
