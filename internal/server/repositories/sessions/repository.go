package sessions

import (
	"context"

	"github.com/avelancourt/passguard/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, session *models.Session) (*models.Session, error)
	Get(ctx context.Context, id string) (*models.Session, error)
	ListByUser(ctx context.Context, userID string) ([]*models.Session, error)
	Revoke(ctx context.Context, id string) error
	RevokeByDevice(ctx context.Context, userID, deviceInfo string) error
}
