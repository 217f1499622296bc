package devices

import (
	"context"

	"github.com/avelancourt/passguard/internal/server/models"
)

type Repository interface {
	Upsert(ctx context.Context, trust *models.DeviceTrust) error
	Find(ctx context.Context, userID, deviceName string) (*models.DeviceTrust, error)
	ListByUser(ctx context.Context, userID string) ([]*models.DeviceTrust, error)
}
