package users

import (
	"context"

	"github.com/avelancourt/passguard/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	SetEmailVerified(ctx context.Context, id string) error
	SetTOTP(ctx context.Context, id string, secret string, enabled bool) error
}
