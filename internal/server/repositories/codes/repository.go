package codes

import (
	"context"

	"github.com/avelancourt/passguard/internal/server/models"
)

type Repository interface {
	// Replace invalidates any pending code for the same user and purpose
	// before inserting the new one.
	Replace(ctx context.Context, code *models.TwoFactorCode) error
	// Consume marks a matching pending code as used. Returns
	// common.ErrorNotFound when no live code matches.
	Consume(ctx context.Context, userID string, purpose models.CodePurpose, code string) error
}
