package codes

import (
	"context"
	"fmt"

	"github.com/avelancourt/passguard/internal/common"
	"github.com/avelancourt/passguard/internal/dbx"
	"github.com/avelancourt/passguard/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Replace(ctx context.Context, code *models.TwoFactorCode) error {
	invalidate := `UPDATE two_factor_codes SET consumed = TRUE
		 WHERE user_id = $1 AND purpose = $2 AND consumed = FALSE`

	if _, err := r.db.ExecContext(ctx, invalidate, code.UserID, code.Purpose); err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	insert := `INSERT INTO two_factor_codes (user_id, purpose, code, expires_at)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`

	err := r.db.QueryRowContext(ctx, insert,
		code.UserID, code.Purpose, code.Code, code.ExpiresAt).Scan(&code.ID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Consume flips the matching code to consumed in a single statement, so a
// code can be accepted at most once even under concurrent attempts.
func (r *PostgresRepository) Consume(ctx context.Context, userID string, purpose models.CodePurpose, code string) error {
	query := `UPDATE two_factor_codes SET consumed = TRUE
		 WHERE user_id = $1 AND purpose = $2 AND code = $3
		   AND consumed = FALSE AND expires_at > now()`

	res, err := r.db.ExecContext(ctx, query, userID, purpose, code)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if affected == 0 {
		return common.ErrorNotFound
	}
	return nil
}
