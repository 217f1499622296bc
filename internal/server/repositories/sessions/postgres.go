package sessions

import (
	"context"
	"database/sql"
	"errors"
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

func (r *PostgresRepository) Create(ctx context.Context, session *models.Session) (*models.Session, error) {
	query :=
		`INSERT INTO sessions (id, user_id, device_info)
		 VALUES ($1, $2, $3)
		 RETURNING created_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		session.ID, session.UserID, session.DeviceInfo).Scan(&session.CreatedAt)

	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return session, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.Session, error) {
	query := `SELECT id, user_id, device_info, created_at, revoked FROM sessions WHERE id = $1`

	s := &models.Session{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&s.ID, &s.UserID, &s.DeviceInfo, &s.CreatedAt, &s.Revoked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]*models.Session, error) {
	query :=
		`SELECT id, user_id, device_info, created_at, revoked FROM sessions
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 `

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Session
	for rows.Next() {
		s := &models.Session{}
		if err := rows.Scan(&s.ID, &s.UserID, &s.DeviceInfo, &s.CreatedAt, &s.Revoked); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

// Revoke marks the session revoked. Revoking an already-revoked session is a
// no-op success, so the operation is idempotent.
func (r *PostgresRepository) Revoke(ctx context.Context, id string) error {
	query := `UPDATE sessions SET revoked = TRUE WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) RevokeByDevice(ctx context.Context, userID, deviceInfo string) error {
	query := `UPDATE sessions SET revoked = TRUE WHERE user_id = $1 AND device_info = $2`
	if _, err := r.db.ExecContext(ctx, query, userID, deviceInfo); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
