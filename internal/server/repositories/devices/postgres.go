package devices

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

// Upsert inserts a trust record or refreshes the expiry of an existing one.
// Trust records are never edited beyond their expiry.
func (r *PostgresRepository) Upsert(ctx context.Context, trust *models.DeviceTrust) error {
	query :=
		`INSERT INTO device_trust (user_id, device_name, trust_expiry)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, device_name) DO UPDATE SET trust_expiry = EXCLUDED.trust_expiry
		 `

	if _, err := r.db.ExecContext(ctx, query, trust.UserID, trust.DeviceName, trust.TrustExpiry); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Find(ctx context.Context, userID, deviceName string) (*models.DeviceTrust, error) {
	query :=
		`SELECT user_id, device_name, trust_expiry FROM device_trust
		 WHERE user_id = $1 AND device_name = $2
		 `

	trust := &models.DeviceTrust{}
	err := r.db.QueryRowContext(ctx, query, userID, deviceName).
		Scan(&trust.UserID, &trust.DeviceName, &trust.TrustExpiry)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return trust, nil
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]*models.DeviceTrust, error) {
	query :=
		`SELECT user_id, device_name, trust_expiry FROM device_trust
		 WHERE user_id = $1
		 ORDER BY device_name
		 `

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.DeviceTrust
	for rows.Next() {
		trust := &models.DeviceTrust{}
		if err := rows.Scan(&trust.UserID, &trust.DeviceName, &trust.TrustExpiry); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, trust)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}
