// Package services contains server-side business logic. This file implements
// MFAService: email one-time codes and TOTP enrollment/verification.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/avelancourt/passguard/internal/common"
	"github.com/avelancourt/passguard/internal/cryptox"
	"github.com/avelancourt/passguard/internal/dbx"
	"github.com/avelancourt/passguard/internal/logging"
	"github.com/avelancourt/passguard/internal/server/config"
	"github.com/avelancourt/passguard/internal/server/mail"
	"github.com/avelancourt/passguard/internal/server/models"
	"github.com/avelancourt/passguard/internal/server/repositories/repomanager"
	"github.com/avelancourt/passguard/internal/totp"
)

const codeDigits = 6

// totpSkewSteps tolerates one 30-second step of clock drift either way.
const totpSkewSteps = 1

// MFAService issues and checks second factors. Email codes are stored
// server-side with a TTL; TOTP secrets are stored encrypted and validated
// locally against the current time step.
type MFAService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	mailer      mail.Mailer
	keychain    *cryptox.Keychain
	codeTTL     time.Duration
	totpIssuer  string
	logger      logging.Logger
}

func NewMFAService(db *sql.DB, m repomanager.RepositoryManager, mailer mail.Mailer,
	keychain *cryptox.Keychain, cfg *config.Config, logger logging.Logger) *MFAService {
	return &MFAService{
		db:          db,
		repomanager: m,
		mailer:      mailer,
		keychain:    keychain,
		codeTTL:     cfg.CodeTTL,
		totpIssuer:  cfg.TOTPIssuer,
		logger:      logger,
	}
}

// SendCode generates a fresh code for (user, purpose), invalidating any
// previous one, and mails it. The code row and the dispatch commit together:
// a failed send rolls the new code back, so an undeliverable code is never
// accepted later.
func (s *MFAService) SendCode(ctx context.Context, user *models.User, purpose models.CodePurpose) error {
	if !purpose.Valid() {
		return fmt.Errorf("%w: unknown code purpose %q", common.ErrValidation, purpose)
	}

	code, err := common.GenerateDigitCode(codeDigits)
	if err != nil {
		return common.ErrorInternal
	}

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return s.sendCodeTx(ctx, tx, user, purpose, code)
	})
}

// sendCodeTx is the transactional body of SendCode, shared with callers that
// already hold a transaction (registration).
func (s *MFAService) sendCodeTx(ctx context.Context, tx dbx.DBTX, user *models.User, purpose models.CodePurpose, code string) error {
	repo := s.repomanager.Codes(tx)
	if err := repo.Replace(ctx, &models.TwoFactorCode{
		UserID:    user.ID,
		Purpose:   purpose,
		Code:      code,
		ExpiresAt: time.Now().Add(s.codeTTL),
	}); err != nil {
		return common.ErrorInternal
	}

	subject, body := codeMessage(purpose, code, s.codeTTL)
	if err := s.mailer.Send(ctx, user.Email, subject, body); err != nil {
		s.logger.Warn(ctx, "code dispatch failed, rolling back", "purpose", purpose, "error", err)
		return err
	}
	return nil
}

// VerifyCode consumes a pending code. Wrong, expired, and already-used codes
// are all reported as ErrCodeInvalid.
func (s *MFAService) VerifyCode(ctx context.Context, userID string, purpose models.CodePurpose, candidate string) error {
	if candidate == "" {
		return common.ErrCodeInvalid
	}

	repo := s.repomanager.Codes(s.db)
	if err := repo.Consume(ctx, userID, purpose, candidate); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrCodeInvalid
		}
		return common.ErrorInternal
	}
	return nil
}

// EnableTOTP enrolls the user with a fresh shared secret and returns it with
// the otpauth:// provisioning URI for the authenticator app. The stored copy
// is encrypted; the plaintext secret is only ever returned here.
func (s *MFAService) EnableTOTP(ctx context.Context, email string) (secret string, provisioningURI string, err error) {
	user, err := s.getUserByEmail(ctx, email)
	if err != nil {
		return "", "", err
	}

	secret = totp.NewSecret()
	encrypted, err := s.keychain.EncryptForStorage([]byte(secret))
	if err != nil {
		return "", "", common.ErrorInternal
	}

	repo := s.repomanager.Users(s.db)
	if err := repo.SetTOTP(ctx, user.ID, encrypted, true); err != nil {
		return "", "", common.ErrorInternal
	}

	return secret, totp.ProvisioningURI(secret, user.Email, s.totpIssuer), nil
}

// VerifyTOTP checks the candidate against the user's secret with a small
// clock-drift tolerance. Failures are indistinguishable from wrong codes.
func (s *MFAService) VerifyTOTP(ctx context.Context, email string, candidate string) error {
	user, err := s.getUserByEmail(ctx, email)
	if err != nil {
		return err
	}
	if !user.TOTPEnabled || user.TOTPSecret == "" {
		return common.ErrCodeInvalid
	}

	secret, err := s.keychain.DecryptAny(user.TOTPSecret)
	if err != nil {
		s.logger.Error(ctx, "stored totp secret unreadable", "error", err)
		return common.ErrorInternal
	}
	defer common.WipeByteArray(secret)

	if !totp.Validate(string(secret), candidate, time.Now(), totpSkewSteps) {
		return common.ErrCodeInvalid
	}
	return nil
}

// DisableTOTP clears the enrollment and the stored secret.
func (s *MFAService) DisableTOTP(ctx context.Context, email string) error {
	user, err := s.getUserByEmail(ctx, email)
	if err != nil {
		return err
	}

	repo := s.repomanager.Users(s.db)
	if err := repo.SetTOTP(ctx, user.ID, "", false); err != nil {
		return common.ErrorInternal
	}
	return nil
}

func (s *MFAService) getUserByEmail(ctx context.Context, email string) (*models.User, error) {
	repo := s.repomanager.Users(s.db)
	user, err := repo.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorNotFound
		}
		return nil, common.ErrorInternal
	}
	return user, nil
}

func codeMessage(purpose models.CodePurpose, code string, ttl time.Duration) (subject, body string) {
	switch purpose {
	case models.PurposeRegistration:
		subject = "Confirm your registration"
	case models.PurposeSensitiveAction:
		subject = "Confirm your action"
	default:
		subject = "Your login code"
	}
	body = fmt.Sprintf("Your verification code is %s. It expires in %d minutes.",
		code, int(ttl.Minutes()))
	return subject, body
}
