// This file implements AuthService, the orchestrator for registration,
// login, device trust, and the session registry.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/avelancourt/passguard/internal/common"
	"github.com/avelancourt/passguard/internal/cryptox"
	"github.com/avelancourt/passguard/internal/dbx"
	"github.com/avelancourt/passguard/internal/logging"
	"github.com/avelancourt/passguard/internal/server/auth"
	"github.com/avelancourt/passguard/internal/server/config"
	"github.com/avelancourt/passguard/internal/server/models"
	"github.com/avelancourt/passguard/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

const minPasswordLength = 8

// MFA method names reported in AuthResult.
const (
	MethodEmail = "email"
	MethodTOTP  = "totp"
)

// AuthResult describes the outcome of a successful password check and what
// the caller must do next to finish logging in.
type AuthResult struct {
	User        *models.User
	MFARequired bool
	MFAMethod   string
	CodeSent    bool
}

// AuthService handles registration, login, device trust, and sessions.
// Password verification alone never bypasses MFA; only a live device trust
// record does.
type AuthService struct {
	db              *sql.DB
	repomanager     repomanager.RepositoryManager
	mfa             *MFAService
	jwtSecret       []byte
	sessionValidity time.Duration
	logger          logging.Logger
}

func NewAuthService(db *sql.DB, m repomanager.RepositoryManager, mfa *MFAService,
	cfg *config.Config, logger logging.Logger) *AuthService {
	return &AuthService{
		db:              db,
		repomanager:     m,
		mfa:             mfa,
		jwtSecret:       []byte(cfg.SecretKey),
		sessionValidity: cfg.SessionValidityDuration,
		logger:          logger,
	}
}

// Register creates the user and mails the registration code in a single
// transaction: if the mail cannot be sent, the user row rolls back and the
// registration never happened.
func (s *AuthService) Register(ctx context.Context, username, email, password string) (string, error) {
	username = strings.TrimSpace(username)
	email = normalizeEmail(email)
	if username == "" {
		return "", fmt.Errorf("%w: username required", common.ErrValidation)
	}
	if !strings.Contains(email, "@") {
		return "", fmt.Errorf("%w: invalid email", common.ErrValidation)
	}
	if len(password) < minPasswordLength {
		return "", fmt.Errorf("%w: password must be at least %d characters", common.ErrValidation, minPasswordLength)
	}

	hash, salt, err := cryptox.HashPassword([]byte(password))
	if err != nil {
		return "", common.ErrorInternal
	}

	code, err := common.GenerateDigitCode(codeDigits)
	if err != nil {
		return "", common.ErrorInternal
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Salt:         salt,
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := s.repomanager.Users(tx).Create(ctx, user); err != nil {
			return err
		}
		return s.mfa.sendCodeTx(ctx, tx, user, models.PurposeRegistration, code)
	})
	if err != nil {
		if errors.Is(err, common.ErrDuplicateEmail) || errors.Is(err, common.ErrMailNotSent) {
			return "", err
		}
		return "", common.ErrorInternal
	}

	return user.ID, nil
}

// VerifyRegistration consumes the emailed registration code and marks the
// address verified.
func (s *AuthService) VerifyRegistration(ctx context.Context, email, code string) error {
	user, err := s.getUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrCodeInvalid
		}
		return err
	}

	if err := s.mfa.VerifyCode(ctx, user.ID, models.PurposeRegistration, code); err != nil {
		return err
	}

	if err := s.repomanager.Users(s.db).SetEmailVerified(ctx, user.ID); err != nil {
		return common.ErrorInternal
	}
	return nil
}

// ResendVerificationCode reissues the registration code. Returns false
// without error when the address is already verified or the mail relay
// refused the message.
func (s *AuthService) ResendVerificationCode(ctx context.Context, email string) (bool, error) {
	user, err := s.getUserByEmail(ctx, email)
	if err != nil {
		return false, err
	}
	if user.EmailVerified {
		return false, nil
	}

	if err := s.mfa.SendCode(ctx, user, models.PurposeRegistration); err != nil {
		if errors.Is(err, common.ErrMailNotSent) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Authenticate verifies the password and decides the second factor:
// a trusted device skips MFA entirely; TOTP enrollment selects the
// authenticator app without sending anything; otherwise an email code is
// dispatched only when the caller asked for it via send2FA.
func (s *AuthService) Authenticate(ctx context.Context, email, password, deviceName string, send2FA bool) (*AuthResult, error) {
	user, err := s.getUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, err
	}

	if !cryptox.VerifyPassword(user.PasswordHash, user.Salt, []byte(password)) {
		return nil, common.ErrorUnauthorized
	}

	result := &AuthResult{User: user}

	if deviceName != "" {
		trust, err := s.repomanager.Devices(s.db).Find(ctx, user.ID, deviceName)
		if err == nil && trust.Trusted(time.Now()) {
			return result, nil
		}
		if err != nil && !errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorInternal
		}
	}

	result.MFARequired = true

	if user.TOTPEnabled {
		result.MFAMethod = MethodTOTP
		return result, nil
	}

	result.MFAMethod = MethodEmail
	if send2FA {
		if err := s.mfa.SendCode(ctx, user, models.PurposeLogin); err != nil {
			if !errors.Is(err, common.ErrMailNotSent) {
				return nil, err
			}
		} else {
			result.CodeSent = true
		}
	}
	return result, nil
}

// Unlock is a password-only recheck used by the lock screen. It never
// touches MFA or device trust.
func (s *AuthService) Unlock(ctx context.Context, email, password string) error {
	user, err := s.getUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrorUnauthorized
		}
		return err
	}
	if !cryptox.VerifyPassword(user.PasswordHash, user.Salt, []byte(password)) {
		return common.ErrorUnauthorized
	}
	return nil
}

// TrustDevice marks the device as allowed to skip MFA for the given number
// of days. Re-trusting refreshes the expiry.
func (s *AuthService) TrustDevice(ctx context.Context, userID, deviceName string, days int) error {
	if deviceName == "" || days <= 0 {
		return fmt.Errorf("%w: device name and positive day count required", common.ErrValidation)
	}

	trust := &models.DeviceTrust{
		UserID:      userID,
		DeviceName:  deviceName,
		TrustExpiry: time.Now().AddDate(0, 0, days),
	}
	if err := s.repomanager.Devices(s.db).Upsert(ctx, trust); err != nil {
		return common.ErrorInternal
	}
	return nil
}

// CreateSession records the login and returns the session with its signed
// token.
func (s *AuthService) CreateSession(ctx context.Context, userID, deviceInfo string) (*models.Session, string, error) {
	session := &models.Session{
		ID:         uuid.NewString(),
		UserID:     userID,
		DeviceInfo: deviceInfo,
	}

	session, err := s.repomanager.Sessions(s.db).Create(ctx, session)
	if err != nil {
		return nil, "", common.ErrorInternal
	}

	token, err := auth.GenerateToken(userID, session.ID, s.jwtSecret, s.sessionValidity)
	if err != nil {
		return nil, "", common.ErrorInternal
	}
	return session, token, nil
}

// AuthorizeToken parses a bearer token and checks the backing session is
// still live. Returns the claims for request scoping.
func (s *AuthService) AuthorizeToken(ctx context.Context, token string) (*auth.Claims, error) {
	claims, err := auth.ParseToken(token, s.jwtSecret)
	if err != nil {
		return nil, common.ErrorUnauthorized
	}

	session, err := s.repomanager.Sessions(s.db).Get(ctx, claims.SessionID)
	if err != nil {
		return nil, common.ErrorUnauthorized
	}
	if session.Revoked || session.UserID != claims.UserID {
		return nil, common.ErrorUnauthorized
	}
	return claims, nil
}

// RevokeSession revokes one of the caller's own sessions. A session owned
// by another user is reported as not found, never revoked. Revoking twice
// is a no-op success.
func (s *AuthService) RevokeSession(ctx context.Context, userID, sessionID string) error {
	session, err := s.repomanager.Sessions(s.db).Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrorNotFound
		}
		return common.ErrorInternal
	}
	if session.UserID != userID {
		return common.ErrorNotFound
	}

	if err := s.repomanager.Sessions(s.db).Revoke(ctx, sessionID); err != nil {
		return common.ErrorInternal
	}
	return nil
}

// RevokeDeviceSessions revokes every session opened from the named device.
func (s *AuthService) RevokeDeviceSessions(ctx context.Context, userID, deviceName string) error {
	if err := s.repomanager.Sessions(s.db).RevokeByDevice(ctx, userID, deviceName); err != nil {
		return common.ErrorInternal
	}
	return nil
}

func (s *AuthService) ListSessions(ctx context.Context, userID string) ([]*models.Session, error) {
	sessions, err := s.repomanager.Sessions(s.db).ListByUser(ctx, userID)
	if err != nil {
		return nil, common.ErrorInternal
	}
	return sessions, nil
}

func (s *AuthService) ListDevices(ctx context.Context, userID string) ([]*models.DeviceTrust, error) {
	devices, err := s.repomanager.Devices(s.db).ListByUser(ctx, userID)
	if err != nil {
		return nil, common.ErrorInternal
	}
	return devices, nil
}

// UserByID loads a user by primary key, for request handlers that only hold
// token claims.
func (s *AuthService) UserByID(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repomanager.Users(s.db).GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorNotFound
		}
		return nil, common.ErrorInternal
	}
	return user, nil
}

func (s *AuthService) getUserByEmail(ctx context.Context, email string) (*models.User, error) {
	user, err := s.repomanager.Users(s.db).GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorNotFound
		}
		return nil, common.ErrorInternal
	}
	return user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
