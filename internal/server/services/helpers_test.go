package services

import (
	"bytes"
	"context"
	"database/sql"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/avelancourt/passguard/internal/common"
	"github.com/avelancourt/passguard/internal/cryptox"
	"github.com/avelancourt/passguard/internal/dbx"
	"github.com/avelancourt/passguard/internal/logging"
	"github.com/avelancourt/passguard/internal/server/config"
	"github.com/avelancourt/passguard/internal/server/models"
	codesrepo "github.com/avelancourt/passguard/internal/server/repositories/codes"
	devicesrepo "github.com/avelancourt/passguard/internal/server/repositories/devices"
	sessionsrepo "github.com/avelancourt/passguard/internal/server/repositories/sessions"
	usersrepo "github.com/avelancourt/passguard/internal/server/repositories/users"
)

// --- shared test fixtures ---

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return db, mock
}

func testConfig() *config.Config {
	return &config.Config{
		SecretKey:               "k",
		SessionValidityDuration: time.Hour,
		CodeTTL:                 5 * time.Minute,
		TOTPIssuer:              "Password Guardian",
	}
}

func testKeychain(t *testing.T) *cryptox.Keychain {
	t.Helper()
	kc, err := cryptox.NewKeychain(bytes.Repeat([]byte{0x42}, 32))
	if err != nil {
		t.Fatalf("NewKeychain error: %v", err)
	}
	return kc
}

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.Default())
}

// --- fakes ---

type fakeUsersRepo struct {
	createErr error

	byEmail map[string]*models.User
	getErr  error

	verifiedIDs []string
	setVerErr   error

	totpID      string
	totpSecret  string
	totpEnabled bool
	setTOTPErr  error
}

func (f *fakeUsersRepo) Create(ctx context.Context, u *models.User) (*models.User, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	return u, nil
}

func (f *fakeUsersRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	if u, ok := f.byEmail[email]; ok {
		return u, nil
	}
	return nil, common.ErrorNotFound
}

func (f *fakeUsersRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	for _, u := range f.byEmail {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeUsersRepo) SetEmailVerified(ctx context.Context, id string) error {
	if f.setVerErr != nil {
		return f.setVerErr
	}
	f.verifiedIDs = append(f.verifiedIDs, id)
	return nil
}

func (f *fakeUsersRepo) SetTOTP(ctx context.Context, id string, secret string, enabled bool) error {
	if f.setTOTPErr != nil {
		return f.setTOTPErr
	}
	f.totpID, f.totpSecret, f.totpEnabled = id, secret, enabled
	return nil
}

type fakeSessionsRepo struct {
	createErr error

	getOut *models.Session
	getErr error

	listOut []*models.Session
	listErr error

	revokedIDs     []string
	revokeErr      error
	revokedDevices []string
}

func (f *fakeSessionsRepo) Create(ctx context.Context, s *models.Session) (*models.Session, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	s.CreatedAt = time.Now()
	return s, nil
}

func (f *fakeSessionsRepo) Get(ctx context.Context, id string) (*models.Session, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.getOut, nil
}

func (f *fakeSessionsRepo) ListByUser(ctx context.Context, userID string) ([]*models.Session, error) {
	return f.listOut, f.listErr
}

func (f *fakeSessionsRepo) Revoke(ctx context.Context, id string) error {
	if f.revokeErr != nil {
		return f.revokeErr
	}
	f.revokedIDs = append(f.revokedIDs, id)
	return nil
}

func (f *fakeSessionsRepo) RevokeByDevice(ctx context.Context, userID, deviceInfo string) error {
	f.revokedDevices = append(f.revokedDevices, deviceInfo)
	return nil
}

type fakeDevicesRepo struct {
	upserted  []*models.DeviceTrust
	upsertErr error

	findOut *models.DeviceTrust
	findErr error

	listOut []*models.DeviceTrust
	listErr error
}

func (f *fakeDevicesRepo) Upsert(ctx context.Context, trust *models.DeviceTrust) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserted = append(f.upserted, trust)
	return nil
}

func (f *fakeDevicesRepo) Find(ctx context.Context, userID, deviceName string) (*models.DeviceTrust, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.findOut, nil
}

func (f *fakeDevicesRepo) ListByUser(ctx context.Context, userID string) ([]*models.DeviceTrust, error) {
	return f.listOut, f.listErr
}

type fakeCodesRepo struct {
	replaced   []*models.TwoFactorCode
	replaceErr error

	consumed   []string
	consumeErr error
}

func (f *fakeCodesRepo) Replace(ctx context.Context, code *models.TwoFactorCode) error {
	if f.replaceErr != nil {
		return f.replaceErr
	}
	f.replaced = append(f.replaced, code)
	return nil
}

func (f *fakeCodesRepo) Consume(ctx context.Context, userID string, purpose models.CodePurpose, code string) error {
	if f.consumeErr != nil {
		return f.consumeErr
	}
	f.consumed = append(f.consumed, code)
	return nil
}

type sentMail struct {
	to, subject, body string
}

type fakeMailer struct {
	sent    []sentMail
	sendErr error
}

func (f *fakeMailer) Send(ctx context.Context, to, subject, body string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, sentMail{to: to, subject: subject, body: body})
	return nil
}

type fakeRepoManager struct {
	u *fakeUsersRepo
	s *fakeSessionsRepo
	d *fakeDevicesRepo
	c *fakeCodesRepo
}

func newFakeRepoManager() *fakeRepoManager {
	return &fakeRepoManager{
		u: &fakeUsersRepo{byEmail: map[string]*models.User{}},
		s: &fakeSessionsRepo{},
		d: &fakeDevicesRepo{findErr: common.ErrorNotFound},
		c: &fakeCodesRepo{},
	}
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Users(db dbx.DBTX) usersrepo.Repository       { return m.u }
func (m *fakeRepoManager) Sessions(db dbx.DBTX) sessionsrepo.Repository { return m.s }
func (m *fakeRepoManager) Devices(db dbx.DBTX) devicesrepo.Repository   { return m.d }
func (m *fakeRepoManager) Codes(db dbx.DBTX) codesrepo.Repository       { return m.c }

// newServices wires an MFAService and AuthService over the fakes.
func newServices(t *testing.T, db *sql.DB, rm *fakeRepoManager, mailer *fakeMailer) (*MFAService, *AuthService) {
	t.Helper()
	cfg := testConfig()
	mfa := NewMFAService(db, rm, mailer, testKeychain(t), cfg, testLogger())
	return mfa, NewAuthService(db, rm, mfa, cfg, testLogger())
}
