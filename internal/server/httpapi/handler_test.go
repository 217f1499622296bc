package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/avelancourt/passguard/internal/common"
	"github.com/avelancourt/passguard/internal/cryptox"
	"github.com/avelancourt/passguard/internal/dbx"
	"github.com/avelancourt/passguard/internal/logging"
	"github.com/avelancourt/passguard/internal/passcheck"
	"github.com/avelancourt/passguard/internal/server/config"
	"github.com/avelancourt/passguard/internal/server/models"
	codesrepo "github.com/avelancourt/passguard/internal/server/repositories/codes"
	devicesrepo "github.com/avelancourt/passguard/internal/server/repositories/devices"
	sessionsrepo "github.com/avelancourt/passguard/internal/server/repositories/sessions"
	usersrepo "github.com/avelancourt/passguard/internal/server/repositories/users"
	"github.com/avelancourt/passguard/internal/server/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- in-memory repositories ---

type memStore struct {
	users    map[string]*models.User
	sessions map[string]*models.Session
	devices  map[string]*models.DeviceTrust
	codes    map[string]*models.TwoFactorCode
	mails    []string
}

func newMemStore() *memStore {
	return &memStore{
		users:    map[string]*models.User{},
		sessions: map[string]*models.Session{},
		devices:  map[string]*models.DeviceTrust{},
		codes:    map[string]*models.TwoFactorCode{},
	}
}

type memUsers struct{ s *memStore }

func (m *memUsers) Create(ctx context.Context, u *models.User) (*models.User, error) {
	for _, existing := range m.s.users {
		if existing.Email == u.Email {
			return nil, common.ErrDuplicateEmail
		}
	}
	u.CreatedAt = time.Now()
	m.s.users[u.ID] = u
	return u, nil
}

func (m *memUsers) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range m.s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (m *memUsers) GetByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.s.users[id]; ok {
		return u, nil
	}
	return nil, common.ErrorNotFound
}

func (m *memUsers) SetEmailVerified(ctx context.Context, id string) error {
	if u, ok := m.s.users[id]; ok {
		u.EmailVerified = true
	}
	return nil
}

func (m *memUsers) SetTOTP(ctx context.Context, id string, secret string, enabled bool) error {
	if u, ok := m.s.users[id]; ok {
		u.TOTPSecret, u.TOTPEnabled = secret, enabled
	}
	return nil
}

type memSessions struct{ s *memStore }

func (m *memSessions) Create(ctx context.Context, sess *models.Session) (*models.Session, error) {
	sess.CreatedAt = time.Now()
	m.s.sessions[sess.ID] = sess
	return sess, nil
}

func (m *memSessions) Get(ctx context.Context, id string) (*models.Session, error) {
	if sess, ok := m.s.sessions[id]; ok {
		return sess, nil
	}
	return nil, common.ErrorNotFound
}

func (m *memSessions) ListByUser(ctx context.Context, userID string) ([]*models.Session, error) {
	var out []*models.Session
	for _, sess := range m.s.sessions {
		if sess.UserID == userID {
			out = append(out, sess)
		}
	}
	return out, nil
}

func (m *memSessions) Revoke(ctx context.Context, id string) error {
	if sess, ok := m.s.sessions[id]; ok {
		sess.Revoked = true
	}
	return nil
}

func (m *memSessions) RevokeByDevice(ctx context.Context, userID, deviceInfo string) error {
	for _, sess := range m.s.sessions {
		if sess.UserID == userID && sess.DeviceInfo == deviceInfo {
			sess.Revoked = true
		}
	}
	return nil
}

type memDevices struct{ s *memStore }

func devKey(userID, name string) string { return userID + "/" + name }

func (m *memDevices) Upsert(ctx context.Context, trust *models.DeviceTrust) error {
	m.s.devices[devKey(trust.UserID, trust.DeviceName)] = trust
	return nil
}

func (m *memDevices) Find(ctx context.Context, userID, deviceName string) (*models.DeviceTrust, error) {
	if d, ok := m.s.devices[devKey(userID, deviceName)]; ok {
		return d, nil
	}
	return nil, common.ErrorNotFound
}

func (m *memDevices) ListByUser(ctx context.Context, userID string) ([]*models.DeviceTrust, error) {
	var out []*models.DeviceTrust
	for _, d := range m.s.devices {
		if d.UserID == userID {
			out = append(out, d)
		}
	}
	return out, nil
}

type memCodes struct{ s *memStore }

func codeKey(userID string, purpose models.CodePurpose) string {
	return userID + "/" + string(purpose)
}

func (m *memCodes) Replace(ctx context.Context, code *models.TwoFactorCode) error {
	m.s.codes[codeKey(code.UserID, code.Purpose)] = code
	return nil
}

func (m *memCodes) Consume(ctx context.Context, userID string, purpose models.CodePurpose, code string) error {
	key := codeKey(userID, purpose)
	stored, ok := m.s.codes[key]
	if !ok || stored.Consumed || stored.Code != code || stored.ExpiresAt.Before(time.Now()) {
		return common.ErrorNotFound
	}
	stored.Consumed = true
	return nil
}

type memRepoManager struct{ s *memStore }

func (m *memRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *memRepoManager) Users(db dbx.DBTX) usersrepo.Repository       { return &memUsers{s: m.s} }
func (m *memRepoManager) Sessions(db dbx.DBTX) sessionsrepo.Repository { return &memSessions{s: m.s} }
func (m *memRepoManager) Devices(db dbx.DBTX) devicesrepo.Repository   { return &memDevices{s: m.s} }
func (m *memRepoManager) Codes(db dbx.DBTX) codesrepo.Repository       { return &memCodes{s: m.s} }

type memMailer struct{ s *memStore }

func (m *memMailer) Send(ctx context.Context, to, subject, body string) error {
	m.s.mails = append(m.s.mails, body)
	return nil
}

// --- harness ---

type testEnv struct {
	store  *memStore
	server *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	// transactions begin/commit freely against the mem store
	mock.MatchExpectationsInOrder(false)
	for i := 0; i < 32; i++ {
		mock.ExpectBegin()
		mock.ExpectCommit()
	}

	store := newMemStore()
	rm := &memRepoManager{s: store}
	logger := logging.NewSlogLogger(slog.Default())

	cfg := &config.Config{
		SecretKey:               "test-secret",
		SessionValidityDuration: time.Hour,
		CodeTTL:                 5 * time.Minute,
		TOTPIssuer:              "Password Guardian",
		HIBPTimeout:             time.Second,
	}

	kc, err := cryptox.NewKeychain([]byte(strings.Repeat("k", 32)))
	require.NoError(t, err)

	hibp := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// suffix for sha1("password")
		fmt.Fprint(w, "1E4C9B93F3F0682250B6CF8331B7EE68FD8:3\r\n")
	}))
	t.Cleanup(hibp.Close)

	mfa := services.NewMFAService(db, rm, &memMailer{s: store}, kc, cfg, logger)
	auth := services.NewAuthService(db, rm, mfa, cfg, logger)
	pwned := passcheck.NewChecker(hibp.URL, cfg.HIBPTimeout, logger)

	h := NewHandler(auth, mfa, pwned, logger)
	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)

	return &testEnv{store: store, server: srv}
}

func (e *testEnv) post(t *testing.T, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	return e.do(t, http.MethodPost, path, token, body)
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader *strings.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = strings.NewReader(string(raw))
	} else {
		reader = strings.NewReader("")
	}

	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

// registerAndVerify walks the registration flow and returns the mailed code's user.
func (e *testEnv) registerAndVerify(t *testing.T, email, password string) {
	t.Helper()

	resp, _ := e.post(t, "/api/register", "", map[string]any{
		"username": "alice", "email": email, "password": password,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var code string
	for _, c := range e.store.codes {
		code = c.Code
	}
	require.NotEmpty(t, code)

	resp, _ = e.post(t, "/api/register/verify", "", map[string]any{"email": email, "code": code})
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

// loginWithEmailCode completes a password+code login and returns the token.
func (e *testEnv) loginWithEmailCode(t *testing.T, email, password string) string {
	t.Helper()

	resp, body := e.post(t, "/api/login", "", map[string]any{
		"email": email, "password": password, "device": "laptop", "send_2fa": true,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, body["mfa_required"])
	require.Equal(t, "email", body["mfa_method"])
	require.Equal(t, true, body["code_sent"])

	code := e.store.codes[codeKey(e.userID(t, email), models.PurposeLogin)].Code
	resp, body = e.post(t, "/api/login/code", "", map[string]any{
		"email": email, "password": password, "device": "laptop", "code": code,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)
	return token
}

func (e *testEnv) userID(t *testing.T, email string) string {
	t.Helper()
	for id, u := range e.store.users {
		if u.Email == email {
			return id
		}
	}
	t.Fatalf("no user with email %s", email)
	return ""
}

// --- tests ---

func TestRegisterAndLoginFlow(t *testing.T) {
	env := newTestEnv(t)

	env.registerAndVerify(t, "alice@example.com", "correct horse battery")
	token := env.loginWithEmailCode(t, "alice@example.com", "correct horse battery")

	resp, _ := env.do(t, http.MethodGet, "/api/sessions", token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	env := newTestEnv(t)
	env.registerAndVerify(t, "alice@example.com", "correct horse battery")

	resp, _ := env.post(t, "/api/register", "", map[string]any{
		"username": "alice2", "email": "alice@example.com", "password": "another password",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestRegister_Validation(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.post(t, "/api/register", "", map[string]any{
		"username": "alice", "email": "not-an-email", "password": "correct horse battery",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLogin_WrongPassword(t *testing.T) {
	env := newTestEnv(t)
	env.registerAndVerify(t, "alice@example.com", "correct horse battery")

	resp, _ := env.post(t, "/api/login", "", map[string]any{
		"email": "alice@example.com", "password": "wrong password", "device": "laptop",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLoginWithCode_WrongCode(t *testing.T) {
	env := newTestEnv(t)
	env.registerAndVerify(t, "alice@example.com", "correct horse battery")

	resp, _ := env.post(t, "/api/login/code", "", map[string]any{
		"email": "alice@example.com", "password": "correct horse battery",
		"device": "laptop", "code": "000000",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestTrustedDeviceSkipsMFA(t *testing.T) {
	env := newTestEnv(t)
	env.registerAndVerify(t, "alice@example.com", "correct horse battery")
	token := env.loginWithEmailCode(t, "alice@example.com", "correct horse battery")

	resp, _ := env.post(t, "/api/devices/trust", token, map[string]any{"device": "laptop", "days": 30})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := env.post(t, "/api/login", "", map[string]any{
		"email": "alice@example.com", "password": "correct horse battery",
		"device": "laptop", "send_2fa": true,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["mfa_required"])
	tok, _ := body["token"].(string)
	assert.NotEmpty(t, tok, "trusted device gets a session directly")
}

func TestRevokedSessionRejected(t *testing.T) {
	env := newTestEnv(t)
	env.registerAndVerify(t, "alice@example.com", "correct horse battery")
	token := env.loginWithEmailCode(t, "alice@example.com", "correct horse battery")

	var sessionID string
	for id := range env.store.sessions {
		sessionID = id
	}

	resp, _ := env.do(t, http.MethodDelete, "/api/sessions/"+sessionID, token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = env.do(t, http.MethodGet, "/api/sessions", token, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRevokeSession_OtherUsersSession(t *testing.T) {
	env := newTestEnv(t)
	env.registerAndVerify(t, "alice@example.com", "correct horse battery")
	aliceToken := env.loginWithEmailCode(t, "alice@example.com", "correct horse battery")

	var aliceSession string
	for id := range env.store.sessions {
		aliceSession = id
	}
	require.NotEmpty(t, aliceSession)

	env.registerAndVerify(t, "mallory@example.com", "another long password")
	malloryToken := env.loginWithEmailCode(t, "mallory@example.com", "another long password")

	resp, _ := env.do(t, http.MethodDelete, "/api/sessions/"+aliceSession, malloryToken, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.False(t, env.store.sessions[aliceSession].Revoked, "foreign session must stay live")

	resp, _ = env.do(t, http.MethodGet, "/api/sessions", aliceToken, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.do(t, http.MethodGet, "/api/sessions", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = env.do(t, http.MethodGet, "/api/sessions", "garbage-token", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCheckPassword(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.post(t, "/api/password/check", "", map[string]any{"password": "password"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "weak", body["strength"])
	assert.Equal(t, true, body["breached"])
	assert.Equal(t, float64(3), body["count"])
}

func TestCheckPassword_Empty(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.post(t, "/api/password/check", "", map[string]any{"password": ""})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestEnableTOTPFlow(t *testing.T) {
	env := newTestEnv(t)
	env.registerAndVerify(t, "alice@example.com", "correct horse battery")
	token := env.loginWithEmailCode(t, "alice@example.com", "correct horse battery")

	resp, body := env.post(t, "/api/totp/enable", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	secret, _ := body["secret"].(string)
	require.NotEmpty(t, secret)
	uri, _ := body["provisioning_uri"].(string)
	assert.True(t, strings.HasPrefix(uri, "otpauth://totp/"))

	// next login must ask for the authenticator app
	resp, body = env.post(t, "/api/login", "", map[string]any{
		"email": "alice@example.com", "password": "correct horse battery",
		"device": "other-device", "send_2fa": true,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "totp", body["mfa_method"])
	assert.Equal(t, false, body["code_sent"])
}
