// Package httpapi exposes the authentication engine over a JSON HTTP API.
package httpapi

import (
	"net/http"
	"time"

	"github.com/avelancourt/passguard/internal/common"
	"github.com/avelancourt/passguard/internal/logging"
	"github.com/avelancourt/passguard/internal/passcheck"
	"github.com/avelancourt/passguard/internal/server/models"
	"github.com/avelancourt/passguard/internal/server/services"
)

const timeLayout = time.RFC3339

type Handler struct {
	auth   *services.AuthService
	mfa    *services.MFAService
	pwned  *passcheck.Checker
	logger logging.Logger
}

func NewHandler(auth *services.AuthService, mfa *services.MFAService,
	pwned *passcheck.Checker, logger logging.Logger) *Handler {
	return &Handler{auth: auth, mfa: mfa, pwned: pwned, logger: logger}
}

// Routes builds the request multiplexer. Everything under /api/login and
// /api/register is public; the rest requires a bearer session token.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/register", h.register)
	mux.HandleFunc("POST /api/register/verify", h.verifyRegistration)
	mux.HandleFunc("POST /api/register/resend", h.resendCode)
	mux.HandleFunc("POST /api/login", h.login)
	mux.HandleFunc("POST /api/login/code", h.loginWithCode)
	mux.HandleFunc("POST /api/login/totp", h.loginWithTOTP)
	mux.HandleFunc("POST /api/password/check", h.checkPassword)

	mux.HandleFunc("POST /api/totp/enable", h.withAuth(h.enableTOTP))
	mux.HandleFunc("POST /api/totp/disable", h.withAuth(h.disableTOTP))
	mux.HandleFunc("POST /api/devices/trust", h.withAuth(h.trustDevice))
	mux.HandleFunc("GET /api/sessions", h.withAuth(h.listSessions))
	mux.HandleFunc("DELETE /api/sessions/{id}", h.withAuth(h.revokeSession))
	mux.HandleFunc("GET /api/devices", h.withAuth(h.listDevices))
	mux.HandleFunc("DELETE /api/devices/{name}/sessions", h.withAuth(h.revokeDeviceSessions))

	return h.withLogging(mux)
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	id, err := h.auth.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"user_id": id})
}

type verifyRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

func (h *Handler) verifyRegistration(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.auth.VerifyRegistration(r.Context(), req.Email, req.Code); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"verified": true})
}

func (h *Handler) resendCode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	sent, err := h.auth.ResendVerificationCode(r.Context(), req.Email)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"sent": sent})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Device   string `json:"device"`
	Send2FA  bool   `json:"send_2fa"`
}

type loginResponse struct {
	Token       string `json:"token,omitempty"`
	SessionID   string `json:"session_id,omitempty"`
	MFARequired bool   `json:"mfa_required"`
	MFAMethod   string `json:"mfa_method,omitempty"`
	CodeSent    bool   `json:"code_sent"`
}

// login verifies the password. A trusted device gets a session immediately;
// otherwise the response tells the client which second factor to present.
func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.auth.Authenticate(r.Context(), req.Email, req.Password, req.Device, req.Send2FA)
	if err != nil {
		writeError(w, err)
		return
	}

	if res.MFARequired {
		writeJSON(w, http.StatusOK, loginResponse{
			MFARequired: true,
			MFAMethod:   res.MFAMethod,
			CodeSent:    res.CodeSent,
		})
		return
	}

	session, token, err := h.auth.CreateSession(r.Context(), res.User.ID, req.Device)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Token: token, SessionID: session.ID})
}

type secondFactorRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Device   string `json:"device"`
	Code     string `json:"code"`
}

// finishLogin rechecks the password before honoring the second factor, so a
// stolen code alone never opens a session.
func (h *Handler) finishLogin(w http.ResponseWriter, r *http.Request, req secondFactorRequest, verify func(userID string) error) {
	res, err := h.auth.Authenticate(r.Context(), req.Email, req.Password, "", false)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := verify(res.User.ID); err != nil {
		writeError(w, err)
		return
	}

	session, token, err := h.auth.CreateSession(r.Context(), res.User.ID, req.Device)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Token: token, SessionID: session.ID})
}

func (h *Handler) loginWithCode(w http.ResponseWriter, r *http.Request) {
	var req secondFactorRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	h.finishLogin(w, r, req, func(userID string) error {
		return h.mfa.VerifyCode(r.Context(), userID, models.PurposeLogin, req.Code)
	})
}

func (h *Handler) loginWithTOTP(w http.ResponseWriter, r *http.Request) {
	var req secondFactorRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	h.finishLogin(w, r, req, func(userID string) error {
		return h.mfa.VerifyTOTP(r.Context(), req.Email, req.Code)
	})
}

type passwordCheckRequest struct {
	Password string `json:"password"`
}

type passwordCheckResponse struct {
	Strength string `json:"strength"`
	Breached bool   `json:"breached"`
	Count    int    `json:"count"`
}

func (h *Handler) checkPassword(w http.ResponseWriter, r *http.Request) {
	var req passwordCheckRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Password == "" {
		writeError(w, common.ErrValidation)
		return
	}

	breached, count := h.pwned.CheckPwned(r.Context(), req.Password)
	writeJSON(w, http.StatusOK, passwordCheckResponse{
		Strength: passcheck.Strength(req.Password),
		Breached: breached,
		Count:    count,
	})
}

func (h *Handler) enableTOTP(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFromContext(r.Context())
	user, err := h.auth.UserByID(r.Context(), claims.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	secret, uri, err := h.mfa.EnableTOTP(r.Context(), user.Email)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"secret":           secret,
		"provisioning_uri": uri,
	})
}

func (h *Handler) disableTOTP(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFromContext(r.Context())
	user, err := h.auth.UserByID(r.Context(), claims.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.mfa.DisableTOTP(r.Context(), user.Email); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"disabled": true})
}

type trustDeviceRequest struct {
	Device string `json:"device"`
	Days   int    `json:"days"`
}

func (h *Handler) trustDevice(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFromContext(r.Context())

	var req trustDeviceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.auth.TrustDevice(r.Context(), claims.UserID, req.Device, req.Days); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"trusted": true})
}

type sessionView struct {
	ID         string `json:"id"`
	DeviceInfo string `json:"device_info"`
	CreatedAt  string `json:"created_at"`
	Revoked    bool   `json:"revoked"`
}

func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFromContext(r.Context())

	sessions, err := h.auth.ListSessions(r.Context(), claims.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	views := make([]sessionView, 0, len(sessions))
	for _, s := range sessions {
		views = append(views, sessionView{
			ID:         s.ID,
			DeviceInfo: s.DeviceInfo,
			CreatedAt:  s.CreatedAt.Format(timeLayout),
			Revoked:    s.Revoked,
		})
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) revokeSession(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFromContext(r.Context())

	if err := h.auth.RevokeSession(r.Context(), claims.UserID, r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"revoked": true})
}

type deviceView struct {
	DeviceName  string `json:"device_name"`
	TrustExpiry string `json:"trust_expiry"`
}

func (h *Handler) listDevices(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFromContext(r.Context())

	devices, err := h.auth.ListDevices(r.Context(), claims.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	views := make([]deviceView, 0, len(devices))
	for _, d := range devices {
		views = append(views, deviceView{
			DeviceName:  d.DeviceName,
			TrustExpiry: d.TrustExpiry.Format(timeLayout),
		})
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) revokeDeviceSessions(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFromContext(r.Context())

	if err := h.auth.RevokeDeviceSessions(r.Context(), claims.UserID, r.PathValue("name")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"revoked": true})
}
