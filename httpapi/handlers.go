package httpapi

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	authvault "github.com/mkhalaf/authvault"
	"github.com/mkhalaf/authvault/middleware"
)

const (
	refreshCookieName = "refresh_token"
	maxBodySize       = 4 << 10
)

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken     string    `json:"access_token"`
	AccessExpiresAt time.Time `json:"access_expires_at"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type verifyRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type resetConfirmRequest struct {
	Secret      string `json:"secret"`
	NewPassword string `json:"new_password"`
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// Register handles POST /auth/register.
func (a *API) Register(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[registerRequest](w, r, maxBodySize)
	if !ok {
		return
	}

	acct, err := a.engine.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		mapError(w, err)
		return
	}

	code, err := a.engine.IssueOTP(r.Context(), acct.Email)
	if err != nil {
		mapError(w, err)
		return
	}
	if err := a.sender.SendOTP(r.Context(), acct.Email, code); err != nil {
		a.logger.Error("otp delivery failed", zap.String("account_id", acct.ID), zap.Error(err))
	}

	writeJSON(w, http.StatusCreated, map[string]string{"id": acct.ID, "email": acct.Email})
}

// Login handles POST /auth/login. The access token is returned in the
// body; the refresh token only ever travels in the cookie.
func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[loginRequest](w, r, maxBodySize)
	if !ok {
		return
	}

	pair, err := a.engine.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		mapError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    pair.RefreshToken,
		Path:     "/auth",
		Expires:  pair.RefreshExpiresAt,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken:     pair.AccessToken,
		AccessExpiresAt: pair.AccessExpiresAt,
	})
}

// Refresh handles POST /auth/refresh.
func (a *API) Refresh(w http.ResponseWriter, r *http.Request) {
	access, err := a.engine.RefreshAccess(r.Context(), refreshTokenFrom(r))
	if err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"access_token": access})
}

// Logout handles POST /auth/logout and clears the refresh cookie whether
// or not a session was found; the cookie is dead either way.
func (a *API) Logout(w http.ResponseWriter, r *http.Request) {
	err := a.engine.Logout(r.Context(), refreshTokenFrom(r))

	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     "/auth",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})

	if err != nil {
		mapError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RequestOTP handles POST /auth/otp/request. Like RequestReset, unknown
// emails get the same 204 as known ones.
func (a *API) RequestOTP(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[emailRequest](w, r, maxBodySize)
	if !ok {
		return
	}

	code, err := a.engine.IssueOTP(r.Context(), req.Email)
	switch {
	case err == nil:
		if err := a.sender.SendOTP(r.Context(), req.Email, code); err != nil {
			a.logger.Error("otp delivery failed", zap.Error(err))
		}
	case errors.Is(err, authvault.ErrAccountNotFound):
	default:
		mapError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// VerifyAccount handles POST /auth/verify.
func (a *API) VerifyAccount(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[verifyRequest](w, r, maxBodySize)
	if !ok {
		return
	}
	if err := a.engine.VerifyAccount(r.Context(), req.Email, req.Code); err != nil {
		mapError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RequestReset handles POST /auth/reset/request. An unknown email gets
// the same 204 as a known one so the endpoint cannot be used to probe for
// accounts.
func (a *API) RequestReset(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[emailRequest](w, r, maxBodySize)
	if !ok {
		return
	}

	secret, err := a.engine.RequestReset(r.Context(), req.Email)
	switch {
	case err == nil:
		if err := a.sender.SendResetSecret(r.Context(), req.Email, secret); err != nil {
			a.logger.Error("reset delivery failed", zap.Error(err))
		}
	case errors.Is(err, authvault.ErrAccountNotFound):
		// Fall through to the uniform response.
	default:
		mapError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ConfirmReset handles POST /auth/reset/confirm: resolve the secret, then
// consume it with the new password.
func (a *API) ConfirmReset(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[resetConfirmRequest](w, r, maxBodySize)
	if !ok {
		return
	}

	accountID, err := a.engine.VerifyReset(r.Context(), req.Secret)
	if err != nil {
		mapError(w, err)
		return
	}
	if err := a.engine.ConsumeReset(r.Context(), accountID, req.NewPassword); err != nil {
		mapError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Me handles GET /me.
func (a *API) Me(w http.ResponseWriter, r *http.Request) {
	info, ok := middleware.InfoFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"account_id": info.AccountID,
		"admin":      info.Admin,
		"expires_at": info.ExpiresAt,
	})
}

// ChangePassword handles POST /me/password.
func (a *API) ChangePassword(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[changePasswordRequest](w, r, maxBodySize)
	if !ok {
		return
	}

	accountID := middleware.AccountIDFromContext(r.Context())
	if accountID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := a.engine.ChangePassword(r.Context(), accountID, req.OldPassword, req.NewPassword); err != nil {
		mapError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// refreshTokenFrom prefers the X-Refresh-Token header, falling back to
// the cookie set at login.
func refreshTokenFrom(r *http.Request) string {
	if token := r.Header.Get("X-Refresh-Token"); token != "" {
		return token
	}
	if c, err := r.Cookie(refreshCookieName); err == nil {
		return c.Value
	}
	return ""
}
