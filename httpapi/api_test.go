package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	authvault "github.com/mkhalaf/authvault"
	"github.com/mkhalaf/authvault/cache"
	"github.com/mkhalaf/authvault/httpapi"
	"github.com/mkhalaf/authvault/memstore"
	"github.com/mkhalaf/authvault/password"
)

// captureSender records delivered secrets instead of sending them.
type captureSender struct {
	mu     sync.Mutex
	otps   map[string]string
	resets map[string]string
}

func newCaptureSender() *captureSender {
	return &captureSender{otps: make(map[string]string), resets: make(map[string]string)}
}

func (s *captureSender) SendOTP(_ context.Context, email, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.otps[email] = code
	return nil
}

func (s *captureSender) SendResetSecret(_ context.Context, email, secret string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets[email] = secret
	return nil
}

func (s *captureSender) otp(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.otps[email]
}

func (s *captureSender) reset(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resets[email]
}

func newTestAPI(t *testing.T) (http.Handler, *captureSender) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	hasher, err := password.NewArgon2(password.Config{
		Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 16,
	})
	require.NoError(t, err)

	engine, err := authvault.New(authvault.Config{
		Token: authvault.TokenConfig{
			AccessKey:  []byte("api-access-key"),
			RefreshKey: []byte("api-refresh-key"),
		},
	}, memstore.New(), cache.NewRedis(client, ""), authvault.WithHasher(hasher))
	require.NoError(t, err)

	sender := newCaptureSender()
	return httpapi.New(engine, httpapi.WithSender(sender)).Router(), sender
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any, mutate ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, m := range mutate {
		m(req)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestAuthFlow(t *testing.T) {
	handler, sender := newTestAPI(t)

	rec := doJSON(t, handler, http.MethodPost, "/auth/register",
		map[string]string{"email": "a@x.com", "password": "P@ssw0rd"})
	require.Equal(t, http.StatusCreated, rec.Code)

	// Login is blocked until the verification code is consumed.
	rec = doJSON(t, handler, http.MethodPost, "/auth/login",
		map[string]string{"email": "a@x.com", "password": "P@ssw0rd"})
	require.Equal(t, http.StatusForbidden, rec.Code)

	code := sender.otp("a@x.com")
	require.Len(t, code, 6)
	rec = doJSON(t, handler, http.MethodPost, "/auth/verify",
		map[string]string{"email": "a@x.com", "code": code})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, handler, http.MethodPost, "/auth/login",
		map[string]string{"email": "a@x.com", "password": "P@ssw0rd"})
	require.Equal(t, http.StatusOK, rec.Code)

	var login struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &login))
	require.NotEmpty(t, login.AccessToken)

	var refreshCookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == "refresh_token" {
			refreshCookie = c
		}
	}
	require.NotNil(t, refreshCookie, "login must set the refresh cookie")
	require.True(t, refreshCookie.HttpOnly)
	require.Equal(t, http.SameSiteStrictMode, refreshCookie.SameSite)
	require.NotEmpty(t, refreshCookie.Value)

	rec = doJSON(t, handler, http.MethodGet, "/me", nil, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+login.AccessToken)
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, handler, http.MethodGet, "/me", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// Refresh accepts the cookie; the refresh token never rides in
	// Authorization.
	rec = doJSON(t, handler, http.MethodPost, "/auth/refresh", nil, func(r *http.Request) {
		r.AddCookie(refreshCookie)
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, handler, http.MethodPost, "/auth/refresh", nil, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+refreshCookie.Value)
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, handler, http.MethodPost, "/auth/logout", nil, func(r *http.Request) {
		r.AddCookie(refreshCookie)
	})
	require.Equal(t, http.StatusNoContent, rec.Code)
	for _, c := range rec.Result().Cookies() {
		if c.Name == "refresh_token" {
			require.Empty(t, c.Value)
			require.Negative(t, c.MaxAge)
		}
	}

	rec = doJSON(t, handler, http.MethodPost, "/auth/refresh", nil, func(r *http.Request) {
		r.AddCookie(refreshCookie)
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestResetFlowOverHTTP(t *testing.T) {
	handler, sender := newTestAPI(t)

	rec := doJSON(t, handler, http.MethodPost, "/auth/register",
		map[string]string{"email": "a@x.com", "password": "P@ssw0rd"})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = doJSON(t, handler, http.MethodPost, "/auth/verify",
		map[string]string{"email": "a@x.com", "code": sender.otp("a@x.com")})
	require.Equal(t, http.StatusNoContent, rec.Code)

	// Known and unknown emails are indistinguishable from outside.
	rec = doJSON(t, handler, http.MethodPost, "/auth/reset/request",
		map[string]string{"email": "a@x.com"})
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = doJSON(t, handler, http.MethodPost, "/auth/reset/request",
		map[string]string{"email": "nobody@x.com"})
	require.Equal(t, http.StatusNoContent, rec.Code)

	secret := sender.reset("a@x.com")
	require.Len(t, secret, 64)
	require.Empty(t, sender.reset("nobody@x.com"))

	rec = doJSON(t, handler, http.MethodPost, "/auth/reset/confirm",
		map[string]string{"secret": secret, "new_password": "weak"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, handler, http.MethodPost, "/auth/reset/confirm",
		map[string]string{"secret": secret, "new_password": "Str0ng!Pass"})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, handler, http.MethodPost, "/auth/reset/confirm",
		map[string]string{"secret": secret, "new_password": "An0ther!Pass"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, handler, http.MethodPost, "/auth/login",
		map[string]string{"email": "a@x.com", "password": "Str0ng!Pass"})
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestChangePasswordOverHTTP(t *testing.T) {
	handler, sender := newTestAPI(t)

	rec := doJSON(t, handler, http.MethodPost, "/auth/register",
		map[string]string{"email": "a@x.com", "password": "P@ssw0rd"})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = doJSON(t, handler, http.MethodPost, "/auth/verify",
		map[string]string{"email": "a@x.com", "code": sender.otp("a@x.com")})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, handler, http.MethodPost, "/auth/login",
		map[string]string{"email": "a@x.com", "password": "P@ssw0rd"})
	require.Equal(t, http.StatusOK, rec.Code)
	var login struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &login))

	auth := func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+login.AccessToken)
	}
	rec = doJSON(t, handler, http.MethodPost, "/me/password",
		map[string]string{"old_password": "P@ssw0rd", "new_password": "P@ssw0rd"}, auth)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, handler, http.MethodPost, "/me/password",
		map[string]string{"old_password": "P@ssw0rd", "new_password": "N3w-P@ssw0rd"}, auth)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, handler, http.MethodPost, "/auth/login",
		map[string]string{"email": "a@x.com", "password": "N3w-P@ssw0rd"})
	require.Equal(t, http.StatusOK, rec.Code)
}
