package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	authvault "github.com/mkhalaf/authvault"
	"github.com/mkhalaf/authvault/cache"
	"github.com/mkhalaf/authvault/memstore"
	"github.com/mkhalaf/authvault/middleware"
	"github.com/mkhalaf/authvault/password"
)

func newGuardEnv(t *testing.T) (*authvault.Engine, *memstore.Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	hasher, err := password.NewArgon2(password.Config{
		Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 16,
	})
	require.NoError(t, err)

	store := memstore.New()
	engine, err := authvault.New(authvault.Config{
		Token: authvault.TokenConfig{
			AccessKey:  []byte("guard-access-key"),
			RefreshKey: []byte("guard-refresh-key"),
		},
	}, store, cache.NewRedis(client, ""), authvault.WithHasher(hasher))
	require.NoError(t, err)
	return engine, store
}

func loginAs(t *testing.T, engine *authvault.Engine, store *memstore.Store, email string, admin bool) *authvault.TokenPair {
	t.Helper()
	ctx := context.Background()
	acct, err := engine.Register(ctx, email, "P@ssw0rd")
	require.NoError(t, err)
	require.NoError(t, store.MarkVerified(ctx, acct.ID))
	if admin {
		require.NoError(t, store.SetAdmin(acct.ID, true))
	}
	pair, err := engine.Login(ctx, email, "P@ssw0rd")
	require.NoError(t, err)
	return pair
}

func TestGuard(t *testing.T) {
	engine, store := newGuardEnv(t)
	pair := loginAs(t, engine, store, "a@x.com", false)

	var gotAccount string
	handler := middleware.Guard(engine)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAccount = middleware.AccountIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.NotEmpty(t, gotAccount)

	for _, header := range []string{"", "Bearer ", "Bearer not-a-token", pair.AccessToken} {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code, "header %q", header)
	}
}

func TestRequireAdmin(t *testing.T) {
	engine, store := newGuardEnv(t)
	userPair := loginAs(t, engine, store, "user@x.com", false)
	adminPair := loginAs(t, engine, store, "root@x.com", true)

	handler := middleware.RequireAdmin(engine)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+userPair.AccessToken)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+adminPair.AccessToken)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
}
