package authvault_test

import (
	"context"
	"errors"
	"testing"
	"time"

	authvault "github.com/mkhalaf/authvault"
	"github.com/mkhalaf/authvault/internal/rate"
)

func TestLoginVerifyRoundTrip(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()
	accountID := env.registerVerified(t, "a@x.com", "P@ssw0rd")

	pair, err := env.engine.Login(ctx, "a@x.com", "P@ssw0rd")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("expected both tokens")
	}
	if !pair.AccessExpiresAt.Before(pair.RefreshExpiresAt) {
		t.Fatal("access token should expire before refresh token")
	}

	got, err := env.engine.VerifyAccess(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("VerifyAccess: %v", err)
	}
	if got != accountID {
		t.Fatalf("VerifyAccess account = %q, want %q", got, accountID)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()
	env.registerVerified(t, "a@x.com", "P@ssw0rd")

	if _, err := env.engine.Login(ctx, "a@x.com", "wrong-P@ssw0rd"); !errors.Is(err, authvault.ErrInvalidCredentials) {
		t.Fatalf("wrong password: got %v, want ErrInvalidCredentials", err)
	}
	// Unknown email is indistinguishable from a wrong password.
	if _, err := env.engine.Login(ctx, "nobody@x.com", "P@ssw0rd"); !errors.Is(err, authvault.ErrInvalidCredentials) {
		t.Fatalf("unknown email: got %v, want ErrInvalidCredentials", err)
	}
}

func TestLoginRejectsUnverifiedAccount(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()

	if _, err := env.engine.Register(ctx, "new@x.com", "P@ssw0rd"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := env.engine.Login(ctx, "new@x.com", "P@ssw0rd"); !errors.Is(err, authvault.ErrAccountUnverified) {
		t.Fatalf("got %v, want ErrAccountUnverified", err)
	}
	// Wrong password on an unverified account still reports bad
	// credentials, never the verification state.
	if _, err := env.engine.Login(ctx, "new@x.com", "wrong-P@ssw0rd"); !errors.Is(err, authvault.ErrInvalidCredentials) {
		t.Fatalf("got %v, want ErrInvalidCredentials", err)
	}
}

func TestVerifyAccessExpiry(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()
	env.registerVerified(t, "a@x.com", "P@ssw0rd")

	pair, err := env.engine.Login(ctx, "a@x.com", "P@ssw0rd")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	env.clock.Advance(15*time.Minute + time.Second)
	if _, err := env.engine.VerifyAccess(ctx, pair.AccessToken); !errors.Is(err, authvault.ErrTokenExpired) {
		t.Fatalf("got %v, want ErrTokenExpired", err)
	}
}

func TestRefreshIssuesNewAccessToken(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()
	accountID := env.registerVerified(t, "a@x.com", "P@ssw0rd")

	pair, err := env.engine.Login(ctx, "a@x.com", "P@ssw0rd")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	env.clock.Advance(16 * time.Minute)
	access, err := env.engine.RefreshAccess(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("RefreshAccess: %v", err)
	}

	got, err := env.engine.VerifyAccess(ctx, access)
	if err != nil {
		t.Fatalf("VerifyAccess on refreshed token: %v", err)
	}
	if got != accountID {
		t.Fatalf("refreshed token account = %q, want %q", got, accountID)
	}
}

func TestRefreshRejectsWrongToken(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()
	env.registerVerified(t, "a@x.com", "P@ssw0rd")

	pair, err := env.engine.Login(ctx, "a@x.com", "P@ssw0rd")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	if _, err := env.engine.RefreshAccess(ctx, ""); !errors.Is(err, authvault.ErrMissingRefresh) {
		t.Fatalf("empty token: got %v, want ErrMissingRefresh", err)
	}
	// An access token is signed with a different key and must not pass as
	// a refresh token.
	if _, err := env.engine.RefreshAccess(ctx, pair.AccessToken); !errors.Is(err, authvault.ErrTokenInvalid) {
		t.Fatalf("access token as refresh: got %v, want ErrTokenInvalid", err)
	}
}

func TestRefreshExpiredSession(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()
	env.registerVerified(t, "a@x.com", "P@ssw0rd")

	pair, err := env.engine.Login(ctx, "a@x.com", "P@ssw0rd")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	env.clock.Advance(168*time.Hour + time.Second)
	if _, err := env.engine.RefreshAccess(ctx, pair.RefreshToken); !errors.Is(err, authvault.ErrTokenInvalid) {
		// Past the refresh TTL the token itself is expired, so the codec
		// rejects it before the session lookup runs.
		t.Fatalf("got %v, want ErrTokenInvalid", err)
	}
}

func TestLogoutEndsSession(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()
	env.registerVerified(t, "a@x.com", "P@ssw0rd")

	pair, err := env.engine.Login(ctx, "a@x.com", "P@ssw0rd")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := env.engine.RefreshAccess(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("RefreshAccess before logout: %v", err)
	}

	if err := env.engine.Logout(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}

	// The access token's signature and expiry are still individually
	// valid, but the session's revocation marker wins.
	if _, err := env.engine.VerifyAccess(ctx, pair.AccessToken); !errors.Is(err, authvault.ErrTokenRevoked) {
		t.Fatalf("VerifyAccess after logout: got %v, want ErrTokenRevoked", err)
	}
	if _, err := env.engine.RefreshAccess(ctx, pair.RefreshToken); !errors.Is(err, authvault.ErrSessionNotFound) {
		t.Fatalf("RefreshAccess after logout: got %v, want ErrSessionNotFound", err)
	}
	if err := env.engine.Logout(ctx, pair.RefreshToken); !errors.Is(err, authvault.ErrSessionNotFound) {
		t.Fatalf("second Logout: got %v, want ErrSessionNotFound", err)
	}
}

func TestNewLoginSupersedesOldSession(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()
	env.registerVerified(t, "a@x.com", "P@ssw0rd")

	first, err := env.engine.Login(ctx, "a@x.com", "P@ssw0rd")
	if err != nil {
		t.Fatalf("first Login: %v", err)
	}
	second, err := env.engine.Login(ctx, "a@x.com", "P@ssw0rd")
	if err != nil {
		t.Fatalf("second Login: %v", err)
	}

	// The superseded refresh token must not grant access, and presenting
	// it invalidates the stored session outright.
	if _, err := env.engine.RefreshAccess(ctx, first.RefreshToken); !errors.Is(err, authvault.ErrTokenInvalid) {
		t.Fatalf("superseded refresh: got %v, want ErrTokenInvalid", err)
	}
	if _, err := env.engine.RefreshAccess(ctx, second.RefreshToken); !errors.Is(err, authvault.ErrSessionNotFound) {
		t.Fatalf("refresh after replay teardown: got %v, want ErrSessionNotFound", err)
	}
}

func TestVerifyAccessFailsClosedWithoutCache(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()
	env.registerVerified(t, "a@x.com", "P@ssw0rd")

	pair, err := env.engine.Login(ctx, "a@x.com", "P@ssw0rd")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	env.redis.Close()
	if _, err := env.engine.VerifyAccess(ctx, pair.AccessToken); !errors.Is(err, authvault.ErrInternal) {
		t.Fatalf("got %v, want ErrInternal", err)
	}
}

func TestVerifyAccessDegradesWhenAllowed(t *testing.T) {
	cfg := testConfig()
	cfg.AllowDegradedVerify = true
	env := newTestEnv(t, cfg)
	ctx := context.Background()
	accountID := env.registerVerified(t, "a@x.com", "P@ssw0rd")

	pair, err := env.engine.Login(ctx, "a@x.com", "P@ssw0rd")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	env.redis.Close()
	got, err := env.engine.VerifyAccess(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("VerifyAccess with cache down: %v", err)
	}
	if got != accountID {
		t.Fatalf("account = %q, want %q", got, accountID)
	}
}

func TestRefreshSurvivesCacheOutage(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()
	env.registerVerified(t, "a@x.com", "P@ssw0rd")

	pair, err := env.engine.Login(ctx, "a@x.com", "P@ssw0rd")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	// The durable store is the fallback authority for refresh, so a cache
	// outage degrades instead of failing.
	env.redis.Close()
	if _, err := env.engine.RefreshAccess(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("RefreshAccess with cache down: %v", err)
	}
}

func TestLoginRateLimited(t *testing.T) {
	_, client := newTestRedis(t)
	gate := rate.New(client, rate.Config{
		Window: time.Minute,
		Limits: map[string]int{authvault.ScopeLogin: 2},
	})
	env := newTestEnv(t, testConfig(), authvault.WithRateGate(gate))

	ctx := authvault.WithClientIP(context.Background(), "203.0.113.7")
	env.registerVerified(t, "a@x.com", "P@ssw0rd")

	for i := 0; i < 2; i++ {
		if _, err := env.engine.Login(ctx, "a@x.com", "P@ssw0rd"); err != nil {
			t.Fatalf("login %d: %v", i, err)
		}
	}

	_, err := env.engine.Login(ctx, "a@x.com", "P@ssw0rd")
	if !errors.Is(err, authvault.ErrRateLimited) {
		t.Fatalf("got %v, want ErrRateLimited", err)
	}
	var rle *authvault.RateLimitError
	if !errors.As(err, &rle) || rle.RetryAfter <= 0 {
		t.Fatalf("expected retry hint, got %#v", err)
	}

	// A caller without an attached client IP bypasses the gate.
	if _, err := env.engine.Login(context.Background(), "a@x.com", "P@ssw0rd"); err != nil {
		t.Fatalf("login without client ip: %v", err)
	}
}

func TestIntrospectCarriesAdminFlag(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()

	// Admin is never self-service; seed the flag directly.
	accountID := env.registerVerified(t, "root@x.com", "P@ssw0rd")
	if err := env.store.SetAdmin(accountID, true); err != nil {
		t.Fatalf("SetAdmin: %v", err)
	}

	pair, err := env.engine.Login(ctx, "root@x.com", "P@ssw0rd")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	info, err := env.engine.Introspect(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("Introspect: %v", err)
	}
	if !info.Admin {
		t.Fatal("expected admin flag in token claims")
	}
	if info.SessionID == "" {
		t.Fatal("expected session id in token claims")
	}
}
