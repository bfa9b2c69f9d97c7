package authvault

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mkhalaf/authvault/internal/random"
	"github.com/mkhalaf/authvault/jwt"
)

// Login authenticates the email/password pair and opens a new session,
// superseding any prior session for the account. On success it returns a
// fresh access/refresh token pair. Unknown emails and wrong passwords are
// indistinguishable to the caller in both result and cost.
func (e *Engine) Login(ctx context.Context, email, pass string) (*TokenPair, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	if err := e.admit(ctx, ScopeLogin); err != nil {
		return nil, err
	}

	email = normalizeEmail(email)
	acct, err := e.store.AccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			// Burn the same argon2 cost as a real mismatch.
			_, _ = e.hasher.Verify(pass, e.dummyHash)
			e.metrics.Inc(MetricLoginFailure)
			return nil, ErrInvalidCredentials
		}
		return nil, e.internalError("login account lookup", err)
	}

	cred, err := e.store.CredentialByAccount(ctx, acct.ID)
	if err != nil {
		return nil, e.internalError("login credential lookup", err)
	}

	ok, err := e.hasher.Verify(pass, cred.PasswordHash)
	if err != nil {
		return nil, e.internalError("login password verify", err)
	}
	if !ok {
		e.metrics.Inc(MetricLoginFailure)
		return nil, ErrInvalidCredentials
	}

	// Checked after the password so an unverified-account response never
	// confirms an email to someone who does not hold the credential.
	if !acct.Verified {
		e.metrics.Inc(MetricLoginFailure)
		return nil, ErrAccountUnverified
	}

	now := e.now()
	sessionID := uuid.NewString()

	access, err := e.codec.Issue(jwt.KindAccess, acct.ID, sessionID, acct.Admin, e.config.Session.AccessTTL)
	if err != nil {
		return nil, e.internalError("login issue access", err)
	}
	refresh, err := e.codec.Issue(jwt.KindRefresh, acct.ID, sessionID, acct.Admin, e.config.Session.RefreshTTL)
	if err != nil {
		return nil, e.internalError("login issue refresh", err)
	}

	sess := RefreshSession{
		AccountID: acct.ID,
		TokenHash: random.HashSecret(refresh),
		IssuedAt:  now,
		ExpiresAt: now.Add(e.config.Session.RefreshTTL),
	}
	if err := e.store.UpsertRefreshSession(ctx, sess); err != nil {
		return nil, e.internalError("login session upsert", err)
	}

	// Mirror write is best-effort; the durable store stays authoritative.
	if err := e.cache.MirrorSession(ctx, acct.ID, sess.TokenHash, e.config.Session.RefreshTTL); err != nil {
		e.metrics.Inc(MetricCacheDegraded)
		e.logger.Warn("session mirror write failed", zap.String("account_id", acct.ID), zap.Error(err))
	}

	e.metrics.Inc(MetricLoginSuccess)
	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  now.Add(e.config.Session.AccessTTL),
		RefreshExpiresAt: sess.ExpiresAt,
	}, nil
}

// VerifyAccess verifies an access token and returns the account id it was
// issued to. Revocation wins over cryptographic validity: a signed,
// unexpired token whose session carries a revocation marker fails with
// ErrTokenRevoked. ErrTokenExpired signals the caller to attempt
// RefreshAccess rather than retry.
func (e *Engine) VerifyAccess(ctx context.Context, accessToken string) (string, error) {
	info, err := e.Introspect(ctx, accessToken)
	if err != nil {
		return "", err
	}
	return info.AccountID, nil
}

// Introspect is VerifyAccess returning the full decoded identity,
// including the admin flag for authorization middleware.
func (e *Engine) Introspect(ctx context.Context, accessToken string) (*TokenInfo, error) {
	if e == nil || e.codec == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.codec.Verify(accessToken, jwt.KindAccess)
	if err != nil {
		if errors.Is(err, jwt.ErrExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	revoked, err := e.cache.IsRevoked(ctx, claims.SessionID)
	if err != nil {
		e.metrics.Inc(MetricCacheDegraded)
		if !e.config.AllowDegradedVerify {
			// Nothing else can answer "was this session logged out", so a
			// cache outage fails closed here.
			e.logger.Error("revocation check unavailable, failing closed", zap.Error(err))
			return nil, ErrInternal
		}
		e.logger.Warn("revocation check unavailable, treating token as not revoked", zap.Error(err))
	} else if revoked {
		e.metrics.Inc(MetricRevocationHit)
		return nil, ErrTokenRevoked
	}

	return &TokenInfo{
		AccountID: claims.AccountID,
		SessionID: claims.SessionID,
		Admin:     claims.Admin,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// RefreshAccess exchanges a valid refresh token for a new access token.
// The refresh token itself is not rotated. The presented token must match
// the account's authoritative session exactly; a replay of a superseded
// token invalidates the stored session outright.
func (e *Engine) RefreshAccess(ctx context.Context, refreshToken string) (string, error) {
	if e == nil || e.codec == nil {
		return "", ErrEngineNotReady
	}
	if refreshToken == "" {
		return "", ErrMissingRefresh
	}

	claims, err := e.codec.Verify(refreshToken, jwt.KindRefresh)
	if err != nil {
		e.metrics.Inc(MetricRefreshFailure)
		return "", ErrTokenInvalid
	}

	// The durable store answers "does this session exist" first: a
	// logged-out session reports not-found regardless of marker state.
	sess, err := e.store.RefreshSessionByAccount(ctx, claims.AccountID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			e.metrics.Inc(MetricRefreshFailure)
			return "", ErrSessionNotFound
		}
		return "", e.internalError("refresh session lookup", err)
	}

	now := e.now()
	if !now.Before(sess.ExpiresAt) {
		e.cleanupSession(ctx, claims.AccountID)
		e.metrics.Inc(MetricRefreshFailure)
		return "", ErrSessionNotFound
	}

	if sess.TokenHash != random.HashSecret(refreshToken) {
		// A superseded refresh token is being replayed. Invalidate the
		// stored session and mark the replayed token's session id revoked
		// for its remaining lifetime.
		e.metrics.Inc(MetricRefreshReplay)
		e.metrics.Inc(MetricRefreshFailure)
		e.cleanupSession(ctx, claims.AccountID)
		if err := e.cache.Revoke(ctx, claims.SessionID, claims.ExpiresAt.Time.Sub(now)); err != nil {
			e.logger.Warn("replay revocation marker write failed", zap.Error(err))
		}
		e.logger.Warn("stale refresh token replayed, session invalidated",
			zap.String("account_id", claims.AccountID))
		return "", ErrTokenInvalid
	}

	// The marker only decides when the durable record still exists, which
	// happens if a logout's durable delete failed after the marker was
	// written. On a cache outage this degrades: the store just vouched
	// for the session.
	revoked, err := e.cache.IsRevoked(ctx, claims.SessionID)
	if err != nil {
		e.metrics.Inc(MetricCacheDegraded)
		e.logger.Warn("revocation check unavailable during refresh", zap.Error(err))
	} else if revoked {
		e.metrics.Inc(MetricRevocationHit)
		e.metrics.Inc(MetricRefreshFailure)
		return "", ErrTokenRevoked
	}

	acct, err := e.store.AccountByID(ctx, claims.AccountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			e.cleanupSession(ctx, claims.AccountID)
			e.metrics.Inc(MetricRefreshFailure)
			return "", ErrSessionNotFound
		}
		return "", e.internalError("refresh account lookup", err)
	}

	access, err := e.codec.Issue(jwt.KindAccess, acct.ID, claims.SessionID, acct.Admin, e.config.Session.AccessTTL)
	if err != nil {
		return "", e.internalError("refresh issue access", err)
	}

	// Re-warm the mirror with the session's remaining lifetime.
	if err := e.cache.MirrorSession(ctx, acct.ID, sess.TokenHash, sess.ExpiresAt.Sub(now)); err != nil {
		e.metrics.Inc(MetricCacheDegraded)
		e.logger.Warn("session mirror refresh failed", zap.Error(err))
	}

	e.metrics.Inc(MetricRefreshSuccess)
	return access, nil
}

// Logout verifies the refresh token, confirms it is the session on
// record, deletes the session from the durable store, and writes a
// revocation marker covering both the refresh token and its paired access
// token for the remainder of their lifetimes. A marker write failure is
// logged but does not fail the logout; the durable delete already ended
// the session's refresh capability.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	if e == nil || e.codec == nil {
		return ErrEngineNotReady
	}
	if refreshToken == "" {
		return ErrMissingRefresh
	}

	claims, err := e.codec.Verify(refreshToken, jwt.KindRefresh)
	if err != nil {
		return ErrTokenInvalid
	}

	sess, err := e.store.RefreshSessionByAccount(ctx, claims.AccountID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return ErrSessionNotFound
		}
		return e.internalError("logout session lookup", err)
	}
	if sess.TokenHash != random.HashSecret(refreshToken) {
		return ErrSessionNotFound
	}

	if err := e.store.DeleteRefreshSession(ctx, claims.AccountID); err != nil && !errors.Is(err, ErrSessionNotFound) {
		return e.internalError("logout session delete", err)
	}

	// One marker keyed by session id covers both tokens; the refresh
	// expiry is the later of the two, so the marker never outlives either.
	if err := e.cache.Revoke(ctx, claims.SessionID, claims.ExpiresAt.Time.Sub(e.now())); err != nil {
		e.metrics.Inc(MetricCacheDegraded)
		e.logger.Warn("revocation marker write failed on logout",
			zap.String("account_id", claims.AccountID), zap.Error(err))
	}
	if err := e.cache.DropSession(ctx, claims.AccountID); err != nil {
		e.logger.Warn("session mirror drop failed on logout", zap.Error(err))
	}

	e.metrics.Inc(MetricLogout)
	return nil
}

// cleanupSession removes a dead session from both stores, best-effort.
func (e *Engine) cleanupSession(ctx context.Context, accountID string) {
	if err := e.store.DeleteRefreshSession(ctx, accountID); err != nil && !errors.Is(err, ErrSessionNotFound) {
		e.logger.Warn("session cleanup failed", zap.String("account_id", accountID), zap.Error(err))
	}
	if err := e.cache.DropSession(ctx, accountID); err != nil {
		e.logger.Warn("session mirror cleanup failed", zap.String("account_id", accountID), zap.Error(err))
	}
}
