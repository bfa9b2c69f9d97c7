package authvault

import (
	"context"
	"crypto/subtle"
	"errors"

	"go.uber.org/zap"

	"github.com/mkhalaf/authvault/internal/random"
)

// RequestReset opens a password-reset request for the account behind the
// email, superseding any prior request in one atomic write so at most one
// is ever active. It returns the plaintext 256-bit secret for out-of-band
// delivery; only its hash is persisted.
func (e *Engine) RequestReset(ctx context.Context, email string) (string, error) {
	if e == nil || e.store == nil {
		return "", ErrEngineNotReady
	}
	if err := e.admit(ctx, ScopeReset); err != nil {
		return "", err
	}

	acct, err := e.store.AccountByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return "", ErrAccountNotFound
		}
		return "", e.internalError("reset account lookup", err)
	}

	secret, err := random.ResetSecret()
	if err != nil {
		return "", e.internalError("reset secret generate", err)
	}

	req := ResetRequest{
		AccountID:  acct.ID,
		SecretHash: random.HashSecret(secret),
		ExpiresAt:  e.now().Add(e.config.Reset.TTL),
	}
	if err := e.store.UpsertResetRequest(ctx, req); err != nil {
		return "", e.internalError("reset upsert", err)
	}

	e.metrics.Inc(MetricResetRequested)
	return secret, nil
}

// VerifyReset resolves a plaintext reset secret to the account that
// requested it. Only hashes are stored, so the active requests are
// scanned and compared in constant time; the set is bounded by one
// request per account within the reset TTL.
func (e *Engine) VerifyReset(ctx context.Context, secret string) (string, error) {
	if e == nil || e.store == nil {
		return "", ErrEngineNotReady
	}
	if secret == "" {
		return "", ErrResetInvalid
	}

	active, err := e.store.ActiveResetRequests(ctx, e.now())
	if err != nil {
		return "", e.internalError("reset scan", err)
	}

	provided := random.HashSecret(secret)
	for i := range active {
		if subtle.ConstantTimeCompare(active[i].SecretHash[:], provided[:]) == 1 {
			return active[i].AccountID, nil
		}
	}
	return "", ErrResetInvalid
}

// ConsumeReset completes a reset for the account: the new password must
// satisfy the strength policy and differ from the current one. On success
// the credential is rewritten, the reset request deleted, and the
// account's active session torn down.
func (e *Engine) ConsumeReset(ctx context.Context, accountID, newPass string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}

	if err := e.checkPasswordStrength(newPass); err != nil {
		return err
	}

	// The account id alone is not enough; an outstanding unexpired
	// request must back the consume.
	active, err := e.store.ActiveResetRequests(ctx, e.now())
	if err != nil {
		return e.internalError("reset consume scan", err)
	}
	backed := false
	for i := range active {
		if active[i].AccountID == accountID {
			backed = true
			break
		}
	}
	if !backed {
		return ErrResetInvalid
	}

	cred, err := e.store.CredentialByAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return ErrAccountNotFound
		}
		return e.internalError("reset credential lookup", err)
	}

	same, err := e.hasher.Verify(newPass, cred.PasswordHash)
	if err != nil {
		return e.internalError("reset reuse check", err)
	}
	if same {
		return ErrPasswordReuse
	}

	newHash, err := e.hasher.Hash(newPass)
	if err != nil {
		return e.internalError("reset hash", err)
	}
	if err := e.store.UpdateCredential(ctx, accountID, newHash, e.now()); err != nil {
		return e.internalError("reset credential update", err)
	}

	if err := e.store.DeleteResetRequest(ctx, accountID); err != nil {
		e.logger.Warn("reset request delete failed after consume",
			zap.String("account_id", accountID), zap.Error(err))
	}

	e.revokeActiveSession(ctx, accountID)
	e.metrics.Inc(MetricResetConsumed)
	return nil
}
