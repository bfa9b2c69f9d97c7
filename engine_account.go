package authvault

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Register creates an unverified account for the normalized email with an
// argon2id credential. Returns ErrAccountExists when the email is taken
// and ErrWeakPassword when the password fails the policy.
func (e *Engine) Register(ctx context.Context, email, pass string) (*Account, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}

	email = normalizeEmail(email)
	if email == "" {
		return nil, ErrInvalidCredentials
	}
	if err := e.checkPasswordStrength(pass); err != nil {
		return nil, err
	}

	hash, err := e.hasher.Hash(pass)
	if err != nil {
		return nil, e.internalError("register hash", err)
	}

	now := e.now()
	acct := Account{
		ID:        uuid.NewString(),
		Email:     email,
		Verified:  false,
		Admin:     false,
		CreatedAt: now,
	}
	cred := Credential{
		AccountID:    acct.ID,
		PasswordHash: hash,
		ChangedAt:    now,
	}

	if err := e.store.CreateAccount(ctx, acct, cred); err != nil {
		if errors.Is(err, ErrAccountExists) {
			return nil, ErrAccountExists
		}
		return nil, e.internalError("register create", err)
	}

	return &acct, nil
}

// ChangePassword rewrites the account's credential after verifying the
// current password. The new password must satisfy the strength policy and
// differ from the current one. The active session, if any, is torn down
// so a stolen refresh token does not survive a password change.
func (e *Engine) ChangePassword(ctx context.Context, accountID, oldPass, newPass string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}

	cred, err := e.store.CredentialByAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return ErrAccountNotFound
		}
		return e.internalError("change password lookup", err)
	}

	ok, err := e.hasher.Verify(oldPass, cred.PasswordHash)
	if err != nil {
		return e.internalError("change password verify", err)
	}
	if !ok {
		return ErrInvalidCredentials
	}

	if err := e.checkPasswordStrength(newPass); err != nil {
		return err
	}
	same, err := e.hasher.Verify(newPass, cred.PasswordHash)
	if err != nil {
		return e.internalError("change password reuse check", err)
	}
	if same {
		return ErrPasswordReuse
	}

	newHash, err := e.hasher.Hash(newPass)
	if err != nil {
		return e.internalError("change password hash", err)
	}
	if err := e.store.UpdateCredential(ctx, accountID, newHash, e.now()); err != nil {
		return e.internalError("change password update", err)
	}

	e.revokeActiveSession(ctx, accountID)
	return nil
}

// revokeActiveSession tears down the account's refresh session in both
// stores after a credential change. Best-effort: outstanding access
// tokens run out on their own short TTL.
func (e *Engine) revokeActiveSession(ctx context.Context, accountID string) {
	if err := e.store.DeleteRefreshSession(ctx, accountID); err != nil && !errors.Is(err, ErrSessionNotFound) {
		e.logger.Warn("session invalidation failed after credential change",
			zap.String("account_id", accountID), zap.Error(err))
	}
	if err := e.cache.DropSession(ctx, accountID); err != nil {
		e.logger.Warn("session mirror drop failed after credential change",
			zap.String("account_id", accountID), zap.Error(err))
	}
}
