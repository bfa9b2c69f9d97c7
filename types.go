package authvault

import (
	"context"
	"time"
)

// Account is the identity anchor. Email is stored normalized and unique.
type Account struct {
	ID        string
	Email     string
	Verified  bool
	Admin     bool
	CreatedAt time.Time
}

// Credential is the one-to-one password record for an account. The hash is
// write-only: callers compare through a SecretHasher, never read plaintext.
type Credential struct {
	AccountID    string
	PasswordHash string
	ChangedAt    time.Time
}

// RefreshSession is the single authoritative login session for an account.
// TokenHash is the SHA-256 of the signed refresh token; the token itself is
// never persisted. Creating a new session supersedes the prior one.
type RefreshSession struct {
	AccountID string
	TokenHash [32]byte
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// OneTimeCode is a short-lived numeric secret, at most one live per account.
type OneTimeCode struct {
	AccountID string
	Code      string
	ExpiresAt time.Time
}

// ResetRequest is a pending password reset, at most one active per account.
// Only the SHA-256 of the secret is stored.
type ResetRequest struct {
	AccountID  string
	SecretHash [32]byte
	ExpiresAt  time.Time
}

// TokenInfo is the decoded identity of a verified access token.
type TokenInfo struct {
	AccountID string
	SessionID string
	Admin     bool
	ExpiresAt time.Time
}

// TokenPair is the result of a successful login.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// DurableStore is the source of truth for long-lived state. Implementations
// must survive process restarts and make the per-account upserts atomic: a
// concurrent reader never observes zero or two live records for the same
// account. Entities are considered absent once now is past their expiry
// even if a row still exists; callers pass now explicitly where the store
// filters on it.
type DurableStore interface {
	// CreateAccount persists the account and its credential atomically.
	// Returns ErrAccountExists when the normalized email is taken.
	CreateAccount(ctx context.Context, acct Account, cred Credential) error
	// AccountByEmail looks up an account by normalized email.
	// Returns ErrAccountNotFound when absent.
	AccountByEmail(ctx context.Context, email string) (*Account, error)
	// AccountByID looks up an account by id.
	// Returns ErrAccountNotFound when absent.
	AccountByID(ctx context.Context, id string) (*Account, error)
	// MarkVerified sets the account's verified flag.
	MarkVerified(ctx context.Context, accountID string) error

	// CredentialByAccount returns the live credential for the account.
	CredentialByAccount(ctx context.Context, accountID string) (*Credential, error)
	// UpdateCredential replaces the password hash and changed-at timestamp.
	UpdateCredential(ctx context.Context, accountID, passwordHash string, changedAt time.Time) error

	// UpsertRefreshSession replaces the account's refresh session in a
	// single atomic write, superseding any prior session.
	UpsertRefreshSession(ctx context.Context, sess RefreshSession) error
	// RefreshSessionByAccount returns the account's refresh session.
	// Returns ErrSessionNotFound when absent.
	RefreshSessionByAccount(ctx context.Context, accountID string) (*RefreshSession, error)
	// DeleteRefreshSession removes the account's refresh session. Deleting
	// an absent session returns ErrSessionNotFound.
	DeleteRefreshSession(ctx context.Context, accountID string) error

	// UpsertOneTimeCode replaces the account's outstanding code atomically.
	UpsertOneTimeCode(ctx context.Context, code OneTimeCode) error
	// ConsumeOneTimeCode deletes the code if it matches exactly and is
	// unexpired at now, in one atomic step. Reports whether it matched.
	ConsumeOneTimeCode(ctx context.Context, accountID, code string, now time.Time) (bool, error)

	// UpsertResetRequest replaces the account's reset request atomically.
	UpsertResetRequest(ctx context.Context, req ResetRequest) error
	// ActiveResetRequests returns all reset requests unexpired at now.
	ActiveResetRequests(ctx context.Context, now time.Time) ([]ResetRequest, error)
	// DeleteResetRequest removes the account's reset request, if any.
	DeleteResetRequest(ctx context.Context, accountID string) error
}

// EphemeralCache is a fast store with native per-key TTL. It owns only
// derived state and may lose data on failure; write failures must be
// treated as non-fatal by callers. Revocation markers are the one place
// the cache is authoritative: "has this session been revoked before its
// natural expiry".
type EphemeralCache interface {
	// Revoke marks a session id invalid for ttl. The ttl is the remaining
	// lifetime of the longest-lived token carrying the id, so the marker
	// never outlives what it targets.
	Revoke(ctx context.Context, sessionID string, ttl time.Duration) error
	// IsRevoked reports whether a revocation marker exists for the session.
	IsRevoked(ctx context.Context, sessionID string) (bool, error)

	// MirrorSession caches the refresh-token hash for the account.
	MirrorSession(ctx context.Context, accountID string, tokenHash [32]byte, ttl time.Duration) error
	// CachedSession returns the mirrored hash and whether one was present.
	CachedSession(ctx context.Context, accountID string) ([32]byte, bool, error)
	// DropSession removes the mirrored session for the account.
	DropSession(ctx context.Context, accountID string) error
}

// SecretHasher is a one-way hash with constant-time compare, used for
// passwords. The encoded form is opaque to the engine.
type SecretHasher interface {
	Hash(secret string) (string, error)
	Verify(secret, encoded string) (bool, error)
}

// RateGate admits or rejects a request for an identity within a scope.
// Gate state may live in the ephemeral store; losing counters on restart
// is acceptable. Allow returns the time until the window resets when the
// budget is exhausted. An error means the gate itself is unavailable; the
// engine fails open in that case.
type RateGate interface {
	Allow(ctx context.Context, scope, identity string) (bool, time.Duration, error)
}

// Rate gate scopes. Login, reset initiation, and OTP issuance use the
// tighter auth budget; everything else the general one.
const (
	ScopeGeneral = "general"
	ScopeLogin   = "login"
	ScopeReset   = "reset"
	ScopeOTP     = "otp"
)

// Clock supplies the current time for every expiry comparison. Injected
// for testability; defaults to time.Now.
type Clock func() time.Time
