package authvault

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidCredentials is returned on login when the email is unknown
	// or the password does not match. The two cases are never distinguished.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountUnverified is returned when the account exists but has not
	// completed email verification.
	ErrAccountUnverified = errors.New("account unverified")
	// ErrAccountExists is returned by Register for an already-taken email.
	ErrAccountExists = errors.New("account already exists")
	// ErrAccountNotFound is returned when an operation targets an account
	// that does not exist.
	ErrAccountNotFound = errors.New("account not found")
	// ErrTokenExpired is returned when a token's signature is valid but its
	// expiry has passed. Callers holding an expired access token should
	// attempt RefreshAccess rather than retry verification.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid covers bad signatures, malformed tokens, and tokens
	// presented with the wrong kind.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrTokenRevoked is returned when a cryptographically valid token has
	// been explicitly revoked before its natural expiry.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrMissingRefresh is returned when a refresh exchange is attempted
	// without presenting a refresh token.
	ErrMissingRefresh = errors.New("refresh token missing")
	// ErrSessionNotFound is returned when no authoritative refresh session
	// exists for the account, or the presented token does not match it.
	ErrSessionNotFound = errors.New("session not found")
	// ErrRateLimited is the sentinel matched by RateLimitError.
	ErrRateLimited = errors.New("rate limited")
	// ErrWeakPassword is returned when a password fails the strength policy.
	ErrWeakPassword = errors.New("password does not meet policy")
	// ErrPasswordReuse is returned when a new password matches the current one.
	ErrPasswordReuse = errors.New("new password must differ from current password")
	// ErrOTPInvalid is returned when a one-time code does not match, has
	// expired, or was already consumed.
	ErrOTPInvalid = errors.New("one-time code invalid or expired")
	// ErrResetInvalid is returned when a reset secret does not match any
	// active reset request.
	ErrResetInvalid = errors.New("reset secret invalid or expired")
	// ErrInternal wraps store and codec failures that are not a recognized
	// business condition. Detail is logged server-side, never surfaced.
	ErrInternal = errors.New("internal error")
	// ErrEngineNotReady is returned when the Engine is used before being
	// constructed with New.
	ErrEngineNotReady = errors.New("engine not ready")
)

// RateLimitError is returned when the rate gate rejects a request. It
// matches ErrRateLimited under errors.Is and carries a retry hint.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// Is reports whether target is ErrRateLimited.
func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}
