package authvault

import (
	"context"
	"errors"

	"github.com/mkhalaf/authvault/internal/random"
)

// IssueOTP generates a one-time numeric code for the account behind the
// email, replacing any outstanding code in one atomic write so at most
// one is ever live. The plaintext code is returned to the caller for
// out-of-band delivery and is never logged.
func (e *Engine) IssueOTP(ctx context.Context, email string) (string, error) {
	if e == nil || e.store == nil {
		return "", ErrEngineNotReady
	}
	if err := e.admit(ctx, ScopeOTP); err != nil {
		return "", err
	}

	acct, err := e.store.AccountByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return "", ErrAccountNotFound
		}
		return "", e.internalError("otp account lookup", err)
	}

	code, err := random.OTP(e.config.OTP.Digits)
	if err != nil {
		return "", e.internalError("otp generate", err)
	}

	otp := OneTimeCode{
		AccountID: acct.ID,
		Code:      code,
		ExpiresAt: e.now().Add(e.config.OTP.TTL),
	}
	if err := e.store.UpsertOneTimeCode(ctx, otp); err != nil {
		return "", e.internalError("otp upsert", err)
	}

	e.metrics.Inc(MetricOTPIssued)
	return code, nil
}

// VerifyOTP checks the code against the account's outstanding one-time
// code. A match consumes the code in the same atomic step: a second call
// with the same code fails even before the code's natural expiry.
func (e *Engine) VerifyOTP(ctx context.Context, email, code string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}

	acct, err := e.store.AccountByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return ErrOTPInvalid
		}
		return e.internalError("otp verify lookup", err)
	}

	matched, err := e.store.ConsumeOneTimeCode(ctx, acct.ID, code, e.now())
	if err != nil {
		return e.internalError("otp consume", err)
	}
	if !matched {
		e.metrics.Inc(MetricOTPRejected)
		return ErrOTPInvalid
	}

	e.metrics.Inc(MetricOTPVerified)
	return nil
}

// VerifyAccount consumes the account's one-time code and sets the
// verified flag, completing email verification.
func (e *Engine) VerifyAccount(ctx context.Context, email, code string) error {
	if err := e.VerifyOTP(ctx, email, code); err != nil {
		return err
	}

	acct, err := e.store.AccountByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return e.internalError("verify account lookup", err)
	}
	if acct.Verified {
		return nil
	}
	if err := e.store.MarkVerified(ctx, acct.ID); err != nil {
		return e.internalError("verify account mark", err)
	}
	return nil
}
