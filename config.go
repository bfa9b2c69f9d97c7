package authvault

import (
	"bytes"
	"errors"
	"time"
)

// Config holds the engine tuning parameters. Zero values are filled with
// the documented defaults by New; the signing keys have no default and
// must be provided.
type Config struct {
	Token    TokenConfig
	Session  SessionConfig
	OTP      OTPConfig
	Reset    ResetConfig
	Password PasswordPolicyConfig

	// AllowDegradedVerify controls the failure mode of VerifyAccess when
	// the ephemeral cache cannot answer the revocation lookup. The zero
	// value fails closed, because cache availability is part of the
	// security boundary for logout. Set true to accept tokens on their
	// signature alone during a cache outage. Refresh exchanges always
	// fall through to the durable store and are not affected.
	AllowDegradedVerify bool
}

// TokenConfig configures the token codec. AccessKey and RefreshKey must
// differ so a refresh token can never be presented where an access token
// is expected, independent of the kind claim.
type TokenConfig struct {
	AccessKey  []byte
	RefreshKey []byte
	Issuer     string
}

// SessionConfig sets the token lifetimes.
type SessionConfig struct {
	AccessTTL  time.Duration // default 15m
	RefreshTTL time.Duration // default 168h
}

// OTPConfig sets the one-time code parameters.
type OTPConfig struct {
	TTL    time.Duration // default 300s
	Digits int           // default 6
}

// ResetConfig sets the password-reset secret lifetime.
type ResetConfig struct {
	TTL time.Duration // default 15m
}

// PasswordPolicyConfig sets the strength policy for new passwords.
type PasswordPolicyConfig struct {
	MinLength int // default 8
}

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
	defaultOTPTTL     = 300 * time.Second
	defaultResetTTL   = 15 * time.Minute
	defaultOTPDigits  = 6
	defaultMinLength  = 8
)

func (c *Config) applyDefaults() {
	if c.Session.AccessTTL <= 0 {
		c.Session.AccessTTL = defaultAccessTTL
	}
	if c.Session.RefreshTTL <= 0 {
		c.Session.RefreshTTL = defaultRefreshTTL
	}
	if c.OTP.TTL <= 0 {
		c.OTP.TTL = defaultOTPTTL
	}
	if c.OTP.Digits == 0 {
		c.OTP.Digits = defaultOTPDigits
	}
	if c.Reset.TTL <= 0 {
		c.Reset.TTL = defaultResetTTL
	}
	if c.Password.MinLength == 0 {
		c.Password.MinLength = defaultMinLength
	}
}

// Validate checks the configuration after defaults are applied. A config
// that fails validation is a startup error, not a degraded mode.
func (c Config) Validate() error {
	if len(c.Token.AccessKey) == 0 || len(c.Token.RefreshKey) == 0 {
		return errors.New("both access and refresh signing keys are required")
	}
	if bytes.Equal(c.Token.AccessKey, c.Token.RefreshKey) {
		return errors.New("access and refresh signing keys must differ")
	}
	if c.Session.AccessTTL >= c.Session.RefreshTTL {
		return errors.New("access TTL must be shorter than refresh TTL")
	}
	if c.OTP.Digits < 6 || c.OTP.Digits > 10 {
		return errors.New("otp digits must be between 6 and 10")
	}
	return nil
}
