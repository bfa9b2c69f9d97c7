// Package jwt implements the stateless token codec: HS256-signed claims
// with strict expiry. Access and refresh tokens are signed with distinct
// keys, so a token of one kind structurally fails verification as the
// other independent of its kind claim.
package jwt

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Kind discriminates the two token families.
type Kind string

const (
	// KindAccess is the short-lived credential for a single request window.
	KindAccess Kind = "access"
	// KindRefresh is the long-lived credential used solely to obtain new
	// access tokens.
	KindRefresh Kind = "refresh"
)

var (
	// ErrExpired is returned when the signature is valid but the expiry has
	// passed.
	ErrExpired = errors.New("token expired")
	// ErrBadSignature is returned when the signature does not verify under
	// the key for the expected kind.
	ErrBadSignature = errors.New("token signature invalid")
	// ErrMalformed is returned for tokens that cannot be parsed or carry
	// inconsistent claims.
	ErrMalformed = errors.New("token malformed")
	// ErrWrongKind is returned when the kind claim disagrees with the key
	// that verified the token.
	ErrWrongKind = errors.New("token kind mismatch")
)

// Config configures a Codec. Both keys are required and must differ.
// Clock defaults to time.Now; expiry is compared strictly against it with
// no leeway.
type Config struct {
	AccessKey  []byte
	RefreshKey []byte
	Issuer     string
	Clock      func() time.Time
}

// Claims is the signed payload of both token kinds.
type Claims struct {
	AccountID string `json:"uid"`
	SessionID string `json:"sid"`
	Admin     bool   `json:"adm,omitempty"`
	Kind      Kind   `json:"knd"`
	jwt.RegisteredClaims
}

// Codec signs and verifies access and refresh tokens. Stateless and safe
// for concurrent use.
type Codec struct {
	config Config
}

// New validates cfg and returns a Codec.
func New(cfg Config) (*Codec, error) {
	if len(cfg.AccessKey) == 0 || len(cfg.RefreshKey) == 0 {
		return nil, errors.New("both access and refresh keys are required")
	}
	if bytes.Equal(cfg.AccessKey, cfg.RefreshKey) {
		return nil, errors.New("access and refresh keys must differ")
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Codec{config: cfg}, nil
}

// Issue signs a token of the given kind for the account and session,
// expiring ttl from now.
func (c *Codec) Issue(kind Kind, accountID, sessionID string, admin bool, ttl time.Duration) (string, error) {
	if kind != KindAccess && kind != KindRefresh {
		return "", fmt.Errorf("unknown token kind %q", kind)
	}
	if ttl <= 0 {
		return "", errors.New("ttl must be positive")
	}

	now := c.config.Clock()
	claims := Claims{
		AccountID: accountID,
		SessionID: sessionID,
		Admin:     admin,
		Kind:      kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    c.config.Issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.key(kind))
}

// Verify parses the token and checks its signature under the key for the
// expected kind, its expiry against the configured clock, and its kind
// claim. It returns ErrExpired, ErrBadSignature, ErrWrongKind, or
// ErrMalformed on failure.
func (c *Codec) Verify(tokenStr string, kind Kind) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.config.Clock),
		jwt.WithExpirationRequired(),
	}
	if c.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(c.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return c.key(kind), nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrBadSignature
		default:
			return nil, ErrMalformed
		}
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrMalformed
	}
	if claims.Kind != kind {
		return nil, ErrWrongKind
	}
	if claims.AccountID == "" || claims.SessionID == "" {
		return nil, ErrMalformed
	}

	return claims, nil
}

func (c *Codec) key(kind Kind) []byte {
	if kind == KindRefresh {
		return c.config.RefreshKey
	}
	return c.config.AccessKey
}
