package authvault

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/mkhalaf/authvault/jwt"
	"github.com/mkhalaf/authvault/password"
)

// Engine orchestrates the credential and session lifecycle over the
// injected stores. Construct with New; a configured Engine is immutable
// and safe for concurrent use.
type Engine struct {
	config  Config
	store   DurableStore
	cache   EphemeralCache
	gate    RateGate
	hasher  SecretHasher
	codec   *jwt.Codec
	metrics *Metrics
	logger  *zap.Logger
	clock   Clock

	// dummyHash keeps the login failure path for unknown emails on the
	// same argon2 cost curve as a real password mismatch.
	dummyHash string
}

// Option customizes an Engine at construction.
type Option func(*Engine)

// WithLogger sets the structured logger. Defaults to a nop logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithClock replaces the time source used for every expiry comparison.
func WithClock(clock Clock) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithHasher replaces the default argon2id secret hasher.
func WithHasher(hasher SecretHasher) Option {
	return func(e *Engine) {
		if hasher != nil {
			e.hasher = hasher
		}
	}
}

// WithRateGate installs a gate in front of login, OTP issuance, and reset
// initiation. Without one those flows are not rate limited.
func WithRateGate(gate RateGate) Option {
	return func(e *Engine) {
		e.gate = gate
	}
}

// New builds an Engine over the two stores. cfg is validated after
// defaults are applied; both signing keys are mandatory.
func New(cfg Config, store DurableStore, cache EphemeralCache, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, errors.New("durable store is required")
	}
	if cache == nil {
		return nil, errors.New("ephemeral cache is required")
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		config:  cfg,
		store:   store,
		cache:   cache,
		metrics: &Metrics{},
		logger:  zap.NewNop(),
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.hasher == nil {
		hasher, err := password.NewArgon2(password.DefaultConfig())
		if err != nil {
			return nil, err
		}
		e.hasher = hasher
	}

	codec, err := jwt.New(jwt.Config{
		AccessKey:  cfg.Token.AccessKey,
		RefreshKey: cfg.Token.RefreshKey,
		Issuer:     cfg.Token.Issuer,
		Clock:      func() time.Time { return e.clock() },
	})
	if err != nil {
		return nil, err
	}
	e.codec = codec

	dummy, err := e.hasher.Hash("authvault-dummy-credential")
	if err != nil {
		return nil, err
	}
	e.dummyHash = dummy

	return e, nil
}

// MetricsSnapshot returns the current engine counters.
func (e *Engine) MetricsSnapshot() map[MetricID]uint64 {
	if e == nil {
		return map[MetricID]uint64{}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) now() time.Time {
	return e.clock()
}

// admit applies the rate gate for the scope using the client IP attached
// to ctx as identity. Gate unavailability fails open: abuse mitigation
// must not take authentication down with it.
func (e *Engine) admit(ctx context.Context, scope string) error {
	if e.gate == nil {
		return nil
	}
	ip := clientIPFromContext(ctx)
	if ip == "" {
		return nil
	}

	allowed, retry, err := e.gate.Allow(ctx, scope, ip)
	if err != nil {
		e.metrics.Inc(MetricCacheDegraded)
		e.logger.Warn("rate gate unavailable, admitting request",
			zap.String("scope", scope), zap.Error(err))
		return nil
	}
	if !allowed {
		e.metrics.Inc(MetricRateLimited)
		return &RateLimitError{RetryAfter: retry}
	}
	return nil
}

func (e *Engine) internalError(op string, err error) error {
	e.logger.Error("internal failure", zap.String("op", op), zap.Error(err))
	return ErrInternal
}
