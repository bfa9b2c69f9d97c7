// Package rate implements the request gate in front of the sensitive
// flows: a fixed-window counter per scope and identity backed by Redis.
// Counters are abuse mitigation, not an authorization boundary; losing
// them on restart is acceptable and the limiter reports backend failures
// to the caller instead of blocking.
package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrUnavailable wraps Redis failures so callers can fail open.
var ErrUnavailable = errors.New("rate limiter unavailable")

// Config holds the window and per-scope budgets. Scopes without an entry
// in Limits fall back to DefaultLimit.
type Config struct {
	Window       time.Duration
	DefaultLimit int
	Limits       map[string]int
	Prefix       string
}

// Limiter counts attempts per scope+identity in Redis fixed windows.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New returns a Limiter backed by the given Redis client. Defaults:
// 15 minute window, 100 requests, key prefix "rl".
func New(client redis.UniversalClient, cfg Config) *Limiter {
	if cfg.Window <= 0 {
		cfg.Window = 15 * time.Minute
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 100
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "rl"
	}
	return &Limiter{redis: client, config: cfg}
}

// Allow counts one attempt for identity in scope and reports whether it
// is within budget. When the budget is exhausted it returns false with
// the time until the window resets. A non-nil error means the backend
// could not be reached and nothing was counted.
func (l *Limiter) Allow(ctx context.Context, scope, identity string) (bool, time.Duration, error) {
	key := l.key(scope, identity)

	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return false, 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.config.Window).Err(); err != nil {
			return false, 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	if count <= int64(l.limit(scope)) {
		return true, 0, nil
	}

	retry, err := l.redis.PTTL(ctx, key).Result()
	if err != nil || retry <= 0 {
		retry = l.config.Window
	}
	return false, retry, nil
}

// Reset clears the counter for identity in scope, for operator tooling
// that needs to unblock a caller before the window rolls over.
func (l *Limiter) Reset(ctx context.Context, scope, identity string) error {
	if err := l.redis.Del(ctx, l.key(scope, identity)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (l *Limiter) limit(scope string) int {
	if v, ok := l.config.Limits[scope]; ok && v > 0 {
		return v
	}
	return l.config.DefaultLimit
}

func (l *Limiter) key(scope, identity string) string {
	return l.config.Prefix + ":" + scope + ":" + identity
}
