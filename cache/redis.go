// Package cache is the Redis adapter for the engine's ephemeral store. It
// holds revocation markers and a best-effort mirror of the refresh
// session. Every key carries a TTL bounded by the lifetime of the state it
// describes, so nothing here needs manual cleanup and losing the whole
// store is recoverable.
package cache

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrUnavailable wraps Redis failures. Callers decide whether to degrade
// or fail closed; see the engine's revocation handling.
var ErrUnavailable = errors.New("cache unavailable")

const (
	revokedKeyPrefix = "rv"
	sessionKeyPrefix = "rs"
)

// Redis implements the engine's EphemeralCache port.
type Redis struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedis returns a cache adapter using the given client. prefix
// namespaces all keys; it defaults to "av".
func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	if prefix == "" {
		prefix = "av"
	}
	return &Redis{redis: client, prefix: prefix}
}

// Revoke writes a revocation marker for the session id. The ttl must be
// the remaining lifetime of the longest-lived token carrying the id so
// the marker self-expires with its target.
func (c *Redis) Revoke(ctx context.Context, sessionID string, ttl time.Duration) error {
	if ttl <= 0 {
		// Tokens already past expiry need no marker.
		return nil
	}
	if err := c.redis.Set(ctx, c.key(revokedKeyPrefix, sessionID), "1", ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// IsRevoked reports whether a revocation marker exists for the session.
func (c *Redis) IsRevoked(ctx context.Context, sessionID string) (bool, error) {
	n, err := c.redis.Exists(ctx, c.key(revokedKeyPrefix, sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n > 0, nil
}

// MirrorSession caches the account's refresh-token hash with the session's
// remaining lifetime.
func (c *Redis) MirrorSession(ctx context.Context, accountID string, tokenHash [32]byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	encoded := hex.EncodeToString(tokenHash[:])
	if err := c.redis.Set(ctx, c.key(sessionKeyPrefix, accountID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// CachedSession returns the mirrored refresh-token hash for the account.
// The second result is false on a miss. A corrupt entry is dropped and
// reported as a miss.
func (c *Redis) CachedSession(ctx context.Context, accountID string) ([32]byte, bool, error) {
	var hash [32]byte

	encoded, err := c.redis.Get(ctx, c.key(sessionKeyPrefix, accountID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return hash, false, nil
		}
		return hash, false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	raw, err := hex.DecodeString(encoded)
	if err != nil || len(raw) != len(hash) {
		_ = c.redis.Del(ctx, c.key(sessionKeyPrefix, accountID)).Err()
		return hash, false, nil
	}
	copy(hash[:], raw)
	return hash, true, nil
}

// DropSession removes the mirrored session for the account.
func (c *Redis) DropSession(ctx context.Context, accountID string) error {
	if err := c.redis.Del(ctx, c.key(sessionKeyPrefix, accountID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (c *Redis) key(kind, id string) string {
	return c.prefix + ":" + kind + ":" + id
}
