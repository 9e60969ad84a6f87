package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis stores JSON-encoded values under prefix + sha256(JSON(key)).
// Encoding the whole key as JSON keeps distinct keys distinct even when
// free-text fields contain the characters a joined string key would use
// as separators.
type Redis[K comparable, V any] struct {
	rdb    redis.Cmdable
	prefix string
}

// NewRedis returns a cache whose entries live under prefix.
func NewRedis[K comparable, V any](rdb redis.Cmdable, prefix string) *Redis[K, V] {
	return &Redis[K, V]{rdb: rdb, prefix: prefix}
}

func (r *Redis[K, V]) Get(ctx context.Context, key K) (V, bool, error) {
	var zero V

	k, err := r.redisKey(key)
	if err != nil {
		return zero, false, err
	}

	raw, err := r.rdb.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, fmt.Errorf("redis get %s: %w", k, err)
	}

	var v V
	if err := json.Unmarshal(raw, &v); err != nil {
		return zero, false, fmt.Errorf("decode cached %s: %w", k, err)
	}
	return v, true, nil
}

func (r *Redis[K, V]) Set(ctx context.Context, key K, value V, ttl time.Duration) error {
	k, err := r.redisKey(key)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cached %s: %w", k, err)
	}

	if ttl < 0 {
		ttl = 0
	}
	if err := r.rdb.Set(ctx, k, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", k, err)
	}
	return nil
}

func (r *Redis[K, V]) redisKey(key K) (string, error) {
	raw, err := json.Marshal(key)
	if err != nil {
		return "", fmt.Errorf("encode cache key: %w", err)
	}
	sum := sha256.Sum256(raw)
	return r.prefix + hex.EncodeToString(sum[:]), nil
}
