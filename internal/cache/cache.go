// Package cache provides a small generic key/value cache with per-entry TTL,
// backed either by Redis or by process memory.
package cache

import (
	"context"
	"time"
)

// Cache stores values of type V under comparable keys of type K.
// A ttl <= 0 stores the entry without expiry.
type Cache[K comparable, V any] interface {
	Get(ctx context.Context, key K) (V, bool, error)
	Set(ctx context.Context, key K, value V, ttl time.Duration) error
}
