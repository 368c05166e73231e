package cache

import (
	"context"
	"time"
)

// Cache is the JSON key-value store behind the model-list cache. ttl=0 means
// no backend expiry; callers that need stale-read semantics judge freshness
// themselves from a timestamp inside the stored value.
type Cache interface {
	GetJSON(ctx context.Context, key string, dst any) (hit bool, err error)
	SetJSON(ctx context.Context, key string, val any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}
