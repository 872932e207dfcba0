// Package cache provides the response cache backends: an in-process map for
// single-instance deployments and Redis when several API replicas share a
// cache.
package cache

import (
	"context"
	"time"
)

// Store is a byte-oriented cache with per-entry TTL. A miss is reported as
// (nil, false, nil); err is reserved for backend failures.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}
