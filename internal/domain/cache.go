package domain

import (
	"context"
	"time"
)

// RateLimiter provides distributed rate limiting, used to throttle outbound
// venue calls per-venue across orchestrator replicas.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// LockManager provides distributed locking, used so only one rule-refresh
// worker across replicas claims a given market at a time.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}
