package domain

import (
	"context"
	"time"
)

// InstrumentCache shares instrument specs between processes.
type InstrumentCache interface {
	Set(ctx context.Context, inst Instrument) error
	Get(ctx context.Context, instID string) (Instrument, error)
	Invalidate(ctx context.Context, instID string) error
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string, limit int, window time.Duration) error
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// SignalBus publishes events for out-of-process readers.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	StreamAppend(ctx context.Context, stream string, payload []byte) error
}
