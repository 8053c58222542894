package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/perpbot/internal/domain"
)

// unlockLua deletes the lock only while it still holds the caller's token.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// LockManager implements domain.LockManager with SET NX PX and a
// token-checked Lua release.
type LockManager struct {
	c        *Client
	unlockSc *redis.Script
	maxWait  time.Duration
}

// NewLockManager creates a LockManager. A positive maxWait makes Acquire
// poll a held lock until it frees up or maxWait elapses; zero fails at once.
func NewLockManager(c *Client, maxWait time.Duration) *LockManager {
	return &LockManager{
		c:        c,
		unlockSc: redis.NewScript(unlockLua),
		maxWait:  maxWait,
	}
}

// Acquire obtains the lock for key with ttl and returns its release func,
// which is safe to call more than once. It returns an error wrapping
// domain.ErrLockHeld when the lock stays held.
func (lm *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	lk := lm.c.key("lock", key)
	rdb := lm.c.Underlying()

	try := func() (struct{}, error) {
		ok, err := rdb.SetNX(ctx, lk, token, ttl).Result()
		if err != nil {
			return struct{}{}, backoff.Permanent(fmt.Errorf("redis: acquire lock %s: %w", key, err))
		}
		if !ok {
			return struct{}{}, domain.ErrLockHeld
		}
		return struct{}{}, nil
	}

	var err error
	if lm.maxWait > 0 {
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = 25 * time.Millisecond
		eb.MaxInterval = 500 * time.Millisecond
		_, err = backoff.Retry(ctx, try, backoff.WithBackOff(eb), backoff.WithMaxElapsedTime(lm.maxWait))
	} else {
		_, err = try()
	}
	if err != nil {
		return nil, fmt.Errorf("redis: lock %s: %w", key, err)
	}

	var once sync.Once
	unlock := func() {
		once.Do(func() {
			// The caller's context may already be cancelled.
			uctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = lm.unlockSc.Run(uctx, rdb, []string{lk}, token).Err()
		})
	}
	return unlock, nil
}

var _ domain.LockManager = (*LockManager)(nil)
