package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/perpbot/internal/domain"
)

// DefaultInstrumentTTL bounds how long a cached spec is trusted.
const DefaultInstrumentTTL = 6 * time.Hour

// InstrumentCache implements domain.InstrumentCache with one JSON hash
// field per instrument.
//
// Key schema:
//
//	instrument:{instId} - hash with field "data" containing JSON
type InstrumentCache struct {
	c   *Client
	ttl time.Duration
}

// NewInstrumentCache creates an InstrumentCache. A non-positive ttl uses
// DefaultInstrumentTTL.
func NewInstrumentCache(c *Client, ttl time.Duration) *InstrumentCache {
	if ttl <= 0 {
		ttl = DefaultInstrumentTTL
	}
	return &InstrumentCache{c: c, ttl: ttl}
}

// Set stores inst with the cache TTL.
func (ic *InstrumentCache) Set(ctx context.Context, inst domain.Instrument) error {
	data, err := json.Marshal(inst)
	if err != nil {
		return fmt.Errorf("redis: marshal instrument %s: %w", inst.InstID, err)
	}
	key := ic.c.key("instrument", inst.InstID)

	pipe := ic.c.Underlying().TxPipeline()
	pipe.HSet(ctx, key, "data", data)
	pipe.Expire(ctx, key, ic.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set instrument %s: %w", inst.InstID, err)
	}
	return nil
}

// Get returns the cached spec or domain.ErrNotFound.
func (ic *InstrumentCache) Get(ctx context.Context, instID string) (domain.Instrument, error) {
	data, err := ic.c.Underlying().HGet(ctx, ic.c.key("instrument", instID), "data").Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Instrument{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Instrument{}, fmt.Errorf("redis: get instrument %s: %w", instID, err)
	}

	var inst domain.Instrument
	if err := json.Unmarshal(data, &inst); err != nil {
		return domain.Instrument{}, fmt.Errorf("redis: unmarshal instrument %s: %w", instID, err)
	}
	return inst, nil
}

// Invalidate drops the cached spec.
func (ic *InstrumentCache) Invalidate(ctx context.Context, instID string) error {
	if err := ic.c.Underlying().Del(ctx, ic.c.key("instrument", instID)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate instrument %s: %w", instID, err)
	}
	return nil
}

var _ domain.InstrumentCache = (*InstrumentCache)(nil)
