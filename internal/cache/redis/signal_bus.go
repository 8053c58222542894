package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/perpbot/internal/domain"
)

// streamMaxLen is the approximate cap enforced on every stream via XADD
// MAXLEN ~.
const streamMaxLen int64 = 10_000

// StreamMessage is one entry read back from a stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus implements domain.SignalBus with Pub/Sub for live listeners and
// Streams for durable, ordered delivery of settlements and cycle reports.
type SignalBus struct {
	c *Client
}

// NewSignalBus creates a SignalBus backed by c.
func NewSignalBus(c *Client) *SignalBus {
	return &SignalBus{c: c}
}

// Publish sends payload to a Pub/Sub channel.
func (sb *SignalBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := sb.c.Underlying().Publish(ctx, sb.c.key(channel), payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// StreamAppend appends payload to stream.
func (sb *SignalBus) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	args := &redis.XAddArgs{
		Stream: sb.c.key(stream),
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]any{"payload": payload},
	}
	if err := sb.c.Underlying().XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis: stream append %s: %w", stream, err)
	}
	return nil
}

// StreamRead returns up to count entries after lastID ("0" reads from the
// start). No entries is not an error.
func (sb *SignalBus) StreamRead(ctx context.Context, stream, lastID string, count int) ([]StreamMessage, error) {
	res, err := sb.c.Underlying().XRead(ctx, &redis.XReadArgs{
		Streams: []string{sb.c.key(stream), lastID},
		Count:   int64(count),
		Block:   -1,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis: stream read %s: %w", stream, err)
	}

	var out []StreamMessage
	for _, s := range res {
		for _, msg := range s.Messages {
			switch v := msg.Values["payload"].(type) {
			case string:
				out = append(out, StreamMessage{ID: msg.ID, Payload: []byte(v)})
			case []byte:
				out = append(out, StreamMessage{ID: msg.ID, Payload: v})
			}
		}
	}
	return out, nil
}

var _ domain.SignalBus = (*SignalBus)(nil)
