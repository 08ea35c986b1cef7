package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisQueue keeps units in a Redis list so that they survive a restart of
// the proxy. Units are pushed on the right and popped from the left.
type RedisQueue struct {
	client      *redis.Client
	key         string
	pollTimeout time.Duration
}

func NewRedisQueue(client *redis.Client, key string, pollTimeout time.Duration) *RedisQueue {
	if pollTimeout <= 0 {
		pollTimeout = 5 * time.Second
	}
	return &RedisQueue{
		client:      client,
		key:         key,
		pollTimeout: pollTimeout,
	}
}

func (q *RedisQueue) Enqueue(ctx context.Context, unit Unit) error {
	data, err := json.Marshal(unit)
	if err != nil {
		return fmt.Errorf("failed to encode unit: %w", err)
	}

	if err := q.client.RPush(ctx, q.key, data).Err(); err != nil {
		return fmt.Errorf("redis RPUSH failed: %w", err)
	}
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context) (Unit, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Unit{}, err
		}

		res, err := q.client.BLPop(ctx, q.pollTimeout, q.key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if errors.Is(err, redis.ErrClosed) {
			return Unit{}, ErrClosed
		}
		if err != nil {
			if ctx.Err() != nil {
				return Unit{}, ctx.Err()
			}
			return Unit{}, fmt.Errorf("redis BLPOP failed: %w", err)
		}

		// BLPOP replies with the key followed by the value.
		if len(res) != 2 {
			return Unit{}, fmt.Errorf("unexpected BLPOP reply of length %d", len(res))
		}

		var unit Unit
		if err := json.Unmarshal([]byte(res[1]), &unit); err != nil {
			return Unit{}, fmt.Errorf("failed to decode unit: %w", err)
		}
		return unit, nil
	}
}

func (q *RedisQueue) Len(ctx context.Context) (int, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis LLEN failed: %w", err)
	}
	return int(n), nil
}

// Close is a no-op; the client is owned by whoever created it.
func (q *RedisQueue) Close() error {
	return nil
}

var _ Queue = (*RedisQueue)(nil)
