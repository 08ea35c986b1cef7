//go:build integration

package bridge

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	redismodule "github.com/testcontainers/testcontainers-go/modules/redis"
)

func setupRedis(t *testing.T, ctx context.Context) *redis.Client {
	t.Helper()

	container, err := redismodule.Run(ctx, "redis:8.4.0-alpine")
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate redis container: %v", err)
		}
	})

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	opt, err := redis.ParseURL(uri)
	require.NoError(t, err)

	client := redis.NewClient(opt)
	t.Cleanup(func() {
		client.Close()
	})

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	require.NoError(t, client.Ping(pingCtx).Err())

	return client
}

func TestRedisQueue(t *testing.T) {
	ctx := context.Background()
	client := setupRedis(t, ctx)

	q := NewRedisQueue(client, "test:units", 100*time.Millisecond)

	in := unit("a")
	in.Topic = "sensor/a"
	in.EnqueuedAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, q.Enqueue(ctx, in))
	require.NoError(t, q.Enqueue(ctx, unit("b")))

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	out, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	out, err = q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", out.SensorID)

	// Empty list: the poll times out and the caller's deadline wins.
	waitCtx, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
	defer cancel()
	_, err = q.Dequeue(waitCtx)
	assert.Error(t, err)
}
