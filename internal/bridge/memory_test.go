package bridge

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/larsks/gnocchi-senml-proxy/internal/senml"
)

func unit(id string) Unit {
	b := senml.Batch{}
	b.Add("temp", senml.Measure{Timestamp: senml.EpochTimestamp(1), Value: senml.NumberValue(1)})
	return Unit{SensorID: id, Batch: b}
}

func TestMemoryQueue_FIFO(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, q.Enqueue(ctx, unit(id)))
	}

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	for _, want := range []string{"a", "b", "c"} {
		got, err := q.Dequeue(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, got.SensorID)
	}

	n, _ = q.Len(ctx)
	assert.Zero(t, n)
}

func TestMemoryQueue_DequeueWaitsForEnqueue(t *testing.T) {
	q := NewMemoryQueue()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan Unit, 1)
	go func() {
		u, err := q.Dequeue(ctx)
		if err == nil {
			got <- u
		}
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, q.Enqueue(ctx, unit("late")))

	select {
	case u := <-got:
		assert.Equal(t, "late", u.SensorID)
	case <-ctx.Done():
		t.Fatal("dequeue did not wake up")
	}
}

func TestMemoryQueue_DequeueContextCancelled(t *testing.T) {
	q := NewMemoryQueue()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Dequeue(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMemoryQueue_CloseDrainsThenStops(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, unit("a")))
	require.NoError(t, q.Close())
	require.NoError(t, q.Close())

	assert.ErrorIs(t, q.Enqueue(ctx, unit("b")), ErrClosed)

	u, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", u.SensorID)

	_, err = q.Dequeue(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMemoryQueue_ConcurrentProducersKeepPerProducerOrder(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	const producers, perProducer = 4, 200
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				_ = q.Enqueue(ctx, unit(fmt.Sprintf("%d:%04d", p, i)))
			}
		}(p)
	}
	wg.Wait()

	last := map[byte]string{}
	for i := 0; i < producers*perProducer; i++ {
		u, err := q.Dequeue(ctx)
		require.NoError(t, err)
		p := u.SensorID[0]
		assert.Greater(t, u.SensorID, last[p])
		last[p] = u.SensorID
	}
}

func TestMemoryQueue_PreservesUnit(t *testing.T) {
	in := unit("sensor-1")
	in.Topic = "sensor/x"
	in.MessageID = "abc"
	in.EnqueuedAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	q := NewMemoryQueue()
	require.NoError(t, q.Enqueue(context.Background(), in))
	out, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, in, out)
}
