package bridge

import (
	"context"
	"errors"
	"time"

	"github.com/larsks/gnocchi-senml-proxy/internal/senml"
)

// ErrClosed is returned by Dequeue once the queue has been closed and
// drained.
var ErrClosed = errors.New("bridge closed")

// Unit is one sensor's batch on its way from ingest to delivery.
type Unit struct {
	SensorID   string      `json:"sensor_id"`
	Batch      senml.Batch `json:"batch"`
	Topic      string      `json:"topic,omitempty"`
	MessageID  string      `json:"message_id,omitempty"`
	EnqueuedAt time.Time   `json:"enqueued_at"`
}

// Queue is an unbounded FIFO of delivery units. Enqueue never waits for a
// consumer; Dequeue blocks until a unit is available, ctx is done or the
// queue is closed.
type Queue interface {
	Enqueue(ctx context.Context, unit Unit) error
	Dequeue(ctx context.Context) (Unit, error)
	Len(ctx context.Context) (int, error)
	Close() error
}
