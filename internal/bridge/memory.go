package bridge

import (
	"context"
	"sync"
)

// MemoryQueue is an unbounded in-process FIFO.
type MemoryQueue struct {
	mu     sync.Mutex
	data   []Unit
	notify chan struct{}
	done   chan struct{}
	once   sync.Once
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (q *MemoryQueue) Enqueue(_ context.Context, unit Unit) error {
	select {
	case <-q.done:
		return ErrClosed
	default:
	}

	q.mu.Lock()
	q.data = append(q.data, unit)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (Unit, error) {
	for {
		if unit, ok := q.pop(); ok {
			return unit, nil
		}

		select {
		case <-ctx.Done():
			return Unit{}, ctx.Err()
		case <-q.done:
			if unit, ok := q.pop(); ok {
				return unit, nil
			}
			return Unit{}, ErrClosed
		case <-q.notify:
		}
	}
}

func (q *MemoryQueue) pop() (Unit, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.data) == 0 {
		return Unit{}, false
	}
	unit := q.data[0]
	q.data[0] = Unit{}
	q.data = q.data[1:]
	if len(q.data) == 0 {
		q.data = nil
	}
	return unit, true
}

func (q *MemoryQueue) Len(context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.data), nil
}

// Close stops accepting new units. Units already queued can still be
// dequeued.
func (q *MemoryQueue) Close() error {
	q.once.Do(func() { close(q.done) })
	return nil
}

var _ Queue = (*MemoryQueue)(nil)
