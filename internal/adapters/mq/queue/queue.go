// Package queue provides the bounded in-process queue used for completion jobs
// and per-subscription feed delivery.
package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/okian/skillsync/pkg/metrics"
)

const (
	defaultQueueCapacity = 1024
	defaultQueueName     = "default"
)

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue[T any] interface {
	// Enqueue adds an item without blocking. It fails with ErrFull or ErrClosed.
	Enqueue(ctx context.Context, item T) error
	// Dequeue returns a channel that receives items in FIFO order.
	// The channel is closed when the queue is closed and drained, or ctx ends.
	Dequeue(ctx context.Context) <-chan T
	// Len returns the current number of queued items.
	Len() int
	// Close stops accepting items. Items already queued can still be drained.
	Close() error
	// IsClosed reports whether Close was called.
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue[T any] struct {
	items    chan T
	capacity int
	name     string

	mu     sync.RWMutex
	closed bool
}

// Compile-time contract assertion.
var _ Queue[int] = (*InMemoryQueue[int])(nil)

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue[T any](opts ...Option) *InMemoryQueue[T] {
	cfg := config{capacity: defaultQueueCapacity, name: defaultQueueName}
	for _, opt := range opts {
		opt(&cfg)
	}

	q := &InMemoryQueue[T]{
		items:    make(chan T, cfg.capacity),
		capacity: cfg.capacity,
		name:     cfg.name,
	}
	metrics.UpdateQueueCapacity(q.name, q.capacity)
	metrics.UpdateQueueSize(q.name, 0)
	return q
}

// Enqueue implements Queue.
func (q *InMemoryQueue[T]) Enqueue(ctx context.Context, item T) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError(q.name, "closed")
		return fmt.Errorf("%s: %w", q.name, ErrClosed)
	}
	if err := ctx.Err(); err != nil {
		metrics.RecordQueueEnqueueError(q.name, "context_cancelled")
		return err
	}

	select {
	case q.items <- item:
		metrics.UpdateQueueSize(q.name, len(q.items))
		return nil
	default:
		metrics.RecordQueueEnqueueError(q.name, "full")
		return fmt.Errorf("%s: %w", q.name, ErrFull)
	}
}

// Dequeue implements Queue.
func (q *InMemoryQueue[T]) Dequeue(ctx context.Context) <-chan T {
	out := make(chan T)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case item, ok := <-q.items:
				if !ok {
					return
				}
				q.reportSize()
				select {
				case out <- item:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// reportSize leaves a closed queue's gauges deleted.
func (q *InMemoryQueue[T]) reportSize() {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if !q.closed {
		metrics.UpdateQueueSize(q.name, len(q.items))
	}
}

// Len implements Queue.
func (q *InMemoryQueue[T]) Len() int {
	return len(q.items)
}

// Name returns the metrics label of the queue.
func (q *InMemoryQueue[T]) Name() string {
	return q.name
}

// Capacity returns the configured capacity.
func (q *InMemoryQueue[T]) Capacity() int {
	return q.capacity
}

// Close implements Queue. It is idempotent and drops the queue's gauges.
func (q *InMemoryQueue[T]) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	close(q.items)
	q.closed = true
	metrics.DeleteQueue(q.name)
	return nil
}

// IsClosed implements Queue.
func (q *InMemoryQueue[T]) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
