// Package queue is the bounded hand-off between the session machine and
// summary delivery, so publishing never blocks the poll loop.
package queue

import (
	"context"
	"sync"

	"github.com/okian/squadwatch/internal/domain/model"
	"github.com/okian/squadwatch/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultQueueCapacity = 256
)

// Notice is the payload type flowing through the queue.
type Notice = model.Notice

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a notice to the queue.
	// Returns false if the queue is full or closed.
	Enqueue(ctx context.Context, n Notice) bool

	// Dequeue returns a channel that will receive notices as they become available.
	// The channel will be closed when the queue is closed.
	Dequeue(ctx context.Context) <-chan Notice

	// Len returns the current number of queued notices.
	Len(ctx context.Context) int

	// Close gracefully shuts down the queue.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	notices  chan Notice
	capacity int
	mu       sync.RWMutex
	closed   bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity: defaultQueueCapacity,
	}
	for _, opt := range opts {
		opt(q)
	}
	q.notices = make(chan Notice, q.capacity)
	metrics.UpdateNoticeQueueSize(0)
	return q
}

// Enqueue adds a notice without blocking.
func (q *InMemoryQueue) Enqueue(ctx context.Context, n Notice) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordNoticeDelivery(string(n.Kind), "closed")
		return false
	}

	select {
	case q.notices <- n:
		metrics.UpdateNoticeQueueSize(len(q.notices))
		return true
	case <-ctx.Done():
		metrics.RecordNoticeDelivery(string(n.Kind), "cancelled")
		return false
	default:
		metrics.RecordNoticeDelivery(string(n.Kind), "dropped")
		return false
	}
}

// Dequeue returns a channel that will receive notices as they become available.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Notice {
	out := make(chan Notice)
	go func() {
		defer close(out)
		for n := range q.notices {
			select {
			case out <- n:
				metrics.UpdateNoticeQueueSize(len(q.notices))
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Len returns the current number of queued notices.
func (q *InMemoryQueue) Len(_ context.Context) int {
	size := len(q.notices)
	metrics.UpdateNoticeQueueSize(size)
	return size
}

// Close gracefully shuts down the queue. Queued notices stay readable.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	close(q.notices)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
