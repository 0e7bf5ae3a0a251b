// Package queue provides an in-process coherence event source.
//
// InMemoryQueue satisfies the same receive contract as the NATS source:
// payloads are decoded at the boundary and a malformed payload surfaces as
// an error from Next rather than being dropped on publish. It backs tests
// and local runs without a broker.
package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/vibecoder/internal/domain/model"
	"github.com/okian/vibecoder/pkg/metrics"
)

const defaultQueueCapacity = 1024

// delivery is one buffered item: a decoded event or the reason it was rejected.
type delivery struct {
	event model.CoherenceEvent
	err   error
}

// InMemoryQueue is a bounded channel of coherence events.
type InMemoryQueue struct {
	events   chan delivery
	capacity int
	now      func() time.Time

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity: defaultQueueCapacity,
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(q)
	}

	q.events = make(chan delivery, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)

	return q
}

// Enqueue adds an already decoded event. Returns false if the queue is
// closed or full.
func (q *InMemoryQueue) Enqueue(ctx context.Context, e model.CoherenceEvent) bool {
	return q.push(ctx, delivery{event: e}) == nil
}

// Publish decodes a raw bus payload and buffers the result. A payload that
// fails to decode is still buffered so the consumer observes the rejection.
func (q *InMemoryQueue) Publish(ctx context.Context, id string, payload []byte) error {
	event, err := model.DecodeCoherenceEvent(payload, id, q.now())
	return q.push(ctx, delivery{event: event, err: err})
}

func (q *InMemoryQueue) push(ctx context.Context, d delivery) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError("closed")
		return ErrClosed
	}

	select {
	case q.events <- d:
		metrics.RecordQueueEnqueue()
		metrics.UpdateQueueSize(len(q.events))
		return nil
	case <-ctx.Done():
		metrics.RecordQueueEnqueueError("context_cancelled")
		return ctx.Err()
	default:
		metrics.RecordQueueEnqueueError("full")
		return fmt.Errorf("%w: capacity %d", ErrFull, q.capacity)
	}
}

// Next blocks until an event is available, the queue is closed and drained
// (ErrClosed), or ctx is done.
func (q *InMemoryQueue) Next(ctx context.Context) (model.CoherenceEvent, error) {
	select {
	case d, ok := <-q.events:
		if !ok {
			return model.CoherenceEvent{}, ErrClosed
		}
		metrics.UpdateQueueSize(len(q.events))
		return d.event, d.err
	case <-ctx.Done():
		return model.CoherenceEvent{}, ctx.Err()
	}
}

// Len returns the current number of buffered events.
func (q *InMemoryQueue) Len() int {
	return len(q.events)
}

// Close stops accepting events. Buffered events can still be drained.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.events)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
