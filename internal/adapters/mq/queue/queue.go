// Package queue is the bounded hand-off between job submission and the
// worker pool. Tasks carry only a job ID; the job itself lives in the store.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/pkg/metrics"
)

// DefaultCapacity bounds the number of waiting tasks.
const DefaultCapacity = 1024

// Task asks a worker to drive one pipeline job.
type Task struct {
	JobID      string
	EnqueuedAt time.Time
}

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a task, failing with ErrFull or ErrClosed.
	Enqueue(ctx context.Context, t Task) error

	// Dequeue returns the channel workers receive tasks from. It is closed
	// once the queue is closed and drained.
	Dequeue(ctx context.Context) <-chan Task

	// Len returns the number of waiting tasks.
	Len(ctx context.Context) int

	// Close stops accepting tasks.
	Close() error

	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	tasks    chan Task
	capacity int
	mu       sync.RWMutex
	closed   bool
}

// NewInMemoryQueue creates a new in-memory queue.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: DefaultCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.tasks = make(chan Task, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	metrics.UpdateQueueUtilization(0.0)
	return q
}

// Enqueue adds a task without blocking.
func (q *InMemoryQueue) Enqueue(ctx context.Context, t Task) error {
	if t.EnqueuedAt.IsZero() {
		t.EnqueuedAt = time.Now()
	}

	// The read lock keeps Close from closing the channel mid-send.
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "closed")
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "context_cancelled")
		return err
	}

	select {
	case q.tasks <- t:
		metrics.RecordQueueEnqueue()
		q.updateGauges()
		return nil
	default:
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "queue_full")
		return ErrFull
	}
}

// Dequeue returns the shared task channel. Every worker may call it.
func (q *InMemoryQueue) Dequeue(_ context.Context) <-chan Task {
	return q.tasks
}

// Received records that a worker took a task off the channel.
func (q *InMemoryQueue) Received(t Task) {
	metrics.RecordQueueDequeue()
	metrics.RecordQueueProcessingLatency(float64(time.Since(t.EnqueuedAt).Milliseconds()))
	q.updateGauges()
}

// Len returns the number of waiting tasks.
func (q *InMemoryQueue) Len(_ context.Context) int {
	q.updateGauges()
	return len(q.tasks)
}

// Capacity returns the configured bound.
func (q *InMemoryQueue) Capacity() int {
	return q.capacity
}

// Close stops accepting tasks. Waiting tasks can still be drained.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.tasks)
	q.closed = true
	return nil
}

// IsClosed reports whether Close was called.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

func (q *InMemoryQueue) updateGauges() {
	size := len(q.tasks)
	metrics.UpdateQueueSize(size)
	metrics.UpdateQueueUtilization(float64(size) / float64(q.capacity))
}
