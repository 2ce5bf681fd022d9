package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestInMemoryQueue_BasicOperations(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}

	if err := q.Enqueue(ctx, Task{JobID: "job-1"}); err != nil {
		t.Fatalf("expected enqueue to succeed, got %v", err)
	}
	if l := q.Len(ctx); l != 1 {
		t.Errorf("expected length 1, got %d", l)
	}

	task := <-q.Dequeue(ctx)
	q.Received(task)
	if task.JobID != "job-1" {
		t.Errorf("expected job-1, got %v", task.JobID)
	}
	if task.EnqueuedAt.IsZero() {
		t.Error("expected enqueue time to be stamped")
	}
	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
}

func TestInMemoryQueue_Capacity(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		if err := q.Enqueue(ctx, Task{JobID: id}); err != nil {
			t.Fatalf("expected enqueue of %s to succeed, got %v", id, err)
		}
	}
	if err := q.Enqueue(ctx, Task{JobID: "c"}); !errors.Is(err, ErrFull) {
		t.Errorf("expected ErrFull, got %v", err)
	}
	if l := q.Len(ctx); l != 2 {
		t.Errorf("expected length 2, got %d", l)
	}
	if q.Capacity() != 2 {
		t.Errorf("expected capacity 2, got %d", q.Capacity())
	}
}

func TestInMemoryQueue_CancelledContext(t *testing.T) {
	q := NewInMemoryQueue()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := q.Enqueue(ctx, Task{JobID: "job-1"}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestInMemoryQueue_ConcurrentAccess(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(100))
	ctx := context.Background()
	const producers, perProducer = 10, 100

	var wg sync.WaitGroup
	for i := 0; i < producers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < perProducer; j++ {
				task := Task{JobID: fmt.Sprintf("job-%d-%d", id, j)}
				for q.Enqueue(ctx, task) != nil {
					time.Sleep(time.Millisecond)
				}
			}
		}(i)
	}

	seen := make(map[string]bool)
	var mu sync.Mutex
	var consumers sync.WaitGroup
	for i := 0; i < 4; i++ {
		consumers.Add(1)
		go func() {
			defer consumers.Done()
			for task := range q.Dequeue(ctx) {
				q.Received(task)
				mu.Lock()
				seen[task.JobID] = true
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	_ = q.Close()
	consumers.Wait()

	if len(seen) != producers*perProducer {
		t.Errorf("expected %d distinct tasks, got %d", producers*perProducer, len(seen))
	}
}

func TestInMemoryQueue_GracefulShutdown(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(10))
	ctx := context.Background()

	for _, id := range []string{"job-1", "job-2"} {
		if err := q.Enqueue(ctx, Task{JobID: id}); err != nil {
			t.Fatalf("expected enqueue to succeed, got %v", err)
		}
	}
	if q.IsClosed() {
		t.Error("expected queue to be open initially")
	}
	if err := q.Close(); err != nil {
		t.Errorf("expected close to succeed, got error: %v", err)
	}
	if !q.IsClosed() {
		t.Error("expected queue to be closed after Close()")
	}
	if err := q.Enqueue(ctx, Task{JobID: "job-3"}); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}

	var drained []string
	timeout := time.After(100 * time.Millisecond)
	ch := q.Dequeue(ctx)
	for {
		select {
		case task, ok := <-ch:
			if !ok {
				if len(drained) != 2 {
					t.Errorf("expected 2 drained tasks, got %v", drained)
				}
				if err := q.Close(); err != nil {
					t.Errorf("expected second close to succeed, got error: %v", err)
				}
				return
			}
			drained = append(drained, task.JobID)
		case <-timeout:
			t.Fatal("expected dequeue channel to be closed within timeout")
		}
	}
}
