package queue

import "errors"

// Sentinel enqueue failures.
var (
	ErrFull   = errors.New("job queue is full")
	ErrClosed = errors.New("job queue is closed")
)
