package worker

import (
	"time"

	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/pkg/logger"
)

// Option applies a configuration option to the InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithPoolLogger sets the pool logger.
func WithPoolLogger(l logger.Logger) PoolOption {
	return func(p *Pool) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithDrainTimeout bounds how long Shutdown lets in-flight jobs reach a
// stage boundary before their context is cancelled.
func WithDrainTimeout(d time.Duration) PoolOption {
	return func(p *Pool) {
		if d > 0 {
			p.drainTimeout = d
		}
	}
}
