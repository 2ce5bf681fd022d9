// Package worker drives queued pipeline jobs on a fixed pool of goroutines.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/adapters/mq/queue"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/model"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/pkg/logger"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerMultiplier = 2 // multiplier for runtime.NumCPU()
	metricsUpdateInterval   = 5 * time.Second
	defaultDrainTimeout     = 30 * time.Second
	workerStopTimeout       = 5 * time.Second
)

// Runner drives one job to a terminal or paused state.
type Runner interface {
	Run(ctx context.Context, jobID string) (model.PipelineJob, error)
}

// Queue defines how workers receive tasks.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Task
}

// receiver is implemented by queues that track dequeue metrics.
type receiver interface {
	Received(t queue.Task)
}

// Worker processes tasks until stopped.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown stops the worker after its current task.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker runs jobs off a queue one at a time.
type InMemoryWorker struct {
	queue  Queue
	runner Runner
	name   string
	busy   *atomic.Int64

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, runner Runner, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    q,
		runner:   runner,
		name:     "worker",
		busy:     &atomic.Int64{},
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	tasks := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case task, ok := <-tasks:
			if !ok {
				return
			}
			if r, ok := w.queue.(receiver); ok {
				r.Received(task)
			}
			if err := w.process(ctx, task); err != nil {
				w.logger.Error(ctx, "error running job", logger.String("jobID", task.JobID), logger.Error(err))
			}
		}
	}
}

// Shutdown stops the worker after its current task.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *InMemoryWorker) process(ctx context.Context, task queue.Task) error {
	start := time.Now()
	w.busy.Add(1)
	defer func() {
		w.busy.Add(-1)
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	job, err := w.runner.Run(ctx, task.JobID)
	if err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "run_error")
		return fmt.Errorf("running job %s: %w", task.JobID, err)
	}
	w.logger.Debug(ctx, "job processed",
		logger.String("jobID", job.JobID),
		logger.String("stage", string(job.Stage)),
		logger.Duration("elapsed", time.Since(start)))
	return nil
}

// Pool manages multiple workers sharing a queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	busy    atomic.Int64

	cancelRuns   context.CancelFunc
	drainTimeout time.Duration
	shutdown     chan struct{}
	stopOnce     sync.Once
	updaterDone  chan struct{}

	logger logger.Logger
}

// NewPool creates a pool of workerCount workers. A non-positive count
// scales with the CPU count.
func NewPool(workerCount int, q Queue, runner Runner, opts ...PoolOption) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}

	p := &Pool{
		workers:      make([]*InMemoryWorker, workerCount),
		queue:        q,
		drainTimeout: defaultDrainTimeout,
		shutdown:     make(chan struct{}),
		updaterDone:  make(chan struct{}),
		logger:       logger.Named("worker-pool"),
	}
	for _, opt := range opts {
		opt(p)
	}

	for i := 0; i < workerCount; i++ {
		w := NewInMemoryWorker(q, runner, WithName("worker-"+strconv.Itoa(i)), WithLogger(p.logger))
		w.busy = &p.busy
		p.workers[i] = w
	}

	metrics.UpdateWorkerCount(workerCount)
	metrics.UpdateWorkerActiveCount(0)
	metrics.UpdateWorkerIdleCount(workerCount)
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return len(p.workers)
}

// Busy returns the number of workers currently running a job.
func (p *Pool) Busy() int {
	return int(p.busy.Load())
}

// Start starts all workers. Jobs run under a context derived from ctx that
// Shutdown cancels once the drain timeout passes.
func (p *Pool) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	p.cancelRuns = cancel
	for _, w := range p.workers {
		go w.Run(runCtx)
	}
	go p.startMetricsUpdater(runCtx)
}

func (p *Pool) startMetricsUpdater(ctx context.Context) {
	defer close(p.updaterDone)
	ticker := time.NewTicker(metricsUpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.shutdown:
			return
		case <-ticker.C:
			p.updateMetrics()
		}
	}
}

func (p *Pool) updateMetrics() {
	busy := p.Busy()
	metrics.UpdateWorkerActiveCount(busy)
	metrics.UpdateWorkerIdleCount(len(p.workers) - busy)
}

// Shutdown closes the queue when it supports closing, lets workers finish
// their current job, and cancels jobs still running after the drain
// timeout. Cancelled jobs stay in their last committed stage.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}
	p.stopOnce.Do(func() { close(p.shutdown) })
	for _, w := range p.workers {
		w.shutdownOnce.Do(func() { close(w.shutdown) })
	}

	drainCtx, cancel := context.WithTimeout(ctx, p.drainTimeout)
	defer cancel()

	var timedOut int
	for _, w := range p.workers {
		select {
		case <-w.done:
		case <-drainCtx.Done():
			timedOut++
		}
	}
	if p.cancelRuns != nil {
		p.cancelRuns()
	}
	if timedOut == 0 {
		return nil
	}

	p.logger.Warn(ctx, "cancelling in-flight jobs", logger.Int("workers", timedOut))
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-time.After(workerStopTimeout):
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			return fmt.Errorf("worker %d did not stop", i)
		}
	}
	return nil
}
