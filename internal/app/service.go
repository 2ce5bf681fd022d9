// Package service wires the measurement-to-report pipeline: quality gates,
// sealed sessions, the engine catalog, the orchestrator, the ledger and the
// job queue. It implements the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/adapters/ledger"
	jobqueue "github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/adapters/mq/queue"
	workerpool "github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/adapters/mq/worker"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/adapters/repository"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/config"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/analysis"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/catalog"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/dedupe"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/pipeline"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/quality"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/types"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/pkg/logger"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/pkg/metrics"
)

// recoverBatch bounds how many paused jobs per stage are re-queued on start.
const recoverBatch = 1000

// Service implements the API dependencies for the report pipeline.
type Service struct {
	mu  sync.RWMutex
	cfg config.Config

	// Core components
	store        repository.Store
	ledger       ledger.Ledger
	catalog      *catalog.Catalog
	completer    analysis.Completer
	orchestrator *pipeline.Orchestrator
	deduper      dedupe.Deduper
	jobQueue     *jobqueue.InMemoryQueue
	workerPool   *workerpool.Pool
	gates        *gateRegistry
	profile      *quality.Profile

	ownsStore  bool
	ownsLedger bool

	clock  quality.Clock
	runCtx context.Context
	cancel context.CancelFunc

	started bool
	logger  logger.Logger
}

// New constructs a Service from configuration. Components are built in Start.
func New(cfg *config.Config, opts ...Option) *Service {
	if cfg == nil {
		cfg = config.New()
	}
	s := &Service{
		cfg:    *cfg,
		clock:  quality.RealClock{},
		logger: logger.Named("service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start initializes and starts the service components. Jobs left in a
// non-terminal stage by a previous process are re-queued.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.logger.Info(ctx, "starting report pipeline service...")

	profile, err := quality.ResolveProfile(s.cfg.QualityProfile, s.cfg.QualityExpression)
	if err != nil {
		return fmt.Errorf("resolving quality profile: %w", err)
	}
	s.profile = profile

	if err := s.buildBackends(ctx); err != nil {
		s.closeBackends(ctx)
		return err
	}
	if err := s.buildPipeline(ctx); err != nil {
		s.closeBackends(ctx)
		return err
	}

	s.runCtx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	s.gates = newGateRegistry(s.clock, s.logger.Named("gates"))
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.cfg.DedupeSize))
	s.jobQueue = jobqueue.NewInMemoryQueue(jobqueue.WithCapacity(s.cfg.QueueSize))
	s.workerPool = workerpool.NewPool(s.cfg.WorkerCount, s.jobQueue, s.orchestrator,
		workerpool.WithPoolLogger(s.logger.Named("workers")))
	s.workerPool.Start(s.runCtx)

	s.started = true
	recovered := s.recoverJobs(ctx)
	s.logger.Info(ctx, "report pipeline service started",
		logger.Int("workers", s.workerPool.Size()),
		logger.Int("queueSize", s.cfg.QueueSize),
		logger.Int("engines", s.catalog.Len()),
		logger.String("profile", profile.Name()),
		logger.String("store", s.cfg.StoreDriver),
		logger.String("ledger", s.cfg.LedgerDriver),
		logger.Int("recovered", recovered),
	)
	return nil
}

// Stop gracefully shuts down the service. In-flight jobs get until ctx is
// done to reach a stage boundary; they resume on the next Start.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	s.logger.Info(ctx, "stopping report pipeline service...")

	s.gates.closeAll()
	if err := s.workerPool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker pool shutdown", logger.Error(err))
	}
	s.cancel()
	s.closeBackends(ctx)

	s.started = false
	s.logger.Info(ctx, "report pipeline service stopped")
}

func (s *Service) closeBackends(ctx context.Context) {
	if s.ownsStore && s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Error(ctx, "closing store", logger.Error(err))
		}
		s.store, s.ownsStore = nil, false
	}
	if s.ownsLedger && s.ledger != nil {
		if c, ok := s.ledger.(io.Closer); ok {
			if err := c.Close(); err != nil {
				s.logger.Error(ctx, "closing ledger", logger.Error(err))
			}
		}
		s.ledger, s.ownsLedger = nil, false
	}
}

func (s *Service) recoverJobs(ctx context.Context) int {
	n := 0
	for _, stage := range resumableStages {
		jobs, err := s.store.List(ctx, repository.Filter{Stage: stage, Limit: recoverBatch})
		if err != nil {
			s.logger.Error(ctx, "listing paused jobs", logger.String("stage", string(stage)), logger.Error(err))
			continue
		}
		for _, job := range jobs {
			if err := s.jobQueue.Enqueue(ctx, jobqueue.Task{JobID: job.JobID}); err != nil {
				s.logger.Warn(ctx, "could not re-queue job", logger.String("jobId", job.JobID), logger.Error(err))
				continue
			}
			n++
		}
	}
	return n
}

func (s *Service) ready() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return ErrNotStarted
	}
	return nil
}

// Stats is a point-in-time service summary.
type Stats = types.Stats

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{
		Started:      s.started,
		StoreDriver:  s.cfg.StoreDriver,
		LedgerDriver: s.cfg.LedgerDriver,
	}
	if !s.started {
		return stats
	}
	stats.Workers = s.workerPool.Size()
	stats.BusyWorkers = s.workerPool.Busy()
	stats.QueueLength = s.jobQueue.Len(ctx)
	stats.QueueCapacity = s.jobQueue.Capacity()
	stats.Jobs, stats.Sessions = s.store.Count(ctx)
	stats.ActiveGates = s.gates.len()
	stats.Engines = s.catalog.Len()
	stats.DedupeSize = s.deduper.Size()
	stats.Profile = s.profile.Name()

	metrics.UpdateStoredJobs(stats.Jobs)
	metrics.UpdateStoredSessions(stats.Sessions)
	metrics.UpdateDedupeTrackedKeys(int(stats.DedupeSize))
	return stats
}

func (s *Service) now() time.Time {
	return s.clock.Now().UTC()
}

func isNotFound(err error) bool {
	return errors.Is(err, pipeline.ErrNotFound)
}
