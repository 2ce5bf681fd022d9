package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/model"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/pipeline"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/pkg/metrics"
)

// MemoryStore is an in-process Store. Jobs are upserted by JobID, so
// repeated commits of one job never create a second record.
type MemoryStore struct {
	mu       sync.RWMutex
	jobs     map[string]model.PipelineJob
	sessions map[string]model.MeasurementSession
	hub      *hub

	metricsUpdateInterval time.Duration

	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewMemoryStore constructs a memory store and starts its metrics updater.
func NewMemoryStore(ctx context.Context, opts ...Option) *MemoryStore {
	s := &MemoryStore{
		jobs:                  make(map[string]model.PipelineJob),
		sessions:              make(map[string]model.MeasurementSession),
		hub:                   newHub(),
		metricsUpdateInterval: 5 * time.Second,
		stopChan:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.startMetricsUpdater(ctx)
	return s
}

// Put implements pipeline.ReportStore.
func (s *MemoryStore) Put(ctx context.Context, job model.PipelineJob) error {
	if job.JobID == "" {
		return ErrEmptyID
	}
	start := time.Now()
	stored := job.Clone()

	s.mu.Lock()
	s.jobs[job.JobID] = stored
	s.mu.Unlock()

	metrics.RecordStoreOperationLatency("put", float64(time.Since(start).Microseconds())/1000)
	s.hub.publish(stored)
	return nil
}

// Get implements pipeline.ReportStore.
func (s *MemoryStore) Get(ctx context.Context, jobID string) (model.PipelineJob, error) {
	s.mu.RLock()
	job, ok := s.jobs[jobID]
	s.mu.RUnlock()
	if !ok {
		return model.PipelineJob{}, fmt.Errorf("%w: %s", pipeline.ErrJobNotFound, jobID)
	}
	return job.Clone(), nil
}

// Subscribe implements pipeline.ReportStore.
func (s *MemoryStore) Subscribe(jobID string, fn func(model.PipelineJob)) func() {
	return s.hub.subscribe(jobID, fn)
}

// PutSession implements pipeline.ReportStore. Re-storing a sealed session
// with identical content is a no-op.
func (s *MemoryStore) PutSession(ctx context.Context, session model.MeasurementSession) error {
	if session.SessionID == "" {
		return ErrEmptyID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sessions[session.SessionID]; ok && existing.IsSealed() {
		if !existing.SameContent(session) {
			return fmt.Errorf("%w: %s", model.ErrSessionSealed, session.SessionID)
		}
		return nil
	}
	s.sessions[session.SessionID] = session.Clone()
	return nil
}

// GetSession implements pipeline.ReportStore.
func (s *MemoryStore) GetSession(ctx context.Context, sessionID string) (model.MeasurementSession, error) {
	s.mu.RLock()
	session, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return model.MeasurementSession{}, fmt.Errorf("%w: %s", pipeline.ErrSessionNotFound, sessionID)
	}
	return session.Clone(), nil
}

// List implements Store.
func (s *MemoryStore) List(ctx context.Context, f Filter) ([]model.PipelineJob, error) {
	limit, err := f.limit()
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]model.PipelineJob, 0, len(s.jobs))
	for _, j := range s.jobs {
		if f.match(&j) {
			out = append(out, j.Clone())
		}
	}
	s.mu.RUnlock()

	sortNewestFirst(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Count implements Store.
func (s *MemoryStore) Count(ctx context.Context) (int, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs), len(s.sessions)
}

// Close stops the background metrics updater.
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	return nil
}

// startMetricsUpdater starts a background goroutine that updates repository metrics.
func (s *MemoryStore) startMetricsUpdater(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.metricsUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				jobs, sessions := s.Count(ctx)
				metrics.UpdateStoredJobs(jobs)
				metrics.UpdateStoredSessions(sessions)
			}
		}
	}()
}

// sortNewestFirst orders by CreatedAt desc, then JobID asc.
func sortNewestFirst(jobs []model.PipelineJob) {
	sort.Slice(jobs, func(i, k int) bool {
		if !jobs[i].CreatedAt.Equal(jobs[k].CreatedAt) {
			return jobs[i].CreatedAt.After(jobs[k].CreatedAt)
		}
		return jobs[i].JobID < jobs[k].JobID
	})
}
