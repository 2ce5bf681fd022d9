package service

import (
	"context"
	"errors"
	"fmt"

	jobqueue "github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/adapters/mq/queue"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/adapters/repository"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/model"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/pipeline"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/pkg/logger"
)

// resumableStages are the stages a job can be paused in.
var resumableStages = []model.Stage{
	model.StageQueued, model.StageValidating, model.StageReservingCost,
	model.StageExecuting, model.StageRendering, model.StagePersisting,
}

// SubmitJob creates a job and queues it. A repeated client job ID returns
// the existing job with duplicate set. When the queue is full the job stays
// QUEUED in the store and ErrQueueUnavailable is returned; ResumeJob queues
// it later.
func (s *Service) SubmitJob(ctx context.Context, req pipeline.SubmitRequest) (job model.PipelineJob, duplicate bool, err error) {
	if err := s.ready(); err != nil {
		return model.PipelineJob{}, false, err
	}

	if req.JobID != "" && s.deduper.SeenAndRecord(ctx, req.JobID) {
		existing, err := s.orchestrator.Get(ctx, req.JobID)
		if err == nil {
			return existing, true, nil
		}
		if !isNotFound(err) {
			return model.PipelineJob{}, false, err
		}
		// Recorded by a submission that never reached the store.
	}

	job, err = s.orchestrator.Submit(ctx, req)
	if errors.Is(err, pipeline.ErrDuplicateJob) {
		return job, true, nil
	}
	if err != nil {
		if req.JobID != "" {
			s.deduper.Unrecord(ctx, req.JobID)
		}
		return model.PipelineJob{}, false, err
	}

	if err := s.jobQueue.Enqueue(ctx, jobqueue.Task{JobID: job.JobID}); err != nil {
		s.logger.Warn(ctx, "job stored but not queued",
			logger.String("job_id", job.JobID), logger.Error(err))
		return job, false, fmt.Errorf("%w: %w", ErrQueueUnavailable, err)
	}
	return job, false, nil
}

// GetJob returns the stored job.
func (s *Service) GetJob(ctx context.Context, jobID string) (model.PipelineJob, error) {
	if err := s.ready(); err != nil {
		return model.PipelineJob{}, err
	}
	return s.orchestrator.Get(ctx, jobID)
}

// ListJobs returns stored jobs, newest first.
func (s *Service) ListJobs(ctx context.Context, f repository.Filter) ([]model.PipelineJob, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.store.List(ctx, f)
}

// CancelJob requests cooperative cancellation.
func (s *Service) CancelJob(ctx context.Context, jobID string) (model.PipelineJob, error) {
	if err := s.ready(); err != nil {
		return model.PipelineJob{}, err
	}
	return s.orchestrator.Cancel(ctx, jobID)
}

// ResumeJob queues a paused job again. Terminal jobs are returned as is.
func (s *Service) ResumeJob(ctx context.Context, jobID string) (model.PipelineJob, error) {
	if err := s.ready(); err != nil {
		return model.PipelineJob{}, err
	}
	job, err := s.orchestrator.Get(ctx, jobID)
	if err != nil {
		return model.PipelineJob{}, err
	}
	if job.IsTerminal() {
		return job, nil
	}
	if err := s.jobQueue.Enqueue(ctx, jobqueue.Task{JobID: jobID}); err != nil {
		return job, fmt.Errorf("%w: %w", ErrQueueUnavailable, err)
	}
	return job, nil
}

// SubscribeJob delivers every committed state of jobID to fn.
func (s *Service) SubscribeJob(jobID string, fn func(model.PipelineJob)) (func(), error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.store.Subscribe(jobID, fn), nil
}
