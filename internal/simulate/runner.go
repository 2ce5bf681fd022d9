package simulate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/model"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/pipeline"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/types"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/pkg/logger"
)

// Runner drives simulated sessions against one service.
type Runner struct {
	cfg    Config
	client *Client
	gen    *generator
	log    logger.Logger
}

// NewRunner validates cfg and builds a runner.
func NewRunner(cfg Config, log logger.Logger) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Named("simulate")
	}
	return &Runner{
		cfg:    cfg,
		client: NewClient(cfg.BaseURL, cfg.Timeout),
		gen:    newGenerator(cfg.Seed),
		log:    log,
	}, nil
}

// Run simulates cfg.Sessions sessions with cfg.Workers in flight and
// returns the aggregated statistics. Per-session failures are recorded in
// the results; Run itself fails only when the service is unreachable or
// ctx ends.
func (r *Runner) Run(ctx context.Context) (Stats, []Result, error) {
	start := time.Now()
	r.log.Info(ctx, "starting simulation",
		logger.String("baseURL", r.cfg.BaseURL),
		logger.Int("sessions", r.cfg.Sessions),
		logger.Int("workers", r.cfg.Workers),
		logger.Float64("noisyRatio", r.cfg.NoisyRatio),
		logger.Bool("followEvents", r.cfg.FollowEvents))

	if err := r.client.Health(ctx); err != nil {
		return Stats{}, nil, fmt.Errorf("service health check failed: %w", err)
	}

	results := make([]Result, r.cfg.Sessions)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)
	for i := range results {
		noisy := r.gen.chance(r.cfg.NoisyRatio)
		g.Go(func() error {
			results[i] = r.session(gctx, i, noisy)
			if r.cfg.Verbose {
				r.log.Info(gctx, "session finished",
					logger.String("sessionId", results[i].SessionID),
					logger.String("outcome", string(results[i].Outcome)),
					logger.String("stage", string(results[i].Stage)))
			}
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return Summarize(results, start, time.Now()), results, err
	}

	if r.cfg.OutputFile != "" {
		if err := saveResults(r.cfg.OutputFile, results); err != nil {
			r.log.Warn(ctx, "failed to save results", logger.Error(err))
		} else {
			r.log.Info(ctx, "results saved", logger.String("filename", r.cfg.OutputFile))
		}
	}
	if stats, err := r.client.Stats(ctx); err == nil {
		r.log.Info(ctx, "service statistics",
			logger.Int("jobs", stats.Jobs),
			logger.Int("sessions", stats.Sessions),
			logger.Int("activeGates", stats.ActiveGates),
			logger.Int("queueLength", stats.QueueLength))
	}
	return Summarize(results, start, time.Now()), results, nil
}

// session drives one session from gate to terminal job.
func (r *Runner) session(ctx context.Context, index int, noisy bool) Result {
	res := Result{SessionID: "sim-" + uuid.NewString(), Noisy: noisy}
	owner := r.cfg.OwnerUserID
	if owner == "" {
		owner = fmt.Sprintf("sim-user-%d", index)
	}

	gateStart := time.Now()
	status, err := r.client.OpenGate(ctx, types.OpenGateRequest{
		SessionID:      res.SessionID,
		OwnerUserID:    owner,
		OrganizationID: r.cfg.OrganizationID,
	})
	if err != nil {
		return res.fail(fmt.Errorf("opening gate: %w", err))
	}

	status, err = r.feedUntilReady(ctx, res.SessionID, noisy, status)
	res.GateDuration = time.Since(gateStart)
	switch {
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		res.Outcome = OutcomeGateTimeout
		return res
	case err != nil:
		return res.fail(err)
	}

	if err := r.seal(ctx, res.SessionID, status); err != nil {
		return res.fail(fmt.Errorf("sealing: %w", err))
	}

	res.JobID = uuid.NewString()
	req := pipeline.SubmitRequest{JobID: res.JobID, SessionID: res.SessionID, EngineID: r.cfg.EngineID, Budget: r.cfg.Budget}
	ack, err := r.client.SubmitJob(ctx, req)
	if err != nil {
		return res.fail(fmt.Errorf("submitting job: %w", err))
	}
	res.EngineID = ack.Job.EngineID
	if again, err := r.client.SubmitJob(ctx, req); err == nil {
		res.Duplicate = again.Duplicate
	}

	jobStart := time.Now()
	job, events, err := r.await(ctx, res.JobID)
	res.JobDuration = time.Since(jobStart)
	res.Events = events
	switch {
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		res.Outcome = OutcomeJobTimeout
		res.Stage = job.Stage
		return res
	case err != nil:
		return res.fail(fmt.Errorf("awaiting job: %w", err))
	}
	return res.finish(job)
}

// feedUntilReady posts a sample batch every tick until the gate fires or
// cfg.GateTimeout passes.
func (r *Runner) feedUntilReady(ctx context.Context, sessionID string, noisy bool, status types.GateStatus) (types.GateStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.GateTimeout)
	defer cancel()

	ticker := time.NewTicker(r.cfg.TickInterval)
	defer ticker.Stop()
	for !status.Ready {
		st, err := r.client.AddSamples(ctx, sessionID, r.gen.batch(noisy, r.cfg.SamplesPerTick, time.Now().UTC()))
		if err != nil {
			return status, fmt.Errorf("adding samples: %w", err)
		}
		status = st
		if status.Ready {
			break
		}
		select {
		case <-ctx.Done():
			return status, ctx.Err()
		case <-ticker.C:
		}
	}
	return status, nil
}

// seal waits out the recording window, then seals with generated summaries.
func (r *Runner) seal(ctx context.Context, sessionID string, status types.GateStatus) error {
	if status.SealableAt != nil {
		if wait := time.Until(*status.SealableAt); wait > 0 {
			if err := sleep(ctx, wait); err != nil {
				return err
			}
		}
	}
	summaries := r.gen.summaries()
	for {
		_, err := r.client.Seal(ctx, sessionID, summaries)
		if !IsStatus(err, "recording_active") {
			return err
		}
		if err := sleep(ctx, r.cfg.TickInterval); err != nil {
			return err
		}
	}
}

// await follows the job until it is terminal and returns its final state
// with the number of progress events observed.
func (r *Runner) await(ctx context.Context, jobID string) (model.PipelineJob, int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.JobTimeout)
	defer cancel()

	events := 0
	if r.cfg.FollowEvents {
		_, err := r.client.FollowJob(ctx, jobID, func(types.JobEvent) { events++ })
		if err != nil {
			return model.PipelineJob{}, events, err
		}
		job, err := r.client.GetJob(ctx, jobID)
		return job, events, err
	}

	for {
		job, err := r.client.GetJob(ctx, jobID)
		if err != nil {
			return job, events, err
		}
		events++
		if job.IsTerminal() {
			return job, events, nil
		}
		if err := sleep(ctx, r.cfg.TickInterval); err != nil {
			return job, events, err
		}
	}
}

func (res Result) fail(err error) Result {
	res.Outcome = OutcomeError
	res.Error = err.Error()
	return res
}

func (res Result) finish(job model.PipelineJob) Result {
	res.Stage = job.Stage
	res.ErrorKind = job.ErrorKind
	res.EngineID = job.EngineID
	res.Cost = job.CostActual
	res.Degraded = job.Degraded
	switch job.Stage {
	case model.StageCompleted:
		res.Outcome = OutcomeCompleted
	case model.StageCancelled:
		res.Outcome = OutcomeCancelled
	default:
		res.Outcome = OutcomeFailed
		res.Error = job.ErrorMessage
	}
	return res
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
