// Package pipeline drives analysis jobs from a sealed measurement session to a
// persisted report: precondition and data checks, credit reservation, engine
// execution with bounded retries, rendering, persistence and settlement.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/analysis"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/catalog"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/model"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/render"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/pkg/logger"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/pkg/metrics"
)

// errStalled pauses a job in its last committed stage for a later Resume.
var errStalled = errors.New("persistence stalled")

// cancelRefusedWarning is recorded on a job that completed after a
// cancellation arrived too late to be honored.
const cancelRefusedWarning = "cancellation refused: persisting had already begun"

// SubmitRequest describes a new job. EngineID is resolved from the catalog
// when empty: the best affordable recommended engine when Budget is set,
// otherwise the cheapest active engine covering Required (or the session's
// recorded data types).
type SubmitRequest struct {
	JobID     string          `json:"jobId,omitempty"`
	SessionID string          `json:"sessionId"`
	EngineID  string          `json:"engineId,omitempty"`
	Required  model.DataTypes `json:"required"`
	Budget    int             `json:"budget,omitempty"`
}

// control is the per-job cancel flag and run lock.
type control struct {
	mu     sync.Mutex
	cancel atomic.Bool
}

// run is the job-local state of one drive.
type run struct {
	mu      sync.Mutex
	job     model.PipelineJob
	ctl     *control
	loaded  bool
	session model.MeasurementSession
	desc    model.EngineDescriptor
	exec    catalog.Executor
}

// Orchestrator runs PipelineJobs. Jobs are independent; one job is driven by
// one goroutine at a time.
type Orchestrator struct {
	catalog  *catalog.Catalog
	ledger   Ledger
	store    ReportStore
	parser   *analysis.Parser
	renderer Renderer
	log      logger.Logger

	now         func() time.Time
	newID       func() string
	retry       RetryPolicy
	execTimeout time.Duration
	language    string
	depth       string

	controlsMu sync.Mutex
	controls   map[string]*control
	runs       singleflight.Group
}

// New wires an orchestrator to its catalog, ledger and store.
func New(cat *catalog.Catalog, ledger Ledger, store ReportStore, opts ...Option) (*Orchestrator, error) {
	if cat == nil || ledger == nil || store == nil {
		return nil, errors.New("pipeline: catalog, ledger and store are required")
	}
	o := defaultOrchestrator(cat, ledger, store)
	for _, opt := range opts {
		opt(o)
	}
	if o.parser == nil {
		p, err := analysis.NewParser()
		if err != nil {
			return nil, fmt.Errorf("creating parser: %w", err)
		}
		o.parser = p
	}
	if o.renderer == nil {
		r, err := render.New()
		if err != nil {
			return nil, fmt.Errorf("creating renderer: %w", err)
		}
		o.renderer = r
	}
	o.controls = make(map[string]*control)
	return o, nil
}

// Submit creates a QUEUED job. Resubmitting a known JobID returns the stored
// job together with ErrDuplicateJob.
func (o *Orchestrator) Submit(ctx context.Context, req SubmitRequest) (model.PipelineJob, error) {
	if strings.TrimSpace(req.SessionID) == "" {
		return model.PipelineJob{}, fmt.Errorf("%w: sessionId is required", ErrInvalidRequest)
	}
	if req.Budget < 0 {
		return model.PipelineJob{}, fmt.Errorf("%w: budget must not be negative", ErrInvalidRequest)
	}

	jobID := req.JobID
	if jobID == "" {
		jobID = o.newID()
	} else {
		existing, err := o.store.Get(ctx, jobID)
		switch {
		case err == nil:
			metrics.RecordJobDuplicate()
			return existing, ErrDuplicateJob
		case !errors.Is(err, ErrNotFound):
			return model.PipelineJob{}, fmt.Errorf("looking up job %s: %w", jobID, err)
		}
	}

	job := model.NewPipelineJob(jobID, req.SessionID, req.EngineID, o.now())
	session, err := o.store.GetSession(ctx, req.SessionID)
	switch {
	case err == nil:
		job.AccountID = session.AccountID()
	case !errors.Is(err, ErrNotFound):
		return model.PipelineJob{}, fmt.Errorf("looking up session %s: %w", req.SessionID, err)
	}
	if job.EngineID == "" {
		job.EngineID = o.selectEngine(req, session)
	}

	if err := o.store.Put(ctx, job.Clone()); err != nil {
		return model.PipelineJob{}, fmt.Errorf("storing job %s: %w", jobID, err)
	}
	metrics.RecordJobSubmitted()
	o.log.Info(ctx, "job submitted",
		logger.String("job_id", jobID),
		logger.String("session_id", job.SessionID),
		logger.String("engine_id", job.EngineID))
	return job, nil
}

func (o *Orchestrator) selectEngine(req SubmitRequest, session model.MeasurementSession) string {
	required := req.Required
	if !required.Any() {
		required = session.HasData()
	}
	if req.Budget > 0 {
		for _, re := range o.catalog.Rank(required, req.Budget) {
			if re.Recommended && re.Affordable {
				return re.Engine.ID
			}
		}
	}
	if desc, ok := o.catalog.AutoSelect(required); ok {
		return desc.ID
	}
	return ""
}

// Get returns the stored job.
func (o *Orchestrator) Get(ctx context.Context, jobID string) (model.PipelineJob, error) {
	return o.store.Get(ctx, jobID)
}

// Run drives the job from its last committed stage until it is terminal, or
// until persistence stalls or ctx ends. Concurrent calls for one job share a
// single drive. Only lookup errors are returned; pipeline failures are
// recorded on the job.
func (o *Orchestrator) Run(ctx context.Context, jobID string) (model.PipelineJob, error) {
	v, err, _ := o.runs.Do(jobID, func() (interface{}, error) {
		return o.drive(ctx, jobID)
	})
	if err != nil {
		return model.PipelineJob{}, err
	}
	return v.(model.PipelineJob).Clone(), nil
}

// Resume is Run; it is a no-op for terminal jobs.
func (o *Orchestrator) Resume(ctx context.Context, jobID string) (model.PipelineJob, error) {
	return o.Run(ctx, jobID)
}

// Cancel requests cancellation. An idle job is cancelled immediately. A
// running job is returned with CancelRequested set and still in its current
// stage; it is cancelled at its next stage boundary, or completes with a
// refusal warning when it already entered PERSISTING. Jobs stored in
// PERSISTING or a terminal stage are refused with ErrCancelRefused.
func (o *Orchestrator) Cancel(ctx context.Context, jobID string) (model.PipelineJob, error) {
	job, err := o.store.Get(ctx, jobID)
	if err != nil {
		return model.PipelineJob{}, err
	}
	if !job.Stage.Cancellable() {
		return job, fmt.Errorf("%w: job %s is %s", ErrCancelRefused, jobID, job.Stage)
	}

	ctl := o.controlFor(jobID)
	ctl.cancel.Store(true)
	if !ctl.mu.TryLock() {
		job.CancelRequested = true
		o.log.Info(ctx, "cancel requested for running job", logger.String("job_id", jobID))
		return job, nil
	}
	defer ctl.mu.Unlock()

	job, err = o.store.Get(ctx, jobID)
	if err != nil {
		return model.PipelineJob{}, err
	}
	if !job.Stage.Cancellable() {
		o.dropControl(jobID, ctl)
		return job, fmt.Errorf("%w: job %s is %s", ErrCancelRefused, jobID, job.Stage)
	}
	r := &run{job: job, ctl: ctl}
	if err := o.cancelRun(ctx, r); err != nil {
		// The flag stays registered so the next Run cancels again.
		return r.snapshot(), fmt.Errorf("committing cancellation of job %s: %w", jobID, err)
	}
	o.dropControl(jobID, ctl)
	return r.snapshot(), nil
}

func (o *Orchestrator) controlFor(jobID string) *control {
	o.controlsMu.Lock()
	defer o.controlsMu.Unlock()
	ctl, ok := o.controls[jobID]
	if !ok {
		ctl = &control{}
		o.controls[jobID] = ctl
	}
	return ctl
}

func (o *Orchestrator) dropControl(jobID string, ctl *control) {
	o.controlsMu.Lock()
	defer o.controlsMu.Unlock()
	if o.controls[jobID] == ctl {
		delete(o.controls, jobID)
	}
}

func (o *Orchestrator) drive(ctx context.Context, jobID string) (model.PipelineJob, error) {
	ctl := o.controlFor(jobID)
	ctl.mu.Lock()
	defer ctl.mu.Unlock()

	job, err := o.store.Get(ctx, jobID)
	if err != nil {
		return model.PipelineJob{}, err
	}
	if job.IsTerminal() {
		o.dropControl(jobID, ctl)
		return job, nil
	}

	metrics.AddJobsInFlight(1)
	defer metrics.AddJobsInFlight(-1)

	r := &run{job: job, ctl: ctl}
	o.advance(ctx, r)
	if r.job.IsTerminal() {
		o.dropControl(jobID, ctl)
	}
	return r.snapshot(), nil
}

// advance runs stages until the job is terminal or a stage interrupts.
func (o *Orchestrator) advance(ctx context.Context, r *run) {
	for !r.job.IsTerminal() {
		stage := r.job.Stage
		if stage.Cancellable() && (r.ctl.cancel.Load() || r.job.CancelRequested) {
			if err := o.cancelRun(ctx, r); err != nil {
				o.pause(ctx, r, err)
				return
			}
			continue
		}
		if ctx.Err() != nil {
			o.log.Warn(ctx, "job interrupted", logger.String("job_id", r.job.JobID), logger.String("stage", string(stage)))
			return
		}

		var err error
		switch stage {
		case model.StageQueued:
			err = o.checkPreconditions(ctx, r)
		case model.StageValidating:
			err = o.validateData(ctx, r)
		case model.StageReservingCost:
			err = o.reserve(ctx, r)
		case model.StageExecuting:
			err = o.execute(ctx, r)
		case model.StageRendering:
			err = o.renderReport(ctx, r)
		case model.StagePersisting:
			err = o.persist(ctx, r)
		default:
			err = newError(model.ErrorKindInternal, nil, "unknown stage %q", stage)
		}

		var perr *Error
		switch {
		case err == nil:
		case errors.As(err, &perr):
			if ferr := o.fail(ctx, r, perr); ferr != nil {
				o.pause(ctx, r, ferr)
				return
			}
		default:
			o.pause(ctx, r, err)
			return
		}
	}
}

func (o *Orchestrator) pause(ctx context.Context, r *run, err error) {
	o.log.Warn(ctx, "job paused",
		logger.String("job_id", r.job.JobID),
		logger.String("stage", string(r.job.Stage)),
		logger.Error(err))
}

// load resolves the session and engine for a job; it is done lazily so
// resumed jobs pick them up at whatever stage they stopped.
func (o *Orchestrator) load(ctx context.Context, r *run) error {
	if r.loaded {
		return nil
	}
	if r.job.EngineID == "" {
		return newError(model.ErrorKindPrecondition, nil, "no engine selected for the session's data")
	}
	session, err := o.store.GetSession(ctx, r.job.SessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return newError(model.ErrorKindPrecondition, err, "session %s not found", r.job.SessionID)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return newError(model.ErrorKindInternal, err, "loading session %s", r.job.SessionID)
	}
	desc, exec, ok := o.catalog.Get(r.job.EngineID)
	if !ok {
		return newError(model.ErrorKindPrecondition, nil, "engine %s is not registered", r.job.EngineID)
	}
	r.session, r.desc, r.exec, r.loaded = session, desc, exec, true
	return nil
}

func (o *Orchestrator) checkPreconditions(ctx context.Context, r *run) error {
	if err := o.load(ctx, r); err != nil {
		return err
	}
	if !r.session.IsSealed() {
		return newError(model.ErrorKindPrecondition, nil, "session %s is not sealed", r.session.SessionID)
	}
	if !r.desc.Active() {
		return newError(model.ErrorKindPrecondition, nil, "engine %s is %s", r.desc.ID, r.desc.Status)
	}
	return o.transition(ctx, r, model.StageValidating, func(j *model.PipelineJob) {
		if j.AccountID == "" {
			j.AccountID = r.session.AccountID()
		}
	})
}

func (o *Orchestrator) validateData(ctx context.Context, r *run) error {
	if err := o.load(ctx, r); err != nil {
		return err
	}
	if q := r.session.QualitySummary.Overall; q < r.desc.MinQuality {
		return newError(model.ErrorKindDataQuality, nil,
			"session quality %.1f is below the engine minimum %.1f", q, r.desc.MinQuality)
	}
	var missing []string
	for _, name := range r.desc.RequiredMetrics {
		if _, ok := r.session.Metric(name); !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return newError(model.ErrorKindDataQuality, nil, "missing required metrics: %s", strings.Join(missing, ", "))
	}

	report := r.exec.Validate(r.session)
	if !report.IsValid {
		msg := "engine rejected the session"
		if len(report.Errors) > 0 {
			msg = strings.Join(report.Errors, "; ")
		}
		return newError(model.ErrorKindDataQuality, nil, "%s", msg)
	}
	return o.transition(ctx, r, model.StageReservingCost, func(j *model.PipelineJob) {
		for _, w := range report.Warnings {
			j.AddWarning(w)
		}
	})
}

func (o *Orchestrator) reserve(ctx context.Context, r *run) error {
	if err := o.load(ctx, r); err != nil {
		return err
	}
	amount := r.desc.CostPerAnalysis
	id, err := o.ledger.Reserve(ctx, r.job.AccountID, amount)
	switch {
	case errors.Is(err, ErrInsufficientCredit):
		return newError(model.ErrorKindInsufficientCredit, err,
			"account %s cannot cover %d credits", r.job.AccountID, amount)
	case err != nil:
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return newError(model.ErrorKindInternal, err, "reserving credits")
	}
	metrics.RecordCreditsReserved(amount)
	err = o.transition(ctx, r, model.StageExecuting, func(j *model.PipelineJob) {
		j.ReservationID = id
		j.CostReserved = amount
	})
	if err != nil {
		// The stored job has no reservation; a resumed run reserves anew.
		o.releaseReservation(context.WithoutCancel(ctx), r.job.JobID, id, amount)
		return err
	}
	return nil
}

func (o *Orchestrator) execute(ctx context.Context, r *run) error {
	if err := o.load(ctx, r); err != nil {
		return err
	}
	opts := catalog.Options{
		Language: o.language,
		Depth:    o.depth,
		Progress: func(fraction float64) {
			o.reportProgress(ctx, r, fraction)
		},
	}

	var (
		raw     string
		lastErr error
	)
	attempts := o.retry.Attempts()
	for attempt := 1; attempt <= attempts; attempt++ {
		if r.ctl.cancel.Load() {
			return nil
		}
		o.update(ctx, r, func(j *model.PipelineJob) { j.Attempts++ })

		raw, lastErr = o.attempt(ctx, r, opts)
		if lastErr == nil {
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(lastErr, catalog.ErrPermanent) {
			return newError(model.ErrorKindInternal, lastErr, "analysis cannot run")
		}
		o.log.Warn(ctx, "analysis attempt failed",
			logger.String("job_id", r.job.JobID),
			logger.Int("attempt", attempt),
			logger.Int("max_attempts", attempts),
			logger.Error(lastErr))
		if attempt < attempts {
			metrics.RecordExecutionRetry()
			if err := o.retry.Wait(ctx, attempt); err != nil {
				return err
			}
		}
	}
	if lastErr != nil {
		return newError(model.ErrorKindExecution, lastErr, "analysis failed after %d attempts", attempts)
	}

	result, err := o.parser.Parse(raw, r.desc.Version)
	degraded := err != nil
	if degraded {
		result = analysis.Fallback(raw, o.language)
		metrics.RecordDegradedResult()
		o.log.Warn(ctx, "engine output rejected, using fallback result",
			logger.String("job_id", r.job.JobID),
			logger.String("engine_id", r.desc.ID),
			logger.Error(err))
	}
	return o.transition(ctx, r, model.StageRendering, func(j *model.PipelineJob) {
		if degraded {
			j.Degraded = true
			j.AddWarning(fmt.Sprintf("%s: %v", model.ErrorKindValidation, err))
		}
		j.Result = &result
		j.SetProgress(model.ProgressExecEnd)
	})
}

type analysisOutcome struct {
	raw string
	err error
}

// attempt runs one executor call bounded by the execution timeout. The call
// runs on its own goroutine so an executor that ignores ctx is abandoned at
// the deadline; a panicking executor counts as a failed attempt.
func (o *Orchestrator) attempt(ctx context.Context, r *run, opts catalog.Options) (string, error) {
	actx, cancel := context.WithTimeout(ctx, o.execTimeout)
	defer cancel()

	var live atomic.Bool
	live.Store(true)
	defer live.Store(false)
	progress := opts.Progress
	opts.Progress = func(fraction float64) {
		if progress != nil && live.Load() {
			progress(fraction)
		}
	}

	started := time.Now()
	done := make(chan analysisOutcome, 1)
	go func() {
		var out analysisOutcome
		defer func() {
			if p := recover(); p != nil {
				out = analysisOutcome{err: fmt.Errorf("executor panicked: %v", p)}
			}
			done <- out
		}()
		out.raw, out.err = r.exec.Analyze(actx, r.session, opts)
	}()

	var out analysisOutcome
	select {
	case out = <-done:
		if out.err == nil && actx.Err() != nil {
			out.err = actx.Err()
		}
	case <-actx.Done():
		out.err = fmt.Errorf("executor abandoned: %w", actx.Err())
	}
	metrics.RecordAIRequestLatency(float64(time.Since(started).Milliseconds()))
	if out.err != nil {
		metrics.RecordAIRequestError()
	}
	return out.raw, out.err
}

func (o *Orchestrator) reportProgress(ctx context.Context, r *run, fraction float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.job.Stage != model.StageExecuting {
		return
	}
	before := r.job.ProgressPct
	r.job.SetProgress(model.ProgressExecStart + fraction*(model.ProgressExecEnd-model.ProgressExecStart))
	if r.job.ProgressPct == before {
		return
	}
	r.job.UpdatedAt = o.now().UTC()
	_ = o.put(ctx, r.job.Clone())
}

func (o *Orchestrator) renderReport(ctx context.Context, r *run) error {
	if r.job.Result == nil {
		return newError(model.ErrorKindInternal, nil, "no analysis result to render")
	}
	if err := r.job.Result.Validate(); err != nil {
		return newError(model.ErrorKindValidation, err, "analysis result violates its invariants")
	}
	report, err := o.safeRender(render.Input{
		JobID:     r.job.JobID,
		SessionID: r.job.SessionID,
		EngineID:  r.job.EngineID,
		Language:  o.language,
		Degraded:  r.job.Degraded,
		Result:    r.job.Result,
	})
	if err != nil {
		return newError(model.ErrorKindInternal, err, "rendering report")
	}
	return o.transition(ctx, r, model.StagePersisting, func(j *model.PipelineJob) {
		j.Report = &report
	})
}

func (o *Orchestrator) safeRender(in render.Input) (report model.RenderedReport, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("renderer panicked: %v", p)
		}
	}()
	return o.renderer.Render(in)
}

// persist stores the rendered job, settles the reservation and completes
// the job. Any failure leaves the job in PERSISTING; every step is safe to
// repeat on Resume.
func (o *Orchestrator) persist(ctx context.Context, r *run) error {
	current := r.snapshot()
	if err := o.store.Put(ctx, current); err != nil {
		metrics.RecordStoreCommitError()
		o.log.Error(ctx, "persisting job failed", logger.String("job_id", current.JobID), logger.Error(err))
		return fmt.Errorf("%w: %v", errStalled, err)
	}
	if current.ReservationID != "" {
		if err := o.ledger.Debit(ctx, current.ReservationID); err != nil {
			metrics.RecordErrorByComponent("pipeline", "debit")
			o.log.Error(ctx, "debiting reservation failed",
				logger.String("job_id", current.JobID),
				logger.String("reservation_id", current.ReservationID),
				logger.Error(err))
			return fmt.Errorf("%w: %v", errStalled, err)
		}
	}

	done := current.Clone()
	done.CostActual = done.CostReserved
	if r.ctl.cancel.Load() {
		done.CancelRequested = true
		done.AddWarning(cancelRefusedWarning)
	}
	done.Enter(model.StageCompleted, o.now())
	if err := o.store.Put(ctx, done.Clone()); err != nil {
		metrics.RecordStoreCommitError()
		o.log.Error(ctx, "committing completion failed", logger.String("job_id", done.JobID), logger.Error(err))
		return fmt.Errorf("%w: %v", errStalled, err)
	}

	r.mu.Lock()
	r.job = done
	r.mu.Unlock()

	metrics.RecordCreditsDebited(done.CostActual)
	o.recordStageLatency(current, model.StagePersisting, done.UpdatedAt)
	o.catalog.RecordUsage(done.EngineID, 0)
	metrics.RecordJobFinished(string(model.StageCompleted))
	o.log.Info(ctx, "job completed",
		logger.String("job_id", done.JobID),
		logger.String("engine_id", done.EngineID),
		logger.Int("cost", done.CostActual),
		logger.Bool("degraded", done.Degraded))
	return nil
}

// fail records the failure on the job, then releases any reservation. When
// the failure cannot be committed the job keeps its stage and reservation.
func (o *Orchestrator) fail(ctx context.Context, r *run, perr *Error) error {
	ctx = context.WithoutCancel(ctx)
	stage := r.job.Stage
	if err := o.update(ctx, r, func(j *model.PipelineJob) {
		j.Fail(perr.Kind, perr.Detail(), o.now())
	}); err != nil {
		return fmt.Errorf("%w: recording %s failure: %v", errStalled, perr.Kind, err)
	}
	o.release(ctx, r)
	metrics.RecordJobFailure(string(perr.Kind))
	metrics.RecordJobFinished(string(model.StageFailed))
	o.log.Warn(ctx, "job failed",
		logger.String("job_id", r.job.JobID),
		logger.String("stage", string(stage)),
		logger.String("kind", string(perr.Kind)),
		logger.String("message", perr.Message))
	return nil
}

// cancelRun commits CANCELLED, then releases any reservation.
func (o *Orchestrator) cancelRun(ctx context.Context, r *run) error {
	ctx = context.WithoutCancel(ctx)
	if err := o.update(ctx, r, func(j *model.PipelineJob) {
		j.CancelRequested = true
		j.Enter(model.StageCancelled, o.now())
	}); err != nil {
		return fmt.Errorf("%w: recording cancellation: %v", errStalled, err)
	}
	o.release(ctx, r)
	metrics.RecordJobFinished(string(model.StageCancelled))
	o.log.Info(ctx, "job cancelled", logger.String("job_id", r.job.JobID))
	return nil
}

func (o *Orchestrator) release(ctx context.Context, r *run) {
	job := r.snapshot()
	if job.ReservationID == "" {
		return
	}
	o.releaseReservation(ctx, job.JobID, job.ReservationID, job.CostReserved)
}

func (o *Orchestrator) releaseReservation(ctx context.Context, jobID, id string, amount int) {
	if err := o.ledger.Release(ctx, id); err != nil {
		metrics.RecordErrorByComponent("pipeline", "release")
		o.log.Error(ctx, "releasing reservation failed",
			logger.String("job_id", jobID),
			logger.String("reservation_id", id),
			logger.Error(err))
		return
	}
	metrics.RecordCreditsReleased(amount)
}

// transition applies mutate and enters next. The job only moves on once
// the new stage is committed; otherwise it stays in its current stage and
// the returned errStalled pauses the drive.
func (o *Orchestrator) transition(ctx context.Context, r *run, next model.Stage, mutate func(*model.PipelineJob)) error {
	prev := r.snapshot()
	now := o.now()
	if err := o.update(ctx, r, func(j *model.PipelineJob) {
		if mutate != nil {
			mutate(j)
		}
		j.Enter(next, now)
	}); err != nil {
		return fmt.Errorf("%w: entering %s: %v", errStalled, next, err)
	}
	o.recordStageLatency(prev, prev.Stage, now)
	return nil
}

// update mutates the job under its lock and commits the new version. When
// the commit fails the job is rolled back to its last committed state.
func (o *Orchestrator) update(ctx context.Context, r *run, mutate func(*model.PipelineJob)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.job.Clone()
	mutate(&r.job)
	r.job.UpdatedAt = o.now().UTC()
	if err := o.put(ctx, r.job.Clone()); err != nil {
		r.job = prev
		return err
	}
	return nil
}

func (o *Orchestrator) put(ctx context.Context, job model.PipelineJob) error {
	if err := o.store.Put(ctx, job); err != nil {
		metrics.RecordStoreCommitError()
		o.log.Warn(ctx, "committing job state failed",
			logger.String("job_id", job.JobID),
			logger.String("stage", string(job.Stage)),
			logger.Error(err))
		return err
	}
	return nil
}

func (o *Orchestrator) recordStageLatency(job model.PipelineJob, stage model.Stage, now time.Time) {
	if at, ok := job.StageTimestamps[stage]; ok {
		metrics.RecordStageLatency(string(stage), float64(now.Sub(at).Milliseconds()))
	}
}

func (r *run) snapshot() model.PipelineJob {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.job.Clone()
}
