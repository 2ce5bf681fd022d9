package model

import "time"

// Stage is a PipelineJob lifecycle stage.
type Stage string

// Pipeline stages in execution order.
const (
	StageQueued        Stage = "QUEUED"
	StageValidating    Stage = "VALIDATING"
	StageReservingCost Stage = "RESERVING_COST"
	StageExecuting     Stage = "EXECUTING"
	StageRendering     Stage = "RENDERING"
	StagePersisting    Stage = "PERSISTING"
	StageCompleted     Stage = "COMPLETED"
	StageFailed        Stage = "FAILED"
	StageCancelled     Stage = "CANCELLED"
)

// Progress anchors per stage. EXECUTING spans ProgressExecStart..ProgressExecEnd.
const (
	ProgressExecStart = 30.0
	ProgressExecEnd   = 80.0
)

var stageProgress = map[Stage]float64{
	StageQueued:        0,
	StageValidating:    10,
	StageReservingCost: 20,
	StageExecuting:     ProgressExecStart,
	StageRendering:     85,
	StagePersisting:    95,
	StageCompleted:     100,
}

// Stages lists the forward path.
var Stages = []Stage{
	StageQueued, StageValidating, StageReservingCost, StageExecuting,
	StageRendering, StagePersisting, StageCompleted,
}

// IsTerminal reports whether no further transitions are possible.
func (s Stage) IsTerminal() bool {
	return s == StageCompleted || s == StageFailed || s == StageCancelled
}

// Cancellable reports whether a cancel request is still honoured.
func (s Stage) Cancellable() bool {
	switch s {
	case StageQueued, StageValidating, StageReservingCost, StageExecuting, StageRendering:
		return true
	}
	return false
}

// Progress returns the anchor progress for s and whether s has one.
func (s Stage) Progress() (float64, bool) {
	p, ok := stageProgress[s]
	return p, ok
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	switch s {
	case StageFailed, StageCancelled:
		return true
	}
	_, ok := stageProgress[s]
	return ok
}

// ErrorKind classifies a terminal failure.
type ErrorKind string

// Error kinds.
const (
	ErrorKindNone               ErrorKind = ""
	ErrorKindPrecondition       ErrorKind = "PRECONDITION"
	ErrorKindDataQuality        ErrorKind = "DATA_QUALITY"
	ErrorKindInsufficientCredit ErrorKind = "INSUFFICIENT_CREDIT"
	ErrorKindExecution          ErrorKind = "EXECUTION"
	ErrorKindValidation         ErrorKind = "VALIDATION"
	ErrorKindInternal           ErrorKind = "INTERNAL"
)

// PipelineJob is one end-to-end analysis request.
type PipelineJob struct {
	JobID           string              `json:"jobId"`
	SessionID       string              `json:"sessionId"`
	EngineID        string              `json:"engineId"`
	AccountID       string              `json:"accountId"`
	Stage           Stage               `json:"stage"`
	ProgressPct     float64             `json:"progressPct"`
	CostReserved    int                 `json:"costReserved"`
	CostActual      int                 `json:"costActual"`
	ReservationID   string              `json:"reservationId,omitempty"`
	CreatedAt       time.Time           `json:"createdAt"`
	UpdatedAt       time.Time           `json:"updatedAt"`
	StageTimestamps map[Stage]time.Time `json:"stageTimestamps"`
	Attempts        int                 `json:"attempts"`
	Degraded        bool                `json:"degraded"`
	Warnings        []string            `json:"warnings,omitempty"`
	ErrorKind       ErrorKind           `json:"errorKind,omitempty"`
	ErrorMessage    string              `json:"errorMessage,omitempty"`
	Result          *AnalysisResult     `json:"result,omitempty"`
	Report          *RenderedReport     `json:"report,omitempty"`
	CancelRequested bool                `json:"cancelRequested,omitempty"`
}

// NewPipelineJob returns a QUEUED job stamped at now.
func NewPipelineJob(jobID, sessionID, engineID string, now time.Time) PipelineJob {
	now = now.UTC()
	return PipelineJob{
		JobID:           jobID,
		SessionID:       sessionID,
		EngineID:        engineID,
		Stage:           StageQueued,
		CreatedAt:       now,
		UpdatedAt:       now,
		StageTimestamps: map[Stage]time.Time{StageQueued: now},
	}
}

// IsTerminal reports whether the job reached a terminal stage.
func (j *PipelineJob) IsTerminal() bool {
	return j.Stage.IsTerminal()
}

// Enter moves the job to stage s, stamping the transition and raising
// progress to the stage anchor. Progress never decreases.
func (j *PipelineJob) Enter(s Stage, now time.Time) {
	now = now.UTC()
	j.Stage = s
	j.UpdatedAt = now
	if j.StageTimestamps == nil {
		j.StageTimestamps = make(map[Stage]time.Time)
	}
	j.StageTimestamps[s] = now
	if p, ok := s.Progress(); ok {
		j.SetProgress(p)
	}
}

// SetProgress raises the progress percentage; lower values are ignored.
func (j *PipelineJob) SetProgress(p float64) {
	if p > 100 {
		p = 100
	}
	if p > j.ProgressPct {
		j.ProgressPct = p
	}
}

// Fail moves the job to FAILED with the given classification.
func (j *PipelineJob) Fail(kind ErrorKind, msg string, now time.Time) {
	j.ErrorKind = kind
	j.ErrorMessage = msg
	j.Enter(StageFailed, now)
}

// AddWarning appends w unless already present.
func (j *PipelineJob) AddWarning(w string) {
	for _, existing := range j.Warnings {
		if existing == w {
			return
		}
	}
	j.Warnings = append(j.Warnings, w)
}

// Clone returns a deep copy safe to hand to other goroutines.
func (j PipelineJob) Clone() PipelineJob {
	out := j
	if j.StageTimestamps != nil {
		out.StageTimestamps = make(map[Stage]time.Time, len(j.StageTimestamps))
		for k, v := range j.StageTimestamps {
			out.StageTimestamps[k] = v
		}
	}
	if j.Warnings != nil {
		out.Warnings = append([]string(nil), j.Warnings...)
	}
	if j.Result != nil {
		r := j.Result.Clone()
		out.Result = &r
	}
	if j.Report != nil {
		r := *j.Report
		r.Payload = append([]byte(nil), j.Report.Payload...)
		out.Report = &r
	}
	return out
}
