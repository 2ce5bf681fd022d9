package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/adapters/repository"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/model"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/pipeline"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/types"
)

// defaultListLimit caps GET /api/v1/jobs without an explicit limit.
const defaultListLimit = 100

// JobsHandler handles analysis job requests.
type JobsHandler struct {
	deps JobService
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(deps JobService) *JobsHandler {
	return &JobsHandler{deps: deps}
}

// HandleSubmit handles POST /api/v1/jobs. New jobs answer 202, repeated
// client job IDs answer 200 with the stored job.
func (h *JobsHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	var req pipeline.SubmitRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		fail(w, err)
		return
	}
	job, duplicate, err := h.deps.SubmitJob(r.Context(), req)
	if err != nil {
		fail(w, err)
		return
	}
	if duplicate {
		writeJSON(w, http.StatusOK, types.JobAck{Status: types.AckDuplicate, Duplicate: true, Job: job})
		return
	}
	w.Header().Set("Location", "/api/v1/jobs/"+job.JobID)
	writeJSON(w, http.StatusAccepted, types.JobAck{Status: types.AckAccepted, Job: job})
}

// HandleList handles GET /api/v1/jobs?sessionId=&stage=&limit=.
func (h *JobsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := repository.Filter{
		SessionID: q.Get("sessionId"),
		Stage:     model.Stage(q.Get("stage")),
		Limit:     defaultListLimit,
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("invalid limit %q", v))
			return
		}
		f.Limit = n
	}
	jobs, err := h.deps.ListJobs(r.Context(), f)
	if err != nil {
		fail(w, err)
		return
	}
	if jobs == nil {
		jobs = []model.PipelineJob{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

// HandleGet handles GET /api/v1/jobs/{id}.
func (h *JobsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	job, err := h.deps.GetJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// HandleCancel handles DELETE /api/v1/jobs/{id}. A job cancelled on the spot
// answers 200; a running job answers 202 with cancelRequested set and is
// cancelled at its next stage boundary.
func (h *JobsHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	job, err := h.deps.CancelJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, err)
		return
	}
	status := http.StatusAccepted
	if job.Stage == model.StageCancelled {
		status = http.StatusOK
	}
	writeJSON(w, status, job)
}

// HandleResume handles POST /api/v1/jobs/{id}/resume.
func (h *JobsHandler) HandleResume(w http.ResponseWriter, r *http.Request) {
	job, err := h.deps.ResumeJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}
