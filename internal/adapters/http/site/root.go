// Package site serves the embedded landing page and rendered reports.
package site

import (
	"context"
	"errors"
	"html/template"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/model"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/pipeline"
)

// Error constants
var (
	ErrNoReport = errors.New("job has no rendered report")
)

// JobLookup reads stored jobs.
type JobLookup interface {
	GetJob(ctx context.Context, jobID string) (model.PipelineJob, error)
}

// Register attaches the landing page and report viewer to r.
func Register(r chi.Router, jobs JobLookup) {
	if r == nil {
		panic("router is nil")
	}
	h := NewRootHandler(jobs)
	r.Get("/", h.HandleRoot)
	r.Get("/reports/{id}", h.HandleReport)
}

// RootHandler handles the landing page and report pages.
type RootHandler struct {
	jobs  JobLookup
	files http.Handler
}

// NewRootHandler creates a new root handler.
func NewRootHandler(jobs JobLookup) *RootHandler {
	return &RootHandler{jobs: jobs, files: http.FileServer(FS())}
}

// HandleRoot handles GET / requests and serves the embedded landing page.
func (h *RootHandler) HandleRoot(w http.ResponseWriter, r *http.Request) {
	h.files.ServeHTTP(w, r)
}

type reportView struct {
	JobID     string
	SessionID string
	EngineID  string
	Degraded  bool
	Checksum  string
	Body      template.HTML
}

// HandleReport handles GET /reports/{id}. The report HTML was sanitized when
// it was rendered, so it is embedded as is.
func (h *RootHandler) HandleReport(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobs.GetJob(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, pipeline.ErrNotFound):
		http.NotFound(w, r)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	case job.Report == nil:
		http.Error(w, ErrNoReport.Error(), http.StatusConflict)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = reportPage.Execute(w, reportView{
		JobID:     job.JobID,
		SessionID: job.SessionID,
		EngineID:  job.EngineID,
		Degraded:  job.Degraded,
		Checksum:  job.Report.Checksum,
		Body:      template.HTML(job.Report.HTML), //nolint:gosec // sanitized by bluemonday at render time
	})
}
