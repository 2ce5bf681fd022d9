package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/model"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/types"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/pkg/metrics"
)

// heartbeatInterval keeps idle event streams open through proxies.
const heartbeatInterval = 15 * time.Second

// latestJob coalesces store notifications: the subscriber callback runs on
// the committing goroutine and must not block, so only the newest state is
// kept and the stream reads it on signal.
type latestJob struct {
	mu     sync.Mutex
	job    model.PipelineJob
	dirty  bool
	known  bool
	notify chan struct{}
}

func newLatestJob() *latestJob {
	return &latestJob{notify: make(chan struct{}, 1)}
}

func (l *latestJob) offer(j model.PipelineJob) {
	l.mu.Lock()
	stale := l.known && (l.job.IsTerminal() || j.UpdatedAt.Before(l.job.UpdatedAt))
	if !stale || j.IsTerminal() {
		l.job, l.dirty, l.known = j, true, true
	}
	l.mu.Unlock()
	select {
	case l.notify <- struct{}{}:
	default:
	}
}

func (l *latestJob) take() (model.PipelineJob, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	j, ok := l.job, l.dirty
	l.dirty = false
	return j, ok
}

// HandleEvents handles GET /api/v1/jobs/{id}/events as a server-sent event
// stream. The current state is sent first; the stream ends after a terminal
// state or when the client disconnects.
func (h *JobsHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal", ErrStreamingUnsupported)
		return
	}
	ctx := r.Context()
	jobID := chi.URLParam(r, "id")

	latest := newLatestJob()
	unsubscribe, err := h.deps.SubscribeJob(jobID, latest.offer)
	if err != nil {
		fail(w, err)
		return
	}
	defer unsubscribe()

	job, err := h.deps.GetJob(ctx, jobID)
	if err != nil {
		fail(w, err)
		return
	}
	latest.offer(job)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	metrics.RecordHTTPRequest("job_events", r.Method, "200")

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	var lastSent *types.JobEvent
	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			_, _ = fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case <-latest.notify:
			j, ok := latest.take()
			if !ok {
				continue
			}
			ev := types.NewJobEvent(j)
			if lastSent != nil && *lastSent == ev {
				continue
			}
			if err := writeEvent(w, "job", ev); err != nil {
				return
			}
			flusher.Flush()
			lastSent = &ev
			if ev.Terminal {
				return
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
	return err
}
