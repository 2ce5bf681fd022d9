package repository

import (
	"sync"

	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/model"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/pkg/metrics"
)

// hub delivers stored job versions to per-job listeners. Listeners run on
// the writer's goroutine and must not block.
type hub struct {
	mu   sync.RWMutex
	next uint64
	subs map[string]map[uint64]func(model.PipelineJob)
}

func newHub() *hub {
	return &hub{subs: make(map[string]map[uint64]func(model.PipelineJob))}
}

func (h *hub) subscribe(jobID string, fn func(model.PipelineJob)) func() {
	if fn == nil {
		return func() {}
	}
	h.mu.Lock()
	h.next++
	id := h.next
	if h.subs[jobID] == nil {
		h.subs[jobID] = make(map[uint64]func(model.PipelineJob))
	}
	h.subs[jobID][id] = fn
	h.mu.Unlock()
	metrics.AddStoreSubscribers(1)

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[jobID], id)
			if len(h.subs[jobID]) == 0 {
				delete(h.subs, jobID)
			}
			h.mu.Unlock()
			metrics.AddStoreSubscribers(-1)
		})
	}
}

func (h *hub) publish(job model.PipelineJob) {
	h.mu.RLock()
	listeners := make([]func(model.PipelineJob), 0, len(h.subs[job.JobID]))
	for _, fn := range h.subs[job.JobID] {
		listeners = append(listeners, fn)
	}
	h.mu.RUnlock()

	for _, fn := range listeners {
		fn(job.Clone())
	}
}
