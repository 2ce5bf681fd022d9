// Package repository persists pipeline jobs and measurement sessions and fans
// job updates out to subscribers.
package repository

import (
	"context"

	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/model"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/pipeline"
)

// Filter narrows List results. Zero fields match everything.
type Filter struct {
	SessionID string
	Stage     model.Stage
	Limit     int
}

// DefaultListLimit caps List when Filter.Limit is zero.
const DefaultListLimit = 100

// Store is the report store used by the orchestrator and the HTTP API.
type Store interface {
	pipeline.ReportStore

	// List returns jobs newest first.
	List(ctx context.Context, f Filter) ([]model.PipelineJob, error)
	// Count returns the number of stored jobs and sessions.
	Count(ctx context.Context) (jobs int, sessions int)
	Close() error
}

func (f Filter) limit() (int, error) {
	switch {
	case f.Limit < 0:
		return 0, ErrInvalidLimit
	case f.Limit == 0:
		return DefaultListLimit, nil
	}
	return f.Limit, nil
}

func (f Filter) match(j *model.PipelineJob) bool {
	if f.SessionID != "" && j.SessionID != f.SessionID {
		return false
	}
	if f.Stage != "" && j.Stage != f.Stage {
		return false
	}
	return true
}
