package simulate

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/model"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/pkg/logger"
)

// Outcome classifies how one simulated session ended.
type Outcome string

// Session outcomes.
const (
	OutcomeCompleted   Outcome = "completed"
	OutcomeFailed      Outcome = "failed"
	OutcomeCancelled   Outcome = "cancelled"
	OutcomeGateTimeout Outcome = "gate_timeout"
	OutcomeJobTimeout  Outcome = "job_timeout"
	OutcomeError       Outcome = "error"
)

// File permission constants.
const (
	directoryPermission = 0o750
	filePermission      = 0o600
)

// Result is the record of one simulated session.
type Result struct {
	SessionID    string          `json:"sessionId"`
	JobID        string          `json:"jobId,omitempty"`
	Noisy        bool            `json:"noisy"`
	Outcome      Outcome         `json:"outcome"`
	Stage        model.Stage     `json:"stage,omitempty"`
	ErrorKind    model.ErrorKind `json:"errorKind,omitempty"`
	EngineID     string          `json:"engineId,omitempty"`
	Cost         int             `json:"cost"`
	Degraded     bool            `json:"degraded"`
	Duplicate    bool            `json:"duplicateAcked"`
	Events       int             `json:"events"`
	GateDuration time.Duration   `json:"gateDuration"`
	JobDuration  time.Duration   `json:"jobDuration"`
	Error        string          `json:"error,omitempty"`
}

// Stats summarizes a simulation run.
type Stats struct {
	Sessions          int
	GatesFired        int
	GateTimeouts      int
	JobsSubmitted     int
	DuplicatesAcked   int
	Completed         int
	Failed            int
	Cancelled         int
	JobTimeouts       int
	Errors            int
	Degraded          int
	CreditsSpent      int
	FailuresByKind    map[model.ErrorKind]int
	MeanGateDuration  time.Duration
	MeanJobDuration   time.Duration
	StartTime         time.Time
	EndTime           time.Time
	Duration          time.Duration
	SessionsPerMinute float64
}

// Summarize aggregates per-session results.
func Summarize(results []Result, start, end time.Time) Stats {
	st := Stats{
		Sessions:       len(results),
		FailuresByKind: make(map[model.ErrorKind]int),
		StartTime:      start,
		EndTime:        end,
		Duration:       end.Sub(start),
	}
	var gateTotal, jobTotal time.Duration
	for _, r := range results {
		if r.GateDuration > 0 && r.Outcome != OutcomeGateTimeout {
			st.GatesFired++
			gateTotal += r.GateDuration
		}
		if r.JobID != "" {
			st.JobsSubmitted++
		}
		if r.Duplicate {
			st.DuplicatesAcked++
		}
		if r.Degraded {
			st.Degraded++
		}
		st.CreditsSpent += r.Cost
		switch r.Outcome {
		case OutcomeCompleted:
			st.Completed++
			jobTotal += r.JobDuration
		case OutcomeFailed:
			st.Failed++
			st.FailuresByKind[r.ErrorKind]++
		case OutcomeCancelled:
			st.Cancelled++
		case OutcomeGateTimeout:
			st.GateTimeouts++
		case OutcomeJobTimeout:
			st.JobTimeouts++
		case OutcomeError:
			st.Errors++
		}
	}
	if st.GatesFired > 0 {
		st.MeanGateDuration = gateTotal / time.Duration(st.GatesFired)
	}
	if st.Completed > 0 {
		st.MeanJobDuration = jobTotal / time.Duration(st.Completed)
	}
	if st.Duration > 0 {
		st.SessionsPerMinute = float64(st.Sessions) / st.Duration.Minutes()
	}
	return st
}

// Log writes the final statistics.
func (s Stats) Log(ctx context.Context, log logger.Logger) {
	kinds := make([]string, 0, len(s.FailuresByKind))
	for k := range s.FailuresByKind {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	failures := make([]string, 0, len(kinds))
	for _, k := range kinds {
		failures = append(failures, fmt.Sprintf("%s=%d", k, s.FailuresByKind[model.ErrorKind(k)]))
	}

	log.Info(ctx, "final statistics",
		logger.Int("sessions", s.Sessions),
		logger.Int("gatesFired", s.GatesFired),
		logger.Int("gateTimeouts", s.GateTimeouts),
		logger.Int("jobsSubmitted", s.JobsSubmitted),
		logger.Int("duplicatesAcked", s.DuplicatesAcked),
		logger.Int("completed", s.Completed),
		logger.Int("failed", s.Failed),
		logger.Any("failuresByKind", failures),
		logger.Int("cancelled", s.Cancelled),
		logger.Int("jobTimeouts", s.JobTimeouts),
		logger.Int("errors", s.Errors),
		logger.Int("degraded", s.Degraded),
		logger.Int("creditsSpent", s.CreditsSpent),
		logger.Duration("meanGateDuration", s.MeanGateDuration),
		logger.Duration("meanJobDuration", s.MeanJobDuration),
		logger.Duration("duration", s.Duration),
		logger.Float64("sessionsPerMinute", s.SessionsPerMinute))
}

// saveResults writes the per-session results as a JSON array.
func saveResults(filename string, results []Result) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	if err := os.WriteFile(filename, append(data, '\n'), filePermission); err != nil {
		return fmt.Errorf("failed to write results: %w", err)
	}
	return nil
}
