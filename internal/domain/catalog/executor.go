package catalog

import (
	"context"

	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/model"
)

// Analysis depth settings passed to executors.
const (
	DepthBasic         = "basic"
	DepthDetailed      = "detailed"
	DepthComprehensive = "comprehensive"
)

// ValidationReport is an executor's verdict on whether it can analyze a session.
type ValidationReport struct {
	IsValid      bool     `json:"isValid"`
	Errors       []string `json:"errors,omitempty"`
	Warnings     []string `json:"warnings,omitempty"`
	QualityScore float64  `json:"qualityScore"`
}

// Options are passed to every analysis call.
type Options struct {
	Language string
	Depth    string
	// Progress receives sub-progress in [0,1]; may be nil.
	Progress func(fraction float64)
}

// Report forwards sub-progress when a callback is set.
func (o Options) Report(fraction float64) {
	if o.Progress == nil {
		return
	}
	switch {
	case fraction < 0:
		fraction = 0
	case fraction > 1:
		fraction = 1
	}
	o.Progress(fraction)
}

// Executor runs analyses for one engine.
type Executor interface {
	// Validate checks whether the session can be analyzed. It never errors.
	Validate(session model.MeasurementSession) ValidationReport
	// Analyze returns the engine's raw text output. Errors are transport
	// level failures and are retried by the caller, except those wrapping
	// ErrPermanent.
	Analyze(ctx context.Context, session model.MeasurementSession, opts Options) (string, error)
}
