package pipeline

import (
	"time"

	"github.com/google/uuid"

	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/analysis"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/catalog"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/model"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/render"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/pkg/logger"
)

// DefaultExecutionTimeout bounds a single EXECUTING attempt.
const DefaultExecutionTimeout = 120 * time.Second

// Renderer turns an analysis result into a report.
type Renderer interface {
	Render(in render.Input) (model.RenderedReport, error)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the orchestrator logger.
func WithLogger(l logger.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.log = l
		}
	}
}

// WithClock overrides the time source used for stage timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithIDGenerator overrides job ID generation.
func WithIDGenerator(gen func() string) Option {
	return func(o *Orchestrator) {
		if gen != nil {
			o.newID = gen
		}
	}
}

// WithRetryPolicy sets the EXECUTING retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(o *Orchestrator) {
		o.retry = p
	}
}

// WithMaxRetries sets only the retry count of the current policy.
func WithMaxRetries(n int) Option {
	return func(o *Orchestrator) {
		if n >= 0 {
			o.retry.MaxRetries = n
		}
	}
}

// WithExecutionTimeout sets the per-attempt timeout.
func WithExecutionTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.execTimeout = d
		}
	}
}

// WithLanguage sets the report language passed to executors.
func WithLanguage(lang string) Option {
	return func(o *Orchestrator) {
		if lang != "" {
			o.language = lang
		}
	}
}

// WithDepth sets the analysis depth passed to executors.
func WithDepth(depth string) Option {
	return func(o *Orchestrator) {
		if depth != "" {
			o.depth = depth
		}
	}
}

// WithParser overrides the analysis output parser.
func WithParser(p *analysis.Parser) Option {
	return func(o *Orchestrator) {
		if p != nil {
			o.parser = p
		}
	}
}

// WithRenderer overrides the report renderer.
func WithRenderer(r Renderer) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.renderer = r
		}
	}
}

func defaultOrchestrator(cat *catalog.Catalog, ledger Ledger, store ReportStore) *Orchestrator {
	return &Orchestrator{
		catalog:     cat,
		ledger:      ledger,
		store:       store,
		log:         logger.Named("pipeline"),
		now:         time.Now,
		newID:       uuid.NewString,
		retry:       DefaultRetryPolicy(),
		execTimeout: DefaultExecutionTimeout,
		language:    "en",
		depth:       catalog.DepthDetailed,
	}
}
