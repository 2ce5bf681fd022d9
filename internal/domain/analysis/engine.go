package analysis

import (
	"context"
	"fmt"

	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/catalog"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/model"
)

// lowMotionQuality flags sessions with heavy movement.
const lowMotionQuality = 50.0

// CompletionRequest is sent to the text-completion endpoint.
type CompletionRequest struct {
	SystemPrompt string `json:"systemPrompt"`
	UserPrompt   string `json:"userPrompt"`
	Model        string `json:"model,omitempty"`
}

// Completer is the generative AI endpoint.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, req CompletionRequest) (string, error)

// Complete calls f.
func (f CompleterFunc) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	return f(ctx, req)
}

// PromptEngine is a catalog.Executor that renders prompts over session
// metrics and asks a Completer for the analysis.
type PromptEngine struct {
	desc      model.EngineDescriptor
	prompts   *Prompts
	completer Completer
	model     string
}

// EngineOption configures a PromptEngine.
type EngineOption func(*PromptEngine)

// WithModel sets the model name forwarded to the completer.
func WithModel(name string) EngineOption {
	return func(e *PromptEngine) { e.model = name }
}

// WithPrompts overrides the embedded prompt templates.
func WithPrompts(p *Prompts) EngineOption {
	return func(e *PromptEngine) {
		if p != nil {
			e.prompts = p
		}
	}
}

// NewPromptEngine builds an executor for desc.
func NewPromptEngine(desc model.EngineDescriptor, completer Completer, opts ...EngineOption) (*PromptEngine, error) {
	if completer == nil {
		return nil, ErrNilCompleter
	}
	def, err := DefaultPrompts()
	if err != nil {
		return nil, err
	}
	e := &PromptEngine{desc: desc, prompts: def, completer: completer}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

var _ catalog.Executor = (*PromptEngine)(nil)

// Validate checks quality, required metrics, data coverage and duration.
func (e *PromptEngine) Validate(session model.MeasurementSession) catalog.ValidationReport {
	rep := catalog.ValidationReport{QualityScore: session.QualitySummary.Overall}

	if session.QualitySummary.Overall < e.desc.MinQuality {
		rep.Errors = append(rep.Errors, fmt.Sprintf("signal quality %.1f below engine minimum %.1f",
			session.QualitySummary.Overall, e.desc.MinQuality))
	}
	for _, name := range e.desc.RequiredMetrics {
		if _, ok := session.Metric(name); !ok {
			rep.Errors = append(rep.Errors, fmt.Sprintf("missing required metric %q", name))
		}
	}
	if !session.HasData().Intersects(e.desc.SupportedDataTypes) {
		rep.Errors = append(rep.Errors, "session carries no data type supported by the engine")
	}
	if limit := e.desc.Capabilities.MaxDataDurationSec; limit > 0 && session.DurationSeconds > limit {
		rep.Warnings = append(rep.Warnings, fmt.Sprintf("recording of %ds exceeds engine limit of %ds; only the summary is analyzed",
			session.DurationSeconds, limit))
	}
	if session.QualitySummary.Motion < lowMotionQuality {
		rep.Warnings = append(rep.Warnings, "high movement during recording may reduce accuracy")
	}
	rep.IsValid = len(rep.Errors) == 0
	return rep
}

// Analyze renders the prompts and returns the completer's raw text.
func (e *PromptEngine) Analyze(ctx context.Context, session model.MeasurementSession, opts catalog.Options) (string, error) {
	opts.Report(0)
	system, user, err := e.prompts.Render(PromptData{Session: session, Language: opts.Language, Depth: opts.Depth})
	if err != nil {
		return "", fmt.Errorf("%w: %w", catalog.ErrPermanent, err)
	}
	opts.Report(0.2)
	out, err := e.completer.Complete(ctx, CompletionRequest{SystemPrompt: system, UserPrompt: user, Model: e.model})
	if err != nil {
		return "", err
	}
	opts.Report(1)
	return out, nil
}
