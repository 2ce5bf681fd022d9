// Package render turns an AnalysisResult into a sanitized HTML report and a
// canonical JSON payload.
package render

import (
	"bytes"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"text/template"

	"github.com/gowebpki/jcs"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/model"
)

// Format identifies the output produced by Renderer.
const Format = "html+json"

// ErrNoResult is returned when there is nothing to render.
var ErrNoResult = errors.New("no analysis result to render")

//go:embed report.md.tmpl
var reportTemplate string

// Input is everything a report depends on.
type Input struct {
	JobID     string
	SessionID string
	EngineID  string
	Language  string
	Degraded  bool
	Result    *model.AnalysisResult
}

// payload is the structured report body.
type payload struct {
	JobID     string               `json:"jobId"`
	SessionID string               `json:"sessionId"`
	EngineID  string               `json:"engineId"`
	Language  string               `json:"language"`
	Degraded  bool                 `json:"degraded"`
	Result    model.AnalysisResult `json:"result"`
}

// Renderer is safe for concurrent use.
type Renderer struct {
	tmpl   *template.Template
	md     goldmark.Markdown
	policy *bluemonday.Policy
}

// New compiles the report template.
func New() (*Renderer, error) {
	t, err := template.New("report").Funcs(template.FuncMap{
		"percent": func(f float64) float64 { return f * 100 },
	}).Parse(reportTemplate)
	if err != nil {
		return nil, fmt.Errorf("parsing report template: %w", err)
	}
	return &Renderer{
		tmpl:   t,
		md:     goldmark.New(goldmark.WithExtensions(extension.GFM)),
		policy: bluemonday.UGCPolicy(),
	}, nil
}

// Render is a pure function of in.
func (r *Renderer) Render(in Input) (model.RenderedReport, error) {
	if in.Result == nil {
		return model.RenderedReport{}, ErrNoResult
	}

	var md bytes.Buffer
	if err := r.tmpl.Execute(&md, struct {
		Input
		Labels labels
	}{Input: in, Labels: labelsFor(in.Language)}); err != nil {
		return model.RenderedReport{}, fmt.Errorf("executing report template: %w", err)
	}

	var html bytes.Buffer
	if err := r.md.Convert(md.Bytes(), &html); err != nil {
		return model.RenderedReport{}, fmt.Errorf("converting markdown: %w", err)
	}

	body, err := json.Marshal(payload{
		JobID:     in.JobID,
		SessionID: in.SessionID,
		EngineID:  in.EngineID,
		Language:  in.Language,
		Degraded:  in.Degraded,
		Result:    *in.Result,
	})
	if err != nil {
		return model.RenderedReport{}, fmt.Errorf("encoding payload: %w", err)
	}
	canonical, err := jcs.Transform(body)
	if err != nil {
		return model.RenderedReport{}, fmt.Errorf("canonicalizing payload: %w", err)
	}
	sum := sha256.Sum256(canonical)

	return model.RenderedReport{
		Format:   Format,
		HTML:     r.policy.Sanitize(html.String()),
		Payload:  canonical,
		Checksum: hex.EncodeToString(sum[:]),
	}, nil
}
