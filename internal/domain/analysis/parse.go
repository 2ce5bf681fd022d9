// Package analysis turns raw engine output into validated AnalysisResults,
// supplies the deterministic fallback, and implements prompt-driven engines.
package analysis

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/model"
)

//go:embed schema.json
var resultSchema string

const schemaURL = "https://mindbreeze.local/schemas/analysis-result.schema.json"

var fencedJSON = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*\\n?(\\{.*?\\})\\s*\\n?```")

// ExtractJSON returns the JSON object embedded in raw: the first fenced
// block when present, otherwise the outermost {...} span.
func ExtractJSON(raw string) (string, bool) {
	if m := fencedJSON.FindStringSubmatch(raw); len(m) >= 2 {
		return m[1], true
	}
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return raw[start : end+1], true
}

// Parser validates engine output against the result schema.
type Parser struct {
	schema *jsonschema.Schema
}

// NewParser compiles the embedded result schema.
func NewParser() (*Parser, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(schemaURL, strings.NewReader(resultSchema)); err != nil {
		return nil, fmt.Errorf("analysis schema load failed: %w", err)
	}
	compiled, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("analysis schema compile failed: %w", err)
	}
	return &Parser{schema: compiled}, nil
}

// MustParser is NewParser for package-level initialization.
func MustParser() *Parser {
	p, err := NewParser()
	if err != nil {
		panic(err)
	}
	return p
}

// Parse extracts, schema-checks and invariant-checks a result. version is
// used when the output carries no analysisVersion.
func (p *Parser) Parse(raw, version string) (model.AnalysisResult, error) {
	body, ok := ExtractJSON(raw)
	if !ok {
		return model.AnalysisResult{}, ErrNoJSON
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return model.AnalysisResult{}, fmt.Errorf("%w: %v", ErrNoJSON, err)
	}
	if lvl, ok := doc["riskLevel"].(string); ok {
		doc["riskLevel"] = strings.ToUpper(strings.TrimSpace(lvl))
	}
	if err := p.schema.Validate(doc); err != nil {
		return model.AnalysisResult{}, fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}

	normalized, err := json.Marshal(doc)
	if err != nil {
		return model.AnalysisResult{}, fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}
	var res model.AnalysisResult
	if err := json.Unmarshal(normalized, &res); err != nil {
		return model.AnalysisResult{}, fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}
	res.RawOutput = raw
	if res.AnalysisVersion == "" {
		res.AnalysisVersion = version
	}
	if err := res.Validate(); err != nil {
		return model.AnalysisResult{}, fmt.Errorf("%w: %v", ErrInvariant, err)
	}
	return res, nil
}
