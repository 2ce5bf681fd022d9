package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// RiskLevel grades the overall analysis outcome.
type RiskLevel string

// Risk levels.
const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// Valid reports whether r is a known risk level.
func (r RiskLevel) Valid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh, RiskCritical:
		return true
	}
	return false
}

// Result validation errors.
var (
	ErrScoreOutOfRange      = errors.New("overall score out of range [0,100]")
	ErrInvalidRiskLevel     = errors.New("invalid risk level")
	ErrNoRecommendations    = errors.New("at least one recommendation is required")
	ErrConfidenceOutOfRange = errors.New("confidence out of range [0,1]")
)

// AnalysisResult is the structured output of an engine.
type AnalysisResult struct {
	RawOutput       string    `json:"rawOutput"`
	OverallScore    float64   `json:"overallScore"`
	RiskLevel       RiskLevel `json:"riskLevel"`
	StressAnalysis  string    `json:"stressAnalysis,omitempty"`
	FocusAnalysis   string    `json:"focusAnalysis,omitempty"`
	Recommendations []string  `json:"recommendations"`
	Warnings        []string  `json:"warnings,omitempty"`
	Confidence      float64   `json:"confidence"`
	AnalysisVersion string    `json:"analysisVersion"`
}

// Validate checks the bounded fields.
func (r *AnalysisResult) Validate() error {
	if math.IsNaN(r.OverallScore) || r.OverallScore < 0 || r.OverallScore > 100 {
		return fmt.Errorf("%w: %v", ErrScoreOutOfRange, r.OverallScore)
	}
	if !r.RiskLevel.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRiskLevel, r.RiskLevel)
	}
	if len(r.Recommendations) == 0 {
		return ErrNoRecommendations
	}
	if math.IsNaN(r.Confidence) || r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("%w: %v", ErrConfidenceOutOfRange, r.Confidence)
	}
	return nil
}

// Clone returns a deep copy.
func (r AnalysisResult) Clone() AnalysisResult {
	out := r
	if r.Recommendations != nil {
		out.Recommendations = append([]string(nil), r.Recommendations...)
	}
	if r.Warnings != nil {
		out.Warnings = append([]string(nil), r.Warnings...)
	}
	return out
}

// RenderedReport is the presentation-ready report.
type RenderedReport struct {
	Format   string          `json:"format"`
	HTML     string          `json:"html"`
	Payload  json.RawMessage `json:"payload"`
	Checksum string          `json:"checksum"`
}
