package aiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"

	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/analysis"
)

// Offline answers completions locally with a deterministic, schema-valid
// result derived from the prompt. It backs engines when no endpoint is
// configured so the pipeline can run end to end in development.
type Offline struct{}

var _ analysis.Completer = Offline{}

// Complete implements analysis.Completer.
func (Offline) Complete(ctx context.Context, req analysis.CompletionRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(req.UserPrompt))
	sum := h.Sum32()

	score := 40 + float64(sum%5000)/100 // 40.00 .. 89.99
	risk := "LOW"
	switch {
	case score < 55:
		risk = "HIGH"
	case score < 70:
		risk = "MEDIUM"
	}
	body, err := json.Marshal(map[string]any{
		"overallScore":   score,
		"riskLevel":      risk,
		"stressAnalysis": fmt.Sprintf("Offline estimate with overall score %.1f.", score),
		"recommendations": []string{
			"Repeat the measurement with a configured analysis endpoint for a full report.",
		},
		"confidence":      0.5,
		"analysisVersion": "offline-1",
	})
	if err != nil {
		return "", err
	}
	return "```json\n" + string(body) + "\n```", nil
}
