package analysis

import "github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/model"

// Fallback result constants.
const (
	FallbackScore      = 50.0
	FallbackConfidence = 0.3
	FallbackVersion    = "fallback-1"
	FallbackWarning    = "analysis output could not be interpreted; conservative default values are shown"
)

var fallbackRecommendations = map[string][]string{
	"en": {
		"Keep a regular sleep schedule and aim for seven to eight hours per night.",
		"Take short breaks with slow, deep breathing during demanding work.",
		"Repeat the measurement in a quiet, seated position for a more reliable analysis.",
	},
	"ko": {
		"규칙적인 수면 습관을 유지하고 하루 7~8시간 수면을 권장합니다.",
		"업무 중 짧은 휴식과 함께 천천히 깊게 호흡해 보세요.",
		"보다 정확한 분석을 위해 조용하고 편안한 자세에서 다시 측정해 주세요.",
	},
}

// Fallback returns the conservative result used when engine output cannot
// be parsed or validated. It depends only on its arguments.
func Fallback(raw, language string) model.AnalysisResult {
	recs, ok := fallbackRecommendations[language]
	if !ok {
		recs = fallbackRecommendations["en"]
	}
	return model.AnalysisResult{
		RawOutput:       raw,
		OverallScore:    FallbackScore,
		RiskLevel:       model.RiskMedium,
		Recommendations: append([]string(nil), recs...),
		Warnings:        []string{FallbackWarning},
		Confidence:      FallbackConfidence,
		AnalysisVersion: FallbackVersion,
	}
}
