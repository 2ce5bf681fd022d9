package render

type labels struct {
	Title           string
	Score           string
	Risk            string
	Confidence      string
	Degraded        string
	Stress          string
	Focus           string
	Recommendations string
	Warnings        string
	Engine          string
}

var labelSets = map[string]labels{
	"en": {
		Title:           "Measurement Report",
		Score:           "Overall score",
		Risk:            "Risk level",
		Confidence:      "Confidence",
		Degraded:        "This analysis has low confidence. Consider measuring again.",
		Stress:          "Stress",
		Focus:           "Focus",
		Recommendations: "Recommendations",
		Warnings:        "Notes",
		Engine:          "Engine",
	},
	"ko": {
		Title:           "측정 리포트",
		Score:           "종합 점수",
		Risk:            "위험도",
		Confidence:      "신뢰도",
		Degraded:        "이 분석은 신뢰도가 낮습니다. 다시 측정해 보세요.",
		Stress:          "스트레스",
		Focus:           "집중도",
		Recommendations: "권장 사항",
		Warnings:        "참고",
		Engine:          "분석 엔진",
	},
}

func labelsFor(lang string) labels {
	if l, ok := labelSets[lang]; ok {
		return l
	}
	return labelSets["en"]
}
