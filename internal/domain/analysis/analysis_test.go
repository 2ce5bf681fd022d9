package analysis_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/analysis"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/catalog"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

const validBody = `{"overallScore": 72.5, "riskLevel": "low", "recommendations": ["walk daily"], "confidence": 0.8, "stressAnalysis": "calm"}`

func TestExtractJSON(t *testing.T) {
	Convey("Given raw engine output", t, func() {
		Convey("A fenced json block wins", func() {
			raw := "Here you go:\n```json\n{\"a\": {\"b\": 1}}\n```\ntrailing {junk}"
			body, ok := analysis.ExtractJSON(raw)
			So(ok, ShouldBeTrue)
			So(body, ShouldEqual, `{"a": {"b": 1}}`)
		})

		Convey("Without a fence the outermost span is used", func() {
			body, ok := analysis.ExtractJSON(`prefix {"x": {"y": 2}} suffix`)
			So(ok, ShouldBeTrue)
			So(body, ShouldEqual, `{"x": {"y": 2}}`)
		})

		Convey("Text without braces has no JSON", func() {
			_, ok := analysis.ExtractJSON("I could not analyze this measurement.")
			So(ok, ShouldBeFalse)
			_, ok = analysis.ExtractJSON("} backwards {")
			So(ok, ShouldBeFalse)
		})
	})
}

func TestParser(t *testing.T) {
	Convey("Given a parser", t, func() {
		p, err := analysis.NewParser()
		So(err, ShouldBeNil)

		Convey("A valid fenced result parses and normalizes the risk level", func() {
			raw := "```json\n" + validBody + "\n```"
			res, err := p.Parse(raw, "basic-1.0.0")
			So(err, ShouldBeNil)
			So(res.OverallScore, ShouldEqual, 72.5)
			So(res.RiskLevel, ShouldEqual, model.RiskLow)
			So(res.StressAnalysis, ShouldEqual, "calm")
			So(res.AnalysisVersion, ShouldEqual, "basic-1.0.0")
			So(res.RawOutput, ShouldEqual, raw)
		})

		Convey("Schema violations are reported", func() {
			cases := []string{
				`{"overallScore": 120, "riskLevel": "LOW", "recommendations": ["a"], "confidence": 0.5}`,
				`{"overallScore": 50, "riskLevel": "SEVERE", "recommendations": ["a"], "confidence": 0.5}`,
				`{"overallScore": 50, "riskLevel": "LOW", "recommendations": [], "confidence": 0.5}`,
				`{"overallScore": 50, "riskLevel": "LOW", "recommendations": ["a"], "confidence": 2}`,
				`{"overallScore": "high", "riskLevel": "LOW", "recommendations": ["a"], "confidence": 0.5}`,
			}
			for _, c := range cases {
				_, err := p.Parse(c, "v")
				So(errors.Is(err, analysis.ErrSchemaMismatch), ShouldBeTrue)
			}
		})

		Convey("Output without JSON is rejected", func() {
			_, err := p.Parse("no json here", "v")
			So(errors.Is(err, analysis.ErrNoJSON), ShouldBeTrue)
			_, err = p.Parse("{not json}", "v")
			So(errors.Is(err, analysis.ErrNoJSON), ShouldBeTrue)
		})
	})
}

func TestFallback(t *testing.T) {
	Convey("Given unparsable output", t, func() {
		a := analysis.Fallback("garbage", "ko")
		b := analysis.Fallback("garbage", "ko")

		Convey("Then the fallback is deterministic and valid", func() {
			So(a, ShouldResemble, b)
			So(a.Confidence, ShouldEqual, 0.3)
			So(a.RiskLevel, ShouldEqual, model.RiskMedium)
			So(a.Validate(), ShouldBeNil)
			So(a.RawOutput, ShouldEqual, "garbage")
		})

		Convey("Unknown languages use English", func() {
			en := analysis.Fallback("", "fr")
			So(en.Recommendations[0], ShouldStartWith, "Keep a regular sleep")
		})
	})
}

func session() model.MeasurementSession {
	return model.MeasurementSession{
		SessionID:       "s-1",
		OwnerUserID:     "u-1",
		StartedAt:       time.Date(2025, 3, 4, 9, 30, 0, 0, time.UTC),
		DurationSeconds: 60,
		EEGSummary:      model.Summary{"alphaPower": 0.42},
		PPGSummary:      model.Summary{"heartRate": 68, "stressIndex": 31},
		AccSummary:      model.Summary{"movement": 0.1},
		QualitySummary:  model.QualitySnapshot{EEG: 94, PPG: 93, Motion: 96, Overall: 94.3, SensorContacted: true},
	}
}

func TestPromptEngine(t *testing.T) {
	Convey("Given a prompt engine", t, func() {
		desc := model.EngineDescriptor{
			ID: "basic", Version: "1.0.0", CostPerAnalysis: 1,
			SupportedDataTypes: model.DataTypes{EEG: true, PPG: true},
			Capabilities:       model.Capabilities{MaxDataDurationSec: 30},
			MinQuality:         80,
			RequiredMetrics:    []string{"heartRate", "stressIndex"},
		}
		var got analysis.CompletionRequest
		completer := analysis.CompleterFunc(func(_ context.Context, req analysis.CompletionRequest) (string, error) {
			got = req
			return "```json\n" + validBody + "\n```", nil
		})
		e, err := analysis.NewPromptEngine(desc, completer, analysis.WithModel("test-model"))
		So(err, ShouldBeNil)

		Convey("Validate accepts a good session with warnings", func() {
			rep := e.Validate(session())
			So(rep.IsValid, ShouldBeTrue)
			So(rep.QualityScore, ShouldEqual, 94.3)
			So(rep.Warnings, ShouldHaveLength, 1)
		})

		Convey("Validate rejects low quality and missing metrics", func() {
			s := session()
			s.QualitySummary.Overall = 50
			delete(s.PPGSummary, "stressIndex")
			rep := e.Validate(s)
			So(rep.IsValid, ShouldBeFalse)
			So(rep.Errors, ShouldHaveLength, 2)
		})

		Convey("Analyze renders prompts from session metrics", func() {
			var progress []float64
			out, err := e.Analyze(context.Background(), session(), catalog.Options{
				Language: "ko",
				Depth:    catalog.DepthDetailed,
				Progress: func(f float64) { progress = append(progress, f) },
			})
			So(err, ShouldBeNil)
			So(out, ShouldContainSubstring, "overallScore")
			So(got.Model, ShouldEqual, "test-model")
			So(got.SystemPrompt, ShouldContainSubstring, "Korean")
			So(got.SystemPrompt, ShouldContainSubstring, "detailed")
			So(got.UserPrompt, ShouldContainSubstring, "heartRate: 68.00")
			So(got.UserPrompt, ShouldContainSubstring, "2025-03-04 09:30")
			So(progress, ShouldResemble, []float64{0, 0.2, 1})
		})

		Convey("Completer errors propagate", func() {
			boom := errors.New("unreachable")
			failing, err := analysis.NewPromptEngine(desc, analysis.CompleterFunc(
				func(context.Context, analysis.CompletionRequest) (string, error) { return "", boom }))
			So(err, ShouldBeNil)
			_, err = failing.Analyze(context.Background(), session(), catalog.Options{})
			So(err, ShouldEqual, boom)
		})

		Convey("A template that fails to render is a permanent error", func() {
			broken, err := analysis.NewPrompts("", "{{ .NoSuchField }}")
			So(err, ShouldBeNil)
			calls := 0
			counting := analysis.CompleterFunc(func(context.Context, analysis.CompletionRequest) (string, error) {
				calls++
				return "", nil
			})
			bad, err := analysis.NewPromptEngine(desc, counting, analysis.WithPrompts(broken))
			So(err, ShouldBeNil)

			_, err = bad.Analyze(context.Background(), session(), catalog.Options{})
			So(errors.Is(err, catalog.ErrPermanent), ShouldBeTrue)
			So(errors.Is(err, analysis.ErrTemplate), ShouldBeTrue)
			So(calls, ShouldEqual, 0)
		})
	})

	Convey("A nil completer is rejected", t, func() {
		_, err := analysis.NewPromptEngine(model.EngineDescriptor{}, nil)
		So(err, ShouldEqual, analysis.ErrNilCompleter)
	})
}

func TestCustomPrompts(t *testing.T) {
	Convey("Given custom templates", t, func() {
		p, err := analysis.NewPrompts("", "HR={{ metric \"heartRate\" }} missing={{ metric \"nope\" }}")
		So(err, ShouldBeNil)

		sys, usr, err := p.Render(analysis.PromptData{Session: session(), Language: "en", Depth: "basic"})
		So(err, ShouldBeNil)
		So(sys, ShouldContainSubstring, "English")
		So(usr, ShouldEqual, "HR=68.00 missing=n/a")

		_, err = analysis.NewPrompts("{{ .Broken", "x")
		So(errors.Is(err, analysis.ErrTemplate), ShouldBeTrue)
		So(strings.Contains(err.Error(), "system"), ShouldBeTrue)
	})
}
