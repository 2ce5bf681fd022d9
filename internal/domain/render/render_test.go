package render_test

import (
	"encoding/json"
	"testing"

	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/analysis"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/model"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/render"
	. "github.com/smartystreets/goconvey/convey"
)

func result() *model.AnalysisResult {
	return &model.AnalysisResult{
		OverallScore:    81.4,
		RiskLevel:       model.RiskLow,
		StressAnalysis:  "Stress markers are <b>within</b> range.<script>alert(1)</script>",
		Recommendations: []string{"Take a walk", "Hydrate"},
		Confidence:      0.9,
		AnalysisVersion: "basic-1.0.0",
	}
}

func TestRender(t *testing.T) {
	Convey("Given a renderer", t, func() {
		r, err := render.New()
		So(err, ShouldBeNil)
		in := render.Input{JobID: "j-1", SessionID: "s-1", EngineID: "basic", Language: "en", Result: result()}

		Convey("When rendering a result", func() {
			rep, err := r.Render(in)
			So(err, ShouldBeNil)

			Convey("Then HTML is produced and sanitized", func() {
				So(rep.Format, ShouldEqual, render.Format)
				So(rep.HTML, ShouldContainSubstring, "<h1")
				So(rep.HTML, ShouldContainSubstring, "Measurement Report")
				So(rep.HTML, ShouldContainSubstring, "<li>Take a walk</li>")
				So(rep.HTML, ShouldContainSubstring, "81.4")
				So(rep.HTML, ShouldNotContainSubstring, "<script")
			})

			Convey("And the payload is canonical with a stable checksum", func() {
				var decoded map[string]any
				So(json.Unmarshal(rep.Payload, &decoded), ShouldBeNil)
				So(decoded["engineId"], ShouldEqual, "basic")
				again, err := r.Render(in)
				So(err, ShouldBeNil)
				So(again.Checksum, ShouldEqual, rep.Checksum)
				So(string(again.Payload), ShouldEqual, string(rep.Payload))
				So(rep.Checksum, ShouldHaveLength, 64)
			})
		})

		Convey("When rendering a degraded Korean report", func() {
			fb := analysis.Fallback("oops", "ko")
			rep, err := r.Render(render.Input{JobID: "j-2", Language: "ko", Degraded: true, Result: &fb})
			So(err, ShouldBeNil)

			Convey("Then localized labels and the low-confidence notice appear", func() {
				So(rep.HTML, ShouldContainSubstring, "측정 리포트")
				So(rep.HTML, ShouldContainSubstring, "<blockquote>")
				So(rep.HTML, ShouldContainSubstring, "30%")
			})
		})

		Convey("When there is no result", func() {
			_, err := r.Render(render.Input{JobID: "j-3"})
			So(err, ShouldEqual, render.ErrNoResult)
		})
	})
}
