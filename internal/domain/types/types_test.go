package types_test

import (
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/model"
	types "github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/types"
)

func TestParseDataTypes(t *testing.T) {
	Convey("Given query flag values", t, func() {
		Convey("When all are empty", func() {
			dt, err := types.ParseDataTypes("", "", "")

			Convey("Then nothing is required", func() {
				So(err, ShouldBeNil)
				So(dt.Any(), ShouldBeFalse)
			})
		})

		Convey("When flags use the strconv forms", func() {
			dt, err := types.ParseDataTypes("true", "0", " 1 ")

			Convey("Then each is parsed", func() {
				So(err, ShouldBeNil)
				So(dt, ShouldResemble, model.DataTypes{EEG: true, ACC: true})
			})
		})

		Convey("When a flag is not boolean", func() {
			_, err := types.ParseDataTypes("yes", "", "")

			Convey("Then ErrInvalidFlag names it", func() {
				So(errors.Is(err, types.ErrInvalidFlag), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "eeg")
			})
		})
	})
}

func TestSampleBatch_Validate(t *testing.T) {
	Convey("Given a sample batch", t, func() {
		batch := types.SampleBatch{Samples: []model.QualitySample{
			{Channel: model.ChannelEEG, Score: 90},
			{Channel: model.ChannelMotion, Score: 80},
		}}

		Convey("Known channels pass", func() {
			So(batch.Validate(), ShouldBeNil)
		})

		Convey("An unknown channel is reported by position", func() {
			batch.Samples = append(batch.Samples, model.QualitySample{Channel: "EMG"})
			err := batch.Validate()
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "sample 2")
		})
	})
}

func TestNewJobEvent(t *testing.T) {
	Convey("Given a job", t, func() {
		now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
		job := model.NewPipelineJob("job-1", "s-1", "basic", now)

		Convey("A queued job is not terminal", func() {
			ev := types.NewJobEvent(job)
			So(ev.JobID, ShouldEqual, "job-1")
			So(ev.Stage, ShouldEqual, model.StageQueued)
			So(ev.Terminal, ShouldBeFalse)
			So(ev.UpdatedAt, ShouldEqual, now)
		})

		Convey("A failed job carries its error kind", func() {
			job.Fail(model.ErrorKindPrecondition, "session not sealed", now.Add(time.Second))
			ev := types.NewJobEvent(job)
			So(ev.Terminal, ShouldBeTrue)
			So(ev.ErrorKind, ShouldEqual, model.ErrorKindPrecondition)
		})
	})
}
