package model_test

import (
	"errors"
	"math"
	"testing"
	"time"

	model "github.com/okian/vibecoder/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestDecodeCoherenceEvent(t *testing.T) {
	convey.Convey("Given a bus payload", t, func() {
		now := time.Unix(1_700_000_000, 0)

		convey.Convey("When it carries a numeric coherence", func() {
			ev, err := model.DecodeCoherenceEvent([]byte(`{"coherence": 0.42}`), "msg-1", now)

			convey.Convey("Then it should decode with the fallback id", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(ev.Score, convey.ShouldEqual, 0.42)
				convey.So(ev.ID, convey.ShouldEqual, "msg-1")
				convey.So(ev.ReceivedAt, convey.ShouldEqual, now)
			})
		})

		convey.Convey("When it carries its own id and extra fields", func() {
			ev, err := model.DecodeCoherenceEvent([]byte(`{"coherence": 1.7, "id": "evt-9", "source": "probe"}`), "msg-1", now)

			convey.Convey("Then the payload id should win and the score stay unbounded", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(ev.ID, convey.ShouldEqual, "evt-9")
				convey.So(ev.Score, convey.ShouldEqual, 1.7)
			})
		})

		convey.Convey("When it is malformed", func() {
			payloads := []string{
				``,
				`coherence=0.4`,
				`[0.4]`,
				`{"score": 0.4}`,
				`{"coherence": null}`,
				`{"coherence": "0.4"}`,
				`{"coherence": true}`,
				`{"coherence": 1e400}`,
				`{"coherence": 0.4, "id": 7}`,
			}

			convey.Convey("Then each should wrap ErrMalformedEvent", func() {
				for _, payload := range payloads {
					_, err := model.DecodeCoherenceEvent([]byte(payload), "", now)
					convey.So(err, convey.ShouldNotBeNil)
					convey.So(errors.Is(err, model.ErrMalformedEvent), convey.ShouldBeTrue)
				}
			})
		})
	})
}

func TestNewCoherenceEvent(t *testing.T) {
	convey.Convey("Given a score", t, func() {
		convey.Convey("When it is not finite", func() {
			_, nanErr := model.NewCoherenceEvent("", math.NaN(), time.Now())
			_, infErr := model.NewCoherenceEvent("", math.Inf(1), time.Now())

			convey.Convey("Then it should be rejected", func() {
				convey.So(errors.Is(nanErr, model.ErrMalformedEvent), convey.ShouldBeTrue)
				convey.So(errors.Is(infErr, model.ErrMalformedEvent), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When it is negative", func() {
			ev, err := model.NewCoherenceEvent("x", -0.5, time.Now())

			convey.Convey("Then it should be accepted as is", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(ev.Score, convey.ShouldEqual, -0.5)
			})
		})
	})
}

func TestTaskCommitMessage(t *testing.T) {
	convey.Convey("Given a task", t, func() {
		task := model.Task{ID: "task-1", Title: "feat: x", Rationale: "because"}

		convey.Convey("Then the commit message should join title and rationale with a blank line", func() {
			convey.So(task.CommitMessage(), convey.ShouldEqual, "feat: x\n\nbecause")
		})
	})
}
