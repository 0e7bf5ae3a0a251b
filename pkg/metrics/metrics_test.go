package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with a private registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("unit"),
				WithHistogramBuckets([]float64{1, 2, 3}),
				WithPublishBuckets([]float64{100, 1000}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then metrics should register under the namespace", func() {
				So(manager, ShouldNotBeNil)
				manager.eventsReceived.Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)

				names := make([]string, 0, len(families))
				for _, f := range families {
					names = append(names, f.GetName())
				}
				So(names, ShouldContain, "test_unit_events_received_total")
			})
		})

		Convey("When creating two managers on the same registry", func() {
			registry := prometheus.NewRegistry()
			_ = NewManager(WithPrometheusRegistry(registry))

			Convey("Then the second registration should panic", func() {
				So(func() { NewManager(WithPrometheusRegistry(registry)) }, ShouldPanic)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("When recording pipeline metrics", func() {
			before := testutil.ToFloat64(globalManager.pullRequestsOpened)
			RecordPullRequestOpened()
			RecordTaskSynthesized()
			RecordPublishLatency(1200)
			RecordPublishFailure("push")

			Convey("Then counters should move", func() {
				So(testutil.ToFloat64(globalManager.pullRequestsOpened), ShouldEqual, before+1)
				So(testutil.ToFloat64(globalManager.publishFailures.WithLabelValues("push")), ShouldBeGreaterThanOrEqualTo, 1)
			})
		})

		Convey("When recording ledger metrics", func() {
			before := testutil.ToFloat64(globalManager.ledgerAppends)
			RecordLedgerAppend()
			RecordLedgerAppendError("serialization")
			RecordLedgerAppendLatency(0.3)

			Convey("Then counters should move", func() {
				So(testutil.ToFloat64(globalManager.ledgerAppends), ShouldEqual, before+1)
				So(testutil.ToFloat64(globalManager.ledgerAppendErrors.WithLabelValues("serialization")), ShouldBeGreaterThanOrEqualTo, 1)
			})
		})

		Convey("When updating gauges", func() {
			UpdateLoopState(StateProcessing)
			UpdateQueueSize(3)
			UpdateQueueCapacity(10)

			Convey("Then gauges should hold the last value", func() {
				So(testutil.ToFloat64(globalManager.loopState), ShouldEqual, StateProcessing)
				So(testutil.ToFloat64(globalManager.queueSize), ShouldEqual, 3)
				So(testutil.ToFloat64(globalManager.queueCapacity), ShouldEqual, 10)
			})
		})

		Convey("When recording the remaining metrics", func() {
			Convey("Then nothing should panic", func() {
				So(func() {
					RecordEventReceived()
					RecordEventRejected()
					RecordEventDuplicate()
					RecordReceiveTimeout()
					RecordIteration("recorded")
					RecordQueueEnqueue()
					RecordQueueEnqueueError("full")
					RecordHTTPRequest("healthz", "GET", "200")
					RecordHTTPRequestDuration("healthz", "GET", "200", 1)
					RecordErrorByComponent("driver", "publish")
					UpdateSystemMemoryUsage(1 << 20)
					UpdateSystemGoroutineCount(12)
					RecordSystemGCPauseTime(0.4)
				}, ShouldNotPanic)
			})
		})

		Convey("When fetching the registry", func() {
			Convey("Then it should be the private registry", func() {
				So(GetRegistry(), ShouldEqual, customRegistry)
			})
		})
	})
}
