package service_test

import (
	"context"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"

	service "github.com/okian/vibecoder/internal/app"
	. "github.com/smartystreets/goconvey/convey"
)

func TestService_NATSIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	Convey("Given a service subscribed to a live NATS server", t, func() {
		srv := natsserver.RunRandClientPortServer()
		defer srv.Shutdown()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		cfg := testConfig(t)
		cfg.NATSURL = srv.ClientURL()
		cfg.ReceiveTimeoutMS = 100
		pub := &stubPublisher{url: "https://example/pr/9"}
		svc := service.New(cfg, service.WithPublisher(pub))
		So(svc.Start(ctx), ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()

		nc, err := nats.Connect(srv.ClientURL())
		So(err, ShouldBeNil)
		defer nc.Close()

		Convey("When coherence events are published, one of them twice", func() {
			for _, id := range []string{"a", "b", "a"} {
				msg := nats.NewMsg("coherence.team")
				msg.Header.Set(nats.MsgIdHdr, id)
				msg.Data = []byte(`{"coherence": 0.5}`)
				So(nc.PublishMsg(msg), ShouldBeNil)
			}
			So(nc.Publish("coherence.team", []byte(`{"coherence": "n/a"}`)), ShouldBeNil)
			So(nc.Flush(), ShouldBeNil)

			Convey("Then each distinct event should be recorded once", func() {
				So(waitFor(func() bool {
					it := svc.GetStats().Driver.Iterations
					return it["recorded"] == 2 && it["skipped"] == 2
				}), ShouldBeTrue)
				So(readLedger(t, cfg.LedgerPath), ShouldHaveLength, 2)
				So(pub.count(), ShouldEqual, 2)
			})
		})

		Convey("When no events are published", func() {
			Convey("Then the driver should idle on receive timeouts", func() {
				So(waitFor(func() bool { return svc.GetStats().Driver.Iterations["idle"] >= 2 }), ShouldBeTrue)
				So(svc.GetStats().Driver.State, ShouldNotEqual, "stopped")
			})
		})
	})
}
