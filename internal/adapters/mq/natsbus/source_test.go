package natsbus_test

import (
	"context"
	"errors"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"

	"github.com/okian/vibecoder/internal/adapters/mq/natsbus"
	"github.com/okian/vibecoder/internal/domain/model"
	"github.com/okian/vibecoder/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

func publish(t *testing.T, url, subject, id string, payload []byte) {
	t.Helper()
	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("connect publisher: %v", err)
	}
	defer nc.Close()

	msg := nats.NewMsg(subject)
	msg.Data = payload
	if id != "" {
		msg.Header.Set(nats.MsgIdHdr, id)
	}
	if err := nc.PublishMsg(msg); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := nc.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
}

func TestSource(t *testing.T) {
	Convey("Given a running NATS server and a subscribed source", t, func() {
		srv := natsserver.RunRandClientPortServer()
		defer srv.Shutdown()

		ctx := context.Background()
		fixed := time.Unix(1_700_000_000, 0)
		src, err := natsbus.Dial(ctx, srv.ClientURL(), "", natsbus.WithClock(func() time.Time { return fixed }))
		So(err, ShouldBeNil)
		defer src.Close()

		So(src.Subject(), ShouldEqual, natsbus.DefaultSubject)

		Convey("When a coherence payload is published under the wildcard", func() {
			publish(t, srv.ClientURL(), "coherence.team", "msg-1", []byte(`{"coherence": 0.42}`))

			rctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			event, err := src.Next(rctx)

			Convey("Then the decoded event should carry the header id", func() {
				So(err, ShouldBeNil)
				So(event.ID, ShouldEqual, "msg-1")
				So(event.Score, ShouldEqual, 0.42)
				So(event.ReceivedAt, ShouldEqual, fixed)
			})
		})

		Convey("When the payload names its own id", func() {
			publish(t, srv.ClientURL(), "coherence.x", "header-id", []byte(`{"id": "payload-id", "coherence": 0.1}`))

			rctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			event, err := src.Next(rctx)

			Convey("Then the payload id should win", func() {
				So(err, ShouldBeNil)
				So(event.ID, ShouldEqual, "payload-id")
			})
		})

		Convey("When a malformed payload is published", func() {
			publish(t, srv.ClientURL(), "coherence.x", "", []byte(`not json`))

			rctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			_, err := src.Next(rctx)

			Convey("Then Next should report a malformed event", func() {
				So(errors.Is(err, model.ErrMalformedEvent), ShouldBeTrue)
			})
		})

		Convey("When nothing arrives before the deadline", func() {
			rctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
			defer cancel()
			_, err := src.Next(rctx)

			Convey("Then the context error should surface unwrapped", func() {
				So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
				So(errors.Is(err, natsbus.ErrConnectivity), ShouldBeFalse)
			})
		})

		Convey("When the source is closed", func() {
			So(src.Close(), ShouldBeNil)
			_, err := src.Next(ctx)

			Convey("Then Next should report the closed source", func() {
				So(errors.Is(err, natsbus.ErrClosed), ShouldBeTrue)
				So(errors.Is(err, model.ErrSourceClosed), ShouldBeTrue)
				So(src.Close(), ShouldBeNil)
			})
		})
	})
}

func TestDialUnreachable(t *testing.T) {
	Convey("Given no server listening", t, func() {
		ctx := context.Background()

		Convey("When dialing", func() {
			_, err := natsbus.Dial(ctx, "nats://127.0.0.1:1", "coherence.>", natsbus.WithConnectTimeout(200*time.Millisecond))

			Convey("Then a connectivity error should be returned", func() {
				So(errors.Is(err, natsbus.ErrConnectivity), ShouldBeTrue)
			})
		})
	})
}
