package service_test

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/okian/vibecoder/internal/adapters/mq/queue"
	service "github.com/okian/vibecoder/internal/app"
	"github.com/okian/vibecoder/internal/config"
	"github.com/okian/vibecoder/internal/domain/model"
	"github.com/okian/vibecoder/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

type stubPublisher struct {
	mu    sync.Mutex
	calls int
	url   string
	err   error
}

func (p *stubPublisher) Publish(context.Context, model.Task) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.url, p.err
}

func (p *stubPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.New(context.Background())
	cfg.LedgerPath = filepath.Join(t.TempDir(), "data", "empathy-ledger.jsonl")
	return cfg
}

func readLedger(t *testing.T, path string) []model.LedgerEntry {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	defer f.Close()

	var out []model.LedgerEntry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e model.LedgerEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("decode ledger line: %v", err)
		}
		out = append(out, e)
	}
	return out
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

func TestService_New(t *testing.T) {
	Convey("Given a new service without config", t, func() {
		svc := service.New(nil)

		Convey("Then it should report defaults before starting", func() {
			So(svc, ShouldNotBeNil)
			stats := svc.GetStats()
			So(stats.Started, ShouldBeFalse)
			So(stats.Subject, ShouldEqual, "coherence.>")
			So(stats.Policy, ShouldEqual, "halt")
			So(svc.Err(), ShouldBeNil)
		})

		Convey("And stopping it should be a no-op", func() {
			So(svc.Stop(context.Background()), ShouldBeNil)
		})
	})
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a service over an in-memory source", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		cfg := testConfig(t)
		src := queue.NewInMemoryQueue()
		pub := &stubPublisher{url: "https://example/pr/1"}
		svc := service.New(cfg, service.WithSource(src), service.WithPublisher(pub))

		So(svc.Start(ctx), ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()

		Convey("When starting twice", func() {
			err := svc.Start(ctx)

			Convey("Then the second start should be rejected", func() {
				So(errors.Is(err, service.ErrAlreadyStarted), ShouldBeTrue)
			})
		})

		Convey("When an event arrives", func() {
			So(src.Enqueue(ctx, model.CoherenceEvent{ID: "m1", Score: 0.42}), ShouldBeTrue)

			Convey("Then it should be recorded in the ledger", func() {
				So(waitFor(func() bool { return svc.GetStats().Driver.Iterations["recorded"] == 1 }), ShouldBeTrue)
				lines := readLedger(t, cfg.LedgerPath)
				So(lines, ShouldHaveLength, 1)
				So(lines[0].Coherence, ShouldEqual, 0.42)
				So(lines[0].PRRef, ShouldEqual, "https://example/pr/1")

				stats := svc.GetStats()
				So(stats.Started, ShouldBeTrue)
				So(stats.LedgerPath, ShouldEqual, cfg.LedgerPath)
				So(stats.Seen, ShouldEqual, 1)
				So(stats.Driver.LastPR, ShouldEqual, "https://example/pr/1")
			})
		})

		Convey("When stopping the service", func() {
			So(svc.Stop(ctx), ShouldBeNil)

			Convey("Then the driver should be done and resources closed", func() {
				select {
				case <-svc.Done():
				case <-time.After(time.Second):
					t.Fatal("driver did not stop")
				}
				So(svc.Err(), ShouldBeNil)
				So(src.IsClosed(), ShouldBeTrue)
				So(svc.GetStats().Started, ShouldBeFalse)
				So(errors.Is(svc.Start(ctx), service.ErrStopped), ShouldBeTrue)
			})
		})
	})
}

func TestService_HaltOnFailure(t *testing.T) {
	Convey("Given a halting service whose publisher fails", t, func() {
		ctx := context.Background()
		cfg := testConfig(t)
		src := queue.NewInMemoryQueue()
		pub := &stubPublisher{err: errors.New("remote rejected push")}
		svc := service.New(cfg, service.WithSource(src), service.WithPublisher(pub))
		So(svc.Start(ctx), ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()

		So(src.Enqueue(ctx, model.CoherenceEvent{ID: "m1", Score: 0.1}), ShouldBeTrue)

		Convey("Then the driver should halt with the error and write nothing", func() {
			select {
			case <-svc.Done():
			case <-time.After(2 * time.Second):
				t.Fatal("driver did not halt")
			}
			So(svc.Err(), ShouldNotBeNil)
			So(svc.Err().Error(), ShouldContainSubstring, "remote rejected push")
			So(readLedger(t, cfg.LedgerPath), ShouldBeEmpty)
		})
	})

	Convey("Given the same failure under the continue policy", t, func() {
		ctx := context.Background()
		cfg := testConfig(t)
		cfg.OnError = config.OnErrorContinue
		src := queue.NewInMemoryQueue()
		pub := &stubPublisher{err: errors.New("remote rejected push")}
		svc := service.New(cfg, service.WithSource(src), service.WithPublisher(pub))
		So(svc.Start(ctx), ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()

		So(src.Enqueue(ctx, model.CoherenceEvent{ID: "m1", Score: 0.1}), ShouldBeTrue)
		So(src.Enqueue(ctx, model.CoherenceEvent{ID: "m2", Score: 0.2}), ShouldBeTrue)

		Convey("Then the driver should keep running", func() {
			So(waitFor(func() bool { return svc.GetStats().Driver.Iterations["failed"] == 2 }), ShouldBeTrue)
			select {
			case <-svc.Done():
				t.Fatal("driver should still be running")
			default:
			}
			So(svc.GetStats().Policy, ShouldEqual, "continue")
		})
	})
}

func TestService_StartFailures(t *testing.T) {
	Convey("Given a config whose ledger cannot be created", t, func() {
		cfg := testConfig(t)
		blocker := filepath.Join(t.TempDir(), "blocker")
		So(os.WriteFile(blocker, []byte("x"), 0o600), ShouldBeNil)
		cfg.LedgerPath = filepath.Join(blocker, "ledger.jsonl")
		src := queue.NewInMemoryQueue()
		svc := service.New(cfg, service.WithSource(src))

		err := svc.Start(context.Background())

		Convey("Then start should fail and release the injected source", func() {
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "open ledger")
			So(src.IsClosed(), ShouldBeTrue)
		})

		Convey("And a retried start should be refused instead of reusing closed components", func() {
			So(errors.Is(svc.Start(context.Background()), service.ErrStopped), ShouldBeTrue)
			So(svc.GetStats().Started, ShouldBeFalse)
			So(svc.Stop(context.Background()), ShouldBeNil)
		})
	})

	Convey("Given a config pointing at no broker", t, func() {
		cfg := testConfig(t)
		cfg.NATSURL = "nats://127.0.0.1:1"
		cfg.ConnectTimeoutMS = 200
		svc := service.New(cfg, service.WithPublisher(&stubPublisher{}))

		err := svc.Start(context.Background())

		Convey("Then start should fail with a connectivity error", func() {
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "dial event source")
		})

		Convey("And a retried start should not run against the closed ledger", func() {
			So(errors.Is(svc.Start(context.Background()), service.ErrStopped), ShouldBeTrue)
		})
	})

	Convey("Given an unknown error policy", t, func() {
		cfg := testConfig(t)
		cfg.OnError = "retry"
		svc := service.New(cfg, service.WithSource(queue.NewInMemoryQueue()))

		err := svc.Start(context.Background())

		Convey("Then start should fail validation", func() {
			So(errors.Is(err, config.ErrInvalidConfig), ShouldBeTrue)
		})
	})
}
