// Package worker runs the coherence loop: one event in, one task published,
// one ledger entry out, strictly in that order.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/vibecoder/internal/adapters/ledger"
	"github.com/okian/vibecoder/internal/domain/dedupe"
	"github.com/okian/vibecoder/internal/domain/model"
	"github.com/okian/vibecoder/internal/domain/planner"
	"github.com/okian/vibecoder/internal/domain/types"
	"github.com/okian/vibecoder/pkg/logger"
	"github.com/okian/vibecoder/pkg/metrics"
)

// Source yields one coherence event per call.
type Source interface {
	Next(ctx context.Context) (model.CoherenceEvent, error)
	Close() error
}

// Publisher turns a task into a pull request reference.
type Publisher interface {
	Publish(ctx context.Context, task model.Task) (string, error)
}

// Ledger records completed iterations.
type Ledger = ledger.Appender

// Outcome classifies one iteration.
type Outcome string

const (
	OutcomeRecorded Outcome = "recorded"
	OutcomeIdle     Outcome = "idle"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeFailed   Outcome = "failed"
)

// ErrorPolicy decides what Run does with a failed iteration.
type ErrorPolicy int

const (
	// PolicyHalt stops the loop and returns the failure.
	PolicyHalt ErrorPolicy = iota
	// PolicyContinue logs the failure and keeps looping.
	PolicyContinue
)

// String implements fmt.Stringer.
func (p ErrorPolicy) String() string {
	switch p {
	case PolicyHalt:
		return "halt"
	case PolicyContinue:
		return "continue"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ParsePolicy maps a config value to an ErrorPolicy.
func ParsePolicy(s string) (ErrorPolicy, error) {
	switch s {
	case "", "halt":
		return PolicyHalt, nil
	case "continue":
		return PolicyContinue, nil
	default:
		return PolicyHalt, fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
	}
}

// Loop states reported by Stats.
const (
	StateAwaiting   = "awaiting"
	StateProcessing = "processing"
	StateStopped    = "stopped"
)

// Result describes one iteration. Idle with a non-nil Err means the
// caller's context ended while waiting.
type Result struct {
	Outcome Outcome
	Event   model.CoherenceEvent
	Task    model.Task
	Entry   model.LedgerEntry
	Err     error
}

// Driver owns the loop. It is not safe to call Step or Run concurrently;
// Stats and Shutdown may be called from any goroutine.
type Driver struct {
	source    Source
	synth     planner.Synthesizer
	publisher Publisher
	ledger    Ledger
	deduper   dedupe.Deduper

	name           string
	receiveTimeout time.Duration
	policy         ErrorPolicy

	retryBackoff    time.Duration
	retryBackoffMax time.Duration
	logger          logger.Logger

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}
	running      atomic.Bool

	mu         sync.Mutex
	state      string
	iterations map[Outcome]int64
	lastTaskID string
	lastPR     string
	lastErr    string
	lastEvent  int64
}

const (
	defaultRetryBackoff    = 500 * time.Millisecond
	defaultRetryBackoffMax = 30 * time.Second
)

// NewDriver wires a loop from its collaborators.
func NewDriver(source Source, synth planner.Synthesizer, publisher Publisher, l Ledger, opts ...Option) *Driver {
	d := &Driver{
		source:    source,
		synth:     synth,
		publisher: publisher,
		ledger:    l,
		name:      "driver",
		policy:    PolicyHalt,

		retryBackoff:    defaultRetryBackoff,
		retryBackoffMax: defaultRetryBackoffMax,

		shutdown:   make(chan struct{}),
		done:       make(chan struct{}),
		state:      StateAwaiting,
		iterations: make(map[Outcome]int64),
	}

	for _, opt := range opts {
		opt(d)
	}

	if d.logger == nil {
		d.logger = logger.Get().Named(d.name)
	}

	metrics.UpdateLoopState(metrics.StateAwaiting)
	return d
}

// Step runs exactly one iteration.
func (d *Driver) Step(ctx context.Context) Result {
	d.setState(StateAwaiting)

	event, err := d.receive(ctx)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			return Result{Outcome: OutcomeIdle, Err: ctx.Err()}
		case errors.Is(err, context.DeadlineExceeded):
			metrics.RecordReceiveTimeout()
			return d.finish(ctx, Result{Outcome: OutcomeIdle})
		case errors.Is(err, model.ErrMalformedEvent):
			metrics.RecordEventRejected()
			d.logger.Warn(ctx, "skipping malformed event", logger.Error(err))
			return d.finish(ctx, Result{Outcome: OutcomeSkipped, Err: err})
		default:
			metrics.RecordErrorByComponent("driver", "receive")
			return d.finish(ctx, Result{Outcome: OutcomeFailed, Err: fmt.Errorf("%w: %w", ErrReceive, err)})
		}
	}

	metrics.RecordEventReceived()
	if d.deduper != nil && d.deduper.SeenAndRecord(ctx, event.ID) {
		metrics.RecordEventDuplicate()
		d.logger.Debug(ctx, "skipping duplicate event", logger.String("event_id", event.ID))
		return d.finish(ctx, Result{
			Outcome: OutcomeSkipped,
			Event:   event,
			Err:     fmt.Errorf("%w: %s", ErrDuplicateEvent, event.ID),
		})
	}

	d.setState(StateProcessing)
	res := d.process(ctx, event)
	return d.finish(ctx, res)
}

func (d *Driver) receive(ctx context.Context) (model.CoherenceEvent, error) {
	if d.receiveTimeout <= 0 {
		return d.source.Next(ctx)
	}
	rctx, cancel := context.WithTimeout(ctx, d.receiveTimeout)
	defer cancel()
	return d.source.Next(rctx)
}

func (d *Driver) process(ctx context.Context, event model.CoherenceEvent) Result {
	res := Result{Event: event}

	task, err := d.synth.Synthesize(ctx, event, d.ledger)
	if err != nil {
		d.forget(ctx, event)
		metrics.RecordErrorByComponent("driver", "synthesize")
		res.Outcome, res.Err = OutcomeFailed, fmt.Errorf("synthesize: %w", err)
		return res
	}
	metrics.RecordTaskSynthesized()
	res.Task = task

	pr, err := d.publisher.Publish(ctx, task)
	if err != nil {
		d.forget(ctx, event)
		metrics.RecordErrorByComponent("driver", "publish")
		res.Outcome, res.Err = OutcomeFailed, fmt.Errorf("publish task %s: %w", task.ID, err)
		return res
	}

	// The PR exists from here on; a redelivery must not open another one.
	entry, err := d.ledger.Append(ctx, model.LedgerEntry{
		Coherence: event.Score,
		TaskID:    task.ID,
		PRRef:     pr,
	})
	if err != nil {
		metrics.RecordErrorByComponent("driver", "ledger")
		res.Outcome, res.Err = OutcomeFailed, fmt.Errorf("record task %s: %w", task.ID, err)
		return res
	}

	res.Outcome, res.Entry = OutcomeRecorded, entry
	return res
}

func (d *Driver) forget(ctx context.Context, event model.CoherenceEvent) {
	if d.deduper != nil {
		d.deduper.Unrecord(ctx, event.ID)
	}
}

func (d *Driver) finish(ctx context.Context, res Result) Result {
	metrics.RecordIteration(string(res.Outcome))

	d.mu.Lock()
	d.iterations[res.Outcome]++
	if !res.Event.ReceivedAt.IsZero() {
		d.lastEvent = res.Event.ReceivedAt.Unix()
	}
	switch res.Outcome {
	case OutcomeRecorded:
		d.lastTaskID = res.Task.ID
		d.lastPR = res.Entry.PRRef
	case OutcomeFailed:
		d.lastErr = res.Err.Error()
	}
	d.mu.Unlock()

	switch res.Outcome {
	case OutcomeRecorded:
		d.logger.Info(ctx, "iteration recorded",
			logger.String("task_id", res.Task.ID),
			logger.String("pr", res.Entry.PRRef),
			logger.Float64("coherence", res.Event.Score))
	case OutcomeFailed:
		d.logger.Error(ctx, "iteration failed", logger.Error(res.Err))
	}

	d.setState(StateAwaiting)
	return res
}

func (d *Driver) setState(state string) {
	d.mu.Lock()
	d.state = state
	d.mu.Unlock()

	if state == StateProcessing {
		metrics.UpdateLoopState(metrics.StateProcessing)
	} else {
		metrics.UpdateLoopState(metrics.StateAwaiting)
	}
}

// Run loops until ctx is done, Shutdown is called, or the source closes.
// Under PolicyHalt the first failed iteration is returned.
func (d *Driver) Run(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(d.done)
	defer d.setStopped()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-d.shutdown:
			cancel()
		case <-runCtx.Done():
		}
	}()

	d.logger.Info(ctx, "driver started",
		logger.String("policy", d.policy.String()),
		logger.Duration("receive_timeout", d.receiveTimeout))

	var delay time.Duration
	for {
		if runCtx.Err() != nil {
			return nil
		}

		res := d.Step(runCtx)
		if runCtx.Err() != nil {
			return nil
		}
		if res.Outcome != OutcomeFailed {
			delay = 0
			continue
		}
		if errors.Is(res.Err, model.ErrSourceClosed) {
			d.logger.Info(ctx, "event source closed")
			return nil
		}
		if d.policy == PolicyHalt {
			return res.Err
		}
		if !errors.Is(res.Err, ErrReceive) {
			delay = 0
			continue
		}

		// A broken source fails without blocking; pace the retries.
		delay = d.nextBackoff(delay)
		d.logger.Warn(ctx, "receive failing; backing off", logger.Duration("delay", delay))
		select {
		case <-runCtx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

func (d *Driver) nextBackoff(prev time.Duration) time.Duration {
	if prev <= 0 {
		return d.retryBackoff
	}
	if next := prev * 2; next < d.retryBackoffMax {
		return next
	}
	return d.retryBackoffMax
}

func (d *Driver) setStopped() {
	d.mu.Lock()
	d.state = StateStopped
	d.mu.Unlock()
}

// Shutdown stops the loop and waits for Run to return.
func (d *Driver) Shutdown(ctx context.Context) error {
	d.shutdownOnce.Do(func() { close(d.shutdown) })

	if !d.running.Load() {
		return nil
	}

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		d.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Stats returns a snapshot of the loop counters.
func (d *Driver) Stats() types.Stats {
	d.mu.Lock()
	defer d.mu.Unlock()

	iterations := make(map[string]int64, len(d.iterations))
	for k, v := range d.iterations {
		iterations[string(k)] = v
	}
	return types.Stats{
		Name:       d.name,
		State:      d.state,
		Iterations: iterations,
		LastTaskID: d.lastTaskID,
		LastPR:     d.lastPR,
		LastError:  d.lastErr,
		LastEvent:  d.lastEvent,
	}
}
