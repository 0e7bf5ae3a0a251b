// Package service assembles the coherence loop from configuration and owns
// its lifecycle.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/okian/vibecoder/internal/adapters/ledger"
	"github.com/okian/vibecoder/internal/adapters/mq/natsbus"
	"github.com/okian/vibecoder/internal/adapters/mq/worker"
	"github.com/okian/vibecoder/internal/adapters/publisher"
	"github.com/okian/vibecoder/internal/config"
	"github.com/okian/vibecoder/internal/domain/dedupe"
	"github.com/okian/vibecoder/internal/domain/planner"
	"github.com/okian/vibecoder/internal/domain/types"
	"github.com/okian/vibecoder/pkg/logger"
)

// LedgerStore is a ledger the service can close on Stop.
type LedgerStore interface {
	worker.Ledger
	Close() error
}

// Lifecycle errors.
var (
	ErrAlreadyStarted = errors.New("service already started")
	ErrStopped        = errors.New("service stopped")
)

// Service builds the event source, publisher and ledger, runs the driver in
// its own goroutine and tears everything down on Stop.
type Service struct {
	mu sync.RWMutex

	cfg *config.Config

	// Injected or built on Start.
	source    worker.Source
	synth     planner.Synthesizer
	publisher worker.Publisher
	ledger    LedgerStore
	deduper   dedupe.Deduper
	driver    *worker.Driver

	policy worker.ErrorPolicy

	// State
	started bool
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}
	runErr  error

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSource replaces the NATS subscription with src.
func WithSource(src worker.Source) Option {
	return func(s *Service) {
		s.source = src
	}
}

// WithPublisher replaces the git publisher.
func WithPublisher(p worker.Publisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

// WithSynthesizer replaces the stub task synthesizer.
func WithSynthesizer(synth planner.Synthesizer) Option {
	return func(s *Service) {
		s.synth = synth
	}
}

// WithLedger replaces the file ledger opened from config.
func WithLedger(l LedgerStore) Option {
	return func(s *Service) {
		s.ledger = l
	}
}

// New constructs a Service from cfg. A nil cfg uses defaults.
func New(cfg *config.Config, opts ...Option) *Service {
	if cfg == nil {
		cfg = config.New(context.Background())
	}
	s := &Service{
		cfg:  cfg,
		done: make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start builds missing components and launches the driver goroutine. The
// driver outlives ctx; call Stop to end it. A stopped service cannot be
// restarted, and neither can one whose Start failed while building
// components, since the partly built components have already been closed.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrAlreadyStarted
	}
	if s.stopped {
		return ErrStopped
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	policy, err := worker.ParsePolicy(s.cfg.OnError)
	if err != nil {
		return fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}
	s.policy = policy

	s.logger.Info(ctx, "starting coherence service...")

	if err := s.build(ctx); err != nil {
		s.closeComponents(ctx)
		// Injected components are closed now; they cannot back another Start.
		s.source, s.ledger = nil, nil
		s.stopped = true
		return err
	}

	opts := []worker.Option{
		worker.WithErrorPolicy(s.policy),
		worker.WithReceiveTimeout(s.cfg.ReceiveTimeout()),
		worker.WithRetryBackoff(s.cfg.RetryBackoff(), s.cfg.RetryBackoffMax()),
		worker.WithLogger(logger.Get().Named("driver")),
	}
	if s.cfg.DedupeSize > 0 {
		s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.cfg.DedupeSize))
		opts = append(opts, worker.WithDeduper(s.deduper))
	}
	s.driver = worker.NewDriver(s.source, s.synth, s.publisher, s.ledger, opts...)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(runCtx, s.driver, s.done)

	s.started = true
	s.logger.Info(ctx, "coherence service started",
		logger.String("subject", s.cfg.Subject),
		logger.String("ledger", s.ledger.Path()),
		logger.String("on_error", s.policy.String()),
		logger.Int("dedupe_size", s.cfg.DedupeSize),
	)
	return nil
}

func (s *Service) build(ctx context.Context) error {
	if s.ledger == nil {
		l, err := ledger.Open(ctx, s.cfg.LedgerPath, ledger.WithSync(s.cfg.LedgerSync))
		if err != nil {
			return fmt.Errorf("open ledger: %w", err)
		}
		s.ledger = l
	}

	if s.source == nil {
		src, err := natsbus.Dial(ctx, s.cfg.NATSURL, s.cfg.Subject,
			natsbus.WithConnectTimeout(s.cfg.ConnectTimeout()),
			natsbus.WithLogger(logger.Get().Named("natsbus")),
		)
		if err != nil {
			return fmt.Errorf("dial event source: %w", err)
		}
		s.source = src
	}

	if s.publisher == nil {
		creator, err := publisher.NewGitHubCreator(s.cfg.GitHubToken, s.cfg.GitHubBaseURL)
		if err != nil {
			return fmt.Errorf("github client: %w", err)
		}
		s.publisher = publisher.NewGitPublisher(publisher.NewExecRunner(s.cfg.RepoDir), creator,
			publisher.WithRepository(s.cfg.RepoOwner, s.cfg.RepoName),
			publisher.WithRemote(s.cfg.Remote),
			publisher.WithBaseBranch(s.cfg.BaseBranch),
			publisher.WithBranchPrefix(s.cfg.BranchPrefix),
			publisher.WithTimeout(s.cfg.PublishTimeout()),
			publisher.WithLogger(logger.Get().Named("publisher")),
		)
	}

	if s.synth == nil {
		s.synth = planner.NewStub()
	}
	return nil
}

func (s *Service) run(ctx context.Context, d *worker.Driver, done chan struct{}) {
	defer close(done)

	err := d.Run(ctx)

	s.mu.Lock()
	s.runErr = err
	s.mu.Unlock()

	if err != nil {
		s.logger.Error(ctx, "driver halted", logger.Error(err))
	}
}

// Done is closed when the driver loop returns.
func (s *Service) Done() <-chan struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.done
}

// Err returns the error that halted the driver, if any.
func (s *Service) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runErr
}

// Stop halts the driver, then closes the source and the ledger in that order.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.stopped = true
	driver, cancel, done := s.driver, s.cancel, s.done
	s.mu.Unlock()

	s.logger.Info(ctx, "stopping coherence service...")

	var errs []error
	if err := driver.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	cancel()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("driver did not stop: %w", ctx.Err()))
	}

	s.mu.Lock()
	errs = append(errs, s.closeComponents(ctx)...)
	s.mu.Unlock()

	s.logger.Info(ctx, "coherence service stopped")
	return errors.Join(errs...)
}

func (s *Service) closeComponents(ctx context.Context) []error {
	var errs []error
	if s.source != nil {
		if err := s.source.Close(); err != nil {
			s.logger.Warn(ctx, "closing event source", logger.Error(err))
			errs = append(errs, fmt.Errorf("close source: %w", err))
		}
	}
	if s.ledger != nil {
		if err := s.ledger.Close(); err != nil {
			s.logger.Warn(ctx, "closing ledger", logger.Error(err))
			errs = append(errs, fmt.Errorf("close ledger: %w", err))
		}
	}
	return errs
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() types.ServiceStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := types.ServiceStats{
		Started:    s.started,
		Subject:    s.cfg.Subject,
		LedgerPath: s.cfg.LedgerPath,
		Policy:     s.policy.String(),
	}
	if s.ledger != nil {
		stats.LedgerPath = s.ledger.Path()
	}
	if s.deduper != nil {
		stats.Seen = s.deduper.Size()
	}
	if s.driver != nil {
		stats.Driver = s.driver.Stats()
	}
	return stats
}
