package worker

import (
	"time"

	"github.com/okian/vibecoder/internal/domain/dedupe"
	"github.com/okian/vibecoder/pkg/logger"
)

// Option applies a configuration option to the Driver.
type Option func(*Driver)

// WithName sets the driver name for identification and logging.
func WithName(name string) Option {
	return func(d *Driver) {
		if name != "" {
			d.name = name
		}
	}
}

// WithLogger sets a custom logger for the driver.
func WithLogger(logger logger.Logger) Option {
	return func(d *Driver) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithReceiveTimeout bounds each wait for an event. Zero waits indefinitely.
func WithReceiveTimeout(timeout time.Duration) Option {
	return func(d *Driver) {
		if timeout >= 0 {
			d.receiveTimeout = timeout
		}
	}
}

// WithErrorPolicy decides whether a failed iteration stops the loop.
func WithErrorPolicy(policy ErrorPolicy) Option {
	return func(d *Driver) {
		d.policy = policy
	}
}

// WithDeduper skips events whose IDs were already processed.
func WithDeduper(deduper dedupe.Deduper) Option {
	return func(d *Driver) {
		d.deduper = deduper
	}
}

// WithRetryBackoff sets the pause after a failed receive under
// PolicyContinue. The pause doubles per consecutive receive failure up to
// maxDelay and resets once an iteration gets past the receive step.
func WithRetryBackoff(initial, maxDelay time.Duration) Option {
	return func(d *Driver) {
		if initial <= 0 {
			return
		}
		if maxDelay < initial {
			maxDelay = initial
		}
		d.retryBackoff, d.retryBackoffMax = initial, maxDelay
	}
}
