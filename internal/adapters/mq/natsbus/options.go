package natsbus

import (
	"time"

	"github.com/okian/vibecoder/pkg/logger"
)

// Option applies a configuration option to the Source.
type Option func(*Source)

// WithName sets the client connection name reported to the server.
func WithName(name string) Option {
	return func(s *Source) {
		if name != "" {
			s.name = name
		}
	}
}

// WithConnectTimeout bounds the initial dial.
func WithConnectTimeout(d time.Duration) Option {
	return func(s *Source) {
		if d > 0 {
			s.connectTimeout = d
		}
	}
}

// WithLogger sets a custom logger for connection events.
func WithLogger(l logger.Logger) Option {
	return func(s *Source) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock replaces the arrival-time source.
func WithClock(now func() time.Time) Option {
	return func(s *Source) {
		if now != nil {
			s.now = now
		}
	}
}
