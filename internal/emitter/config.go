package emitter

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig marks an unusable emitter configuration.
var ErrInvalidConfig = errors.New("invalid emitter config")

// Config holds configuration for an emission run.
type Config struct {
	URL      string        // NATS server URL
	Subject  string        // Subject events are published on
	Count    int           // Number of events to publish
	Interval time.Duration // Pause between events
	Min      float64       // Lowest coherence value
	Max      float64       // Highest coherence value
	Walk     bool          // Random walk instead of independent samples
	Timeout  time.Duration // Connect and HTTP timeout
	StatsURL string        // Optional daemon base URL to report on after emitting
}

// Validate reports the first unusable field.
func (c *Config) Validate() error {
	switch {
	case c.URL == "":
		return fmt.Errorf("%w: url must not be empty", ErrInvalidConfig)
	case c.Subject == "":
		return fmt.Errorf("%w: subject must not be empty", ErrInvalidConfig)
	case c.Count < 1:
		return fmt.Errorf("%w: count must be positive", ErrInvalidConfig)
	case c.Min > c.Max:
		return fmt.Errorf("%w: min %.3f above max %.3f", ErrInvalidConfig, c.Min, c.Max)
	case c.Interval < 0:
		return fmt.Errorf("%w: interval must not be negative", ErrInvalidConfig)
	}
	return nil
}

// Event is one synthetic coherence reading.
type Event struct {
	ID        string  `json:"id"`
	Coherence float64 `json:"coherence"`
}

// Stats holds emission statistics.
type Stats struct {
	Generated int
	Published int
	Failed    int
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
}
