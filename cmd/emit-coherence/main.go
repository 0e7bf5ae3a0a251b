package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/okian/vibecoder/internal/emitter"
	"github.com/okian/vibecoder/pkg/logger"
)

// Default configuration constants.
const (
	defaultCount   = 10
	defaultTimeout = 5 * time.Second
)

func main() {
	var (
		url      = flag.StringP("url", "u", "nats://127.0.0.1:4222", "NATS server URL")
		subject  = flag.StringP("subject", "s", "coherence.synthetic", "Subject to publish on")
		count    = flag.IntP("count", "n", defaultCount, "Number of events to publish")
		interval = flag.DurationP("interval", "i", time.Second, "Pause between events")
		minimum  = flag.Float64("min", 0, "Lowest coherence value")
		maximum  = flag.Float64("max", 1, "Highest coherence value")
		walk     = flag.Bool("walk", false, "Emit a bounded random walk instead of independent samples")
		timeout  = flag.Duration("timeout", defaultTimeout, "Connect and HTTP timeout")
		stats    = flag.String("stats", "", "Daemon base URL to read /stats from after emitting")
		format   = flag.String("log-format", "text", "Log format: text or json")
	)
	flag.Parse()

	if err := logger.Init(logger.WithFormat(*format)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := &emitter.Config{
		URL:      *url,
		Subject:  *subject,
		Count:    *count,
		Interval: *interval,
		Min:      *minimum,
		Max:      *maximum,
		Walk:     *walk,
		Timeout:  *timeout,
		StatsURL: *stats,
	}

	if _, err := emitter.Run(ctx, cfg); err != nil {
		logger.Get().Error(ctx, "emission failed", logger.Error(err))
		stop()
		os.Exit(1)
	}
}
