// Package emitter publishes synthetic coherence events to NATS so the daemon
// can be exercised without a real signal source.
package emitter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/okian/vibecoder/internal/domain/types"
	"github.com/okian/vibecoder/pkg/logger"
)

// Publisher is the slice of *nats.Conn the emitter needs.
type Publisher interface {
	PublishMsg(msg *nats.Msg) error
	Flush() error
}

// Run connects to NATS, publishes the generated events and, when StatsURL
// is set, logs what the daemon reports afterwards.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := logger.Get().Named("emitter")
	log.Info(ctx, "starting coherence emitter",
		logger.String("url", cfg.URL),
		logger.String("subject", cfg.Subject),
		logger.Int("count", cfg.Count),
		logger.Duration("interval", cfg.Interval),
		logger.Bool("walk", cfg.Walk))

	nc, err := nats.Connect(cfg.URL, nats.Name("emit-coherence"), nats.Timeout(cfg.Timeout))
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.URL, err)
	}
	defer nc.Close()

	events := Generate(cfg)
	stats, err := Emit(ctx, nc, cfg.Subject, events, cfg.Interval)
	if err != nil {
		return stats, err
	}

	displayFinalStats(ctx, log, stats)

	if cfg.StatsURL != "" {
		if err := reportDaemonStats(ctx, log, cfg.StatsURL, cfg.Timeout); err != nil {
			log.Warn(ctx, "could not read daemon stats", logger.Error(err))
		}
	}
	return stats, nil
}

// Emit publishes events in order, pausing interval between them. Each event
// carries its ID in the Nats-Msg-Id header and in the payload.
func Emit(ctx context.Context, pub Publisher, subject string, events []Event, interval time.Duration) (*Stats, error) {
	stats := &Stats{Generated: len(events), StartTime: time.Now()}
	defer func() {
		stats.EndTime = time.Now()
		stats.Duration = stats.EndTime.Sub(stats.StartTime)
	}()

	for i, ev := range events {
		if i > 0 && interval > 0 {
			select {
			case <-ctx.Done():
				return stats, ctx.Err()
			case <-time.After(interval):
			}
		} else if err := ctx.Err(); err != nil {
			return stats, err
		}

		data, err := json.Marshal(ev)
		if err != nil {
			stats.Failed++
			continue
		}
		msg := nats.NewMsg(subject)
		msg.Header.Set(nats.MsgIdHdr, ev.ID)
		msg.Data = data
		if err := pub.PublishMsg(msg); err != nil {
			stats.Failed++
			continue
		}
		stats.Published++
	}

	if err := pub.Flush(); err != nil {
		return stats, fmt.Errorf("flush: %w", err)
	}
	return stats, nil
}

func reportDaemonStats(ctx context.Context, log logger.Logger, baseURL string, timeout time.Duration) error {
	client := &http.Client{Timeout: timeout}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/stats", nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("get stats: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("stats returned status %d", resp.StatusCode)
	}

	var stats types.ServiceStats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return fmt.Errorf("decode stats: %w", err)
	}

	log.Info(ctx, "daemon stats",
		logger.Bool("started", stats.Started),
		logger.String("state", stats.Driver.State),
		logger.Any("iterations", stats.Driver.Iterations),
		logger.String("last_pr", stats.Driver.LastPR),
		logger.String("last_error", stats.Driver.LastError))
	return nil
}

func displayFinalStats(ctx context.Context, log logger.Logger, stats *Stats) {
	var eventsPerSecond float64
	if stats.Duration > 0 {
		eventsPerSecond = float64(stats.Published) / stats.Duration.Seconds()
	}

	log.Info(ctx, "final statistics",
		logger.Int("generated", stats.Generated),
		logger.Int("published", stats.Published),
		logger.Int("failed", stats.Failed),
		logger.String("duration", stats.Duration.String()),
		logger.Float64("eventsPerSecond", eventsPerSecond))
}
