package emitter

import (
	"crypto/rand"
	"math/big"

	"github.com/google/uuid"
)

const (
	randomFloatDivisor = 1_000_000

	// walkStep is the largest move between consecutive walk samples.
	walkStep = 0.05
)

// getRandomFloat returns a random float64 in [0, 1) using crypto/rand.
func getRandomFloat() float64 {
	n, _ := rand.Int(rand.Reader, big.NewInt(randomFloatDivisor))
	return float64(n.Int64()) / float64(randomFloatDivisor)
}

// Generate builds cfg.Count events with fresh IDs and coherence values in
// [cfg.Min, cfg.Max].
func Generate(cfg *Config) []Event {
	return generate(cfg, getRandomFloat, uuid.NewString)
}

func generate(cfg *Config, random func() float64, newID func() string) []Event {
	events := make([]Event, cfg.Count)
	span := cfg.Max - cfg.Min

	var current float64
	for i := range events {
		if cfg.Walk && i > 0 {
			current = clamp(current+(random()*2-1)*walkStep, cfg.Min, cfg.Max)
		} else {
			current = cfg.Min + span*random()
		}
		events[i] = Event{ID: newID(), Coherence: current}
	}
	return events
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
