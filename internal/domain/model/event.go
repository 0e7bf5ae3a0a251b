// Package model contains domain models passed between layers.
package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// CoherenceEvent is one score signal read off the event source.
type CoherenceEvent struct {
	ID         string    // bus message id or payload id; empty when the source provides none
	Score      float64   // coherence score, unbounded
	ReceivedAt time.Time // arrival time at this process
}

// Task is a proposed unit of change. Immutable once created.
type Task struct {
	ID        string
	Title     string
	Rationale string
	Patch     string // unified diff
}

// CommitMessage renders the commit message for the task.
func (t Task) CommitMessage() string {
	return t.Title + "\n\n" + t.Rationale
}

// LedgerEntry is one line of the ledger. TS is stamped by the ledger.
type LedgerEntry struct {
	Coherence float64 `json:"coh"`
	TaskID    string  `json:"task"`
	PRRef     string  `json:"pr"`
	TS        int64   `json:"ts"`
}

// NewCoherenceEvent builds a validated event.
func NewCoherenceEvent(id string, score float64, receivedAt time.Time) (CoherenceEvent, error) {
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return CoherenceEvent{}, fmt.Errorf("%w: coherence must be finite, got %v", ErrMalformedEvent, score)
	}
	return CoherenceEvent{ID: id, Score: score, ReceivedAt: receivedAt}, nil
}

// wireEvent mirrors the JSON payload published on the bus.
type wireEvent struct {
	Coherence *float64 `json:"coherence"`
	ID        string   `json:"id"`
}

// DecodeCoherenceEvent parses a bus payload. Only a JSON object carrying a
// numeric "coherence" field is accepted; fallbackID is used when the payload
// has no "id" of its own.
func DecodeCoherenceEvent(data []byte, fallbackID string, receivedAt time.Time) (CoherenceEvent, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return CoherenceEvent{}, fmt.Errorf("%w: payload is not a JSON object", ErrMalformedEvent)
	}

	var w wireEvent
	if err := json.Unmarshal(trimmed, &w); err != nil {
		return CoherenceEvent{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if w.Coherence == nil {
		return CoherenceEvent{}, fmt.Errorf("%w: missing coherence", ErrMalformedEvent)
	}

	id := w.ID
	if id == "" {
		id = fallbackID
	}
	return NewCoherenceEvent(id, *w.Coherence, receivedAt)
}
