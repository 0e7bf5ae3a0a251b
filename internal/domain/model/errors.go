package model

import "errors"

// Sentinel kinds for domain errors.
var (
	ErrMalformedEvent = errors.New("malformed coherence event")
	ErrSourceClosed   = errors.New("event source closed")
)
