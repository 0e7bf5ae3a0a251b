package queue

import (
	"errors"
	"fmt"

	"github.com/okian/vibecoder/internal/domain/model"
)

// Sentinel kinds for queue errors.
var (
	ErrClosed = fmt.Errorf("in-memory queue: %w", model.ErrSourceClosed)
	ErrFull   = errors.New("queue full")
)
