package natsbus

import (
	"errors"
	"fmt"

	"github.com/okian/vibecoder/internal/domain/model"
)

// Sentinel kinds for bus errors.
var (
	ErrConnectivity = errors.New("event source unreachable")
	ErrClosed       = fmt.Errorf("nats source: %w", model.ErrSourceClosed)
)
