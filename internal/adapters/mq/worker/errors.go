package worker

import "errors"

// Sentinel kinds for driver errors.
var (
	ErrDuplicateEvent = errors.New("duplicate event")
	ErrUnknownPolicy  = errors.New("unknown error policy")
	ErrAlreadyRunning = errors.New("driver already running")
	ErrReceive        = errors.New("receive")
)
