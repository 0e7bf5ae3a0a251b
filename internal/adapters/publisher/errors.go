package publisher

import "errors"

// Sentinel kinds for publish errors.
var (
	ErrPatchApply = errors.New("patch did not apply")
	ErrPublish    = errors.New("publish failed")
)
