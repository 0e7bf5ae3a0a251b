package ledger

import "errors"

// Sentinel kinds for ledger errors.
var (
	ErrIO            = errors.New("ledger io failed")
	ErrSerialization = errors.New("ledger entry not serializable")
	ErrClosed        = errors.New("ledger closed")
)
