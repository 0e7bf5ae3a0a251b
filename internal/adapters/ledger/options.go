// Package ledger implements the append-only JSON-lines audit log.
package ledger

import (
	"os"
	"time"
)

// Option applies a configuration option to the FileLedger.
type Option func(*FileLedger)

// WithSync opens the file with O_SYNC so each append reaches stable storage
// before returning.
func WithSync(sync bool) Option {
	return func(l *FileLedger) {
		l.sync = sync
	}
}

// WithClock replaces the time source used to stamp entries.
func WithClock(now func() time.Time) Option {
	return func(l *FileLedger) {
		if now != nil {
			l.now = now
		}
	}
}

// WithPermissions sets the mode for created directories and the ledger file.
func WithPermissions(dir, file os.FileMode) Option {
	return func(l *FileLedger) {
		if dir != 0 {
			l.dirPerm = dir
		}
		if file != 0 {
			l.filePerm = file
		}
	}
}
